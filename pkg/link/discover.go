// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"sort"

	"go.bug.st/serial"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Port kinds reported by Discover
const (
	KindSerial = "serial"
	KindSPI    = "spidev"
)

// PortInfo is one port a link can be opened on
type PortInfo struct {
	Kind    string
	Name    string
	Aliases []string
}

// Discover lists serial ports and SPI controllers on this host. SPI ports
// are only listed when the periph host drivers load.
func Discover() ([]PortInfo, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	sort.Strings(names)

	ports := make([]PortInfo, 0, len(names))
	for _, name := range names {
		ports = append(ports, PortInfo{Kind: KindSerial, Name: name})
	}

	if _, err := host.Init(); err == nil {
		ports = append(ports, spiPorts()...)
	}
	return ports, nil
}

func spiPorts() []PortInfo {
	var ports []PortInfo
	for _, ref := range spireg.All() {
		ports = append(ports, PortInfo{Kind: KindSPI, Name: ref.Name, Aliases: ref.Aliases})
	}
	return ports
}
