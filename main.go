// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// atbridge - ESP32 AT command bridge
//
// Drives an ESP32 running AT firmware over the SPI handshake protocol from a
// USB-serial SPI bridge or a Linux spidev, and shares the link as an
// interactive console, a WebSocket server or an MQTT bridge.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/atbridge/cmd"
	"github.com/golang/glog"
)

func main() {
	err := cmd.Execute()
	glog.Flush()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
