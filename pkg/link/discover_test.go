// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"testing"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

func TestSPIPorts(t *testing.T) {
	opener := func() (spi.PortCloser, error) {
		return &fakeSPIPort{conn: &fakeSPIConn{}}, nil
	}
	require.NoError(t, spireg.Register("ATBRIDGETEST", []string{"/dev/spidev9.9"}, -1, opener))
	defer spireg.Unregister("ATBRIDGETEST")

	var found *PortInfo
	for _, p := range spiPorts() {
		if p.Name == "ATBRIDGETEST" {
			p := p
			found = &p
		}
	}
	require.NotNil(t, found)
	require.Equal(t, KindSPI, found.Kind)
	require.Equal(t, []string{"/dev/spidev9.9"}, found.Aliases)
}
