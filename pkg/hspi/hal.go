// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hspi

// Protocol selects the number of SPI data lines
type Protocol uint8

const (
	ProtocolSingle Protocol = iota
	ProtocolDual
	ProtocolQuad
)

// CSMode controls how the peripheral drives chip-select
type CSMode uint8

const (
	CSModeAuto CSMode = 0 // Deasserted after every frame
	CSModeHold CSMode = 2 // Held until the mode changes
	CSModeOff  CSMode = 3 // Never asserted by hardware
)

// BusConfig describes the SPI frame format and clocking
type BusConfig struct {
	FrameBits  uint8
	MSBFirst   bool
	Protocol   Protocol
	Divider    uint32 // SCKDIV register value
	ClockHz    uint32 // Requested serial clock
	CSIdleHigh bool
	CSMode     CSMode
	CSIndex    uint8
}

// Bus is one side of a full-duplex SPI peripheral, one octet at a time.
//
// TrySendByte returns false while the transmit slot is full.
// TryRecvByte returns false while no received octet is valid.
// Release deasserts chip-select at the end of a frame phase.
type Bus interface {
	Configure(cfg BusConfig) error
	EnablePins() error
	TrySendByte(b byte) bool
	TryRecvByte() (byte, bool)
	Release()
}

// Handshake reads the slave's ready line
type Handshake interface {
	Ready() bool
}

// Faulter is implemented by buses and handshake lines that latch I/O
// errors instead of blocking. The engine checks it after every frame and
// handshake and abandons the transaction once it reports an error.
type Faulter interface {
	Err() error
}

// Clock provides the busy-wait delay and the core clock frequency
type Clock interface {
	Delay(iterations uint32)
	FrequencyHz() uint32
}

// Divider computes the SCKDIV value for the requested serial clock:
// cpuHz / (2 * spiHz) - 1
func Divider(cpuHz, spiHz uint32) (uint32, error) {
	if spiHz == 0 {
		return 0, ErrInvalidClock
	}
	q := uint64(cpuHz) / (2 * uint64(spiHz))
	if q == 0 {
		return 0, ErrInvalidClock
	}
	return uint32(q - 1), nil
}
