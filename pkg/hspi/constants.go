// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hspi implements the master side of the ESP32 AT command/data
// protocol carried over SPI.
//
// Every message is a three-phase exchange: a 4-byte header naming the
// direction, a 4-byte length frame, then the payload. The slave paces the
// exchange with a single handshake line that must read Ready before the
// master starts the next phase. The Engine also tracks the AT transparent
// transmission mode, which bypasses the command/response cycle while bulk
// data is streamed.
package hspi

// Header opcodes (byte 0 of the header frame)
const (
	OpMasterRequest = 0x01 // Slave sends a response
	OpMasterSend    = 0x02 // Slave receives a command
)

// Frame sizes
const (
	HeaderSize = 4
	LengthSize = 4
)

// Length frame markers (byte 3 of the length frame)
const (
	MarkerOutgoing = 'A'
	MarkerIncoming = 'B'
)

// Length encoding limits
const (
	lengthLowMask = 0x7F
	lengthShift   = 7
	MaxLength     = 0x7FFF // 15 bits
)

// Busy-wait intervals in delay-loop iterations
const (
	DelayShort = 100   // Register and pin configuration settle
	DelayLong  = 10000 // Chip-select auto deassert
)

// Chip-select wiring on the reference board
const (
	DefaultCSIndex = 2
)

// Transparent transmission commands
const (
	CmdTransparentStart = "AT+CIPSEND\r\n"
	CmdTransparentEnd   = "+++\r\n"

	// transparentEndLength excludes the trailing CR+LF of CmdTransparentEnd
	transparentEndLength = 3
)

// Default clocks of the HiFive1 Rev B reference setup
const (
	DefaultCPUFrequencyHz = 320000000
	DefaultSPIClockHz     = 80000
	DefaultUARTBaudRate   = 115200
)
