// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hspi

import "fmt"

// Mode is the transparent transmission state of a link
type Mode uint8

const (
	ModeOff    Mode = iota // Commands are framed and answered
	ModeOn                 // Bulk data streams, no automatic receive
	ModeEnding             // End sentinel sent, reverts on next send
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "OFF"
	case ModeOn:
		return "ON"
	case ModeEnding:
		return "ENDING"
	default:
		return fmt.Sprintf("MODE(%d)", uint8(m))
	}
}

// nextMode evaluates the transitions for an outgoing message.
// It returns the new mode and the number of payload octets to send.
// Both sentinels apply in any mode; the end sentinel always sends three
// octets.
func nextMode(cur Mode, msg []byte) (Mode, int) {
	n := len(msg)

	if cur == ModeEnding {
		cur = ModeOff
	}

	switch string(msg) {
	case CmdTransparentStart:
		return ModeOn, n
	case CmdTransparentEnd:
		return ModeEnding, transparentEndLength
	}
	return cur, n
}
