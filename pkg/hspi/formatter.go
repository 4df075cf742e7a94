// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hspi

import (
	"fmt"
	"strings"
)

// FormatBytes formats octets as space separated hex pairs
func FormatBytes(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x", b)
	}
	return sb.String()
}

// FormatHexDump formats a payload eight octets per row
func FormatHexDump(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 && i%8 == 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, " %02x", b)
	}
	return sb.String()
}

// FormatChunk returns the console line for a received chunk. Responses of
// two octets or fewer are just the line terminator and print as a blank line.
func FormatChunk(c Chunk) string {
	if c.Length > 2 {
		return fmt.Sprintf(" | -- ESP32 ----> %s", c.Text())
	}
	return " | -- ESP32 ----> \n"
}

// FormatEvent formats an engine event into a single human-readable line
func FormatEvent(ev Event) string {
	timestamp := ev.Time.Format("15:04:05.000")

	switch ev.Kind {
	case EventFrameSent:
		if ev.Phase == FrameLength {
			return fmt.Sprintf("[%s] TX %-7s (%d) %s\n", timestamp, ev.Phase, ev.Length, FormatBytes(ev.Bytes))
		}
		return fmt.Sprintf("[%s] TX %-7s %s\n", timestamp, ev.Phase, formatLimited(ev.Bytes))

	case EventFrameReceived:
		if ev.Phase == FrameLength {
			return fmt.Sprintf("[%s] RX %-7s (%d, %s) %s\n", timestamp, ev.Phase, ev.Length, formatMarker(ev.Marker), FormatBytes(ev.Bytes))
		}
		return fmt.Sprintf("[%s] RX %-7s %s\n", timestamp, ev.Phase, formatLimited(ev.Bytes))

	case EventHandshake:
		return fmt.Sprintf("[%s] HS after %s ready (%d polls)\n", timestamp, ev.Phase, ev.Polls)

	case EventModeChange:
		return fmt.Sprintf("[%s] MODE %s -> %s\n", timestamp, ev.From, ev.To)

	case EventChunk:
		return fmt.Sprintf("[%s] CHUNK len=%d %q\n", timestamp, ev.Length, ev.Bytes)

	case EventMarkerMismatch:
		return fmt.Sprintf("[%s] MARKER expected %s, got %s\n", timestamp, formatMarker(MarkerIncoming), formatMarker(ev.Marker))

	default:
		return fmt.Sprintf("[%s] %s\n", timestamp, ev.Kind)
	}
}

func formatMarker(m byte) string {
	if m >= 0x20 && m < 0x7F {
		return fmt.Sprintf("'%c'", m)
	}
	return fmt.Sprintf("0x%02X", m)
}

// formatLimited prints at most 32 octets of a payload
func formatLimited(data []byte) string {
	const limit = 32
	if len(data) <= limit {
		return FormatBytes(data)
	}
	return fmt.Sprintf("%s ... (+%d)", FormatBytes(data[:limit]), len(data)-limit)
}
