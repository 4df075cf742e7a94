// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hspi

import "time"

// EventKind identifies what an Event reports
type EventKind uint8

const (
	EventFrameSent     EventKind = iota + 1 // Master clocked a frame out
	EventFrameReceived                      // Master captured a frame from the slave
	EventHandshake                          // Handshake line read Ready
	EventModeChange                         // Transparent mode changed
	EventChunk                              // One receive cycle completed
	EventMarkerMismatch                     // Incoming length frame carried an unexpected marker
)

// String returns the event name
func (k EventKind) String() string {
	switch k {
	case EventFrameSent:
		return "FRAME_SENT"
	case EventFrameReceived:
		return "FRAME_RECEIVED"
	case EventHandshake:
		return "HANDSHAKE"
	case EventModeChange:
		return "MODE_CHANGE"
	case EventChunk:
		return "CHUNK"
	case EventMarkerMismatch:
		return "MARKER_MISMATCH"
	default:
		return "UNKNOWN"
	}
}

// Event is emitted by the Engine to observers as a transaction progresses
type Event struct {
	Kind  EventKind
	Time  time.Time
	Phase FrameKind
	Bytes []byte // Frame octets or chunk data (copied)

	// Mode change
	From Mode
	To   Mode

	// Length frames and chunks
	Length int
	Marker byte

	// Handshake
	Polls uint64
}

// Observer receives engine events. Observers run on the caller's goroutine
// while the engine lock is held and must not call back into the Engine.
type Observer func(Event)

// Chunk is one slave response drained by a receive cycle
type Chunk struct {
	Index  int    // 0-based position within the Receive call
	Length int    // Length announced by the slave
	Marker byte   // Direction marker of the incoming length frame
	Data   []byte // Octets stored in the caller's buffer, after normalization
}

// Truncated reports whether the slave announced more octets than the buffer held
func (c Chunk) Truncated() bool {
	return c.Length > len(c.Data)
}

// Text returns the chunk data up to the first NUL
func (c Chunk) Text() string {
	for i, b := range c.Data {
		if b == 0 {
			return string(c.Data[:i])
		}
	}
	return string(c.Data)
}

// ChunkFunc is called once per received chunk. Data aliases the caller's
// buffer and is overwritten by the next chunk.
type ChunkFunc func(Chunk)
