// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hspi

import (
	"fmt"
	"sync"
	"time"
)

// Counters is a point-in-time copy of the link statistics
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	MessagesSent     uint64 // Completed send payload phases
	FramesSent       uint64
	FramesReceived   uint64
	OctetsSent       uint64
	OctetsReceived   uint64
	HandshakeWaits   uint64
	HandshakePolls   uint64 // Not-ready reads across all waits
	Chunks           uint64
	TruncatedChunks  uint64
	MarkerMismatches uint64
	ModeChanges      uint64
	TransparentStart uint64

	// Rates (calculated)
	MessageRate float64 // messages/sec
	ChunkRate   float64 // chunks/sec
}

// Statistics tracks link traffic. Register Observe with WithObserver.
type Statistics struct {
	mu sync.Mutex
	Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		Counters: Counters{
			StartTime:      now,
			LastUpdateTime: now,
		},
	}
}

// Observe updates the counters from one engine event
func (s *Statistics) Observe(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case EventFrameSent:
		s.FramesSent++
		s.OctetsSent += uint64(len(ev.Bytes))
		if ev.Phase == FramePayload {
			s.MessagesSent++
		}
	case EventFrameReceived:
		s.FramesReceived++
		s.OctetsReceived += uint64(len(ev.Bytes))
	case EventHandshake:
		s.HandshakeWaits++
		s.HandshakePolls += ev.Polls
	case EventChunk:
		s.Chunks++
		if ev.Length > len(ev.Bytes) {
			s.TruncatedChunks++
		}
	case EventMarkerMismatch:
		s.MarkerMismatches++
	case EventModeChange:
		s.ModeChanges++
		if ev.To == ModeOn {
			s.TransparentStart++
		}
	}

	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates message and chunk rates
func (s *Statistics) CalculateRates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.MessageRate = float64(s.MessagesSent) / elapsed
		s.ChunkRate = float64(s.Chunks) / elapsed
	}
}

// Snapshot returns a copy of the counters safe to read while the engine runs
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
	return s.Counters
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()
	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Link Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Messages Sent:   %8d\n", snap.MessagesSent)
	result += fmt.Sprintf("Chunks Received: %8d\n", snap.Chunks)
	result += fmt.Sprintf("Frames TX/RX:    %8d / %d\n", snap.FramesSent, snap.FramesReceived)
	result += fmt.Sprintf("Octets TX/RX:    %8d / %d\n", snap.OctetsSent, snap.OctetsReceived)
	result += fmt.Sprintf("Handshakes:      %8d (%d polls)\n", snap.HandshakeWaits, snap.HandshakePolls)

	if snap.TruncatedChunks > 0 {
		result += fmt.Sprintf("Truncated:       %8d\n", snap.TruncatedChunks)
	}
	if snap.MarkerMismatches > 0 {
		result += fmt.Sprintf("Bad Markers:     %8d\n", snap.MarkerMismatches)
	}
	if snap.ModeChanges > 0 {
		result += fmt.Sprintf("Mode Changes:    %8d (%d transparent sessions)\n", snap.ModeChanges, snap.TransparentStart)
	}

	result += fmt.Sprintf("Message Rate:    %8.1f msgs/sec\n", snap.MessageRate)
	result += fmt.Sprintf("Chunk Rate:      %8.1f chunks/sec\n", snap.ChunkRate)
	result += "=====================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.Counters = Counters{
		StartTime:      now,
		LastUpdateTime: now,
	}
}
