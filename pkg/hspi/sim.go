// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hspi

import (
	"bytes"
	"sync"
)

// Responder produces the response chunks for a command received by a SimSlave
type Responder func(cmd []byte) [][]byte

// ATResponder mimics AT firmware: commands are echoed and acknowledged with
// OK, the transparent start command answers with the '>' prompt and data
// sent while streaming gets no response.
func ATResponder() Responder {
	streaming := false
	return func(cmd []byte) [][]byte {
		switch {
		case streaming && string(cmd) == "+++":
			streaming = false
			return nil
		case streaming:
			return nil
		case string(cmd) == CmdTransparentStart:
			streaming = true
			return [][]byte{[]byte("AT+CIPSEND\r\n\r\nOK\r\n\r\n>")}
		case bytes.HasPrefix(cmd, []byte("AT")):
			echo := append(append([]byte{}, cmd...), "\r\nOK\r\n"...)
			return [][]byte{echo}
		default:
			return [][]byte{[]byte("\r\nERROR\r\n")}
		}
	}
}

type simPhase uint8

const (
	simHeader simPhase = iota
	simLengthIn
	simPayloadIn
	simLengthOut
	simPayloadOut
)

// SimSlave is an in-memory AT slave implementing Bus, Handshake and Clock.
// It follows the header/length/payload exchange phase by phase, using
// Release as the phase boundary, so protocol behavior can be verified
// without hardware.
type SimSlave struct {
	mu sync.Mutex

	responder Responder
	pending   [][]byte
	freqHz    uint32

	// Busy polls injected before each accepted octet
	TxBusy int
	RxBusy int

	// Marker returned in outgoing length frames
	OutMarker byte

	phase   simPhase
	opcode  byte
	phaseIn []byte
	out     []byte
	outPos  int
	rx      []byte
	txBusyN int
	rxBusyN int
	stall   bool

	config     BusConfig
	configured bool
	pinsOn     bool

	// Recorded traffic
	frames   []Frame
	commands [][]byte
	releases int
	polls    int
	delay    uint64
}

// NewSimSlave creates a simulated slave. A nil responder never answers.
func NewSimSlave(responder Responder) *SimSlave {
	return &SimSlave{
		responder: responder,
		freqHz:    DefaultCPUFrequencyHz,
		OutMarker: MarkerIncoming,
	}
}

// SetFrequency sets the clock frequency reported to Initialize
func (s *SimSlave) SetFrequency(hz uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freqHz = hz
}

// Queue appends response chunks the slave will deliver on the next requests
func (s *SimSlave) Queue(chunks ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.pending = append(s.pending, append([]byte{}, c...))
	}
}

// Stall holds the handshake line deasserted while true
func (s *SimSlave) Stall(stall bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stall = stall
}

// Configure implements Bus
func (s *SimSlave) Configure(cfg BusConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
	s.configured = true
	return nil
}

// EnablePins implements Bus
func (s *SimSlave) EnablePins() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinsOn = true
	return nil
}

// TrySendByte implements Bus. The slave shifts its reply octet for the
// current phase into the receive register.
func (s *SimSlave) TrySendByte(b byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.txBusyN < s.TxBusy {
		s.txBusyN++
		return false
	}
	s.txBusyN = 0

	s.phaseIn = append(s.phaseIn, b)

	var reply byte
	if s.phase == simLengthOut || s.phase == simPayloadOut {
		if s.outPos < len(s.out) {
			reply = s.out[s.outPos]
		}
		s.outPos++
	}
	s.rx = append(s.rx, reply)
	return true
}

// TryRecvByte implements Bus
func (s *SimSlave) TryRecvByte() (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.rx) == 0 {
		return 0, false
	}
	if s.rxBusyN < s.RxBusy {
		s.rxBusyN++
		return 0, false
	}
	s.rxBusyN = 0

	b := s.rx[0]
	s.rx = s.rx[1:]
	return b, true
}

// Release implements Bus and advances the slave to the next phase
func (s *SimSlave) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releases++
	in := s.phaseIn
	s.phaseIn = nil

	switch s.phase {
	case simHeader:
		s.frames = append(s.frames, Frame{Kind: FrameHeader, Bytes: in})
		if len(in) == 0 {
			return
		}
		s.opcode = in[0]
		if s.opcode == OpMasterRequest {
			s.prepareLength()
			s.phase = simLengthOut
		} else {
			s.phase = simLengthIn
		}

	case simLengthIn:
		s.frames = append(s.frames, Frame{Kind: FrameLength, Bytes: in})
		s.phase = simPayloadIn

	case simPayloadIn:
		s.frames = append(s.frames, Frame{Kind: FramePayload, Bytes: in})
		s.commands = append(s.commands, in)
		if s.responder != nil {
			s.pending = append(s.pending, s.responder(in)...)
		}
		s.phase = simHeader

	case simLengthOut:
		s.frames = append(s.frames, Frame{Kind: FrameLength, Bytes: in})
		if len(s.pending) > 0 {
			s.out = s.pending[0]
		} else {
			s.out = nil
		}
		s.outPos = 0
		s.phase = simPayloadOut

	case simPayloadOut:
		s.frames = append(s.frames, Frame{Kind: FramePayload, Bytes: in})
		if len(s.pending) > 0 {
			s.pending = s.pending[1:]
		}
		s.out = nil
		s.outPos = 0
		s.phase = simHeader
	}
}

// prepareLength loads the length frame for the next pending chunk
func (s *SimSlave) prepareLength() {
	n := 0
	if len(s.pending) > 0 {
		n = len(s.pending[0])
	}
	lo, hi, err := EncodeLength(n)
	if err != nil {
		lo, hi = lengthLowMask, MaxLength>>lengthShift
	}
	s.out = []byte{lo, hi, 0x00, s.OutMarker}
	s.outPos = 0
}

// Ready implements Handshake. The line is asserted at every phase boundary
// except after a response payload, where it stays asserted only while more
// chunks are pending.
func (s *SimSlave) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.polls++
	if s.stall {
		return false
	}
	if s.phase == simHeader && s.opcode == OpMasterRequest {
		return len(s.pending) > 0
	}
	return true
}

// Delay implements Clock without sleeping
func (s *SimSlave) Delay(iterations uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay += uint64(iterations)
}

// FrequencyHz implements Clock
func (s *SimSlave) FrequencyHz() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freqHz
}

// BusConfig returns the last configuration applied and whether pins are enabled
func (s *SimSlave) BusConfig() (BusConfig, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config, s.configured, s.pinsOn
}

// Frames returns every frame the master clocked, in order
func (s *SimSlave) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame{}, s.frames...)
}

// Commands returns the payloads received from the master
func (s *SimSlave) Commands() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte{}, s.commands...)
}

// Releases returns the number of chip-select releases
func (s *SimSlave) Releases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

// Polls returns how many times the handshake line was read
func (s *SimSlave) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// Pending returns the number of queued response chunks
func (s *SimSlave) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// DelayIterations returns the total busy-wait iterations requested
func (s *SimSlave) DelayIterations() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}
