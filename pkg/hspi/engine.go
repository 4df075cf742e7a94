// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hspi

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Engine is the master side of one SPI link to an AT slave.
//
// All operations hold one lock for the whole transaction, since the
// handshake protocol cannot be interleaved mid-message. Busy-waits poll the
// caller's context; with context.Background the engine blocks until the
// slave answers, however long that takes.
type Engine struct {
	mu     sync.Mutex
	bus    Bus
	hs     Handshake
	clock  Clock
	config Config
	mode   Mode
}

// New creates an Engine on the given peripheral, handshake line and clock.
//
// Example:
//
//	slave := hspi.NewSimSlave(hspi.ATResponder())
//	eng := hspi.New(slave, slave, slave)
//	if err := eng.Initialize(hspi.DefaultSPIClockHz); err != nil {
//	    return err
//	}
func New(bus Bus, hs Handshake, clock Clock, opts ...Option) *Engine {
	if bus == nil || hs == nil || clock == nil {
		panic("hspi: bus, handshake and clock are required")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Engine{
		bus:    bus,
		hs:     hs,
		clock:  clock,
		config: cfg,
		mode:   ModeOff,
	}
}

// Initialize configures the peripheral for 8-bit MSB-first single-line
// frames with an auto-deasserting, idle-high chip-select, sets the clock
// divider for spiClockHz and enables the bus pins.
func (e *Engine) Initialize(spiClockHz uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cpuHz := e.clock.FrequencyHz()
	div, err := Divider(cpuHz, spiClockHz)
	if err != nil {
		return fmt.Errorf("%w: cpu %d Hz, spi %d Hz", err, cpuHz, spiClockHz)
	}

	cfg := BusConfig{
		FrameBits:  8,
		MSBFirst:   true,
		Protocol:   ProtocolSingle,
		Divider:    div,
		ClockHz:    spiClockHz,
		CSIdleHigh: true,
		CSMode:     CSModeAuto,
		CSIndex:    DefaultCSIndex,
	}
	if err := e.bus.Configure(cfg); err != nil {
		return fmt.Errorf("configure bus: %w", err)
	}
	e.clock.Delay(DelayShort)

	e.config.Logger.Info("enabling SPI pins", "divider", div, "spi_hz", spiClockHz, "cpu_hz", cpuHz)
	e.clock.Delay(DelayShort)
	if err := e.bus.EnablePins(); err != nil {
		return fmt.Errorf("enable pins: %w", err)
	}
	return nil
}

// Mode returns the current transparent transmission mode
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// SendOnly reports whether the engine was built with WithLegacySendOnly
func (e *Engine) SendOnly() bool {
	return e.config.SendOnly
}

// Send transmits msg as one header/length/payload exchange.
//
// Sending CmdTransparentStart switches the link to ON. Sending
// CmdTransparentEnd switches it to ENDING and transmits only the three '+'
// octets, whatever the current mode. A link in ENDING reverts to OFF at the
// start of the next Send.
func (e *Engine) Send(ctx context.Context, msg []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.send(ctx, msg)
}

// Receive drains slave responses into buf. Each three-phase cycle reads
// min(announced, len(buf)) octets into buf[0:] and is handed to fn. The
// cycle repeats for as long as the handshake line stays Ready afterwards.
// Returns the number of chunks read.
func (e *Engine) Receive(ctx context.Context, buf []byte, fn ChunkFunc) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.receive(ctx, buf, fn)
}

// Transact sends msg and, unless the link is now streaming in transparent
// mode, drains the response into buf. Both steps run under one lock.
func (e *Engine) Transact(ctx context.Context, msg, buf []byte, fn ChunkFunc) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.send(ctx, msg); err != nil {
		return 0, err
	}
	if e.config.SendOnly || e.mode == ModeOn {
		return 0, nil
	}
	return e.receive(ctx, buf, fn)
}

func (e *Engine) send(ctx context.Context, msg []byte) error {
	log := e.config.Logger

	n := len(msg)
	next := e.mode
	if !e.config.SendOnly {
		if e.mode == ModeEnding {
			e.setMode(ModeOff)
		}
		next, n = nextMode(e.mode, msg)
	}

	length, err := NewLengthFrame(n, MarkerOutgoing)
	if err != nil {
		return err
	}

	log.Debug("spi send", "message", fmt.Sprintf("%q", msg))
	if next != e.mode {
		e.setMode(next)
	}

	// 1. Header: 0x02 tells the slave to receive a command
	if err := e.writeFrame(ctx, NewHeaderFrame(OpMasterSend)); err != nil {
		return err
	}
	if err := e.endPhase(ctx, FrameHeader); err != nil {
		return err
	}

	// 2. Length, byte 3 must be 'A'
	if err := e.writeFrame(ctx, length); err != nil {
		return err
	}
	if err := e.endPhase(ctx, FrameLength); err != nil {
		return err
	}

	// 3. Payload
	if err := e.writeFrame(ctx, NewPayloadFrame(msg[:n])); err != nil {
		return err
	}
	return e.endPhase(ctx, FramePayload)
}

func (e *Engine) receive(ctx context.Context, buf []byte, fn ChunkFunc) (int, error) {
	if e.config.SendOnly {
		return 0, ErrReceiveUnsupported
	}
	log := e.config.Logger

	for chunks := 0; ; chunks++ {
		// 1. Header: 0x01 tells the slave to send a response
		if err := e.writeFrame(ctx, NewHeaderFrame(OpMasterRequest)); err != nil {
			return chunks, err
		}
		if err := e.endPhase(ctx, FrameHeader); err != nil {
			return chunks, err
		}

		// 2. Length, byte 3 should be 'B'
		var lenBuf [LengthSize]byte
		if err := e.readFrame(ctx, FrameLength, lenBuf[:]); err != nil {
			return chunks, err
		}
		lf := Frame{Kind: FrameLength, Bytes: lenBuf[:]}
		announced := lf.Length()
		log.Debug("spi recv length", "length", announced, "marker", string(rune(lf.Marker())))
		if lf.Marker() != MarkerIncoming {
			log.Error("unexpected length marker", "marker", fmt.Sprintf("0x%02X", lf.Marker()))
			e.emit(Event{Kind: EventMarkerMismatch, Phase: FrameLength, Length: announced, Marker: lf.Marker()})
		}
		if err := e.endPhase(ctx, FrameLength); err != nil {
			return chunks, err
		}

		// 3. Payload
		n := announced
		if n > len(buf) {
			n = len(buf)
		}
		if err := e.readFrame(ctx, FramePayload, buf[:n]); err != nil {
			return chunks, err
		}
		normalize(buf, announced)

		e.bus.Release()
		e.clock.Delay(e.config.SettleIterations)

		chunk := Chunk{Index: chunks, Length: announced, Marker: lf.Marker(), Data: buf[:n]}
		e.emit(Event{Kind: EventChunk, Phase: FramePayload, Bytes: clone(chunk.Data), Length: announced, Marker: chunk.Marker})
		if fn != nil {
			fn(chunk)
		}

		// The slave keeps the line asserted while more chunks are pending
		if err := ctx.Err(); err != nil {
			return chunks + 1, &WaitError{Point: WaitHandshake, Phase: FramePayload, Err: err}
		}
		ready := e.hs.Ready()
		if err := e.fault(FramePayload); err != nil {
			return chunks + 1, err
		}
		if !ready {
			return chunks + 1, nil
		}
	}
}

// normalize terminates a short read and blanks CR/LF in the body of the
// response, leaving the final two octets untouched.
func normalize(buf []byte, announced int) {
	if announced >= len(buf) {
		return
	}
	buf[announced] = 0
	if announced < 4 {
		return
	}
	for i := 0; i < announced-2; i++ {
		if buf[i] == '\r' || buf[i] == '\n' {
			buf[i] = ' '
		}
	}
}

// writeFrame clocks out every octet of f, discarding what comes back
func (e *Engine) writeFrame(ctx context.Context, f Frame) error {
	e.config.Logger.Debug("spi xfer", "phase", f.Kind.String(), "bytes", FormatBytes(f.Bytes))
	for _, b := range f.Bytes {
		if err := e.sendOctet(ctx, f.Kind, b); err != nil {
			return err
		}
		if _, err := e.recvOctet(ctx, f.Kind); err != nil {
			return err
		}
	}
	if err := e.fault(f.Kind); err != nil {
		return err
	}
	e.emit(Event{Kind: EventFrameSent, Phase: f.Kind, Bytes: clone(f.Bytes), Length: f.Length(), Marker: f.Marker()})
	return nil
}

// readFrame clocks out zero filler octets and captures the echo into dst
func (e *Engine) readFrame(ctx context.Context, kind FrameKind, dst []byte) error {
	for i := range dst {
		if err := e.sendOctet(ctx, kind, 0x00); err != nil {
			return err
		}
		b, err := e.recvOctet(ctx, kind)
		if err != nil {
			return err
		}
		dst[i] = b
	}
	if err := e.fault(kind); err != nil {
		return err
	}
	f := Frame{Kind: kind, Bytes: dst}
	e.emit(Event{Kind: EventFrameReceived, Phase: kind, Bytes: clone(dst), Length: f.Length(), Marker: f.Marker()})
	return nil
}

func (e *Engine) sendOctet(ctx context.Context, phase FrameKind, b byte) error {
	for !e.bus.TrySendByte(b) {
		if err := ctx.Err(); err != nil {
			return &WaitError{Point: WaitTransmit, Phase: phase, Err: err}
		}
	}
	return nil
}

func (e *Engine) recvOctet(ctx context.Context, phase FrameKind) (byte, error) {
	for {
		if b, ok := e.bus.TryRecvByte(); ok {
			return b, nil
		}
		if err := ctx.Err(); err != nil {
			return 0, &WaitError{Point: WaitReceive, Phase: phase, Err: err}
		}
	}
}

// endPhase releases chip-select, lets it settle and waits for the slave
func (e *Engine) endPhase(ctx context.Context, phase FrameKind) error {
	e.bus.Release()
	e.clock.Delay(e.config.SettleIterations)
	return e.waitHandshake(ctx, phase)
}

func (e *Engine) waitHandshake(ctx context.Context, phase FrameKind) error {
	var polls uint64
	for !e.hs.Ready() {
		polls++
		if err := ctx.Err(); err != nil {
			return &WaitError{Point: WaitHandshake, Phase: phase, Err: err}
		}
	}
	if err := e.fault(phase); err != nil {
		return err
	}
	e.emit(Event{Kind: EventHandshake, Phase: phase, Polls: polls})
	return nil
}

// fault returns the first error latched by the bus or handshake line
func (e *Engine) fault(phase FrameKind) error {
	for _, v := range []interface{}{e.bus, e.hs} {
		if f, ok := v.(Faulter); ok {
			if err := f.Err(); err != nil {
				e.config.Logger.Error("link fault", "phase", phase.String(), "error", err)
				return faultError(phase, err)
			}
		}
	}
	return nil
}

func (e *Engine) setMode(m Mode) {
	prev := e.mode
	e.mode = m
	e.config.Logger.Info("transparent mode", "from", prev.String(), "to", m.String())
	e.emit(Event{Kind: EventModeChange, From: prev, To: m})
}

func (e *Engine) emit(ev Event) {
	if len(e.config.Observers) == 0 {
		return
	}
	ev.Time = time.Now()
	for _, fn := range e.config.Observers {
		fn(ev)
	}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
