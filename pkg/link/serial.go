// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link provides host-side hardware for the HSPI engine: a USB-serial
// SPI bridge, Linux spidev with a GPIO handshake, and a host clock.
package link

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/atbridge/pkg/hspi"
	"go.bug.st/serial"
)

// DefaultReadTimeout bounds each echo read from the bridge
const DefaultReadTimeout = 50 * time.Millisecond

// Port is the part of serial.Port the bridge uses
type Port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
	GetModemStatusBits() (*serial.ModemStatusBits, error)
	SetReadTimeout(t time.Duration) error
}

// SerialBridge drives the slave through a USB-serial SPI bridge. Every octet
// written to the port is clocked onto MOSI and the MISO octet is written
// back. The slave's handshake line is wired to CTS, a pulse on RTS releases
// chip-select and DTR enables the bridge outputs.
//
// I/O errors do not stall the engine: the failed octet reads as zero and the
// first error is kept for Err.
type SerialBridge struct {
	mu   sync.Mutex
	port Port
	name string

	readTimeout time.Duration
	config      hspi.BusConfig
	err         error
}

// OpenSerialBridge opens a bridge on the given serial port
func OpenSerialBridge(portName string, baudRate int) (*SerialBridge, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	b := NewSerialBridge(port)
	b.name = fmt.Sprintf("%s @ %d baud", portName, baudRate)
	return b, nil
}

// NewSerialBridge wraps an already open port
func NewSerialBridge(port Port) *SerialBridge {
	return &SerialBridge{
		port:        port,
		name:        "serial bridge",
		readTimeout: DefaultReadTimeout,
	}
}

// String describes the bridge
func (b *SerialBridge) String() string {
	return b.name
}

// Configure implements hspi.Bus. The bridge runs its own SPI clock, so the
// config is recorded and the port prepared for octet-sized echo reads.
func (b *SerialBridge) Configure(cfg hspi.BusConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cfg.FrameBits != 8 {
		return fmt.Errorf("serial bridge supports 8-bit frames only, got %d", cfg.FrameBits)
	}
	if err := b.port.SetReadTimeout(b.readTimeout); err != nil {
		return fmt.Errorf("set read timeout: %w", err)
	}
	if err := b.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("reset input buffer: %w", err)
	}
	if err := b.port.SetRTS(false); err != nil {
		return fmt.Errorf("set RTS: %w", err)
	}
	b.config = cfg
	return nil
}

// Config returns the configuration applied by Configure
func (b *SerialBridge) Config() hspi.BusConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config
}

// EnablePins implements hspi.Bus by raising DTR
func (b *SerialBridge) EnablePins() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.port.SetDTR(true); err != nil {
		return fmt.Errorf("set DTR: %w", err)
	}
	return nil
}

// TrySendByte implements hspi.Bus
func (b *SerialBridge) TrySendByte(v byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, err := b.port.Write([]byte{v})
	if err != nil {
		b.fail(fmt.Errorf("write: %w", err))
		return true
	}
	return n == 1
}

// TryRecvByte implements hspi.Bus. A read timeout reports not-ready so the
// engine polls again.
func (b *SerialBridge) TryRecvByte() (byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return 0, true
	}

	var buf [1]byte
	n, err := b.port.Read(buf[:])
	if err != nil {
		b.fail(fmt.Errorf("read: %w", err))
		return 0, true
	}
	if n == 0 {
		return 0, false
	}
	return buf[0], true
}

// Release implements hspi.Bus with an RTS pulse
func (b *SerialBridge) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.port.SetRTS(true); err != nil {
		b.fail(fmt.Errorf("release: %w", err))
		return
	}
	if err := b.port.SetRTS(false); err != nil {
		b.fail(fmt.Errorf("release: %w", err))
	}
}

// Ready implements hspi.Handshake by reading CTS
func (b *SerialBridge) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return true
	}
	bits, err := b.port.GetModemStatusBits()
	if err != nil {
		b.fail(fmt.Errorf("modem status: %w", err))
		return true
	}
	return bits.CTS
}

// Err returns the first I/O error seen by the bridge
func (b *SerialBridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Close releases the port
func (b *SerialBridge) Close() error {
	return b.port.Close()
}

func (b *SerialBridge) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}
