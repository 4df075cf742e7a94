// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"sync"

	"github.com/Thermoquad/atbridge/pkg/hspi"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Spidev drives the slave from a Linux SPI controller with the handshake
// line on a GPIO input. Each octet is its own transfer, so the kernel
// toggles chip-select per octet the way the FE310 does in auto mode.
type Spidev struct {
	mu   sync.Mutex
	port spi.PortCloser
	conn spi.Conn
	hs   gpio.PinIn

	rx  []byte
	err error
}

// OpenSpidev opens a SPI port ("/dev/spidev0.0", "SPI0.0" or "" for the
// first one) and a handshake pin by GPIO name ("GPIO25")
func OpenSpidev(portName, handshakePin string) (*Spidev, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", portName, err)
	}

	pin := gpioreg.ByName(handshakePin)
	if pin == nil {
		port.Close()
		return nil, fmt.Errorf("handshake pin %q not found", handshakePin)
	}
	if err := pin.In(gpio.PullDown, gpio.NoEdge); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to configure handshake pin %s: %w", pin, err)
	}

	return NewSpidev(port, pin), nil
}

// NewSpidev wraps an open port and a configured input pin
func NewSpidev(port spi.PortCloser, hs gpio.PinIn) *Spidev {
	return &Spidev{port: port, hs: hs}
}

// String describes the port and handshake pin
func (s *Spidev) String() string {
	return fmt.Sprintf("%s, handshake %s", s.port, s.hs)
}

// Configure implements hspi.Bus
func (s *Spidev) Configure(cfg hspi.BusConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.Protocol != hspi.ProtocolSingle {
		return fmt.Errorf("spidev supports single-line SPI only")
	}

	mode := spi.Mode0
	if !cfg.MSBFirst {
		mode |= spi.LSBFirst
	}
	if cfg.CSMode == hspi.CSModeOff {
		mode |= spi.NoCS
	}

	c, err := s.port.Connect(physic.Frequency(cfg.ClockHz)*physic.Hertz, mode, int(cfg.FrameBits))
	if err != nil {
		return fmt.Errorf("connect %s: %w", s.port, err)
	}
	s.conn = c
	return nil
}

// EnablePins implements hspi.Bus. The kernel owns the pins, so this only
// checks that Configure ran.
func (s *Spidev) EnablePins() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("spidev not configured")
	}
	return nil
}

// TrySendByte implements hspi.Bus with a one-octet full-duplex transfer.
// A failed transfer reads back as zero and the first error is kept for Err.
func (s *Spidev) TrySendByte(b byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r [1]byte
	if s.conn == nil {
		s.fail(fmt.Errorf("spidev not configured"))
	} else if err := s.conn.Tx([]byte{b}, r[:]); err != nil {
		s.fail(fmt.Errorf("tx: %w", err))
	}
	s.rx = append(s.rx, r[0])
	return true
}

// TryRecvByte implements hspi.Bus
func (s *Spidev) TryRecvByte() (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.rx) == 0 {
		return 0, false
	}
	b := s.rx[0]
	s.rx = s.rx[1:]
	return b, true
}

// Release implements hspi.Bus. Chip-select already dropped at the end of
// the last transfer.
func (s *Spidev) Release() {}

// Ready implements hspi.Handshake
func (s *Spidev) Ready() bool {
	return s.hs.Read() == gpio.High
}

// Err returns the first transfer error
func (s *Spidev) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the SPI port
func (s *Spidev) Close() error {
	return s.port.Close()
}

func (s *Spidev) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}
