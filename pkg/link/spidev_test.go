// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/atbridge/pkg/hspi"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

type fakeSPIConn struct {
	written []byte
	reply   byte
	err     error
}

func (c *fakeSPIConn) String() string      { return "fake-conn" }
func (c *fakeSPIConn) Duplex() conn.Duplex { return conn.Full }

func (c *fakeSPIConn) TxPackets([]spi.Packet) error {
	return errors.New("not supported")
}

func (c *fakeSPIConn) Tx(w, r []byte) error {
	if c.err != nil {
		return c.err
	}
	c.written = append(c.written, w...)
	for i := range r {
		r[i] = c.reply
	}
	return nil
}

type fakeSPIPort struct {
	conn   *fakeSPIConn
	freq   physic.Frequency
	mode   spi.Mode
	bits   int
	closed bool
}

func (p *fakeSPIPort) String() string { return "SPI0.0" }

func (p *fakeSPIPort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	p.freq = f
	p.mode = mode
	p.bits = bits
	return p.conn, nil
}

func (p *fakeSPIPort) LimitSpeed(physic.Frequency) error { return nil }

func (p *fakeSPIPort) Close() error {
	p.closed = true
	return nil
}

func newTestSpidev() (*Spidev, *fakeSPIPort, *gpiotest.Pin) {
	port := &fakeSPIPort{conn: &fakeSPIConn{reply: 0x42}}
	pin := &gpiotest.Pin{N: "GPIO25", Num: 25, L: gpio.Low}
	return NewSpidev(port, pin), port, pin
}

func testBusConfig() hspi.BusConfig {
	return hspi.BusConfig{
		FrameBits:  8,
		MSBFirst:   true,
		Protocol:   hspi.ProtocolSingle,
		Divider:    1999,
		ClockHz:    80000,
		CSIdleHigh: true,
		CSMode:     hspi.CSModeAuto,
		CSIndex:    2,
	}
}

func TestSpidevConfigure(t *testing.T) {
	dev, port, _ := newTestSpidev()

	require.Error(t, dev.EnablePins())
	require.NoError(t, dev.Configure(testBusConfig()))
	require.NoError(t, dev.EnablePins())

	require.Equal(t, 80*physic.KiloHertz, port.freq)
	require.Equal(t, spi.Mode0, port.mode)
	require.Equal(t, 8, port.bits)
}

func TestSpidevConfigureModes(t *testing.T) {
	dev, port, _ := newTestSpidev()

	cfg := testBusConfig()
	cfg.MSBFirst = false
	cfg.CSMode = hspi.CSModeOff
	require.NoError(t, dev.Configure(cfg))
	require.NotZero(t, port.mode&spi.LSBFirst)
	require.NotZero(t, port.mode&spi.NoCS)

	cfg = testBusConfig()
	cfg.Protocol = hspi.ProtocolQuad
	require.Error(t, dev.Configure(cfg))
}

func TestSpidevOctetExchange(t *testing.T) {
	dev, port, _ := newTestSpidev()
	require.NoError(t, dev.Configure(testBusConfig()))

	_, ok := dev.TryRecvByte()
	require.False(t, ok)

	require.True(t, dev.TrySendByte(0x02))
	b, ok := dev.TryRecvByte()
	require.True(t, ok)
	require.Equal(t, byte(0x42), b)
	require.Equal(t, []byte{0x02}, port.conn.written)
	require.NoError(t, dev.Err())
}

func TestSpidevTransferError(t *testing.T) {
	dev, port, _ := newTestSpidev()
	require.NoError(t, dev.Configure(testBusConfig()))
	port.conn.err = errors.New("ioctl failed")

	require.True(t, dev.TrySendByte(0x01))
	b, ok := dev.TryRecvByte()
	require.True(t, ok)
	require.Zero(t, b)
	require.Error(t, dev.Err())
}

func TestSpidevFaultStopsEngine(t *testing.T) {
	dev, port, pin := newTestSpidev()
	pin.L = gpio.High
	eng := hspi.New(dev, dev, &HostClock{Frequency: hspi.DefaultCPUFrequencyHz})
	require.NoError(t, eng.Initialize(hspi.DefaultSPIClockHz))
	port.conn.err = errors.New("ioctl failed")

	_, err := eng.Receive(context.Background(), make([]byte, 16), nil)
	require.ErrorIs(t, err, hspi.ErrLinkFault)
	require.Contains(t, err.Error(), "ioctl failed")
}

func TestSpidevHandshake(t *testing.T) {
	dev, _, pin := newTestSpidev()
	require.False(t, dev.Ready())

	pin.Lock()
	pin.L = gpio.High
	pin.Unlock()
	require.True(t, dev.Ready())
}

func TestSpidevClose(t *testing.T) {
	dev, port, _ := newTestSpidev()
	require.NoError(t, dev.Close())
	require.True(t, port.closed)
}

// ============================================================
// Clock
// ============================================================

func TestHostClock(t *testing.T) {
	c := NewHostClock()
	require.Equal(t, uint32(hspi.DefaultCPUFrequencyHz), c.FrequencyHz())
	require.Equal(t, 100*time.Microsecond, c.Duration(hspi.DelayLong))
	require.Equal(t, time.Microsecond, c.Duration(hspi.DelayShort))

	c.Iteration = 0
	start := time.Now()
	c.Delay(hspi.DelayLong)
	require.Less(t, time.Since(start), 50*time.Millisecond)
}
