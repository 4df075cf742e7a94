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
	"go.bug.st/serial"
)

// bridgePort emulates bridge firmware in front of a simulated slave: each
// written octet is clocked into the slave and its reply queued for Read.
type bridgePort struct {
	slave *hspi.SimSlave

	rx       []byte
	rts      bool
	dtr      bool
	timeout  time.Duration
	resets   int
	closed   bool
	writeErr error
}

func newBridgePort(responder hspi.Responder) *bridgePort {
	return &bridgePort{slave: hspi.NewSimSlave(responder)}
}

func (p *bridgePort) Read(buf []byte) (int, error) {
	if len(p.rx) == 0 {
		return 0, nil
	}
	n := copy(buf, p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

func (p *bridgePort) Write(buf []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	for _, b := range buf {
		for !p.slave.TrySendByte(b) {
		}
		v, _ := p.slave.TryRecvByte()
		p.rx = append(p.rx, v)
	}
	return len(buf), nil
}

func (p *bridgePort) Close() error {
	p.closed = true
	return nil
}

func (p *bridgePort) ResetInputBuffer() error {
	p.resets++
	p.rx = nil
	return nil
}

func (p *bridgePort) SetDTR(dtr bool) error {
	p.dtr = dtr
	return nil
}

func (p *bridgePort) SetRTS(rts bool) error {
	if rts && !p.rts {
		p.slave.Release()
	}
	p.rts = rts
	return nil
}

func (p *bridgePort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{CTS: p.slave.Ready()}, nil
}

func (p *bridgePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func newBridgeEngine(t *testing.T, port *bridgePort) (*hspi.Engine, *SerialBridge) {
	bridge := NewSerialBridge(port)
	clock := &HostClock{Frequency: hspi.DefaultCPUFrequencyHz}
	eng := hspi.New(bridge, bridge, clock)
	require.NoError(t, eng.Initialize(hspi.DefaultSPIClockHz))
	return eng, bridge
}

func TestSerialBridgeInitialize(t *testing.T) {
	port := newBridgePort(nil)
	_, bridge := newBridgeEngine(t, port)

	require.True(t, port.dtr)
	require.False(t, port.rts)
	require.Equal(t, DefaultReadTimeout, port.timeout)
	require.Equal(t, 1, port.resets)
	require.Equal(t, uint32(1999), bridge.Config().Divider)
}

func TestSerialBridgeTransact(t *testing.T) {
	port := newBridgePort(hspi.ATResponder())
	eng, bridge := newBridgeEngine(t, port)

	var texts []string
	n, err := eng.Transact(context.Background(), []byte("AT\r\n"), make([]byte, 64), func(c hspi.Chunk) {
		texts = append(texts, c.Text())
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"AT    OK\r\n"}, texts)
	require.NoError(t, bridge.Err())

	cmds := port.slave.Commands()
	require.Len(t, cmds, 1)
	require.Equal(t, "AT\r\n", string(cmds[0]))
	// Three send phases and three receive phases, one RTS pulse each
	require.Equal(t, 6, port.slave.Releases())
}

func TestSerialBridgeTransparentMode(t *testing.T) {
	port := newBridgePort(hspi.ATResponder())
	eng, _ := newBridgeEngine(t, port)
	ctx := context.Background()
	buf := make([]byte, 64)

	_, err := eng.Transact(ctx, []byte(hspi.CmdTransparentStart), buf, nil)
	require.NoError(t, err)
	require.Equal(t, hspi.ModeOn, eng.Mode())

	_, err = eng.Transact(ctx, []byte("payload"), buf, nil)
	require.NoError(t, err)

	_, err = eng.Transact(ctx, []byte(hspi.CmdTransparentEnd), buf, nil)
	require.NoError(t, err)
	require.Equal(t, hspi.ModeEnding, eng.Mode())

	cmds := port.slave.Commands()
	require.Len(t, cmds, 3)
	require.Equal(t, "+++", string(cmds[2]))
}

func TestSerialBridgeWriteError(t *testing.T) {
	port := newBridgePort(nil)
	eng, bridge := newBridgeEngine(t, port)
	port.writeErr = errors.New("device unplugged")

	// The first frame surfaces the latched error
	err := eng.Send(context.Background(), []byte("AT\r\n"))
	require.ErrorIs(t, err, hspi.ErrLinkFault)
	require.Contains(t, err.Error(), "device unplugged")
	require.Error(t, bridge.Err())
	require.Contains(t, bridge.Err().Error(), "device unplugged")
}

func TestSerialBridgeFaultStopsReceive(t *testing.T) {
	port := newBridgePort(hspi.ATResponder())
	eng, _ := newBridgeEngine(t, port)

	buf := make([]byte, 64)
	_, err := eng.Transact(context.Background(), []byte("AT\r\n"), buf, nil)
	require.NoError(t, err)

	port.writeErr = errors.New("device unplugged")

	// Without a deadline the transaction must still end
	chunks, err := eng.Transact(context.Background(), []byte("AT\r\n"), buf, nil)
	require.ErrorIs(t, err, hspi.ErrLinkFault)
	require.Zero(t, chunks)

	chunks, err = eng.Receive(context.Background(), buf, nil)
	require.ErrorIs(t, err, hspi.ErrLinkFault)
	require.Zero(t, chunks)
}

func TestSerialBridgeRejectsWideFrames(t *testing.T) {
	bridge := NewSerialBridge(newBridgePort(nil))
	err := bridge.Configure(hspi.BusConfig{FrameBits: 16})
	require.Error(t, err)
}

func TestSerialBridgeReadTimeout(t *testing.T) {
	bridge := NewSerialBridge(newBridgePort(nil))
	_, ok := bridge.TryRecvByte()
	require.False(t, ok)
}

func TestSerialBridgeClose(t *testing.T) {
	port := newBridgePort(nil)
	bridge := NewSerialBridge(port)
	require.NoError(t, bridge.Close())
	require.True(t, port.closed)
}
