// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/atbridge/pkg/config"
	"github.com/Thermoquad/atbridge/pkg/console"
	"github.com/Thermoquad/atbridge/pkg/hspi"
	"github.com/Thermoquad/atbridge/pkg/link"
)

// deviceLink is an engine on an opened bus, with the observers the
// commands share. It implements console.Executor.
type deviceLink struct {
	engine  *hspi.Engine
	session *console.Session
	stats   *hspi.Statistics
	trace   *traceSink
	info    string

	hal       io.Closer
	halErr    func() error
	capture   *hspi.CaptureWriter
	captureFd *os.File
}

// openLink opens the link selected by the configuration and initializes the
// engine on it. Trace lines go to traceOut when --trace is set.
func openLink(traceOut io.Writer) (*deviceLink, error) {
	l := &deviceLink{
		stats: hspi.NewStatistics(),
		trace: &traceSink{out: traceOut},
	}

	var (
		bus   hspi.Bus
		hs    hspi.Handshake
		clock hspi.Clock
	)

	switch cfg.Link.Driver {
	case config.DriverSim:
		slave := hspi.NewSimSlave(hspi.ATResponder())
		slave.SetFrequency(cfg.Link.CPUFrequencyHz)
		bus, hs, clock = slave, slave, slave
		l.info = "Simulated AT slave"

	case config.DriverSerial:
		if cfg.Link.Port == "" {
			return nil, fmt.Errorf("--port is required for the serial driver (or use --sim)")
		}
		bridge, err := link.OpenSerialBridge(cfg.Link.Port, cfg.Link.Baud)
		if err != nil {
			return nil, err
		}
		bus, hs, clock = bridge, bridge, hostClock()
		l.hal, l.halErr = bridge, bridge.Err
		l.info = fmt.Sprintf("Serial: %s @ %d baud", cfg.Link.Port, cfg.Link.Baud)

	case config.DriverSpidev:
		if cfg.Link.Spidev == "" {
			return nil, fmt.Errorf("--spidev is required for the spidev driver")
		}
		dev, err := link.OpenSpidev(cfg.Link.Spidev, cfg.Link.HandshakePin)
		if err != nil {
			return nil, err
		}
		bus, hs, clock = dev, dev, hostClock()
		l.hal, l.halErr = dev, dev.Err
		l.info = fmt.Sprintf("spidev: %s, handshake %s", cfg.Link.Spidev, cfg.Link.HandshakePin)

	default:
		return nil, fmt.Errorf("unknown link driver %q", cfg.Link.Driver)
	}

	opts := []hspi.Option{
		hspi.WithLogger(glogLogger{}),
		hspi.WithObserver(l.stats.Observe),
		hspi.WithSettleIterations(cfg.Link.SettleIterations),
	}
	if traceFrames {
		opts = append(opts, hspi.WithObserver(l.trace.Observe))
	}
	if cfg.Link.LegacySendOnly {
		opts = append(opts, hspi.WithLegacySendOnly())
	}
	if cfg.Capture.File != "" {
		f, err := os.Create(cfg.Capture.File)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to create capture file: %w", err)
		}
		l.captureFd = f
		l.capture = hspi.NewCaptureWriter(f)
		opts = append(opts, hspi.WithObserver(l.capture.Observe))
	}

	l.engine = hspi.New(bus, hs, clock, opts...)
	if err := l.engine.Initialize(cfg.Link.SPIClockHz); err != nil {
		l.Close()
		return nil, err
	}
	l.session = console.NewSession(l.engine)
	return l, nil
}

func hostClock() *link.HostClock {
	clock := link.NewHostClock()
	clock.Frequency = cfg.Link.CPUFrequencyHz
	return clock
}

// Exec runs one console line, bounded by --handshake-timeout when set
func (l *deviceLink) Exec(ctx context.Context, line string) (console.Reply, error) {
	if cfg.Link.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Link.HandshakeTimeout)
		defer cancel()
	}

	reply, err := l.session.Exec(ctx, line)
	if err != nil {
		return reply, err
	}
	if l.halErr != nil {
		if err := l.halErr(); err != nil {
			return reply, fmt.Errorf("link failed: %w", err)
		}
	}
	return reply, nil
}

// Mode implements console.Executor
func (l *deviceLink) Mode() hspi.Mode {
	return l.engine.Mode()
}

// Close releases the bus and finishes the capture file
func (l *deviceLink) Close() error {
	var errs []error
	if l.hal != nil {
		errs = append(errs, l.hal.Close())
	}
	if l.capture != nil {
		errs = append(errs, l.capture.Err())
	}
	if l.captureFd != nil {
		errs = append(errs, l.captureFd.Close())
	}
	return errors.Join(errs...)
}
