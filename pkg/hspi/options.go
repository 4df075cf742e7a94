// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hspi

// Logger is an optional logging interface for protocol tracing.
// This allows integration with any logging framework.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// Config holds the engine configuration.
type Config struct {
	// Logger receives per-phase trace output (optional)
	Logger Logger

	// Observers receive engine events in registration order
	Observers []Observer

	// SendOnly disables Receive and transparent mode tracking. This is the
	// behavior of the early firmware that only pushed AT commands.
	SendOnly bool

	// SettleIterations is the delay after each chip-select release
	SettleIterations uint32
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Logger:           nopLogger{},
		SettleIterations: DelayLong,
	}
}

// Option is a functional option for configuring the Engine.
type Option func(*Config)

// WithLogger sets a logger for protocol tracing.
//
// Example:
//
//	eng := hspi.New(bus, hs, clk, hspi.WithLogger(myLogger))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithObserver registers an event observer. May be given more than once.
//
// Example:
//
//	stats := hspi.NewStatistics()
//	eng := hspi.New(bus, hs, clk, hspi.WithObserver(stats.Observe))
func WithObserver(fn Observer) Option {
	return func(c *Config) {
		if fn != nil {
			c.Observers = append(c.Observers, fn)
		}
	}
}

// WithLegacySendOnly builds an engine that only sends. Receive returns
// ErrReceiveUnsupported and the transparent mode stays OFF.
func WithLegacySendOnly() Option {
	return func(c *Config) {
		c.SendOnly = true
	}
}

// WithSettleIterations overrides the chip-select settle delay.
func WithSettleIterations(n uint32) Option {
	return func(c *Config) {
		c.SettleIterations = n
	}
}
