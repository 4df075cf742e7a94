// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"time"

	"github.com/Thermoquad/atbridge/pkg/hspi"
)

// DefaultIteration approximates one busy-loop iteration on a 320 MHz core
const DefaultIteration = 10 * time.Nanosecond

// HostClock implements hspi.Clock with time.Sleep
type HostClock struct {
	// Frequency reported to Initialize for the divider computation
	Frequency uint32

	// Iteration is the wall time of one delay iteration
	Iteration time.Duration
}

// NewHostClock returns a clock reporting the reference board frequency
func NewHostClock() *HostClock {
	return &HostClock{
		Frequency: hspi.DefaultCPUFrequencyHz,
		Iteration: DefaultIteration,
	}
}

// Delay implements hspi.Clock
func (c *HostClock) Delay(iterations uint32) {
	if d := c.Duration(iterations); d > 0 {
		time.Sleep(d)
	}
}

// Duration returns the wall time Delay waits for the given iterations
func (c *HostClock) Duration(iterations uint32) time.Duration {
	return time.Duration(iterations) * c.Iteration
}

// FrequencyHz implements hspi.Clock
func (c *HostClock) FrequencyHz() uint32 {
	return c.Frequency
}
