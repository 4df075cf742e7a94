// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hspi

import (
	"errors"
	"fmt"
)

var (
	// ErrLengthOverflow is returned when a message does not fit the 15-bit length field
	ErrLengthOverflow = errors.New("length exceeds 15-bit length field")

	// ErrInvalidClock is returned when no SPI divider can produce the requested clock
	ErrInvalidClock = errors.New("invalid SPI clock")

	// ErrReceiveUnsupported is returned by engines built in legacy send-only mode
	ErrReceiveUnsupported = errors.New("receive not supported in send-only mode")

	// ErrLinkFault is returned when the bus or handshake line reports an I/O error
	ErrLinkFault = errors.New("link fault")
)

// WaitPoint names the busy-wait a cancelled operation was blocked in
type WaitPoint string

const (
	WaitTransmit  WaitPoint = "transmit register"
	WaitReceive   WaitPoint = "receive register"
	WaitHandshake WaitPoint = "handshake"
)

// WaitError reports a busy-wait abandoned because the caller's context ended.
// Without a deadline or cancellation on the context the engine never returns one.
type WaitError struct {
	Point WaitPoint
	Phase FrameKind
	Err   error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("waiting for %s after %s phase: %v", e.Point, e.Phase, e.Err)
}

func (e *WaitError) Unwrap() error {
	return e.Err
}

// faultError wraps an I/O error latched by the HAL with the phase it
// surfaced in
func faultError(phase FrameKind, err error) error {
	return fmt.Errorf("%w after %s phase: %w", ErrLinkFault, phase, err)
}
