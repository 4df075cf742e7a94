// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hspi

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// captureRecord is the on-disk form of an Event: a CBOR map with integer keys
type captureRecord struct {
	Kind   uint8  `cbor:"0,keyasint"`
	Time   int64  `cbor:"1,keyasint"` // Unix nanoseconds
	Phase  uint8  `cbor:"2,keyasint"`
	Bytes  []byte `cbor:"3,keyasint,omitempty"`
	From   uint8  `cbor:"4,keyasint,omitempty"`
	To     uint8  `cbor:"5,keyasint,omitempty"`
	Length int    `cbor:"6,keyasint,omitempty"`
	Marker uint8  `cbor:"7,keyasint,omitempty"`
	Polls  uint64 `cbor:"8,keyasint,omitempty"`
}

func recordFromEvent(ev Event) captureRecord {
	return captureRecord{
		Kind:   uint8(ev.Kind),
		Time:   ev.Time.UnixNano(),
		Phase:  uint8(ev.Phase),
		Bytes:  ev.Bytes,
		From:   uint8(ev.From),
		To:     uint8(ev.To),
		Length: ev.Length,
		Marker: ev.Marker,
		Polls:  ev.Polls,
	}
}

func (r captureRecord) event() Event {
	return Event{
		Kind:   EventKind(r.Kind),
		Time:   time.Unix(0, r.Time),
		Phase:  FrameKind(r.Phase),
		Bytes:  r.Bytes,
		From:   Mode(r.From),
		To:     Mode(r.To),
		Length: r.Length,
		Marker: r.Marker,
		Polls:  r.Polls,
	}
}

// CaptureWriter appends engine events to a stream of CBOR records
type CaptureWriter struct {
	mu  sync.Mutex
	enc *cbor.Encoder
	n   int
	err error
}

// NewCaptureWriter creates a capture writer on w
func NewCaptureWriter(w io.Writer) *CaptureWriter {
	return &CaptureWriter{enc: cbor.NewEncoder(w)}
}

// Observe records one event. After the first write error further events are
// dropped; the error is reported by Err.
func (c *CaptureWriter) Observe(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	if err := c.enc.Encode(recordFromEvent(ev)); err != nil {
		c.err = fmt.Errorf("capture record %d: %w", c.n, err)
		return
	}
	c.n++
}

// Count returns the number of records written
func (c *CaptureWriter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Err returns the first write error, if any
func (c *CaptureWriter) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// CaptureReader reads events back from a capture stream
type CaptureReader struct {
	dec *cbor.Decoder
}

// NewCaptureReader creates a capture reader on r
func NewCaptureReader(r io.Reader) *CaptureReader {
	return &CaptureReader{dec: cbor.NewDecoder(r)}
}

// Next returns the next event, or io.EOF at the end of the stream
func (c *CaptureReader) Next() (Event, error) {
	var rec captureRecord
	if err := c.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}
		return Event{}, fmt.Errorf("failed to decode capture record: %w", err)
	}
	if rec.Kind == 0 || EventKind(rec.Kind) > EventMarkerMismatch {
		return Event{}, fmt.Errorf("invalid capture record kind: %d", rec.Kind)
	}
	return rec.event(), nil
}
