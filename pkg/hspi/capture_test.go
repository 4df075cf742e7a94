// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hspi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ============================================================
// Capture Tests
// ============================================================

func TestCapture_RoundTrip(t *testing.T) {
	var stream bytes.Buffer
	cw := NewCaptureWriter(&stream)
	eng, _, log := newTestEngine(t, ATResponder(), WithObserver(cw.Observe))

	ctx := context.Background()
	buf := make([]byte, 64)
	for _, cmd := range []string{"AT\r\n", CmdTransparentStart, "data", CmdTransparentEnd} {
		if _, err := eng.Transact(ctx, []byte(cmd), buf, nil); err != nil {
			t.Fatalf("Transact(%q) failed: %v", cmd, err)
		}
	}
	if err := cw.Err(); err != nil {
		t.Fatalf("capture error: %v", err)
	}

	want := log.all()
	if cw.Count() != len(want) {
		t.Fatalf("Count = %d, want %d", cw.Count(), len(want))
	}

	r := NewCaptureReader(&stream)
	for i, w := range want {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if got.Kind != w.Kind || got.Phase != w.Phase {
			t.Errorf("record %d = %s/%s, want %s/%s", i, got.Kind, got.Phase, w.Kind, w.Phase)
		}
		if !bytes.Equal(got.Bytes, w.Bytes) {
			t.Errorf("record %d bytes = % x, want % x", i, got.Bytes, w.Bytes)
		}
		if got.From != w.From || got.To != w.To {
			t.Errorf("record %d mode = %s->%s, want %s->%s", i, got.From, got.To, w.From, w.To)
		}
		if got.Length != w.Length || got.Marker != w.Marker || got.Polls != w.Polls {
			t.Errorf("record %d = %+v, want %+v", i, got, w)
		}
		if !got.Time.Equal(w.Time) {
			t.Errorf("record %d time = %v, want %v", i, got.Time, w.Time)
		}
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF at end, got %v", err)
	}
}

func TestCaptureReader_Empty(t *testing.T) {
	r := NewCaptureReader(bytes.NewReader(nil))
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestCaptureReader_InvalidKind(t *testing.T) {
	for _, kind := range []uint8{0, uint8(EventMarkerMismatch) + 1} {
		data, err := cbor.Marshal(captureRecord{Kind: kind, Time: time.Now().UnixNano()})
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		r := NewCaptureReader(bytes.NewReader(data))
		_, err = r.Next()
		if err == nil || !strings.Contains(err.Error(), "invalid capture record kind") {
			t.Errorf("kind %d: expected invalid kind error, got %v", kind, err)
		}
	}
}

func TestCaptureReader_Garbage(t *testing.T) {
	r := NewCaptureReader(bytes.NewReader([]byte{0xFF, 0xFF, 0xFF}))
	_, err := r.Next()
	if err == nil || errors.Is(err, io.EOF) {
		t.Errorf("expected decode error, got %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestCaptureWriter_StopsAfterError(t *testing.T) {
	cw := NewCaptureWriter(failingWriter{})
	cw.Observe(Event{Kind: EventHandshake})
	cw.Observe(Event{Kind: EventHandshake})

	if cw.Err() == nil {
		t.Fatal("expected write error")
	}
	if !strings.Contains(cw.Err().Error(), "disk full") {
		t.Errorf("Err() = %v", cw.Err())
	}
	if cw.Count() != 0 {
		t.Errorf("Count = %d, want 0", cw.Count())
	}
}
