// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hspi

import (
	"errors"
	"testing"
)

// ============================================================
// Length Encoding Tests
// ============================================================

func TestEncodeLength_RoundTripAll(t *testing.T) {
	for n := 0; n <= MaxLength; n++ {
		lo, hi, err := EncodeLength(n)
		if err != nil {
			t.Fatalf("EncodeLength(%d) error: %v", n, err)
		}
		if lo != byte(n&0x7F) {
			t.Fatalf("EncodeLength(%d) low = 0x%02X, want 0x%02X", n, lo, n&0x7F)
		}
		if hi != byte(n>>7) {
			t.Fatalf("EncodeLength(%d) high = 0x%02X, want 0x%02X", n, hi, n>>7)
		}
		if got := DecodeLength(lo, hi); got != n {
			t.Fatalf("DecodeLength(EncodeLength(%d)) = %d", n, got)
		}
	}
}

func TestEncodeLength_Overflow(t *testing.T) {
	for _, n := range []int{-1, MaxLength + 1, 65535} {
		_, _, err := EncodeLength(n)
		if !errors.Is(err, ErrLengthOverflow) {
			t.Errorf("EncodeLength(%d) error = %v, want ErrLengthOverflow", n, err)
		}
	}
}

func TestEncodeLength_KnownValues(t *testing.T) {
	tests := []struct {
		name string
		n    int
		lo   byte
		hi   byte
	}{
		{"zero", 0, 0x00, 0x00},
		{"AT command", 4, 0x04, 0x00},
		{"max single byte", 127, 0x7F, 0x00},
		{"first carry", 128, 0x00, 0x01},
		{"buffer size", 4096, 0x00, 0x20},
		{"max", MaxLength, 0x7F, 0xFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi, err := EncodeLength(tt.n)
			if err != nil {
				t.Fatalf("EncodeLength error: %v", err)
			}
			if lo != tt.lo || hi != tt.hi {
				t.Errorf("EncodeLength(%d) = %02x %02x, want %02x %02x", tt.n, lo, hi, tt.lo, tt.hi)
			}
		})
	}
}

// ============================================================
// Frame Construction Tests
// ============================================================

func TestNewHeaderFrame(t *testing.T) {
	tests := []struct {
		opcode byte
		want   []byte
	}{
		{OpMasterSend, []byte{0x02, 0x00, 0x00, 0x00}},
		{OpMasterRequest, []byte{0x01, 0x00, 0x00, 0x00}},
	}

	for _, tt := range tests {
		f := NewHeaderFrame(tt.opcode)
		if f.Kind != FrameHeader {
			t.Errorf("Kind = %v, want header", f.Kind)
		}
		if string(f.Bytes) != string(tt.want) {
			t.Errorf("NewHeaderFrame(0x%02X) = % x, want % x", tt.opcode, f.Bytes, tt.want)
		}
		if f.Opcode() != tt.opcode {
			t.Errorf("Opcode() = 0x%02X, want 0x%02X", f.Opcode(), tt.opcode)
		}
	}
}

func TestNewLengthFrame(t *testing.T) {
	f, err := NewLengthFrame(300, MarkerOutgoing)
	if err != nil {
		t.Fatalf("NewLengthFrame error: %v", err)
	}
	want := []byte{300 & 0x7F, 300 >> 7, 0x00, 'A'}
	if string(f.Bytes) != string(want) {
		t.Errorf("NewLengthFrame(300) = % x, want % x", f.Bytes, want)
	}
	if f.Length() != 300 {
		t.Errorf("Length() = %d, want 300", f.Length())
	}
	if f.Marker() != 'A' {
		t.Errorf("Marker() = %q, want 'A'", f.Marker())
	}
}

func TestNewLengthFrame_Overflow(t *testing.T) {
	_, err := NewLengthFrame(MaxLength+1, MarkerOutgoing)
	if !errors.Is(err, ErrLengthOverflow) {
		t.Errorf("expected ErrLengthOverflow, got %v", err)
	}
}

func TestFrameAccessors_WrongKind(t *testing.T) {
	p := NewPayloadFrame([]byte{0x02, 0x05, 0x00, 'A'})
	if p.Opcode() != 0 {
		t.Errorf("payload Opcode() = 0x%02X, want 0", p.Opcode())
	}
	if p.Length() != 0 {
		t.Errorf("payload Length() = %d, want 0", p.Length())
	}
	if p.Marker() != 0 {
		t.Errorf("payload Marker() = %q, want 0", p.Marker())
	}
}

func TestFrameKindString(t *testing.T) {
	if FrameHeader.String() != "header" || FrameLength.String() != "length" || FramePayload.String() != "payload" {
		t.Error("unexpected frame kind names")
	}
	if FrameKind(9).String() != "frame(9)" {
		t.Errorf("unknown kind = %q", FrameKind(9).String())
	}
}

// ============================================================
// Divider Tests
// ============================================================

func TestDivider(t *testing.T) {
	tests := []struct {
		name  string
		cpuHz uint32
		spiHz uint32
		want  uint32
		err   bool
	}{
		{"reference board", 320000000, 80000, 1999, false},
		{"fastest", 320000000, 160000000, 0, false},
		{"16 MHz crystal", 16000000, 1000000, 7, false},
		{"zero spi clock", 320000000, 0, 0, true},
		{"spi faster than cpu", 1000000, 1000000, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Divider(tt.cpuHz, tt.spiHz)
			if tt.err {
				if !errors.Is(err, ErrInvalidClock) {
					t.Errorf("expected ErrInvalidClock, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Divider error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Divider(%d, %d) = %d, want %d", tt.cpuHz, tt.spiHz, got, tt.want)
			}
		})
	}
}

// ============================================================
// Mode Transition Tests
// ============================================================

func TestNextMode(t *testing.T) {
	tests := []struct {
		name    string
		cur     Mode
		msg     string
		want    Mode
		wantLen int
	}{
		{"plain command stays off", ModeOff, "AT\r\n", ModeOff, 4},
		{"start from off", ModeOff, CmdTransparentStart, ModeOn, len(CmdTransparentStart)},
		{"data while on", ModeOn, "hello", ModeOn, 5},
		{"start while on stays on", ModeOn, CmdTransparentStart, ModeOn, len(CmdTransparentStart)},
		{"end from on", ModeOn, CmdTransparentEnd, ModeEnding, 3},
		{"end while off", ModeOff, CmdTransparentEnd, ModeEnding, 3},
		{"end while ending", ModeEnding, CmdTransparentEnd, ModeEnding, 3},
		{"ending reverts", ModeEnding, "AT\r\n", ModeOff, 4},
		{"ending then start", ModeEnding, CmdTransparentStart, ModeOn, len(CmdTransparentStart)},
		{"end without terminator", ModeOn, "+++", ModeOn, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n := nextMode(tt.cur, []byte(tt.msg))
			if got != tt.want {
				t.Errorf("mode = %s, want %s", got, tt.want)
			}
			if n != tt.wantLen {
				t.Errorf("length = %d, want %d", n, tt.wantLen)
			}
		})
	}
}

func TestModeString(t *testing.T) {
	if ModeOff.String() != "OFF" || ModeOn.String() != "ON" || ModeEnding.String() != "ENDING" {
		t.Error("unexpected mode names")
	}
}
