// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hspi

import "fmt"

// FrameKind identifies the phase a frame belongs to
type FrameKind uint8

const (
	FrameHeader FrameKind = iota
	FrameLength
	FramePayload
)

// String returns the phase name used in trace output
func (k FrameKind) String() string {
	switch k {
	case FrameHeader:
		return "header"
	case FrameLength:
		return "length"
	case FramePayload:
		return "payload"
	default:
		return fmt.Sprintf("frame(%d)", uint8(k))
	}
}

// Frame is one unit of a three-phase exchange
type Frame struct {
	Kind  FrameKind
	Bytes []byte
}

// NewHeaderFrame builds the 4-byte header frame for the given opcode
func NewHeaderFrame(opcode byte) Frame {
	return Frame{
		Kind:  FrameHeader,
		Bytes: []byte{opcode, 0x00, 0x00, 0x00},
	}
}

// NewLengthFrame builds the 4-byte length frame carrying n and the
// direction marker. Lengths above MaxLength are rejected.
func NewLengthFrame(n int, marker byte) (Frame, error) {
	lo, hi, err := EncodeLength(n)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Kind:  FrameLength,
		Bytes: []byte{lo, hi, 0x00, marker},
	}, nil
}

// NewPayloadFrame wraps raw payload bytes
func NewPayloadFrame(data []byte) Frame {
	return Frame{Kind: FramePayload, Bytes: data}
}

// EncodeLength splits n into the low 7 bits and the remaining high bits
func EncodeLength(n int) (lo, hi byte, err error) {
	if n < 0 || n > MaxLength {
		return 0, 0, fmt.Errorf("%w: %d (max %d)", ErrLengthOverflow, n, MaxLength)
	}
	return byte(n & lengthLowMask), byte(n >> lengthShift), nil
}

// DecodeLength joins the two length bytes back into a length
func DecodeLength(lo, hi byte) int {
	return int(hi)<<lengthShift + int(lo)
}

// Opcode returns byte 0 of a header frame
func (f Frame) Opcode() byte {
	if f.Kind != FrameHeader || len(f.Bytes) == 0 {
		return 0
	}
	return f.Bytes[0]
}

// Length decodes a length frame. Returns 0 for other frame kinds.
func (f Frame) Length() int {
	if f.Kind != FrameLength || len(f.Bytes) < LengthSize {
		return 0
	}
	return DecodeLength(f.Bytes[0], f.Bytes[1])
}

// Marker returns the direction marker of a length frame
func (f Frame) Marker() byte {
	if f.Kind != FrameLength || len(f.Bytes) < LengthSize {
		return 0
	}
	return f.Bytes[3]
}
