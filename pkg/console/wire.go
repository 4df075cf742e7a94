// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package console

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/atbridge/pkg/hspi"
	"github.com/fxamacker/cbor/v2"
)

// RemoteError carries a failure reported by the far end of a remote console
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string {
	return "remote: " + e.Msg
}

type wireChunk struct {
	Length int    `cbor:"0,keyasint"`
	Marker uint8  `cbor:"1,keyasint"`
	Data   []byte `cbor:"2,keyasint"`
}

type wireReply struct {
	Chunks []wireChunk `cbor:"0,keyasint,omitempty"`
	Mode   uint8       `cbor:"1,keyasint"`
	Error  string      `cbor:"2,keyasint,omitempty"`
}

// EncodeReply encodes a reply and the error that ended it, if any, as one
// CBOR message
func EncodeReply(r Reply, err error) ([]byte, error) {
	w := wireReply{Mode: uint8(r.Mode)}
	for _, c := range r.Chunks {
		w.Chunks = append(w.Chunks, wireChunk{Length: c.Length, Marker: c.Marker, Data: c.Data})
	}
	if err != nil {
		w.Error = err.Error()
	}
	return cbor.Marshal(w)
}

// DecodeReply decodes a message built by EncodeReply. A reported failure is
// returned as a *RemoteError alongside the partial reply.
func DecodeReply(data []byte) (Reply, error) {
	var w wireReply
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Reply{}, fmt.Errorf("failed to decode reply: %w", err)
	}
	if w.Mode > uint8(hspi.ModeEnding) {
		return Reply{}, fmt.Errorf("invalid reply mode: %d", w.Mode)
	}

	r := Reply{Mode: hspi.Mode(w.Mode)}
	for i, c := range w.Chunks {
		if c.Length < len(c.Data) {
			return Reply{}, errors.New("reply chunk longer than announced")
		}
		r.Chunks = append(r.Chunks, hspi.Chunk{Index: i, Length: c.Length, Marker: c.Marker, Data: c.Data})
	}
	if w.Error != "" {
		return r, &RemoteError{Msg: w.Error}
	}
	return r, nil
}
