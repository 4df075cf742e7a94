// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package console

import (
	"context"
	"sync"

	"github.com/Thermoquad/atbridge/pkg/hspi"
)

// Console prompts
const (
	PromptCommand     = "* Enter AT command: "
	PromptTransparent = "* ----> "
)

// LineTerminator is appended to every console line before it is sent
const LineTerminator = "\r\n"

// BufferSize is the receive buffer handed to the engine for each line
const BufferSize = 4096

// Prompt returns the console prompt for mode
func Prompt(m hspi.Mode) string {
	if m == hspi.ModeOn {
		return PromptTransparent
	}
	return PromptCommand
}

// Reply is what the device answered to one console line
type Reply struct {
	Chunks []hspi.Chunk // Data is owned by the reply
	Mode   hspi.Mode    // Transparent mode after the line was sent
}

// Lines returns the console output for each chunk
func (r Reply) Lines() []string {
	lines := make([]string, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		lines = append(lines, hspi.FormatChunk(c))
	}
	return lines
}

// Executor runs console lines against a device, local or remote
type Executor interface {
	Exec(ctx context.Context, line string) (Reply, error)
	Mode() hspi.Mode
}

// Transactor is the part of hspi.Engine a Session needs
type Transactor interface {
	Transact(ctx context.Context, msg, buf []byte, fn hspi.ChunkFunc) (int, error)
	Mode() hspi.Mode
}

// Session runs console lines through an engine
type Session struct {
	mu  sync.Mutex
	t   Transactor
	buf []byte
}

// NewSession creates a session on t
func NewSession(t Transactor) *Session {
	return &Session{t: t, buf: make([]byte, BufferSize)}
}

// Exec sends line with LineTerminator appended and collects the response
func (s *Session) Exec(ctx context.Context, line string) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reply Reply
	_, err := s.t.Transact(ctx, []byte(line+LineTerminator), s.buf, func(c hspi.Chunk) {
		c.Data = append([]byte(nil), c.Data...)
		reply.Chunks = append(reply.Chunks, c)
	})
	reply.Mode = s.t.Mode()
	return reply, err
}

// Mode returns the engine's transparent mode
func (s *Session) Mode() hspi.Mode {
	return s.t.Mode()
}
