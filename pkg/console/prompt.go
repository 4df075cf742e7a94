// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package console

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// LineSize bounds console lines, matching the firmware's input buffer
const LineSize = 1024

// Prompter asks the operator for values
type Prompter struct {
	in  *LineReader
	out io.Writer
	fd  int // Terminal for hidden input, -1 when none
}

// NewPrompter prompts on out and reads from in. Hidden input is used when
// in is a terminal.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &Prompter{in: NewLineReader(in), out: out, fd: fd}
}

// Reader returns the line reader behind the prompter
func (p *Prompter) Reader() *LineReader {
	return p.in
}

// Line prints label and reads one line
func (p *Prompter) Line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadLineRetry(LineSize)
	fmt.Fprint(p.out, "\r\n")
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", label, err)
	}
	return line, nil
}

// Secret prints label and reads one line without echo when possible
func (p *Prompter) Secret(label string) (string, error) {
	if p.fd < 0 {
		return p.Line(label)
	}

	fmt.Fprint(p.out, label)
	secret, err := term.ReadPassword(p.fd)
	fmt.Fprint(p.out, "\r\n")
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", label, err)
	}
	return string(secret), nil
}

// IsTerminal reports whether f is an interactive terminal
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
