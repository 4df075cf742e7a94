// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package console reads operator input for the AT console: bounded lines
// terminated by CR or LF, and credentials with echo disabled.
package console

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
)

// ErrInvalidCodeUnit is returned when the source yields no valid octet: a
// read deadline expired, or the source kept returning empty reads. The
// partial line is discarded; callers read again.
var ErrInvalidCodeUnit = errors.New("input character out of range")

// LineReader reads terminal lines one octet at a time. Octets are passed
// through unchanged, so UTF-8 and Latin-1 input both arrive as typed.
type LineReader struct {
	r *bufio.Reader
}

// NewLineReader creates a line reader on r
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReader(r)}
}

// ReadLine reads until CR or LF and returns the line without its terminator.
//
// At most size-1 octets are kept: when size octets arrive without a
// terminator the last one is dropped, the line is returned and the rest of
// the input is left for the next call. A CR immediately followed by an
// already buffered LF counts as one terminator.
func (l *LineReader) ReadLine(size int) (string, error) {
	var sb strings.Builder

	for i := 0; i < size; i++ {
		c, err := l.r.ReadByte()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF) && sb.Len() > 0:
				return sb.String(), nil
			case errors.Is(err, io.ErrNoProgress), errors.Is(err, os.ErrDeadlineExceeded):
				return "", ErrInvalidCodeUnit
			}
			return "", err
		}

		switch c {
		case '\r':
			l.skipLF()
			return sb.String(), nil
		case '\n':
			return sb.String(), nil
		}
		if i < size-1 {
			sb.WriteByte(c)
		}
	}
	return sb.String(), nil
}

// ReadLineRetry calls ReadLine until it returns something other than
// ErrInvalidCodeUnit
func (l *LineReader) ReadLineRetry(size int) (string, error) {
	for {
		line, err := l.ReadLine(size)
		if errors.Is(err, ErrInvalidCodeUnit) {
			continue
		}
		return line, err
	}
}

func (l *LineReader) skipLF() {
	if l.r.Buffered() == 0 {
		return
	}
	if b, err := l.r.Peek(1); err == nil && b[0] == '\n' {
		l.r.ReadByte()
	}
}
