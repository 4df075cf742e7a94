// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Thermoquad/atbridge/pkg/hspi"
	"github.com/golang/glog"
)

// glogLogger sends engine traces to glog. Debug needs -v=2, Info -v=1.
type glogLogger struct{}

func (glogLogger) Debug(msg string, keysAndValues ...interface{}) {
	if glog.V(2) {
		glog.InfoDepth(1, formatKV(msg, keysAndValues))
	}
}

func (glogLogger) Info(msg string, keysAndValues ...interface{}) {
	if glog.V(1) {
		glog.InfoDepth(1, formatKV(msg, keysAndValues))
	}
}

func (glogLogger) Error(msg string, keysAndValues ...interface{}) {
	glog.ErrorDepth(1, formatKV(msg, keysAndValues))
}

// formatKV renders msg followed by key=value pairs
func formatKV(msg string, keysAndValues []interface{}) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			fmt.Fprintf(&sb, " %v=%v", keysAndValues[i], keysAndValues[i+1])
		} else {
			fmt.Fprintf(&sb, " %v", keysAndValues[i])
		}
	}
	return sb.String()
}

// traceSink collects formatted engine events. With a writer every line is
// printed immediately, otherwise lines are held until Drain.
type traceSink struct {
	mu    sync.Mutex
	out   io.Writer
	lines []string
}

func (t *traceSink) Observe(ev hspi.Event) {
	line := hspi.FormatEvent(ev)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.out != nil {
		fmt.Fprint(t.out, line)
		return
	}
	t.lines = append(t.lines, strings.TrimSuffix(line, "\n"))
}

// Drain returns and clears the held lines
func (t *traceSink) Drain() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	lines := t.lines
	t.lines = nil
	return lines
}

// SetOutput switches between printing and holding lines
func (t *traceSink) SetOutput(w io.Writer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.out = w
}
