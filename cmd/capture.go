// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/atbridge/pkg/hspi"
	"github.com/spf13/cobra"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Inspect capture files",
	Long: `Inspect files recorded with --capture.

A capture file is a stream of CBOR records, one per engine event: frames in
both directions, handshakes, mode changes and received chunks.`,
}

var captureDumpCmd = &cobra.Command{
	Use:   "dump FILE",
	Short: "Print every event in a capture file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCaptureDump,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.AddCommand(captureDumpCmd)
}

func runCaptureDump(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	out := cmd.OutOrStdout()
	r := hspi.NewCaptureReader(f)
	stats := hspi.NewStatistics()
	n := 0
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}
		n++
		stats.Observe(ev)
		fmt.Fprint(out, hspi.FormatEvent(ev))
	}

	fmt.Fprintf(out, "%d events\n", n)
	if showStats {
		fmt.Fprint(out, stats.String())
	}
	return nil
}
