// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Thermoquad/atbridge/pkg/config"
	"github.com/Thermoquad/atbridge/pkg/console"
	"github.com/Thermoquad/atbridge/pkg/hspi"
	"github.com/spf13/cobra"
	"go.bug.st/serial"
)

var (
	consoleNoTUI    bool
	consoleUART     string
	consoleUARTBaud int
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive AT command console",
	Long: `Type AT commands and read the ESP32 responses.

Every line is sent with CR LF appended. While transparent mode is on (after
AT+CIPSEND) the prompt changes to "* ---->" and lines are streamed without
waiting for a response; send +++ to end it.

On a terminal the console runs as a full screen UI with link statistics.
Use --no-tui for the plain line-based console, or --uart to run the plain
console on a serial terminal instead of stdin/stdout.`,
	RunE: runConsoleCmd,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().BoolVar(&consoleNoTUI, "no-tui", false, "Plain line-based console")
	consoleCmd.Flags().StringVar(&consoleUART, "uart", "", "Serial port to use as the operator terminal")
	consoleCmd.Flags().IntVar(&consoleUARTBaud, "uart-baud", hspi.DefaultUARTBaudRate, "Baud rate of the operator terminal")
}

// consoleTarget is what a console talks to
type consoleTarget struct {
	exec  console.Executor
	info  string
	local bool
	stats *hspi.Statistics // nil for remote consoles
	trace *traceSink       // nil for remote consoles
}

func runConsoleCmd(cmd *cobra.Command, args []string) error {
	in, out := cmd.InOrStdin(), cmd.OutOrStdout()
	useTUI := !consoleNoTUI && consoleUART == "" && isTerminal(in)

	if consoleUART != "" {
		mode := &serial.Mode{
			BaudRate: consoleUARTBaud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		port, err := serial.Open(consoleUART, mode)
		if err != nil {
			return fmt.Errorf("failed to open serial port %s: %w", consoleUART, err)
		}
		defer port.Close()
		in, out = port, port
	}

	// The full screen UI shows trace lines itself
	var traceOut io.Writer = out
	if useTUI {
		traceOut = nil
	}

	l, err := openLink(traceOut)
	if err != nil {
		return err
	}
	defer l.Close()

	target := consoleTarget{
		exec:  l,
		info:  l.info,
		local: true,
		stats: l.stats,
		trace: l.trace,
	}
	return runConsole(cmd, target, useTUI, in, out)
}

// runConsole runs the full screen or the line console on target
func runConsole(cmd *cobra.Command, target consoleTarget, useTUI bool, in io.Reader, out io.Writer) error {
	ctx := cmd.Context()
	if useTUI {
		return runConsoleTUI(ctx, target)
	}

	printBanner(out, target)
	err := runTextConsole(ctx, target.exec, in, out)
	if showStats && target.stats != nil {
		fmt.Fprint(out, target.stats.String())
	}
	return err
}

// runTextConsole reads lines from in until EOF and executes each one
func runTextConsole(ctx context.Context, exec console.Executor, in io.Reader, out io.Writer) error {
	p := console.NewPrompter(in, out)

	fmt.Fprint(out, "* Optional: Enter AT commands (see \"ESP32 AT Instruction Set and Examples\")\r\n")
	for {
		line, err := p.Line(console.Prompt(exec.Mode()))
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		reply, err := exec.Exec(ctx, line)
		printReply(out, reply)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "[ERROR] %v\r\n", err)
		}
	}
}

// printReply prints every response chunk on its own line
func printReply(out io.Writer, reply console.Reply) {
	for _, line := range reply.Lines() {
		fmt.Fprint(out, line)
		if !strings.HasSuffix(line, "\n") {
			fmt.Fprint(out, "\r\n")
		}
	}
}

func printBanner(out io.Writer, target consoleTarget) {
	fmt.Fprintf(out, "---- atbridge ESP32 AT console --------\r\n")
	fmt.Fprintf(out, "* Link: %s\r\n", target.info)
	if !target.local {
		return
	}
	if cfg.Link.Driver == config.DriverSerial {
		fmt.Fprintf(out, "* UART: %d bps\r\n", cfg.Link.Baud)
	}
	fmt.Fprintf(out, "* SPI: %s\r\n", formatHz(cfg.Link.SPIClockHz))
	fmt.Fprintf(out, "* CPU: %s\r\n", formatHz(cfg.Link.CPUFrequencyHz))
	if cfg.Link.LegacySendOnly {
		fmt.Fprintf(out, "* Send only: responses are not read\r\n")
	}
}

// formatHz prints a frequency in the largest whole unit
func formatHz(hz uint32) string {
	switch {
	case hz >= 1000000 && hz%1000000 == 0:
		return fmt.Sprintf("%d MHz", hz/1000000)
	case hz >= 1000 && hz%1000 == 0:
		return fmt.Sprintf("%d KHz", hz/1000)
	default:
		return fmt.Sprintf("%d Hz", hz)
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && console.IsTerminal(f)
}
