// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Thermoquad/atbridge/pkg/console"
	"github.com/spf13/cobra"
)

var (
	pingCount    int
	pingTimeout  time.Duration
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the link by sending AT and waiting for OK",
	Long: `Send the AT test command and wait for OK, like ping.

Runs on the local link, or on a shared device when --url is given. Useful
for verifying the wiring, the handshake line and the clock settings before
opening a console.

--timeout bounds the whole exchange of one ping. A timeout can abandon the
exchange between phases, leaving the ESP32 mid-transaction, so ping stops
at the first timeout and counts the remaining pings as lost. Reset the
ESP32 (or power cycle the link) before using it again.`,
	Example: `  atbridge ping --port /dev/ttyUSB0
  atbridge ping --url ws://bench.local:8080/console --count 10`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 5*time.Second, "Timeout for each ping")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 100*time.Millisecond, "Delay between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if pingCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	var (
		exec console.Executor
		info string
	)
	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			if password, err = GetPassword(passwordEnv); err != nil {
				return err
			}
		}
		rc, err := dialRemote(wsURL, wsUsername, password, wsNoSSLVerify)
		if err != nil {
			return err
		}
		defer rc.Close()
		exec, info = rc, fmt.Sprintf("WebSocket: %s", wsURL)
	} else {
		l, err := openLink(out)
		if err != nil {
			return err
		}
		defer l.Close()
		exec, info = l, l.info
	}

	fmt.Fprintf(out, "atbridge - AT ping\n")
	fmt.Fprintf(out, "Link: %s\n\n", info)

	failed := ping(cmd.Context(), exec, out)
	if failed > 0 {
		return fmt.Errorf("%d of %d pings failed", failed, pingCount)
	}
	return nil
}

// ping sends pingCount AT commands and returns how many went unanswered
func ping(ctx context.Context, exec console.Executor, out io.Writer) int {
	var (
		failed         int
		minRTT, maxRTT time.Duration
		total          time.Duration
	)

	for i := 1; i <= pingCount; i++ {
		fmt.Fprintf(out, "Ping %d/%d: ", i, pingCount)

		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		start := time.Now()
		reply, err := exec.Exec(pctx, "AT")
		rtt := time.Since(start)
		cancel()

		timedOut := errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil

		switch {
		case timedOut:
			fmt.Fprintf(out, "TIMEOUT after %v, link may be out of step\n", pingTimeout)
			failed++
		case err != nil:
			fmt.Fprintf(out, "FAILED: %v\n", err)
			failed++
		case !replyOK(reply):
			fmt.Fprintf(out, "NO OK (%d chunks)\n", len(reply.Chunks))
			failed++
		default:
			fmt.Fprintf(out, "OK rtt=%v\n", rtt.Round(time.Microsecond))
			if minRTT == 0 || rtt < minRTT {
				minRTT = rtt
			}
			if rtt > maxRTT {
				maxRTT = rtt
			}
			total += rtt
		}

		if timedOut || ctx.Err() != nil {
			failed += pingCount - i
			break
		}
		if i < pingCount {
			select {
			case <-time.After(pingInterval):
			case <-ctx.Done():
			}
		}
	}

	fmt.Fprintf(out, "\n--- Ping statistics ---\n")
	fmt.Fprintf(out, "%d pings sent, %d OK, %.0f%% loss\n",
		pingCount, pingCount-failed, float64(failed)/float64(pingCount)*100)
	if ok := pingCount - failed; ok > 0 {
		fmt.Fprintf(out, "rtt min/avg/max = %v/%v/%v\n",
			minRTT.Round(time.Microsecond), (total / time.Duration(ok)).Round(time.Microsecond), maxRTT.Round(time.Microsecond))
	}
	return failed
}

func replyOK(reply console.Reply) bool {
	for _, c := range reply.Chunks {
		if strings.Contains(c.Text(), "OK") {
			return true
		}
	}
	return false
}
