// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/atbridge/pkg/console"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send COMMAND...",
	Short: "Send AT commands and print the responses",
	Long: `Send each argument as one AT command, in order, and print the responses.

CR LF is appended to every command. Quote commands that contain spaces or
shell characters:

  atbridge send AT AT+GMR 'AT+CWJAP="ssid","password"'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	l, err := openLink(out)
	if err != nil {
		return err
	}
	defer l.Close()

	for _, line := range args {
		fmt.Fprintf(out, "%s%s\r\n", console.Prompt(l.Mode()), line)
		reply, err := l.Exec(cmd.Context(), line)
		printReply(out, reply)
		if err != nil {
			return fmt.Errorf("%s: %w", line, err)
		}
	}

	if showStats {
		fmt.Fprint(out, l.stats.String())
	}
	return nil
}
