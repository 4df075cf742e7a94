// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/atbridge/pkg/link"
	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and SPI controllers a link can use",
	Long: `List the ports the serial and spidev drivers can open.

Serial ports are used with --port, SPI controllers with --spidev (by name or
alias).`,
	Args: cobra.NoArgs,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := link.Discover()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(ports) == 0 {
		fmt.Fprintf(out, "No ports found\n")
		return nil
	}
	for _, p := range ports {
		if len(p.Aliases) > 0 {
			fmt.Fprintf(out, "%-7s %s (%s)\n", p.Kind, p.Name, strings.Join(p.Aliases, ", "))
		} else {
			fmt.Fprintf(out, "%-7s %s\n", p.Kind, p.Name)
		}
	}
	return nil
}
