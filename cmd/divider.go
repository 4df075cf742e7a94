// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/atbridge/pkg/hspi"
	"github.com/spf13/cobra"
)

var dividerCmd = &cobra.Command{
	Use:   "divider",
	Short: "Print the SPI clock divider for the configured clocks",
	Long: `Print the serial clock divider the engine programs for --spi-clock,
derived from --cpu-frequency:

  divider = cpu / (2 * spi) - 1`,
	Example: `  atbridge divider --cpu-frequency 320000000 --spi-clock 80000`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		div, err := hspi.Divider(cfg.Link.CPUFrequencyHz, cfg.Link.SPIClockHz)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "* CPU: %s\r\n", formatHz(cfg.Link.CPUFrequencyHz))
		fmt.Fprintf(cmd.OutOrStdout(), "* SPI: %s\r\n", formatHz(cfg.Link.SPIClockHz))
		fmt.Fprintf(cmd.OutOrStdout(), "* Divider: %d\r\n", div)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dividerCmd)
}
