// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"flag"
	"fmt"
	"time"

	"github.com/Thermoquad/atbridge/pkg/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile string

	// Link flags
	useSim           bool
	linkDriver       string
	portName         string
	baudRate         int
	spidevName       string
	handshakePin     string
	spiClockHz       uint32
	cpuFrequencyHz   uint32
	handshakeTimeout time.Duration
	legacySendOnly   bool
	captureFile      string
	traceFrames      bool
	showStats        bool

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Loaded in PersistentPreRunE, flags applied
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "atbridge",
	Short: "ESP32 AT command bridge over the HSPI framing protocol",
	Long: `atbridge - Drive an ESP32 running AT firmware over SPI.

Every AT command travels as a header/length/payload exchange paced by the
slave's handshake line. Responses are drained the same way for as long as the
slave keeps the line asserted. Sending AT+CIPSEND enters transparent mode,
where data lines are streamed without waiting for a response, until +++ ends it.

Link drivers:
  serial: USB-serial SPI bridge  --port /dev/ttyUSB0 [--baud 115200]
  spidev: Linux spidev + GPIO     --spidev /dev/spidev0.0 --handshake-pin GPIO25
  sim:    in-memory AT slave      --sim

Settings are read from ~/.config/atbridge/config.yaml (see "atbridge config").
Flags given on the command line override the file.

Trace logging goes through glog: -v=1 logs mode changes, -v=2 every phase.`,
	Version:       "0.3.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		applyFlags(cmd)
		return cfg.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.config/atbridge/config.yaml)")

	// Link flags
	rootCmd.PersistentFlags().BoolVar(&useSim, "sim", false, "Use the simulated AT slave (same as --driver sim)")
	rootCmd.PersistentFlags().StringVar(&linkDriver, "driver", "", "Link driver: serial, spidev or sim")
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port of the SPI bridge")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")
	rootCmd.PersistentFlags().StringVar(&spidevName, "spidev", "", "spidev device (spidev only)")
	rootCmd.PersistentFlags().StringVar(&handshakePin, "handshake-pin", "", "GPIO wired to the slave handshake line (spidev only)")
	rootCmd.PersistentFlags().Uint32Var(&spiClockHz, "spi-clock", 80000, "SPI clock in Hz")
	rootCmd.PersistentFlags().Uint32Var(&cpuFrequencyHz, "cpu-frequency", 320000000, "Peripheral clock the SPI divider is derived from, in Hz")
	rootCmd.PersistentFlags().DurationVar(&handshakeTimeout, "handshake-timeout", 0, "Give up on a transaction after this long (0 waits forever)")
	rootCmd.PersistentFlags().BoolVar(&legacySendOnly, "legacy-send-only", false, "Only send commands, never read responses")
	rootCmd.PersistentFlags().StringVar(&captureFile, "capture", "", "Record every frame to a CBOR capture file")
	rootCmd.PersistentFlags().BoolVar(&traceFrames, "trace", false, "Print every frame and handshake")
	rootCmd.PersistentFlags().BoolVar(&showStats, "stats", false, "Print link statistics on exit")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL of an atbridge server (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// glog: -v, -logtostderr, -log_dir, ...
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	if f := rootCmd.PersistentFlags().Lookup("logtostderr"); f != nil {
		f.Value.Set("true")
		f.DefValue = "true"
	}
}

// applyFlags overrides the loaded configuration with flags set on the
// command line
func applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	if flags.Changed("driver") {
		cfg.Link.Driver = linkDriver
	}
	if useSim {
		cfg.Link.Driver = config.DriverSim
	}
	if flags.Changed("port") {
		cfg.Link.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Link.Baud = baudRate
	}
	if flags.Changed("spidev") {
		cfg.Link.Spidev = spidevName
	}
	if flags.Changed("handshake-pin") {
		cfg.Link.HandshakePin = handshakePin
	}
	if flags.Changed("spi-clock") {
		cfg.Link.SPIClockHz = spiClockHz
	}
	if flags.Changed("cpu-frequency") {
		cfg.Link.CPUFrequencyHz = cpuFrequencyHz
	}
	if flags.Changed("handshake-timeout") {
		cfg.Link.HandshakeTimeout = handshakeTimeout
	}
	if legacySendOnly {
		cfg.Link.LegacySendOnly = true
	}
	if flags.Changed("capture") {
		cfg.Capture.File = captureFile
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// RootCmd returns the root command for tests
func RootCmd() *cobra.Command {
	return rootCmd
}
