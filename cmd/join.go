// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Thermoquad/atbridge/pkg/console"
	"github.com/spf13/cobra"
)

var (
	joinSSID       string
	joinResetWait  time.Duration
	joinDisconnect bool
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Reset the ESP32 and join a WiFi access point",
	Long: `Reset the ESP32, switch it to station mode and join an access point:

  AT+RST
  AT+CWMODE=1
  AT+CWJAP="<ssid>","<password>"

The SSID comes from --ssid, then wifi.ssid in the config file, then a prompt.
The password comes from wifi.password in the config file, then the
ATBRIDGE_WIFI_PASSWORD environment variable, then a prompt without echo.

With --disconnect, join waits for ENTER and then leaves the access point
(AT+CWQAP) and turns WiFi off (AT+CWMODE=0).`,
	RunE: runJoin,
}

func init() {
	rootCmd.AddCommand(joinCmd)
	joinCmd.Flags().StringVar(&joinSSID, "ssid", "", "Access point name")
	joinCmd.Flags().DurationVar(&joinResetWait, "reset-wait", 2*time.Second, "Time the ESP32 needs to restart after AT+RST")
	joinCmd.Flags().BoolVar(&joinDisconnect, "disconnect", false, "Wait for ENTER, then disconnect and turn WiFi off")
}

func runJoin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	p := console.NewPrompter(cmd.InOrStdin(), out)

	ssid, password, err := wifiCredentials(p, out)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "* SSID = %s\r\n", ssid)
	fmt.Fprintf(out, "* Password = %s\r\n\r\n", strings.Repeat("*", len(password)))

	l, err := openLink(out)
	if err != nil {
		return err
	}
	defer l.Close()

	exec := func(line string) error {
		reply, err := l.Exec(ctx, line)
		printReply(out, reply)
		if err != nil {
			return fmt.Errorf("%s: %w", strings.SplitN(line, "=", 2)[0], err)
		}
		return nil
	}

	fmt.Fprintf(out, "[+] ESP32 reset\r\n")
	if err := exec("AT+RST"); err != nil {
		return err
	}
	select {
	case <-time.After(joinResetWait):
	case <-ctx.Done():
		return ctx.Err()
	}

	fmt.Fprintf(out, "[+] Station mode\r\n")
	if err := exec("AT+CWMODE=1"); err != nil {
		return err
	}
	fmt.Fprintf(out, "[+] Joining %s\r\n", ssid)
	if err := exec(fmt.Sprintf(`AT+CWJAP="%s","%s"`, escapeATString(ssid), escapeATString(password))); err != nil {
		return err
	}

	if joinDisconnect {
		fmt.Fprint(out, "Press ENTER to disconnect....")
		if _, err := p.Reader().ReadLineRetry(console.LineSize); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		fmt.Fprint(out, "\r\n")
		if err := exec("AT+CWQAP"); err != nil {
			return err
		}
		if err := exec("AT+CWMODE=0"); err != nil {
			return err
		}
	}

	if showStats {
		fmt.Fprint(out, l.stats.String())
	}
	return nil
}

// wifiCredentials resolves the SSID and password, prompting for whatever
// is not configured
func wifiCredentials(p *console.Prompter, out io.Writer) (string, string, error) {
	ssid := joinSSID
	if ssid == "" {
		ssid = cfg.WiFi.SSID
	}
	password := cfg.WiFi.Password
	if password == "" {
		password = os.Getenv(wifiPasswordEnv)
	}

	if ssid == "" || password == "" {
		fmt.Fprint(out, "Greetings!\r\n")
	}

	var err error
	if ssid == "" {
		if ssid, err = p.Line("Enter SSID: "); err != nil {
			return "", "", err
		}
	}
	if password == "" {
		if password, err = p.Secret("Enter Password: "); err != nil {
			return "", "", err
		}
	}
	if ssid == "" {
		return "", "", fmt.Errorf("SSID must not be empty")
	}
	return ssid, password, nil
}

// escapeATString escapes the characters AT string parameters reserve
func escapeATString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `,`, `\,`)
	return r.Replace(s)
}
