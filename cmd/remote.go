// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/atbridge/pkg/console"
	"github.com/Thermoquad/atbridge/pkg/hspi"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Password environment variables
const (
	passwordEnv     = "ATBRIDGE_PASSWORD"
	wifiPasswordEnv = "ATBRIDGE_WIFI_PASSWORD"
	mqttPasswordEnv = "ATBRIDGE_MQTT_PASSWORD"
)

var remoteNoTUI bool

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "AT console on a device shared by \"atbridge serve\"",
	Long: `Open an AT console on a device attached to another machine.

The other machine runs "atbridge serve". Lines typed here are executed there
and the responses come back over the WebSocket connection.

For authentication, the password is read from the ATBRIDGE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Example: `  atbridge remote --url ws://bench.local:8080/console
  atbridge remote --url wss://bench.local/console --username lab`,
	RunE: runRemote,
}

func init() {
	rootCmd.AddCommand(remoteCmd)
	remoteCmd.Flags().BoolVar(&remoteNoTUI, "no-tui", false, "Plain line-based console")
}

func runRemote(cmd *cobra.Command, args []string) error {
	if wsURL == "" {
		return fmt.Errorf("--url must be specified")
	}

	password := ""
	if wsUsername != "" {
		var err error
		password, err = GetPassword(passwordEnv)
		if err != nil {
			return err
		}
	}

	rc, err := dialRemote(wsURL, wsUsername, password, wsNoSSLVerify)
	if err != nil {
		return err
	}
	defer rc.Close()

	target := consoleTarget{
		exec: rc,
		info: fmt.Sprintf("WebSocket: %s", wsURL),
	}
	useTUI := !remoteNoTUI && isTerminal(cmd.InOrStdin())
	return runConsole(cmd, target, useTUI, cmd.InOrStdin(), cmd.OutOrStdout())
}

// remoteConsole executes console lines on an atbridge server
type remoteConsole struct {
	mu   sync.Mutex
	conn *websocket.Conn
	mode hspi.Mode
}

// dialRemote connects to an atbridge server with HTTP Basic auth
func dialRemote(wsURL, username, password string, skipSSLVerify bool) (*remoteConsole, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	// The server opens with an empty reply carrying the current mode
	rc := &remoteConsole{conn: conn}
	if _, err := rc.readReply(); err != nil {
		conn.Close()
		return nil, err
	}
	return rc, nil
}

// Exec implements console.Executor. A context deadline bounds the round trip.
func (r *remoteConsole) Exec(ctx context.Context, line string) (console.Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deadline, _ := ctx.Deadline()
	r.conn.SetWriteDeadline(deadline)
	r.conn.SetReadDeadline(deadline)

	if err := r.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return console.Reply{Mode: r.mode}, fmt.Errorf("failed to send: %w", err)
	}
	return r.readReply()
}

func (r *remoteConsole) readReply() (console.Reply, error) {
	for {
		messageType, data, err := r.conn.ReadMessage()
		if err != nil {
			return console.Reply{Mode: r.mode}, fmt.Errorf("failed to read reply: %w", err)
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		reply, err := console.DecodeReply(data)
		var remote *console.RemoteError
		if err == nil || errors.As(err, &remote) {
			r.mode = reply.Mode
		}
		return reply, err
	}
}

// Mode returns the mode reported with the last reply
func (r *remoteConsole) Mode() hspi.Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

func (r *remoteConsole) Close() error {
	r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return r.conn.Close()
}

// GetPassword retrieves a password from the environment or prompts the user
func GetPassword(envVar string) (string, error) {
	if pw := os.Getenv(envVar); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		// Not a terminal
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}
