// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/Thermoquad/atbridge/pkg/console"
	"github.com/Thermoquad/atbridge/pkg/hspi"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
)

var (
	serveListen     string
	serveMaxClients int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Share the device over WebSocket",
	Long: `Serve an AT console for the attached device over WebSocket.

Endpoints:
  /console  WebSocket. Each text message is one console line. Every line is
            answered with one binary CBOR reply holding the response chunks
            and the transparent mode; the first reply is sent on connect.
  /stats    Link statistics as plain text.

Clients share one link, so lines from different clients never interleave on
the wire. Connect with "atbridge remote --url ws://host:port/console".

When serve.username is configured, clients must authenticate with HTTP Basic
auth. The password is read from ATBRIDGE_PASSWORD or prompted at startup.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", ":8080", "Listen address")
	serveCmd.Flags().IntVar(&serveMaxClients, "max-clients", 4, "Maximum simultaneous connections")
}

func runServe(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if cmd.Flags().Changed("listen") {
		cfg.Serve.Listen = serveListen
	}
	if cmd.Flags().Changed("max-clients") {
		cfg.Serve.MaxClients = serveMaxClients
	}
	if cmd.Flags().Changed("username") {
		cfg.Serve.Username = wsUsername
	}
	if cfg.Serve.MaxClients < 1 {
		return fmt.Errorf("--max-clients must be at least 1")
	}

	password := ""
	if cfg.Serve.Username != "" {
		var err error
		password, err = GetPassword(passwordEnv)
		if err != nil {
			return err
		}
	}

	l, err := openLink(out)
	if err != nil {
		return err
	}
	defer l.Close()

	ln, err := net.Listen("tcp", cfg.Serve.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Serve.Listen, err)
	}
	ln = netutil.LimitListener(ln, cfg.Serve.MaxClients)

	srv := &http.Server{
		Handler:           newConsoleServer(l, l.stats, cfg.Serve.Username, password),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	fmt.Fprintf(out, "atbridge - WebSocket console server\n")
	fmt.Fprintf(out, "Link: %s\n", l.info)
	fmt.Fprintf(out, "Listening: ws://%s/console (max %d clients)\n", ln.Addr(), cfg.Serve.MaxClients)
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	err = srv.Serve(ln)
	if showStats {
		fmt.Fprint(out, l.stats.String())
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// newConsoleServer returns the /console and /stats handlers. An empty
// username disables authentication.
func newConsoleServer(exec console.Executor, stats *hspi.Statistics, username, password string) http.Handler {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()

	mux.HandleFunc("/console", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			glog.Warningf("upgrade failed for %s: %v", r.RemoteAddr, err)
			return
		}
		defer conn.Close()
		glog.Infof("client connected: %s", r.RemoteAddr)

		greeting, err := console.EncodeReply(console.Reply{Mode: exec.Mode()}, nil)
		if err != nil || conn.WriteMessage(websocket.BinaryMessage, greeting) != nil {
			return
		}

		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				glog.Infof("client disconnected: %s", r.RemoteAddr)
				return
			}
			if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
				continue
			}

			line := strings.TrimRight(string(data), "\r\n")
			reply, execErr := exec.Exec(r.Context(), line)
			if execErr != nil {
				glog.Warningf("%s: %q: %v", r.RemoteAddr, line, execErr)
			}

			msg, err := console.EncodeReply(reply, execErr)
			if err != nil {
				glog.Errorf("failed to encode reply: %v", err)
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return
			}
		}
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		stats.CalculateRates()
		fmt.Fprint(w, stats.String())
	})

	if username == "" {
		return mux
	}
	return basicAuth(mux, username, password)
}

func basicAuth(next http.Handler, username, password string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="atbridge"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
