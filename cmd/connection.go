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
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Thermoquad/acio2emu/internal/bridge"
	"github.com/Thermoquad/acio2emu/internal/config"
	"github.com/Thermoquad/acio2emu/internal/logging"
)

// Connection is a byte stream carrying ACIO2 frames: a serial port shared
// with a game or a board, or a WebSocket bridge.
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// PasswordEnvVar holds the WebSocket basic auth password
const PasswordEnvVar = "ACIO2EMU_PASSWORD"

const (
	wsHandshakeTimeout = 10 * time.Second
	wsDialTimeout      = 15 * time.Second
	wsWriteTimeout     = 5 * time.Second
	wsCloseGrace       = time.Second
)

// ErrConnectionClosed is returned once the remote end has closed a WebSocket
// link, and by every later Read
var ErrConnectionClosed = errors.New("websocket connection closed")

var errNoConnection = errors.New("either --port, serial.port in the configuration, or --url must be specified")

// ============================================================================
// Serial
// ============================================================================

// serialLink is a port on the ACIO2 bus. With a read timeout, Read returns
// 0, nil when the line stays quiet.
type serialLink struct {
	port  serial.Port
	name  string
	drain bool
}

func (s *serialLink) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

// Write queues p and, when draining, returns only once it is on the wire
func (s *serialLink) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	if err != nil || !s.drain {
		return n, err
	}
	if err := s.port.Drain(); err != nil {
		return n, fmt.Errorf("failed to drain %s: %w", s.name, err)
	}
	return n, nil
}

func (s *serialLink) Close() error {
	return s.port.Close()
}

// openSerial opens a port as 8N1. Bytes the other side queued before we
// opened are discarded unless KeepInput is set.
func openSerial(sc config.SerialConfig) (*serialLink, error) {
	mode := &serial.Mode{
		BaudRate: sc.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(sc.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", sc.Port, err)
	}

	if sc.ReadTimeout > 0 {
		if err := port.SetReadTimeout(sc.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", sc.Port, err)
		}
	}
	if !sc.KeepInput {
		if err := port.ResetInputBuffer(); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to flush %s: %w", sc.Port, err)
		}
	}

	return &serialLink{port: port, name: sc.Port, drain: sc.Drain}, nil
}

// ============================================================================
// WebSocket
// ============================================================================

// wsLink carries bus bytes in binary WebSocket messages, the framing the
// bridge uses. Each Write is one message and a Read never returns bytes
// from two different messages, so a reply the bridge sent as one message
// is never merged with the next.
type wsLink struct {
	conn    *websocket.Conn
	pending []byte
	closed  bool
}

func (w *wsLink) Read(p []byte) (int, error) {
	if len(w.pending) == 0 {
		data, err := w.nextMessage()
		if err != nil {
			return 0, err
		}
		w.pending = data
	}

	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

// nextMessage returns the next non-empty binary message
func (w *wsLink) nextMessage() ([]byte, error) {
	if w.closed {
		return nil, ErrConnectionClosed
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			}
			return nil, err
		}

		if messageType != websocket.BinaryMessage {
			logging.Debug("Ignoring non-binary WebSocket message", zap.Int("type", messageType))
			continue
		}
		if len(data) > 0 {
			return data, nil
		}
	}
}

func (w *wsLink) Write(p []byte) (int, error) {
	w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a normal closure so the bridge logs a clean disconnect
func (w *wsLink) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseGrace))
	return w.conn.Close()
}

// dialWebSocket connects to a bridge, with HTTP Basic auth when a username
// is given
func dialWebSocket(rawURL, username, password string, skipSSLVerify bool) (*wsLink, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
	}

	headers := http.Header{}
	if username != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsDialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, rawURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	conn.SetReadLimit(bridge.MaxMessageSize)

	return &wsLink{conn: conn}, nil
}

// readPassword takes the password from the environment, then from the
// terminal without echo, then from a plain line on stdin.
func readPassword(username string) (string, error) {
	if pw := os.Getenv(PasswordEnvVar); pw != "" {
		return pw, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Fprintf(os.Stderr, "Password for %s: ", username)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

// ============================================================================
// Selection
// ============================================================================

// OpenConnection opens the link named by the persistent flags. Host-side
// commands use it.
func OpenConnection() (Connection, string, error) {
	return openLink(config.SerialConfig{Port: portName, Baud: baudRate})
}

// openConfiguredConnection opens the link serve answers on. loadConfig has
// already merged --port and --baud into cfg.Serial.
func openConfiguredConnection(cfg *config.Config) (Connection, string, error) {
	return openLink(cfg.Serial)
}

func openLink(sc config.SerialConfig) (Connection, string, error) {
	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			if password, err = readPassword(wsUsername); err != nil {
				return nil, "", err
			}
		}

		link, err := dialWebSocket(wsURL, wsUsername, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		logging.LogConnection(wsURL, "connected")
		return link, "WebSocket: " + wsURL, nil
	}

	if sc.Port == "" {
		return nil, "", errNoConnection
	}

	link, err := openSerial(sc)
	if err != nil {
		return nil, "", err
	}
	logging.Info("Serial port opened",
		zap.String("port", sc.Port),
		zap.Int("baud", sc.Baud),
		zap.Duration("read_timeout", sc.ReadTimeout),
		zap.Bool("drain", sc.Drain),
	)

	info := fmt.Sprintf("Serial: %s @ %d baud", sc.Port, sc.Baud)
	if sc.ReadTimeout > 0 {
		info += fmt.Sprintf(", read timeout %v", sc.ReadTimeout)
	}
	return link, info, nil
}
