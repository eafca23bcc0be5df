// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/acio2emu/internal/bridge"
	"github.com/Thermoquad/acio2emu/internal/config"
	"github.com/Thermoquad/acio2emu/pkg/iob"
)

func wsURLOf(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestWSLink_HostOverBridge(t *testing.T) {
	cfg := config.Default()
	bus, _, err := cfg.BuildBus(nil)
	if err != nil {
		t.Fatalf("BuildBus failed: %v", err)
	}

	server := bridge.NewServer(iob.NewLocked(bus), cfg.Bridge.Path, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	link, err := dialWebSocket(wsURLOf(ts, cfg.Bridge.Path), "", "", false)
	if err != nil {
		t.Fatalf("dialWebSocket failed: %v", err)
	}
	defer link.Close()

	replies := startReplyReader(link)
	if err := sendRequest(link, 0x02, 0x07, []byte{0x00, 0x02}); err != nil {
		t.Fatalf("sendRequest failed: %v", err)
	}

	reply, err := replies.await(0x07, 2*time.Second)
	if err != nil {
		t.Fatalf("await failed: %v", err)
	}
	if reply.ReplyIndex() != 1 {
		t.Errorf("reply from slot %d, want 1", reply.ReplyIndex())
	}
	if _, ok := parseVersionReply(reply.Payload); !ok {
		t.Errorf("bad version reply % X", reply.Payload)
	}
}

func TestWSLink_MessageFraming(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		conn.WriteMessage(websocket.BinaryMessage, nil)
		conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02, 0x03})
		conn.WriteMessage(websocket.BinaryMessage, []byte{0x04, 0x05})
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

		// wait for the client to answer the close
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	}))
	defer ts.Close()

	link, err := dialWebSocket(wsURLOf(ts, "/"), "", "", false)
	if err != nil {
		t.Fatalf("dialWebSocket failed: %v", err)
	}
	defer link.Close()

	small := make([]byte, 2)
	large := make([]byte, 16)

	steps := []struct {
		buf  []byte
		want []byte
	}{
		{small, []byte{0x01, 0x02}},
		{large, []byte{0x03}},
		{large, []byte{0x04, 0x05}},
	}

	for i, step := range steps {
		n, err := link.Read(step.buf)
		if err != nil {
			t.Fatalf("read %d failed: %v", i, err)
		}
		if !bytes.Equal(step.buf[:n], step.want) {
			t.Errorf("read %d: got % X, want % X", i, step.buf[:n], step.want)
		}
	}

	for i := 0; i < 2; i++ {
		if _, err := link.Read(large); !errors.Is(err, ErrConnectionClosed) {
			t.Errorf("read after close %d: expected ErrConnectionClosed, got %v", i, err)
		}
	}
}

func TestDialWebSocket_BasicAuth(t *testing.T) {
	type credentials struct {
		user, password string
		ok             bool
	}

	upgrader := websocket.Upgrader{}
	got := make(chan credentials, 1)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		got <- credentials{user, password, ok}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer ts.Close()

	link, err := dialWebSocket(wsURLOf(ts, "/"), "admin", "secret", false)
	if err != nil {
		t.Fatalf("dialWebSocket failed: %v", err)
	}
	link.Close()

	c := <-got
	if !c.ok || c.user != "admin" || c.password != "secret" {
		t.Errorf("basic auth = %+v", c)
	}
}

func TestDialWebSocket_RejectsScheme(t *testing.T) {
	_, err := dialWebSocket("http://localhost:8642/acio2", "", "", false)
	if err == nil || !strings.Contains(err.Error(), "unsupported URL scheme") {
		t.Errorf("expected scheme error, got %v", err)
	}
}

func TestOpenLink_NeedsPortOrURL(t *testing.T) {
	if _, _, err := openLink(config.SerialConfig{Baud: config.DefaultBaud}); !errors.Is(err, errNoConnection) {
		t.Errorf("expected errNoConnection, got %v", err)
	}
}
