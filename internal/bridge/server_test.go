// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"bytes"
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"

	"github.com/Thermoquad/acio2emu/pkg/acio2"
	"github.com/Thermoquad/acio2emu/pkg/iob"
	"github.com/Thermoquad/acio2emu/pkg/iob/firmware"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	bus := iob.New("COM1")
	if err := bus.RegisterNode(firmware.NewBI2X(firmware.NewTBS(firmware.StaticInput{}), nil)); err != nil {
		t.Fatal(err)
	}

	s := NewServer(iob.NewLocked(bus), "/acio2", nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return s, "ws" + strings.TrimPrefix(ts.URL, "http") + "/acio2"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readReply(t *testing.T, conn *websocket.Conn) *acio2.Packet {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if messageType != websocket.BinaryMessage {
		t.Fatalf("expected binary message, got %d", messageType)
	}
	p, err := acio2.DecodeReply(data)
	if err != nil {
		t.Fatalf("DecodeReply failed: %v", err)
	}
	return p
}

func TestServer_Exchange(t *testing.T) {
	_, url := newTestServer(t)
	conn := dial(t, url)

	req := acio2.MustEncodeRequest(0x00, 0x01, []byte{0x00, 0x01})
	if err := conn.WriteMessage(websocket.BinaryMessage, req); err != nil {
		t.Fatal(err)
	}

	p := readReply(t, conn)
	if !bytes.Equal(p.Payload, []byte{0x00, 0x01, 0x00}) {
		t.Errorf("enumeration payload % X", p.Payload)
	}
}

func TestServer_SplitRequest(t *testing.T) {
	s, url := newTestServer(t)
	conn := dial(t, url)

	req := acio2.MustEncodeRequest(0x02, 0x07, []byte{0x00, 0x02})

	// text messages are ignored, a request may span messages
	conn.WriteMessage(websocket.TextMessage, []byte("hello"))
	conn.WriteMessage(websocket.BinaryMessage, req[:3])
	conn.WriteMessage(websocket.BinaryMessage, req[3:])

	p := readReply(t, conn)
	if p.Tag != 0x07 || len(p.Payload) != 3+32 {
		t.Errorf("unexpected reply tag=0x%02X len=%d", p.Tag, len(p.Payload))
	}
	if s.Messages() != 2 {
		t.Errorf("expected 2 binary messages, got %d", s.Messages())
	}
}

func TestServer_DroppedRequestSendsNothing(t *testing.T) {
	_, url := newTestServer(t)
	conn := dial(t, url)

	// unknown command: no reply, the next request is still answered
	conn.WriteMessage(websocket.BinaryMessage, acio2.MustEncodeRequest(0x02, 0x01, []byte{0x77, 0x77}))
	conn.WriteMessage(websocket.BinaryMessage, acio2.MustEncodeRequest(0x02, 0x02, []byte{0x00, 0x10}))

	p := readReply(t, conn)
	if p.Tag != 0x02 {
		t.Errorf("expected reply to tag 2, got tag %d", p.Tag)
	}
}

func TestServer_ServeShutdown(t *testing.T) {
	bus := iob.NewLocked(iob.New("COM1"))
	s := NewServer(bus, "/acio2", nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	conn := dial(t, "ws://"+ln.Addr().String()+"/acio2")
	conn.WriteMessage(websocket.BinaryMessage, acio2.MustEncodeRequest(0x00, 0x01, nil))
	readReply(t, conn)

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestPeerFromEntry(t *testing.T) {
	entry := zeroconf.NewServiceEntry("cab1", ServiceType, ServiceDomain)
	entry.HostName = "cab1.local."
	entry.Port = 8642
	entry.Text = []string{"path=/acio2"}

	peer := peerFromEntry(entry)
	if peer.URL() != "ws://cab1.local:8642/acio2" {
		t.Errorf("unexpected URL %q", peer.URL())
	}

	entry.AddrIPv4 = []net.IP{net.IPv4(192, 168, 1, 20)}
	if got := peerFromEntry(entry).URL(); got != "ws://192.168.1.20:8642/acio2" {
		t.Errorf("unexpected URL %q", got)
	}
}
