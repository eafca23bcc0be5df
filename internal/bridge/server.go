// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge exposes an emulated bus over WebSocket.
//
// Every binary message from a client is written to the bus as raw request
// bytes. When the message completes a request that produces a reply, the
// encoded reply is sent back as one binary message.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Thermoquad/acio2emu/internal/logging"
	"github.com/Thermoquad/acio2emu/pkg/iob"
)

const (
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// MaxMessageSize is the largest binary message either side accepts
const MaxMessageSize = 64 * 1024

// Server serves one bus to any number of WebSocket clients
type Server struct {
	bus      *iob.Locked
	path     string
	upgrader websocket.Upgrader
	logger   *zap.Logger

	clients  atomic.Int64
	messages atomic.Uint64
}

// NewServer creates a bridge for bus on the given HTTP path
func NewServer(bus *iob.Locked, path string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		bus:  bus,
		path: path,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Clients returns the number of connected clients
func (s *Server) Clients() int64 {
	return s.clients.Load()
}

// Messages returns the number of binary messages received
func (s *Server) Messages() uint64 {
	return s.messages.Load()
}

// Handler returns an http.Handler serving the bridge path
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.path, s)
	return mux
}

// ServeHTTP upgrades the request and pumps messages until the client leaves
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	defer conn.Close()

	s.clients.Add(1)
	defer s.clients.Add(-1)

	logging.LogConnection(r.RemoteAddr, "websocket_upgraded")
	conn.SetReadLimit(MaxMessageSize)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("WebSocket read ended", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
			}
			logging.LogConnection(r.RemoteAddr, "websocket_closed")
			return
		}

		// raw bus bytes only travel in binary messages
		if messageType != websocket.BinaryMessage {
			continue
		}
		s.messages.Add(1)
		logging.LogRawBytes("bridge rx", data)

		reply := s.bus.Exchange(data)
		if len(reply) == 0 {
			continue
		}
		logging.LogRawBytes("bridge tx", reply)

		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, reply); err != nil {
			s.logger.Warn("WebSocket write failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
			return
		}
	}
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("Bridge listening", zap.String("addr", ln.Addr().String()), zap.String("path", s.path))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("bridge shutdown: %w", err)
		}
		return nil
	}
}
