// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type announced by bridges
	ServiceType = "_acio2._tcp"

	// ServiceDomain is the mDNS domain
	ServiceDomain = "local."

	// DefaultBrowseTimeout bounds Browse when the context has no deadline
	DefaultBrowseTimeout = 5 * time.Second

	pathTXTKey = "path="
)

// Announcement is a registered mDNS service. Shutdown withdraws it.
type Announcement struct {
	server *zeroconf.Server
}

// Announce registers the bridge under instance on port
func Announce(instance string, port int, path string) (*Announcement, error) {
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, []string{pathTXTKey + path}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	return &Announcement{server: server}, nil
}

// Shutdown withdraws the announcement
func (a *Announcement) Shutdown() {
	a.server.Shutdown()
}

// Peer is a bridge found on the network
type Peer struct {
	Instance string
	Host     string
	Port     int
	Path     string
}

// URL returns the WebSocket URL of the peer
func (p Peer) URL() string {
	return fmt.Sprintf("ws://%s:%d%s", strings.TrimSuffix(p.Host, "."), p.Port, p.Path)
}

// Browse lists bridges announced on the local network until ctx is done
func Browse(ctx context.Context) ([]Peer, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultBrowseTimeout)
		defer cancel()
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan []Peer)
	go func() {
		var peers []Peer
		for entry := range entries {
			peers = append(peers, peerFromEntry(entry))
		}
		done <- peers
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	return <-done, nil
}

func peerFromEntry(entry *zeroconf.ServiceEntry) Peer {
	peer := Peer{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     entry.Port,
		Path:     "/",
	}
	if len(entry.AddrIPv4) > 0 {
		peer.Host = entry.AddrIPv4[0].String()
	}
	for _, txt := range entry.Text {
		if strings.HasPrefix(txt, pathTXTKey) {
			peer.Path = strings.TrimPrefix(txt, pathTXTKey)
		}
	}
	return peer
}
