// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/acio2emu/internal/bridge"
	"github.com/Thermoquad/acio2emu/internal/logging"
)

var (
	bridgeListen   string
	bridgeAnnounce bool
	bridgeCapture  string
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Expose the emulated bus over WebSocket",
	Long: `Serve the configured bus to WebSocket clients.

Each binary message a client sends is written into the bus and any reply it
produces is sent back as one binary message. Requests may be split across
messages. All clients share one bus.

Host-side commands connect with --url, for example:
  acio2emu ping --url ws://localhost:8642/acio2

With --announce the bridge registers an _acio2._tcp mDNS service, which
'discovery --mdns' lists.`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.Flags().StringVarP(&bridgeListen, "listen", "l", "", "Listen address (default from config)")
	bridgeCmd.Flags().BoolVar(&bridgeAnnounce, "announce", false, "Announce the bridge over mDNS")
	bridgeCmd.Flags().StringVar(&bridgeCapture, "capture", "", "Record transactions to a CBOR capture file")
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	listen := cfg.Bridge.Listen
	if bridgeListen != "" {
		listen = bridgeListen
	}
	capturePath := cfg.Capture
	if bridgeCapture != "" {
		capturePath = bridgeCapture
	}

	emu, err := newEmulator(cfg, capturePath)
	if err != nil {
		return err
	}
	defer emu.Close()

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listen, err)
	}

	server := bridge.NewServer(emu.bus, cfg.Bridge.Path, logging.Named("bridge"))

	fmt.Printf("acio2emu - WebSocket Bridge\n")
	fmt.Printf("Device: %s, %d node(s)\n", cfg.Device, len(emu.panels))
	fmt.Printf("Listening: ws://%s%s\n", ln.Addr(), cfg.Bridge.Path)

	if bridgeAnnounce || cfg.Bridge.Announce {
		port := ln.Addr().(*net.TCPAddr).Port
		announcement, err := bridge.Announce(cfg.Bridge.ServiceName, port, cfg.Bridge.Path)
		if err != nil {
			ln.Close()
			return err
		}
		defer announcement.Shutdown()
		fmt.Printf("Announced: %s.%s%s\n", cfg.Bridge.ServiceName, bridge.ServiceType, bridge.ServiceDomain)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Serve(ctx, ln); err != nil {
		return err
	}

	logging.Info("Bridge stopped",
		zap.Uint64("messages", server.Messages()),
	)
	stats := emu.statistics()
	fmt.Printf("\n%s", stats.String())
	return nil
}
