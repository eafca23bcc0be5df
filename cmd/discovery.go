// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/acio2emu/internal/bridge"
	"github.com/Thermoquad/acio2emu/pkg/acio2"
	"github.com/Thermoquad/acio2emu/pkg/iob"
)

var (
	discoveryTimeout int
	discoveryMDNS    bool
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Enumerate the nodes on an ACIO2 bus",
	Long: `Send the master enumeration command and list the slave nodes that answer.

Modes:
  Bus (default): Send enumeration (command 0x0001) to node 0 over serial or
                 WebSocket. The master replies with one id per slave node.

  mDNS (--mdns): Browse the local network for acio2emu WebSocket bridges
                 announced with 'bridge --announce'. No connection flags are
                 needed.

Examples:
  # Enumerate a bus on a serial port
  acio2emu discovery --port /dev/ttyUSB0

  # Enumerate through a WebSocket bridge
  acio2emu discovery --url ws://cabinet.local:8642/acio2

  # Find bridges
  acio2emu discovery --mdns

Exit codes:
  0 - Discovery successful (at least one node or bridge found)
  1 - Discovery failed (no nodes or timeout)
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 5, "Timeout in seconds for discovery")
	discoveryCmd.Flags().BoolVar(&discoveryMDNS, "mdns", false, "Browse for WebSocket bridges instead of enumerating a bus")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	if discoveryMDNS {
		return runBridgeDiscovery()
	}

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("acio2emu - Node Discovery\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n\n", discoveryTimeout)

	reader := startReplyReader(conn)

	tag := nextTag(0)
	fmt.Printf("Sending enumeration to master (tag=0x%02X)...\n", tag)
	if err := sendRequest(conn, iob.MasterIndex, tag, []byte{0x00, 0x01}); err != nil {
		fmt.Printf("SEND FAILED: %v\n", err)
		os.Exit(2)
	}

	reply, err := reader.await(tag, time.Duration(discoveryTimeout)*time.Second)
	if err != nil {
		fmt.Printf("FAILED: %v\n", err)
		os.Exit(1)
	}

	ids, err := parseEnumeration(reply)
	if err != nil {
		fmt.Printf("FAILED: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n--- Discovery Results ---\n")
	fmt.Printf("Found %d node(s):\n\n", len(ids))
	for i, id := range ids {
		slot := i + 1
		fmt.Printf("  [%d] Slot %d: id=0x%02X, request node byte 0x%02X\n", slot, slot, id, slot*acio2.NodeDivisor)
	}

	if len(ids) == 0 {
		os.Exit(1)
	}
	return nil
}

// parseEnumeration returns the slave ids from a master enumeration reply
func parseEnumeration(reply *acio2.Packet) ([]byte, error) {
	if reply.ReplyIndex() != iob.MasterIndex {
		return nil, fmt.Errorf("reply from node 0x%02X, expected the master", reply.Node)
	}
	if len(reply.Payload) < 2 || reply.Payload[0] != 0x00 || reply.Payload[1] != 0x01 {
		return nil, fmt.Errorf("unexpected enumeration reply: % X", reply.Payload)
	}
	return reply.Payload[2:], nil
}

func runBridgeDiscovery() error {
	fmt.Printf("acio2emu - Bridge Discovery\n")
	fmt.Printf("Service: %s.%s\n", bridge.ServiceType, bridge.ServiceDomain)
	fmt.Printf("Timeout: %d seconds\n\n", discoveryTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(discoveryTimeout)*time.Second)
	defer cancel()

	peers, err := bridge.Browse(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Browse error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("--- Discovery Results ---\n")
	fmt.Printf("Found %d bridge(s):\n\n", len(peers))
	for i, p := range peers {
		fmt.Printf("  [%d] %s\n", i+1, p.Instance)
		fmt.Printf("      URL: %s\n", p.URL())
	}

	if len(peers) == 0 {
		os.Exit(1)
	}
	return nil
}
