// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/acio2emu/pkg/acio2"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a complete ACIO2 request",
	Long: `Wait for a complete ACIO2 request frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any
complete request frame, as sent by a game polling its I/O boards. Bytes
before the first start of frame are ignored.

Exit codes:
  0 - Packet received before timeout
  1 - Timeout reached without receiving a complete packet
  2 - Connection error

Useful for checking that a game is talking on the expected port.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a packet")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("acio2emu - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for ACIO2 request...\n\n")

	decoder := acio2.NewDecoder()
	buf := make([]byte, 128)

	// Channel for packet reception
	packetChan := make(chan acio2.Packet, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				if decoder.Update(buf[i]) {
					packetChan <- decoder.Packet().Clone()
					return
				}
			}
		}
	}()

	// Wait for packet or timeout
	select {
	case packet := <-packetChan:
		stats := decoder.Stats()
		fmt.Printf("SUCCESS: Received complete request\n")
		fmt.Printf("  Node: 0x%02X (slot %d)\n", packet.Node, packet.Index())
		fmt.Printf("  Tag: 0x%02X\n", packet.Tag)
		fmt.Printf("  Length: %d bytes\n", len(packet.Payload))
		if stats.Resyncs > 0 || stats.SizeErrors > 0 {
			fmt.Printf("  (discarded %d partial frames, %d bad size fields before sync)\n", stats.Resyncs, stats.SizeErrors)
		}
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No complete packet received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}
