// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/acio2emu/pkg/acio2"
	"github.com/Thermoquad/acio2emu/pkg/iob"
	"github.com/Thermoquad/acio2emu/pkg/iob/firmware"
)

var (
	pingTimeout int
	pingCount   int
	pingSlot    int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round-trip time by querying a node's firmware version",
	Long: `Send firmware version requests (command 0x0002) to a slave node and wait
for the reply.

This command tests bidirectional communication with a bus, directly over
serial or through a WebSocket bridge. Each reply carries the node's version
blob, which is printed after the first successful ping.

This is useful for verifying:
  - The connection is established
  - HTTP Basic authentication works (WebSocket only)
  - The node exists and answers
  - Round-trip latency of the link

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().IntVar(&pingSlot, "node", 1, "Slot of the node to ping (1-16)")
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingSlot < 1 || pingSlot > iob.MaxSlaves {
		return fmt.Errorf("--node must be between 1 and %d", iob.MaxSlaves)
	}
	if pingCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	nodeByte := uint8(pingSlot * acio2.NodeDivisor)

	fmt.Printf("acio2emu - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Node: slot %d (node byte 0x%02X)\n", pingSlot, nodeByte)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	reader := startReplyReader(conn)
	request := []byte{firmware.CmdFirmwareVersion >> 8, firmware.CmdFirmwareVersion & 0xFF}

	successCount := 0
	failCount := 0
	var version []byte
	var tag uint8

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		tag = nextTag(tag)
		startTime := time.Now()
		if err := sendRequest(conn, nodeByte, tag, request); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		reply, err := reader.await(tag, time.Duration(pingTimeout)*time.Second)
		switch {
		case err == errTimeout:
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++

		case err != nil:
			fmt.Printf("FAILED: %v\n", err)
			failCount++

		default:
			rtt := time.Since(startTime)
			blob, ok := parseVersionReply(reply.Payload)
			if !ok {
				fmt.Printf("BAD REPLY: % X\n", reply.Payload)
				failCount++
				break
			}
			fmt.Printf("reply from slot %d, tag=0x%02X, %d bytes, rtt=%v\n",
				reply.ReplyIndex(), reply.Tag, len(reply.Payload), rtt.Round(time.Microsecond))
			if version == nil {
				version = blob
			}
			successCount++
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	if version != nil {
		fmt.Printf("\nFirmware version:\n")
		fmt.Printf("  Name: %q\n", printableName(version))
		fmt.Printf("  Blob: %s", acio2.HexDump(version, "        "))
	}

	if n := reader.crcErrors.Load(); n > 0 {
		fmt.Printf("\n%d replies rejected with checksum errors\n", n)
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}

// parseVersionReply strips the echoed command header from a firmware
// version reply
func parseVersionReply(payload []byte) ([]byte, bool) {
	if len(payload) < 3 {
		return nil, false
	}
	if uint16(payload[0])<<8|uint16(payload[1]) != firmware.CmdFirmwareVersion || payload[2] != 0 {
		return nil, false
	}
	return payload[3:], true
}

// printableName returns the leading run of printable ASCII in a version blob
func printableName(blob []byte) string {
	end := bytes.IndexFunc(blob, func(r rune) bool { return r < 0x20 || r > 0x7E })
	if end < 0 {
		return string(blob)
	}
	return string(blob[:end])
}
