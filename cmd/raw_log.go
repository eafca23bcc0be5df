// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/acio2emu/internal/logging"
	"github.com/Thermoquad/acio2emu/pkg/acio2"
)

var rawLogReplies bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw packet log in human-readable format",
	Long: `Continuously decode and display ACIO2 packets as they arrive.

By default the stream is decoded as requests, the way the emulated bus sees
them: every payload encoding is accepted and checksums are ignored. With
--replies the stream is decoded as bus replies and both checksums are
verified.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogReplies, "replies", false, "Decode replies instead of requests")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	direction := "requests"
	if rawLogReplies {
		direction = "replies"
	}

	fmt.Printf("acio2emu - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Decoding: %s\n", direction)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	requests := acio2.NewDecoder()
	replies := acio2.NewReplyDecoder()
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
				logging.Info("Connection closed")
				return nil
			}
			logging.Warn("Read error", zap.Error(err))
			continue
		}

		for i := 0; i < n; i++ {
			if rawLogReplies {
				packet, err := replies.DecodeByte(buf[i])
				if err != nil {
					fmt.Printf("[ERROR] %v\n", err)
					continue
				}
				if packet != nil {
					printRawPacket(acio2.FormatReply(packet))
				}
				continue
			}

			if requests.Update(buf[i]) {
				printRawPacket(acio2.FormatPacket(requests.Packet()))
			}
		}
	}
}

func printRawPacket(formatted string) {
	fmt.Printf("[%s] %s", time.Now().Format("15:04:05.000"), formatted)
}
