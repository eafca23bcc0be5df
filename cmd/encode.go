// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/acio2emu/pkg/acio2"
)

var encodeRequest bool

var encodeCmd = &cobra.Command{
	Use:   "encode NODE TAG [HEX...]",
	Short: "Print the wire bytes of a packet",
	Long: `Frame a payload and print the bytes that go on the wire.

By default the packet is framed as a bus reply: NODE is the bus index and is
scaled on the wire. With --request it is framed the way a game sends a
request and NODE is written unchanged.

NODE and TAG accept decimal or 0x-prefixed hex. Payload arguments are hex and
may be given as separate bytes or one string.

Examples:
  acio2emu encode 0 7 00 01 00 10
  acio2emu encode --request 2 0x10 0002`,
	Args: cobra.MinimumNArgs(2),
	RunE: runEncode,
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	encodeCmd.Flags().BoolVar(&encodeRequest, "request", false, "Frame as a request instead of a reply")
}

func runEncode(cmd *cobra.Command, args []string) error {
	node, err := parseByte(args[0])
	if err != nil {
		return fmt.Errorf("invalid node: %w", err)
	}
	tag, err := parseByte(args[1])
	if err != nil {
		return fmt.Errorf("invalid tag: %w", err)
	}
	if tag == acio2.SOF {
		return fmt.Errorf("tag 0x%02X is the start of frame byte", tag)
	}

	payload, err := parseHexArgs(args[2:])
	if err != nil {
		return err
	}

	var frame []byte
	if encodeRequest {
		frame, err = acio2.EncodeRequest(nil, node, tag, payload)
	} else {
		frame, err = acio2.EncodePacket(nil, node, tag, payload)
	}
	if err != nil {
		return err
	}

	fmt.Print(acio2.HexDump(frame, ""))
	return nil
}

func parseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}

// parseHexArgs joins hex arguments into one payload
func parseHexArgs(args []string) ([]byte, error) {
	var s strings.Builder
	for _, a := range args {
		a = strings.TrimPrefix(strings.TrimPrefix(a, "0x"), "0X")
		s.WriteString(strings.ReplaceAll(a, ":", ""))
	}

	payload, err := hex.DecodeString(s.String())
	if err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return payload, nil
}
