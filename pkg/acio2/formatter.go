// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acio2

import (
	"fmt"
	"strings"
)

// FormatPacket formats a request into a human-readable string
func FormatPacket(p *Packet) string {
	return formatPacket(p, p.Index())
}

// FormatReply is FormatPacket for replies
func FormatReply(p *Packet) string {
	return formatPacket(p, p.ReplyIndex())
}

func formatPacket(p *Packet, slot int) string {
	result := fmt.Sprintf("node=0x%02X (slot %d) tag=0x%02X len=%d\n", p.Node, slot, p.Tag, len(p.Payload))
	if len(p.Payload) >= 2 {
		result += fmt.Sprintf("  Command: 0x%04X\n", uint16(p.Payload[0])<<8|uint16(p.Payload[1]))
	}
	if len(p.Payload) > 0 {
		result += "  Payload: " + HexDump(p.Payload, "           ")
	}
	return result
}

// FormatEncoding returns the human-readable name for a payload encoding
func FormatEncoding(e PayloadEncoding) string {
	switch e {
	case EncodingByteStuffing:
		return "BYTE_STUFFING"
	case EncodingRaw:
		return "RAW"
	case EncodingUnknown:
		return "UNKNOWN"
	case EncodingReplace:
		return "REPLACE"
	case EncodingLZ:
		return "LZ"
	default:
		return fmt.Sprintf("RESERVED(%d)", uint8(e))
	}
}

// String implements fmt.Stringer
func (e PayloadEncoding) String() string {
	return FormatEncoding(e)
}

// HexDump formats data as space separated hex, 16 bytes per line.
// Continuation lines are prefixed with indent.
func HexDump(data []byte, indent string) string {
	var s strings.Builder
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			s.WriteString("\n")
			s.WriteString(indent)
		}
		fmt.Fprintf(&s, "%02X ", b)
	}
	s.WriteString("\n")
	return s.String()
}
