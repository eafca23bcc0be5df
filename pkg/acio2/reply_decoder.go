// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acio2

import (
	"errors"
	"fmt"
)

// Checksum errors reported by ReplyDecoder
var (
	ErrHeaderCRC  = errors.New("header CRC mismatch")
	ErrPayloadCRC = errors.New("payload CRC mismatch")
)

// Reply decoder states (internal)
const (
	replyIdle = iota
	replyNode
	replyTag
	replySize
	replyHeaderCRC
	replyPayload
	replyEscaped
	replyPayloadCRC
)

// ReplyDecoder parses replies in the minimal form written by EncodePacket.
//
// It is meant for host-side tools talking to a bus. Unlike Decoder it
// verifies both checksums and reports failures as errors.
type ReplyDecoder struct {
	state  int
	size   int
	packet *Packet
}

// NewReplyDecoder creates a new reply decoder
func NewReplyDecoder() *ReplyDecoder {
	return &ReplyDecoder{}
}

// Reset resets the decoder state to idle
func (d *ReplyDecoder) Reset() {
	d.state = replyIdle
	d.size = 0
	d.packet = nil
}

// DecodeByte processes a single byte through the decoder state machine
// Returns a completed packet, or nil if the packet is incomplete
// Returns an error if decoding fails
func (d *ReplyDecoder) DecodeByte(b byte) (*Packet, error) {
	if b == SOF {
		d.Reset()
		d.packet = &Packet{}
		d.state = replyNode
		return nil, nil
	}

	switch d.state {
	case replyIdle:
		// Waiting for SOF
		return nil, nil

	case replyNode:
		d.packet.Node = b
		d.state = replyTag

	case replyTag:
		d.packet.Tag = b
		d.state = replySize

	case replySize:
		if b > MaxPayloadSize {
			d.Reset()
			return nil, fmt.Errorf("invalid reply size: %d (max %d)", b, MaxPayloadSize)
		}
		d.size = int(b)
		d.packet.Payload = make([]byte, 0, d.size)
		d.state = replyHeaderCRC

	case replyHeaderCRC:
		expected := headerCRC(d.packet.Node, d.packet.Tag, uint8(d.size))
		if b != expected {
			d.Reset()
			return nil, fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrHeaderCRC, expected, b)
		}
		if d.size == 0 {
			d.state = replyPayloadCRC
		} else {
			d.state = replyPayload
		}

	case replyPayload:
		if b == Esc {
			d.state = replyEscaped
			return nil, nil
		}
		d.appendPayload(b)

	case replyEscaped:
		d.state = replyPayload
		d.appendPayload(^b)

	case replyPayloadCRC:
		packet := d.packet
		expected := payloadCRC(packet.Payload)
		d.Reset()
		if b != expected {
			return nil, fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrPayloadCRC, expected, b)
		}
		return packet, nil
	}

	return nil, nil
}

func (d *ReplyDecoder) appendPayload(b byte) {
	d.packet.Payload = append(d.packet.Payload, b)
	if len(d.packet.Payload) >= d.size {
		d.state = replyPayloadCRC
	}
}

// DecodeReply decodes the first complete reply found in data
func DecodeReply(data []byte) (*Packet, error) {
	d := NewReplyDecoder()
	for _, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}
	return nil, fmt.Errorf("incomplete reply (%d bytes)", len(data))
}
