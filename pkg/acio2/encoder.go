// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acio2

import (
	"errors"
	"fmt"
)

// ErrPayloadTooLarge is returned when a reply payload does not fit in one frame
var ErrPayloadTooLarge = errors.New("payload too large")

// EncodePacket appends the wire form of a reply to dst.
//
// The node index is scaled by NodeScale, the payload is byte-stuffed and
// followed by its CRC7. No PayloadFlags byte is written. Payloads larger than
// MaxPayloadSize are rejected and dst is returned unchanged.
func EncodePacket(dst []byte, node, tag uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return dst, fmt.Errorf("cannot encode packet: %w: %d > %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	nodeByte := node * NodeScale
	size := uint8(len(payload))

	dst = append(dst, SOF, nodeByte, tag, size, headerCRC(nodeByte, tag, size))
	dst = stuffBytes(dst, payload)

	// the checksum byte itself is never escaped
	return append(dst, payloadCRC(payload)), nil
}

// EncodeRequest appends a request frame in the form a game transmits it.
//
// nodeByte is written as-is. The size is a single byte: the decoder discards
// continuation bits, so larger payloads cannot be framed and are rejected
// with ErrPayloadTooLarge, leaving dst unchanged. The PayloadFlags byte
// selects plain byte stuffing without obfuscation. Zero-length requests carry
// no flags byte, because the decoder completes them as soon as the size is
// known.
func EncodeRequest(dst []byte, nodeByte, tag uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return dst, fmt.Errorf("cannot encode request: %w: %d > %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	dst = append(dst, SOF, nodeByte, tag, uint8(len(payload)))
	if len(payload) == 0 {
		return dst, nil
	}

	dst = append(dst, uint8(EncodingByteStuffing)<<flagEncodingShift)
	dst = stuffBytes(dst, payload)
	return append(dst, payloadCRC(payload)), nil
}

// MustEncodeRequest is like EncodeRequest but panics on error.
// Use it for requests whose payload is known to fit.
func MustEncodeRequest(nodeByte, tag uint8, payload []byte) []byte {
	frame, err := EncodeRequest(nil, nodeByte, tag, payload)
	if err != nil {
		panic(err)
	}
	return frame
}

// stuffBytes appends data with SOF and Esc replaced by Esc + complement
func stuffBytes(dst, data []byte) []byte {
	for _, b := range data {
		if b == SOF || b == Esc {
			dst = append(dst, Esc, ^b)
		} else {
			dst = append(dst, b)
		}
	}
	return dst
}

// UnstuffBytes removes byte stuffing from escaped data.
// This is the inverse of the escaping done by EncodePacket.
func UnstuffBytes(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))
	escapeNext := false

	for _, b := range data {
		if escapeNext {
			result = append(result, ^b)
			escapeNext = false
		} else if b == Esc {
			escapeNext = true
		} else {
			result = append(result, b)
		}
	}

	if escapeNext {
		return nil, fmt.Errorf("incomplete escape sequence at end of data")
	}

	return result, nil
}
