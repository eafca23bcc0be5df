// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acio2

import (
	"bytes"
	"errors"
	"testing"
)

// asRequest turns an EncodePacket frame into something Decoder accepts by
// replacing the header CRC with a PayloadFlags byte of 0x00.
func asRequest(frame []byte) []byte {
	req := append([]byte{}, frame...)
	req[4] = 0x00
	return req
}

// decodeAll feeds data and returns every completed packet
func decodeAll(d *Decoder, data []byte) []Packet {
	var packets []Packet
	for _, b := range data {
		if d.Update(b) {
			packets = append(packets, d.Packet().Clone())
		}
	}
	return packets
}

func TestEncodePacket_KnownVectors(t *testing.T) {
	tests := []struct {
		name     string
		node     uint8
		tag      uint8
		payload  []byte
		expected []byte
	}{
		{
			name:     "empty payload",
			node:     0,
			tag:      5,
			payload:  []byte{},
			expected: []byte{0xAA, 0x00, 0x05, 0x00, 0x02, 0x00},
		},
		{
			name:     "escaped SOF",
			node:     0,
			tag:      5,
			payload:  []byte{0xAA},
			expected: []byte{0xAA, 0x00, 0x05, 0x01, 0x05, 0xFF, 0x55, 0x7D},
		},
		{
			name:     "node scaled by three",
			node:     1,
			tag:      0x10,
			payload:  []byte{0x00, 0x01, 0x00, 0x10, 0x20},
			expected: []byte{0xAA, 0x03, 0x10, 0x05, 0x0E, 0x00, 0x01, 0x00, 0x10, 0x20, 0x2A},
		},
		{
			name:     "escaped ESC",
			node:     2,
			tag:      3,
			payload:  []byte{0x12, 0x34, 0xFF},
			expected: []byte{0xAA, 0x06, 0x03, 0x03, 0x01, 0x12, 0x34, 0xFF, 0x00, 0x01},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodePacket(nil, tt.node, tt.tag, tt.payload)
			if err != nil {
				t.Fatalf("EncodePacket failed: %v", err)
			}
			if !bytes.Equal(encoded, tt.expected) {
				t.Errorf("wire bytes mismatch:\n got % X\nwant % X", encoded, tt.expected)
			}
		})
	}
}

func TestEncodePacket_Appends(t *testing.T) {
	prefix := []byte{0x01, 0x02}
	encoded, err := EncodePacket(prefix, 0, 5, nil)
	if err != nil {
		t.Fatalf("EncodePacket failed: %v", err)
	}
	want := []byte{0x01, 0x02, 0xAA, 0x00, 0x05, 0x00, 0x02, 0x00}
	if !bytes.Equal(encoded, want) {
		t.Errorf("got % X, want % X", encoded, want)
	}
}

func TestEncodePacket_PayloadTooLarge(t *testing.T) {
	prefix := []byte{0x01}

	out, err := EncodePacket(prefix, 1, 2, make([]byte, MaxPayloadSize+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if !bytes.Equal(out, prefix) {
		t.Errorf("no bytes should be written on failure, got % X", out)
	}

	if _, err := EncodePacket(nil, 1, 2, make([]byte, MaxPayloadSize)); err != nil {
		t.Errorf("127-byte payload should encode, got %v", err)
	}
}

func TestEncodePacket_DecodeRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x41},
		{0xAA},
		{0xFF, 0xAA, 0x00, 0x55},
		bytes.Repeat([]byte{0xAA, 0xFF}, 63),
		bytes.Repeat([]byte{0x5A}, MaxPayloadSize),
	}

	for node := 0; node <= 16; node++ {
		for i, payload := range payloads {
			tag := uint8(i*37 + node)
			frame, err := EncodePacket(nil, uint8(node), tag, payload)
			if err != nil {
				t.Fatalf("EncodePacket failed: %v", err)
			}

			packets := decodeAll(NewDecoder(), asRequest(frame))
			if len(packets) != 1 {
				t.Fatalf("node %d payload %d: expected 1 packet, got %d", node, i, len(packets))
			}

			p := packets[0]
			if p.Tag != tag {
				t.Errorf("tag mismatch: got 0x%02X, want 0x%02X", p.Tag, tag)
			}
			if !bytes.Equal(p.Payload, payload) {
				t.Errorf("payload mismatch: got % X, want % X", p.Payload, payload)
			}
			// *3 on the way out, /2 on the way in
			if p.Index() != node*3/2 {
				t.Errorf("node %d: decoded slot %d, want %d", node, p.Index(), node*3/2)
			}
			if p.ReplyIndex() != node {
				t.Errorf("node %d: reply slot %d", node, p.ReplyIndex())
			}
		}
	}
}

func TestEncodeRequest_Short(t *testing.T) {
	payload := []byte{0x00, 0x02}
	got := MustEncodeRequest(0x02, 0x07, payload)
	want := []byte{0xAA, 0x02, 0x07, 0x02, 0x00, 0x00, 0x02, payloadCRC(payload)}
	if !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}
}

func TestEncodeRequest_Empty(t *testing.T) {
	got := MustEncodeRequest(0x00, 0x01, nil)
	want := []byte{0xAA, 0x00, 0x01, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}
}

func TestEncodeRequest_TooLarge(t *testing.T) {
	dst := []byte{0x01}
	got, err := EncodeRequest(dst, 0x00, 0x01, make([]byte, MaxPayloadSize+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if !bytes.Equal(got, dst) {
		t.Errorf("dst modified: % X", got)
	}

	frame, err := EncodeRequest(nil, 0x00, 0x01, make([]byte, MaxPayloadSize))
	if err != nil {
		t.Fatalf("EncodeRequest failed at the limit: %v", err)
	}
	if frame[3] != MaxPayloadSize {
		t.Errorf("size byte 0x%02X", frame[3])
	}
}

func TestMustEncodeRequest_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustEncodeRequest should panic on oversized payload")
		}
	}()

	MustEncodeRequest(0x00, 0x01, make([]byte, 200))
}

func TestEncodeRequest_DecodeRoundTrip(t *testing.T) {
	for _, size := range []int{1, 5, 64, MaxPayloadSize} {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i * 7)
		}

		packets := decodeAll(NewDecoder(), MustEncodeRequest(0x04, 0x33, payload))
		if len(packets) != 1 {
			t.Fatalf("size %d: expected 1 packet, got %d", size, len(packets))
		}
		if packets[0].Node != 0x04 || packets[0].Tag != 0x33 {
			t.Errorf("size %d: header mismatch: node=0x%02X tag=0x%02X", size, packets[0].Node, packets[0].Tag)
		}
		if !bytes.Equal(packets[0].Payload, payload) {
			t.Errorf("size %d: payload mismatch", size)
		}
	}
}

func TestUnstuffBytes(t *testing.T) {
	frame, _ := EncodePacket(nil, 0, 1, []byte{0xAA, 0x01, 0xFF})
	stuffed := frame[HeaderSize : len(frame)-1]

	got, err := UnstuffBytes(stuffed)
	if err != nil {
		t.Fatalf("UnstuffBytes failed: %v", err)
	}
	if !bytes.Equal(got, []byte{0xAA, 0x01, 0xFF}) {
		t.Errorf("got % X", got)
	}

	if _, err := UnstuffBytes([]byte{0x01, Esc}); err == nil {
		t.Error("expected error for trailing escape")
	}
}
