// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acio2

import (
	"bytes"
	"testing"
)

func TestDecoder_SinglePacket(t *testing.T) {
	d := NewDecoder()
	input := []byte{0xAA, 0x00, 0x05, 0x01, 0x00, 0x41}

	for i, b := range input {
		done := d.Update(b)
		if done != (i == len(input)-1) {
			t.Fatalf("byte %d: Update returned %v", i, done)
		}
	}

	p := d.Packet()
	if p.Node != 0 || p.Tag != 5 {
		t.Errorf("header mismatch: node=%d tag=%d", p.Node, p.Tag)
	}
	if !bytes.Equal(p.Payload, []byte{0x41}) {
		t.Errorf("payload mismatch: % X", p.Payload)
	}
	if !d.Idle() {
		t.Error("decoder should be idle after a completed packet")
	}
}

func TestDecoder_ZeroLengthCompletesAfterSize(t *testing.T) {
	d := NewDecoder()

	for _, b := range []byte{0xAA, 0x02, 0x09} {
		if d.Update(b) {
			t.Fatal("packet completed before size byte")
		}
	}
	if !d.Update(0x00) {
		t.Fatal("zero-length packet should complete on the size byte")
	}
	if len(d.Packet().Payload) != 0 {
		t.Errorf("expected empty payload, got % X", d.Packet().Payload)
	}
}

func TestDecoder_Encodings(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected []byte
	}{
		{
			name:     "byte stuffing",
			input:    []byte{0xAA, 0x00, 0x05, 0x02, 0x00, 0xFF, 0x55, 0xFF, 0x00},
			expected: []byte{0xAA, 0xFF},
		},
		{
			name:     "raw keeps escape bytes",
			input:    []byte{0xAA, 0x02, 0x07, 0x02, 0x20, 0xFF, 0x10},
			expected: []byte{0xFF, 0x10},
		},
		{
			name:     "reserved encoding copies literally",
			input:    []byte{0xAA, 0x02, 0x07, 0x02, 0xE0, 0xFF, 0x10},
			expected: []byte{0xFF, 0x10},
		},
		{
			name:     "replace",
			input:    []byte{0xAA, 0x02, 0x07, 0x03, 0x60, 0x01, 0x10, 0x01, 0x20},
			expected: []byte{0x10, 0xAA, 0x20},
		},
		{
			name: "lz",
			input: []byte{
				0xAA, 0x02, 0x07, 0x09, 0x80,
				0x00, 0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16,
				0x01, 0x02,
			},
			expected: []byte{0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x16, 0x16},
		},
		{
			name:     "obfuscated",
			input:    []byte{0xAA, 0x00, 0x05, 0x03, 0x10, 0x08, 0x0C, 0x2C},
			expected: []byte{0x41, 0x42, 0x43},
		},
		{
			name:     "obfuscated high bit masked",
			input:    []byte{0xAA, 0x00, 0x05, 0x01, 0x10, 0x80},
			expected: []byte{0x41},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packets := decodeAll(NewDecoder(), tt.input)
			if len(packets) != 1 {
				t.Fatalf("expected 1 packet, got %d", len(packets))
			}
			if !bytes.Equal(packets[0].Payload, tt.expected) {
				t.Errorf("payload mismatch:\n got % X\nwant % X", packets[0].Payload, tt.expected)
			}
		})
	}
}

func TestDecoder_ResyncMidPacket(t *testing.T) {
	d := NewDecoder()
	input := []byte{
		0xAA, 0x00, 0x05, 0x03, 0x00, 0x41, // truncated
		0xAA, 0x00, 0x05, 0x01, 0x00, 0x42,
	}

	packets := decodeAll(d, input)
	if len(packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(packets))
	}
	if !bytes.Equal(packets[0].Payload, []byte{0x42}) {
		t.Errorf("payload mismatch: % X", packets[0].Payload)
	}

	stats := d.Stats()
	if stats.Resyncs != 1 {
		t.Errorf("expected 1 resync, got %d", stats.Resyncs)
	}
	if stats.Frames != 1 {
		t.Errorf("expected 1 frame, got %d", stats.Frames)
	}
}

func TestDecoder_GarbageBeforeSOF(t *testing.T) {
	d := NewDecoder()
	input := []byte{0x00, 0x01, 0xFF, 0x55, 0xAA, 0x00, 0x05, 0x01, 0x00, 0x41}

	packets := decodeAll(d, input)
	if len(packets) != 1 || !bytes.Equal(packets[0].Payload, []byte{0x41}) {
		t.Fatalf("unexpected packets: %+v", packets)
	}
	if d.Stats().Resyncs != 0 {
		t.Errorf("leading garbage is not a resync, got %d", d.Stats().Resyncs)
	}
}

func TestDecoder_TrailingChecksumIgnored(t *testing.T) {
	d := NewDecoder()
	first := MustEncodeRequest(0x00, 0x01, []byte{0x01, 0x02})
	second := MustEncodeRequest(0x02, 0x02, []byte{0x03})

	packets := decodeAll(d, append(first, second...))
	if len(packets) != 2 {
		t.Fatalf("expected 2 packets, got %d", len(packets))
	}
	if packets[1].Node != 0x02 || !bytes.Equal(packets[1].Payload, []byte{0x03}) {
		t.Errorf("second packet mismatch: %+v", packets[1])
	}
}

func TestDecoder_InvalidSizeByte(t *testing.T) {
	d := NewDecoder()

	// 0x80: high bit set without the continuation bit
	for _, b := range []byte{0xAA, 0x00, 0x05, 0x80} {
		d.Update(b)
	}
	if !d.Idle() {
		t.Fatal("decoder should return to idle on a malformed size")
	}
	if d.Stats().SizeErrors != 1 {
		t.Errorf("expected 1 size error, got %d", d.Stats().SizeErrors)
	}

	// the rest of the frame is ignored until the next SOF
	for _, b := range []byte{0x00, 0x41, 0x42} {
		if d.Update(b) {
			t.Fatal("no packet should complete after a size error")
		}
	}
	if !d.Idle() {
		t.Error("decoder should still be idle")
	}
}

func TestDecoder_ContinuationBitsDiscarded(t *testing.T) {
	// 0xC1 is a continuation byte, the size is the final 7-bit group alone
	frame := []byte{0xAA, 0x00, 0x05, 0xC1, 0x05, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05}

	packets := decodeAll(NewDecoder(), frame)
	if len(packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(packets))
	}
	if !bytes.Equal(packets[0].Payload, []byte{0x01, 0x02, 0x03, 0x04, 0x05}) {
		t.Errorf("payload % X", packets[0].Payload)
	}
}

func TestDecoder_SecondContinuationRejected(t *testing.T) {
	d := NewDecoder()
	for _, b := range []byte{0xAA, 0x00, 0x05, 0xC0} {
		d.Update(b)
	}
	if d.Idle() {
		t.Fatal("first continuation byte should be accepted")
	}

	d.Update(0xC0)
	if !d.Idle() {
		t.Error("second continuation byte should reset the decoder")
	}
	if d.Stats().SizeErrors != 1 {
		t.Errorf("expected 1 size error, got %d", d.Stats().SizeErrors)
	}

	// the size byte that would have followed is not taken as a frame
	if d.Update(0x01) || !d.Idle() {
		t.Error("decoder should stay idle until the next SOF")
	}
}

func TestDecoder_PayloadNotShared(t *testing.T) {
	d := NewDecoder()
	var first []byte

	for _, b := range []byte{0xAA, 0x00, 0x05, 0x01, 0x00, 0x41} {
		if d.Update(b) {
			first = d.Packet().Payload
		}
	}
	for _, b := range []byte{0xAA, 0x00, 0x05, 0x01, 0x00, 0x42} {
		d.Update(b)
	}

	if !bytes.Equal(first, []byte{0x41}) {
		t.Errorf("first payload was overwritten: % X", first)
	}
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder()
	for _, b := range []byte{0xAA, 0x00, 0x05, 0x02, 0x00, 0x41} {
		d.Update(b)
	}
	d.Reset()

	if !d.Idle() {
		t.Error("decoder should be idle after Reset")
	}
	if d.Update(0x42) {
		t.Error("no packet should complete after Reset")
	}
}
