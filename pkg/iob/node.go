// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package iob emulates an ACIO2 I/O board bus.
//
// A Handle owns up to 17 node slots. Slot 0 is the master node, which answers
// address enumeration; slots 1-16 hold the emulated peripherals registered by
// device-attach code. Bytes written by the game are decoded into requests,
// routed to the addressed node, and the encoded reply is queued for the next
// read.
package iob

import "github.com/Thermoquad/acio2emu/pkg/acio2"

// Node is an addressable peripheral on the bus.
//
// HandlePacket appends the reply payload for in to out and returns the
// extended slice. A non-nil error drops the reply for that transaction.
type Node interface {
	HandlePacket(in *acio2.Packet, out []byte) ([]byte, error)
}

// NodeFunc adapts an ordinary function to the Node interface
type NodeFunc func(in *acio2.Packet, out []byte) ([]byte, error)

// HandlePacket calls f(in, out)
func (f NodeFunc) HandlePacket(in *acio2.Packet, out []byte) ([]byte, error) {
	return f(in, out)
}
