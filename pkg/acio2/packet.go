// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acio2

// Packet is one decoded ACIO2 frame
type Packet struct {
	Node    uint8 // wire node byte, not yet scaled to a bus index
	Tag     uint8 // transaction identifier echoed in the reply
	Payload []byte
}

// Index returns the bus slot a request is addressed to.
// Only valid for requests, replies are scaled differently, see ReplyIndex.
func (p *Packet) Index() int {
	return int(p.Node) / NodeDivisor
}

// ReplyIndex returns the bus slot a reply was sent from
func (p *Packet) ReplyIndex() int {
	return int(p.Node) / NodeScale
}

// Clone returns a copy of the packet that does not share the payload buffer
func (p *Packet) Clone() Packet {
	payload := make([]byte, len(p.Payload))
	copy(payload, p.Payload)
	return Packet{Node: p.Node, Tag: p.Tag, Payload: payload}
}
