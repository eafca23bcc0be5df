// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package iob

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/acio2emu/pkg/acio2"
)

// Bus size limits
const (
	MaxSlaves   = 16
	MaxNodes    = MaxSlaves + 1 // slot 0 is the master node
	MasterIndex = 0
)

// Outcome describes what happened to a forwarded request
type Outcome uint8

const (
	OutcomeReplied     Outcome = 0
	OutcomeRoutingMiss Outcome = 1
	OutcomeNodeError   Outcome = 2
	OutcomeEncodeError Outcome = 3
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReplied:
		return "REPLIED"
	case OutcomeRoutingMiss:
		return "ROUTING_MISS"
	case OutcomeNodeError:
		return "NODE_ERROR"
	case OutcomeEncodeError:
		return "ENCODE_ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(o))
	}
}

// Transaction is one request routed through the bus
type Transaction struct {
	Time    time.Time
	Request *acio2.Packet
	Slot    int
	Outcome Outcome
	Reply   []byte // encoded reply, nil unless Outcome is OutcomeReplied
	Err     error
}

// Handle is an emulated ACIO2 bus behind a serial device name.
//
// A Handle is not safe for concurrent use. Wrap it in Locked when more than
// one goroutine drives it.
type Handle struct {
	device string
	nodes  []Node

	decoder *acio2.Decoder
	output  []byte
	head    int
	scratch []byte

	logger *zap.Logger
	stats  *Statistics
	hook   func(*Transaction)
}

// New creates a bus for device with only the master node present
func New(device string, opts ...Option) *Handle {
	h := &Handle{
		device:  device,
		nodes:   make([]Node, 1, MaxNodes),
		decoder: acio2.NewDecoder(),
		logger:  zap.NewNop(),
	}
	h.nodes[MasterIndex] = masterNode{h: h}

	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Device returns the device name the bus answers to
func (h *Handle) Device() string {
	return h.device
}

// RegisterNode attaches n to the next free slave slot
func (h *Handle) RegisterNode(n Node) error {
	if h.NumberOfNodes() >= MaxSlaves {
		return fmt.Errorf("cannot register node: %w (max %d)", ErrTooManyNodes, MaxSlaves)
	}

	h.nodes = append(h.nodes, n)
	return nil
}

// NumberOfNodes returns the number of registered slaves, excluding the master
func (h *Handle) NumberOfNodes() int {
	return len(h.nodes) - 1
}

// Open checks that name refers to this bus
func (h *Handle) Open(name string) error {
	if name != h.device {
		return fmt.Errorf("cannot open %q: %w (bus is %q)", name, ErrDeviceMismatch, h.device)
	}

	h.logger.Info("Opened device", zap.String("device", h.device), zap.Int("nodes", h.NumberOfNodes()))
	return nil
}

// Close implements io.Closer
func (h *Handle) Close() error {
	h.logger.Info("Closed device", zap.String("device", h.device))
	return nil
}

// Feed pushes one byte from the game into the request decoder.
// Returns true when the byte completed a request, which has then been
// forwarded to its node.
func (h *Handle) Feed(b byte) bool {
	if h.stats != nil {
		h.stats.BytesIn++
	}

	if !h.decoder.Update(b) {
		return false
	}

	h.forwardPacket(h.decoder.Packet())
	return true
}

// Next dequeues one reply byte. ok is false when nothing is queued.
func (h *Handle) Next() (b byte, ok bool) {
	if h.head >= len(h.output) {
		return 0, false
	}

	b = h.output[h.head]
	h.head++
	return b, true
}

// Pending returns the number of reply bytes waiting to be read
func (h *Handle) Pending() int {
	return len(h.output) - h.head
}

// Write implements io.Writer. Every byte is consumed.
func (h *Handle) Write(p []byte) (int, error) {
	for _, b := range p {
		h.Feed(b)
	}
	return len(p), nil
}

// Read implements io.Reader. It returns 0, nil when no reply is queued,
// the way a serial port with a zero read timeout does.
func (h *Handle) Read(p []byte) (int, error) {
	n := copy(p, h.output[h.head:])
	h.head += n
	return n, nil
}

// DecoderStats returns the framing counters of the request decoder
func (h *Handle) DecoderStats() acio2.DecoderStats {
	return h.decoder.Stats()
}

// Statistics returns the statistics tracker, or nil when none was configured
func (h *Handle) Statistics() *Statistics {
	return h.stats
}

func (h *Handle) forwardPacket(p *acio2.Packet) {
	// a reply never outlives the next request
	h.output = h.output[:0]
	h.head = 0

	t := Transaction{
		Time:    time.Now(),
		Request: p,
		Slot:    p.Index(),
	}
	h.route(&t)

	if h.stats != nil {
		h.stats.Update(&t)
	}
	if h.hook != nil {
		h.hook(&t)
	}
}

func (h *Handle) route(t *Transaction) {
	p := t.Request

	if t.Slot >= len(h.nodes) {
		t.Outcome = OutcomeRoutingMiss
		t.Err = fmt.Errorf("cannot forward packet: %w: %d >= %d", ErrRoutingMiss, t.Slot, len(h.nodes))
		h.logger.Warn("Cannot forward packet",
			zap.Int("node", t.Slot),
			zap.Int("count", len(h.nodes)),
			zap.Uint8("tag", p.Tag),
		)
		return
	}

	payload, err := h.nodes[t.Slot].HandlePacket(p, h.scratch[:0])
	h.scratch = payload[:0]
	if err != nil {
		t.Outcome = OutcomeNodeError
		t.Err = err
		h.logger.Warn("Node dropped packet",
			zap.Int("node", t.Slot),
			zap.Uint8("tag", p.Tag),
			zap.Error(err),
		)
		return
	}

	out, err := acio2.EncodePacket(h.output, uint8(t.Slot), p.Tag, payload)
	if err != nil {
		t.Outcome = OutcomeEncodeError
		t.Err = err
		h.logger.Warn("Cannot encode reply",
			zap.Int("node", t.Slot),
			zap.Uint8("tag", p.Tag),
			zap.Int("length", len(payload)),
			zap.Error(err),
		)
		return
	}

	h.output = out
	t.Outcome = OutcomeReplied
	t.Reply = out
}
