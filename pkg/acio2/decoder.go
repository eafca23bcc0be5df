// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acio2

// DecoderStats counts framing events seen by a Decoder
type DecoderStats struct {
	Frames     uint64 // completed packets
	Resyncs    uint64 // partial packets discarded by a SOF
	SizeErrors uint64 // malformed size fields
}

// Decoder implements the ACIO2 request decoder state machine.
//
// It accepts every payload encoding a game may transmit. Checksums are not
// verified: a frame completes as soon as the declared number of payload bytes
// has been produced.
type Decoder struct {
	step   readStep
	packet Packet

	payloadSize uint64
	sizeCount   uint32

	encoding   PayloadEncoding
	substitute uint8
	inflate    Inflater

	obfuscated bool
	lcg        uint32

	stats DecoderStats
}

// NewDecoder creates a new protocol decoder
func NewDecoder() *Decoder {
	d := &Decoder{}
	d.inflate.Reset()
	return d
}

// Reset returns the decoder to idle and drops any partial packet
func (d *Decoder) Reset() {
	d.reset(stepIdle)
}

func (d *Decoder) reset(s readStep) {
	d.step = s
	d.packet = Packet{}
	d.payloadSize = 0
	d.sizeCount = 0
}

// Packet returns the most recently completed packet. The payload is owned by
// the caller once Update has returned true; the decoder starts a new buffer
// for the next frame.
func (d *Decoder) Packet() *Packet {
	return &d.packet
}

// Stats returns the framing counters
func (d *Decoder) Stats() DecoderStats {
	return d.stats
}

// Idle reports whether the decoder is waiting for a start of frame
func (d *Decoder) Idle() bool {
	return d.step == stepIdle
}

// updatePayloadSize folds one size byte into the size field.
// Returns 0 when the field is complete, 1 when more bytes follow and -1 on
// an invalid byte.
//
// Continuation bits go into sizeCount, never into payloadSize, so the size
// is the final 7-bit group alone. sizeCount is at least 64 after the first
// continuation, which makes any further continuation byte invalid.
func (d *Decoder) updatePayloadSize(b byte) int {
	switch {
	case b&0x80 == 0:
		d.payloadSize = (d.payloadSize << 7) | uint64(b&0x7F)
		return 0
	case b&0x40 != 0 && d.sizeCount < maxSizeContinuations:
		d.sizeCount++
		d.sizeCount = (d.sizeCount << 6) | uint32(b&0x3F)
		return 1
	default:
		return -1
	}
}

func (d *Decoder) nextRandom() uint32 {
	d.lcg = d.lcg*lcgMultiplier + lcgIncrement
	return d.lcg
}

func (d *Decoder) deobfuscate(b byte) byte {
	if b == SOF {
		return b
	}

	mask := byte(0x55)
	if b&0x80 == 0 {
		mask = 0x7F
	}

	return (b ^ byte(d.nextRandom())) & mask
}

// Update processes a single byte through the decoder state machine.
// Returns true when a complete packet is available from Packet.
func (d *Decoder) Update(b byte) bool {
	// a start of frame always restarts framing, whatever the state
	if b == SOF {
		if d.step != stepIdle {
			d.stats.Resyncs++
		}
		d.reset(stepReadNode)
		return false
	}

	switch d.step {
	case stepReadNode:
		d.packet.Node = b
		d.step = stepReadTag

	case stepReadTag:
		d.packet.Tag = b
		d.step = stepReadPayloadSize

	case stepReadPayloadSize:
		switch d.updatePayloadSize(b) {
		case 0:
			d.packet.Payload = make([]byte, 0, d.payloadSize)
			d.step = stepReadPayloadFlags
		case -1:
			d.stats.SizeErrors++
			d.reset(stepIdle)
		}

	case stepReadPayloadFlags:
		d.obfuscated = b&flagObfuscated != 0
		d.encoding = PayloadEncoding(b >> flagEncodingShift)

		if d.obfuscated {
			d.lcg = uint32(d.packet.Tag ^ obfuscationSeedXor)
		}

		if d.encoding == EncodingReplace {
			d.step = stepReadReplacementByte
		} else {
			d.step = stepReadPayload
			if d.encoding == EncodingLZ {
				d.inflate.Reset()
			}
		}

	case stepReadReplacementByte:
		d.substitute = b
		d.step = stepReadPayload

	case stepReadPayload:
		if d.obfuscated {
			b = d.deobfuscate(b)
		}

		switch {
		case d.encoding == EncodingLZ:
			d.inflate.Put(b)
			for out, ok := d.inflate.Get(); ok; out, ok = d.inflate.Get() {
				d.packet.Payload = append(d.packet.Payload, out)
			}
		case d.encoding == EncodingReplace && b == d.substitute:
			d.packet.Payload = append(d.packet.Payload, SOF)
		case d.encoding == EncodingByteStuffing && b == Esc:
			d.step = stepReadEscaped
		default:
			d.packet.Payload = append(d.packet.Payload, b)
		}

	case stepReadEscaped:
		b = ^b
		if d.obfuscated {
			b = d.deobfuscate(b)
		}
		d.packet.Payload = append(d.packet.Payload, b)
		d.step = stepReadPayload
	}

	if (d.step == stepReadPayload || d.step == stepReadPayloadFlags) &&
		uint64(len(d.packet.Payload)) >= d.payloadSize {
		d.step = stepIdle
		d.stats.Frames++
		return true
	}

	return false
}
