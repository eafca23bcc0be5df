// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package acio2 implements the ACIO2 serial framing used by arcade I/O boards.
//
// The bus side of the protocol is asymmetric. Requests sent by the game are
// parsed by Decoder, which accepts every payload encoding a game transmitter
// may use (byte stuffing, substitution, LZ compression and obfuscation).
// Replies are produced by EncodePacket in the minimal byte-stuffed form the
// game's own parser expects. EncodeRequest and ReplyDecoder cover the
// opposite direction for host-side tooling.
package acio2

// Protocol framing bytes
const (
	SOF = 0xAA // start of frame, also resynchronises the decoder
	Esc = 0xFF // escape introducer, followed by the complemented byte
)

// Packet size limits
const (
	MaxPayloadSize = 127 // largest payload a single size byte can declare
	HeaderSize     = 5   // SOF, node, tag, size, header CRC

	// maxSizeContinuations bounds the continuation counter of the size
	// field. The counter also absorbs the continuation bits, so in
	// practice only one continuation byte is ever accepted.
	maxSizeContinuations = 5
)

// Checksum seeds. The encoder XORs each result with its seed again before
// writing it to the wire.
const (
	headerCRCSeed  = 0x0F
	payloadCRCSeed = 0x7F
)

// NodeScale is the multiplier applied to a node index on the wire by
// EncodePacket. Received node bytes are divided by NodeDivisor instead.
// The two values differ on purpose and must not be unified.
const (
	NodeScale   = 3
	NodeDivisor = 2
)

// PayloadFlags bit layout
const (
	flagObfuscated    = 1 << 4
	flagEncodingShift = 5

	obfuscationSeedXor = 0x55
)

// PayloadEncoding selects how payload bytes are carried on the wire. It is the
// top three bits of the PayloadFlags byte, so the numeric values are fixed.
type PayloadEncoding uint8

// Payload encodings
const (
	EncodingByteStuffing PayloadEncoding = 0
	EncodingRaw          PayloadEncoding = 1
	EncodingUnknown      PayloadEncoding = 2
	EncodingReplace      PayloadEncoding = 3
	EncodingLZ           PayloadEncoding = 4
)

// Decoder states (internal). Values are explicit so that reordering the
// declarations cannot renumber them.
type readStep uint8

const (
	stepIdle                readStep = 0
	stepReadNode            readStep = 1
	stepReadTag             readStep = 2
	stepReadPayloadSize     readStep = 3
	stepReadPayloadFlags    readStep = 4
	stepReadReplacementByte readStep = 5
	stepReadPayload         readStep = 6
	stepReadEscaped         readStep = 7
)

// Linear congruential generator used for payload obfuscation
// (multiplier, increment, modulus 2^32).
const (
	lcgMultiplier = 1103515245
	lcgIncrement  = 12345
)
