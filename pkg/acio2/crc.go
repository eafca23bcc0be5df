// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acio2

var crc4Table = [16]uint8{
	0x00, 0x0D, 0x03, 0x0E,
	0x06, 0x0B, 0x05, 0x08,
	0x0C, 0x01, 0x0F, 0x02,
	0x0A, 0x07, 0x09, 0x04,
}

var crc7Table = [16]uint8{
	0x00, 0x09, 0x12, 0x1B,
	0x24, 0x2D, 0x36, 0x3F,
	0x48, 0x41, 0x5A, 0x53,
	0x6C, 0x65, 0x7E, 0x77,
}

// CRC4 computes the 4-bit checksum used for the packet header
func CRC4(seed uint8, data []byte) uint8 {
	return crcNibbles(&crc4Table, seed&0x0F, data)
}

// CRC7 computes the 7-bit checksum used for the packet payload
func CRC7(seed uint8, data []byte) uint8 {
	return crcNibbles(&crc7Table, seed&0x7F, data)
}

// crcNibbles folds each byte into crc as two table lookups, low nibble first.
func crcNibbles(tbl *[16]uint8, crc uint8, data []byte) uint8 {
	for _, b := range data {
		t := (crc >> 4) ^ tbl[(b^crc)&0x0F]
		crc = (t >> 4) ^ tbl[(t^(b>>4))&0x0F]
	}
	return crc
}

// headerCRC returns the wire value of the header checksum byte
func headerCRC(node, tag, size uint8) uint8 {
	return CRC4(headerCRCSeed, []byte{node, tag, size}) ^ headerCRCSeed
}

// payloadCRC returns the wire value of the trailing payload checksum byte
func payloadCRC(payload []byte) uint8 {
	return CRC7(payloadCRCSeed, payload) ^ payloadCRCSeed
}
