// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package iob

import (
	"fmt"

	"github.com/Thermoquad/acio2emu/pkg/acio2"
)

// Master node command: assign node ids
const (
	enumerateHi = 0x00
	enumerateLo = 0x01

	// nodeIDStride is the spacing between ids handed out during enumeration
	nodeIDStride = 16
)

// masterNode lives in slot 0 and answers address enumeration
type masterNode struct {
	h *Handle
}

func (m masterNode) HandlePacket(in *acio2.Packet, out []byte) ([]byte, error) {
	// an empty request is a plain presence check
	if len(in.Payload) < 2 {
		return out, nil
	}

	if in.Payload[0] != enumerateHi || in.Payload[1] != enumerateLo {
		return out, fmt.Errorf("%w: 0x%02X%02X", ErrUnknownMasterCommand, in.Payload[0], in.Payload[1])
	}

	out = append(out, enumerateHi, enumerateLo)
	for i := 0; i < m.h.NumberOfNodes(); i++ {
		out = append(out, byte(i*nodeIDStride))
	}
	return out, nil
}
