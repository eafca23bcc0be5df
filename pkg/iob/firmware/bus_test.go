// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package firmware_test

import (
	"bytes"
	"testing"

	"github.com/Thermoquad/acio2emu/pkg/acio2"
	"github.com/Thermoquad/acio2emu/pkg/iob"
	"github.com/Thermoquad/acio2emu/pkg/iob/firmware"
)

func TestTBSOnBus(t *testing.T) {
	panel := &firmware.PanelState{}
	bus := iob.New("COM1")
	if err := bus.RegisterNode(firmware.NewBI2X(firmware.NewTBS(panel), nil)); err != nil {
		t.Fatal(err)
	}

	exchange := func(nodeByte, tag uint8, payload []byte) *acio2.Packet {
		t.Helper()
		bus.Write(acio2.MustEncodeRequest(nodeByte, tag, payload))
		reply := make([]byte, bus.Pending())
		bus.Read(reply)
		p, err := acio2.DecodeReply(reply)
		if err != nil {
			t.Fatalf("DecodeReply failed: %v", err)
		}
		return p
	}

	// enumeration sees one slave
	p := exchange(0x00, 0x01, []byte{0x00, 0x01})
	if !bytes.Equal(p.Payload, []byte{0x00, 0x01, 0x00}) {
		t.Errorf("enumeration payload % X", p.Payload)
	}

	panel.InsertCoin()
	panel.Update(func(s *firmware.TBSState) { s.Test = true })

	p = exchange(0x02, 0x02, []byte{0x03, 0x10})
	want := []byte{0x03, 0x10, 0x00, 0, 0, 1, 0x01, 0, 0x7F, 0xFF, 0x7F, 0xFF, 0}
	if p.ReplyIndex() != 1 || p.Tag != 0x02 {
		t.Errorf("reply header mismatch: node=0x%02X tag=0x%02X", p.Node, p.Tag)
	}
	if !bytes.Equal(p.Payload, want) {
		t.Errorf("poll payload\n got % X\nwant % X", p.Payload, want)
	}

	// an unknown command yields silence
	bus.Write(acio2.MustEncodeRequest(0x02, 0x03, []byte{0x7E, 0x7E}))
	if bus.Pending() != 0 {
		t.Errorf("expected no reply for unknown command, got %d bytes", bus.Pending())
	}
}
