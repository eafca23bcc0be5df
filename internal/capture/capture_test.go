// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Thermoquad/acio2emu/pkg/acio2"
	"github.com/Thermoquad/acio2emu/pkg/iob"
	"github.com/Thermoquad/acio2emu/pkg/iob/firmware"
)

func newBus(t *testing.T, opts ...iob.Option) *iob.Handle {
	t.Helper()
	bus := iob.New("COM1", opts...)
	if err := bus.RegisterNode(firmware.NewBI2X(firmware.NewTBS(firmware.StaticInput{}), nil)); err != nil {
		t.Fatal(err)
	}
	return bus
}

var requests = [][]byte{
	acio2.MustEncodeRequest(0x00, 0x01, []byte{0x00, 0x01}), // enumerate
	acio2.MustEncodeRequest(0x02, 0x02, []byte{0x00, 0x02}), // firmware version
	acio2.MustEncodeRequest(0x02, 0x03, []byte{0x03, 0x10}), // poll
	acio2.MustEncodeRequest(0x02, 0x04, []byte{0x99, 0x99}), // unknown
	acio2.MustEncodeRequest(0x08, 0x05, nil),                // routing miss
}

func TestWriterReader_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	bus := newBus(t, iob.WithTransactionHook(w.Hook()))

	var replies [][]byte
	for _, req := range requests {
		bus.Write(req)
		reply := make([]byte, bus.Pending())
		bus.Read(reply)
		replies = append(replies, reply)
	}

	if w.Count() != len(requests) {
		t.Fatalf("expected %d records, got %d", len(requests), w.Count())
	}

	r := NewReader(&buf)
	for i := range requests {
		rec, err := r.Next()
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if rec.Tag != uint8(i+1) {
			t.Errorf("record %d: tag %d", i, rec.Tag)
		}
		if !bytes.Equal(rec.Reply, replies[i]) {
			t.Errorf("record %d: reply mismatch\n got % X\nwant % X", i, rec.Reply, replies[i])
		}
		if rec.Time.IsZero() {
			t.Errorf("record %d: missing timestamp", i)
		}
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestRecord_Outcomes(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	bus := newBus(t, iob.WithTransactionHook(w.Hook()))
	bus.Write(bytes.Join(requests, nil))

	want := []iob.Outcome{
		iob.OutcomeReplied, iob.OutcomeReplied, iob.OutcomeReplied,
		iob.OutcomeNodeError, iob.OutcomeRoutingMiss,
	}

	r := NewReader(&buf)
	for i, outcome := range want {
		rec, err := r.Next()
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if iob.Outcome(rec.Outcome) != outcome {
			t.Errorf("record %d: outcome %s, want %s", i, iob.Outcome(rec.Outcome), outcome)
		}
		if outcome != iob.OutcomeReplied && len(rec.Reply) != 0 {
			t.Errorf("record %d: dropped transaction has a reply", i)
		}
	}
}

func TestReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.cbor")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	bus := newBus(t, iob.WithTransactionHook(w.Hook()))
	for _, req := range requests {
		bus.Write(req)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	result, err := Replay(NewReader(f), newBus(t))
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if result.Records != len(requests) || result.Matched != len(requests) {
		t.Errorf("replay: %d records, %d matched, mismatches %+v", result.Records, result.Matched, result.Mismatches)
	}
}

func TestReplay_DetectsMismatch(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	bus := newBus(t, iob.WithTransactionHook(w.Hook()))
	bus.Write(requests[0])

	// a bus with a second node enumerates differently
	other := newBus(t)
	other.RegisterNode(firmware.NewBI2X(firmware.NewTBS(firmware.StaticInput{}), nil))

	result, err := Replay(NewReader(&buf), other)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(result.Mismatches) != 1 || result.Mismatches[0].Index != 0 {
		t.Fatalf("expected one mismatch at 0, got %+v", result.Mismatches)
	}
}

func TestReader_Truncated(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	newBus(t, iob.WithTransactionHook(w.Hook())).Write(requests[1])

	data := buf.Bytes()[:buf.Len()-3]
	if _, err := NewReader(bytes.NewReader(data)).Next(); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("expected decode error for truncated record, got %v", err)
	}
}
