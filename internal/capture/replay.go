// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Thermoquad/acio2emu/pkg/acio2"
	"github.com/Thermoquad/acio2emu/pkg/iob"
)

// Mismatch is a replayed record whose reply differs from the capture
type Mismatch struct {
	Index  int
	Record *Record
	Got    []byte
}

// ReplayResult summarises a replay
type ReplayResult struct {
	Records    int
	Matched    int
	Mismatches []Mismatch
}

// Replay re-sends every captured request to bus and compares the replies.
// Requests are re-encoded with acio2.EncodeRequest, so only the decoded
// request, not its original wire encoding, is replayed.
func Replay(r *Reader, bus *iob.Handle) (*ReplayResult, error) {
	result := &ReplayResult{}
	var req []byte

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if err != nil {
			return result, err
		}

		req, err = acio2.EncodeRequest(req[:0], rec.Node, rec.Tag, rec.Payload)
		if err != nil {
			return result, fmt.Errorf("record %d: %w", result.Records, err)
		}
		bus.Write(req)

		got := make([]byte, bus.Pending())
		bus.Read(got)

		if bytes.Equal(got, rec.Reply) {
			result.Matched++
		} else {
			result.Mismatches = append(result.Mismatches, Mismatch{
				Index:  result.Records,
				Record: rec,
				Got:    got,
			})
		}
		result.Records++
	}
}
