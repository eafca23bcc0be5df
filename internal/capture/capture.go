// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records bus transactions as a CBOR sequence and replays them.
package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/Thermoquad/acio2emu/internal/logging"
	"github.com/Thermoquad/acio2emu/pkg/iob"
)

// Record is one captured transaction
type Record struct {
	Time    time.Time `cbor:"1,keyasint"`
	Node    uint8     `cbor:"2,keyasint"`
	Tag     uint8     `cbor:"3,keyasint"`
	Payload []byte    `cbor:"4,keyasint"`
	Slot    int       `cbor:"5,keyasint"`
	Outcome uint8     `cbor:"6,keyasint"`
	Reply   []byte    `cbor:"7,keyasint,omitempty"`
}

// NewRecord copies a transaction into a Record
func NewRecord(t *iob.Transaction) Record {
	rec := Record{
		Time:    t.Time,
		Node:    t.Request.Node,
		Tag:     t.Request.Tag,
		Payload: append([]byte{}, t.Request.Payload...),
		Slot:    t.Slot,
		Outcome: uint8(t.Outcome),
	}
	if t.Reply != nil {
		rec.Reply = append([]byte{}, t.Reply...)
	}
	return rec
}

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Writer appends records to a CBOR sequence. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	closer io.Closer
	count  int
}

// NewWriter writes records to w
func NewWriter(w io.Writer) *Writer {
	cw := &Writer{enc: encMode.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		cw.closer = c
	}
	return cw
}

// Create truncates or creates the capture file at path
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	return NewWriter(f), nil
}

// Write appends one record
func (w *Writer) Write(rec *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode capture record: %w", err)
	}
	w.count++
	return nil
}

// Hook returns a transaction hook for iob.WithTransactionHook.
// Write failures are logged, the bus keeps running.
func (w *Writer) Hook() func(*iob.Transaction) {
	return func(t *iob.Transaction) {
		rec := NewRecord(t)
		if err := w.Write(&rec); err != nil {
			logging.Warn("Capture write failed", zap.Error(err))
		}
	}
}

// Count returns the number of records written
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close closes the underlying writer if it is an io.Closer
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// Reader reads records from a CBOR sequence
type Reader struct {
	dec *cbor.Decoder
}

// NewReader reads records from r
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the capture
func (r *Reader) Next() (*Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode capture record: %w", err)
	}
	return &rec, nil
}
