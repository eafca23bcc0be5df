// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/acio2emu/internal/logging"
	"github.com/Thermoquad/acio2emu/pkg/acio2"
)

// replyReader decodes replies arriving on a host connection in the background
type replyReader struct {
	packets chan *acio2.Packet
	errs    chan error

	crcErrors atomic.Uint64
}

// startReplyReader reads conn until it fails. The read error is delivered
// once on errs.
func startReplyReader(conn Connection) *replyReader {
	r := &replyReader{
		packets: make(chan *acio2.Packet, 16),
		errs:    make(chan error, 1),
	}

	go func() {
		decoder := acio2.NewReplyDecoder()
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				r.errs <- err
				return
			}
			if n == 0 {
				continue
			}

			logging.LogRawBytes("rx", buf[:n])
			for i := 0; i < n; i++ {
				packet, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr != nil {
					r.crcErrors.Add(1)
					logging.Debug("Reply rejected", zap.Error(decodeErr))
					continue
				}
				if packet != nil {
					r.packets <- packet
				}
			}
		}
	}()

	return r
}

// await waits for the reply carrying tag. Replies with other tags are
// stale and dropped.
func (r *replyReader) await(tag uint8, timeout time.Duration) (*acio2.Packet, error) {
	deadline := time.After(timeout)
	for {
		select {
		case p := <-r.packets:
			if p.Tag == tag {
				return p, nil
			}
			logging.Debug("Dropping stale reply", zap.Uint8("tag", p.Tag), zap.Uint8("want", tag))

		case err := <-r.errs:
			return nil, fmt.Errorf("read error: %w", err)

		case <-deadline:
			return nil, errTimeout
		}
	}
}

var errTimeout = fmt.Errorf("timed out waiting for reply")

// sendRequest frames payload as a request to nodeByte and writes it
func sendRequest(conn Connection, nodeByte, tag uint8, payload []byte) error {
	frame, err := acio2.EncodeRequest(nil, nodeByte, tag, payload)
	if err != nil {
		return err
	}
	logging.LogRawBytes("tx", frame)
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("write error: %w", err)
	}
	return nil
}

// nextTag returns the tag after t, skipping SOF so the tag never
// resynchronises a decoder.
func nextTag(t uint8) uint8 {
	t++
	if t == acio2.SOF {
		t++
	}
	return t
}
