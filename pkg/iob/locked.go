// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package iob

import "sync"

// Locked serialises access to a Handle shared by several goroutines.
// Each call holds the lock for the whole write or read.
type Locked struct {
	mu sync.Mutex
	h  *Handle
}

// NewLocked wraps h
func NewLocked(h *Handle) *Locked {
	return &Locked{h: h}
}

// Write implements io.Writer
func (l *Locked) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.h.Write(p)
}

// Read implements io.Reader
func (l *Locked) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.h.Read(p)
}

// Exchange writes req and drains whatever reply it produced, as one
// atomic write/read pair.
func (l *Locked) Exchange(req []byte) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.h.Write(req)
	if l.h.Pending() == 0 {
		return nil
	}

	reply := make([]byte, l.h.Pending())
	l.h.Read(reply)
	return reply
}

// Transfer feeds req into the bus and appends every reply it produced to
// dst. Unlike Exchange, a req carrying several requests keeps all their
// replies, in order.
func (l *Locked) Transfer(dst, req []byte) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, b := range req {
		if !l.h.Feed(b) {
			continue
		}
		for c, ok := l.h.Next(); ok; c, ok = l.h.Next() {
			dst = append(dst, c)
		}
	}
	return dst
}

// Do runs fn with exclusive access to the handle
func (l *Locked) Do(fn func(h *Handle)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.h)
}
