// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acio2

const (
	inflateWindowSize  = 85
	inflateWindowStart = 81

	// flagsPerByte is the number of slots started per flags byte. Bit 7
	// is only ever read as the second bit of a pair starting at bit 6.
	flagsPerByte = 7

	// Back-reference descriptor thresholds
	matchLong   = 0xAA // 4-byte match, offset = value - 0xAB
	matchMedium = 0x55 // 3-byte match, offset = value - 0x55
)

type inflateStep uint8

const (
	inflateReadFlags      inflateStep = 0
	inflateProcessFlags   inflateStep = 1
	inflateCopyStored     inflateStep = 2
	inflateCopyFromWindow inflateStep = 3
)

// Inflater is a streaming decompressor for LZ encoded payloads.
//
// Compressed bytes are fed one at a time with Put; decompressed bytes are
// drained with Get. The dictionary window persists for the lifetime of one
// compressed stream, call Reset before starting the next one.
type Inflater struct {
	output []byte
	head   int

	flags     uint8
	flagShift uint8

	window       [inflateWindowSize]byte
	windowOffset int

	step inflateStep
}

// NewInflater creates an Inflater ready for a new stream
func NewInflater() *Inflater {
	f := &Inflater{}
	f.Reset()
	return f
}

// Reset discards the window, pending output and flag state
func (f *Inflater) Reset() {
	*f = Inflater{
		output:       f.output[:0],
		windowOffset: inflateWindowStart,
		step:         inflateReadFlags,
	}
}

func (f *Inflater) windowPut(b byte) {
	f.window[f.windowOffset] = b
	f.windowOffset = (f.windowOffset + 1) % inflateWindowSize
}

func (f *Inflater) windowGet(offset int) byte {
	return f.window[offset%inflateWindowSize]
}

func (f *Inflater) emit(b byte) {
	f.output = append(f.output, b)
}

// Put feeds one compressed byte. It may queue zero or more output bytes.
func (f *Inflater) Put(b byte) {
	consumed := false

	for {
		switch f.step {
		case inflateReadFlags:
			if consumed {
				return
			}
			consumed = true

			f.flags = b
			f.flagShift = 0
			f.step = inflateProcessFlags

		case inflateProcessFlags:
			if f.flagShift >= flagsPerByte {
				f.step = inflateReadFlags
				break
			}

			if f.flags&(1<<f.flagShift) != 0 {
				f.flagShift++
				if f.flags&(1<<f.flagShift) != 0 {
					// both bits set: literal SOF, no input consumed
					f.emit(SOF)
				} else {
					f.step = inflateCopyFromWindow
				}
			} else {
				f.step = inflateCopyStored
			}
			f.flagShift++

		case inflateCopyFromWindow:
			if consumed {
				return
			}
			consumed = true

			// offsets are 8-bit: 0xAA wraps to 0xFF
			offset := b
			size := 2
			if b >= matchLong {
				size = 4
				offset -= matchLong + 1
			} else if b >= matchMedium {
				size = 3
				offset -= matchMedium
			}

			// the window is addressed absolutely; a match may read bytes
			// it has just written
			for i := 0; i < size; i++ {
				cur := f.windowGet(int(offset) + i)
				f.windowPut(cur)
				f.emit(cur)
			}
			f.step = inflateProcessFlags

		case inflateCopyStored:
			if consumed {
				return
			}
			consumed = true

			f.windowPut(b)
			f.emit(b)
			f.step = inflateProcessFlags
		}
	}
}

// Get dequeues one decompressed byte. ok is false when the queue is empty.
func (f *Inflater) Get() (b byte, ok bool) {
	if f.head >= len(f.output) {
		f.output = f.output[:0]
		f.head = 0
		return 0, false
	}
	b = f.output[f.head]
	f.head++
	return b, true
}

// Buffered returns the number of decompressed bytes waiting to be read
func (f *Inflater) Buffered() int {
	return len(f.output) - f.head
}
