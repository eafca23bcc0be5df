// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package firmware

import (
	"math"
	"sync"
)

// tbsFirmwareVersion is the version blob reported by the TBS board
var tbsFirmwareVersion = [...]byte{
	0x0D, 0x06, 0x00, 0x01,
	0x00, 0x01, 0x02, 0x08,
	0x42, 0x49, 0x32, 0x58, // "BI2X"
	0x01, 0x94, 0xF1, 0x8E,
	0x00, 0x00, 0x01, 0x0B,
	0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
	0xA8, 0x24, 0x8E, 0xE2,
}

const (
	// TBSInputReportSize is the length of one input poll report
	TBSInputReportSize = 10

	// tbsOutputReportSize is the number of bytes consumed by one output write
	tbsOutputReportSize = 8

	axisCenter = math.MaxInt16
)

// Axis is an analog stick axis. Set selects Value over the digital directions.
type Axis struct {
	Value float64 // 0.0 to 1.0
	Set   bool
}

// TBSState is a snapshot of the TBS cabinet controls
type TBSState struct {
	Coins uint8 // coins inserted since the previous poll

	Test    bool
	Service bool

	Left, Right, Up, Down bool
	StickX, StickY        Axis

	JoystickButton bool
	Trigger1       bool
	Trigger2       bool
	Buttons        [4]bool
}

// InputSource provides cabinet input to a TBS board
type InputSource interface {
	PollInput() TBSState
}

// StaticInput always reports the same state. Coins are added on every poll.
type StaticInput TBSState

// PollInput implements InputSource
func (s StaticInput) PollInput() TBSState {
	return TBSState(s)
}

// PanelState is an InputSource updated by a user interface.
// It is safe for concurrent use.
type PanelState struct {
	mu    sync.Mutex
	state TBSState
}

// Update applies fn to the held state
func (p *PanelState) Update(fn func(s *TBSState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.state)
}

// InsertCoin queues one coin for the next poll
func (p *PanelState) InsertCoin() {
	p.Update(func(s *TBSState) { s.Coins++ })
}

// Snapshot returns the held state without consuming pending coins
func (p *PanelState) Snapshot() TBSState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// PollInput implements InputSource. Pending coins are consumed.
func (p *PanelState) PollInput() TBSState {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.state
	p.state.Coins = 0
	return s
}

// TBS is the BI2X board of the TBS cabinet
type TBS struct {
	input InputSource
	coins uint8
}

// NewTBS creates a TBS board reading from input
func NewTBS(input InputSource) *TBS {
	return &TBS{input: input}
}

// FirmwareVersion implements Device
func (t *TBS) FirmwareVersion(out []byte) []byte {
	return append(out, tbsFirmwareVersion[:]...)
}

// Coins returns the running coin counter
func (t *TBS) Coins() uint8 {
	return t.coins
}

// ReadInput implements Device
func (t *TBS) ReadInput(out []byte) ([]byte, error) {
	s := t.input.PollInput()
	t.coins += s.Coins

	var sys byte
	if s.Test {
		sys |= 1 << 0
	}
	if s.Service {
		sys |= 1 << 2
	}

	x := axisValue(s.Left, s.Right, s.StickX)
	y := axisValue(s.Down, s.Up, s.StickY)

	var buttons byte
	for i, pressed := range []bool{
		s.JoystickButton, s.Trigger1, s.Trigger2,
		s.Buttons[0], s.Buttons[1], s.Buttons[2], s.Buttons[3],
	} {
		if pressed {
			buttons |= 1 << i
		}
	}

	return append(out,
		0, 0, t.coins,
		sys, 0,
		byte(x>>8), byte(x),
		byte(y>>8), byte(y),
		buttons,
	), nil
}

// WriteOutput implements Device. The board has no outputs to drive.
func (t *TBS) WriteOutput(data []byte) (int, error) {
	return tbsOutputReportSize, nil
}

// axisValue folds a digital direction pair and an analog axis into the
// big-endian 16-bit value the board reports. Arithmetic wraps like the
// board's 16-bit register.
func axisValue(plus, minus bool, analog Axis) uint16 {
	if analog.Set {
		v := min(max(analog.Value, 0), 1)
		return math.MaxUint16 - uint16(v*math.MaxUint16)
	}

	v := uint16(axisCenter)
	if plus {
		v += axisCenter
	}
	if minus {
		v -= axisCenter
	}
	return v
}
