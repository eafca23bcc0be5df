// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package firmware emulates the firmware of nodes attached to an ACIO2 bus.
package firmware

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Thermoquad/acio2emu/pkg/acio2"
)

// BI2X command codes
const (
	CmdFirmwareVersion = 0x0002
	CmdStatus          = 0x0010
	CmdAck13           = 0x0013
	CmdCapabilities    = 0x0078
	CmdAck320          = 0x0320
	CmdQuery321        = 0x0321
	CmdAck322          = 0x0322
	CmdPollInput       = 0x0310
	CmdWriteOutput     = 0x0311
	CmdSkip312         = 0x0312
)

// cmdSkipLength is the number of argument bytes ignored after CmdSkip312
const cmdSkipLength = 4

// ErrUnknownCommand is wrapped by CommandError for unsupported command codes
var ErrUnknownCommand = errors.New("unknown command")

// CommandError reports a command the node could not execute
type CommandError struct {
	Cmd uint16
	Err error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("bi2x command 0x%04X: %v", e.Cmd, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Device supplies the board specific parts of a BI2X node
type Device interface {
	// FirmwareVersion appends the version blob to out
	FirmwareVersion(out []byte) []byte

	// ReadInput appends the current input report to out
	ReadInput(out []byte) ([]byte, error)

	// WriteOutput consumes an output report from the front of data and
	// returns the number of bytes used
	WriteOutput(data []byte) (int, error)
}

// BI2X is a bus node running BI2X firmware on top of a Device
type BI2X struct {
	dev    Device
	logger *zap.Logger
}

// NewBI2X creates a BI2X node. A nil logger disables logging.
func NewBI2X(dev Device, logger *zap.Logger) *BI2X {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BI2X{dev: dev, logger: logger}
}

// Device returns the board behind the node
func (n *BI2X) Device() Device {
	return n.dev
}

// HandlePacket executes every command in the payload.
//
// Each command is echoed as its two code bytes and a zero status byte.
// Query commands end the payload; input polls, output writes and skips
// continue with the next command.
func (n *BI2X) HandlePacket(in *acio2.Packet, out []byte) ([]byte, error) {
	payload := in.Payload
	cur := 0

	for cur+1 < len(payload) {
		cmd := uint16(payload[cur])<<8 | uint16(payload[cur+1])
		out = append(out, payload[cur], payload[cur+1], 0)
		cur += 2

		switch cmd {
		case CmdFirmwareVersion:
			out = n.dev.FirmwareVersion(out)
			return out, nil

		case CmdStatus:
			return append(out, 2), nil

		case CmdAck13, CmdAck320, CmdAck322:
			return out, nil

		case CmdCapabilities:
			return append(out, 3), nil

		case CmdQuery321:
			return append(out, 33, 0), nil

		case CmdPollInput:
			var err error
			out, err = n.dev.ReadInput(out)
			if err != nil {
				return out, &CommandError{Cmd: cmd, Err: err}
			}

		case CmdWriteOutput:
			count, err := n.dev.WriteOutput(payload[cur:])
			if err != nil {
				return out, &CommandError{Cmd: cmd, Err: err}
			}
			if count < 0 {
				return out, &CommandError{Cmd: cmd, Err: fmt.Errorf("negative output length %d", count)}
			}
			cur += count

		case CmdSkip312:
			cur += cmdSkipLength

		default:
			n.logger.Warn("Unknown command", zap.Uint16("cmd", cmd), zap.Uint8("tag", in.Tag))
			return out, &CommandError{Cmd: cmd, Err: ErrUnknownCommand}
		}
	}

	return out, nil
}
