// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package iob

import "errors"

var (
	// ErrTooManyNodes is returned by RegisterNode once every slave slot is taken
	ErrTooManyNodes = errors.New("too many nodes")

	// ErrDeviceMismatch is returned by Open for a name other than the bus device
	ErrDeviceMismatch = errors.New("device name mismatch")

	// ErrRoutingMiss reports a request addressed past the last registered node
	ErrRoutingMiss = errors.New("node out of range")

	// ErrUnknownMasterCommand is returned by the master node for anything but enumeration
	ErrUnknownMasterCommand = errors.New("unknown master command")
)
