// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// acio2emu - ACIO2 I/O Board Emulator
//
// Emulates an ACIO2 bus and the boards attached to it, and provides
// host-side tools for talking to real or emulated buses.

package main

import (
	"os"

	"github.com/Thermoquad/acio2emu/cmd"
	"github.com/Thermoquad/acio2emu/internal/logging"
)

func main() {
	err := cmd.Execute()
	logging.Sync()
	if err != nil {
		os.Exit(1)
	}
}
