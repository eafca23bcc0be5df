// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Thermoquad/acio2emu/internal/capture"
	"github.com/Thermoquad/acio2emu/internal/config"
	"github.com/Thermoquad/acio2emu/internal/logging"
	"github.com/Thermoquad/acio2emu/pkg/iob"
)

// emulator is a configured bus opened on its device name
type emulator struct {
	cfg     *config.Config
	bus     *iob.Locked
	panels  []config.Panel
	capture *capture.Writer
	hooks   []func(*iob.Transaction)
}

// newEmulator builds the bus described by cfg. Transactions are written to
// capturePath when it is set, and passed to hooks in order.
func newEmulator(cfg *config.Config, capturePath string, hooks ...func(*iob.Transaction)) (*emulator, error) {
	e := &emulator{cfg: cfg, hooks: hooks}

	if capturePath != "" {
		w, err := capture.Create(capturePath)
		if err != nil {
			return nil, err
		}
		e.capture = w
		e.hooks = append([]func(*iob.Transaction){w.Hook()}, e.hooks...)
	}

	handle, panels, err := cfg.BuildBus(logging.Named("iob"),
		iob.WithStatistics(iob.NewStatistics()),
		iob.WithTransactionHook(e.dispatch),
	)
	if err != nil {
		e.closeCapture()
		return nil, err
	}
	if err := handle.Open(cfg.Device); err != nil {
		e.closeCapture()
		return nil, fmt.Errorf("failed to open bus: %w", err)
	}

	e.bus = iob.NewLocked(handle)
	e.panels = panels

	logging.Info("Bus ready",
		zap.String("device", cfg.Device),
		zap.Int("nodes", handle.NumberOfNodes()),
		zap.String("capture", capturePath),
	)
	return e, nil
}

func (e *emulator) dispatch(t *iob.Transaction) {
	for _, h := range e.hooks {
		h(t)
	}
}

// statistics returns a copy of the bus counters with current rates
func (e *emulator) statistics() iob.Statistics {
	var s iob.Statistics
	e.bus.Do(func(h *iob.Handle) {
		h.Statistics().CalculateRates()
		s = *h.Statistics()
	})
	return s
}

func (e *emulator) closeCapture() {
	if e.capture == nil {
		return
	}
	if err := e.capture.Close(); err != nil {
		logging.Warn("Failed to close capture", zap.Error(err))
	}
	logging.Info("Capture closed", zap.Int("records", e.capture.Count()))
}

// Close closes the bus and flushes the capture file
func (e *emulator) Close() {
	e.bus.Do(func(h *iob.Handle) {
		h.Close()
	})
	e.closeCapture()
}
