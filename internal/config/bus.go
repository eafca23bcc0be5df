// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Thermoquad/acio2emu/pkg/iob"
	"github.com/Thermoquad/acio2emu/pkg/iob/firmware"
)

// Panel is the live input of one configured node
type Panel struct {
	Name  string
	Slot  int
	State *firmware.PanelState
}

// BuildBus creates the bus and registers every configured node in order.
// The returned panels let a user interface drive each node's input.
func (c *Config) BuildBus(logger *zap.Logger, opts ...iob.Option) (*iob.Handle, []Panel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts = append([]iob.Option{iob.WithLogger(logger)}, opts...)
	bus := iob.New(c.Device, opts...)

	panels := make([]Panel, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		panel := &firmware.PanelState{}
		initial := n.Input.State()
		panel.Update(func(s *firmware.TBSState) { *s = initial })

		node, err := firmware.NewBoard(n.Firmware, panel, logger.Named(n.Name))
		if err != nil {
			return nil, nil, fmt.Errorf("node %s: %w", n.Name, err)
		}
		if err := bus.RegisterNode(node); err != nil {
			return nil, nil, fmt.Errorf("node %s: %w", n.Name, err)
		}

		panels = append(panels, Panel{Name: n.Name, Slot: bus.NumberOfNodes(), State: panel})
	}

	return bus, panels, nil
}
