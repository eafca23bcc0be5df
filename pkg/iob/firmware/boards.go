// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package firmware

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// ErrUnknownBoard is returned by NewBoard for an unregistered board name
var ErrUnknownBoard = errors.New("unknown board")

type boardFactory func(input InputSource) Device

var boards = map[string]boardFactory{
	"tbs": func(input InputSource) Device { return NewTBS(input) },
}

// Boards returns the names accepted by NewBoard, sorted
func Boards() []string {
	names := make([]string, 0, len(boards))
	for name := range boards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewBoard creates a BI2X node for the named board
func NewBoard(name string, input InputSource, logger *zap.Logger) (*BI2X, error) {
	factory, ok := boards[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownBoard, name, Boards())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return NewBI2X(factory(input), logger.With(zap.String("board", name))), nil
}
