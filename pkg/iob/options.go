// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package iob

import "go.uber.org/zap"

// Option configures a Handle
type Option func(*Handle)

// WithLogger sets the logger used for routing and encoding diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handle) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithStatistics records every transaction into s
func WithStatistics(s *Statistics) Option {
	return func(h *Handle) {
		h.stats = s
	}
}

// WithTransactionHook calls fn after every forwarded request.
// The transaction is only valid for the duration of the call.
func WithTransactionHook(fn func(*Transaction)) Option {
	return func(h *Handle) {
		h.hook = fn
	}
}
