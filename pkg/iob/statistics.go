// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package iob

import (
	"fmt"
	"time"
)

// Statistics tracks bus transactions and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalRequests uint64
	Replies       uint64
	RoutingMisses uint64
	NodeErrors    uint64
	EncodeErrors  uint64
	BytesIn       uint64
	BytesOut      uint64

	// Requests per slot, index 0 is the master node
	NodeRequests [MaxNodes]uint64

	// Rates (calculated)
	RequestRate float64 // requests/sec
	ErrorRate   float64 // dropped transactions/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records the outcome of one transaction
func (s *Statistics) Update(t *Transaction) {
	s.TotalRequests++
	if t.Slot >= 0 && t.Slot < MaxNodes {
		s.NodeRequests[t.Slot]++
	}

	switch t.Outcome {
	case OutcomeReplied:
		s.Replies++
		s.BytesOut += uint64(len(t.Reply))
	case OutcomeRoutingMiss:
		s.RoutingMisses++
	case OutcomeNodeError:
		s.NodeErrors++
	case OutcomeEncodeError:
		s.EncodeErrors++
	}

	s.LastUpdateTime = t.Time
}

// Errors returns the number of transactions that produced no reply
func (s *Statistics) Errors() uint64 {
	return s.RoutingMisses + s.NodeErrors + s.EncodeErrors
}

// CalculateRates calculates request and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.RequestRate = float64(s.TotalRequests) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var replyPercent, missPercent, nodeErrorPercent, encodeErrorPercent float64
	if s.TotalRequests > 0 {
		replyPercent = float64(s.Replies) * 100.0 / float64(s.TotalRequests)
		missPercent = float64(s.RoutingMisses) * 100.0 / float64(s.TotalRequests)
		nodeErrorPercent = float64(s.NodeErrors) * 100.0 / float64(s.TotalRequests)
		encodeErrorPercent = float64(s.EncodeErrors) * 100.0 / float64(s.TotalRequests)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Requests:  %8d\n", s.TotalRequests)
	result += fmt.Sprintf("Replies:         %8d (%.1f%%)\n", s.Replies, replyPercent)

	if s.RoutingMisses > 0 {
		result += fmt.Sprintf("Routing Misses:  %8d (%.1f%%)\n", s.RoutingMisses, missPercent)
	}
	if s.NodeErrors > 0 {
		result += fmt.Sprintf("Node Errors:     %8d (%.1f%%)\n", s.NodeErrors, nodeErrorPercent)
	}
	if s.EncodeErrors > 0 {
		result += fmt.Sprintf("Encode Errors:   %8d (%.1f%%)\n", s.EncodeErrors, encodeErrorPercent)
	}

	for slot, count := range s.NodeRequests {
		if count > 0 {
			result += fmt.Sprintf("  Node %2d:        %8d\n", slot, count)
		}
	}

	result += fmt.Sprintf("Bytes In/Out:    %8d / %d\n", s.BytesIn, s.BytesOut)
	result += fmt.Sprintf("Request Rate:    %8.1f req/sec\n", s.RequestRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
