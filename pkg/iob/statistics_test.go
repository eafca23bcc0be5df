// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package iob

import (
	"strings"
	"testing"
	"time"
)

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()

	s.Update(&Transaction{Time: time.Now(), Slot: 0, Outcome: OutcomeReplied, Reply: make([]byte, 6)})
	s.Update(&Transaction{Time: time.Now(), Slot: 1, Outcome: OutcomeNodeError})
	s.Update(&Transaction{Time: time.Now(), Slot: 5, Outcome: OutcomeRoutingMiss})
	s.Update(&Transaction{Time: time.Now(), Slot: 1, Outcome: OutcomeEncodeError})

	if s.TotalRequests != 4 {
		t.Errorf("expected 4 requests, got %d", s.TotalRequests)
	}
	if s.Replies != 1 || s.BytesOut != 6 {
		t.Errorf("replies=%d bytesOut=%d", s.Replies, s.BytesOut)
	}
	if s.Errors() != 3 {
		t.Errorf("expected 3 errors, got %d", s.Errors())
	}
	if s.NodeRequests[1] != 2 || s.NodeRequests[5] != 1 {
		t.Errorf("per-node counters: %v", s.NodeRequests)
	}

	out := s.String()
	for _, want := range []string{"Total Requests:", "Routing Misses:", "Node Errors:", "Encode Errors:", "Node  1:"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	s.Reset()
	if s.TotalRequests != 0 || s.NodeRequests[1] != 0 {
		t.Error("Reset did not clear counters")
	}
}

func TestStatistics_OutOfRangeSlot(t *testing.T) {
	s := NewStatistics()
	s.Update(&Transaction{Slot: 127, Outcome: OutcomeRoutingMiss})
	if s.RoutingMisses != 1 {
		t.Errorf("expected 1 routing miss, got %d", s.RoutingMisses)
	}
}
