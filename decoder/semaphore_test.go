// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"testing"

	"github.com/gogpu/vkdecoder/vk"
)

func TestSemaphoreTrackerTimelineMonotonic(t *testing.T) {
	tracker := NewSemaphoreTracker()
	rec := &SemaphoreRecord{Timeline: true}

	tracker.Signal(vk.Device(1), rec, 5)
	if got := tracker.Value(rec); got != 5 {
		t.Fatalf("Value() = %d, want 5", got)
	}

	// Lowering the value must be silently ignored (invariant 4).
	tracker.Signal(vk.Device(1), rec, 2)
	if got := tracker.Value(rec); got != 5 {
		t.Errorf("Value() after lower signal = %d, want 5", got)
	}

	tracker.Signal(vk.Device(1), rec, 9)
	if got := tracker.Value(rec); got != 9 {
		t.Errorf("Value() after higher signal = %d, want 9", got)
	}
}

func TestSemaphoreTrackerBinaryZeroToOne(t *testing.T) {
	tracker := NewSemaphoreTracker()
	rec := &SemaphoreRecord{Timeline: false}

	tracker.Signal(vk.Device(1), rec, 0)
	if got := tracker.Value(rec); got != 1 {
		t.Fatalf("Value() after binary signal = %d, want 1", got)
	}

	// A second signal must not advance further.
	tracker.Signal(vk.Device(1), rec, 0)
	if got := tracker.Value(rec); got != 1 {
		t.Errorf("Value() after repeated binary signal = %d, want 1", got)
	}
}

func TestSemaphoreTrackerNotifiesListenersOnAdvance(t *testing.T) {
	tracker := NewSemaphoreTracker()
	rec := &SemaphoreRecord{Timeline: true}

	var notified []vk.Device
	tracker.OnAdvance(func(d vk.Device) { notified = append(notified, d) })

	tracker.Signal(vk.Device(42), rec, 1)
	if len(notified) != 1 || notified[0] != vk.Device(42) {
		t.Fatalf("listeners notified = %v, want [42]", notified)
	}

	// A signal that doesn't advance the value must not notify again.
	tracker.Signal(vk.Device(42), rec, 1)
	if len(notified) != 1 {
		t.Errorf("listener notified %d times for a non-advancing signal, want 1", len(notified))
	}
}
