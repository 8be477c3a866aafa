// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"sync"

	"github.com/gogpu/vkdecoder/vk"
)

// SemaphoreTracker advances and reads timeline-semaphore signal values
// and notifies the Queue Scheduler so deferred submissions can be
// re-evaluated, per spec.md §4.5. Grounded on the dual binary/timeline
// design of _examples/gogpu-wgpu/hal/vulkan/fence.go's deviceFence,
// generalized from "one fence's own counter" to "every semaphore in the
// process", since here the tracker is itself the shared state rather
// than a per-object field.
type SemaphoreTracker struct {
	mu        sync.Mutex
	listeners []func(device vk.Device)
}

func NewSemaphoreTracker() *SemaphoreTracker {
	return &SemaphoreTracker{}
}

// OnAdvance registers a callback invoked after any semaphore belonging to
// device advances; the Queue Scheduler uses this to drain pending
// submissions (§4.4 step 4, §4.5).
func (t *SemaphoreTracker) OnAdvance(fn func(device vk.Device)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

func (t *SemaphoreTracker) notify(device vk.Device) {
	t.mu.Lock()
	listeners := append([]func(vk.Device){}, t.listeners...)
	t.mu.Unlock()
	for _, fn := range listeners {
		fn(device)
	}
}

// Advance updates s.LastSignalValue to value if value is greater (binary
// semaphores treat any successful signal as 0->1, per spec.md §3),
// silently ignoring attempts to lower it (invariant 4), and reports
// whether the value actually moved. It does not notify listeners: a
// caller holding a lock an OnAdvance listener might need to re-acquire
// (the Queue Scheduler's per-queue mutex, notably) must use this and
// call NotifyAdvance itself only after releasing that lock.
func (t *SemaphoreTracker) Advance(s *SemaphoreRecord, value uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Timeline {
		if value > s.LastSignalValue {
			s.LastSignalValue = value
			return true
		}
		return false
	}
	if s.LastSignalValue == 0 {
		s.LastSignalValue = 1
		return true
	}
	return false
}

// NotifyAdvance runs every registered OnAdvance listener for device.
// Callers must not hold a lock a listener might try to re-acquire.
func (t *SemaphoreTracker) NotifyAdvance(device vk.Device) {
	t.notify(device)
}

// Signal is Advance+NotifyAdvance for callers with no lock of their own
// to worry about, such as vkSignalSemaphore's direct entry point.
func (t *SemaphoreTracker) Signal(device vk.Device, s *SemaphoreRecord, value uint64) {
	if t.Advance(s, value) {
		t.NotifyAdvance(device)
	}
}

// Value reads the current last-signalled value.
func (t *SemaphoreTracker) Value(s *SemaphoreRecord) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastSignalValue
}
