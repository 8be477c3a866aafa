// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"sync"

	"github.com/gogpu/vkdecoder/vk"
)

// Waitable is the future-like handle spec.md's glossary describes:
// "reports done when an internal fence signals". It is backed by an
// internal VkFence the Device-Op Tracker owns, never one the guest sees.
type Waitable struct {
	device   vk.Device
	fence    vk.Fence
	dispatch *vk.DispatchTable
}

// Done reports whether the waitable's backing fence has signalled,
// without blocking.
func (w *Waitable) Done() bool {
	if w == nil || w.fence == vk.NullHandle {
		return true
	}
	return w.dispatch.GetFenceStatus(w.device, w.fence) == vk.Success
}

// Wait blocks until the waitable signals or timeoutNanos elapses,
// returning true if it signalled.
func (w *Waitable) Wait(timeoutNanos uint64) bool {
	if w == nil || w.fence == vk.NullHandle {
		return true
	}
	res := w.dispatch.WaitForFences(w.device, []vk.Fence{w.fence}, true, timeoutNanos)
	return res == vk.Success
}

// pendingGarbage is one {waitable, object} pair held until it is safe to
// destroy the object (spec.md §4.2 "Delayed garbage", §4.9 device-op
// tracker).
type pendingGarbage struct {
	waitable *Waitable
	destroy  func()
}

// DeviceOpTracker issues waitables for submissions and defers destruction
// of objects still referenced by in-flight work, per spec.md §4.9.
// Grounded on _examples/gogpu-wgpu/hal/vulkan/fence_pool.go's
// maintain()/poll-and-recycle shape, generalized from "recycle a fence"
// to "run an arbitrary destroy callback once a waitable fires".
type DeviceOpTracker struct {
	mu      sync.Mutex
	pending []pendingGarbage
}

func NewDeviceOpTracker() *DeviceOpTracker {
	return &DeviceOpTracker{}
}

// NewWaitable issues a waitable backed by fence, which the caller is
// responsible for having submitted (or for passing NullHandle if the
// work is already known to be complete).
func (t *DeviceOpTracker) NewWaitable(device vk.Device, fence vk.Fence, dispatch *vk.DispatchTable) *Waitable {
	return &Waitable{device: device, fence: fence, dispatch: dispatch}
}

// DeferDestroy holds destroy until w reports done. Call Poll periodically
// (or before any operation that needs pending-garbage drained, such as
// device teardown) to actually run it.
func (t *DeviceOpTracker) DeferDestroy(w *Waitable, destroy func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, pendingGarbage{waitable: w, destroy: destroy})
}

// Poll destroys every pending object whose waitable has fired and
// returns how many were collected.
func (t *DeviceOpTracker) Poll() int {
	t.mu.Lock()
	remaining := t.pending[:0]
	var fired []func()
	for _, g := range t.pending {
		if g.waitable.Done() {
			fired = append(fired, g.destroy)
		} else {
			remaining = append(remaining, g)
		}
	}
	t.pending = remaining
	t.mu.Unlock()

	for _, destroy := range fired {
		destroy()
	}
	return len(fired)
}

// DrainBlocking waits for every pending waitable to fire (used by device
// teardown, which must not leave garbage behind) and destroys them all.
func (t *DeviceOpTracker) DrainBlocking(timeoutNanos uint64) {
	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	for _, g := range pending {
		g.waitable.Wait(timeoutNanos)
		g.destroy()
	}
}
