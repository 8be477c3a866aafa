// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"github.com/gogpu/vkdecoder/vk"
)

// OnCreateSemaphore boxes a newly created semaphore and records whether
// it's a timeline semaphore, per spec.md §3/§4.5.
func (g *GlobalState) OnCreateSemaphore(driverDevice vk.Device, driverSem vk.Semaphore, info vk.SemaphoreCreateInfo) vk.Semaphore {
	rec := &SemaphoreRecord{Device: driverDevice, Timeline: info.Timeline, LastSignalValue: info.InitialValue}
	g.mu.Lock()
	g.tables.Semaphores.mustAdd(driverSem, rec)
	g.mu.Unlock()
	boxed := g.handles.NewBoxed(vk.Handle(driverSem), vk.ObjectTypeSemaphore, nil, false)
	rec.Boxed = vk.Semaphore(boxed)
	return vk.Semaphore(boxed)
}

func (g *GlobalState) OnDestroySemaphore(driverSem vk.Semaphore) {
	g.mu.Lock()
	_, ok := g.tables.Semaphores.get(driverSem)
	if ok {
		g.tables.Semaphores.remove(driverSem)
	}
	g.mu.Unlock()
	if ok {
		if boxed, ok := g.handles.BoxedOf(vk.Handle(driverSem)); ok {
			g.handles.DeleteBoxed(boxed)
		}
	}
}

// OnSignalSemaphore implements vkSignalSemaphore: advance the tracked
// value, notify listeners (this is the "not tied to a submission" trigger
// §4.5 calls out), then call through to the driver.
func (g *GlobalState) OnSignalSemaphore(driverDevice vk.Device, driverSem vk.Semaphore, value uint64, dispatch *vk.DispatchTable) vk.Result {
	g.mu.Lock()
	rec, ok := g.tables.Semaphores.get(driverSem)
	g.mu.Unlock()
	if !ok {
		return vk.ErrorUnknown
	}
	g.semaphoreTracker.Signal(driverDevice, rec, value)
	return dispatch.SignalSemaphore(driverDevice, driverSem, value)
}

// OnGetSemaphoreCounterValue returns the tracker's cached value rather
// than always re-querying the driver, since §4.5's tracker is the source
// of truth for deferred-submission decisions.
func (g *GlobalState) OnGetSemaphoreCounterValue(driverSem vk.Semaphore) uint64 {
	g.mu.Lock()
	rec, ok := g.tables.Semaphores.get(driverSem)
	g.mu.Unlock()
	if !ok {
		return 0
	}
	return g.semaphoreTracker.Value(rec)
}

// OnCreateFence boxes a new fence and initializes its waitable state
// machine (invariant 5).
func (g *GlobalState) OnCreateFence(driverDevice vk.Device, driverFence vk.Fence, info vk.FenceCreateInfo) vk.Fence {
	rec := NewFenceRecord(0, driverDevice)
	if info.Signaled {
		rec.State = FenceWaitable
	}
	g.mu.Lock()
	g.tables.Fences.mustAdd(driverFence, rec)
	g.mu.Unlock()
	boxed := g.handles.NewBoxed(vk.Handle(driverFence), vk.ObjectTypeFence, nil, false)
	rec.Boxed = vk.Fence(boxed)
	return vk.Fence(boxed)
}

func (g *GlobalState) OnDestroyFence(driverFence vk.Fence) {
	g.mu.Lock()
	_, ok := g.tables.Fences.get(driverFence)
	if ok {
		g.tables.Fences.remove(driverFence)
	}
	g.mu.Unlock()
	if ok {
		if boxed, ok := g.handles.BoxedOf(vk.Handle(driverFence)); ok {
			g.handles.DeleteBoxed(boxed)
		}
	}
}

// OnGetFenceStatus looks up the fence record. A missing record is
// treated as already signalled rather than a fatal error: §8's testable
// property is that a status query on an untracked fence returns SUCCESS
// after logging, not a crash.
func (g *GlobalState) OnGetFenceStatus(driverFence vk.Fence, dispatch *vk.DispatchTable, driverDevice vk.Device) vk.Result {
	g.mu.Lock()
	_, ok := g.tables.Fences.get(driverFence)
	g.mu.Unlock()
	if !ok {
		Logger().Warn("vkGetFenceStatus: no record for handle, treating as signalled", "handle", driverFence)
		return vk.Success
	}
	return dispatch.GetFenceStatus(driverDevice, driverFence)
}

// OnResetFences transitions every named fence back to NotWaitable before
// calling through to the driver.
func (g *GlobalState) OnResetFences(driverDevice vk.Device, driverFences []vk.Fence, dispatch *vk.DispatchTable) vk.Result {
	g.mu.Lock()
	recs := make([]*FenceRecord, 0, len(driverFences))
	for _, h := range driverFences {
		if r, ok := g.tables.Fences.get(h); ok {
			recs = append(recs, r)
		}
	}
	g.mu.Unlock()

	res := dispatch.ResetFences(driverDevice, driverFences)
	if res.Succeeded() {
		for _, r := range recs {
			r.Reset()
		}
	}
	return res
}

// OnWaitForFences gates entry into the driver's wait behind each fence's
// WaitUntilWaitable, implementing invariant 5's "the decoder must not
// call vkWaitForFences on a fence no submission has touched yet."
func (g *GlobalState) OnWaitForFences(driverDevice vk.Device, driverFences []vk.Fence, waitAll bool, timeoutNanos uint64, dispatch *vk.DispatchTable) vk.Result {
	g.mu.Lock()
	recs := make([]*FenceRecord, 0, len(driverFences))
	for _, h := range driverFences {
		if r, ok := g.tables.Fences.get(h); ok {
			recs = append(recs, r)
		}
	}
	g.mu.Unlock()

	for _, r := range recs {
		r.WaitUntilWaitable()
	}
	return dispatch.WaitForFences(driverDevice, driverFences, waitAll, timeoutNanos)
}
