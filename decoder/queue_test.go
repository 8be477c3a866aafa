// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"testing"

	"github.com/gogpu/vkdecoder/vk"
)

func TestSynthesizeVirtualQueueAndPhysicalOf(t *testing.T) {
	physical := vk.Queue(0x100)
	virtual := SynthesizeVirtualQueue(physical)

	if !IsVirtualQueue(virtual) {
		t.Fatal("IsVirtualQueue(virtual) = false")
	}
	if IsVirtualQueue(physical) {
		t.Error("IsVirtualQueue(physical) = true")
	}
	if got := PhysicalOf(virtual); got != physical {
		t.Errorf("PhysicalOf(virtual) = %#x, want %#x", uint64(got), uint64(physical))
	}
}

func TestSynthesizeVirtualQueueFatalOnAlreadyVirtual(t *testing.T) {
	defer func() {
		if recovered := recover(); recovered == nil {
			t.Fatal("SynthesizeVirtualQueue on an already-virtual handle did not panic")
		}
	}()
	SynthesizeVirtualQueue(vk.Queue(0x101))
}

func TestSafeToSubmitWaitAlreadySatisfied(t *testing.T) {
	tracker := NewSemaphoreTracker()
	sem := &SemaphoreRecord{Timeline: true, LastSignalValue: 5}
	semaphores := map[vk.Semaphore]*SemaphoreRecord{1: sem}

	submits := []vk.SubmitInfo{{WaitSemaphores: []vk.Semaphore{1}, WaitValues: []uint64{5}}}
	if !safeToSubmit(tracker, semaphores, submits) {
		t.Error("safeToSubmit() = false, want true when the wait value is already satisfied")
	}
}

func TestSafeToSubmitWaitNotSatisfied(t *testing.T) {
	tracker := NewSemaphoreTracker()
	sem := &SemaphoreRecord{Timeline: true, LastSignalValue: 1}
	semaphores := map[vk.Semaphore]*SemaphoreRecord{1: sem}

	submits := []vk.SubmitInfo{{WaitSemaphores: []vk.Semaphore{1}, WaitValues: []uint64{5}}}
	if safeToSubmit(tracker, semaphores, submits) {
		t.Error("safeToSubmit() = true, want false when the wait value has not been reached")
	}
}

func TestSafeToSubmitSelfSignalledWithinBatch(t *testing.T) {
	tracker := NewSemaphoreTracker()
	sem := &SemaphoreRecord{Timeline: true, LastSignalValue: 0}
	semaphores := map[vk.Semaphore]*SemaphoreRecord{1: sem}

	submits := []vk.SubmitInfo{
		{SignalSemaphores: []vk.Semaphore{1}, SignalValues: []uint64{5}},
		{WaitSemaphores: []vk.Semaphore{1}, WaitValues: []uint64{5}},
	}
	if !safeToSubmit(tracker, semaphores, submits) {
		t.Error("safeToSubmit() = false, want true when the same batch signals the wait value")
	}
}

func TestQueueDispatcherSubmitDeferredWhenUnsafe(t *testing.T) {
	shared := NewSharedQueueState()
	tracker := NewSemaphoreTracker()
	dispatcher := NewQueueDispatcher(shared, tracker)

	sem := &SemaphoreRecord{Timeline: true, LastSignalValue: 0}
	semaphores := map[vk.Semaphore]*SemaphoreRecord{1: sem}

	called := false
	dispatch := &vk.DispatchTable{
		QueueSubmit: func(vk.Queue, []vk.SubmitInfo, vk.Fence) vk.Result {
			called = true
			return vk.Success
		},
	}

	submits := []vk.SubmitInfo{{WaitSemaphores: []vk.Semaphore{1}, WaitValues: []uint64{1}}}
	deferred, err := dispatcher.Submit(vk.Device(1), vk.Queue(1), submits, vk.Fence(0), semaphores, dispatch)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !deferred {
		t.Error("Submit() deferred = false, want true for an unsatisfied wait")
	}
	if called {
		t.Error("Submit() called the driver despite the wait not being satisfied")
	}
	if len(shared.pending) != 1 {
		t.Errorf("pending queue length = %d, want 1", len(shared.pending))
	}
}

func TestQueueDispatcherSubmitDrainsPendingOnAdvance(t *testing.T) {
	shared := NewSharedQueueState()
	tracker := NewSemaphoreTracker()
	dispatcher := NewQueueDispatcher(shared, tracker)

	sem := &SemaphoreRecord{Timeline: true, LastSignalValue: 0}
	semaphores := map[vk.Semaphore]*SemaphoreRecord{1: sem}

	var submitted int
	dispatch := &vk.DispatchTable{
		QueueSubmit: func(vk.Queue, []vk.SubmitInfo, vk.Fence) vk.Result {
			submitted++
			return vk.Success
		},
	}

	// First submission waits on a value nothing has signalled yet: deferred.
	blocked := []vk.SubmitInfo{{WaitSemaphores: []vk.Semaphore{1}, WaitValues: []uint64{1}}}
	if deferred, err := dispatcher.Submit(vk.Device(1), vk.Queue(1), blocked, vk.Fence(0), semaphores, dispatch); err != nil || !deferred {
		t.Fatalf("first Submit() = (deferred=%v, err=%v), want (true, nil)", deferred, err)
	}

	// Second submission signals the semaphore to the value the first one
	// needs; its own dispatch, plus the drain of the pending entry, should
	// each invoke QueueSubmit once.
	unblocking := []vk.SubmitInfo{{SignalSemaphores: []vk.Semaphore{1}, SignalValues: []uint64{1}}}
	if deferred, err := dispatcher.Submit(vk.Device(1), vk.Queue(1), unblocking, vk.Fence(0), semaphores, dispatch); err != nil || deferred {
		t.Fatalf("second Submit() = (deferred=%v, err=%v), want (false, nil)", deferred, err)
	}

	if submitted != 2 {
		t.Errorf("driver QueueSubmit called %d times, want 2 (unblocking submit + drained pending)", submitted)
	}
	if len(shared.pending) != 0 {
		t.Errorf("pending queue length after drain = %d, want 0", len(shared.pending))
	}
}

func TestQueueRegistryDrainAll(t *testing.T) {
	shared := NewSharedQueueState()
	tracker := NewSemaphoreTracker()
	dispatcher := NewQueueDispatcher(shared, tracker)
	registry := NewQueueRegistry()

	sem := &SemaphoreRecord{Timeline: true, LastSignalValue: 1}
	semaphores := map[vk.Semaphore]*SemaphoreRecord{1: sem}
	registry.Register(vk.Queue(1), dispatcher, func() map[vk.Semaphore]*SemaphoreRecord { return semaphores })

	var submitted int
	dispatch := &vk.DispatchTable{
		QueueSubmit: func(vk.Queue, []vk.SubmitInfo, vk.Fence) vk.Result {
			submitted++
			return vk.Success
		},
	}

	// Enqueue directly into the shared pending list to simulate a prior
	// deferred submission, then drive the drain through the registry.
	shared.pending = append(shared.pending, &pendingSubmission{
		submits:  []vk.SubmitInfo{{WaitSemaphores: []vk.Semaphore{1}, WaitValues: []uint64{1}}},
		dispatch: dispatch,
		device:   vk.Device(1),
	})

	registry.DrainAll()

	if submitted != 1 {
		t.Errorf("driver QueueSubmit called %d times via DrainAll, want 1", submitted)
	}
	if len(shared.pending) != 0 {
		t.Errorf("pending queue length after DrainAll = %d, want 0", len(shared.pending))
	}
}
