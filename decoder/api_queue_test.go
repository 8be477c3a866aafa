// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"testing"
	"time"

	"github.com/gogpu/vkdecoder/vk"
)

func newTestDeviceWithQueue(t *testing.T, dispatch *vk.DispatchTable) (*GlobalState, vk.Device, vk.Queue) {
	t.Helper()
	g := NewGlobalState()
	driverDevice := vk.Device(2)
	driverQueue := vk.Queue(3)
	if dispatch.GetDeviceQueue == nil {
		dispatch.GetDeviceQueue = func(vk.Device, uint32, uint32) vk.Queue { return driverQueue }
	}
	g.OnCreateDevice(driverDevice, vk.PhysicalDevice(1), vk.CreateDeviceInfo{
		QueueCreateInfos: []vk.DeviceQueueCreateInfo{{FamilyIndex: 0, Count: 1}},
	}, dispatch, NewFeaturesFromEnv())
	return g, driverDevice, driverQueue
}

func TestOnQueueSubmitMarksFenceWaitable(t *testing.T) {
	dispatch := &vk.DispatchTable{
		QueueSubmit: func(vk.Queue, []vk.SubmitInfo, vk.Fence) vk.Result { return vk.Success },
	}
	g, driverDevice, driverQueue := newTestDeviceWithQueue(t, dispatch)

	driverFence := vk.Fence(4)
	g.OnCreateFence(driverDevice, driverFence, vk.FenceCreateInfo{})

	gotFence, err := g.OnQueueSubmit(driverQueue, []vk.SubmitInfo{{}}, driverFence, dispatch)
	if err != nil {
		t.Fatalf("OnQueueSubmit() error = %v", err)
	}
	if gotFence != driverFence {
		t.Errorf("OnQueueSubmit() fence = %#x, want %#x", uint64(gotFence), uint64(driverFence))
	}

	g.mu.Lock()
	rec, ok := g.tables.Fences.get(driverFence)
	g.mu.Unlock()
	if !ok {
		t.Fatal("fence record missing after submit")
	}
	if rec.State != FenceWaitable {
		t.Errorf("fence state = %v, want FenceWaitable (OnQueueSubmit must call MarkWaitable)", rec.State)
	}
}

// TestOnQueueSubmitSignalDoesNotDeadlock exercises the exact path that
// self-deadlocked before the Queue Scheduler's signal path stopped
// notifying listeners while holding the per-queue mutex: a submit that
// signals a timeline semaphore on a device whose OnAdvance listener
// drains every one of that device's queues.
func TestOnQueueSubmitSignalDoesNotDeadlock(t *testing.T) {
	dispatch := &vk.DispatchTable{
		QueueSubmit: func(vk.Queue, []vk.SubmitInfo, vk.Fence) vk.Result { return vk.Success },
		CreateFence: func(vk.Device, vk.FenceCreateInfo) (vk.Fence, vk.Result) { return vk.Fence(99), vk.Success },
	}
	g, driverDevice, driverQueue := newTestDeviceWithQueue(t, dispatch)

	driverSem := vk.Semaphore(5)
	g.OnCreateSemaphore(driverDevice, driverSem, vk.SemaphoreCreateInfo{Timeline: true})

	submits := []vk.SubmitInfo{{SignalSemaphores: []vk.Semaphore{driverSem}, SignalValues: []uint64{1}}}

	done := make(chan error, 1)
	go func() {
		_, err := g.OnQueueSubmit(driverQueue, submits, vk.NullHandle, dispatch)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("OnQueueSubmit() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnQueueSubmit() did not return: a signalled semaphore deadlocked the queue-drain listener")
	}
}

func TestOnQueueWaitIdleDelegatesToDriver(t *testing.T) {
	var waited bool
	dispatch := &vk.DispatchTable{
		QueueWaitIdle: func(vk.Queue) vk.Result { waited = true; return vk.Success },
	}
	g, _, driverQueue := newTestDeviceWithQueue(t, dispatch)

	if err := g.OnQueueWaitIdle(driverQueue, dispatch); err != nil {
		t.Fatalf("OnQueueWaitIdle() error = %v", err)
	}
	if !waited {
		t.Error("OnQueueWaitIdle() did not call through to the driver's QueueWaitIdle")
	}
}
