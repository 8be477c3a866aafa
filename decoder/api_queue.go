// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"fmt"

	"github.com/gogpu/vkdecoder/vk"
)

// waitForever is the VkWaitForFences "no timeout" sentinel, used once a
// submission has actually reached the driver and its released
// ColorBuffers need flushing (§4.4 step 7).
const waitForever = ^uint64(0)

// OnQueueSubmit implements vkQueueSubmit/vkQueueSubmit2's on-device entry
// point, spec.md §4.4's dispatch policy end to end: gather each recorded
// command buffer's side effects, invalidate acquired ColorBuffers,
// manufacture an internal fence if the caller passed none, hand the
// batch to the queue's QueueDispatcher, then settle the resulting
// waitable, image-layout, and ColorBuffer-flush bookkeeping.
func (g *GlobalState) OnQueueSubmit(driverQueue vk.Queue, submits []vk.SubmitInfo, fence vk.Fence, dispatch *vk.DispatchTable) (vk.Fence, error) {
	g.mu.Lock()
	qrec, ok := g.tables.Queues.get(driverQueue)
	if !ok {
		g.mu.Unlock()
		return vk.NullHandle, fmt.Errorf("%w: vkQueueSubmit: no record for queue %#x", ErrUnknown, uint64(driverQueue))
	}
	device := qrec.Device
	dev, ok := g.tables.Devices.get(device)
	if !ok {
		g.mu.Unlock()
		return vk.NullHandle, fmt.Errorf("%w: vkQueueSubmit: no record for device %#x", ErrUnknown, uint64(device))
	}

	// Step 1: gather per-command-buffer side effects across the batch.
	acquiredColorBuffers := make([]uint32, 0)
	releasedColorBuffers := make([]uint32, 0)
	terminalImageLayouts := make(map[vk.Image]vk.ImageLayout)
	terminalColorBufferLayouts := make(map[uint32]vk.ImageLayout)
	for _, si := range submits {
		for _, cbHandle := range si.CommandBuffers {
			cb, ok := g.tables.CommandBuffers.get(cbHandle)
			if !ok {
				continue
			}
			acquiredColorBuffers = append(acquiredColorBuffers, cb.AcquiredColorBuffers...)
			releasedColorBuffers = append(releasedColorBuffers, cb.ReleasedColorBuffers...)
			for img, layout := range cb.TerminalImageLayouts {
				terminalImageLayouts[img] = layout
			}
			for id, layout := range cb.TerminalColorBufferLayouts {
				terminalColorBufferLayouts[id] = layout
			}
		}
	}
	semaphores := g.semaphoresForDeviceLocked(device)
	g.mu.Unlock()

	// Step 2: invalidate acquired ColorBuffers via the external callback.
	if g.colorBuffers != nil {
		for _, id := range acquiredColorBuffers {
			if err := g.colorBuffers.InvalidateColorBuffer(id); err != nil {
				Logger().Warn("vkQueueSubmit: InvalidateColorBuffer failed", "colorBuffer", id, "err", err)
			}
		}
	}

	// Step 3: manufacture an internal fence if the caller passed none.
	if fence == vk.NullHandle {
		var err error
		fence, err = dev.ExternalFencePool.Acquire()
		if err != nil {
			return vk.NullHandle, fmt.Errorf("vkQueueSubmit: manufacture fence: %w", err)
		}
	}

	// Steps 4-5: hand off to the per-queue dispatch policy. The driver
	// call always targets the physical handle; only the boxed/driver
	// queue record distinguishes a virtual submission.
	dispatcher := DispatcherFor(qrec, g.semaphoreTracker)
	deferred, err := dispatcher.Submit(device, PhysicalOf(driverQueue), submits, fence, semaphores, dispatch)
	if err != nil {
		return vk.NullHandle, err
	}

	// Step 6: record the submission's waitable as the latest use of every
	// referenced fence/semaphore, so deferred destruction waits for it.
	waitable := dev.OpTracker.NewWaitable(device, fence, dispatch)
	g.mu.Lock()
	if fenceRec, ok := g.tables.Fences.get(fence); ok {
		fenceRec.LatestUse = waitable
	}
	for _, si := range submits {
		for _, sem := range si.WaitSemaphores {
			if rec, ok := g.tables.Semaphores.get(sem); ok {
				rec.LatestUse = waitable
			}
		}
		for _, sem := range si.SignalSemaphores {
			if rec, ok := g.tables.Semaphores.get(sem); ok {
				rec.LatestUse = waitable
			}
		}
	}
	// Step 7 (layouts): update tracked image layouts.
	for img, layout := range terminalImageLayouts {
		if rec, ok := g.tables.Images.get(img); ok {
			rec.CurrentLayout = layout
		}
	}
	g.mu.Unlock()

	if g.colorBuffers != nil {
		for id, layout := range terminalColorBufferLayouts {
			g.colorBuffers.SetColorBufferCurrentLayout(id, layout)
		}
	}

	// Step 7 (flush): only a submission dispatched here has its released
	// ColorBuffers flushed. A deferred one skips the flush, and draining
	// it later from the pending list (queue.go) does not flush them either.
	if !deferred && len(releasedColorBuffers) > 0 && g.colorBuffers != nil {
		waitable.Wait(waitForever)
		for _, id := range releasedColorBuffers {
			if err := g.colorBuffers.FlushColorBuffer(id); err != nil {
				Logger().Warn("vkQueueSubmit: FlushColorBuffer failed", "colorBuffer", id, "err", err)
			}
		}
	}

	// Step 8: mark the fence waitable either way — a deferred submission
	// is still "sent" for fence-lifetime bookkeeping purposes (§4.4 step
	// 4), so anyone blocked in vkWaitForFences must be released now, not
	// only once the deferred record is actually dispatched.
	g.mu.Lock()
	fenceRec, ok := g.tables.Fences.get(fence)
	g.mu.Unlock()
	if ok {
		fenceRec.MarkWaitable()
	}

	return fence, nil
}

// OnQueueWaitIdle implements vkQueueWaitIdle: take the queue mutex and
// delegate to the driver (§4.4's closing line).
func (g *GlobalState) OnQueueWaitIdle(driverQueue vk.Queue, dispatch *vk.DispatchTable) error {
	g.mu.Lock()
	qrec, ok := g.tables.Queues.get(driverQueue)
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: vkQueueWaitIdle: no record for queue %#x", ErrUnknown, uint64(driverQueue))
	}
	dispatcher := DispatcherFor(qrec, g.semaphoreTracker)
	return dispatcher.WaitIdle(PhysicalOf(driverQueue), dispatch)
}
