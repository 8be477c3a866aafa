// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"fmt"

	"github.com/gogpu/vkdecoder/vk"
)

// virtualQueueBit is the low bit spec.md §4.4 synthesizes a virtual
// queue handle by setting on the physical queue's handle.
const virtualQueueBit = 1

// SynthesizeVirtualQueue mints the virtual twin of a physical queue
// handle when VulkanVirtualQueue is enabled and the guest asked for a
// second queue on the same family (§4.4). It aborts fatally if the
// physical handle already has the low bit set, matching spec.md's "no
// alternative exists to disambiguate".
func SynthesizeVirtualQueue(physical vk.Queue) vk.Queue {
	if uint64(physical)&virtualQueueBit != 0 {
		fatalf("virtual queue: physical handle %#x already has the virtual bit set", uint64(physical))
	}
	return vk.Queue(uint64(physical) | virtualQueueBit)
}

// IsVirtualQueue reports whether handle is a synthesized virtual queue.
func IsVirtualQueue(handle vk.Queue) bool {
	return uint64(handle)&virtualQueueBit != 0
}

// PhysicalOf returns the physical twin of a (possibly virtual) queue
// handle.
func PhysicalOf(handle vk.Queue) vk.Queue {
	return vk.Queue(uint64(handle) &^ virtualQueueBit)
}

// submitSideEffects is the per-command-buffer bookkeeping step 1 of
// §4.4's dispatch policy gathers, aggregated across an entire
// vkQueueSubmit call.
type submitSideEffects struct {
	acquiredColorBuffers []uint32
	releasedColorBuffers []uint32
	terminalImageLayouts map[vk.Image]vk.ImageLayout
}

// pendingSubmission is a deep copy of a deferred vkQueueSubmit, enqueued
// on the physical queue's pending list per spec.md §4.4 step 4.
type pendingSubmission struct {
	submits  []vk.SubmitInfo
	fence    vk.Fence
	effects  submitSideEffects
	dispatch *vk.DispatchTable
	device   vk.Device
}

// safeToSubmit implements §4.4 step 4's evaluation: every wait semaphore
// must already be satisfied, or be signalled within the same submission
// at a value >= its wait value.
func safeToSubmit(tracker *SemaphoreTracker, semaphores map[vk.Semaphore]*SemaphoreRecord, submits []vk.SubmitInfo) bool {
	// Values this batch itself will signal, keyed by semaphore, taking
	// the maximum signalled value across all submit infos in the batch.
	selfSignalled := make(map[vk.Semaphore]uint64)
	for _, si := range submits {
		for i, sem := range si.SignalSemaphores {
			v := uint64(1)
			if i < len(si.SignalValues) {
				v = si.SignalValues[i]
			}
			if v > selfSignalled[sem] {
				selfSignalled[sem] = v
			}
		}
	}

	for _, si := range submits {
		for i, sem := range si.WaitSemaphores {
			want := uint64(1)
			if i < len(si.WaitValues) {
				want = si.WaitValues[i]
			}
			rec, ok := semaphores[sem]
			if !ok {
				continue
			}
			if tracker.Value(rec) >= want {
				continue
			}
			if selfSignalled[sem] >= want {
				continue
			}
			return false
		}
	}
	return true
}

// QueueDispatcher runs the §4.4 dispatch policy for a single physical
// queue, holding its shared mutex and pending-submission FIFO.
type QueueDispatcher struct {
	shared  *queueShared
	tracker *SemaphoreTracker
}

func NewQueueDispatcher(shared *queueShared, tracker *SemaphoreTracker) *QueueDispatcher {
	return &QueueDispatcher{shared: shared, tracker: tracker}
}

// Submit implements vkQueueSubmit/vkQueueSubmit2's dispatch policy.
// semaphores supplies the live SemaphoreRecord for every semaphore named
// in submits (step lookups are the caller's job, since only the caller
// holds the global object tables). If fence is NullHandle, a caller must
// have already manufactured an internal fence per step 3; Submit does
// not do so itself to avoid taking a dispatch-table-and-device pair it
// doesn't otherwise need.
func (q *QueueDispatcher) Submit(device vk.Device, driverQueue vk.Queue, submits []vk.SubmitInfo, fence vk.Fence, semaphores map[vk.Semaphore]*SemaphoreRecord, dispatch *vk.DispatchTable) (deferred bool, err error) {
	q.shared.mu.Lock()

	if !safeToSubmit(q.tracker, semaphores, submits) {
		copied := make([]vk.SubmitInfo, len(submits))
		for i, si := range submits {
			copied[i] = vk.SubmitInfo{
				WaitSemaphores:   append([]vk.Semaphore(nil), si.WaitSemaphores...),
				WaitValues:       append([]uint64(nil), si.WaitValues...),
				SignalSemaphores: append([]vk.Semaphore(nil), si.SignalSemaphores...),
				SignalValues:     append([]uint64(nil), si.SignalValues...),
				CommandBuffers:   append([]vk.CommandBuffer(nil), si.CommandBuffers...),
			}
		}
		q.shared.pending = append(q.shared.pending, &pendingSubmission{
			submits:  copied,
			fence:    fence,
			dispatch: dispatch,
			device:   device,
		})
		q.shared.mu.Unlock()
		return true, nil
	}

	res := dispatch.QueueSubmit(driverQueue, submits, fence)
	if !res.Succeeded() {
		q.shared.mu.Unlock()
		return false, fmt.Errorf("vkQueueSubmit: %d", res)
	}

	advanced := make(map[vk.Device]bool)
	for _, si := range submits {
		for i, sem := range si.SignalSemaphores {
			v := uint64(1)
			if i < len(si.SignalValues) {
				v = si.SignalValues[i]
			}
			if rec, ok := semaphores[sem]; ok && q.tracker.Advance(rec, v) {
				advanced[device] = true
			}
		}
	}

	for d := range q.drainPendingLocked(driverQueue, semaphores) {
		advanced[d] = true
	}
	q.shared.mu.Unlock()

	// Listeners (e.g. the Queue Scheduler's own drain-on-advance hook) may
	// need to re-acquire q.shared.mu, so notify only after releasing it.
	for d := range advanced {
		q.tracker.NotifyAdvance(d)
	}

	return false, nil
}

// drainPendingLocked walks the pending FIFO and dispatches every record
// that has become safe, strictly in order (spec.md §5: "Deferred queue
// submissions are strictly FIFO per physical queue"). It returns the set
// of devices whose semaphores advanced, for the caller to notify once
// q.shared.mu is released — advancing here must not itself notify, since
// q.shared.mu is already held by every caller.
func (q *QueueDispatcher) drainPendingLocked(driverQueue vk.Queue, semaphores map[vk.Semaphore]*SemaphoreRecord) map[vk.Device]bool {
	advanced := make(map[vk.Device]bool)
	for {
		progressed := false
		remaining := q.shared.pending[:0]
		for _, p := range q.shared.pending {
			if safeToSubmit(q.tracker, semaphores, p.submits) {
				res := p.dispatch.QueueSubmit(driverQueue, p.submits, p.fence)
				if res.Succeeded() {
					for _, si := range p.submits {
						for i, sem := range si.SignalSemaphores {
							v := uint64(1)
							if i < len(si.SignalValues) {
								v = si.SignalValues[i]
							}
							if rec, ok := semaphores[sem]; ok && q.tracker.Advance(rec, v) {
								advanced[p.device] = true
							}
						}
					}
					progressed = true
					continue
				}
			}
			remaining = append(remaining, p)
		}
		q.shared.pending = remaining
		if !progressed || len(q.shared.pending) == 0 {
			break
		}
	}
	return advanced
}

// WaitIdle takes the queue mutex and delegates to the driver, per
// spec.md §4.4's "vkQueueWaitIdle takes the queue mutex and delegates".
func (q *QueueDispatcher) WaitIdle(driverQueue vk.Queue, dispatch *vk.DispatchTable) error {
	q.shared.mu.Lock()
	defer q.shared.mu.Unlock()
	res := dispatch.QueueWaitIdle(driverQueue)
	if !res.Succeeded() {
		return fmt.Errorf("vkQueueWaitIdle: %d", res)
	}
	return nil
}

// DispatcherFor returns the dispatcher sharing mutex and pending list
// with q, per invariant 7 ("A queue with the virtual-bit set shares
// mutex, pending-ops list, and latest-use accounting with its physical
// twin").
func DispatcherFor(q *QueueRecord, tracker *SemaphoreTracker) *QueueDispatcher {
	return NewQueueDispatcher(q.shared, tracker)
}

// NewSharedQueueState allocates the mutex/pending-list pair a physical
// queue and its (possibly absent) virtual twin share.
func NewSharedQueueState() *queueShared {
	return &queueShared{}
}

// QueueRegistry tracks every physical queue's dispatcher for a device so
// that onSemaphoreSignalledOnSharedQueue (spec.md §4.4 step 4, §4.5) can
// walk all of them when a timeline semaphore advances, without the
// Semaphore Tracker needing to know about queues itself.
type QueueRegistry struct {
	byPhysical map[vk.Queue]*drainTarget
}

type drainTarget struct {
	dispatcher  *QueueDispatcher
	driverQueue vk.Queue
	semaphores  func() map[vk.Semaphore]*SemaphoreRecord
}

func NewQueueRegistry() *QueueRegistry {
	return &QueueRegistry{byPhysical: make(map[vk.Queue]*drainTarget)}
}

// Register records dispatcher for physical, so later drains can reach it.
// semaphoresFn is called lazily at drain time to get a live snapshot of
// every semaphore record belonging to the owning device (the registry
// itself holds no reference to the global object tables).
func (r *QueueRegistry) Register(physical vk.Queue, dispatcher *QueueDispatcher, semaphoresFn func() map[vk.Semaphore]*SemaphoreRecord) {
	r.byPhysical[physical] = &drainTarget{dispatcher: dispatcher, driverQueue: physical, semaphores: semaphoresFn}
}

// DrainAll re-evaluates every physical queue's pending list, per
// spec.md's "walks every physical-queue pending list and dispatches any
// record that now satisfies its waits".
func (r *QueueRegistry) DrainAll() {
	for _, t := range r.byPhysical {
		t.dispatcher.shared.mu.Lock()
		advanced := t.dispatcher.drainPendingLocked(t.driverQueue, t.semaphores())
		t.dispatcher.shared.mu.Unlock()

		for d := range advanced {
			t.dispatcher.tracker.NotifyAdvance(d)
		}
	}
}
