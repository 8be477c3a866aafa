// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"sync"
	"time"

	"github.com/gogpu/vkdecoder/vk"
)

// orderMaintenanceTimeout is the waiter deadline spec.md §4.10 names.
const orderMaintenanceTimeout = 5 * time.Second

// OrderMaintenanceInfo is the per-dispatchable-object barrier spec.md
// §4.10 describes: "mutex, condvar, sequence_number". It lets two
// cooperating guest threads order commands against the same dispatchable
// object without a round-trip through the real driver.
type OrderMaintenanceInfo struct {
	mu       sync.Mutex
	cond     *sync.Cond
	sequence uint64
}

func NewOrderMaintenanceInfo() *OrderMaintenanceInfo {
	o := &OrderMaintenanceInfo{}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// HostSync waits until sequence matches expected-1, then increments and
// broadcasts, exactly matching vkCommandBufferHostSyncGOOGLE /
// vkQueueHostSyncGOOGLE's needHostSync=true contract. It returns false if
// the 5s deadline elapses first.
//
// cond.Wait cannot itself take a deadline, so a watchdog goroutine
// broadcasts once the deadline passes; every waiter re-checks both the
// sequence condition and the deadline on each wakeup.
func (o *OrderMaintenanceInfo) HostSync(expected uint64) bool {
	deadline := time.Now().Add(orderMaintenanceTimeout)
	timedOut := make(chan struct{})
	timer := time.AfterFunc(orderMaintenanceTimeout, func() {
		close(timedOut)
		o.mu.Lock()
		o.cond.Broadcast()
		o.mu.Unlock()
	})
	defer timer.Stop()

	o.mu.Lock()
	defer o.mu.Unlock()

	for o.sequence != expected-1 {
		select {
		case <-timedOut:
			return false
		default:
		}
		if time.Now().After(deadline) {
			return false
		}
		o.cond.Wait()
	}
	o.sequence++
	o.cond.Broadcast()
	return true
}

// Sequence reports the current sequence number, primarily for tests.
func (o *OrderMaintenanceInfo) Sequence() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sequence
}

// OrderMaintenanceFor returns (creating if necessary) the barrier for a
// dispatchable handle.
func (g *GlobalState) OrderMaintenanceFor(handle vk.Handle) *OrderMaintenanceInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orderMaintenance[handle]
	if !ok {
		o = NewOrderMaintenanceInfo()
		g.orderMaintenance[handle] = o
	}
	return o
}
