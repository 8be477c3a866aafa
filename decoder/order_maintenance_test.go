// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"testing"
	"time"

	"github.com/gogpu/vkdecoder/vk"
)

func TestOrderMaintenanceInfoHostSyncImmediate(t *testing.T) {
	o := NewOrderMaintenanceInfo()
	if !o.HostSync(1) {
		t.Fatal("HostSync(1) = false on a fresh barrier, want true (sequence starts at 0)")
	}
	if got := o.Sequence(); got != 1 {
		t.Errorf("Sequence() = %d, want 1", got)
	}
}

func TestOrderMaintenanceInfoHostSyncOrdersWaiters(t *testing.T) {
	o := NewOrderMaintenanceInfo()
	done := make(chan bool, 1)

	// A waiter for sequence 2 must block until another goroutine advances
	// the barrier through sequence 1 first.
	go func() {
		done <- o.HostSync(2)
	}()

	select {
	case <-done:
		t.Fatal("HostSync(2) returned before its predecessor advanced the sequence")
	case <-time.After(50 * time.Millisecond):
	}

	if !o.HostSync(1) {
		t.Fatal("HostSync(1) = false, want true")
	}

	select {
	case ok := <-done:
		if !ok {
			t.Error("HostSync(2) returned false after its predecessor advanced")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("HostSync(2) did not unblock after HostSync(1) advanced the sequence")
	}

	if got := o.Sequence(); got != 2 {
		t.Errorf("Sequence() = %d, want 2", got)
	}
}

func TestGlobalStateOrderMaintenanceForReusesBarrier(t *testing.T) {
	g := NewGlobalState()
	handle := vk.Handle(0x1)

	first := g.OrderMaintenanceFor(handle)
	second := g.OrderMaintenanceFor(handle)
	if first != second {
		t.Error("OrderMaintenanceFor returned distinct barriers for the same handle")
	}

	other := g.OrderMaintenanceFor(vk.Handle(0x2))
	if other == first {
		t.Error("OrderMaintenanceFor returned the same barrier for distinct handles")
	}
}
