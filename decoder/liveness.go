// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import "sync/atomic"

// liveness is the shared "alive/freed" counter spec.md §9 calls a weak
// reference: "shared counters whose only meaningful state is
// alive/freed". original_source/host/vulkan/VkDecoderInternalStructs.h
// models this with a shared_ptr<bool>-equivalent; a Go atomic bool
// pointer gives the same alive/freed semantics without the ownership
// machinery a shared_ptr provides, which this object doesn't need
// because nothing here extends an object's lifetime — it only answers
// "is it still alive".
type liveness struct {
	alive atomic.Bool
}

func newLiveness() *liveness {
	l := &liveness{}
	l.alive.Store(true)
	return l
}

func (l *liveness) Alive() bool { return l != nil && l.alive.Load() }

func (l *liveness) Kill() {
	if l != nil {
		l.alive.Store(false)
	}
}

// weakRef is a non-owning reference to a liveness flag, the shape used
// by descriptor writes (invariant 6) to decide at snapshot time whether
// a referenced resource has since been destroyed.
type weakRef struct {
	l *liveness
}

func weakRefTo(l *liveness) weakRef { return weakRef{l: l} }

func (w weakRef) Expired() bool { return !w.l.Alive() }
