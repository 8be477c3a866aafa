// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"io"
)

// OnSnapshotSave is the entry point a VM-ops layer calls to serialize the
// decoder's full state, per spec.md §4.8. Callers must hold off new
// submissions for the duration — the spec requires no concurrent submits
// during save — which this method enforces by holding GlobalState's lock
// across the whole call.
func (g *GlobalState) OnSnapshotSave(w io.Writer, deviceContexts []deviceGuestContext, instanceContexts []instanceGuestContext, opts SaveOptions) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Save(w, deviceContexts, instanceContexts, opts)
}

// OnSnapshotLoad is the restore-side entry point. It assumes the caller
// has already destroyed all guest-visible state, per §4.8's load
// precondition, and that opts.Replay recreates every driver object this
// process had before save.
func (g *GlobalState) OnSnapshotLoad(r io.Reader, opts LoadOptions) ([]deviceGuestContext, []instanceGuestContext, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Load(r, opts)
}

// OnSetSnapshotUsesVulkan mirrors the VM-ops `set_snapshot_uses_vulkan`
// call named in spec.md §6: it has no decoder-side bookkeeping of its own
// since VulkanSnapshots is a feature flag read once at startup (see
// features.go), but the hook exists so a host can call it unconditionally
// without special-casing the Vulkan-unused case.
func (g *GlobalState) OnSetSnapshotUsesVulkan() {}

// SnapshotSkipReason reports the VM-ops `set_skip_snapshot_save` state: a
// feature this build encountered that it could not safely snapshot (§4.8,
// §9's three Open Question cases).
func (g *GlobalState) SnapshotSkipReason() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshot.SkipSave()
}
