// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/vkdecoder/vk"
)

// boxedEntry records what a boxed handle was created for, per spec.md
// §4.1: "records {driver_handle, dispatch_ptr, type_tag}".
type boxedEntry struct {
	driver       vk.Handle
	objType      vk.ObjectType
	dispatch     *vk.DispatchTable
	ownsDispatch bool
}

// HandleRegistry is the global, process-wide boxed-handle table (spec.md
// §4.1). Unlike the teacher's core.Registry[T,M], which is keyed by a
// dense generation-checked index because wgpu-core mints its own IDs,
// this registry must be keyed by the driver handle on the reverse path,
// because the decoder translates real VkXxx values it did not choose —
// the generational index/epoch scheme the teacher uses for its own
// resource IDs doesn't apply here. Grounded on
// _examples/gogpu-wgpu/core/registry.go for the lock discipline and
// tag-mismatch-vs-not-found distinction, adapted to a map-based key space
// and a driver-handle reverse index instead of Registry[T,M]'s
// index/epoch pair.
type HandleRegistry struct {
	mu      sync.Mutex
	next    uint64
	boxed   map[vk.Handle]*boxedEntry
	reverse map[vk.Handle]vk.Handle // driver handle -> boxed handle
	live    atomic.Int64
	logCalls bool
}

func NewHandleRegistry(logCalls bool) *HandleRegistry {
	return &HandleRegistry{
		next:     1, // 0 is NullHandle
		boxed:    make(map[vk.Handle]*boxedEntry),
		reverse:  make(map[vk.Handle]vk.Handle),
		logCalls: logCalls,
	}
}

// NewBoxed mints a new boxed handle for driver, per spec.md §4.1.
// dispatch is non-nil only for dispatchable object kinds; ownsDispatch
// is recorded on the entry (true only for handles that allocated their
// own dispatch table, e.g. a freshly created VkDevice, as opposed to a
// VkQueue that shares its device's table). DeleteBoxed does not consult
// it.
func (r *HandleRegistry) NewBoxed(driver vk.Handle, objType vk.ObjectType, dispatch *vk.DispatchTable, ownsDispatch bool) vk.Handle {
	if driver == vk.NullHandle {
		return vk.NullHandle
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	boxed := vk.Handle(r.next)
	r.next++
	r.boxed[boxed] = &boxedEntry{driver: driver, objType: objType, dispatch: dispatch, ownsDispatch: ownsDispatch}
	r.reverse[driver] = boxed
	r.live.Add(1)
	if r.logCalls {
		Logger().Debug("new_boxed", "boxed", boxed, "driver", driver, "type", objType.String(), "live", r.live.Load())
	}
	return boxed
}

// Unbox returns the driver handle for boxed. A tag mismatch is fatal per
// spec.md §4.1 ("Tag mismatch is fatal; nothing else is").
func (r *HandleRegistry) Unbox(boxed vk.Handle, want vk.ObjectType) vk.Handle {
	if boxed == vk.NullHandle {
		return vk.NullHandle
	}
	r.mu.Lock()
	e, ok := r.boxed[boxed]
	r.mu.Unlock()
	if !ok {
		fatalf("unbox: handle %#x not found, expected %s", uint64(boxed), want)
	}
	if e.objType != want {
		fatalf("unbox: handle %#x tag mismatch: expected %s, got %s", uint64(boxed), want, e.objType)
	}
	return e.driver
}

// TryUnbox is the non-fatal variant for optional inputs (spec.md §4.1).
func (r *HandleRegistry) TryUnbox(boxed vk.Handle, want vk.ObjectType) (vk.Handle, bool) {
	if boxed == vk.NullHandle {
		return vk.NullHandle, false
	}
	r.mu.Lock()
	e, ok := r.boxed[boxed]
	r.mu.Unlock()
	if !ok || e.objType != want {
		return vk.NullHandle, false
	}
	return e.driver, true
}

// Dispatch returns the dispatch table installed for a dispatchable
// handle, or nil if boxed names a non-dispatchable kind.
func (r *HandleRegistry) Dispatch(boxed vk.Handle) *vk.DispatchTable {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.boxed[boxed]
	if !ok {
		return nil
	}
	return e.dispatch
}

// BoxedOf returns the boxed handle previously minted for driver, if any
// — the reverse mapping required by invariant 2.
func (r *HandleRegistry) BoxedOf(driver vk.Handle) (vk.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.reverse[driver]
	return b, ok
}

// DeleteBoxed finalizes a boxed handle. Callers that deferred destruction
// (Device-Op Tracker pending garbage) call this once the object is
// actually safe to remove.
func (r *HandleRegistry) DeleteBoxed(boxed vk.Handle) {
	if boxed == vk.NullHandle {
		return
	}
	r.mu.Lock()
	e, ok := r.boxed[boxed]
	if ok {
		delete(r.boxed, boxed)
		delete(r.reverse, e.driver)
	}
	r.mu.Unlock()
	if ok {
		r.live.Add(-1)
		if r.logCalls {
			Logger().Debug("delete_boxed", "boxed", boxed, "live", r.live.Load())
		}
	}
}

// LiveCount reports the number of currently boxed handles, used by
// call-logging mode for leak detection (spec.md §4.1).
func (r *HandleRegistry) LiveCount() int64 { return r.live.Load() }

// reinstall installs the mapping from an original boxed handle (read back
// from a snapshot) to the newly created driver handle that replayed it,
// per spec.md §4.8 load step 2 ("reinstalls boxed<->driver mapping for
// recreated objects in the order they were originally allocated"). Unlike
// NewBoxed/ReplayHandles, the boxed value is not minted here — it must
// match exactly what the guest already has cached from before the
// snapshot, or every handle the guest holds would dangle after load.
func (r *HandleRegistry) reinstall(boxed, driver vk.Handle, objType vk.ObjectType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boxed[boxed] = &boxedEntry{driver: driver, objType: objType}
	r.reverse[driver] = boxed
	if uint64(boxed) >= r.next {
		r.next = uint64(boxed) + 1
	}
	r.live.Add(1)
}

// ReplayEntry is one record of a (boxed, driver, type) tuple recreated
// during a snapshot load, in original allocation order.
type ReplayEntry struct {
	Driver  vk.Handle
	ObjType vk.ObjectType
}

// ReplayHandles reinstates the boxed<->driver mapping for objects
// recreated during snapshot load, in the order they were originally
// allocated (spec.md §4.1, §4.8 load step 2). The replayed handles are
// minted from the same counter NewBoxed uses, so handles minted after
// replay don't collide with those replayed.
func (r *HandleRegistry) ReplayHandles(entries []ReplayEntry) []vk.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]vk.Handle, len(entries))
	for i, e := range entries {
		boxed := vk.Handle(r.next)
		r.next++
		r.boxed[boxed] = &boxedEntry{driver: e.Driver, objType: e.ObjType, ownsDispatch: false}
		r.reverse[e.Driver] = boxed
		r.live.Add(1)
		out[i] = boxed
	}
	return out
}
