// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"testing"

	"github.com/gogpu/vkdecoder/vk"
)

func TestHandleRegistryNewBoxedRoundTrip(t *testing.T) {
	r := NewHandleRegistry(false)

	driver := vk.Handle(0x1000)
	boxed := r.NewBoxed(driver, vk.ObjectTypeBuffer, nil, false)

	if boxed == vk.NullHandle {
		t.Fatal("NewBoxed returned NullHandle for a non-null driver handle")
	}
	if got := r.Unbox(boxed, vk.ObjectTypeBuffer); got != driver {
		t.Errorf("Unbox() = %#x, want %#x", uint64(got), uint64(driver))
	}
	if got, ok := r.BoxedOf(driver); !ok || got != boxed {
		t.Errorf("BoxedOf() = (%#x, %v), want (%#x, true)", uint64(got), ok, uint64(boxed))
	}
}

func TestHandleRegistryNewBoxedNullHandle(t *testing.T) {
	r := NewHandleRegistry(false)
	if got := r.NewBoxed(vk.NullHandle, vk.ObjectTypeBuffer, nil, false); got != vk.NullHandle {
		t.Errorf("NewBoxed(NullHandle) = %#x, want NullHandle", uint64(got))
	}
}

func TestHandleRegistryUnboxTagMismatchIsFatal(t *testing.T) {
	r := NewHandleRegistry(false)
	boxed := r.NewBoxed(vk.Handle(1), vk.ObjectTypeBuffer, nil, false)

	defer func() {
		if recovered := recover(); recovered == nil {
			t.Fatal("Unbox with wrong type did not panic")
		} else if _, ok := recovered.(*Fatal); !ok {
			t.Errorf("panic value = %T, want *Fatal", recovered)
		}
	}()
	r.Unbox(boxed, vk.ObjectTypeImage)
}

func TestHandleRegistryTryUnboxMismatchIsNonFatal(t *testing.T) {
	r := NewHandleRegistry(false)
	boxed := r.NewBoxed(vk.Handle(1), vk.ObjectTypeBuffer, nil, false)

	if _, ok := r.TryUnbox(boxed, vk.ObjectTypeImage); ok {
		t.Error("TryUnbox with wrong type reported ok=true")
	}
	if driver, ok := r.TryUnbox(boxed, vk.ObjectTypeBuffer); !ok || driver != vk.Handle(1) {
		t.Errorf("TryUnbox() = (%#x, %v), want (0x1, true)", uint64(driver), ok)
	}
}

func TestHandleRegistryDeleteBoxed(t *testing.T) {
	r := NewHandleRegistry(false)
	driver := vk.Handle(7)
	boxed := r.NewBoxed(driver, vk.ObjectTypeImage, nil, false)

	if r.LiveCount() != 1 {
		t.Fatalf("LiveCount() = %d, want 1", r.LiveCount())
	}
	r.DeleteBoxed(boxed)
	if r.LiveCount() != 0 {
		t.Errorf("LiveCount() after delete = %d, want 0", r.LiveCount())
	}
	if _, ok := r.BoxedOf(driver); ok {
		t.Error("BoxedOf still resolves the driver handle after DeleteBoxed")
	}
}

func TestHandleRegistryReinstallPreservesOriginalBoxedValue(t *testing.T) {
	r := NewHandleRegistry(false)

	// Simulate a boxed value a guest has cached from before a snapshot,
	// well past whatever NewBoxed would mint next.
	original := vk.Handle(500)
	newDriver := vk.Handle(0xdead)
	r.reinstall(original, newDriver, vk.ObjectTypeImage)

	if got := r.Unbox(original, vk.ObjectTypeImage); got != newDriver {
		t.Errorf("Unbox(original) = %#x, want %#x", uint64(got), uint64(newDriver))
	}

	// Handles minted after reinstall must not collide with the replayed
	// value.
	next := r.NewBoxed(vk.Handle(0xbeef), vk.ObjectTypeImage, nil, false)
	if next <= original {
		t.Errorf("NewBoxed after reinstall returned %#x, want something > %#x", uint64(next), uint64(original))
	}
}

func TestHandleRegistryReplayHandlesOrder(t *testing.T) {
	r := NewHandleRegistry(false)
	entries := []ReplayEntry{
		{Driver: vk.Handle(10), ObjType: vk.ObjectTypeBuffer},
		{Driver: vk.Handle(20), ObjType: vk.ObjectTypeImage},
	}
	boxed := r.ReplayHandles(entries)
	if len(boxed) != 2 {
		t.Fatalf("ReplayHandles returned %d handles, want 2", len(boxed))
	}
	if r.Unbox(boxed[0], vk.ObjectTypeBuffer) != vk.Handle(10) {
		t.Error("first replayed handle does not resolve to its driver handle")
	}
	if r.Unbox(boxed[1], vk.ObjectTypeImage) != vk.Handle(20) {
		t.Error("second replayed handle does not resolve to its driver handle")
	}
}
