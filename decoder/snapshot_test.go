// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"bytes"
	"testing"

	"github.com/gogpu/vkdecoder/vk"
)

// TestSnapshotSaveLoadRoundTripsContexts exercises the §8 scenario against
// an otherwise empty state: save a device and an instance context, load
// them back, and check the replay log reinstates a boxed handle at its
// exact original value rather than minting a new one.
func TestSnapshotSaveLoadRoundTripsContexts(t *testing.T) {
	g := NewGlobalState()

	driver := vk.Handle(0x4242)
	boxed := g.handles.NewBoxed(driver, vk.ObjectTypeBuffer, nil, false)
	g.snapshot.RecordCreate(vk.ObjectTypeBuffer, driver, boxed, []byte("create-info"))

	var buf bytes.Buffer
	deviceContexts := []deviceGuestContext{{Device: vk.Device(1), ContextID: 7}}
	instanceContexts := []instanceGuestContext{{Instance: vk.Instance(2), ContextID: 8}}

	saveOpts := SaveOptions{
		ReadMappedMemory: func(*MemoryRecord) []byte { return nil },
	}
	if err := g.Save(&buf, deviceContexts, instanceContexts, saveOpts); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Load into a fresh state, as if every guest-visible object had
	// already been destroyed per the §4.8 load precondition.
	loaded := NewGlobalState()
	newDriver := vk.Handle(0x9999)
	loadOpts := LoadOptions{
		WriteMappedMemory: func(*MemoryRecord, []byte) error { return nil },
		Replay: func(objType vk.ObjectType, payload []byte) (vk.Handle, error) {
			if objType != vk.ObjectTypeBuffer {
				t.Errorf("replay called with objType = %v, want ObjectTypeBuffer", objType)
			}
			if string(payload) != "create-info" {
				t.Errorf("replay payload = %q, want %q", payload, "create-info")
			}
			return newDriver, nil
		},
	}

	gotDevices, gotInstances, err := loaded.Load(&buf, loadOpts)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(gotDevices) != 1 || gotDevices[0] != deviceContexts[0] {
		t.Errorf("Load() devices = %v, want %v", gotDevices, deviceContexts)
	}
	if len(gotInstances) != 1 || gotInstances[0] != instanceContexts[0] {
		t.Errorf("Load() instances = %v, want %v", gotInstances, instanceContexts)
	}

	// The boxed handle must resolve to the newly replayed driver handle,
	// at the exact same boxed value it had before save.
	if got := loaded.handles.Unbox(boxed, vk.ObjectTypeBuffer); got != newDriver {
		t.Errorf("Unbox(boxed) after load = %#x, want %#x", uint64(got), uint64(newDriver))
	}
}

func TestSnapshotStateRecordUnsupportedSetsSkipSave(t *testing.T) {
	s := NewSnapshotState()
	if skip, _ := s.SkipSave(); skip {
		t.Fatal("SkipSave() = true before any RecordUnsupported call")
	}
	s.RecordUnsupported("multi-bind vkBindImageMemory2 not representable")
	skip, reason := s.SkipSave()
	if !skip {
		t.Error("SkipSave() = false after RecordUnsupported")
	}
	if reason == "" {
		t.Error("SkipSave() reason is empty after RecordUnsupported")
	}
}
