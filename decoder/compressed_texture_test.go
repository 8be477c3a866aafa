// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"testing"

	"github.com/gogpu/vkdecoder/vk"
)

func TestBindCompressedMipmapsMemoryPacksOffsets(t *testing.T) {
	info := &CompressedImageInfo{
		MipmapImages: []vk.Image{1, 2, 3},
	}
	reqs := map[vk.Image]vk.MemoryRequirements{
		1: {Size: 100, Alignment: 16},
		2: {Size: 50, Alignment: 16},
		3: {Size: 10, Alignment: 16},
	}

	var gotOffsets []uint64
	bindFn := func(_ vk.Image, _ vk.DeviceMemory, offset uint64) vk.Result {
		gotOffsets = append(gotOffsets, offset)
		return vk.Success
	}
	reqsFn := func(img vk.Image) vk.MemoryRequirements { return reqs[img] }

	if err := BindCompressedMipmapsMemory(info, vk.DeviceMemory(1), reqsFn, bindFn); err != nil {
		t.Fatalf("BindCompressedMipmapsMemory() error = %v", err)
	}

	// Mip 0 at 0; mip 0 ends at 100, rounded up to 16 gives 112 for mip 1;
	// mip 1 ends at 162, rounded up to 16 gives 176 for mip 2.
	want := []uint64{0, 112, 176}
	if len(gotOffsets) != len(want) {
		t.Fatalf("got %d offsets, want %d", len(gotOffsets), len(want))
	}
	for i, w := range want {
		if gotOffsets[i] != w {
			t.Errorf("offset[%d] = %d, want %d (mip aliases must not overlap)", i, gotOffsets[i], w)
		}
	}
}

func TestBindCompressedMipmapsMemoryAlignsOffsets(t *testing.T) {
	info := &CompressedImageInfo{
		MipmapImages: []vk.Image{1, 2},
	}
	reqs := map[vk.Image]vk.MemoryRequirements{
		1: {Size: 10, Alignment: 16},
		2: {Size: 10, Alignment: 16},
	}

	var gotOffsets []uint64
	bindFn := func(_ vk.Image, _ vk.DeviceMemory, offset uint64) vk.Result {
		gotOffsets = append(gotOffsets, offset)
		return vk.Success
	}
	reqsFn := func(img vk.Image) vk.MemoryRequirements { return reqs[img] }

	if err := BindCompressedMipmapsMemory(info, vk.DeviceMemory(1), reqsFn, bindFn); err != nil {
		t.Fatalf("BindCompressedMipmapsMemory() error = %v", err)
	}

	// Mip 0 ends at 10, but mip 1 needs 16-byte alignment, so it lands at 16.
	want := []uint64{0, 16}
	for i, w := range want {
		if gotOffsets[i] != w {
			t.Errorf("offset[%d] = %d, want %d", i, gotOffsets[i], w)
		}
	}
}
