// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"errors"
	"testing"

	"github.com/gogpu/vkdecoder/vk"
)

func TestTypeCountsCanSatisfyAndCommit(t *testing.T) {
	tc := newTypeCounts([]vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 4},
	})

	req := map[vk.DescriptorType]uint32{vk.DescriptorTypeUniformBuffer: 3}
	if !tc.canSatisfy(req) {
		t.Fatal("canSatisfy() = false, want true for a request within capacity")
	}
	tc.commit(req)

	if tc.canSatisfy(map[vk.DescriptorType]uint32{vk.DescriptorTypeUniformBuffer: 2}) {
		t.Error("canSatisfy() = true, want false once capacity is exhausted by a prior commit")
	}

	tc.release(req)
	if !tc.canSatisfy(req) {
		t.Error("canSatisfy() = false after release, want true")
	}
}

func TestTypeCountsReset(t *testing.T) {
	tc := newTypeCounts([]vk.DescriptorPoolSize{{Type: vk.DescriptorTypeSampler, DescriptorCount: 2}})
	tc.commit(map[vk.DescriptorType]uint32{vk.DescriptorTypeSampler: 2})
	tc.reset()
	if !tc.canSatisfy(map[vk.DescriptorType]uint32{vk.DescriptorTypeSampler: 2}) {
		t.Error("canSatisfy() = false after reset, want true")
	}
}

func TestDescriptorPoolRecordSimulateThenCommit(t *testing.T) {
	pool := NewDescriptorPoolRecord(vk.DescriptorPool(1), vk.Device(1), vk.DescriptorPoolCreateInfo{
		MaxSets:  1,
		PoolSizes: []vk.DescriptorPoolSize{{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1}},
	})

	layout := []vk.DescriptorSetLayoutBinding{{Binding: 0, DescriptorType: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1}}
	if err := pool.SimulateAllocate([][]vk.DescriptorSetLayoutBinding{layout}); err != nil {
		t.Fatalf("SimulateAllocate() error = %v, want nil", err)
	}
	pool.CommitAllocate([][]vk.DescriptorSetLayoutBinding{layout})

	if pool.UsedSets != 1 {
		t.Errorf("UsedSets = %d, want 1", pool.UsedSets)
	}
}

func TestDescriptorPoolRecordSimulateOutOfPoolMemory(t *testing.T) {
	pool := NewDescriptorPoolRecord(vk.DescriptorPool(1), vk.Device(1), vk.DescriptorPoolCreateInfo{
		MaxSets:  1,
		PoolSizes: []vk.DescriptorPoolSize{{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1}},
	})

	layout := []vk.DescriptorSetLayoutBinding{{Binding: 0, DescriptorType: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1}}
	// Two sets requested against a pool with MaxSets=1: must fail without
	// mutating any state.
	err := pool.SimulateAllocate([][]vk.DescriptorSetLayoutBinding{layout, layout})
	if !errors.Is(err, ErrOutOfPoolMemory) {
		t.Fatalf("SimulateAllocate() error = %v, want ErrOutOfPoolMemory", err)
	}
	if pool.UsedSets != 0 {
		t.Errorf("UsedSets after a failed simulate = %d, want 0 (simulate must not mutate state)", pool.UsedSets)
	}
}

func TestDescriptorPoolRecordFreeReversesCommit(t *testing.T) {
	pool := NewDescriptorPoolRecord(vk.DescriptorPool(1), vk.Device(1), vk.DescriptorPoolCreateInfo{
		MaxSets:  2,
		PoolSizes: []vk.DescriptorPoolSize{{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 2}},
	})

	layout := []vk.DescriptorSetLayoutBinding{{Binding: 0, DescriptorType: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1}}
	pool.CommitAllocate([][]vk.DescriptorSetLayoutBinding{layout, layout})
	if pool.UsedSets != 2 {
		t.Fatalf("UsedSets = %d, want 2", pool.UsedSets)
	}

	pool.Free([][]vk.DescriptorSetLayoutBinding{layout})
	if pool.UsedSets != 1 {
		t.Errorf("UsedSets after Free = %d, want 1", pool.UsedSets)
	}
}

func TestDescriptorPoolRecordReset(t *testing.T) {
	pool := NewDescriptorPoolRecord(vk.DescriptorPool(1), vk.Device(1), vk.DescriptorPoolCreateInfo{
		MaxSets:  1,
		PoolSizes: []vk.DescriptorPoolSize{{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1}},
	})
	layout := []vk.DescriptorSetLayoutBinding{{Binding: 0, DescriptorType: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1}}
	pool.CommitAllocate([][]vk.DescriptorSetLayoutBinding{layout})

	pool.Reset()
	if pool.UsedSets != 0 {
		t.Errorf("UsedSets after Reset = %d, want 0", pool.UsedSets)
	}
	if err := pool.SimulateAllocate([][]vk.DescriptorSetLayoutBinding{layout}); err != nil {
		t.Errorf("SimulateAllocate() after Reset error = %v, want nil", err)
	}
}

func TestDescriptorSetRecordRecordWriteSplitsAcrossBindings(t *testing.T) {
	bindings := []vk.DescriptorSetLayoutBinding{
		{Binding: 0, DescriptorType: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1},
		{Binding: 1, DescriptorType: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1},
	}
	rec := newDescriptorSetRecord(vk.DescriptorSet(1), vk.DescriptorPool(1), vk.DescriptorSetLayout(1), bindings)

	w0 := &descriptorWrite{kind: writeKindBuffer, descType: vk.DescriptorTypeUniformBuffer}
	w1 := &descriptorWrite{kind: writeKindBuffer, descType: vk.DescriptorTypeUniformBuffer}

	// Writing two consecutive array elements into binding 0, which only
	// declares one descriptor, must spill the second write into binding 1.
	rec.recordWrite(0, 0, vk.DescriptorTypeUniformBuffer, []*descriptorWrite{w0, w1})

	if rec.allWrites[0][0] != w0 {
		t.Error("first write did not land at binding 0, element 0")
	}
	if rec.allWrites[1][0] != w1 {
		t.Error("overflowing write did not spill into binding 1, element 0")
	}
}

func TestDescriptorSetRecordSurvivingWritesFiltersExpired(t *testing.T) {
	bindings := []vk.DescriptorSetLayoutBinding{{Binding: 0, DescriptorType: vk.DescriptorTypeUniformBuffer, DescriptorCount: 2}}
	rec := newDescriptorSetRecord(vk.DescriptorSet(1), vk.DescriptorPool(1), vk.DescriptorSetLayout(1), bindings)

	aliveRef := newLiveness()
	deadRef := newLiveness()
	deadRef.Kill()

	alive := &descriptorWrite{kind: writeKindBuffer, weakRefs: []weakRef{weakRefTo(aliveRef)}}
	expired := &descriptorWrite{kind: writeKindBuffer, weakRefs: []weakRef{weakRefTo(deadRef)}}
	rec.recordWrite(0, 0, vk.DescriptorTypeUniformBuffer, []*descriptorWrite{alive, expired})

	surviving := rec.SurvivingWrites()
	if len(surviving) != 1 {
		t.Fatalf("SurvivingWrites() returned %d entries, want 1", len(surviving))
	}
	if surviving[0].Write != alive {
		t.Error("SurvivingWrites() kept the expired write instead of the alive one")
	}
}
