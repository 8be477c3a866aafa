// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"fmt"
	"sync"

	"github.com/gogpu/vkdecoder/vk"
)

// typeCounts is the {type, capacity, used} bookkeeping vector spec.md
// §4.7 describes, grounded on
// _examples/gogpu-wgpu/hal/vulkan/descriptor.go's DescriptorCounts /
// DescriptorPool{maxSets, allocatedSets} pattern — generalized from the
// teacher's fixed eight-field struct to a map so this pool can track
// whatever descriptor types its creation info actually named.
type typeCounts struct {
	capacity map[vk.DescriptorType]uint32
	used     map[vk.DescriptorType]uint32
}

func newTypeCounts(sizes []vk.DescriptorPoolSize) *typeCounts {
	tc := &typeCounts{
		capacity: make(map[vk.DescriptorType]uint32, len(sizes)),
		used:     make(map[vk.DescriptorType]uint32, len(sizes)),
	}
	for _, s := range sizes {
		tc.capacity[s.Type] += s.DescriptorCount
	}
	return tc
}

// canSatisfy reports whether requested[type] more descriptors of each
// type can still be allocated without exceeding capacity.
func (tc *typeCounts) canSatisfy(requested map[vk.DescriptorType]uint32) bool {
	for t, n := range requested {
		if tc.capacity[t]-tc.used[t] < n {
			return false
		}
	}
	return true
}

func (tc *typeCounts) commit(requested map[vk.DescriptorType]uint32) {
	for t, n := range requested {
		tc.used[t] += n
	}
}

func (tc *typeCounts) release(requested map[vk.DescriptorType]uint32) {
	for t, n := range requested {
		if tc.used[t] < n {
			tc.used[t] = 0
		} else {
			tc.used[t] -= n
		}
	}
}

func (tc *typeCounts) reset() {
	for t := range tc.used {
		tc.used[t] = 0
	}
}

// writeKind tags which payload a descriptorWrite carries, per spec.md
// §3's "image/buffer/view/inline/AS" write-type list.
type writeKind int

const (
	writeKindImage writeKind = iota
	writeKindBuffer
	writeKindTexelBufferView
	writeKindInlineUniform
	writeKindAccelerationStructure
)

// descriptorWrite is one entry of a descriptor set's
// allWrites[binding][arrayElement] table (spec.md §3, §4.7). It carries
// weak references to every resource it names so the Snapshot Engine can
// decide at save time whether the write still has live dependencies
// (invariant 6).
type descriptorWrite struct {
	kind       writeKind
	descType   vk.DescriptorType
	image      vk.DescriptorImageInfo
	buffer     vk.DescriptorBufferInfo
	weakRefs   []weakRef
}

func (w *descriptorWrite) validAtSaveTime() bool {
	for _, ref := range w.weakRefs {
		if ref.Expired() {
			return false
		}
	}
	return true
}

// DescriptorSetRecord is the per-kind state for a VkDescriptorSet,
// including its 2-D write table.
type DescriptorSetRecord struct {
	Boxed    vk.DescriptorSet
	Pool     vk.DescriptorPool
	Layout   vk.DescriptorSetLayout
	Bindings []vk.DescriptorSetLayoutBinding

	// allWrites[binding][arrayElement].
	allWrites map[uint32]map[uint32]*descriptorWrite
}

func newDescriptorSetRecord(boxed vk.DescriptorSet, pool vk.DescriptorPool, layout vk.DescriptorSetLayout, bindings []vk.DescriptorSetLayoutBinding) *DescriptorSetRecord {
	return &DescriptorSetRecord{
		Boxed:     boxed,
		Pool:      pool,
		Layout:    layout,
		Bindings:  bindings,
		allWrites: make(map[uint32]map[uint32]*descriptorWrite),
	}
}

// recordWrite stores w at (binding, arrayElement), splitting across
// bindings if it would overrun the binding's declared descriptor count,
// per spec.md §4.7 ("a write that spans into the next binding per spec is
// split across bindings").
func (s *DescriptorSetRecord) recordWrite(binding, arrayElement uint32, descType vk.DescriptorType, writes []*descriptorWrite) {
	bindingSize := s.bindingSize(binding)
	for _, w := range writes {
		if arrayElement >= bindingSize && bindingSize > 0 {
			binding++
			arrayElement -= bindingSize
			bindingSize = s.bindingSize(binding)
		}
		if s.allWrites[binding] == nil {
			s.allWrites[binding] = make(map[uint32]*descriptorWrite)
		}
		s.allWrites[binding][arrayElement] = w
		arrayElement++
	}
	_ = descType
}

func (s *DescriptorSetRecord) bindingSize(binding uint32) uint32 {
	for _, b := range s.Bindings {
		if b.Binding == binding {
			return b.DescriptorCount
		}
	}
	return 0
}

// SurvivingWrites returns every write whose weak references are all
// still alive, per invariant 6; used by the Snapshot Engine.
func (s *DescriptorSetRecord) SurvivingWrites() []struct {
	Binding      uint32
	ArrayElement uint32
	Write        *descriptorWrite
} {
	var out []struct {
		Binding      uint32
		ArrayElement uint32
		Write        *descriptorWrite
	}
	for b, byElem := range s.allWrites {
		for e, w := range byElem {
			if w.validAtSaveTime() {
				out = append(out, struct {
					Binding      uint32
					ArrayElement uint32
					Write        *descriptorWrite
				}{b, e, w})
			}
		}
	}
	return out
}

// DescriptorPoolRecord is the per-kind state for a VkDescriptorPool.
type DescriptorPoolRecord struct {
	Boxed   vk.DescriptorPool
	Device  vk.Device
	MaxSets uint32
	UsedSets uint32

	counts *typeCounts

	// Batched mode: preallocated pool-ids mapped to the boxed set once
	// the driver has actually allocated it (spec.md §4.7, glossary
	// "Pool-id").
	preallocated map[uint64]vk.DescriptorSet
	allocedSetsToBoxed map[vk.DescriptorSet]vk.DescriptorSet

	mu sync.Mutex
}

func NewDescriptorPoolRecord(boxed vk.DescriptorPool, device vk.Device, info vk.DescriptorPoolCreateInfo) *DescriptorPoolRecord {
	return &DescriptorPoolRecord{
		Boxed:              boxed,
		Device:             device,
		MaxSets:            info.MaxSets,
		counts:             newTypeCounts(info.PoolSizes),
		preallocated:       make(map[uint64]vk.DescriptorSet),
		allocedSetsToBoxed: make(map[vk.DescriptorSet]vk.DescriptorSet),
	}
}

// DescriptorSetLayoutRecord is the per-kind state for a
// VkDescriptorSetLayout.
type DescriptorSetLayoutRecord struct {
	Boxed    vk.DescriptorSetLayout
	Device   vk.Device
	Bindings []vk.DescriptorSetLayoutBinding
}

// DescriptorUpdateTemplateRecord is the per-kind state for a
// VkDescriptorUpdateTemplate, used by the batched-update path (§4.7).
type DescriptorUpdateTemplateRecord struct {
	Boxed  vk.DescriptorUpdateTemplate
	Device vk.Device
}

// requirementsFor tallies the descriptor-count-per-type a layout's
// bindings require, to check against remaining pool capacity.
func requirementsFor(bindings []vk.DescriptorSetLayoutBinding) map[vk.DescriptorType]uint32 {
	req := make(map[vk.DescriptorType]uint32)
	for _, b := range bindings {
		req[b.DescriptorType] += b.DescriptorCount
	}
	return req
}

// SimulateAllocate implements the "simulate first" policy of §4.7: it
// checks whether allocating every given layout would fit, without
// mutating pool state, returning ErrOutOfPoolMemory if not.
func (p *DescriptorPoolRecord) SimulateAllocate(layouts [][]vk.DescriptorSetLayoutBinding) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.UsedSets+uint32(len(layouts)) > p.MaxSets {
		return fmt.Errorf("%w: pool has %d/%d sets used, requested %d more", ErrOutOfPoolMemory, p.UsedSets, p.MaxSets, len(layouts))
	}
	total := make(map[vk.DescriptorType]uint32)
	for _, bindings := range layouts {
		for t, n := range requirementsFor(bindings) {
			total[t] += n
		}
	}
	if !p.counts.canSatisfy(total) {
		return fmt.Errorf("%w: insufficient descriptor capacity", ErrOutOfPoolMemory)
	}
	return nil
}

// CommitAllocate performs the real bookkeeping update after a successful
// driver-side vkAllocateDescriptorSets, matching exactly what
// SimulateAllocate checked.
func (p *DescriptorPoolRecord) CommitAllocate(layouts [][]vk.DescriptorSetLayoutBinding) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.UsedSets += uint32(len(layouts))
	for _, bindings := range layouts {
		p.counts.commit(requirementsFor(bindings))
	}
}

// Free releases the capacity held by sets, reversing CommitAllocate.
func (p *DescriptorPoolRecord) Free(setsBindings [][]vk.DescriptorSetLayoutBinding) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.UsedSets < uint32(len(setsBindings)) {
		p.UsedSets = 0
	} else {
		p.UsedSets -= uint32(len(setsBindings))
	}
	for _, bindings := range setsBindings {
		p.counts.release(requirementsFor(bindings))
	}
}

// Reset drives every per-type used counter to 0 and clears
// allocedSetsToBoxed, per the boundary behavior spec.md §8 names for
// vkResetDescriptorPool.
func (p *DescriptorPoolRecord) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.UsedSets = 0
	p.counts.reset()
	p.allocedSetsToBoxed = make(map[vk.DescriptorSet]vk.DescriptorSet)
}
