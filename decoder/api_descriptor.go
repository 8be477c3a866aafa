// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"github.com/gogpu/vkdecoder/vk"
)

// OnCreateDescriptorPool boxes a new pool and installs its capacity
// bookkeeping (spec.md §4.7).
func (g *GlobalState) OnCreateDescriptorPool(driverDevice vk.Device, driverPool vk.DescriptorPool, info vk.DescriptorPoolCreateInfo) vk.DescriptorPool {
	rec := NewDescriptorPoolRecord(0, driverDevice, info)
	g.mu.Lock()
	g.tables.DescriptorPools.mustAdd(driverPool, rec)
	g.mu.Unlock()
	boxed := g.handles.NewBoxed(vk.Handle(driverPool), vk.ObjectTypeDescriptorPool, nil, false)
	rec.Boxed = vk.DescriptorPool(boxed)
	return vk.DescriptorPool(boxed)
}

func (g *GlobalState) OnDestroyDescriptorPool(driverPool vk.DescriptorPool) {
	g.mu.Lock()
	_, ok := g.tables.DescriptorPools.get(driverPool)
	if ok {
		g.tables.DescriptorPools.remove(driverPool)
	}
	g.mu.Unlock()
	if ok {
		if boxed, ok := g.handles.BoxedOf(vk.Handle(driverPool)); ok {
			g.handles.DeleteBoxed(boxed)
		}
	}
}

func (g *GlobalState) OnResetDescriptorPool(driverPool vk.DescriptorPool) {
	g.mu.Lock()
	rec, ok := g.tables.DescriptorPools.get(driverPool)
	g.mu.Unlock()
	if ok {
		rec.Reset()
	}
}

// OnCreateDescriptorSetLayout boxes a new layout and records its bindings
// for later requirements computation.
func (g *GlobalState) OnCreateDescriptorSetLayout(driverDevice vk.Device, driverLayout vk.DescriptorSetLayout, info vk.DescriptorSetLayoutCreateInfo) vk.DescriptorSetLayout {
	g.mu.Lock()
	g.tables.DescriptorSetLayouts.mustAdd(driverLayout, &DescriptorSetLayoutRecord{Device: driverDevice, Bindings: info.Bindings})
	g.mu.Unlock()
	boxed := g.handles.NewBoxed(vk.Handle(driverLayout), vk.ObjectTypeDescriptorSetLayout, nil, false)
	g.mu.Lock()
	rec, _ := g.tables.DescriptorSetLayouts.get(driverLayout)
	rec.Boxed = vk.DescriptorSetLayout(boxed)
	g.mu.Unlock()
	return vk.DescriptorSetLayout(boxed)
}

// OnAllocateDescriptorSets implements §4.7's "simulate first" policy:
// check every requested layout fits before calling the driver, so a
// would-be OUT_OF_POOL_MEMORY failure never leaves the pool's bookkeeping
// out of sync with what the driver actually allocated.
func (g *GlobalState) OnAllocateDescriptorSets(driverDevice vk.Device, driverPool vk.DescriptorPool, driverLayouts []vk.DescriptorSetLayout, allocateFn func([]vk.DescriptorSetLayout) ([]vk.DescriptorSet, vk.Result)) ([]vk.DescriptorSet, error) {
	g.mu.Lock()
	pool, ok := g.tables.DescriptorPools.get(driverPool)
	bindingsPerLayout := make([][]vk.DescriptorSetLayoutBinding, len(driverLayouts))
	for i, l := range driverLayouts {
		if lrec, ok := g.tables.DescriptorSetLayouts.get(l); ok {
			bindingsPerLayout[i] = lrec.Bindings
		}
	}
	g.mu.Unlock()
	if !ok {
		return nil, NewValidationErrorf(vk.ObjectTypeDescriptorPool, "pool", "no record for %#x", uint64(driverPool))
	}

	if err := pool.SimulateAllocate(bindingsPerLayout); err != nil {
		return nil, err
	}

	driverSets, res := allocateFn(driverLayouts)
	if !res.Succeeded() {
		return nil, ErrOutOfPoolMemory
	}
	pool.CommitAllocate(bindingsPerLayout)

	boxedSets := make([]vk.DescriptorSet, len(driverSets))
	g.mu.Lock()
	for i, driverSet := range driverSets {
		rec := newDescriptorSetRecord(0, driverPool, driverLayouts[i], bindingsPerLayout[i])
		g.tables.DescriptorSets.mustAdd(driverSet, rec)
		boxed := g.handles.NewBoxed(vk.Handle(driverSet), vk.ObjectTypeDescriptorSet, nil, false)
		rec.Boxed = vk.DescriptorSet(boxed)
		boxedSets[i] = vk.DescriptorSet(boxed)
	}
	g.mu.Unlock()
	return boxedSets, nil
}

// OnFreeDescriptorSets releases pool capacity and removes each set's
// table entry.
func (g *GlobalState) OnFreeDescriptorSets(driverPool vk.DescriptorPool, driverSets []vk.DescriptorSet) {
	g.mu.Lock()
	pool, ok := g.tables.DescriptorPools.get(driverPool)
	bindingsPerSet := make([][]vk.DescriptorSetLayoutBinding, 0, len(driverSets))
	for _, h := range driverSets {
		if rec, ok := g.tables.DescriptorSets.get(h); ok {
			bindingsPerSet = append(bindingsPerSet, rec.Bindings)
			g.tables.DescriptorSets.remove(h)
		}
	}
	g.mu.Unlock()
	if ok {
		pool.Free(bindingsPerSet)
	}
	for _, h := range driverSets {
		if boxed, ok := g.handles.BoxedOf(vk.Handle(h)); ok {
			g.handles.DeleteBoxed(boxed)
		}
	}
}

// borderColorAlphaEmulation implements §4.7's substitution: if an image
// write combines an RGB-emulated image view with a transparent-black-
// border sampler, swap in a lazily-created opaque-black variant.
func (g *GlobalState) borderColorAlphaEmulation(dev *DeviceRecord, info *vk.DescriptorImageInfo, createSamplerFn func(vk.SamplerCreateInfo) (vk.Sampler, vk.Result)) {
	g.mu.Lock()
	iv, ivOK := g.tables.ImageViews.get(info.ImageView)
	sampler, sOK := g.tables.Samplers.get(info.Sampler)
	g.mu.Unlock()
	if !ivOK || !sOK || !iv.NeedEmulatedAlpha || !sampler.CreateInfo.BorderColorTransparentBlack {
		return
	}

	g.mu.Lock()
	if sampler.HasEmulatedVariant {
		info.Sampler = sampler.EmulatedBorderColorAlias
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	opaque := sampler.CreateInfo
	opaque.BorderColorTransparentBlack = false
	driverVariant, res := createSamplerFn(opaque)
	if !res.Succeeded() {
		return
	}
	boxedVariant := g.handles.NewBoxed(vk.Handle(driverVariant), vk.ObjectTypeSampler, nil, false)

	g.mu.Lock()
	sampler.EmulatedBorderColorAlias = vk.Sampler(boxedVariant)
	sampler.HasEmulatedVariant = true
	g.mu.Unlock()
	info.Sampler = vk.Sampler(boxedVariant)
}

// OnUpdateDescriptorSets records each write into its set's 2-D write
// table before (or after, depending on caller ordering) forwarding to the
// driver; the recording itself never touches the driver.
func (g *GlobalState) OnUpdateDescriptorSets(writes []vk.WriteDescriptorSet) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, w := range writes {
		setRec, ok := g.tables.DescriptorSets.get(w.DstSet)
		if !ok {
			continue
		}
		var entries []*descriptorWrite
		switch {
		case len(w.ImageInfo) > 0:
			for _, ii := range w.ImageInfo {
				entries = append(entries, &descriptorWrite{
					kind:     writeKindImage,
					descType: w.DescriptorType,
					image:    ii,
					weakRefs: g.imageWriteRefsLocked(ii),
				})
			}
		case len(w.BufferInfo) > 0:
			for _, bi := range w.BufferInfo {
				entries = append(entries, &descriptorWrite{
					kind:     writeKindBuffer,
					descType: w.DescriptorType,
					buffer:   bi,
					weakRefs: g.bufferWriteRefsLocked(bi),
				})
			}
		default:
			continue
		}
		setRec.recordWrite(w.DstBinding, w.DstArrayElement, w.DescriptorType, entries)
	}
}

// imageWriteRefsLocked/bufferWriteRefsLocked resolve the liveness flags a
// write needs to track (invariant 6), assuming g.mu is already held.
func (g *GlobalState) imageWriteRefsLocked(info vk.DescriptorImageInfo) []weakRef {
	var refs []weakRef
	if info.ImageView != 0 {
		if iv, ok := g.tables.ImageViews.get(info.ImageView); ok {
			refs = append(refs, weakRefTo(iv.Live))
		}
	}
	return refs
}

func (g *GlobalState) bufferWriteRefsLocked(info vk.DescriptorBufferInfo) []weakRef {
	if info.Buffer == 0 {
		return nil
	}
	if b, ok := g.tables.Buffers.get(info.Buffer); ok {
		return []weakRef{weakRefTo(b.Live)}
	}
	return nil
}

// BatchedSetUpdate is one entry of the flat write array
// vkQueueCommitDescriptorSetUpdatesGOOGLE submits, per spec.md §4.7.
type BatchedSetUpdate struct {
	PoolID      uint64
	Pool        vk.DescriptorPool
	Layout      vk.DescriptorSetLayout
	PendingAlloc bool
	Writes      []vk.WriteDescriptorSet
}

// OnQueueCommitDescriptorSetUpdatesGOOGLE implements the batched-update
// path: resolve or allocate each set's driver handle, patch every write's
// DstSet, then submit a single UpdateDescriptorSets call covering every
// write of every set.
func (g *GlobalState) OnQueueCommitDescriptorSetUpdatesGOOGLE(updates []BatchedSetUpdate, allocateFn func(vk.DescriptorPool, []vk.DescriptorSetLayout) ([]vk.DescriptorSet, vk.Result), updateFn func([]vk.WriteDescriptorSet)) error {
	var allWrites []vk.WriteDescriptorSet
	for _, u := range updates {
		g.mu.Lock()
		pool, ok := g.tables.DescriptorPools.get(u.Pool)
		g.mu.Unlock()
		if !ok {
			return NewValidationErrorf(vk.ObjectTypeDescriptorPool, "pool", "no record for %#x", uint64(u.Pool))
		}

		var driverSet vk.DescriptorSet
		pool.mu.Lock()
		existing, already := pool.preallocated[u.PoolID]
		pool.mu.Unlock()

		if u.PendingAlloc || !already {
			lrec, ok := g.tables.DescriptorSetLayouts.get(u.Layout)
			if !ok {
				return NewValidationErrorf(vk.ObjectTypeDescriptorSetLayout, "layout", "no record for %#x", uint64(u.Layout))
			}
			if err := pool.SimulateAllocate([][]vk.DescriptorSetLayoutBinding{lrec.Bindings}); err != nil {
				return err
			}
			allocated, res := allocateFn(u.Pool, []vk.DescriptorSetLayout{u.Layout})
			if !res.Succeeded() || len(allocated) == 0 {
				return ErrOutOfPoolMemory
			}
			pool.CommitAllocate([][]vk.DescriptorSetLayoutBinding{lrec.Bindings})
			driverSet = allocated[0]

			boxed := g.handles.NewBoxed(vk.Handle(driverSet), vk.ObjectTypeDescriptorSet, nil, false)
			rec := newDescriptorSetRecord(vk.DescriptorSet(boxed), u.Pool, u.Layout, lrec.Bindings)
			g.mu.Lock()
			g.tables.DescriptorSets.mustAdd(driverSet, rec)
			g.mu.Unlock()

			pool.mu.Lock()
			pool.preallocated[u.PoolID] = vk.DescriptorSet(boxed)
			pool.mu.Unlock()
		} else {
			boxed := existing
			driver, ok := g.handles.TryUnbox(vk.Handle(boxed), vk.ObjectTypeDescriptorSet)
			if !ok {
				return NewValidationErrorf(vk.ObjectTypeDescriptorSet, "set", "pool-id %d resolved to unknown boxed set %#x", u.PoolID, uint64(boxed))
			}
			driverSet = vk.DescriptorSet(driver)
		}

		for i := range u.Writes {
			u.Writes[i].DstSet = driverSet
		}
		allWrites = append(allWrites, u.Writes...)
	}

	g.OnUpdateDescriptorSets(allWrites)
	updateFn(allWrites)
	return nil
}
