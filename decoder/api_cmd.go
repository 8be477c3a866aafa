// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"github.com/gogpu/vkdecoder/vk"
)

// OnCreateCommandPool boxes a new pool and its empty member set.
func (g *GlobalState) OnCreateCommandPool(driverDevice vk.Device, driverPool vk.CommandPool) vk.CommandPool {
	rec := NewCommandPoolRecord(0, driverDevice)
	g.mu.Lock()
	g.tables.CommandPools.mustAdd(driverPool, rec)
	g.mu.Unlock()
	boxed := g.handles.NewBoxed(vk.Handle(driverPool), vk.ObjectTypeCommandPool, nil, false)
	rec.Boxed = vk.CommandPool(boxed)
	return vk.CommandPool(boxed)
}

// OnDestroyCommandPool tears down every command buffer the pool still
// owns before releasing the pool's own boxed handle, mirroring the
// "pool destruction implicitly frees its buffers" rule vkDestroyCommandPool
// follows.
func (g *GlobalState) OnDestroyCommandPool(driverPool vk.CommandPool) {
	g.mu.Lock()
	rec, ok := g.tables.CommandPools.get(driverPool)
	var members []vk.CommandBuffer
	if ok {
		for m := range rec.Members {
			members = append(members, m)
		}
		g.tables.CommandPools.remove(driverPool)
		for _, m := range members {
			g.tables.CommandBuffers.remove(m)
		}
	}
	g.mu.Unlock()
	for _, m := range members {
		if boxed, ok := g.handles.BoxedOf(vk.Handle(m)); ok {
			g.handles.DeleteBoxed(boxed)
		}
	}
	if ok {
		if boxed, ok := g.handles.BoxedOf(vk.Handle(driverPool)); ok {
			g.handles.DeleteBoxed(boxed)
		}
	}
}

// OnAllocateCommandBuffers boxes each newly allocated buffer and registers
// it as a pool member.
func (g *GlobalState) OnAllocateCommandBuffers(driverDevice vk.Device, driverPool vk.CommandPool, driverBuffers []vk.CommandBuffer) []vk.CommandBuffer {
	boxedBuffers := make([]vk.CommandBuffer, len(driverBuffers))
	g.mu.Lock()
	pool, ok := g.tables.CommandPools.get(driverPool)
	for i, driverBuf := range driverBuffers {
		rec := NewCommandBufferRecord(0, driverPool, driverDevice)
		g.tables.CommandBuffers.mustAdd(driverBuf, rec)
		if ok {
			pool.Members[driverBuf] = struct{}{}
		}
		boxedBuffers[i] = driverBuf
	}
	g.mu.Unlock()
	for i, driverBuf := range driverBuffers {
		boxed := g.handles.NewBoxed(vk.Handle(driverBuf), vk.ObjectTypeCommandBuffer, nil, false)
		g.mu.Lock()
		rec, _ := g.tables.CommandBuffers.get(driverBuf)
		rec.Boxed = vk.CommandBuffer(boxed)
		g.mu.Unlock()
		boxedBuffers[i] = vk.CommandBuffer(boxed)
	}
	return boxedBuffers
}

func (g *GlobalState) OnFreeCommandBuffers(driverPool vk.CommandPool, driverBuffers []vk.CommandBuffer) {
	g.mu.Lock()
	pool, ok := g.tables.CommandPools.get(driverPool)
	for _, b := range driverBuffers {
		g.tables.CommandBuffers.remove(b)
		if ok {
			delete(pool.Members, b)
		}
	}
	g.mu.Unlock()
	for _, b := range driverBuffers {
		if boxed, ok := g.handles.BoxedOf(vk.Handle(b)); ok {
			g.handles.DeleteBoxed(boxed)
		}
	}
}

// OnResetCommandBuffer clears the accumulated bookkeeping a command
// buffer tracks between recordings.
func (g *GlobalState) OnResetCommandBuffer(driverBuf vk.CommandBuffer) {
	g.mu.Lock()
	rec, ok := g.tables.CommandBuffers.get(driverBuf)
	g.mu.Unlock()
	if ok {
		rec.Reset()
	}
}

// OnCmdBindPipeline records the bound compute pipeline/layout so a later
// decompression pass can restore it, per spec.md §3's command-buffer
// bookkeeping list. Callers must invoke this only for compute binds —
// graphics pipeline state isn't part of what a decompression pass clobbers.
func (g *GlobalState) OnCmdBindPipeline(driverBuf vk.CommandBuffer, driverPipeline vk.Pipeline) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.tables.CommandBuffers.get(driverBuf)
	if !ok {
		return
	}
	rec.BoundComputePipeline = driverPipeline
	if p, ok := g.tables.Pipelines.get(driverPipeline); ok {
		rec.BoundComputeLayout = p.Layout
	}
}

// OnCmdBindDescriptorSets records the bound sets/offsets and appends
// every set to ReferencedDescriptorSets, the list of sets this recording
// touched (cleared by Reset; teardown and snapshot do not read it).
// Callers must invoke this only for compute
// binds, matching OnCmdBindPipeline's contract.
func (g *GlobalState) OnCmdBindDescriptorSets(driverBuf vk.CommandBuffer, sets []vk.DescriptorSet, dynamicOffsets []uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.tables.CommandBuffers.get(driverBuf)
	if !ok {
		return
	}
	rec.ReferencedDescriptorSets = append(rec.ReferencedDescriptorSets, sets...)
	rec.BoundComputeDescriptorSets = sets
	rec.BoundComputeDynamicOffsets = dynamicOffsets
}

// ImageBarrier is the subset of a VkImageMemoryBarrier the decoder needs
// to decide whether a decompression pass must be inserted, per spec.md
// §4.6.
type ImageBarrier struct {
	Image     vk.Image
	OldLayout vk.ImageLayout
	NewLayout vk.ImageLayout
}

// isReadableLayout reports whether layout is one the image can be read
// from — by a shader (SHADER_READ_ONLY_OPTIMAL, GENERAL) or by a transfer
// (TRANSFER_SRC_OPTIMAL) — the trigger condition spec.md §4.6 names for
// inserting a decompression pass.
func isReadableLayout(layout vk.ImageLayout) bool {
	switch layout {
	case vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutGeneral, vk.ImageLayoutTransferSrcOptimal:
		return true
	default:
		return false
	}
}

// DecompressionPass is what OnCmdPipelineBarrier asks the caller to
// record before the caller's own barrier: bind the format's compute
// pipeline, dispatch over the compressed mip data, then restore whatever
// compute state the command buffer had bound.
type DecompressionPass struct {
	Pipeline   vk.Pipeline
	Layout     vk.PipelineLayout
	Image      *CompressedImageInfo
	RestorePipeline       vk.Pipeline
	RestoreLayout         vk.PipelineLayout
	RestoreDescriptorSets []vk.DescriptorSet
	RestoreDynamicOffsets []uint32
}

// OnCmdPipelineBarrier implements §4.6's split: for every barrier entry
// naming an emulated image transitioning into a readable layout, return
// the decompression pass the caller must record before forwarding the
// (unmodified) barrier to the driver. The command buffer's own saved
// compute state becomes the pass's restore state, since dispatching the
// decompression shader clobbers it.
func (g *GlobalState) OnCmdPipelineBarrier(driverBuf vk.CommandBuffer, barriers []ImageBarrier, pipelines *CompressedTexturePipelines) []DecompressionPass {
	g.mu.Lock()
	defer g.mu.Unlock()

	cb, ok := g.tables.CommandBuffers.get(driverBuf)
	if !ok {
		return nil
	}

	var passes []DecompressionPass
	for _, b := range barriers {
		if !isReadableLayout(b.NewLayout) {
			continue
		}
		img, ok := g.tables.Images.get(b.Image)
		if !ok || img.Compressed == nil {
			continue
		}
		pipeline, layout, ok := pipelines.lookup(img.Compressed.SourceFormat)
		if !ok {
			continue
		}
		passes = append(passes, DecompressionPass{
			Pipeline:              pipeline,
			Layout:                layout,
			Image:                 img.Compressed,
			RestorePipeline:       cb.BoundComputePipeline,
			RestoreLayout:         cb.BoundComputeLayout,
			RestoreDescriptorSets: cb.BoundComputeDescriptorSets,
			RestoreDynamicOffsets: cb.BoundComputeDynamicOffsets,
		})
		cb.TerminalImageLayouts[b.Image] = b.NewLayout
	}
	return passes
}

// OnCmdCopyImage rewrites a copy's source/destination images to their
// compressed-mip aliases when emulated, per spec.md §4.6.
func (g *GlobalState) OnCmdCopyImage(driverSrc, driverDst vk.Image, mipLevel uint32) (vk.Image, vk.Image, error) {
	g.mu.Lock()
	srcRec, srcOK := g.tables.Images.get(driverSrc)
	dstRec, dstOK := g.tables.Images.get(driverDst)
	g.mu.Unlock()

	src, dst := driverSrc, driverDst
	if srcOK && srcRec.Compressed != nil {
		m, err := RewriteCopyRegionsToMip(srcRec.Compressed, mipLevel)
		if err != nil {
			return 0, 0, err
		}
		src = m
	}
	if dstOK && dstRec.Compressed != nil {
		m, err := RewriteCopyRegionsToMip(dstRec.Compressed, mipLevel)
		if err != nil {
			return 0, 0, err
		}
		dst = m
	}
	return src, dst, nil
}
