// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"github.com/gogpu/vkdecoder/vk"
)

// OnCreateBuffer boxes a newly driver-created buffer and installs its
// record (spec.md §3's Buffer per-kind state).
func (g *GlobalState) OnCreateBuffer(driverDevice vk.Device, driverBuffer vk.Buffer, info vk.BufferCreateInfo) vk.Buffer {
	rec := &BufferRecord{Device: driverDevice, CreateInfo: info, Live: newLiveness()}
	g.mu.Lock()
	g.tables.Buffers.mustAdd(driverBuffer, rec)
	g.mu.Unlock()
	boxed := g.handles.NewBoxed(vk.Handle(driverBuffer), vk.ObjectTypeBuffer, nil, false)
	rec.Boxed = vk.Buffer(boxed)
	return vk.Buffer(boxed)
}

// OnDestroyBuffer removes the table entry and kills its liveness flag so
// any surviving descriptor writes that reference it are dropped at
// snapshot time (invariant 6).
func (g *GlobalState) OnDestroyBuffer(driverBuffer vk.Buffer) {
	g.mu.Lock()
	rec, ok := g.tables.Buffers.get(driverBuffer)
	if ok {
		g.tables.Buffers.remove(driverBuffer)
	}
	g.mu.Unlock()
	if ok {
		rec.Live.Kill()
		if boxed, ok := g.handles.BoxedOf(vk.Handle(driverBuffer)); ok {
			g.handles.DeleteBoxed(boxed)
		}
	}
}

// OnBindBufferMemory records the bound memory and offset.
func (g *GlobalState) OnBindBufferMemory(driverBuffer vk.Buffer, mem vk.DeviceMemory, offset uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rec, ok := g.tables.Buffers.get(driverBuffer); ok {
		rec.BoundMemory = mem
		rec.BoundOffset = offset
	}
}

// OnCreateImage implements on_vkCreateImage, wiring the compressed-
// texture engine (spec.md §4.6) into image creation before installing
// the object-table record.
func (g *GlobalState) OnCreateImage(driverDevice vk.Device, dev *DeviceRecord, req vk.ImageCreateInfo, driverSupportsFormat bool, createFn func(vk.ImageCreateInfo) (vk.Image, vk.Result)) (vk.Image, error) {
	driverImage, compressed, err := compressedTextureCreateImage(dev, req, driverSupportsFormat, createFn)
	if err != nil {
		return vk.Image(0), err
	}
	rec := &ImageRecord{
		Device:        driverDevice,
		CreateInfo:    req,
		Live:          newLiveness(),
		CurrentLayout: vk.ImageLayoutUndefined,
		Compressed:    compressed,
	}
	g.mu.Lock()
	g.tables.Images.mustAdd(driverImage, rec)
	g.mu.Unlock()
	boxed := g.handles.NewBoxed(vk.Handle(driverImage), vk.ObjectTypeImage, nil, false)
	rec.Boxed = vk.Image(boxed)
	return vk.Image(boxed), nil
}

// OnDestroyImage removes the table entry, destroys any compressed-mipmap
// alias images via destroyFn, and kills its liveness flag.
func (g *GlobalState) OnDestroyImage(driverImage vk.Image, destroyFn func(vk.Image)) {
	g.mu.Lock()
	rec, ok := g.tables.Images.get(driverImage)
	if ok {
		g.tables.Images.remove(driverImage)
	}
	g.mu.Unlock()
	if !ok {
		return
	}
	rec.Live.Kill()
	if rec.Compressed != nil {
		destroyFn(rec.Compressed.OutputImage)
		for _, mip := range rec.Compressed.MipmapImages {
			destroyFn(mip)
		}
	}
	if boxed, ok := g.handles.BoxedOf(vk.Handle(driverImage)); ok {
		g.handles.DeleteBoxed(boxed)
	}
}

// OnBindImageMemory records mem and offset on the logical image's record
// (the driver bind of the image itself is the caller's call) and, if it's
// an emulated compressed image, binds every mipmap alias through bindFn
// into its own sub-range of the same memory, packed from offset 0
// (spec.md §4.6 bind path). reqsFn reports
// each mip alias's own VkMemoryRequirements so the aliases can be packed
// without overlapping.
func (g *GlobalState) OnBindImageMemory(driverImage vk.Image, mem vk.DeviceMemory, offset uint64, reqsFn func(vk.Image) vk.MemoryRequirements, bindFn func(vk.Image, vk.DeviceMemory, uint64) vk.Result) error {
	g.mu.Lock()
	rec, ok := g.tables.Images.get(driverImage)
	g.mu.Unlock()
	if !ok {
		return NewValidationErrorf(vk.ObjectTypeImage, "image", "no record for %#x", uint64(driverImage))
	}
	rec.BoundMemory = mem
	rec.BoundOffset = offset
	if rec.Compressed != nil {
		if err := BindCompressedMipmapsMemory(rec.Compressed, mem, reqsFn, bindFn); err != nil {
			return err
		}
	}
	return nil
}

// OnCmdCopyBufferToImage rewrites destination regions to target the
// compressed mipmap alias when the image is emulated, per §4.6.
func (g *GlobalState) OnCmdCopyBufferToImage(driverImage vk.Image, regions []vk.BufferImageCopy) (vk.Image, []vk.BufferImageCopy, error) {
	g.mu.Lock()
	rec, ok := g.tables.Images.get(driverImage)
	g.mu.Unlock()
	if !ok {
		return driverImage, regions, NewValidationErrorf(vk.ObjectTypeImage, "image", "no record for %#x", uint64(driverImage))
	}
	if rec.Compressed == nil {
		return driverImage, regions, nil
	}
	out := make([]vk.BufferImageCopy, 0, len(regions))
	var target vk.Image
	for _, r := range regions {
		mipImage, err := RewriteCopyRegionsToMip(rec.Compressed, r.MipLevel)
		if err != nil {
			return driverImage, regions, err
		}
		target = mipImage
		rewritten := r
		rewritten.MipLevel = 0
		out = append(out, rewritten)
	}
	return target, out, nil
}
