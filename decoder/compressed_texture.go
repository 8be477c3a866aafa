// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"fmt"

	"github.com/gogpu/vkdecoder/vk"
)

// emulatedFormats maps a guest-requested compressed format to the
// uncompressed output format and the storage-compatible format used for
// the compressed mipmap alias, per spec.md §4.6.
var emulatedFormats = map[vk.Format]struct {
	output  vk.Format
	storage vk.Format
	cpu     bool
}{
	vk.FormatETC2R8G8B8Unorm:   {output: vk.FormatR8G8B8A8Unorm, storage: vk.FormatETC2R8G8B8Unorm, cpu: false},
	vk.FormatETC2R8G8B8A8Unorm: {output: vk.FormatR8G8B8A8Unorm, storage: vk.FormatETC2R8G8B8A8Unorm, cpu: false},
	vk.FormatASTC4x4Unorm:      {output: vk.FormatR8G8B8A8Unorm, storage: vk.FormatASTC4x4Unorm, cpu: true},
	vk.FormatASTC8x8Unorm:      {output: vk.FormatR8G8B8A8Unorm, storage: vk.FormatASTC8x8Unorm, cpu: true},
}

// NeedsDecompression reports whether format requires the compressed-
// texture shadow graph given the device's emulation flags and whether
// the driver natively supports it, per spec.md §4.6's needDecompression
// predicate ("feature-enabled ∧ driver-lacking").
func NeedsDecompression(dev *DeviceRecord, format vk.Format, driverSupportsFormat bool) bool {
	if driverSupportsFormat {
		return false
	}
	info, known := emulatedFormats[format]
	if !known {
		return false
	}
	if info.cpu {
		return dev.EmulateASTC || dev.EmulateASTCCPU
	}
	return dev.EmulateETC2
}

// CompressedTexturePipelines owns the per-device compute-decompression
// pipelines, one per emulated format, as pipeline and pipeline-layout
// handles registered with it. It holds no shader code; this repository
// contains no decompression shader source or bytecode.
type CompressedTexturePipelines struct {
	pipelines map[vk.Format]vk.Pipeline
	layouts   map[vk.Format]vk.PipelineLayout
}

func NewCompressedTexturePipelines() *CompressedTexturePipelines {
	return &CompressedTexturePipelines{
		pipelines: make(map[vk.Format]vk.Pipeline),
		layouts:   make(map[vk.Format]vk.PipelineLayout),
	}
}

func (p *CompressedTexturePipelines) register(format vk.Format, pipeline vk.Pipeline, layout vk.PipelineLayout) {
	p.pipelines[format] = pipeline
	p.layouts[format] = layout
}

func (p *CompressedTexturePipelines) lookup(format vk.Format) (vk.Pipeline, vk.PipelineLayout, bool) {
	pipeline, ok := p.pipelines[format]
	return pipeline, p.layouts[format], ok
}

// compressedTextureCreateImage implements the §4.6 create path: if format needs
// decompression, instantiate a CompressedImageInfo with an output image
// plus one compressed-mipmap alias per mip level, using an adjusted
// create-info (mutable format, storage usage, decompression-friendly
// format).
func compressedTextureCreateImage(dev *DeviceRecord, req vk.ImageCreateInfo, driverSupportsFormat bool, createFn func(vk.ImageCreateInfo) (vk.Image, vk.Result)) (vk.Image, *CompressedImageInfo, error) {
	needDecompress := NeedsDecompression(dev, req.Format, driverSupportsFormat)

	adjusted := req
	var info *CompressedImageInfo
	if needDecompress {
		fmtInfo := emulatedFormats[req.Format]
		adjusted.Format = fmtInfo.output
		adjusted.MutableFormat = true
		adjusted.Usage |= storageUsageBit

		outputImage, res := createFn(adjusted)
		if !res.Succeeded() {
			return vk.Image(0), nil, fmt.Errorf("vkCreateImage (output): %d", res)
		}

		mipInfo := req
		mipInfo.Format = fmtInfo.storage
		mipInfo.Usage = storageUsageBit
		mips := make([]vk.Image, req.MipLevels)
		for m := uint32(0); m < req.MipLevels; m++ {
			perMip := mipInfo
			perMip.MipLevels = 1
			perMip.Extent = mipExtent(req.Extent, m)
			mipImg, res := createFn(perMip)
			if !res.Succeeded() {
				return vk.Image(0), nil, fmt.Errorf("vkCreateImage (mip %d): %d", m, res)
			}
			mips[m] = mipImg
		}

		info = &CompressedImageInfo{
			OutputImage:   outputImage,
			MipmapImages:  mips,
			OutputFormat:  fmtInfo.output,
			SourceFormat:  req.Format,
			CPUDecompress: fmtInfo.cpu,
		}
		return outputImage, info, nil
	}

	img, res := createFn(req)
	if !res.Succeeded() {
		return vk.Image(0), nil, fmt.Errorf("vkCreateImage: %d", res)
	}
	return img, nil, nil
}

const storageUsageBit = 1 << 3 // VK_IMAGE_USAGE_STORAGE_BIT

func mipExtent(base vk.Extent3D, level uint32) vk.Extent3D {
	shift := func(v uint32) uint32 {
		for i := uint32(0); i < level; i++ {
			if v > 1 {
				v /= 2
			}
		}
		return v
	}
	return vk.Extent3D{Width: shift(base.Width), Height: shift(base.Height), Depth: shift(base.Depth)}
}

// alignUp rounds size up to the next multiple of alignment, which must be
// a power of two; an alignment of 0 leaves size unchanged. Besides the
// mip-alias packing below, memory.go uses it for the page-size rounding
// of spec.md §4.3 and the host-pointer alignment of §4.3.5.
func alignUp(size, alignment uint64) uint64 {
	if alignment == 0 {
		return size
	}
	return (size + alignment - 1) &^ (alignment - 1)
}

// BindCompressedMipmapsMemory implements the §4.6 bind path: after the
// driver binds the output image's memory, bind each compressed-mipmap
// alias to its own sub-range of the same device memory, packing mips
// back to back with each one's own size and alignment (they share the
// allocation, per the shadow-graph design in spec.md §9, but they must
// not overlap one another within it).
func BindCompressedMipmapsMemory(info *CompressedImageInfo, mem vk.DeviceMemory, reqsFn func(vk.Image) vk.MemoryRequirements, bindFn func(vk.Image, vk.DeviceMemory, uint64) vk.Result) error {
	offset := uint64(0)
	for _, mip := range info.MipmapImages {
		reqs := reqsFn(mip)
		offset = alignUp(offset, reqs.Alignment)
		if res := bindFn(mip, mem, offset); !res.Succeeded() {
			return fmt.Errorf("vkBindImageMemory (mip alias): %d", res)
		}
		offset += reqs.Size
	}
	return nil
}

// RewriteCopyRegionsToMip substitutes the compressed alias for the
// logical image's handle when source or destination is emulated,
// implementing the region rewrite of spec.md §4.6 for
// vkCmdCopyBufferToImage/vkCmdCopyImageToBuffer/vkCmdCopyImage.
func RewriteCopyRegionsToMip(info *CompressedImageInfo, mipLevel uint32) (vk.Image, error) {
	if int(mipLevel) >= len(info.MipmapImages) {
		return vk.Image(0), fmt.Errorf("compressed image: mip %d out of range (%d mips)", mipLevel, len(info.MipmapImages))
	}
	return info.MipmapImages[mipLevel], nil
}
