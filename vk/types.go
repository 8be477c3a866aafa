// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package vk defines the Vulkan handle types, result codes, and the
// function-pointer dispatch tables the decoder calls through.
//
// This package deliberately does not load a Vulkan driver. Per the
// decoder's external-interfaces boundary, dispatch tables are populated
// by a collaborator outside this module (see cmd/vkdecoder-demo for a
// reference loader built on goffi); the decoder only ever calls through
// an already-resolved *DispatchTable.
package vk

// Handle is the common representation of every Vulkan handle, boxed or
// driver-side. Dispatchable and non-dispatchable handles are both backed
// by a 64-bit value on every platform this decoder targets (LP64 and
// Windows' ILP32 non-dispatchable handles are widened on boxing).
type Handle uint64

// Distinct handle types prevent accidentally unboxing an Image where a
// Buffer was expected; the registry still checks tags at runtime (see
// decoder/handles.go) because the wire format erases these static types.
type (
	Instance                 Handle
	PhysicalDevice            Handle
	Device                    Handle
	Queue                     Handle
	CommandBuffer             Handle
	Buffer                    Handle
	Image                     Handle
	ImageView                 Handle
	DeviceMemory              Handle
	Semaphore                 Handle
	Fence                     Handle
	CommandPool               Handle
	DescriptorPool            Handle
	DescriptorSet             Handle
	DescriptorSetLayout       Handle
	DescriptorUpdateTemplate  Handle
	Pipeline                  Handle
	PipelineLayout            Handle
	PipelineCache             Handle
	ShaderModule              Handle
	RenderPass                Handle
	Framebuffer               Handle
	Sampler                   Handle
)

// NullHandle is the zero value shared by every handle type, equivalent to
// VK_NULL_HANDLE.
const NullHandle = 0

// ObjectType tags a driver handle with the Vulkan object kind it belongs
// to. The handle registry stores one of these per boxed entry so that
// Unbox can fail fast on a type mismatch (spec §4.1: "tag mismatch is
// fatal").
type ObjectType int

const (
	ObjectTypeUnknown ObjectType = iota
	ObjectTypeInstance
	ObjectTypePhysicalDevice
	ObjectTypeDevice
	ObjectTypeQueue
	ObjectTypeCommandBuffer
	ObjectTypeBuffer
	ObjectTypeImage
	ObjectTypeImageView
	ObjectTypeDeviceMemory
	ObjectTypeSemaphore
	ObjectTypeFence
	ObjectTypeCommandPool
	ObjectTypeDescriptorPool
	ObjectTypeDescriptorSet
	ObjectTypeDescriptorSetLayout
	ObjectTypeDescriptorUpdateTemplate
	ObjectTypePipeline
	ObjectTypePipelineLayout
	ObjectTypePipelineCache
	ObjectTypeShaderModule
	ObjectTypeRenderPass
	ObjectTypeFramebuffer
	ObjectTypeSampler
)

func (t ObjectType) String() string {
	switch t {
	case ObjectTypeInstance:
		return "VkInstance"
	case ObjectTypePhysicalDevice:
		return "VkPhysicalDevice"
	case ObjectTypeDevice:
		return "VkDevice"
	case ObjectTypeQueue:
		return "VkQueue"
	case ObjectTypeCommandBuffer:
		return "VkCommandBuffer"
	case ObjectTypeBuffer:
		return "VkBuffer"
	case ObjectTypeImage:
		return "VkImage"
	case ObjectTypeImageView:
		return "VkImageView"
	case ObjectTypeDeviceMemory:
		return "VkDeviceMemory"
	case ObjectTypeSemaphore:
		return "VkSemaphore"
	case ObjectTypeFence:
		return "VkFence"
	case ObjectTypeCommandPool:
		return "VkCommandPool"
	case ObjectTypeDescriptorPool:
		return "VkDescriptorPool"
	case ObjectTypeDescriptorSet:
		return "VkDescriptorSet"
	case ObjectTypeDescriptorSetLayout:
		return "VkDescriptorSetLayout"
	case ObjectTypeDescriptorUpdateTemplate:
		return "VkDescriptorUpdateTemplate"
	case ObjectTypePipeline:
		return "VkPipeline"
	case ObjectTypePipelineLayout:
		return "VkPipelineLayout"
	case ObjectTypePipelineCache:
		return "VkPipelineCache"
	case ObjectTypeShaderModule:
		return "VkShaderModule"
	case ObjectTypeRenderPass:
		return "VkRenderPass"
	case ObjectTypeFramebuffer:
		return "VkFramebuffer"
	case ObjectTypeSampler:
		return "VkSampler"
	default:
		return "VkObjectTypeUnknown"
	}
}

// Format mirrors the small subset of VkFormat values the compressed
// texture engine and memory emulation need to reason about.
type Format int32

const (
	FormatUndefined Format = iota
	FormatR8G8B8A8Unorm
	FormatETC2R8G8B8Unorm
	FormatETC2R8G8B8A8Unorm
	FormatASTC4x4Unorm
	FormatASTC8x8Unorm
)

// ImageLayout mirrors VkImageLayout values the decoder tracks per image
// and per ColorBuffer (spec §4.6, §4.8 step 5).
type ImageLayout int32

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutColorAttachmentOptimal
	ImageLayoutTransferSrcOptimal
	ImageLayoutTransferDstOptimal
	ImageLayoutShaderReadOnlyOptimal
	ImageLayoutPresentSrc
)

// Extent3D mirrors VkExtent3D.
type Extent3D struct {
	Width, Height, Depth uint32
}

// MemoryRequirements mirrors the fields of VkMemoryRequirements the
// memory emulation layer needs.
type MemoryRequirements struct {
	Size           uint64
	Alignment      uint64
	MemoryTypeBits uint32
}

// MemoryPropertyFlags mirrors VkMemoryPropertyFlags bits relevant to type
// selection in §4.3.
type MemoryPropertyFlags uint32

const (
	MemoryPropertyDeviceLocal MemoryPropertyFlags = 1 << iota
	MemoryPropertyHostVisible
	MemoryPropertyHostCoherent
	MemoryPropertyHostCached
	MemoryPropertyProtected
)

// MemoryType and MemoryHeap mirror VkPhysicalDeviceMemoryProperties
// entries.
type MemoryType struct {
	PropertyFlags MemoryPropertyFlags
	HeapIndex     uint32
}

type MemoryHeap struct {
	Size  uint64
	Flags uint32
}

// PhysicalDeviceMemoryProperties mirrors VkPhysicalDeviceMemoryProperties.
type PhysicalDeviceMemoryProperties struct {
	MemoryTypes []MemoryType
	MemoryHeaps []MemoryHeap
}

// QueueFamilyProperties mirrors VkQueueFamilyProperties.
type QueueFamilyProperties struct {
	QueueFlags uint32
	QueueCount uint32
}

// ExternalHandleTypeFlags mirrors VkExternalMemory/Semaphore/FenceHandleTypeFlags
// bits relevant to §4.9's "pick the first handle type present" policy.
type ExternalHandleTypeFlags uint32

const (
	ExternalHandleTypeOpaqueFD ExternalHandleTypeFlags = 1 << iota
	ExternalHandleTypeOpaqueWin32
	ExternalHandleTypeSyncFD
	ExternalHandleTypeHostAllocation
	ExternalHandleTypeDMABuf
	ExternalHandleTypeAndroidHardwareBuffer
)
