// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package vk

// DispatchTable holds the subset of Vulkan entry points the decoder calls
// through. Every dispatchable boxed handle (instance, physical device,
// device, queue, command buffer) carries a pointer to one of these (see
// decoder/handles.go); the decoder never resolves function pointers
// itself.
//
// Fields are grouped the way vkGetInstanceProcAddr / vkGetDeviceProcAddr
// resolve them: instance-level entry points take a VkInstance or
// VkPhysicalDevice as their first argument, device-level entry points
// take a VkDevice, VkQueue, or VkCommandBuffer.
//
// A nil field is a programmer error if the decoder calls it; production
// loaders (see cmd/vkdecoder-demo) must populate every field the decoder
// exercises.
type DispatchTable struct {
	// Instance-level.
	DestroyInstance                    func(Instance)
	EnumeratePhysicalDevices           func(Instance, *uint32, []PhysicalDevice) Result
	GetPhysicalDeviceMemoryProperties  func(PhysicalDevice) PhysicalDeviceMemoryProperties
	GetPhysicalDeviceQueueFamilyProperties func(PhysicalDevice) []QueueFamilyProperties
	CreateDevice                       func(PhysicalDevice, CreateDeviceInfo) (Device, Result)

	// Device-level.
	DestroyDevice             func(Device)
	DeviceWaitIdle             func(Device) Result
	GetDeviceQueue             func(Device, uint32, uint32) Queue

	CreateBuffer       func(Device, BufferCreateInfo) (Buffer, Result)
	DestroyBuffer      func(Device, Buffer)
	GetBufferMemoryRequirements func(Device, Buffer) MemoryRequirements
	BindBufferMemory   func(Device, Buffer, DeviceMemory, uint64) Result

	CreateImage        func(Device, ImageCreateInfo) (Image, Result)
	DestroyImage       func(Device, Image)
	GetImageMemoryRequirements func(Device, Image) MemoryRequirements
	BindImageMemory    func(Device, Image, DeviceMemory, uint64) Result

	CreateImageView  func(Device, ImageViewCreateInfo) (ImageView, Result)
	DestroyImageView func(Device, ImageView)

	AllocateMemory func(Device, MemoryAllocateInfo) (DeviceMemory, Result)
	FreeMemory     func(Device, DeviceMemory)
	MapMemory      func(Device, DeviceMemory, uint64, uint64) (uintptr, Result)
	UnmapMemory    func(Device, DeviceMemory)
	GetMemoryFD    func(Device, DeviceMemory) (int, Result)

	CreateSemaphore  func(Device, SemaphoreCreateInfo) (Semaphore, Result)
	DestroySemaphore func(Device, Semaphore)
	SignalSemaphore  func(Device, Semaphore, uint64) Result
	GetSemaphoreCounterValue func(Device, Semaphore) (uint64, Result)

	CreateFence      func(Device, FenceCreateInfo) (Fence, Result)
	DestroyFence     func(Device, Fence)
	GetFenceStatus   func(Device, Fence) Result
	ResetFences      func(Device, []Fence) Result
	WaitForFences    func(Device, []Fence, bool, uint64) Result

	CreateCommandPool    func(Device, uint32) (CommandPool, Result)
	DestroyCommandPool   func(Device, CommandPool)
	AllocateCommandBuffers func(Device, CommandPool, uint32) ([]CommandBuffer, Result)
	FreeCommandBuffers   func(Device, CommandPool, []CommandBuffer)

	CreateDescriptorPool   func(Device, DescriptorPoolCreateInfo) (DescriptorPool, Result)
	DestroyDescriptorPool  func(Device, DescriptorPool)
	ResetDescriptorPool    func(Device, DescriptorPool) Result
	AllocateDescriptorSets func(Device, DescriptorPool, []DescriptorSetLayout) ([]DescriptorSet, Result)
	FreeDescriptorSets     func(Device, DescriptorPool, []DescriptorSet) Result
	UpdateDescriptorSets   func(Device, []WriteDescriptorSet)

	CreateDescriptorSetLayout  func(Device, DescriptorSetLayoutCreateInfo) (DescriptorSetLayout, Result)
	DestroyDescriptorSetLayout func(Device, DescriptorSetLayout)

	CreateSampler  func(Device, SamplerCreateInfo) (Sampler, Result)
	DestroySampler func(Device, Sampler)

	CreateShaderModule  func(Device, []byte) (ShaderModule, Result)
	DestroyShaderModule func(Device, ShaderModule)

	CreateRenderPass  func(Device, RenderPassCreateInfo) (RenderPass, Result)
	DestroyRenderPass func(Device, RenderPass)

	CreateFramebuffer  func(Device, FramebufferCreateInfo) (Framebuffer, Result)
	DestroyFramebuffer func(Device, Framebuffer)

	CreatePipelineLayout  func(Device, PipelineLayoutCreateInfo) (PipelineLayout, Result)
	DestroyPipelineLayout func(Device, PipelineLayout)
	CreatePipelineCache   func(Device) (PipelineCache, Result)
	DestroyPipelineCache  func(Device, PipelineCache)
	CreateComputePipelines func(Device, PipelineCache, []ComputePipelineCreateInfo) ([]Pipeline, Result)
	DestroyPipeline        func(Device, Pipeline)

	QueueSubmit   func(Queue, []SubmitInfo, Fence) Result
	QueueWaitIdle func(Queue) Result

	CmdCopyBufferToImage func(CommandBuffer, Buffer, Image, []BufferImageCopy)
	CmdCopyImageToBuffer func(CommandBuffer, Image, Buffer, []BufferImageCopy)
	CmdCopyImage         func(CommandBuffer, Image, Image, []ImageCopy)
	CmdPipelineBarrier   func(CommandBuffer, ImageLayout, ImageLayout, Image)
	CmdDispatch          func(CommandBuffer, uint32, uint32, uint32)
	CmdBindPipeline      func(CommandBuffer, Pipeline)
	CmdBindDescriptorSets func(CommandBuffer, PipelineLayout, []DescriptorSet, []uint32)
}

// Creation-info structs carry only the fields the decoder itself reads or
// rewrites (e.g. to substitute a decompression-friendly format); the rest
// of the guest-supplied struct passes through opaquely in the real
// marshaller, which is out of scope here per spec.md §1.

type CreateDeviceInfo struct {
	EnabledExtensions []string
	QueueCreateInfos  []DeviceQueueCreateInfo
}

type DeviceQueueCreateInfo struct {
	FamilyIndex uint32
	Count       uint32
}

type BufferCreateInfo struct {
	Size  uint64
	Usage uint32
}

type ImageCreateInfo struct {
	Format        Format
	Extent        Extent3D
	MipLevels     uint32
	ArrayLayers   uint32
	Usage         uint32
	MutableFormat bool
}

type ImageViewCreateInfo struct {
	Image  Image
	Format Format
}

type MemoryAllocateInfo struct {
	AllocationSize  uint64
	MemoryTypeIndex uint32
}

type SemaphoreCreateInfo struct {
	Timeline     bool
	InitialValue uint64
}

type FenceCreateInfo struct {
	Signaled bool
}

type DescriptorPoolCreateInfo struct {
	MaxSets   uint32
	PoolSizes []DescriptorPoolSize
}

type DescriptorPoolSize struct {
	Type            DescriptorType
	DescriptorCount uint32
}

type DescriptorType int32

const (
	DescriptorTypeSampler DescriptorType = iota
	DescriptorTypeCombinedImageSampler
	DescriptorTypeSampledImage
	DescriptorTypeStorageImage
	DescriptorTypeUniformBuffer
	DescriptorTypeStorageBuffer
	DescriptorTypeUniformTexelBuffer
	DescriptorTypeStorageTexelBuffer
	DescriptorTypeInlineUniformBlock
	DescriptorTypeAccelerationStructure
)

type WriteDescriptorSet struct {
	DstSet          DescriptorSet
	DstBinding      uint32
	DstArrayElement uint32
	DescriptorType  DescriptorType
	DescriptorCount uint32
	ImageInfo       []DescriptorImageInfo
	BufferInfo      []DescriptorBufferInfo
}

type DescriptorImageInfo struct {
	Sampler     Sampler
	ImageView   ImageView
	ImageLayout ImageLayout
}

type DescriptorBufferInfo struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
}

type DescriptorSetLayoutCreateInfo struct {
	Bindings []DescriptorSetLayoutBinding
}

type DescriptorSetLayoutBinding struct {
	Binding         uint32
	DescriptorType  DescriptorType
	DescriptorCount uint32
}

type SamplerCreateInfo struct {
	BorderColorTransparentBlack bool
}

type RenderPassCreateInfo struct{}

type FramebufferCreateInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Width       uint32
	Height      uint32
}

type PipelineLayoutCreateInfo struct {
	SetLayouts []DescriptorSetLayout
}

type ComputePipelineCreateInfo struct {
	Layout       PipelineLayout
	ShaderModule ShaderModule
}

type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitValues       []uint64
	SignalSemaphores []Semaphore
	SignalValues     []uint64
	CommandBuffers   []CommandBuffer
}

type BufferImageCopy struct {
	BufferOffset uint64
	MipLevel     uint32
	Extent       Extent3D
}

type ImageCopy struct {
	SrcMipLevel uint32
	DstMipLevel uint32
	Extent      Extent3D
}
