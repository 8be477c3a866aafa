// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"sync"

	"github.com/gogpu/vkdecoder/vk"
)

// InstanceRecord is the per-kind state for a VkInstance, per spec.md §3.
type InstanceRecord struct {
	Boxed             vk.Instance
	EnabledExtensions []string
	APIVersion        uint32
	GuestContextID    uint32
	ApplicationName   string
	EngineName        string
	KnownANGLE        bool
	Dispatch          *vk.DispatchTable
}

// MemoryTypeMap remaps guest-visible memory-type indices to host indices,
// per spec.md §4.3.1.
type MemoryTypeMap struct {
	GuestTypes []vk.MemoryType
	HostTypes  []vk.MemoryType
	GuestToHost map[uint32]uint32
}

func (m *MemoryTypeMap) HostIndex(guestIndex uint32) (uint32, bool) {
	i, ok := m.GuestToHost[guestIndex]
	return i, ok
}

// PhysicalDeviceRecord is the per-kind state for a VkPhysicalDevice.
type PhysicalDeviceRecord struct {
	Boxed        vk.PhysicalDevice
	Instance     vk.Instance
	APIVersion   uint32 // clamped to <= 1.3, per spec.md §3
	MemoryTypes  MemoryTypeMap
	QueueFamilies []vk.QueueFamilyProperties
}

// DeviceRecord is the per-kind state for a VkDevice.
type DeviceRecord struct {
	Boxed              vk.Device
	PhysicalDevice     vk.PhysicalDevice
	EnabledExtensions  []string
	Dispatch           *vk.DispatchTable

	EmulateETC2    bool
	EmulateASTC    bool
	EmulateASTCCPU bool

	ComputeDecompression *CompressedTexturePipelines
	ExternalFencePool    *FencePool
	OpTracker            *DeviceOpTracker

	QueuesByFamily map[uint32][]*QueueRecord
	Queues         *QueueRegistry

	VirtioGpuContextID uint32

	SupportedExternalSemaphoreHandleTypes vk.ExternalHandleTypeFlags
	SupportedExternalFenceHandleTypes     vk.ExternalHandleTypeFlags
}

// QueueRecord is the per-kind state for a VkQueue, including its virtual
// twin if one was synthesized (spec.md §3, §4.4).
type QueueRecord struct {
	Boxed       vk.Queue
	Device      vk.Device
	FamilyIndex uint32
	Virtual     bool // low bit of the handle marks the synthesized twin

	// Shared between a physical queue and its virtual twin, per
	// invariant 7.
	shared *queueShared
}

type queueShared struct {
	mu      sync.Mutex
	pending []*pendingSubmission // submissions deferred by safeToSubmit, in FIFO order
}

// MemoryRecord is the per-kind state for a VkDeviceMemory.
type MemoryRecord struct {
	Boxed           vk.DeviceMemory
	Device          vk.Device
	Size            uint64
	MappedPtr       uintptr
	OwnsMapping     bool
	GuestPhysAddr   uintptr
	DirectMapped    bool
	HVA             uintptr
	PageAlignedSize uint64
	CachingPolicy   uint32
	BlobID          uint64
	MemoryTypeIndex uint32
	BoundColorBuffer uint32
	BoundBuffer     vk.Buffer
	HasBoundColorBuffer bool
	HasBoundBuffer      bool
}

// BufferRecord is the per-kind state for a VkBuffer.
type BufferRecord struct {
	Boxed            vk.Buffer
	Device           vk.Device
	CreateInfo       vk.BufferCreateInfo
	BoundMemory      vk.DeviceMemory
	BoundOffset      uint64
	ColorBufferRef   uint32
	HasColorBufferRef bool
	Live             *liveness
	LatestUse        *Waitable
}

// CompressedImageInfo is the compressed-texture shadow graph spec.md
// §4.6/§9 describes: one logical image backed by an uncompressed output
// image plus per-mip compressed storage aliases sharing the same memory.
type CompressedImageInfo struct {
	OutputImage    vk.Image
	MipmapImages   []vk.Image
	OutputFormat   vk.Format
	SourceFormat   vk.Format
	CPUDecompress  bool // true for ASTC-CPU fallback path
}

// ImageRecord is the per-kind state for a VkImage.
type ImageRecord struct {
	Boxed          vk.Image
	Device         vk.Device
	CreateInfo     vk.ImageCreateInfo
	BoundMemory    vk.DeviceMemory
	BoundOffset    uint64
	ColorBufferRef uint32
	HasColorBufferRef bool
	Live           *liveness
	LatestUse      *Waitable

	CurrentLayout vk.ImageLayout
	Compressed    *CompressedImageInfo
	IsAndroidNativeBuffer bool
}

// ImageViewRecord is the per-kind state for a VkImageView.
type ImageViewRecord struct {
	Boxed              vk.ImageView
	Image              vk.Image
	CreateInfo         vk.ImageViewCreateInfo
	NeedEmulatedAlpha  bool
	Live               *liveness
}

// SamplerRecord is the per-kind state for a VkSampler.
type SamplerRecord struct {
	Boxed                    vk.Sampler
	Device                   vk.Device
	CreateInfo               vk.SamplerCreateInfo
	EmulatedBorderColorAlias vk.Sampler // lazily created opaque-black variant, §4.7
	HasEmulatedVariant       bool
	Live                     *liveness
}

// SemaphoreRecord is the per-kind state for a VkSemaphore, per spec.md
// §3/§4.5.
type SemaphoreRecord struct {
	Boxed            vk.Semaphore
	Device           vk.Device
	Timeline         bool
	LastSignalValue  uint64
	ExportedHandle   vk.ExternalHandleTypeFlags
	HasExportedHandle bool
	LatestUse        *Waitable
	mu               sync.Mutex
}

// FenceState is the state machine named in spec.md §3/invariant 5.
type FenceState int

const (
	FenceNotWaitable FenceState = iota
	FenceWaitable
	FenceWaiting
)

// FenceRecord is the per-kind state for a VkFence.
type FenceRecord struct {
	Boxed     vk.Fence
	Device    vk.Device
	State     FenceState
	External  bool // eligible for the external-fence recycling pool
	LatestUse *Waitable

	mu   sync.Mutex
	cond *sync.Cond
}

func NewFenceRecord(boxed vk.Fence, device vk.Device) *FenceRecord {
	f := &FenceRecord{Boxed: boxed, Device: device, State: FenceNotWaitable}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// MarkWaitable transitions NotWaitable -> Waitable after a submission and
// wakes anyone blocked in WaitUntilWaitable (invariant 5).
func (f *FenceRecord) MarkWaitable() {
	f.mu.Lock()
	f.State = FenceWaitable
	f.cond.Broadcast()
	f.mu.Unlock()
}

// WaitUntilWaitable blocks until a submission has made the fence
// waitable. Callers must have already decided the fence needs waiting
// on; this only gates entry into the driver's vkWaitForFences call.
func (f *FenceRecord) WaitUntilWaitable() {
	f.mu.Lock()
	for f.State == FenceNotWaitable {
		f.cond.Wait()
	}
	f.mu.Unlock()
}

func (f *FenceRecord) Reset() {
	f.mu.Lock()
	f.State = FenceNotWaitable
	f.mu.Unlock()
}

// CommandBufferRecord accumulates the per-submission bookkeeping spec.md
// §3 describes: referenced descriptor sets, the compute state to restore
// after an emulated decompression pass, acquired/released ColorBuffers,
// and terminal layouts recorded from barriers.
type CommandBufferRecord struct {
	Boxed  vk.CommandBuffer
	Pool   vk.CommandPool
	Device vk.Device

	ReferencedDescriptorSets []vk.DescriptorSet

	BoundComputePipeline       vk.Pipeline
	BoundComputeLayout         vk.PipelineLayout
	BoundComputeDescriptorSets []vk.DescriptorSet
	BoundComputeDynamicOffsets []uint32

	AcquiredColorBuffers []uint32
	ReleasedColorBuffers []uint32

	TerminalImageLayouts       map[vk.Image]vk.ImageLayout
	TerminalColorBufferLayouts map[uint32]vk.ImageLayout
}

func NewCommandBufferRecord(boxed vk.CommandBuffer, pool vk.CommandPool, device vk.Device) *CommandBufferRecord {
	return &CommandBufferRecord{
		Boxed:                      boxed,
		Pool:                       pool,
		Device:                     device,
		TerminalImageLayouts:       make(map[vk.Image]vk.ImageLayout),
		TerminalColorBufferLayouts: make(map[uint32]vk.ImageLayout),
	}
}

// Reset clears accumulated state, matching what vkResetCommandBuffer (or
// an implicit reset via vkBeginCommandBuffer) must do.
func (c *CommandBufferRecord) Reset() {
	c.ReferencedDescriptorSets = nil
	c.BoundComputePipeline = 0
	c.BoundComputeLayout = 0
	c.BoundComputeDescriptorSets = nil
	c.BoundComputeDynamicOffsets = nil
	c.AcquiredColorBuffers = nil
	c.ReleasedColorBuffers = nil
	c.TerminalImageLayouts = make(map[vk.Image]vk.ImageLayout)
	c.TerminalColorBufferLayouts = make(map[uint32]vk.ImageLayout)
}

// CommandPoolRecord is the per-kind state for a VkCommandPool.
type CommandPoolRecord struct {
	Boxed   vk.CommandPool
	Device  vk.Device
	Members map[vk.CommandBuffer]struct{}
}

func NewCommandPoolRecord(boxed vk.CommandPool, device vk.Device) *CommandPoolRecord {
	return &CommandPoolRecord{Boxed: boxed, Device: device, Members: make(map[vk.CommandBuffer]struct{})}
}

// ShaderModuleRecord, RenderPassRecord, FramebufferRecord, PipelineRecord,
// PipelineLayoutRecord, and PipelineCacheRecord are thin device-owned
// records; the decoder's responsibility toward them is lifecycle
// tracking, not behavioral emulation, so they carry only what teardown
// and snapshot replay need.
type ShaderModuleRecord struct {
	Boxed  vk.ShaderModule
	Device vk.Device
	SPIRV  []byte
}

type RenderPassRecord struct {
	Boxed  vk.RenderPass
	Device vk.Device
}

type FramebufferRecord struct {
	Boxed  vk.Framebuffer
	Device vk.Device
}

type PipelineRecord struct {
	Boxed  vk.Pipeline
	Device vk.Device
	Layout vk.PipelineLayout
}

type PipelineLayoutRecord struct {
	Boxed  vk.PipelineLayout
	Device vk.Device
}

type PipelineCacheRecord struct {
	Boxed  vk.PipelineCache
	Device vk.Device
}
