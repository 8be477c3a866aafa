// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"sync"

	"github.com/gogpu/vkdecoder/emulation"
	"github.com/gogpu/vkdecoder/vk"
)

// table is a generic per-kind map keyed by driver handle, guarded by the
// caller-held global mutex (mMutex) — tables themselves carry no lock,
// mirroring spec.md §4.2 ("All per-kind maps are guarded by one global
// mutex"). Grounded on the storage half of
// _examples/gogpu-wgpu/core/storage.go, stripped of its epoch/generation
// machinery because here the key IS the real driver handle rather than a
// minted dense index — there is no separate identity/slot split to make.
type table[H comparable, R any] map[H]*R

func (t table[H, R]) get(h H) (*R, bool) {
	r, ok := t[h]
	return r, ok
}

func (t table[H, R]) mustAdd(h H, r *R) {
	if _, exists := t[h]; exists {
		fatalf("object table: duplicate entry for handle %v", h)
	}
	t[h] = r
}

func (t table[H, R]) remove(h H) { delete(t, h) }

// ObjectTables holds one table per Vulkan object kind named in spec.md
// §2, all protected by the caller's hold on GlobalState.mu.
type ObjectTables struct {
	Instances             table[vk.Instance, InstanceRecord]
	PhysicalDevices       table[vk.PhysicalDevice, PhysicalDeviceRecord]
	Devices               table[vk.Device, DeviceRecord]
	Queues                table[vk.Queue, QueueRecord]
	Buffers               table[vk.Buffer, BufferRecord]
	Images                table[vk.Image, ImageRecord]
	ImageViews            table[vk.ImageView, ImageViewRecord]
	Memories              table[vk.DeviceMemory, MemoryRecord]
	Semaphores            table[vk.Semaphore, SemaphoreRecord]
	Fences                table[vk.Fence, FenceRecord]
	CommandPools          table[vk.CommandPool, CommandPoolRecord]
	CommandBuffers        table[vk.CommandBuffer, CommandBufferRecord]
	DescriptorPools       table[vk.DescriptorPool, DescriptorPoolRecord]
	DescriptorSets        table[vk.DescriptorSet, DescriptorSetRecord]
	DescriptorSetLayouts  table[vk.DescriptorSetLayout, DescriptorSetLayoutRecord]
	DescriptorUpdateTemplates table[vk.DescriptorUpdateTemplate, DescriptorUpdateTemplateRecord]
	Pipelines             table[vk.Pipeline, PipelineRecord]
	PipelineLayouts       table[vk.PipelineLayout, PipelineLayoutRecord]
	PipelineCaches        table[vk.PipelineCache, PipelineCacheRecord]
	ShaderModules         table[vk.ShaderModule, ShaderModuleRecord]
	RenderPasses          table[vk.RenderPass, RenderPassRecord]
	Framebuffers          table[vk.Framebuffer, FramebufferRecord]
	Samplers              table[vk.Sampler, SamplerRecord]
}

func NewObjectTables() *ObjectTables {
	return &ObjectTables{
		Instances:                 make(table[vk.Instance, InstanceRecord]),
		PhysicalDevices:           make(table[vk.PhysicalDevice, PhysicalDeviceRecord]),
		Devices:                   make(table[vk.Device, DeviceRecord]),
		Queues:                    make(table[vk.Queue, QueueRecord]),
		Buffers:                   make(table[vk.Buffer, BufferRecord]),
		Images:                    make(table[vk.Image, ImageRecord]),
		ImageViews:                make(table[vk.ImageView, ImageViewRecord]),
		Memories:                  make(table[vk.DeviceMemory, MemoryRecord]),
		Semaphores:                make(table[vk.Semaphore, SemaphoreRecord]),
		Fences:                    make(table[vk.Fence, FenceRecord]),
		CommandPools:              make(table[vk.CommandPool, CommandPoolRecord]),
		CommandBuffers:            make(table[vk.CommandBuffer, CommandBufferRecord]),
		DescriptorPools:           make(table[vk.DescriptorPool, DescriptorPoolRecord]),
		DescriptorSets:            make(table[vk.DescriptorSet, DescriptorSetRecord]),
		DescriptorSetLayouts:      make(table[vk.DescriptorSetLayout, DescriptorSetLayoutRecord]),
		DescriptorUpdateTemplates: make(table[vk.DescriptorUpdateTemplate, DescriptorUpdateTemplateRecord]),
		Pipelines:                 make(table[vk.Pipeline, PipelineRecord]),
		PipelineLayouts:           make(table[vk.PipelineLayout, PipelineLayoutRecord]),
		PipelineCaches:            make(table[vk.PipelineCache, PipelineCacheRecord]),
		ShaderModules:             make(table[vk.ShaderModule, ShaderModuleRecord]),
		RenderPasses:              make(table[vk.RenderPass, RenderPassRecord]),
		Framebuffers:              make(table[vk.Framebuffer, FramebufferRecord]),
		Samplers:                  make(table[vk.Sampler, SamplerRecord]),
	}
}

// GlobalState is VkDecoderGlobalState: the singleton composing every
// component in spec.md §2. Grounded on
// _examples/gogpu-wgpu/core/global.go's sync.Once-guarded Global
// singleton, whose doc comment justifies global mutable state the same
// way spec.md §9 does ("the Vulkan device loader itself is
// process-global").
type GlobalState struct {
	mu     sync.Mutex
	tables *ObjectTables

	handles  *HandleRegistry
	features Features
	flags    ProcessFlags

	semaphoreTracker *SemaphoreTracker
	fenceCPUPool     map[vk.Device]*FencePool
	orderMaintenance map[vk.Handle]*OrderMaintenanceInfo

	colorBuffers emulation.ColorBufferHost
	extObjects   emulation.ExternalObjectManager
	addressSpace emulation.AddressSpaceOps
	deviceLost   emulation.DeviceLostHandler

	snapshot *SnapshotState
}

var (
	globalOnce sync.Once
	global     *GlobalState
)

// GetGlobalState returns the process-wide decoder singleton, constructing
// it on first use.
func GetGlobalState() *GlobalState {
	globalOnce.Do(func() {
		global = NewGlobalState()
	})
	return global
}

// ResetGlobalStateForTest tears down the singleton so tests can start
// clean, per spec.md §9's "tests should isolate by tearing down the
// singleton between cases".
func ResetGlobalStateForTest() {
	globalOnce = sync.Once{}
	global = nil
}

// SetCollaborators wires the external façades named in spec.md §6. A nil
// argument leaves the corresponding collaborator unset; calls that would
// need it return ErrFeatureNotPresent instead of panicking, since a unit
// test or a minimal host may not need every façade.
func (g *GlobalState) SetCollaborators(cb emulation.ColorBufferHost, ext emulation.ExternalObjectManager, as emulation.AddressSpaceOps, dl emulation.DeviceLostHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.colorBuffers = cb
	g.extObjects = ext
	g.addressSpace = as
	g.deviceLost = dl
}

func NewGlobalState() *GlobalState {
	return &GlobalState{
		tables:           NewObjectTables(),
		handles:          NewHandleRegistry(NewProcessFlagsFromEnv().LogCalls),
		features:         NewFeaturesFromEnv(),
		flags:            NewProcessFlagsFromEnv(),
		semaphoreTracker: NewSemaphoreTracker(),
		fenceCPUPool:     make(map[vk.Device]*FencePool),
		orderMaintenance: make(map[vk.Handle]*OrderMaintenanceInfo),
		snapshot:         NewSnapshotState(),
	}
}
