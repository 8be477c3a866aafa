// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package emulation declares the external collaborators the decoder calls
// out to but does not implement: the ColorBuffer compositor façade, the
// external-object manager, the address-space/VM-ops layer, and the
// device-lost handler. Production wiring of these lives outside this
// module; tests supply fakes.
package emulation

import "github.com/gogpu/vkdecoder/vk"

// HandleType tags which OS-specific representation a ColorBuffer or
// imported memory handle uses, per spec.md's "ColorBuffer" glossary
// entry.
type HandleType int

const (
	HandleTypeOpaqueFD HandleType = iota
	HandleTypeOpaqueWin32
	HandleTypeScreenBuffer
	HandleTypeMetalHeap
	HandleTypeHostPointer
)

// ExternalHandle is the tagged variant spec.md §9 describes for OS
// handles: "Model the external handle as a tagged variant {fd, win32,
// screen_buffer, metal_heap, host_ptr}".
type ExternalHandle struct {
	Type       HandleType
	FD         int
	Win32      uintptr
	ScreenBuf  uintptr
	MetalHeap  uintptr
	HostPtr    uintptr
}

// ColorBufferAllocationInfo is what GetColorBufferAllocationInfo reports
// about a compositor-owned image resource.
type ColorBufferAllocationInfo struct {
	Size                 uint64
	HostMemoryTypeIndex  uint32
	Dedicated            bool
	MappedPtr            uintptr
}

// ColorBufferHost is the façade the decoder calls into for everything
// about externally-managed ColorBuffer image resources (spec.md §6
// "VkEmulation façade").
type ColorBufferHost interface {
	GetColorBufferAllocationInfo(colorBufferHandle uint32) (ColorBufferAllocationInfo, bool)
	DupColorBufferExtMemoryHandle(colorBufferHandle uint32) (ExternalHandle, error)
	DupBufferExtMemoryHandle(bufferHandle uint32) (ExternalHandle, error)
	InvalidateColorBuffer(colorBufferHandle uint32) error
	FlushColorBuffer(colorBufferHandle uint32) error
	SetColorBufferCurrentLayout(colorBufferHandle uint32, layout vk.ImageLayout)
}

// BlobDescriptor is a prepared import descriptor popped from the
// external-object manager by the CREATE_GUEST_HANDLE blob path (§4.3.3).
type BlobDescriptor struct {
	Handle ExternalHandle
	Size   uint64
}

// SyncDescriptor is the analogous prepared descriptor for external
// semaphore/fence import.
type SyncDescriptor struct {
	Handle ExternalHandle
}

// ObjectKey identifies an external-object-manager entry by
// (virtioGpuContextId, hostBlobId), per spec.md §6.
type ObjectKey struct {
	VirtioGpuContextID uint32
	HostBlobID         uint64
}

// ExternalObjectManager brokers blob and sync descriptors between the
// decoder and whatever hypervisor-facing layer prepared them.
type ExternalObjectManager interface {
	AddBlobDescriptorInfo(key ObjectKey, desc BlobDescriptor)
	AddSyncDescriptorInfo(key ObjectKey, desc SyncDescriptor)
	RemoveBlobDescriptorInfo(key ObjectKey) (BlobDescriptor, bool)
	AddMapping(key ObjectKey, hva uintptr, size uint64)
}

// AddressSpaceOps is the VM-ops layer used for direct-mapping host
// allocations into the guest's physical address space (§4.3.6).
type AddressSpaceOps interface {
	MapUserMemory(gpa, hva uintptr, size uint64) error
	UnmapUserMemory(gpa uintptr, size uint64) error
	RegisterDeallocationCallback(gpa uintptr, cb func())
	SetSnapshotUsesVulkan()
	SetSkipSnapshotSave(reason string)
}

// DeviceLostHandler is invoked before the process aborts on
// VK_ERROR_DEVICE_LOST, per spec.md §7.
type DeviceLostHandler interface {
	OnDeviceLost()
}
