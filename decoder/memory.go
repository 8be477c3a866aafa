// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"fmt"

	"github.com/gogpu/vkdecoder/emulation"
	"github.com/gogpu/vkdecoder/vk"
)

// MemoryAllocateRequest is the input to AllocateMemory, named after the
// mutually-exclusive import paths spec.md §4.3.2-§4.3.5 lists.
type MemoryAllocateRequest struct {
	GuestMemoryTypeIndex uint32
	AllocationSize       uint64

	ImportColorBuffer   *uint32 // VkImportColorBufferGOOGLE handle
	ImportBuffer        *uint32 // VkImportBufferGOOGLE handle
	CreateBlobHandle     bool    // VkCreateBlobGOOGLE with CREATE_GUEST_HANDLE
	BlobKey              emulation.ObjectKey

	DirectMap  bool
	GuestPhysAddr uintptr

	HostAllocation bool
	HostPointer    uintptr
	MemoryTypeBitsFromHost uint32

	Protected bool
}

// AllocateMemory implements vkAllocateMemory's emulation surface,
// spec.md §4.3. It does not itself call vkAllocateMemory for the plain
// (non-imported) path — callers make that driver call via dispatch
// themselves, and AllocateMemory adds no MemoryRecord to the object
// tables — because the decoder's contract only covers the emulation
// decisions, not re-implementing the driver call.
func (g *GlobalState) AllocateMemory(dev *DeviceRecord, pdev *PhysicalDeviceRecord, req MemoryAllocateRequest) (hostTypeIndex uint32, sizeToAllocate uint64, err error) {
	if req.Protected {
		return 0, 0, fmt.Errorf("%w: protected memory", ErrFeatureNotPresent)
	}

	hostTypeIndex, ok := pdev.MemoryTypes.HostIndex(req.GuestMemoryTypeIndex)
	if !ok {
		return 0, 0, NewValidationErrorf(vk.ObjectTypeDeviceMemory, "memoryTypeIndex", "guest index %d has no host mapping", req.GuestMemoryTypeIndex)
	}

	sizeToAllocate = req.AllocationSize
	if !req.DirectMap {
		sizeToAllocate = alignUp(sizeToAllocate, uint64(PageSize()))
	}
	if req.HostAllocation {
		sizeToAllocate = alignUp(sizeToAllocate, hostPointerAlignment)
	}
	return hostTypeIndex, sizeToAllocate, nil
}

// ImportColorBufferMemory resolves the allocation parameters for
// VkImportColorBufferGOOGLE by asking the ColorBuffer façade and
// duplicating its external memory handle, per spec.md §4.3.2.
func (g *GlobalState) ImportColorBufferMemory(colorBufferHandle uint32) (emulation.ColorBufferAllocationInfo, emulation.ExternalHandle, error) {
	if g.colorBuffers == nil {
		return emulation.ColorBufferAllocationInfo{}, emulation.ExternalHandle{}, fmt.Errorf("%w: no ColorBuffer host wired", ErrFeatureNotPresent)
	}
	info, ok := g.colorBuffers.GetColorBufferAllocationInfo(colorBufferHandle)
	if !ok {
		return emulation.ColorBufferAllocationInfo{}, emulation.ExternalHandle{}, NewValidationErrorf(vk.ObjectTypeDeviceMemory, "colorBuffer", "unknown handle %d", colorBufferHandle)
	}
	h, err := g.colorBuffers.DupColorBufferExtMemoryHandle(colorBufferHandle)
	if err != nil {
		return emulation.ColorBufferAllocationInfo{}, emulation.ExternalHandle{}, err
	}
	return info, h, nil
}

// ImportBufferMemory is the VkImportBufferGOOGLE analogue.
func (g *GlobalState) ImportBufferMemory(bufferHandle uint32) (emulation.ExternalHandle, error) {
	if g.colorBuffers == nil {
		return emulation.ExternalHandle{}, fmt.Errorf("%w: no ColorBuffer host wired", ErrFeatureNotPresent)
	}
	return g.colorBuffers.DupBufferExtMemoryHandle(bufferHandle)
}

// ImportBlobHandle pops a prepared descriptor from the external-object
// manager for the VkCreateBlobGOOGLE + CREATE_GUEST_HANDLE path, per
// spec.md §4.3.3.
func (g *GlobalState) ImportBlobHandle(key emulation.ObjectKey) (emulation.BlobDescriptor, error) {
	if g.extObjects == nil {
		return emulation.BlobDescriptor{}, fmt.Errorf("%w: no external object manager wired", ErrFeatureNotPresent)
	}
	desc, ok := g.extObjects.RemoveBlobDescriptorInfo(key)
	if !ok {
		return emulation.BlobDescriptor{}, NewValidationErrorf(vk.ObjectTypeDeviceMemory, "blobId", "no prepared descriptor for %+v", key)
	}
	return desc, nil
}

// PublishSystemBlob allocates (via the platform file's process-shared
// memory primitive) and publishes a segment for the System-blob path
// (§4.3.4).
func (g *GlobalState) PublishSystemBlob(key emulation.ObjectKey, size uint64) (hva uintptr, err error) {
	hva, err = allocateSharedMemory(alignUp(size, 4096))
	if err != nil {
		return 0, err
	}
	if g.extObjects != nil {
		g.extObjects.AddMapping(key, hva, size)
	}
	return hva, nil
}

// MapIntoGuestAddressSpace implements vkMapMemoryIntoAddressSpaceGOOGLE
// (§4.3.6): calls the VM-ops layer to map hva into the guest's physical
// address space at gpa, and on old-path builds registers a deallocation
// callback.
func (g *GlobalState) MapIntoGuestAddressSpace(gpa, hva uintptr, size uint64, registerDealloc bool, onDealloc func()) error {
	if g.addressSpace == nil {
		return fmt.Errorf("%w: no address-space ops wired", ErrFeatureNotPresent)
	}
	if err := g.addressSpace.MapUserMemory(gpa, hva, size); err != nil {
		return err
	}
	if registerDealloc && onDealloc != nil {
		g.addressSpace.RegisterDeallocationCallback(gpa, onDealloc)
	}
	return nil
}

// FreeMemory tears down direct mapping (or defers to the address-space
// driver), unmaps the host pointer if owned, and invokes free via
// dispatch, per spec.md §4.3.7. driverMemory is the table key for mem
// (object tables are keyed by driver handle; mem.Boxed only records the
// guest-visible token).
func (g *GlobalState) FreeMemory(mem *MemoryRecord, driverMemory vk.DeviceMemory, dispatch *vk.DispatchTable) error {
	if mem.DirectMapped && g.addressSpace != nil {
		if err := g.addressSpace.UnmapUserMemory(mem.GuestPhysAddr, mem.PageAlignedSize); err != nil {
			return err
		}
	}
	if mem.OwnsMapping && mem.MappedPtr != 0 {
		dispatch.UnmapMemory(mem.Device, driverMemory)
	}
	dispatch.FreeMemory(mem.Device, driverMemory)
	return nil
}

const hostPointerAlignment = 4096
