// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"fmt"
	"sync"

	"github.com/gogpu/vkdecoder/emulation"
	"github.com/gogpu/vkdecoder/vk"
)

// dupPlatform and closePlatform are implemented per-OS in
// external_sync_unix.go / external_sync_windows.go, using
// golang.org/x/sys for the platform syscall (dup(2) / DuplicateHandle),
// per spec.md §4.9.

// pickExternalHandleType selects the first handle type present in
// supported, preferring opaque Win32 over sync-fd over opaque-fd, per
// spec.md §4.9 ("pick the first handle type present in the device's
// supported bitmask (opaque Win32 > sync-fd > opaque-fd)").
func pickExternalHandleType(supported vk.ExternalHandleTypeFlags) (vk.ExternalHandleTypeFlags, bool) {
	preference := []vk.ExternalHandleTypeFlags{
		vk.ExternalHandleTypeOpaqueWin32,
		vk.ExternalHandleTypeSyncFD,
		vk.ExternalHandleTypeOpaqueFD,
	}
	for _, t := range preference {
		if supported&t != 0 {
			return t, true
		}
	}
	return 0, false
}

// ExportSemaphore picks an external handle type from the device's
// supported set and returns it, recording it on the semaphore record.
func ExportSemaphore(dev *DeviceRecord, sem *SemaphoreRecord) (vk.ExternalHandleTypeFlags, error) {
	t, ok := pickExternalHandleType(dev.SupportedExternalSemaphoreHandleTypes)
	if !ok {
		return 0, fmt.Errorf("%w: device advertises no external semaphore handle type", ErrInvalidExternalHandle)
	}
	sem.mu.Lock()
	sem.ExportedHandle = t
	sem.HasExportedHandle = true
	sem.mu.Unlock()
	return t, nil
}

// ExportFence picks an external handle type for fence export.
func ExportFence(dev *DeviceRecord, supported vk.ExternalHandleTypeFlags) (vk.ExternalHandleTypeFlags, error) {
	t, ok := pickExternalHandleType(supported)
	if !ok {
		return 0, fmt.Errorf("%w: device advertises no external fence handle type", ErrInvalidExternalHandle)
	}
	return t, nil
}

// FencePool recycles externally-signalled fences instead of destroying
// them, because guests are known to destroy external fences prematurely
// (spec.md §4.9). Grounded directly on
// _examples/gogpu-wgpu/hal/vulkan/fence_pool.go's fencePool{active,
// free, lastCompleted} / maintain() / signal() / wait() shape.
type FencePool struct {
	mu       sync.Mutex
	device   vk.Device
	dispatch *vk.DispatchTable
	free     []vk.Fence
	active   []vk.Fence
}

func NewFencePool(device vk.Device, dispatch *vk.DispatchTable) *FencePool {
	return &FencePool{device: device, dispatch: dispatch}
}

// Acquire returns a free fence, creating one if the pool is empty.
func (p *FencePool) Acquire() (vk.Fence, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		f := p.free[n-1]
		p.free = p.free[:n-1]
		p.active = append(p.active, f)
		return f, nil
	}
	f, res := p.dispatch.CreateFence(p.device, vk.FenceCreateInfo{})
	if !res.Succeeded() {
		return vk.NullHandle, fmt.Errorf("%w: vkCreateFence: %d", ErrOutOfDeviceMemory, res)
	}
	p.active = append(p.active, f)
	return f, nil
}

// Maintain polls every active fence non-blockingly and recycles the ones
// that have signalled back onto the free list, resetting them first.
func (p *FencePool) Maintain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	remaining := p.active[:0]
	for _, f := range p.active {
		if p.dispatch.GetFenceStatus(p.device, f) == vk.Success {
			p.dispatch.ResetFences(p.device, []vk.Fence{f})
			p.free = append(p.free, f)
		} else {
			remaining = append(remaining, f)
		}
	}
	p.active = remaining
}

// dup duplicates an OS handle so the decoder and the importing process
// each hold an independent reference, per spec.md §4.9.
func dup(h emulation.ExternalHandle) (emulation.ExternalHandle, error) {
	return dupPlatform(h)
}
