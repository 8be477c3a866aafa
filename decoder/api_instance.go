// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"strings"

	"github.com/gogpu/vkdecoder/vk"
)

// CreateInstanceRequest carries the subset of VkInstanceCreateInfo the
// decoder reads, per spec.md §3's Instance per-kind state.
type CreateInstanceRequest struct {
	EnabledExtensions []string
	RequestedAPIVersion uint32
	ApplicationName     string
	EngineName          string
	GuestContextID      uint32
}

// OnCreateInstance implements on_vkCreateInstance: it calls through
// dispatch.CreateDevice's instance-level sibling is left to the caller
// (instance creation itself is loader-level, out of this decoder's
// scope per §1); this method's job is the bookkeeping once the driver
// instance handle exists.
func (g *GlobalState) OnCreateInstance(driverInstance vk.Instance, req CreateInstanceRequest, dispatch *vk.DispatchTable) vk.Instance {
	knownANGLE := false
	for _, ext := range req.EnabledExtensions {
		if strings.Contains(strings.ToLower(ext), "angle") {
			knownANGLE = true
			break
		}
	}

	g.mu.Lock()
	g.tables.Instances.mustAdd(driverInstance, &InstanceRecord{
		EnabledExtensions: req.EnabledExtensions,
		APIVersion:        req.RequestedAPIVersion,
		GuestContextID:    req.GuestContextID,
		ApplicationName:   req.ApplicationName,
		EngineName:        req.EngineName,
		KnownANGLE:        knownANGLE,
		Dispatch:          dispatch,
	})
	g.mu.Unlock()

	boxed := g.handles.NewBoxed(vk.Handle(driverInstance), vk.ObjectTypeInstance, dispatch, true)
	g.mu.Lock()
	rec, _ := g.tables.Instances.get(driverInstance)
	rec.Boxed = vk.Instance(boxed)
	g.mu.Unlock()
	return vk.Instance(boxed)
}

// clampAPIVersion implements the "apiVersion clamped to 1.3" rule of
// spec.md §3's physical-device per-kind state.
func clampAPIVersion(v uint32) uint32 {
	const apiVersion13 = uint32(1)<<22 | uint32(3)<<12
	if v > apiVersion13 {
		return apiVersion13
	}
	return v
}

// OnEnumeratePhysicalDevice registers a physical device record the
// first time it's seen and boxes it. It implements the boundary
// behavior spec.md §8 names: when count is smaller than the driver's
// reported count, callers should treat this as INCOMPLETE and fill only
// count entries — that slicing is left to the caller, which already has
// the full driver-reported list.
func (g *GlobalState) OnEnumeratePhysicalDevice(driverPD vk.PhysicalDevice, instanceDriver vk.Instance, memProps vk.PhysicalDeviceMemoryProperties, queueFamilies []vk.QueueFamilyProperties, apiVersion uint32, dispatch *vk.DispatchTable) vk.PhysicalDevice {
	if boxed, ok := g.handles.BoxedOf(vk.Handle(driverPD)); ok {
		return vk.PhysicalDevice(boxed)
	}

	typeMap := buildGuestHostMemoryTypeMap(memProps)

	g.mu.Lock()
	g.tables.PhysicalDevices.mustAdd(driverPD, &PhysicalDeviceRecord{
		Instance:      instanceDriver,
		APIVersion:    clampAPIVersion(apiVersion),
		MemoryTypes:   typeMap,
		QueueFamilies: queueFamilies,
	})
	g.mu.Unlock()

	boxed := g.handles.NewBoxed(vk.Handle(driverPD), vk.ObjectTypePhysicalDevice, dispatch, false)
	g.mu.Lock()
	rec, _ := g.tables.PhysicalDevices.get(driverPD)
	rec.Boxed = vk.PhysicalDevice(boxed)
	g.mu.Unlock()
	return vk.PhysicalDevice(boxed)
}

// buildGuestHostMemoryTypeMap synthesizes the guest-visible
// VkPhysicalDeviceMemoryProperties and the guest->host index map, per
// spec.md §4.3.1. In this decoder the guest sees the same type vector as
// the host reports (no type hiding is emulated), so the map is the
// identity; hosts that need to hide host-only memory types can replace
// GuestTypes with a filtered vector and adjust GuestToHost accordingly.
func buildGuestHostMemoryTypeMap(hostProps vk.PhysicalDeviceMemoryProperties) MemoryTypeMap {
	m := MemoryTypeMap{
		GuestTypes:  hostProps.MemoryTypes,
		HostTypes:   hostProps.MemoryTypes,
		GuestToHost: make(map[uint32]uint32, len(hostProps.MemoryTypes)),
	}
	for i := range hostProps.MemoryTypes {
		m.GuestToHost[uint32(i)] = uint32(i)
	}
	return m
}

// OnCreateDevice implements on_vkCreateDevice's bookkeeping: boxing the
// device, initializing its compute-decompression pipeline manager,
// external-fence pool, device-op tracker, and queue registry.
func (g *GlobalState) OnCreateDevice(driverDevice vk.Device, driverPD vk.PhysicalDevice, req vk.CreateDeviceInfo, dispatch *vk.DispatchTable, features Features) vk.Device {
	dev := &DeviceRecord{
		PhysicalDevice:    driverPD,
		EnabledExtensions: req.EnabledExtensions,
		Dispatch:          dispatch,
		EmulateETC2:       true,
		EmulateASTC:       true,
		ComputeDecompression: NewCompressedTexturePipelines(),
		OpTracker:            NewDeviceOpTracker(),
		QueuesByFamily:       make(map[uint32][]*QueueRecord),
		Queues:               NewQueueRegistry(),
	}
	dev.ExternalFencePool = NewFencePool(driverDevice, dispatch)

	g.mu.Lock()
	g.tables.Devices.mustAdd(driverDevice, dev)
	g.mu.Unlock()

	boxed := g.handles.NewBoxed(vk.Handle(driverDevice), vk.ObjectTypeDevice, dispatch, true)
	g.mu.Lock()
	dev.Boxed = vk.Device(boxed)
	g.mu.Unlock()

	for _, qci := range req.QueueCreateInfos {
		for i := uint32(0); i < qci.Count; i++ {
			g.createQueue(driverDevice, dev, qci.FamilyIndex, i, features, dispatch)
		}
	}

	return vk.Device(boxed)
}

func (g *GlobalState) createQueue(driverDevice vk.Device, dev *DeviceRecord, family, index uint32, features Features, dispatch *vk.DispatchTable) {
	driverQueue := dispatch.GetDeviceQueue(driverDevice, family, index)
	shared := NewSharedQueueState()
	rec := &QueueRecord{Device: driverDevice, FamilyIndex: family, shared: shared}

	g.mu.Lock()
	g.tables.Queues.mustAdd(driverQueue, rec)
	g.mu.Unlock()

	boxed := g.handles.NewBoxed(vk.Handle(driverQueue), vk.ObjectTypeQueue, dispatch, false)
	g.mu.Lock()
	rec.Boxed = vk.Queue(boxed)
	dev.QueuesByFamily[family] = append(dev.QueuesByFamily[family], rec)
	g.mu.Unlock()

	dispatcher := NewQueueDispatcher(shared, g.semaphoreTracker)
	dev.Queues.Register(driverQueue, dispatcher, func() map[vk.Semaphore]*SemaphoreRecord {
		return g.semaphoresForDevice(driverDevice)
	})
	g.semaphoreTracker.OnAdvance(func(d vk.Device) {
		if d == driverDevice {
			dev.Queues.DrainAll()
		}
	})

	if features.Has(FeatureVirtualQueue) && len(dev.QueuesByFamily[family]) == 1 {
		virtualBoxed := SynthesizeVirtualQueue(vk.Queue(boxed))
		virtualDriver := SynthesizeVirtualQueue(driverQueue)
		virtualRec := &QueueRecord{Device: driverDevice, FamilyIndex: family, Virtual: true, shared: shared}
		g.mu.Lock()
		g.tables.Queues.mustAdd(virtualDriver, virtualRec)
		virtualRec.Boxed = virtualBoxed
		dev.QueuesByFamily[family] = append(dev.QueuesByFamily[family], virtualRec)
		g.mu.Unlock()
	}
}

func (g *GlobalState) semaphoresForDevice(device vk.Device) map[vk.Semaphore]*SemaphoreRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.semaphoresForDeviceLocked(device)
}

// semaphoresForDeviceLocked is semaphoresForDevice for callers that
// already hold g.mu.
func (g *GlobalState) semaphoresForDeviceLocked(device vk.Device) map[vk.Semaphore]*SemaphoreRecord {
	out := make(map[vk.Semaphore]*SemaphoreRecord)
	for h, r := range g.tables.Semaphores {
		if r.Device == device {
			out[h] = r
		}
	}
	return out
}
