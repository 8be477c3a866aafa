// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// driver.go loads the real Vulkan loader via goffi and exposes the
// handful of entry points vkdecoder-demo drives, following the pattern
// of hal/vulkan/vk/loader.go: a lazily-initialized global, one
// CallInterface per function signature, and the "pointer to where the
// value lives, not the value itself" calling convention goffi requires.
//
// The struct layouts below (vkApplicationInfo, vkInstanceCreateInfo, ...)
// rely on Go's struct layout algorithm inserting the same padding the
// Vulkan headers pick up from the platform C ABI on amd64/arm64 — field
// order matters, explicit padding does not need to be spelled out.
package main

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/go-webgpu/goffi/ffi"
	"github.com/go-webgpu/goffi/types"
)

const (
	vkStructureTypeApplicationInfo    = 0
	vkStructureTypeInstanceCreateInfo = 1
	vkStructureTypeDeviceQueueCreateInfo = 2
	vkStructureTypeDeviceCreateInfo   = 3
)

type vkApplicationInfo struct {
	sType              uint32
	pNext              unsafe.Pointer
	pApplicationName   unsafe.Pointer
	applicationVersion uint32
	pEngineName        unsafe.Pointer
	engineVersion      uint32
	apiVersion         uint32
}

type vkInstanceCreateInfo struct {
	sType                   uint32
	pNext                   unsafe.Pointer
	flags                   uint32
	pApplicationInfo        unsafe.Pointer
	enabledLayerCount       uint32
	ppEnabledLayerNames     unsafe.Pointer
	enabledExtensionCount   uint32
	ppEnabledExtensionNames unsafe.Pointer
}

type vkDeviceQueueCreateInfo struct {
	sType            uint32
	pNext            unsafe.Pointer
	flags            uint32
	queueFamilyIndex uint32
	queueCount       uint32
	pQueuePriorities unsafe.Pointer
}

type vkDeviceCreateInfo struct {
	sType                   uint32
	pNext                   unsafe.Pointer
	flags                   uint32
	queueCreateInfoCount    uint32
	pQueueCreateInfos       unsafe.Pointer
	enabledLayerCount       uint32
	ppEnabledLayerNames     unsafe.Pointer
	enabledExtensionCount   uint32
	ppEnabledExtensionNames unsafe.Pointer
	pEnabledFeatures        unsafe.Pointer
}

type vkMemoryType struct {
	propertyFlags uint32
	heapIndex     uint32
}

type vkMemoryHeap struct {
	size  uint64
	flags uint32
}

type vkPhysicalDeviceMemoryProperties struct {
	memoryTypeCount uint32
	memoryTypes     [32]vkMemoryType
	memoryHeapCount uint32
	memoryHeaps     [16]vkMemoryHeap
}

type vkExtent3D struct{ width, height, depth uint32 }

type vkQueueFamilyProperties struct {
	queueFlags                  uint32
	queueCount                  uint32
	timestampValidBits          uint32
	minImageTransferGranularity vkExtent3D
}

// driver wraps the resolved Vulkan entry points this demo exercises. It
// is intentionally narrow: only the calls the instance/device lifecycle
// scenario in main.go needs, not a full binding generator's worth.
type driver struct {
	lib unsafe.Pointer

	getInstanceProcAddr unsafe.Pointer
	getDeviceProcAddr   unsafe.Pointer

	createInstance                         unsafe.Pointer
	destroyInstance                        unsafe.Pointer
	enumeratePhysicalDevices               unsafe.Pointer
	getPhysicalDeviceMemoryProperties      unsafe.Pointer
	getPhysicalDeviceQueueFamilyProperties unsafe.Pointer
	createDevice                           unsafe.Pointer
	destroyDevice                          unsafe.Pointer
	deviceWaitIdle                         unsafe.Pointer
	getDeviceQueue                         unsafe.Pointer

	cifGetProcAddr                  types.CallInterface
	cifCreateInstance                types.CallInterface
	cifVoidHandle                   types.CallInterface
	cifEnumeratePhysicalDevices      types.CallInterface
	cifGetPhysicalDeviceMemoryProps  types.CallInterface
	cifGetPhysicalDeviceQueueFamilies types.CallInterface
	cifCreateDevice                 types.CallInterface
	cifResultHandle                 types.CallInterface
	cifGetDeviceQueue                types.CallInterface
}

func libraryName() string {
	switch runtime.GOOS {
	case "windows":
		return "vulkan-1.dll"
	case "darwin":
		return "libvulkan.dylib"
	default:
		return "libvulkan.so.1"
	}
}

var (
	loadOnce sync.Once
	loadErr  error
	loaded   *driver
)

// loadDriver loads libvulkan (or the platform equivalent) and prepares
// every CallInterface the demo needs. Safe to call more than once; only
// the first call does real work.
func loadDriver() (*driver, error) {
	loadOnce.Do(func() {
		d := &driver{}
		loadErr = d.init()
		loaded = d
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return loaded, nil
}

func (d *driver) init() error {
	lib, err := ffi.LoadLibrary(libraryName())
	if err != nil {
		return fmt.Errorf("load %s: %w", libraryName(), err)
	}
	d.lib = lib

	d.getInstanceProcAddr, err = ffi.GetSymbol(lib, "vkGetInstanceProcAddr")
	if err != nil {
		return fmt.Errorf("resolve vkGetInstanceProcAddr: %w", err)
	}

	if err := ffi.PrepareCallInterface(&d.cifGetProcAddr, types.DefaultCall,
		types.PointerTypeDescriptor,
		[]*types.TypeDescriptor{types.UInt64TypeDescriptor, types.PointerTypeDescriptor}); err != nil {
		return fmt.Errorf("prepare GetInstanceProcAddr interface: %w", err)
	}

	if err := ffi.PrepareCallInterface(&d.cifCreateInstance, types.DefaultCall,
		types.SInt32TypeDescriptor,
		[]*types.TypeDescriptor{types.PointerTypeDescriptor, types.PointerTypeDescriptor, types.PointerTypeDescriptor}); err != nil {
		return fmt.Errorf("prepare CreateInstance interface: %w", err)
	}

	// void fn(VkHandle, const VkAllocationCallbacks*) — shared by
	// vkDestroyInstance and vkDestroyDevice.
	if err := ffi.PrepareCallInterface(&d.cifVoidHandle, types.DefaultCall,
		types.VoidTypeDescriptor,
		[]*types.TypeDescriptor{types.UInt64TypeDescriptor, types.PointerTypeDescriptor}); err != nil {
		return fmt.Errorf("prepare void-handle interface: %w", err)
	}

	if err := ffi.PrepareCallInterface(&d.cifEnumeratePhysicalDevices, types.DefaultCall,
		types.SInt32TypeDescriptor,
		[]*types.TypeDescriptor{types.UInt64TypeDescriptor, types.PointerTypeDescriptor, types.PointerTypeDescriptor}); err != nil {
		return fmt.Errorf("prepare EnumeratePhysicalDevices interface: %w", err)
	}

	if err := ffi.PrepareCallInterface(&d.cifGetPhysicalDeviceMemoryProps, types.DefaultCall,
		types.VoidTypeDescriptor,
		[]*types.TypeDescriptor{types.UInt64TypeDescriptor, types.PointerTypeDescriptor}); err != nil {
		return fmt.Errorf("prepare GetPhysicalDeviceMemoryProperties interface: %w", err)
	}

	if err := ffi.PrepareCallInterface(&d.cifGetPhysicalDeviceQueueFamilies, types.DefaultCall,
		types.VoidTypeDescriptor,
		[]*types.TypeDescriptor{types.UInt64TypeDescriptor, types.PointerTypeDescriptor, types.PointerTypeDescriptor}); err != nil {
		return fmt.Errorf("prepare GetPhysicalDeviceQueueFamilyProperties interface: %w", err)
	}

	if err := ffi.PrepareCallInterface(&d.cifCreateDevice, types.DefaultCall,
		types.SInt32TypeDescriptor,
		[]*types.TypeDescriptor{types.UInt64TypeDescriptor, types.PointerTypeDescriptor, types.PointerTypeDescriptor, types.PointerTypeDescriptor}); err != nil {
		return fmt.Errorf("prepare CreateDevice interface: %w", err)
	}

	// VkResult fn(VkHandle) — vkDeviceWaitIdle's shape.
	if err := ffi.PrepareCallInterface(&d.cifResultHandle, types.DefaultCall,
		types.SInt32TypeDescriptor,
		[]*types.TypeDescriptor{types.UInt64TypeDescriptor}); err != nil {
		return fmt.Errorf("prepare result-handle interface: %w", err)
	}

	if err := ffi.PrepareCallInterface(&d.cifGetDeviceQueue, types.DefaultCall,
		types.VoidTypeDescriptor,
		[]*types.TypeDescriptor{types.UInt64TypeDescriptor, types.UInt32TypeDescriptor, types.UInt32TypeDescriptor, types.PointerTypeDescriptor}); err != nil {
		return fmt.Errorf("prepare GetDeviceQueue interface: %w", err)
	}

	d.createInstance, err = d.resolveGlobal("vkCreateInstance")
	if err != nil {
		return err
	}
	return nil
}

// resolveGlobal calls vkGetInstanceProcAddr(NULL, name), the contract
// Vulkan uses for the handful of commands that exist before an instance
// does (vkCreateInstance, vkEnumerateInstanceVersion, ...).
func (d *driver) resolveGlobal(name string) (unsafe.Pointer, error) {
	return d.getInstanceProc(0, name)
}

func (d *driver) getInstanceProc(instance uint64, name string) (unsafe.Pointer, error) {
	cname := append([]byte(name), 0)
	namePtr := unsafe.Pointer(&cname[0])
	var result unsafe.Pointer
	args := [2]unsafe.Pointer{
		unsafe.Pointer(&instance),
		unsafe.Pointer(&namePtr),
	}
	if err := ffi.CallFunction(&d.cifGetProcAddr, d.getInstanceProcAddr, unsafe.Pointer(&result), args[:]); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("vkGetInstanceProcAddr(%s) returned NULL", name)
	}
	return result, nil
}

// resolveInstanceFuncs fills in every instance- and device-level entry
// point the demo needs once an instance exists. Device-level functions
// are still resolved via vkGetInstanceProcAddr here for simplicity; a
// production loader would prefer vkGetDeviceProcAddr per
// hal/vulkan/vk/loader.go's SetDeviceProcAddr note on Intel's quirks.
func (d *driver) resolveInstanceFuncs(instance uint64) error {
	names := map[string]*unsafe.Pointer{
		"vkDestroyInstance":                      &d.destroyInstance,
		"vkEnumeratePhysicalDevices":              &d.enumeratePhysicalDevices,
		"vkGetPhysicalDeviceMemoryProperties":     &d.getPhysicalDeviceMemoryProperties,
		"vkGetPhysicalDeviceQueueFamilyProperties": &d.getPhysicalDeviceQueueFamilyProperties,
		"vkCreateDevice":                          &d.createDevice,
		"vkDestroyDevice":                         &d.destroyDevice,
		"vkDeviceWaitIdle":                        &d.deviceWaitIdle,
		"vkGetDeviceQueue":                        &d.getDeviceQueue,
	}
	for name, slot := range names {
		fn, err := d.getInstanceProc(instance, name)
		if err != nil {
			return err
		}
		*slot = fn
	}
	return nil
}

// createInstanceRaw calls the real vkCreateInstance with a minimal
// VkApplicationInfo/VkInstanceCreateInfo (no layers, no extensions),
// returning the raw driver instance handle.
func (d *driver) createInstanceRaw(appName string) (uint64, error) {
	appNameBytes := append([]byte(appName), 0)
	app := vkApplicationInfo{
		sType:            vkStructureTypeApplicationInfo,
		pApplicationName: unsafe.Pointer(&appNameBytes[0]),
		apiVersion:       uint32(1)<<22 | uint32(3)<<12,
	}
	create := vkInstanceCreateInfo{
		sType:            vkStructureTypeInstanceCreateInfo,
		pApplicationInfo: unsafe.Pointer(&app),
	}

	var instance uint64
	createPtr := unsafe.Pointer(&create)
	var result int32
	args := [3]unsafe.Pointer{
		unsafe.Pointer(&createPtr),
		nil,
		unsafe.Pointer(&instance),
	}
	if err := ffi.CallFunction(&d.cifCreateInstance, d.createInstance, unsafe.Pointer(&result), args[:]); err != nil {
		return 0, err
	}
	if result < 0 {
		return 0, fmt.Errorf("vkCreateInstance: VkResult %d", result)
	}
	if err := d.resolveInstanceFuncs(instance); err != nil {
		return 0, err
	}
	return instance, nil
}

func (d *driver) destroyInstanceRaw(instance uint64) {
	args := [2]unsafe.Pointer{unsafe.Pointer(&instance), nil}
	_ = ffi.CallFunction(&d.cifVoidHandle, d.destroyInstance, nil, args[:])
}

func (d *driver) enumeratePhysicalDevicesRaw(instance uint64) ([]uint64, error) {
	var count uint32
	args := [3]unsafe.Pointer{unsafe.Pointer(&instance), unsafe.Pointer(&count), nil}
	var result int32
	if err := ffi.CallFunction(&d.cifEnumeratePhysicalDevices, d.enumeratePhysicalDevices, unsafe.Pointer(&result), args[:]); err != nil {
		return nil, err
	}
	if result < 0 || count == 0 {
		return nil, fmt.Errorf("vkEnumeratePhysicalDevices: VkResult %d, count %d", result, count)
	}

	handles := make([]uint64, count)
	handlesPtr := unsafe.Pointer(&handles[0])
	args = [3]unsafe.Pointer{unsafe.Pointer(&instance), unsafe.Pointer(&count), unsafe.Pointer(&handlesPtr)}
	if err := ffi.CallFunction(&d.cifEnumeratePhysicalDevices, d.enumeratePhysicalDevices, unsafe.Pointer(&result), args[:]); err != nil {
		return nil, err
	}
	if result < 0 {
		return nil, fmt.Errorf("vkEnumeratePhysicalDevices (fill): VkResult %d", result)
	}
	return handles, nil
}

func (d *driver) getPhysicalDeviceMemoryPropertiesRaw(pdev uint64) vkPhysicalDeviceMemoryProperties {
	var props vkPhysicalDeviceMemoryProperties
	propsPtr := unsafe.Pointer(&props)
	args := [2]unsafe.Pointer{unsafe.Pointer(&pdev), unsafe.Pointer(&propsPtr)}
	_ = ffi.CallFunction(&d.cifGetPhysicalDeviceMemoryProps, d.getPhysicalDeviceMemoryProperties, nil, args[:])
	return props
}

func (d *driver) getPhysicalDeviceQueueFamilyPropertiesRaw(pdev uint64) []vkQueueFamilyProperties {
	var count uint32
	args := [3]unsafe.Pointer{unsafe.Pointer(&pdev), unsafe.Pointer(&count), nil}
	_ = ffi.CallFunction(&d.cifGetPhysicalDeviceQueueFamilies, d.getPhysicalDeviceQueueFamilyProperties, nil, args[:])
	if count == 0 {
		return nil
	}
	families := make([]vkQueueFamilyProperties, count)
	familiesPtr := unsafe.Pointer(&families[0])
	args = [3]unsafe.Pointer{unsafe.Pointer(&pdev), unsafe.Pointer(&count), unsafe.Pointer(&familiesPtr)}
	_ = ffi.CallFunction(&d.cifGetPhysicalDeviceQueueFamilies, d.getPhysicalDeviceQueueFamilyProperties, nil, args[:])
	return families
}

// createDeviceRaw creates a device with a single queue on familyIndex,
// matching the single-queue scenario main.go drives end to end.
func (d *driver) createDeviceRaw(pdev uint64, familyIndex uint32) (uint64, error) {
	priority := float32(1.0)
	qci := vkDeviceQueueCreateInfo{
		sType:            vkStructureTypeDeviceQueueCreateInfo,
		queueFamilyIndex: familyIndex,
		queueCount:       1,
		pQueuePriorities: unsafe.Pointer(&priority),
	}
	create := vkDeviceCreateInfo{
		sType:                vkStructureTypeDeviceCreateInfo,
		queueCreateInfoCount: 1,
		pQueueCreateInfos:    unsafe.Pointer(&qci),
	}

	var device uint64
	createPtr := unsafe.Pointer(&create)
	var result int32
	args := [4]unsafe.Pointer{
		unsafe.Pointer(&pdev),
		unsafe.Pointer(&createPtr),
		nil,
		unsafe.Pointer(&device),
	}
	if err := ffi.CallFunction(&d.cifCreateDevice, d.createDevice, unsafe.Pointer(&result), args[:]); err != nil {
		return 0, err
	}
	if result < 0 {
		return 0, fmt.Errorf("vkCreateDevice: VkResult %d", result)
	}
	return device, nil
}

func (d *driver) destroyDeviceRaw(device uint64) {
	args := [2]unsafe.Pointer{unsafe.Pointer(&device), nil}
	_ = ffi.CallFunction(&d.cifVoidHandle, d.destroyDevice, nil, args[:])
}

func (d *driver) deviceWaitIdleRaw(device uint64) int32 {
	var result int32
	args := [1]unsafe.Pointer{unsafe.Pointer(&device)}
	_ = ffi.CallFunction(&d.cifResultHandle, d.deviceWaitIdle, unsafe.Pointer(&result), args[:])
	return result
}

func (d *driver) getDeviceQueueRaw(device uint64, familyIndex, queueIndex uint32) uint64 {
	var queue uint64
	queuePtr := unsafe.Pointer(&queue)
	args := [4]unsafe.Pointer{
		unsafe.Pointer(&device),
		unsafe.Pointer(&familyIndex),
		unsafe.Pointer(&queueIndex),
		unsafe.Pointer(&queuePtr),
	}
	_ = ffi.CallFunction(&d.cifGetDeviceQueue, d.getDeviceQueue, nil, args[:])
	return queue
}

func (d *driver) close() error {
	if d.lib == nil {
		return nil
	}
	return ffi.FreeLibrary(d.lib)
}
