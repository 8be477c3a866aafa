// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Command vkdecoder-demo is a thin harness that loads a real Vulkan
// driver via goffi, drives it through the usual instance/device
// lifecycle, and feeds every resulting driver handle into a
// decoder.GlobalState exactly the way a VM-ops frontend would. It exists
// to demonstrate the boundary named in spec.md §1/§6: the decoder never
// resolves a function pointer or touches a real driver itself, so
// anything that does belongs outside the decoder package.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gogpu/vkdecoder/decoder"
	"github.com/gogpu/vkdecoder/vk"
)

func main() {
	appName := flag.String("app-name", "vkdecoder-demo", "application name passed to vkCreateInstance")
	dryRun := flag.Bool("dry-run", false, "load the driver and print what would happen, without creating a device")
	flag.Parse()

	if err := run(*appName, *dryRun); err != nil {
		fmt.Fprintln(os.Stderr, "vkdecoder-demo:", err)
		os.Exit(1)
	}
}

func run(appName string, dryRun bool) error {
	drv, err := loadDriver()
	if err != nil {
		return fmt.Errorf("load Vulkan driver: %w", err)
	}
	defer drv.close()

	g := decoder.NewGlobalState()

	driverInstanceRaw, err := drv.createInstanceRaw(appName)
	if err != nil {
		return fmt.Errorf("vkCreateInstance: %w", err)
	}
	driverInstance := vk.Instance(driverInstanceRaw)
	dispatch := buildDispatchTable(drv)

	boxedInstance := g.OnCreateInstance(driverInstance, decoder.CreateInstanceRequest{
		ApplicationName:     appName,
		RequestedAPIVersion: uint32(1)<<22 | uint32(3)<<12,
	}, dispatch)
	fmt.Printf("instance: driver=%#x boxed=%#x\n", uint64(driverInstance), uint64(boxedInstance))

	pdevHandles, err := drv.enumeratePhysicalDevicesRaw(driverInstanceRaw)
	if err != nil {
		g.DestroyInstance(driverInstance, nil)
		return fmt.Errorf("vkEnumeratePhysicalDevices: %w", err)
	}
	if len(pdevHandles) == 0 {
		g.DestroyInstance(driverInstance, nil)
		return fmt.Errorf("no physical devices reported")
	}

	driverPD := vk.PhysicalDevice(pdevHandles[0])
	memProps := convertMemoryProperties(drv.getPhysicalDeviceMemoryPropertiesRaw(pdevHandles[0]))
	queueFamilies := convertQueueFamilies(drv.getPhysicalDeviceQueueFamilyPropertiesRaw(pdevHandles[0]))

	boxedPD := g.OnEnumeratePhysicalDevice(driverPD, driverInstance, memProps, queueFamilies, uint32(1)<<22|uint32(3)<<12, dispatch)
	fmt.Printf("physical device: driver=%#x boxed=%#x, %d queue families, %d memory types\n",
		uint64(driverPD), uint64(boxedPD), len(queueFamilies), len(memProps.MemoryTypes))

	if dryRun {
		fmt.Println("dry-run: skipping device creation")
		g.DestroyInstance(driverInstance, nil)
		return nil
	}

	driverDeviceRaw, err := drv.createDeviceRaw(pdevHandles[0], 0)
	if err != nil {
		g.DestroyInstance(driverInstance, nil)
		return fmt.Errorf("vkCreateDevice: %w", err)
	}
	driverDevice := vk.Device(driverDeviceRaw)

	boxedDevice := g.OnCreateDevice(driverDevice, driverPD, vk.CreateDeviceInfo{
		QueueCreateInfos: []vk.DeviceQueueCreateInfo{{FamilyIndex: 0, Count: 1}},
	}, dispatch, decoder.NewFeaturesFromEnv())
	fmt.Printf("device: driver=%#x boxed=%#x\n", uint64(driverDevice), uint64(boxedDevice))

	g.DestroyDevice(driverDevice)
	g.DestroyInstance(driverInstance, nil)
	fmt.Println("teardown complete")
	return nil
}

// buildDispatchTable wires the subset of vk.DispatchTable the scenario
// above exercises to the raw goffi-backed driver calls. Fields the demo
// never calls (buffers, images, descriptors, ...) are left nil, matching
// vk.DispatchTable's documented contract that a nil field is only a
// programmer error if the decoder actually calls it.
func buildDispatchTable(drv *driver) *vk.DispatchTable {
	return &vk.DispatchTable{
		DestroyInstance: func(inst vk.Instance) { drv.destroyInstanceRaw(uint64(inst)) },
		EnumeratePhysicalDevices: func(inst vk.Instance, count *uint32, out []vk.PhysicalDevice) vk.Result {
			handles, err := drv.enumeratePhysicalDevicesRaw(uint64(inst))
			if err != nil {
				return vk.ErrorInitFailed
			}
			*count = uint32(len(handles))
			for i, h := range handles {
				if i >= len(out) {
					break
				}
				out[i] = vk.PhysicalDevice(h)
			}
			return vk.Success
		},
		GetPhysicalDeviceMemoryProperties: func(pdev vk.PhysicalDevice) vk.PhysicalDeviceMemoryProperties {
			return convertMemoryProperties(drv.getPhysicalDeviceMemoryPropertiesRaw(uint64(pdev)))
		},
		GetPhysicalDeviceQueueFamilyProperties: func(pdev vk.PhysicalDevice) []vk.QueueFamilyProperties {
			return convertQueueFamilies(drv.getPhysicalDeviceQueueFamilyPropertiesRaw(uint64(pdev)))
		},
		CreateDevice: func(pdev vk.PhysicalDevice, info vk.CreateDeviceInfo) (vk.Device, vk.Result) {
			family := uint32(0)
			if len(info.QueueCreateInfos) > 0 {
				family = info.QueueCreateInfos[0].FamilyIndex
			}
			raw, err := drv.createDeviceRaw(uint64(pdev), family)
			if err != nil {
				return 0, vk.ErrorInitFailed
			}
			return vk.Device(raw), vk.Success
		},
		DestroyDevice: func(dev vk.Device) { drv.destroyDeviceRaw(uint64(dev)) },
		DeviceWaitIdle: func(dev vk.Device) vk.Result {
			if drv.deviceWaitIdleRaw(uint64(dev)) < 0 {
				return vk.ErrorDeviceLost
			}
			return vk.Success
		},
		GetDeviceQueue: func(dev vk.Device, family, index uint32) vk.Queue {
			return vk.Queue(drv.getDeviceQueueRaw(uint64(dev), family, index))
		},
	}
}

func convertMemoryProperties(raw vkPhysicalDeviceMemoryProperties) vk.PhysicalDeviceMemoryProperties {
	out := vk.PhysicalDeviceMemoryProperties{
		MemoryTypes: make([]vk.MemoryType, raw.memoryTypeCount),
		MemoryHeaps: make([]vk.MemoryHeap, raw.memoryHeapCount),
	}
	for i := uint32(0); i < raw.memoryTypeCount; i++ {
		out.MemoryTypes[i] = vk.MemoryType{
			PropertyFlags: vk.MemoryPropertyFlags(raw.memoryTypes[i].propertyFlags),
			HeapIndex:     raw.memoryTypes[i].heapIndex,
		}
	}
	for i := uint32(0); i < raw.memoryHeapCount; i++ {
		out.MemoryHeaps[i] = vk.MemoryHeap{
			Size:  raw.memoryHeaps[i].size,
			Flags: raw.memoryHeaps[i].flags,
		}
	}
	return out
}

func convertQueueFamilies(raw []vkQueueFamilyProperties) []vk.QueueFamilyProperties {
	out := make([]vk.QueueFamilyProperties, len(raw))
	for i, f := range raw {
		out[i] = vk.QueueFamilyProperties{QueueFlags: f.queueFlags, QueueCount: f.queueCount}
	}
	return out
}
