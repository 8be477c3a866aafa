// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"testing"

	"github.com/gogpu/vkdecoder/vk"
)

func newTestDeviceWithSemaphore(t *testing.T, dispatch *vk.DispatchTable) (*GlobalState, vk.Device, vk.Semaphore) {
	t.Helper()
	g := NewGlobalState()

	driverDevice := vk.Device(1)
	g.tables.Devices[driverDevice] = &DeviceRecord{
		Boxed:    driverDevice,
		Dispatch: dispatch,
	}
	g.handles.NewBoxed(vk.Handle(driverDevice), vk.ObjectTypeDevice, nil, false)

	driverSem := vk.Semaphore(2)
	g.tables.Semaphores[driverSem] = &SemaphoreRecord{Device: driverDevice}

	return g, driverDevice, driverSem
}

func TestDestroyDeviceDestroysOwnedObjects(t *testing.T) {
	var destroyedSemaphore bool
	var destroyedDevice bool

	dispatch := &vk.DispatchTable{
		DeviceWaitIdle:   func(vk.Device) vk.Result { return vk.Success },
		DestroySemaphore: func(vk.Device, vk.Semaphore) { destroyedSemaphore = true },
		DestroyDevice:    func(vk.Device) { destroyedDevice = true },
	}

	g, driverDevice, _ := newTestDeviceWithSemaphore(t, dispatch)

	g.DestroyDevice(driverDevice)

	if !destroyedSemaphore {
		t.Error("DestroyDevice did not destroy the device's owned semaphore")
	}
	if !destroyedDevice {
		t.Error("DestroyDevice did not call the driver's DestroyDevice")
	}
	if _, ok := g.tables.Semaphores.get(vk.Semaphore(2)); ok {
		t.Error("semaphore record still present in the object table after DestroyDevice")
	}
	if _, ok := g.tables.Devices.get(driverDevice); ok {
		t.Error("device record still present in the object table after DestroyDevice")
	}
}

func TestDestroyDeviceLeaksOnWaitIdleFailure(t *testing.T) {
	var destroyedSemaphore bool
	var destroyedDevice bool

	dispatch := &vk.DispatchTable{
		DeviceWaitIdle:   func(vk.Device) vk.Result { return vk.ErrorDeviceLost },
		DestroySemaphore: func(vk.Device, vk.Semaphore) { destroyedSemaphore = true },
		DestroyDevice:    func(vk.Device) { destroyedDevice = true },
	}

	g, driverDevice, _ := newTestDeviceWithSemaphore(t, dispatch)

	g.DestroyDevice(driverDevice)

	if destroyedSemaphore {
		t.Error("DestroyDevice destroyed objects after vkDeviceWaitIdle failed, want leak-over-crash")
	}
	if destroyedDevice {
		t.Error("DestroyDevice called the driver's DestroyDevice after vkDeviceWaitIdle failed")
	}
	// Step 1's extraction already removed the table entries regardless of
	// the wait-idle outcome; only the driver-side destroy calls are
	// skipped.
	if _, ok := g.tables.Devices.get(driverDevice); ok {
		t.Error("device record still present in the object table after extraction")
	}
}
