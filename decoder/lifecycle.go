// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"github.com/gogpu/vkdecoder/vk"
)

// deviceBundle is the detached extraction step 1 of §4.2's two-phase
// device teardown pulls out of the locked tables.
type deviceBundle struct {
	device         *DeviceRecord
	driverDevice   vk.Device
	semaphores     []vk.Semaphore
	samplers       []vk.Sampler
	buffers        []vk.Buffer
	imageViews     []vk.ImageView
	images         []vk.Image
	memories       []vk.DeviceMemory
	commandBuffers []vk.CommandBuffer
	commandPools   []vk.CommandPool
	descriptorPools []vk.DescriptorPool
	descriptorSetLayouts []vk.DescriptorSetLayout
	shaderModules  []vk.ShaderModule
	pipelines      []vk.Pipeline
	pipelineCaches []vk.PipelineCache
	pipelineLayouts []vk.PipelineLayout
	framebuffers   []vk.Framebuffer
	renderPasses   []vk.RenderPass
	fences         []vk.Fence
	queues         []vk.Queue
}

// extractDeviceBundleLocked performs step 1 of §4.2's two-phase
// teardown: under the caller's hold on g.mu, pull the device record and
// every table entry it owns into a detached bundle, per the per-kind
// order given in invariant 3.
func (g *GlobalState) extractDeviceBundleLocked(driverDevice vk.Device) *deviceBundle {
	dev, ok := g.tables.Devices.get(driverDevice)
	if !ok {
		fatalf("destroy device: no record for %#x", uint64(driverDevice))
	}
	b := &deviceBundle{device: dev, driverDevice: driverDevice}

	for h, r := range g.tables.Semaphores {
		if r.Device == driverDevice {
			b.semaphores = append(b.semaphores, h)
		}
	}
	for h, r := range g.tables.Samplers {
		if r.Device == driverDevice {
			b.samplers = append(b.samplers, h)
		}
	}
	for h, r := range g.tables.Buffers {
		if r.Device == driverDevice {
			b.buffers = append(b.buffers, h)
		}
	}
	for h, r := range g.tables.ImageViews {
		if imgRec, ok := g.tables.Images.get(r.Image); ok && imgRec.Device == driverDevice {
			b.imageViews = append(b.imageViews, h)
		}
	}
	for h, r := range g.tables.Images {
		if r.Device == driverDevice {
			b.images = append(b.images, h)
		}
	}
	for h, r := range g.tables.Memories {
		if r.Device == driverDevice {
			b.memories = append(b.memories, h)
		}
	}
	for h, r := range g.tables.CommandBuffers {
		if r.Device == driverDevice {
			b.commandBuffers = append(b.commandBuffers, h)
		}
	}
	for h, r := range g.tables.CommandPools {
		if r.Device == driverDevice {
			b.commandPools = append(b.commandPools, h)
		}
	}
	for h, r := range g.tables.DescriptorPools {
		if r.Device == driverDevice {
			b.descriptorPools = append(b.descriptorPools, h)
		}
	}
	for h, r := range g.tables.DescriptorSetLayouts {
		if r.Device == driverDevice {
			b.descriptorSetLayouts = append(b.descriptorSetLayouts, h)
		}
	}
	for h, r := range g.tables.ShaderModules {
		if r.Device == driverDevice {
			b.shaderModules = append(b.shaderModules, h)
		}
	}
	for h, r := range g.tables.Pipelines {
		if r.Device == driverDevice {
			b.pipelines = append(b.pipelines, h)
		}
	}
	for h, r := range g.tables.PipelineCaches {
		if r.Device == driverDevice {
			b.pipelineCaches = append(b.pipelineCaches, h)
		}
	}
	for h, r := range g.tables.PipelineLayouts {
		if r.Device == driverDevice {
			b.pipelineLayouts = append(b.pipelineLayouts, h)
		}
	}
	for h, r := range g.tables.Framebuffers {
		if r.Device == driverDevice {
			b.framebuffers = append(b.framebuffers, h)
		}
	}
	for h, r := range g.tables.RenderPasses {
		if r.Device == driverDevice {
			b.renderPasses = append(b.renderPasses, h)
		}
	}
	for h, r := range g.tables.Fences {
		if r.Device == driverDevice {
			b.fences = append(b.fences, h)
		}
	}
	for h, r := range g.tables.Queues {
		if r.Device == driverDevice {
			b.queues = append(b.queues, h)
		}
	}

	for _, h := range b.semaphores {
		g.tables.Semaphores.remove(h)
	}
	for _, h := range b.samplers {
		g.tables.Samplers.remove(h)
	}
	for _, h := range b.buffers {
		g.tables.Buffers.remove(h)
	}
	for _, h := range b.imageViews {
		g.tables.ImageViews.remove(h)
	}
	for _, h := range b.images {
		g.tables.Images.remove(h)
	}
	for _, h := range b.memories {
		g.tables.Memories.remove(h)
	}
	for _, h := range b.commandBuffers {
		g.tables.CommandBuffers.remove(h)
	}
	for _, h := range b.commandPools {
		g.tables.CommandPools.remove(h)
	}
	for _, h := range b.descriptorPools {
		g.tables.DescriptorPools.remove(h)
	}
	for _, h := range b.descriptorSetLayouts {
		g.tables.DescriptorSetLayouts.remove(h)
	}
	for _, h := range b.shaderModules {
		g.tables.ShaderModules.remove(h)
	}
	for _, h := range b.pipelines {
		g.tables.Pipelines.remove(h)
	}
	for _, h := range b.pipelineCaches {
		g.tables.PipelineCaches.remove(h)
	}
	for _, h := range b.pipelineLayouts {
		g.tables.PipelineLayouts.remove(h)
	}
	for _, h := range b.framebuffers {
		g.tables.Framebuffers.remove(h)
	}
	for _, h := range b.renderPasses {
		g.tables.RenderPasses.remove(h)
	}
	for _, h := range b.fences {
		g.tables.Fences.remove(h)
	}
	for _, h := range b.queues {
		g.tables.Queues.remove(h)
	}
	g.tables.Devices.remove(driverDevice)

	return b
}

// destroyBundle performs step 2 of §4.2's two-phase teardown, out of the
// lock: vkDeviceWaitIdle first, then destroy in the fixed order of
// invariant 3. If vkDeviceWaitIdle fails, every further destroy is
// skipped ("leak over crash").
func destroyBundle(b *deviceBundle, dispatch *vk.DispatchTable) {
	if res := dispatch.DeviceWaitIdle(b.driverDevice); !res.Succeeded() {
		Logger().Warn("vkDeviceWaitIdle failed during device teardown, leaking remaining objects", "device", b.driverDevice, "result", res)
		return
	}
	for _, h := range b.semaphores {
		dispatch.DestroySemaphore(b.driverDevice, h)
	}
	for _, h := range b.samplers {
		dispatch.DestroySampler(b.driverDevice, h)
	}
	for _, h := range b.buffers {
		dispatch.DestroyBuffer(b.driverDevice, h)
	}
	for _, h := range b.imageViews {
		dispatch.DestroyImageView(b.driverDevice, h)
	}
	for _, h := range b.images {
		dispatch.DestroyImage(b.driverDevice, h)
	}
	for _, h := range b.memories {
		dispatch.FreeMemory(b.driverDevice, h)
	}
	// vkDestroyCommandPool implicitly frees every command buffer
	// allocated from it, so command buffers need no separate destroy
	// call here.
	for _, h := range b.commandPools {
		dispatch.DestroyCommandPool(b.driverDevice, h)
	}
	for _, h := range b.descriptorPools {
		dispatch.DestroyDescriptorPool(b.driverDevice, h)
	}
	for _, h := range b.descriptorSetLayouts {
		dispatch.DestroyDescriptorSetLayout(b.driverDevice, h)
	}
	for _, h := range b.shaderModules {
		dispatch.DestroyShaderModule(b.driverDevice, h)
	}
	for _, h := range b.pipelines {
		dispatch.DestroyPipeline(b.driverDevice, h)
	}
	for _, h := range b.pipelineCaches {
		dispatch.DestroyPipelineCache(b.driverDevice, h)
	}
	for _, h := range b.pipelineLayouts {
		dispatch.DestroyPipelineLayout(b.driverDevice, h)
	}
	for _, h := range b.framebuffers {
		dispatch.DestroyFramebuffer(b.driverDevice, h)
	}
	for _, h := range b.renderPasses {
		dispatch.DestroyRenderPass(b.driverDevice, h)
	}
	for _, h := range b.fences {
		dispatch.DestroyFence(b.driverDevice, h)
	}
	// Queues are not destroyed individually by the driver; vkDeviceWaitIdle
	// plus vkDestroyDevice below releases them.
	dispatch.DestroyDevice(b.driverDevice)
}

// DestroyDevice implements on_vkDestroyDevice's two-phase teardown
// (spec.md §4.2).
func (g *GlobalState) DestroyDevice(driverDevice vk.Device) {
	g.mu.Lock()
	b := g.extractDeviceBundleLocked(driverDevice)
	dispatch := b.device.Dispatch
	g.mu.Unlock()

	destroyBundle(b, dispatch)

	if boxed, ok := g.handles.BoxedOf(vk.Handle(driverDevice)); ok {
		g.handles.DeleteBoxed(boxed)
	}
}

// DestroyInstance implements on_vkDestroyInstance: drains process-cleanup
// callbacks outside the lock, extracts every device owned by instance,
// destroys each device bundle, then destroys the instance (spec.md
// §4.2).
func (g *GlobalState) DestroyInstance(driverInstance vk.Instance, onCleanup func()) {
	if onCleanup != nil {
		onCleanup()
	}

	g.mu.Lock()
	var ownedDevices []vk.Device
	for h, r := range g.tables.Devices {
		if pdev, ok := g.tables.PhysicalDevices.get(r.PhysicalDevice); ok && pdev.Instance == driverInstance {
			ownedDevices = append(ownedDevices, h)
		}
	}
	bundles := make([]*deviceBundle, 0, len(ownedDevices))
	for _, h := range ownedDevices {
		bundles = append(bundles, g.extractDeviceBundleLocked(h))
	}
	var pdevsToRemove []vk.PhysicalDevice
	for h, r := range g.tables.PhysicalDevices {
		if r.Instance == driverInstance {
			pdevsToRemove = append(pdevsToRemove, h)
		}
	}
	for _, h := range pdevsToRemove {
		g.tables.PhysicalDevices.remove(h)
	}
	inst, ok := g.tables.Instances.get(driverInstance)
	if !ok {
		g.mu.Unlock()
		fatalf("destroy instance: no record for %#x", uint64(driverInstance))
	}
	g.tables.Instances.remove(driverInstance)
	dispatch := inst.Dispatch
	g.mu.Unlock()

	for _, b := range bundles {
		destroyBundle(b, b.device.Dispatch)
	}
	dispatch.DestroyInstance(driverInstance)

	if boxed, ok := g.handles.BoxedOf(vk.Handle(driverInstance)); ok {
		g.handles.DeleteBoxed(boxed)
	}
}
