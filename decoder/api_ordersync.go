// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"github.com/gogpu/vkdecoder/vk"
)

// OnCommandBufferHostSyncGOOGLE implements vkCommandBufferHostSyncGOOGLE:
// when needHostSync is set, block until the command buffer's order
// barrier reaches sequenceNumber-1, per spec.md §4.10.
func (g *GlobalState) OnCommandBufferHostSyncGOOGLE(driverBuf vk.CommandBuffer, needHostSync bool, sequenceNumber uint64) bool {
	if !needHostSync {
		return true
	}
	return g.OrderMaintenanceFor(vk.Handle(driverBuf)).HostSync(sequenceNumber)
}

// OnQueueHostSyncGOOGLE implements vkQueueHostSyncGOOGLE, identical in
// shape to the command-buffer variant but keyed on the queue's handle.
func (g *GlobalState) OnQueueHostSyncGOOGLE(driverQueue vk.Queue, needHostSync bool, sequenceNumber uint64) bool {
	if !needHostSync {
		return true
	}
	return g.OrderMaintenanceFor(vk.Handle(driverQueue)).HostSync(sequenceNumber)
}
