// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import "os"

// Features is the bitset of opt-in emulation toggles named in spec.md
// §6, grounded on the teacher's env-driven feature-flag pattern
// (hal.Logger's configuration style generalized to a bitset). A real
// host process wires these from its own feature-flag service;
// NewFeaturesFromEnv reads them from the environment so standalone
// binaries (cmd/vkdecoder-demo, tests) have a way to set them without a
// second configuration system.
type Features uint32

const (
	FeatureSnapshots Features = 1 << iota
	FeatureBatchedDescriptorSetUpdate
	FeatureVirtualQueue
	FeatureAllocateHostMemory
	FeatureExternalSync
	FeatureExternalBlob
	FeatureSystemBlob
	FeatureGlDirectMem
	FeatureVirtioGpuNext
	FeatureBypassDeviceFeatureOverrides
	FeatureGuestVulkanOnly
)

func (f Features) Has(bit Features) bool { return f&bit != 0 }

var featureEnvNames = map[Features]string{
	FeatureSnapshots:                     "VulkanSnapshots",
	FeatureBatchedDescriptorSetUpdate:    "VulkanBatchedDescriptorSetUpdate",
	FeatureVirtualQueue:                  "VulkanVirtualQueue",
	FeatureAllocateHostMemory:            "VulkanAllocateHostMemory",
	FeatureExternalSync:                  "VulkanExternalSync",
	FeatureExternalBlob:                  "ExternalBlob",
	FeatureSystemBlob:                    "SystemBlob",
	FeatureGlDirectMem:                   "GlDirectMem",
	FeatureVirtioGpuNext:                 "VirtioGpuNext",
	FeatureBypassDeviceFeatureOverrides:  "BypassVulkanDeviceFeatureOverrides",
	FeatureGuestVulkanOnly:               "GuestVulkanOnly",
}

// NewFeaturesFromEnv parses one environment variable per feature toggle,
// "1" or "true" (case sensitive, matching the emulator's own convention)
// enabling it.
func NewFeaturesFromEnv() Features {
	var f Features
	for bit, name := range featureEnvNames {
		if v := os.Getenv(name); v == "1" || v == "true" {
			f |= bit
		}
	}
	return f
}

// ProcessFlags holds the process-scope (not per-feature-set) toggles
// named in spec.md §6.
type ProcessFlags struct {
	NoCleanup bool
	LogCalls  bool
	Verbose   bool
	ICD       string
}

func NewProcessFlagsFromEnv() ProcessFlags {
	return ProcessFlags{
		NoCleanup: os.Getenv("ANDROID_EMU_VK_NO_CLEANUP") != "",
		LogCalls:  os.Getenv("ANDROID_EMU_VK_LOG_CALLS") != "",
		Verbose:   os.Getenv("ANDROID_EMUGL_VERBOSE") != "",
		ICD:       os.Getenv("ANDROID_EMU_VK_ICD"),
	}
}
