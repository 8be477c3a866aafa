// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package vk

// Result mirrors VkResult. Only the subset named in spec.md §7 is
// represented; driver calls return these, and the decoder maps some of
// them onto its own sentinel errors (decoder/errors.go).
type Result int32

const (
	Success                Result = 0
	NotReady               Result = 1
	Timeout                Result = 2
	Incomplete             Result = 5
	ErrorOutOfHostMemory   Result = -1
	ErrorOutOfDeviceMemory Result = -2
	ErrorInitFailed        Result = -3
	ErrorDeviceLost        Result = -4
	ErrorIncompatibleDriver Result = -9
	ErrorOutOfPoolMemory   Result = -1000069000
	ErrorInvalidExternalHandle Result = -1000072003
	ErrorFragmentedPool    Result = -12
	ErrorFormatNotSupported Result = -11
	ErrorFeatureNotPresent Result = -8
	ErrorMemoryMapFailed   Result = -5
	ErrorUnknown           Result = -13
)

// Succeeded reports whether r represents VK_SUCCESS or a positive
// (non-error) result code such as VK_INCOMPLETE or VK_NOT_READY.
func (r Result) Succeeded() bool { return r >= 0 }

func (r Result) String() string {
	switch r {
	case Success:
		return "VK_SUCCESS"
	case NotReady:
		return "VK_NOT_READY"
	case Timeout:
		return "VK_TIMEOUT"
	case Incomplete:
		return "VK_INCOMPLETE"
	case ErrorOutOfHostMemory:
		return "VK_ERROR_OUT_OF_HOST_MEMORY"
	case ErrorOutOfDeviceMemory:
		return "VK_ERROR_OUT_OF_DEVICE_MEMORY"
	case ErrorInitFailed:
		return "VK_ERROR_INITIALIZATION_FAILED"
	case ErrorDeviceLost:
		return "VK_ERROR_DEVICE_LOST"
	case ErrorIncompatibleDriver:
		return "VK_ERROR_INCOMPATIBLE_DRIVER"
	case ErrorOutOfPoolMemory:
		return "VK_ERROR_OUT_OF_POOL_MEMORY"
	case ErrorInvalidExternalHandle:
		return "VK_ERROR_INVALID_EXTERNAL_HANDLE"
	case ErrorFragmentedPool:
		return "VK_ERROR_FRAGMENTED_POOL"
	case ErrorFormatNotSupported:
		return "VK_ERROR_FORMAT_NOT_SUPPORTED"
	case ErrorFeatureNotPresent:
		return "VK_ERROR_FEATURE_NOT_PRESENT"
	case ErrorMemoryMapFailed:
		return "VK_ERROR_MEMORY_MAP_FAILED"
	default:
		return "VK_ERROR_UNKNOWN"
	}
}
