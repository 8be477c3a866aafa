// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"errors"
	"fmt"

	"github.com/gogpu/vkdecoder/decoder/metrics"
	"github.com/gogpu/vkdecoder/vk"
)

// VkResult-shaped sentinels, named after spec.md §7's error-kind list.
// Driver-call failures are reported to the caller by wrapping the
// driver's own vk.Result; these sentinels are for decoder-originated
// failures that have no corresponding driver return value.
var (
	ErrOutOfHostMemory      = errors.New("vkdecoder: out of host memory")
	ErrOutOfDeviceMemory    = errors.New("vkdecoder: out of device memory")
	ErrOutOfPoolMemory      = errors.New("vkdecoder: descriptor pool exhausted")
	ErrInitializationFailed = errors.New("vkdecoder: initialization failed")
	ErrDeviceLost           = errors.New("vkdecoder: device lost")
	ErrIncompatibleDriver   = errors.New("vkdecoder: incompatible driver")
	ErrFeatureNotPresent    = errors.New("vkdecoder: feature not present")
	ErrFormatNotSupported   = errors.New("vkdecoder: format not supported")
	ErrInvalidExternalHandle = errors.New("vkdecoder: invalid external handle")
	ErrMemoryMapFailed      = errors.New("vkdecoder: memory map failed")
	ErrUnknown              = errors.New("vkdecoder: unknown error")
)

// ValidationError reports a caller-supplied value that fails a spec
// invariant, mirroring the teacher's core.ValidationError.
type ValidationError struct {
	ObjectType vk.ObjectType
	Field      string
	Message    string
	Cause      error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("vkdecoder: %s.%s: %s", e.ObjectType, e.Field, e.Message)
	}
	return fmt.Sprintf("vkdecoder: %s: %s", e.ObjectType, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

func NewValidationError(ot vk.ObjectType, field, message string) *ValidationError {
	return &ValidationError{ObjectType: ot, Field: field, Message: message}
}

func NewValidationErrorf(ot vk.ObjectType, field, format string, args ...any) *ValidationError {
	return &ValidationError{ObjectType: ot, Field: field, Message: fmt.Sprintf(format, args...)}
}

// HandleError reports a problem with a specific boxed handle: an unbox
// tag mismatch, a stale handle, or a handle that should have been null.
type HandleError struct {
	Handle  vk.Handle
	Want    vk.ObjectType
	Got     vk.ObjectType
	Message string
}

func (e *HandleError) Error() string {
	if e.Want != vk.ObjectTypeUnknown && e.Got != vk.ObjectTypeUnknown {
		return fmt.Sprintf("vkdecoder: handle %#x: expected %s, got %s", uint64(e.Handle), e.Want, e.Got)
	}
	return fmt.Sprintf("vkdecoder: handle %#x: %s", uint64(e.Handle), e.Message)
}

// Fatal is raised for the conditions spec.md §7 calls out as fatal: tag
// mismatches, missing device/instance records, duplicate table entries,
// unsupported snapshot-time writes, and virtual-queue bit clashes. The
// decoder panics with this type rather than os.Exit so host processes
// that wrap calls in a recover() can still capture a diagnostic; the
// top-level on_vkXxx dispatch in a production host is expected not to
// recover from it.
type Fatal struct {
	Message string
}

func (e *Fatal) Error() string { return "vkdecoder: fatal: " + e.Message }

func fatalf(format string, args ...any) {
	panic(&Fatal{Message: fmt.Sprintf(format, args...)})
}

// ResultFromError maps a decoder-originated error to the VkResult a guest
// should observe, per spec.md §7's result-kind list.
func ResultFromError(err error) vk.Result {
	switch {
	case err == nil:
		return vk.Success
	case errors.Is(err, ErrOutOfHostMemory):
		return vk.ErrorOutOfHostMemory
	case errors.Is(err, ErrOutOfDeviceMemory):
		return vk.ErrorOutOfDeviceMemory
	case errors.Is(err, ErrOutOfPoolMemory):
		return vk.ErrorOutOfPoolMemory
	case errors.Is(err, ErrInitializationFailed):
		return vk.ErrorInitFailed
	case errors.Is(err, ErrDeviceLost):
		return vk.ErrorDeviceLost
	case errors.Is(err, ErrIncompatibleDriver):
		return vk.ErrorIncompatibleDriver
	case errors.Is(err, ErrFeatureNotPresent):
		return vk.ErrorFeatureNotPresent
	case errors.Is(err, ErrFormatNotSupported):
		return vk.ErrorFormatNotSupported
	case errors.Is(err, ErrInvalidExternalHandle):
		return vk.ErrorInvalidExternalHandle
	case errors.Is(err, ErrMemoryMapFailed):
		return vk.ErrorMemoryMapFailed
	default:
		return vk.ErrorUnknown
	}
}

// ResultFromErrorOp is ResultFromError plus the metrics hook spec.md §7
// names: every out-of-memory result is logged with its op-code and, when
// known, the requested allocation size.
func ResultFromErrorOp(opCode string, size uint64, err error) vk.Result {
	res := ResultFromError(err)
	switch res {
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory, vk.ErrorOutOfPoolMemory:
		metrics.RecordOOM(Logger(), metrics.OOMEvent{OpCode: opCode, Size: size, Result: res.String()})
	}
	return res
}
