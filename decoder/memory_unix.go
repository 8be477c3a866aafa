// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

//go:build !windows

package decoder

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// PageSize returns the OS page size, used by the size-alignment rule of
// spec.md §4.3.
func PageSize() int {
	return unix.Getpagesize()
}

// allocateSharedMemory backs the System-blob path (§4.3.4) with a
// POSIX shared-memory segment created via memfd_create, mapped once so
// the returned address is directly usable as the HVA published to the
// external-object manager.
func allocateSharedMemory(size uint64) (uintptr, error) {
	fd, err := unix.MemfdCreate("vkdecoder-system-blob", 0)
	if err != nil {
		return 0, fmt.Errorf("memfd_create: %w", err)
	}
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return 0, fmt.Errorf("ftruncate: %w", err)
	}
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return 0, fmt.Errorf("mmap: %w", err)
	}
	return uintptr(unsafe.Pointer(&data[0])), nil
}
