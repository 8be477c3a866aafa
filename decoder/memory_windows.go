// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

//go:build windows

package decoder

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// PageSize returns the OS allocation granularity, used by the
// size-alignment rule of spec.md §4.3.
func PageSize() int {
	var info windows.SystemInfo
	windows.GetSystemInfo(&info)
	return int(info.PageSize)
}

// allocateSharedMemory backs the System-blob path (§4.3.4) with a
// unnamed, pagefile-backed Win32 file mapping, the Windows analogue of
// memfd_create.
func allocateSharedMemory(size uint64) (uintptr, error) {
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, uint32(size>>32), uint32(size), nil)
	if err != nil {
		return 0, fmt.Errorf("CreateFileMapping: %w", err)
	}
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_ALL_ACCESS, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		return 0, fmt.Errorf("MapViewOfFile: %w", err)
	}
	_ = unsafe.Pointer(addr)
	return addr, nil
}
