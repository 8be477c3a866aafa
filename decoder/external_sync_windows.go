// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

//go:build windows

package decoder

import (
	"fmt"

	"github.com/gogpu/vkdecoder/emulation"
	"golang.org/x/sys/windows"
)

// dupPlatform duplicates a Win32 HANDLE via DuplicateHandle, the Windows
// arm of spec.md §4.9's OS-polymorphic dup(handle).
func dupPlatform(h emulation.ExternalHandle) (emulation.ExternalHandle, error) {
	if h.Type != emulation.HandleTypeOpaqueWin32 {
		return emulation.ExternalHandle{}, fmt.Errorf("%w: handle type %d not duplicable on this platform", ErrInvalidExternalHandle, h.Type)
	}
	proc := windows.CurrentProcess()
	src := windows.Handle(h.Win32)
	var dst windows.Handle
	if err := windows.DuplicateHandle(proc, src, proc, &dst, 0, true, windows.DUPLICATE_SAME_ACCESS); err != nil {
		return emulation.ExternalHandle{}, fmt.Errorf("DuplicateHandle: %w", err)
	}
	out := h
	out.Win32 = uintptr(dst)
	return out, nil
}

// closePlatform releases a previously duplicated HANDLE.
func closePlatform(h emulation.ExternalHandle) error {
	if h.Type != emulation.HandleTypeOpaqueWin32 {
		return nil
	}
	return windows.CloseHandle(windows.Handle(h.Win32))
}
