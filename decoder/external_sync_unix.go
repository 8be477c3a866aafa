// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

//go:build !windows

package decoder

import (
	"fmt"

	"github.com/gogpu/vkdecoder/emulation"
	"golang.org/x/sys/unix"
)

// dupPlatform duplicates a POSIX file descriptor via dup(2), the Linux
// arm of spec.md §4.9's OS-polymorphic dup(handle).
func dupPlatform(h emulation.ExternalHandle) (emulation.ExternalHandle, error) {
	switch h.Type {
	case emulation.HandleTypeOpaqueFD:
		newFD, err := unix.Dup(h.FD)
		if err != nil {
			return emulation.ExternalHandle{}, fmt.Errorf("dup(%d): %w", h.FD, err)
		}
		out := h
		out.FD = newFD
		return out, nil
	default:
		return emulation.ExternalHandle{}, fmt.Errorf("%w: handle type %d not duplicable on this platform", ErrInvalidExternalHandle, h.Type)
	}
}

// closePlatform releases a previously duplicated descriptor.
func closePlatform(h emulation.ExternalHandle) error {
	if h.Type != emulation.HandleTypeOpaqueFD {
		return nil
	}
	return unix.Close(h.FD)
}
