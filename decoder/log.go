// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// loggerPtr holds the package's active logger. Defaults to a handler
// that discards everything so embedding a decoder into a host process
// costs nothing until that process opts in by calling SetLogger.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger installs l as the decoder's logger. Debug records the
// call-logging trace described in spec.md §4.1 ("Call-logging mode
// reports the live count for leak detection"); Warn/Error record
// recovered-locally events (§7) and precede any Fatal panic.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the currently installed logger.
func Logger() *slog.Logger { return loggerPtr.Load() }

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler       { return h }
func (h nopHandler) WithGroup(string) slog.Handler            { return h }
