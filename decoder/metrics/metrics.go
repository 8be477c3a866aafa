// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package metrics implements the out-of-memory event hook named in
// spec.md §7: every out-of-host/out-of-device/out-of-pool-memory result
// is logged with its op-code and, when known, the requested allocation
// size.
package metrics

import (
	"log/slog"
	"sync/atomic"
)

// OOMEvent is one out-of-memory occurrence.
type OOMEvent struct {
	OpCode string
	Size   uint64 // 0 when the size is not known at the call site
	Result string
}

var oomCount atomic.Int64

// RecordOOM logs ev and increments the running OOM counter. No ecosystem
// metrics client (Prometheus, statsd, OpenTelemetry) appears anywhere in
// the retrieved corpus, so this hook rides the same slog-based ambient
// logging stack the rest of the decoder uses rather than introducing an
// unrelated dependency for a single counter.
func RecordOOM(logger *slog.Logger, ev OOMEvent) {
	n := oomCount.Add(1)
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"op", ev.OpCode, "result", ev.Result, "total_oom_events", n}
	if ev.Size > 0 {
		attrs = append(attrs, "size", ev.Size)
	}
	logger.Warn("out-of-memory event", attrs...)
}

// OOMCount returns the number of OOM events recorded since process start,
// for tests and diagnostics.
func OOMCount() int64 {
	return oomCount.Load()
}
