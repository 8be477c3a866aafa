// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package decoder

import "testing"

func TestLivenessAliveThenKilled(t *testing.T) {
	l := newLiveness()
	if !l.Alive() {
		t.Fatal("newLiveness() is not alive")
	}
	l.Kill()
	if l.Alive() {
		t.Error("Alive() after Kill() = true, want false")
	}
}

func TestLivenessNilIsNotAlive(t *testing.T) {
	var l *liveness
	if l.Alive() {
		t.Error("nil liveness reports Alive() = true")
	}
	l.Kill() // must not panic
}

func TestWeakRefExpired(t *testing.T) {
	l := newLiveness()
	ref := weakRefTo(l)
	if ref.Expired() {
		t.Fatal("weakRef reports Expired() = true for a live liveness")
	}
	l.Kill()
	if !ref.Expired() {
		t.Error("weakRef reports Expired() = false after Kill()")
	}
}
