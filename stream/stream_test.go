// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package stream

import (
	"bytes"
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)

	if err := s.PutBe32(0xdeadbeef); err != nil {
		t.Fatalf("PutBe32: %v", err)
	}
	if err := s.PutBe64(0x0102030405060708); err != nil {
		t.Fatalf("PutBe64: %v", err)
	}
	if err := s.PutByte(0xab); err != nil {
		t.Fatalf("PutByte: %v", err)
	}
	if err := s.PutBytesWithLength([]byte("hello")); err != nil {
		t.Fatalf("PutBytesWithLength: %v", err)
	}

	// Big-endian on the wire: verify byte order directly.
	want := []byte{0xde, 0xad, 0xbe, 0xef}
	got := buf.Bytes()[:4]
	if !bytes.Equal(got, want) {
		t.Fatalf("wire bytes = %x, want %x", got, want)
	}

	r := New(&buf)
	v32, err := r.GetBe32()
	if err != nil || v32 != 0xdeadbeef {
		t.Fatalf("GetBe32() = %x, %v", v32, err)
	}
	v64, err := r.GetBe64()
	if err != nil || v64 != 0x0102030405060708 {
		t.Fatalf("GetBe64() = %x, %v", v64, err)
	}
	b, err := r.GetByte()
	if err != nil || b != 0xab {
		t.Fatalf("GetByte() = %x, %v", b, err)
	}
	payload, err := r.GetBytesWithLength()
	if err != nil || string(payload) != "hello" {
		t.Fatalf("GetBytesWithLength() = %q, %v", payload, err)
	}
}

func TestGetBytesWithLengthShortRead(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)
	_ = s.PutBe64(10)
	_ = s.Write([]byte("abc"))

	if _, err := s.GetBytesWithLength(); err == nil {
		t.Fatal("expected short-read error, got nil")
	}
}
