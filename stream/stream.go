// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package stream implements the big-endian byte-oriented transport the
// decoder reads commands from and writes snapshots to.
package stream

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Stream wraps an io.ReadWriter with the fixed-width, big-endian
// primitives the wire format and the snapshot format both rely on.
type Stream struct {
	rw io.ReadWriter
}

// New wraps rw in a Stream.
func New(rw io.ReadWriter) *Stream {
	return &Stream{rw: rw}
}

func (s *Stream) PutByte(b byte) error {
	_, err := s.rw.Write([]byte{b})
	return err
}

func (s *Stream) GetByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(s.rw, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (s *Stream) PutBe32(v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := s.rw.Write(buf[:])
	return err
}

func (s *Stream) GetBe32() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(s.rw, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func (s *Stream) PutBe64(v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := s.rw.Write(buf[:])
	return err
}

func (s *Stream) GetBe64() (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(s.rw, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// Write copies buf to the underlying writer verbatim; n is implied by
// len(buf), matching the stream.write(buf, n) surface named in spec.md §6
// where n is always len(buf) in Go.
func (s *Stream) Write(buf []byte) error {
	_, err := s.rw.Write(buf)
	return err
}

// Read fills buf completely or returns an error, mirroring
// stream.read(buf, n).
func (s *Stream) Read(buf []byte) error {
	_, err := io.ReadFull(s.rw, buf)
	return err
}

// PutBool writes a single byte, 1 for true.
func (s *Stream) PutBool(b bool) error {
	if b {
		return s.PutByte(1)
	}
	return s.PutByte(0)
}

func (s *Stream) GetBool() (bool, error) {
	b, err := s.GetByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// PutBytesWithLength writes a u64 length prefix followed by the bytes, the
// shape used throughout the snapshot wire format (§6) for mapped-memory
// and blob payloads.
func (s *Stream) PutBytesWithLength(b []byte) error {
	if err := s.PutBe64(uint64(len(b))); err != nil {
		return err
	}
	return s.Write(b)
}

func (s *Stream) GetBytesWithLength() ([]byte, error) {
	n, err := s.GetBe64()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := s.Read(buf); err != nil {
		return nil, fmt.Errorf("stream: short read of %d-byte payload: %w", n, err)
	}
	return buf, nil
}
