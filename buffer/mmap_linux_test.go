/*
DESCRIPTION
  mmap_linux_test.go provides testing for Mmap and FDMemory.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package buffer

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sys/unix"
)

// memfd returns a buffer backed by a new memfd of the given length.
func memfd(t *testing.T, id uint32, length int) *Buffer {
	t.Helper()
	fd, err := unix.MemfdCreate("mmap-test", unix.MFD_CLOEXEC)
	if err != nil {
		t.Skipf("memfd unavailable: %v", err)
	}
	t.Cleanup(func() { unix.Close(fd) })
	err = unix.Ftruncate(fd, int64(length))
	if err != nil {
		t.Fatalf("could not size memfd: %v", err)
	}
	return &Buffer{ID: id, Planes: []Plane{{FD: fd, Length: uint32(length)}}}
}

func TestMmap(t *testing.T) {
	const length = 4096
	b := memfd(t, 3, length)
	m := NewMmap()

	mem, err := m.Map(b)
	if err != nil {
		t.Fatalf("could not map: %v", err)
	}
	if len(mem) != length {
		t.Fatalf("unexpected mapping length: %d", len(mem))
	}
	want := []byte{0xde, 0xad, 0xbe, 0xef}
	copy(mem, want)

	// Writes reach the file.
	got := make([]byte, len(want))
	_, err = unix.Pread(b.Planes[0].FD, got, 0)
	if err != nil {
		t.Fatalf("could not read memfd: %v", err)
	}
	if !cmp.Equal(got, want) {
		t.Errorf("file does not hold mapped writes, got: %x, want: %x", got, want)
	}

	again, err := m.Map(b)
	if err != nil {
		t.Fatalf("could not map again: %v", err)
	}
	if &again[0] != &mem[0] {
		t.Error("mapping an already mapped buffer gave a new mapping")
	}

	err = m.Unmap(b)
	if err != nil {
		t.Fatalf("could not unmap: %v", err)
	}
	if len(m.maps) != 0 {
		t.Errorf("mapping not released: %d left", len(m.maps))
	}
	if err := m.Unmap(b); err != nil {
		t.Errorf("unmapping an unmapped buffer failed: %v", err)
	}

	// A fresh mapping sees the same file contents.
	mem, err = m.Map(b)
	if err != nil {
		t.Fatalf("could not remap: %v", err)
	}
	if !cmp.Equal(mem[:len(want)], want) {
		t.Errorf("remapped contents differ, got: %x, want: %x", mem[:len(want)], want)
	}
	m.Unmap(b)
}

func TestMmapNoFD(t *testing.T) {
	m := NewMmap()
	for _, b := range []*Buffer{{ID: 1}, {ID: 2, Planes: []Plane{{FD: -1, Length: 16}}}} {
		_, err := m.Map(b)
		if !errors.Is(err, ErrMapFailed) {
			t.Errorf("buffer %d: expected ErrMapFailed, got: %v", b.ID, err)
		}
	}
}

func TestFDMemory(t *testing.T) {
	m := NewFDMemory(20)
	bufs, err := m.Allocate(2, 64)
	if err != nil {
		t.Skipf("memfd unavailable: %v", err)
	}
	if bufs[0].ID != 20 || bufs[1].ID != 21 {
		t.Errorf("unexpected ids: %d, %d", bufs[0].ID, bufs[1].ID)
	}
	if bufs[0].Length() != 64 || bufs[0].Planes[0].FD < 0 {
		t.Errorf("unexpected plane: %+v", bufs[0].Planes[0])
	}

	mem, err := m.Map(bufs[0])
	if err != nil {
		t.Fatalf("could not map: %v", err)
	}
	mem[0] = 0x7f
	other, err := m.Map(bufs[1])
	if err != nil {
		t.Fatalf("could not map: %v", err)
	}
	if other[0] != 0 {
		t.Error("buffers share memory")
	}

	for _, b := range bufs {
		m.Free(b)
	}
	if len(m.fds) != 0 || len(m.maps) != 0 {
		t.Errorf("resources remain after free, files: %d, mappings: %d", len(m.fds), len(m.maps))
	}
	_, err = m.Map(bufs[0])
	if !errors.Is(err, ErrMapFailed) {
		t.Errorf("expected ErrMapFailed mapping a freed buffer, got: %v", err)
	}
}
