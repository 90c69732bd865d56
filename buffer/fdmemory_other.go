//go:build !linux

/*
DESCRIPTION
  fdmemory_other.go provides a stub FDMemory for platforms without memfd.

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

import "errors"

// ErrNoFDMemory is returned by FDMemory on platforms without memfd.
var ErrNoFDMemory = errors.New("fd backed memory unsupported on this platform")

// FDMemory is unsupported on this platform; every Allocate fails.
type FDMemory struct{ *Mmap }

// NewFDMemory returns a new FDMemory.
func NewFDMemory(firstID uint32) *FDMemory { return &FDMemory{Mmap: NewMmap()} }

// Allocate returns ErrNoFDMemory.
func (m *FDMemory) Allocate(n, length int) ([]*Buffer, error) { return nil, ErrNoFDMemory }

// Free does nothing.
func (m *FDMemory) Free(b *Buffer) {}
