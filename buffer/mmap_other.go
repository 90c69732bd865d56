//go:build !linux

/*
DESCRIPTION
  mmap_other.go provides a stub Mmap for platforms without mmap support.

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

import "fmt"

// Mmap is unsupported on this platform; every Map fails.
type Mmap struct{}

// NewMmap returns a new Mmap.
func NewMmap() *Mmap { return &Mmap{} }

// Map implements Mapper.
func (m *Mmap) Map(b *Buffer) ([]byte, error) {
	return nil, fmt.Errorf("%w: mmap unsupported on this platform", ErrMapFailed)
}

// Unmap implements Mapper.
func (m *Mmap) Unmap(b *Buffer) error { return nil }
