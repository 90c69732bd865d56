/*
DESCRIPTION
  mmap_linux.go provides Mmap, a Mapper for dmabuf or V4L2 buffers backed
  by file descriptors.

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
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Mmap maps the first plane of fd backed buffers into the process with
// mmap(2). Mmap is safe for concurrent use.
type Mmap struct {
	mu   sync.Mutex
	maps map[uint32][]byte
}

// NewMmap returns a new Mmap.
func NewMmap() *Mmap { return &Mmap{maps: make(map[uint32][]byte)} }

// Map implements Mapper.
func (m *Mmap) Map(b *Buffer) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem, ok := m.maps[b.ID]; ok {
		return mem, nil
	}
	if len(b.Planes) == 0 || b.Planes[0].FD < 0 {
		return nil, fmt.Errorf("%w: buffer %d has no file descriptor", ErrMapFailed, b.ID)
	}
	p := b.Planes[0]
	mem, err := unix.Mmap(p.FD, int64(p.Offset), int(p.Length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: buffer %d: %v", ErrMapFailed, b.ID, err)
	}
	m.maps[b.ID] = mem
	return mem, nil
}

// Unmap implements Mapper.
func (m *Mmap) Unmap(b *Buffer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.maps[b.ID]
	if !ok {
		return nil
	}
	delete(m.maps, b.ID)
	err := unix.Munmap(mem)
	if err != nil {
		return fmt.Errorf("could not unmap buffer %d: %w", b.ID, err)
	}
	return nil
}
