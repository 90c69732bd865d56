/*
DESCRIPTION
  fdmemory_linux.go provides FDMemory, which allocates buffers backed by
  anonymous memory files and maps them with mmap.

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

// FDMemory allocates single plane buffers backed by memfd files, as a
// kernel driver exporting dmabufs would, and maps them through an Mmap.
// FDMemory is safe for concurrent use.
type FDMemory struct {
	*Mmap

	mu     sync.Mutex
	nextID uint32
	fds    map[uint32]int
}

// NewFDMemory returns an empty FDMemory allocating ids from firstID.
func NewFDMemory(firstID uint32) *FDMemory {
	return &FDMemory{Mmap: NewMmap(), nextID: firstID, fds: make(map[uint32]int)}
}

// Allocate returns n buffers of the given length. On error no buffers are
// left allocated.
func (m *FDMemory) Allocate(n, length int) ([]*Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bufs := make([]*Buffer, 0, n)
	for i := 0; i < n; i++ {
		fd, err := unix.MemfdCreate(fmt.Sprintf("camstack-%d", m.nextID), unix.MFD_CLOEXEC)
		if err == nil {
			err = unix.Ftruncate(fd, int64(length))
			if err != nil {
				unix.Close(fd)
			}
		}
		if err != nil {
			for _, b := range bufs {
				m.free(b)
			}
			return nil, fmt.Errorf("could not create buffer memory: %w", err)
		}
		b := &Buffer{ID: m.nextID, Planes: []Plane{{FD: fd, Length: uint32(length)}}}
		m.fds[b.ID] = fd
		m.nextID++
		bufs = append(bufs, b)
	}
	return bufs, nil
}

// Free unmaps b and closes its file. b's plane is left with no file.
func (m *FDMemory) Free(b *Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.free(b)
}

// free releases b. m.mu must be held.
func (m *FDMemory) free(b *Buffer) {
	fd, ok := m.fds[b.ID]
	if !ok {
		return
	}
	m.Unmap(b)
	unix.Close(fd)
	delete(m.fds, b.ID)
	b.Planes[0].FD = -1
}
