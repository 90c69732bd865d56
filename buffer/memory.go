/*
DESCRIPTION
  memory.go provides Memory, an allocator and Mapper for buffers backed by
  process memory, used by simulated devices and tests.

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
)

// Memory allocates buffers in process memory and maps them. Memory is safe
// for concurrent use.
type Memory struct {
	mu     sync.Mutex
	nextID uint32
	mem    map[uint32][]byte
}

// NewMemory returns an empty Memory. Buffer ids are allocated from firstID
// upwards so that several allocators may share an id space.
func NewMemory(firstID uint32) *Memory {
	return &Memory{nextID: firstID, mem: make(map[uint32][]byte)}
}

// Allocate returns n single plane buffers of the given length.
func (m *Memory) Allocate(n, length int) []*Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	bufs := make([]*Buffer, n)
	for i := range bufs {
		b := &Buffer{ID: m.nextID, Planes: []Plane{{FD: -1, Length: uint32(length)}}}
		m.mem[b.ID] = make([]byte, length)
		m.nextID++
		bufs[i] = b
	}
	return bufs
}

// Map implements Mapper.
func (m *Memory) Map(b *Buffer) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.mem[b.ID]
	if !ok {
		return nil, fmt.Errorf("%w: no memory for buffer %d", ErrMapFailed, b.ID)
	}
	return mem, nil
}

// Unmap implements Mapper. Process memory stays allocated until Free.
func (m *Memory) Unmap(b *Buffer) error { return nil }

// Free releases the memory of b.
func (m *Memory) Free(b *Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mem, b.ID)
}
