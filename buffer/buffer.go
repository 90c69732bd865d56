/*
DESCRIPTION
  buffer.go provides Buffer, a frame buffer descriptor shared between the
  pipeline, the image processing algorithms and capture devices, and Pool,
  a FIFO of free buffers.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package buffer provides frame buffer descriptors, buffer pools and
// mappers that give access to buffer memory.
package buffer

import (
	"errors"
	"time"
)

// Status describes the outcome of a device operation on a buffer.
type Status int

// Buffer statuses.
const (
	StatusSuccess Status = iota
	StatusError
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Plane describes one plane of a buffer. FD is the file descriptor backing
// the plane, or -1 for process memory.
type Plane struct {
	FD     int
	Offset uint32
	Length uint32
}

// Metadata is filled in by the device that completes a buffer.
type Metadata struct {
	Status    Status
	Sequence  uint32
	Timestamp time.Time
}

// Buffer describes a frame buffer. The ID is unique within a session and is
// used to refer to the buffer across process boundaries.
type Buffer struct {
	ID       uint32
	Planes   []Plane
	Metadata Metadata
}

// Length returns the total length of the buffer's planes.
func (b *Buffer) Length() int {
	var n int
	for _, p := range b.Planes {
		n += int(p.Length)
	}
	return n
}

// Mapper provides access to the memory of buffers.
type Mapper interface {
	// Map returns the memory of b. Mapping an already mapped buffer returns
	// the existing mapping.
	Map(b *Buffer) ([]byte, error)

	// Unmap releases the mapping of b.
	Unmap(b *Buffer) error
}

// ErrMapFailed is returned when buffer memory cannot be mapped.
var ErrMapFailed = errors.New("buffer map failed")

// Pool is a FIFO of available buffers. Pool is not safe for concurrent use.
type Pool struct {
	free []*Buffer
}

// NewPool returns a Pool holding bufs.
func NewPool(bufs []*Buffer) *Pool {
	p := &Pool{free: make([]*Buffer, 0, len(bufs))}
	p.free = append(p.free, bufs...)
	return p
}

// Get removes and returns the oldest available buffer. ok is false if the
// pool is empty.
func (p *Pool) Get() (b *Buffer, ok bool) {
	if len(p.free) == 0 {
		return nil, false
	}
	b = p.free[0]
	p.free[0] = nil
	p.free = p.free[1:]
	return b, true
}

// Put returns b to the pool.
func (p *Pool) Put(b *Buffer) { p.free = append(p.free, b) }

// Len returns the number of available buffers.
func (p *Pool) Len() int { return len(p.free) }

// Reset empties the pool.
func (p *Pool) Reset() { p.free = p.free[:0] }
