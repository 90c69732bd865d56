/*
DESCRIPTION
  ring.go provides a fixed size ring indexed by an ever increasing position.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package delayed

// ring holds the last len(items) entries of an unbounded sequence. Position
// p maps to slot p modulo the ring size.
type ring[T any] struct {
	items []T
}

func newRing[T any](size int) *ring[T] { return &ring[T]{items: make([]T, size)} }

// at returns the slot for position p.
func (r *ring[T]) at(p uint32) *T { return &r.items[p%uint32(len(r.items))] }

// reset zeroes every slot.
func (r *ring[T]) reset() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
}
