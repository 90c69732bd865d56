/*
DESCRIPTION
  metadata.go provides Metadata, a concurrency safe store of typed values
  shared between the image processing algorithms of a camera session.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package metadata provides a typed key/value store through which algorithms
// publish and read per-frame results.
package metadata

import (
	"sort"
	"sync"
)

// Key identifies a value of type T in a Metadata. Keys are compared by name,
// so two keys with the same name must carry the same type.
type Key[T any] struct {
	name string
}

// NewKey returns a key with the given name.
func NewKey[T any](name string) Key[T] { return Key[T]{name: name} }

// Name returns the key's name.
func (k Key[T]) Name() string { return k.name }

// Set stores v under k in m, replacing any previous value.
func (k Key[T]) Set(m *Metadata, v T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]any)
	}
	m.data[k.name] = v
}

// Get returns the value stored under k in m. ok is false if nothing is
// stored, or if the stored value is not of type T.
func (k Key[T]) Get(m *Metadata) (v T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok = m.data[k.name].(T)
	return v, ok
}

// Metadata is a mutex guarded map of named values. The zero value is ready
// to use. Every operation holds the lock for its full duration, so readers
// never observe a partially merged state.
type Metadata struct {
	mu   sync.Mutex
	data map[string]any
}

// New returns an empty Metadata.
func New() *Metadata { return &Metadata{data: make(map[string]any)} }

// Clear removes every value.
func (m *Metadata) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]any)
}

// Merge copies every value of other into m. Values in other replace values
// in m with the same key; other is left unchanged.
func (m *Metadata) Merge(other *Metadata) {
	if m == other {
		return
	}
	snap := other.snapshot()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]any, len(snap))
	}
	for k, v := range snap {
		m.data[k] = v
	}
}

// Copy returns a new Metadata holding the values of m.
func (m *Metadata) Copy() *Metadata { return &Metadata{data: m.snapshot()} }

// Len returns the number of stored values.
func (m *Metadata) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// Keys returns the sorted names of the stored values.
func (m *Metadata) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Metadata) snapshot() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := make(map[string]any, len(m.data))
	for k, v := range m.data {
		snap[k] = v
	}
	return snap
}
