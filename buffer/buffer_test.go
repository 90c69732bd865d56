/*
DESCRIPTION
  buffer_test.go provides testing for Pool and Memory.

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
)

func TestPoolFIFO(t *testing.T) {
	bufs := NewMemory(1).Allocate(3, 8)
	p := NewPool(bufs)
	if p.Len() != 3 {
		t.Fatalf("unexpected pool length: %d", p.Len())
	}

	b, _ := p.Get()
	p.Put(b)
	for _, want := range []uint32{2, 3, 1} {
		got, ok := p.Get()
		if !ok {
			t.Fatal("unexpected empty pool")
		}
		if got.ID != want {
			t.Errorf("unexpected buffer order, got: %d, want: %d", got.ID, want)
		}
	}
	if _, ok := p.Get(); ok {
		t.Error("expected empty pool")
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory(10)
	bufs := m.Allocate(2, 16)
	if bufs[0].ID != 10 || bufs[1].ID != 11 {
		t.Errorf("unexpected ids: %d, %d", bufs[0].ID, bufs[1].ID)
	}
	if bufs[0].Length() != 16 {
		t.Errorf("unexpected length: %d", bufs[0].Length())
	}

	mem, err := m.Map(bufs[0])
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	mem[0] = 0xff
	again, _ := m.Map(bufs[0])
	if again[0] != 0xff {
		t.Error("mapping does not share memory")
	}

	m.Free(bufs[1])
	_, err = m.Map(bufs[1])
	if !errors.Is(err, ErrMapFailed) {
		t.Errorf("expected ErrMapFailed, got: %v", err)
	}
}
