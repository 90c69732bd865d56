/*
DESCRIPTION
  metadata_test.go provides testing for the Metadata store.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package metadata

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type gains struct {
	R, B float64
}

var (
	gainsKey = NewKey[gains]("test.gains")
	countKey = NewKey[int]("test.count")
)

func TestSetGet(t *testing.T) {
	var m Metadata

	_, ok := gainsKey.Get(&m)
	if ok {
		t.Fatal("did not expect value in empty metadata")
	}

	gainsKey.Set(&m, gains{R: 1.5, B: 2})
	got, ok := gainsKey.Get(&m)
	if !ok {
		t.Fatal("expected value after set")
	}
	if !cmp.Equal(got, gains{R: 1.5, B: 2}) {
		t.Errorf("unexpected value: %+v", got)
	}

	// A key of a different type with the same name must not match.
	_, ok = NewKey[int]("test.gains").Get(&m)
	if ok {
		t.Error("did not expect value for mistyped key")
	}
}

func TestClear(t *testing.T) {
	m := New()
	countKey.Set(m, 3)
	m.Clear()
	if m.Len() != 0 {
		t.Errorf("expected empty metadata after clear, have %d values", m.Len())
	}
}

func TestMerge(t *testing.T) {
	acc := New()
	countKey.Set(acc, 1)
	gainsKey.Set(acc, gains{R: 1, B: 1})

	frame := New()
	countKey.Set(frame, 2)

	acc.Merge(frame)

	if got, _ := countKey.Get(acc); got != 2 {
		t.Errorf("merge did not replace value, got: %d", got)
	}
	if got, _ := gainsKey.Get(acc); got != (gains{R: 1, B: 1}) {
		t.Errorf("merge disturbed unrelated value: %+v", got)
	}
	if frame.Len() != 1 {
		t.Errorf("merge modified source, len: %d", frame.Len())
	}
	if !cmp.Equal(acc.Keys(), []string{"test.count", "test.gains"}) {
		t.Errorf("unexpected keys: %v", acc.Keys())
	}

	acc.Merge(acc)
	if acc.Len() != 2 {
		t.Errorf("self merge changed length: %d", acc.Len())
	}
}

func TestCopy(t *testing.T) {
	m := New()
	countKey.Set(m, 7)
	c := m.Copy()
	countKey.Set(m, 8)
	if got, _ := countKey.Get(c); got != 7 {
		t.Errorf("copy affected by later set, got: %d", got)
	}
}

// A reader must observe either the pre-merge or the post-merge state for
// the pair of values written together, never a mix.
func TestConcurrentMerge(t *testing.T) {
	acc := New()
	countKey.Set(acc, 0)
	gainsKey.Set(acc, gains{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= 1000; i++ {
			f := New()
			countKey.Set(f, i)
			gainsKey.Set(f, gains{R: float64(i)})
			acc.Merge(f)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			c := acc.Copy()
			n, _ := countKey.Get(c)
			g, _ := gainsKey.Get(c)
			if float64(n) != g.R {
				t.Errorf("observed torn merge, count: %d, gain: %v", n, g.R)
				return
			}
		}
	}()
	wg.Wait()
}
