/*
DESCRIPTION
  histogram_test.go provides testing for the Histogram quantile and
  inter-quantile mean queries.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package histogram

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestNew(t *testing.T) {
	h := New([]uint32{1, 2, 3})
	if h.Bins() != 3 {
		t.Errorf("unexpected bin count, got: %d, want: 3", h.Bins())
	}
	if h.Total() != 6 {
		t.Errorf("unexpected total, got: %d, want: 6", h.Total())
	}
	want := []uint64{0, 1, 3, 6}
	if !cmp.Equal(h.cumulative, want) {
		t.Errorf("unexpected cumulative table, got: %v, want: %v", h.cumulative, want)
	}
}

func TestCumulativeFrequency(t *testing.T) {
	h := New([]uint32{10, 10, 10, 10})
	tests := []struct {
		bin  float64
		want float64
	}{
		{bin: -1, want: 0},
		{bin: 0, want: 0},
		{bin: 1, want: 10},
		{bin: 1.5, want: 15},
		{bin: 4, want: 40},
		{bin: 10, want: 40},
	}
	for i, test := range tests {
		got := h.CumulativeFrequency(test.bin)
		if got != test.want {
			t.Errorf("did not get expected result for test %d, got: %v, want: %v", i, got, test.want)
		}
	}
}

func TestQuantile(t *testing.T) {
	h := New([]uint32{10, 10, 10, 10})
	tests := []struct {
		q    float64
		want float64
	}{
		{q: 0, want: 0},
		{q: 0.25, want: 1},
		{q: 0.3, want: 1.2},
		{q: 0.5, want: 2},
		{q: 1, want: 4},
	}
	for i, test := range tests {
		got := h.Quantile(test.q)
		if !cmp.Equal(got, test.want, cmpopts.EquateApprox(0, 1e-9)) {
			t.Errorf("did not get expected result for test %d, got: %v, want: %v", i, got, test.want)
		}
	}
}

func TestQuantileMonotonic(t *testing.T) {
	data := make([]uint32, 256)
	for i := range data {
		data[i] = uint32((i * 37) % 11)
	}
	h := New(data)

	prev := 0.0
	for q := 0.0; q <= 1.0; q += 0.01 {
		got := h.Quantile(q)
		if got < prev {
			t.Fatalf("quantile decreased at q=%v, got: %v, previous: %v", q, got, prev)
		}
		if got < 0 || got > float64(h.Bins()) {
			t.Fatalf("quantile out of range at q=%v: %v", q, got)
		}
		prev = got
	}
}

func TestSingleBin(t *testing.T) {
	const k = 100
	data := make([]uint32, 256)
	data[k] = 1000
	h := New(data)

	q := h.Quantile(0.5)
	if q < k || q > k+1 {
		t.Errorf("median outside populated bin, got: %v", q)
	}

	for _, r := range [][2]float64{{0, 1}, {0.98, 1}, {0.25, 0.75}} {
		got := h.InterQuantileMean(r[0], r[1])
		if !cmp.Equal(got, k+0.5, cmpopts.EquateApprox(0, 1e-9)) {
			t.Errorf("unexpected inter-quantile mean for %v, got: %v, want: %v", r, got, k+0.5)
		}
	}
}

func TestInterQuantileMeanUniform(t *testing.T) {
	h := New([]uint32{10, 10, 10, 10})
	got := h.InterQuantileMean(0, 1)
	if !cmp.Equal(got, 2.0, cmpopts.EquateApprox(0, 1e-9)) {
		t.Errorf("unexpected mean, got: %v, want: 2", got)
	}
}

// The mean over the whole population must hold for skewed and sparse
// histograms too, using bin midpoints.
func TestInterQuantileMeanPopulation(t *testing.T) {
	tests := []struct {
		bins []uint32
		want float64
	}{
		{bins: []uint32{1, 0, 0, 3}, want: 2.75},
		{bins: []uint32{5, 0, 1}, want: 0.5 + 2.0/6},
		{bins: []uint32{0, 2, 7, 1, 0, 9}, want: populationMean([]uint32{0, 2, 7, 1, 0, 9})},
		{bins: []uint32{0, 0, 0, 0, 4}, want: 4.5},
	}
	for _, test := range tests {
		got := New(test.bins).InterQuantileMean(0, 1)
		if !cmp.Equal(got, test.want, cmpopts.EquateApprox(0, 1e-9)) {
			t.Errorf("unexpected mean for %v, got: %v, want: %v", test.bins, got, test.want)
		}
	}
}

func populationMean(bins []uint32) float64 {
	var sum, n float64
	for i, c := range bins {
		sum += (float64(i) + 0.5) * float64(c)
		n += float64(c)
	}
	return sum / n
}

func TestEmpty(t *testing.T) {
	h := New(make([]uint32, 256))
	if h.Total() != 0 {
		t.Fatalf("expected zero total, got: %d", h.Total())
	}
	if got := h.InterQuantileMean(0.98, 1); got != 255.5 {
		t.Errorf("unexpected mean for empty histogram, got: %v, want: 255.5", got)
	}
	if got := h.Quantile(0.5); got < 0 || got > 256 {
		t.Errorf("quantile out of range for empty histogram: %v", got)
	}

	h = New(nil)
	if h.Bins() != 0 || h.Total() != 0 {
		t.Errorf("unexpected empty histogram, bins: %d, total: %d", h.Bins(), h.Total())
	}
}
