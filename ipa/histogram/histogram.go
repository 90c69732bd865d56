/*
DESCRIPTION
  histogram.go provides a cumulative histogram with quantile and
  inter-quantile mean queries, used by the exposure and white balance
  algorithms.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package histogram provides a cumulative frequency histogram over a fixed
// number of bins.
package histogram

import "math"

// Histogram holds the cumulative frequencies of a bin count table. For N bins
// the cumulative table has N+1 entries; entry 0 is always 0 and entry N is
// the total sample count. A Histogram is immutable after construction.
type Histogram struct {
	cumulative []uint64
}

// New returns a Histogram built from the per-bin counts in data. An empty
// data slice gives a histogram with no bins and a total of zero.
func New(data []uint32) *Histogram {
	c := make([]uint64, len(data)+1)
	for i, v := range data {
		c[i+1] = c[i] + uint64(v)
	}
	return &Histogram{cumulative: c}
}

// Bins returns the number of bins.
func (h *Histogram) Bins() int { return len(h.cumulative) - 1 }

// Total returns the total number of samples.
func (h *Histogram) Total() uint64 { return h.cumulative[len(h.cumulative)-1] }

// CumulativeFrequency returns the number of samples at or below the
// fractional bin position bin. The frequency within a bin is treated as
// uniformly distributed, so the result is linearly interpolated between
// whole bin boundaries.
func (h *Histogram) CumulativeFrequency(bin float64) float64 {
	if bin <= 0 {
		return 0
	}
	if bin >= float64(h.Bins()) {
		return float64(h.Total())
	}
	b := int(bin)
	return float64(h.cumulative[b]) + (bin-float64(b))*float64(h.cumulative[b+1]-h.cumulative[b])
}

// Quantile returns the fractional bin position below which a proportion q of
// the samples lie, searching the whole histogram.
func (h *Histogram) Quantile(q float64) float64 {
	return h.QuantileRange(q, 0, -1)
}

// QuantileRange returns the fractional bin position of quantile q, searching
// only bins first to last inclusive. A negative last means the final bin.
// The result is in [0, Bins()]; a histogram with no samples gives the lower
// bound of the search range.
func (h *Histogram) QuantileRange(q float64, first, last int) float64 {
	if first < 0 {
		first = 0
	}
	if last < 0 {
		last = len(h.cumulative) - 2
	}
	if last < first {
		return float64(first)
	}

	items := uint64(q * float64(h.Total()))

	// Binary search for the first bin whose upper bound exceeds items.
	for first < last {
		middle := (first + last) / 2
		if h.cumulative[middle+1] > items {
			last = middle
		} else {
			first = middle + 1
		}
	}

	lo, hi := h.cumulative[first], h.cumulative[first+1]
	if hi == lo || items < lo {
		return float64(first)
	}
	return float64(first) + math.Min(1, float64(items-lo)/float64(hi-lo))
}

// InterQuantileMean returns the mean bin value of the samples lying between
// quantiles lo and hi. Bins are weighted by their lower edge and the result
// is offset by half a bin, so a histogram holding every sample in bin k
// gives k+0.5. A histogram with no samples gives the midpoint of the last
// bin, which callers treat as fully exposed.
func (h *Histogram) InterQuantileMean(lo, hi float64) float64 {
	if h.Total() == 0 || h.Bins() == 0 {
		return float64(h.Bins()) - 0.5
	}

	lowPoint := h.Quantile(lo)
	highPoint := h.QuantileRange(hi, int(lowPoint), -1)

	var sumBinFreq, cumulFreq float64
	for next := math.Floor(lowPoint) + 1; next <= math.Ceil(highPoint); lowPoint, next = next, next+1 {
		bin := int(math.Floor(lowPoint))
		if bin >= h.Bins() {
			break
		}
		freq := float64(h.cumulative[bin+1]-h.cumulative[bin]) * (math.Min(next, highPoint) - lowPoint)
		sumBinFreq += float64(bin) * freq
		cumulFreq += freq
	}
	if cumulFreq == 0 {
		return math.Floor(lowPoint) + 0.5
	}
	return sumBinFreq/cumulFreq + 0.5
}
