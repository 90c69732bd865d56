/*
DESCRIPTION
  metering.go provides the zone weighting and luma estimation used by Agc.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package agc

import (
	"gonum.org/v1/gonum/floats"

	"github.com/ausocean/camstack/ipa/stats"
)

// Metering zones. The statistics grid is folded into a zonesX by zonesY
// grid, whose cells are then mapped onto numWeighted weighted zones.
const (
	zonesX      = 7
	zonesY      = 5
	numWeighted = 15
	pixelMax    = 255
	pixelRange  = 256
)

// regionMap maps each of the zonesX*zonesY zones to a weighted zone. Zone 0
// is the centre and the numbering spreads outwards.
var regionMap = [zonesX * zonesY]int{
	11, 9, 9, 9, 9, 9, 12,
	7, 5, 3, 3, 3, 6, 8,
	7, 5, 1, 0, 2, 6, 8,
	7, 5, 4, 4, 4, 6, 8,
	13, 10, 10, 10, 10, 10, 14,
}

var centreWeights = []float64{3, 3, 3, 2, 2, 2, 2, 1, 1, 1, 1, 0, 0, 0, 0}

func weightsFor(m Metering) []float64 {
	if m == MeteringCentre {
		return centreWeights
	}
	w := make([]float64, numWeighted)
	for i := range w {
		w[i] = 1
	}
	return w
}

// fold sums regions into the weighted zones.
func fold(regions []stats.Region) []stats.Region {
	zones := make([]stats.Region, numWeighted)
	for i, r := range regions {
		z := &zones[regionMap[i]]
		z.Counted += r.Counted
		z.Uncounted += r.Uncounted
		z.RSum += r.RSum
		z.GSum += r.GSum
		z.BSum += r.BSum
	}
	return zones
}

// valid returns the number of counted cells.
func valid(zones []stats.Region) uint32 {
	var n uint32
	for _, z := range zones {
		n += z.Counted
	}
	return n
}

// weightedCount returns the weighted number of counted cells.
func weightedCount(zones []stats.Region, weights []float64) float64 {
	counted := make([]float64, len(zones))
	for i, z := range zones {
		counted[i] = float64(z.Counted)
	}
	return floats.Dot(counted, weights)
}

// luma estimates the normalised brightness of zones after applying gain,
// weighting zones by weights and channels by the white balance gains awb.
// Channel sums are clipped at the pixel maximum so that saturated zones
// cannot be brightened further.
func luma(zones []stats.Region, weights []float64, awb stats.RGB, gain float64) float64 {
	n := len(zones)
	r, g, b, counted := make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	for i, z := range zones {
		c := float64(z.Counted)
		limit := pixelMax * c
		r[i] = minf(float64(z.RSum)*gain, limit)
		g[i] = minf(float64(z.GSum)*gain, limit)
		b[i] = minf(float64(z.BSum)*gain, limit)
		counted[i] = c
	}

	pixels := floats.Dot(counted, weights)
	if pixels == 0 {
		return 0
	}
	y := floats.Dot(r, weights)*awb.R*.299 +
		floats.Dot(g, weights)*awb.G*.587 +
		floats.Dot(b, weights)*awb.B*.114
	return y / pixels / pixelRange
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
