/*
DESCRIPTION
  aggregator.go provides Aggregator, which folds the hardware statistics
  grid into a coarser grid of zones.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package stats

import "fmt"

// Region accumulates the channel sums of the non-saturated cells in a zone.
// Uncounted tallies the saturated cells that were excluded from the sums.
type Region struct {
	Counted   uint32
	Uncounted uint32
	RSum      uint64
	GSum      uint64
	BSum      uint64
}

// RGB holds a colour triple, typically per-zone channel means or gains.
type RGB struct {
	R, G, B float64
}

// Mean returns the average channel values of r. A region with no counted
// cells gives a zero RGB.
func (r Region) Mean() RGB {
	if r.Counted == 0 {
		return RGB{}
	}
	n := float64(r.Counted)
	return RGB{R: float64(r.RSum) / n, G: float64(r.GSum) / n, B: float64(r.BSum) / n}
}

// Aggregator partitions a statistics grid into ZonesX by ZonesY rectangular
// zones and sums each zone's cells. The cell to zone mapping is computed when
// the aggregator is configured and reused for every frame.
type Aggregator struct {
	grid   Grid
	zonesX int
	zonesY int
	maxSat uint8
	zone   []int // Zone index for each cell, row-major without stride.
}

// NewAggregator returns an Aggregator folding grid into zonesX by zonesY
// zones. Cells with a saturation ratio above maxSat are excluded.
func NewAggregator(grid Grid, zonesX, zonesY int, maxSat uint8) (*Aggregator, error) {
	a := &Aggregator{zonesX: zonesX, zonesY: zonesY, maxSat: maxSat}
	err := a.Configure(grid)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Configure recomputes the zone mapping for a new grid geometry. On error the
// previous mapping is kept.
func (a *Aggregator) Configure(grid Grid) error {
	err := grid.Validate()
	if err != nil {
		return err
	}
	if a.zonesX <= 0 || a.zonesY <= 0 || a.zonesX > grid.Width || a.zonesY > grid.Height {
		return fmt.Errorf("%w: %dx%d zones over %dx%d grid", ErrBadGrid, a.zonesX, a.zonesY, grid.Width, grid.Height)
	}

	zone := make([]int, grid.Width*grid.Height)
	for y := 0; y < grid.Height; y++ {
		zy := y * a.zonesY / grid.Height
		for x := 0; x < grid.Width; x++ {
			zone[y*grid.Width+x] = zy*a.zonesX + x*a.zonesX/grid.Width
		}
	}
	a.grid = grid
	a.zone = zone
	return nil
}

// Dims returns the zone grid dimensions.
func (a *Aggregator) Dims() (x, y int) { return a.zonesX, a.zonesY }

// Aggregate returns the ZonesX*ZonesY regions for f in row-major order.
func (a *Aggregator) Aggregate(f *Frame) ([]Region, error) {
	if f.Grid.Width != a.grid.Width || f.Grid.Height != a.grid.Height {
		return nil, fmt.Errorf("%w: frame is %dx%d, aggregator configured for %dx%d",
			ErrBadGrid, f.Grid.Width, f.Grid.Height, a.grid.Width, a.grid.Height)
	}

	regions := make([]Region, a.zonesX*a.zonesY)
	for y := 0; y < a.grid.Height; y++ {
		for x := 0; x < a.grid.Width; x++ {
			c := f.At(x, y)
			r := &regions[a.zone[y*a.grid.Width+x]]
			if c.SatRatio > a.maxSat {
				r.Uncounted++
				continue
			}
			r.Counted++
			r.RSum += uint64(c.Red)
			r.GSum += uint64(c.Green())
			r.BSum += uint64(c.Blue)
		}
	}
	return regions, nil
}

// Zones returns the channel means of the regions holding at least minCounted
// cells and a green mean of at least minGreen.
func Zones(regions []Region, minCounted uint32, minGreen float64) []RGB {
	var zones []RGB
	for _, r := range regions {
		if r.Counted < minCounted || r.Counted == 0 {
			continue
		}
		m := r.Mean()
		if m.G < minGreen {
			continue
		}
		zones = append(zones, m)
	}
	return zones
}
