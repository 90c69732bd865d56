/*
DESCRIPTION
  scene.go provides Scene, a synthetic scene rendered into statistics
  cells for a given exposure.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package sim

import (
	"math"
	"time"

	"github.com/ausocean/camstack/ipa/stats"
)

// Scene is a diagonal brightness gradient lit by a coloured illuminant.
// Brightness is the signal level a cell reaches per millisecond of exposure
// at unity gain, running from Dark in the top left corner to Bright in the
// bottom right. Tint scales each channel.
//
// Every cell has the same texture. Its focus response is Detail with the
// lens at Focus and falls away either side over DepthOfField lens steps.
type Scene struct {
	Dark, Bright float64
	Tint         stats.RGB

	Focus        int32
	Detail       float64
	DepthOfField float64
}

// DefaultScene returns a neutral scene wide enough that some of it is
// always unsaturated.
func DefaultScene() Scene {
	return Scene{
		Dark:         0.5,
		Bright:       40,
		Tint:         stats.RGB{R: 1, G: 1, B: 1},
		Focus:        400,
		Detail:       20000,
		DepthOfField: 50,
	}
}

// Sharpness returns the focus response of a cell with the lens at lens.
func (s Scene) Sharpness(lens int32) uint16 {
	if s.Detail <= 0 {
		return 0
	}
	v := s.Detail
	if s.DepthOfField > 0 {
		d := float64(lens-s.Focus) / s.DepthOfField
		v /= 1 + d*d
	} else if lens != s.Focus {
		v = 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(math.Round(v))
}

// Render returns the statistics of s on grid for a shutter time, gain and
// lens position. Cells with a clipped channel are reported fully saturated.
func (s Scene) Render(grid stats.Grid, shutter time.Duration, gain float64, lens int32) *stats.Frame {
	f := &stats.Frame{Grid: grid, Cells: make([]stats.Cell, grid.Cells())}
	exposure := float64(shutter) / float64(time.Millisecond) * gain
	last := float64(grid.Width + grid.Height - 2)
	if last == 0 {
		last = 1
	}
	stride := grid.Cells() / grid.Height
	sharp := s.Sharpness(lens)
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			level := (s.Dark + (s.Bright-s.Dark)*float64(x+y)/last) * exposure
			r, rc := channel(level * s.Tint.R)
			g, gc := channel(level * s.Tint.G)
			b, bc := channel(level * s.Tint.B)
			c := stats.Cell{GreenRed: g, Red: r, Blue: b, GreenBlue: g, Focus: sharp}
			if rc || gc || bc {
				c.SatRatio = 255
			}
			f.Cells[y*stride+x] = c
		}
	}
	return f
}

// channel quantises v, reporting whether it clipped.
func channel(v float64) (uint8, bool) {
	if v >= 255 {
		return 255, true
	}
	if v <= 0 {
		return 0, false
	}
	return uint8(math.Round(v)), false
}
