/*
DESCRIPTION
  stats.go provides the hardware statistics grid types and the codec for
  the statistics buffer layout produced by the image signal processor.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package stats provides types for per-cell image statistics emitted by the
// image signal processor, and an aggregator that reduces them to zones.
package stats

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Statistics buffer layout. The buffer starts with a header holding the grid
// width, height and stride as little-endian uint16s, followed by stride*height
// cells of cellSize bytes each. A cell holds the four channel means and the
// saturation ratio as bytes, the focus response as a little-endian uint16 and
// one spare byte.
const (
	headerSize = 6
	cellSize   = 8
)

// Bins is the number of bins in histograms built from cell channel means.
const Bins = 256

// Errors returned by the statistics codec and the aggregator.
var (
	ErrBadGrid     = errors.New("bad statistics grid geometry")
	ErrShortBuffer = errors.New("statistics buffer too short")
)

// Cell holds the channel means of one hardware statistics cell, together with
// the proportion of saturated pixels in the cell scaled to 0-255. Focus is
// the cell's high-pass filter response; larger values mean sharper detail.
type Cell struct {
	GreenRed  uint8
	Red       uint8
	Blue      uint8
	GreenBlue uint8
	SatRatio  uint8
	Focus     uint16
}

// Green returns the mean of the two green channels.
func (c Cell) Green() uint8 { return uint8((uint16(c.GreenRed) + uint16(c.GreenBlue)) / 2) }

// Grid describes the geometry of the hardware statistics grid. Stride is the
// number of cells per row in the buffer, which may exceed Width; a zero
// Stride means Width.
type Grid struct {
	Width  int
	Height int
	Stride int
}

// stride returns the effective row stride.
func (g Grid) stride() int {
	if g.Stride == 0 {
		return g.Width
	}
	return g.Stride
}

// Cells returns the number of cells in the buffer including stride padding.
func (g Grid) Cells() int { return g.stride() * g.Height }

// Validate checks the grid describes at least one cell.
func (g Grid) Validate() error {
	if g.Width <= 0 || g.Height <= 0 || g.stride() < g.Width {
		return fmt.Errorf("%w: %dx%d stride %d", ErrBadGrid, g.Width, g.Height, g.Stride)
	}
	if g.stride() > 0xffff || g.Height > 0xffff {
		return fmt.Errorf("%w: %dx%d too large", ErrBadGrid, g.Width, g.Height)
	}
	return nil
}

// Size returns the number of bytes needed to hold statistics for g.
func (g Grid) Size() int { return headerSize + g.Cells()*cellSize }

// Frame holds the statistics for one frame. Cells are row-major with
// Grid.Stride cells per row.
type Frame struct {
	Grid  Grid
	Cells []Cell
}

// At returns the cell at column x and row y.
func (f *Frame) At(x, y int) Cell { return f.Cells[y*f.Grid.stride()+x] }

// Parse decodes a statistics buffer.
func Parse(b []byte) (*Frame, error) {
	if len(b) < headerSize {
		return nil, ErrShortBuffer
	}
	g := Grid{
		Width:  int(binary.LittleEndian.Uint16(b[0:])),
		Height: int(binary.LittleEndian.Uint16(b[2:])),
		Stride: int(binary.LittleEndian.Uint16(b[4:])),
	}
	err := g.Validate()
	if err != nil {
		return nil, err
	}
	if len(b) < g.Size() {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrShortBuffer, len(b), g.Size())
	}

	f := &Frame{Grid: g, Cells: make([]Cell, g.Cells())}
	for i := range f.Cells {
		c := b[headerSize+i*cellSize:]
		f.Cells[i] = Cell{
			GreenRed:  c[0],
			Red:       c[1],
			Blue:      c[2],
			GreenBlue: c[3],
			SatRatio:  c[4],
			Focus:     binary.LittleEndian.Uint16(c[5:]),
		}
	}
	return f, nil
}

// Encode writes f to b using the statistics buffer layout.
func Encode(b []byte, f *Frame) error {
	err := f.Grid.Validate()
	if err != nil {
		return err
	}
	if len(f.Cells) != f.Grid.Cells() {
		return fmt.Errorf("%w: have %d cells, need %d", ErrBadGrid, len(f.Cells), f.Grid.Cells())
	}
	if len(b) < f.Grid.Size() {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint16(b[0:], uint16(f.Grid.Width))
	binary.LittleEndian.PutUint16(b[2:], uint16(f.Grid.Height))
	binary.LittleEndian.PutUint16(b[4:], uint16(f.Grid.stride()))
	for i, c := range f.Cells {
		d := b[headerSize+i*cellSize : headerSize+(i+1)*cellSize]
		d[0], d[1], d[2], d[3], d[4] = c.GreenRed, c.Red, c.Blue, c.GreenBlue, c.SatRatio
		binary.LittleEndian.PutUint16(d[5:], c.Focus)
		d[7] = 0
	}
	return nil
}

// GreenHistogram returns a histogram of the green means of the cells whose
// saturation ratio does not exceed maxSat.
func GreenHistogram(f *Frame, maxSat uint8) []uint32 {
	h := make([]uint32, Bins)
	for y := 0; y < f.Grid.Height; y++ {
		for x := 0; x < f.Grid.Width; x++ {
			c := f.At(x, y)
			if c.SatRatio > maxSat {
				continue
			}
			h[c.Green()]++
		}
	}
	return h
}
