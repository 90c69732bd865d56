/*
DESCRIPTION
  params.go provides Params, the ISP parameters filled for each frame, and
  their encoding into parameter buffers.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package ipa

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/ausocean/camstack/ipa/stats"
)

// Parameter buffer layout, little-endian:
//
//	offset 0   uint32 enable flags
//	offset 4   uint16 white balance gains Gr, R, B, Gb (gainOne is unity)
//	offset 12  uint16 gamma lookup table, GammaEntries entries
const (
	GammaEntries = 256
	GammaMax     = 8191 // Largest gamma table value.
	ParamsSize   = 12 + 2*GammaEntries

	gainOne = 4096
)

// Enable flags.
const (
	flagAWB uint32 = 1 << iota
	flagGamma
)

// ErrShortParams is returned when a parameter buffer is too small.
var ErrShortParams = errors.New("parameter buffer too short")

// Params holds the ISP parameters for a frame. Blocks whose enable flag is
// false are left at hardware defaults.
type Params struct {
	AWB   bool
	Gains stats.RGB

	Gamma    bool
	GammaLUT [GammaEntries]uint16
}

// Encode writes p to b.
func (p *Params) Encode(b []byte) error {
	if len(b) < ParamsSize {
		return ErrShortParams
	}
	var flags uint32
	if p.AWB {
		flags |= flagAWB
	}
	if p.Gamma {
		flags |= flagGamma
	}
	binary.LittleEndian.PutUint32(b[0:], flags)
	binary.LittleEndian.PutUint16(b[4:], fixed(p.Gains.G))
	binary.LittleEndian.PutUint16(b[6:], fixed(p.Gains.R))
	binary.LittleEndian.PutUint16(b[8:], fixed(p.Gains.B))
	binary.LittleEndian.PutUint16(b[10:], fixed(p.Gains.G))
	for i, v := range p.GammaLUT {
		binary.LittleEndian.PutUint16(b[12+2*i:], v)
	}
	return nil
}

// DecodeParams reads parameters written by Encode.
func DecodeParams(b []byte) (*Params, error) {
	if len(b) < ParamsSize {
		return nil, ErrShortParams
	}
	flags := binary.LittleEndian.Uint32(b[0:])
	p := &Params{
		AWB:   flags&flagAWB != 0,
		Gamma: flags&flagGamma != 0,
		Gains: stats.RGB{
			G: unfixed(binary.LittleEndian.Uint16(b[4:])),
			R: unfixed(binary.LittleEndian.Uint16(b[6:])),
			B: unfixed(binary.LittleEndian.Uint16(b[8:])),
		},
	}
	for i := range p.GammaLUT {
		p.GammaLUT[i] = binary.LittleEndian.Uint16(b[12+2*i:])
	}
	return p, nil
}

// fixed converts a gain to fixed point, saturating at the format limits.
func fixed(g float64) uint16 {
	return uint16(math.Max(0, math.Min(math.MaxUint16, math.Round(g*gainOne))))
}

func unfixed(v uint16) float64 { return float64(v) / gainOne }
