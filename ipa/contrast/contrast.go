/*
DESCRIPTION
  contrast.go provides Contrast, which programs the ISP gamma curve.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package contrast provides a gamma correction algorithm.
package contrast

import (
	"fmt"
	"math"

	"github.com/ausocean/camstack/ipa"
	"github.com/ausocean/camstack/ipa/stats"
	"github.com/ausocean/utils/logging"
)

// DefaultGamma is used when no gamma is given.
const DefaultGamma = 1.1

// Contrast implements ipa.Algorithm.
type Contrast struct {
	log   logging.Logger
	gamma float64
	lut   [ipa.GammaEntries]uint16
}

// New returns a Contrast applying gamma. A gamma of zero selects
// DefaultGamma.
func New(log logging.Logger, gamma float64) *Contrast {
	if gamma == 0 {
		gamma = DefaultGamma
	}
	return &Contrast{log: log, gamma: gamma}
}

// Name implements ipa.Algorithm.
func (c *Contrast) Name() string { return "contrast" }

// Configure implements ipa.Algorithm.
func (c *Contrast) Configure(ctx *ipa.Context) error {
	if c.gamma <= 0 || math.IsNaN(c.gamma) || math.IsInf(c.gamma, 0) {
		return fmt.Errorf("invalid gamma: %v", c.gamma)
	}
	c.lut = LUT(c.gamma)
	ipa.GammaKey.Set(ctx.Session, c.gamma)
	c.log.Debug("contrast: configured", "gamma", c.gamma)
	return nil
}

// Prepare implements ipa.Algorithm.
func (c *Contrast) Prepare(ctx *ipa.Context, p *ipa.Params) {
	g, ok := ipa.GammaKey.Get(ctx.Session)
	if ok && g != c.gamma && g > 0 {
		c.gamma = g
		c.lut = LUT(g)
	}
	p.Gamma = true
	p.GammaLUT = c.lut
}

// Process implements ipa.Algorithm. The curve is static.
func (c *Contrast) Process(ctx *ipa.Context, f *stats.Frame) {}

// LUT returns the gamma table for gamma, mapping 8-bit input levels onto
// the range 0 to ipa.GammaMax.
func LUT(gamma float64) [ipa.GammaEntries]uint16 {
	var lut [ipa.GammaEntries]uint16
	for i := range lut {
		j := float64(i) / (ipa.GammaEntries - 1)
		lut[i] = uint16(math.Pow(j, 1/gamma) * ipa.GammaMax)
	}
	return lut
}
