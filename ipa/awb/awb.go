/*
DESCRIPTION
  awb.go provides Awb, a grey-world automatic white balance algorithm with
  outlier trimming and a correlated colour temperature estimate.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package awb provides a grey-world automatic white balance algorithm.
package awb

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/ausocean/camstack/ipa"
	"github.com/ausocean/camstack/ipa/stats"
	"github.com/ausocean/utils/logging"
)

const pkg = "awb: "

// Defaults for Config fields left at zero.
const (
	DefaultZonesX         = 8
	DefaultZonesY         = 6
	DefaultMinZoneCounted = 2
	DefaultMinZoneGreen   = 16
	DefaultMinZones       = 10
	DefaultMaxSatRatio    = 255 * 20 / 100
	DefaultTemperature    = 4500
)

// Config holds the tuning of Awb.
type Config struct {
	ZonesX, ZonesY int

	// A zone is used only if it has at least MinZoneCounted unsaturated
	// cells and a green mean of at least MinZoneGreen.
	MinZoneCounted uint32
	MinZoneGreen   float64

	// Gains are held unless at least MinZones zones are usable.
	MinZones int

	MaxSatRatio uint8
}

func (c *Config) defaults() {
	if c.ZonesX <= 0 {
		c.ZonesX = DefaultZonesX
	}
	if c.ZonesY <= 0 {
		c.ZonesY = DefaultZonesY
	}
	if c.MinZoneCounted == 0 {
		c.MinZoneCounted = DefaultMinZoneCounted
	}
	if c.MinZoneGreen <= 0 {
		c.MinZoneGreen = DefaultMinZoneGreen
	}
	if c.MinZones <= 0 {
		c.MinZones = DefaultMinZones
	}
	if c.MaxSatRatio == 0 {
		c.MaxSatRatio = DefaultMaxSatRatio
	}
}

// Awb implements ipa.Algorithm.
type Awb struct {
	log    logging.Logger
	cfg    Config
	agg    *stats.Aggregator
	status ipa.AWBStatus
}

// New returns an unconfigured Awb.
func New(log logging.Logger, c Config) *Awb {
	c.defaults()
	return &Awb{log: log, cfg: c, status: defaultStatus()}
}

func defaultStatus() ipa.AWBStatus {
	return ipa.AWBStatus{Gains: stats.RGB{R: 1, G: 1, B: 1}, Temperature: DefaultTemperature}
}

// Name implements ipa.Algorithm.
func (a *Awb) Name() string { return "awb" }

// Configure implements ipa.Algorithm. Gains start at unity.
func (a *Awb) Configure(ctx *ipa.Context) error {
	agg, err := stats.NewAggregator(ctx.Configuration.Grid, a.cfg.ZonesX, a.cfg.ZonesY, a.cfg.MaxSatRatio)
	if err != nil {
		return fmt.Errorf("could not create aggregator: %w", err)
	}
	a.agg = agg
	a.status = defaultStatus()
	ipa.AWBStatusKey.Set(ctx.Session, a.status)
	return nil
}

// Prepare implements ipa.Algorithm, writing the latest gains.
func (a *Awb) Prepare(ctx *ipa.Context, p *ipa.Params) {
	s, ok := ipa.AWBStatusKey.Get(ctx.Session)
	if !ok {
		s = a.status
	}
	p.AWB = true
	p.Gains = s.Gains
}

// Process implements ipa.Algorithm.
func (a *Awb) Process(ctx *ipa.Context, f *stats.Frame) {
	if a.agg == nil {
		return
	}
	a.status.Updated = false

	regions, err := a.agg.Aggregate(f)
	if err != nil {
		a.log.Warning(pkg+"could not aggregate statistics", "error", err)
		ipa.AWBStatusKey.Set(ctx.Frame, a.status)
		return
	}
	zones := stats.Zones(regions, a.cfg.MinZoneCounted, a.cfg.MinZoneGreen)
	if len(zones) < a.cfg.MinZones {
		a.log.Debug(pkg+"too few zones, holding gains", "zones", len(zones), "min", a.cfg.MinZones)
		ipa.AWBStatusKey.Set(ctx.Frame, a.status)
		return
	}

	gains, temp, ok := GreyWorld(zones)
	if !ok {
		a.log.Debug(pkg + "degenerate channel means, holding gains")
		ipa.AWBStatusKey.Set(ctx.Frame, a.status)
		return
	}
	a.status = ipa.AWBStatus{Gains: gains, Temperature: temp, Updated: true}
	a.log.Debug(pkg+"new gains", "red", gains.R, "blue", gains.B, "temperature", temp, "zones", len(zones))
	ipa.AWBStatusKey.Set(ctx.Frame, a.status)
}

// GreyWorld returns the white balance gains that make the mean of zones
// grey, and the colour temperature of the estimate. Zones are ordered by
// their green to red ratio and the top and bottom quarters dropped before
// averaging; the blue gain is found the same way. The green gain is always
// 1. ok is false if a channel mean is zero.
func GreyWorld(zones []stats.RGB) (gains stats.RGB, temperature float64, ok bool) {
	red := trimmed(zones, func(z stats.RGB) float64 { return ratio(z.G, z.R) })
	blue := trimmed(zones, func(z stats.RGB) float64 { return ratio(z.G, z.B) })

	redR, redG := channelMeans(red, func(z stats.RGB) float64 { return z.R }, func(z stats.RGB) float64 { return z.G })
	blueB, blueG := channelMeans(blue, func(z stats.RGB) float64 { return z.B }, func(z stats.RGB) float64 { return z.G })
	if redR == 0 || blueB == 0 {
		return stats.RGB{}, 0, false
	}

	gains = stats.RGB{R: redG / redR, G: 1, B: blueG / blueB}
	return gains, EstimateCCT(redR, redG, blueB), true
}

// trimmed returns zones sorted by key with the top and bottom quarters
// removed.
func trimmed(zones []stats.RGB, key func(stats.RGB) float64) []stats.RGB {
	s := append([]stats.RGB(nil), zones...)
	sort.SliceStable(s, func(i, j int) bool { return key(s[i]) < key(s[j]) })
	discard := len(s) / 4
	return s[discard : len(s)-discard]
}

func channelMeans(zones []stats.RGB, c0, c1 func(stats.RGB) float64) (float64, float64) {
	a, b := make([]float64, len(zones)), make([]float64, len(zones))
	for i, z := range zones {
		a[i], b[i] = c0(z), c1(z)
	}
	return stat.Mean(a, nil), stat.Mean(b, nil)
}

// ratio returns n/d, ordering zero denominators last.
func ratio(n, d float64) float64 {
	if d == 0 {
		return maxRatio
	}
	return n / d
}

const maxRatio = 1e9

// EstimateCCT returns the correlated colour temperature in Kelvin of the
// sensor RGB triple r, g, b. The triple is converted to CIE XYZ and the
// temperature found from the chromaticity with McCamy's approximation.
func EstimateCCT(r, g, b float64) float64 {
	x := -0.14282*r + 1.54924*g - 0.95641*b
	y := -0.32466*r + 1.57837*g - 0.73191*b
	z := -0.68202*r + 0.77073*g + 0.56332*b

	sum := x + y + z
	if sum == 0 {
		return 0
	}
	cx, cy := x/sum, y/sum
	n := (cx - 0.3320) / (0.1858 - cy)
	return 449*n*n*n + 3525*n*n + 6823.3*n + 5520.33
}
