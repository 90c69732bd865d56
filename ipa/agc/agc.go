/*
DESCRIPTION
  agc.go provides Agc, the automatic exposure and gain control algorithm.
  Agc meters the scene from the statistics grid, computes the gain needed
  to reach a target brightness, filters the resulting total exposure and
  divides it into shutter time and analogue gain.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package agc provides an automatic exposure and gain control algorithm.
package agc

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ausocean/camstack/ipa"
	"github.com/ausocean/camstack/ipa/histogram"
	"github.com/ausocean/camstack/ipa/stats"
	"github.com/ausocean/utils/logging"
)

const pkg = "agc: "

// Metering selects how zones are weighted when estimating scene brightness.
type Metering int

// Metering modes.
const (
	MeteringAverage Metering = iota // Every zone counts equally.
	MeteringCentre                  // Centre zones dominate.
)

// ParseMetering returns the Metering named by s.
func ParseMetering(s string) (Metering, error) {
	switch strings.ToLower(s) {
	case "average":
		return MeteringAverage, nil
	case "centre", "center":
		return MeteringCentre, nil
	default:
		return 0, fmt.Errorf("unknown metering mode: %q", s)
	}
}

func (m Metering) String() string {
	if m == MeteringCentre {
		return "centre"
	}
	return "average"
}

// Defaults for Config fields left at zero.
const (
	DefaultTargetLuma      = 0.162
	DefaultHistogramTarget = 0.5 // Target for the top 2% of the histogram.
	DefaultMinGain         = 1.0
	DefaultMaxGain         = 8.0
	DefaultMaxShutter      = 60 * time.Millisecond
	DefaultStartupFrames   = 10
	DefaultFilterSpeed     = 0.2
	DefaultMaxSatRatio     = 255 * 20 / 100
)

// Loop constants.
const (
	maxPasses       = 8    // Luma iteration passes.
	maxExtraGain    = 10.0 // Largest gain step per pass.
	passTolerance   = 1.01 // Stop iterating below this step.
	convergedMargin = 0.01 // Gain within this of unity is well exposed.
)

// Config holds the tuning of Agc. Shutter and gain limits are intersected
// with the sensor limits at configuration.
type Config struct {
	Metering        Metering
	TargetLuma      float64
	HistogramTarget float64
	MinShutter      time.Duration
	MaxShutter      time.Duration
	MinGain         float64
	MaxGain         float64
	StartupFrames   int
	FilterSpeed     float64
	MaxSatRatio     uint8
}

func (c *Config) defaults() {
	if c.TargetLuma <= 0 {
		c.TargetLuma = DefaultTargetLuma
	}
	if c.HistogramTarget <= 0 {
		c.HistogramTarget = DefaultHistogramTarget
	}
	if c.MinGain <= 0 {
		c.MinGain = DefaultMinGain
	}
	if c.MaxGain <= 0 {
		c.MaxGain = DefaultMaxGain
	}
	if c.MaxShutter <= 0 {
		c.MaxShutter = DefaultMaxShutter
	}
	if c.StartupFrames <= 0 {
		c.StartupFrames = DefaultStartupFrames
	}
	if c.FilterSpeed <= 0 || c.FilterSpeed > 1 {
		c.FilterSpeed = DefaultFilterSpeed
	}
}

// Agc implements ipa.Algorithm.
type Agc struct {
	log logging.Logger
	cfg Config

	agg     *stats.Aggregator
	weights []float64

	minShutter, maxShutter time.Duration
	minGain, maxGain       float64

	state      ipa.AGCState
	frameCount int
	shutter    time.Duration
	gain       float64
	filtered   time.Duration
}

// New returns an unconfigured Agc.
func New(log logging.Logger, c Config) *Agc {
	c.defaults()
	return &Agc{log: log, cfg: c, state: ipa.AGCUninitialized}
}

// Name implements ipa.Algorithm.
func (a *Agc) Name() string { return "agc" }

// State returns the state of the control loop.
func (a *Agc) State() ipa.AGCState { return a.state }

// Configure implements ipa.Algorithm. The exposure is seeded at the shortest
// shutter time and lowest gain.
func (a *Agc) Configure(ctx *ipa.Context) error {
	a.state = ipa.AGCUninitialized
	sensor := ctx.Configuration

	a.minShutter = maxDuration(sensor.MinShutter(), a.cfg.MinShutter)
	a.maxShutter = minDuration(sensor.MaxShutter(), a.cfg.MaxShutter)
	a.minGain = math.Max(sensor.MinGain(), a.cfg.MinGain)
	a.maxGain = math.Min(sensor.MaxGain(), a.cfg.MaxGain)
	if a.minShutter > a.maxShutter {
		return fmt.Errorf("empty shutter range %v to %v", a.minShutter, a.maxShutter)
	}
	if a.minGain > a.maxGain {
		return fmt.Errorf("empty gain range %v to %v", a.minGain, a.maxGain)
	}

	agg, err := stats.NewAggregator(sensor.Grid, zonesX, zonesY, a.cfg.MaxSatRatio)
	if err != nil {
		return fmt.Errorf("could not create aggregator: %w", err)
	}
	a.agg = agg
	a.weights = weightsFor(a.cfg.Metering)

	a.frameCount = 0
	a.filtered = 0
	a.shutter = a.minShutter
	a.gain = a.minGain
	a.state = ipa.AGCMeasuring

	ipa.AGCStatusKey.Set(ctx.Session, a.status(false))
	a.log.Debug(pkg+"configured", "minShutter", a.minShutter, "maxShutter", a.maxShutter,
		"minGain", a.minGain, "maxGain", a.maxGain, "metering", a.cfg.Metering.String())
	return nil
}

// Prepare implements ipa.Algorithm. Exposure is applied through sensor
// controls so nothing is written to the ISP parameters.
func (a *Agc) Prepare(ctx *ipa.Context, p *ipa.Params) {}

// Process implements ipa.Algorithm.
func (a *Agc) Process(ctx *ipa.Context, f *stats.Frame) {
	if a.state == ipa.AGCUninitialized {
		return
	}

	regions, err := a.agg.Aggregate(f)
	if err != nil {
		a.log.Warning(pkg+"could not aggregate statistics", "error", err)
		ipa.AGCStatusKey.Set(ctx.Frame, a.status(false))
		return
	}
	zones := fold(regions)
	if valid(zones) == 0 {
		a.log.Debug(pkg + "no valid samples, holding exposure")
		ipa.AGCStatusKey.Set(ctx.Frame, a.status(false))
		return
	}

	// Use the settings in effect for this frame when known.
	if s, ok := ipa.SensorStatusKey.Get(ctx.Frame); ok {
		a.shutter, a.gain = s.ShutterTime, s.AnalogueGain
	}
	awb := stats.RGB{R: 1, G: 1, B: 1}
	if s, ok := ipa.AWBStatusKey.Get(ctx.Frame); ok {
		awb = s.Gains
	}

	h := histogram.New(stats.GreenHistogram(f, a.cfg.MaxSatRatio))
	evGain := HistogramGain(h, a.cfg.HistogramTarget)

	// Zones with zero weight may hold every valid sample, in which case the
	// luma estimate is meaningless and only the histogram is used.
	var yGain float64
	var passes int
	if weightedCount(zones, a.weights) > 0 {
		yGain, passes = ComputeGain(func(g float64) float64 { return luma(zones, a.weights, awb, g) }, a.cfg.TargetLuma)
	}
	gain := math.Max(evGain, yGain)
	a.log.Debug(pkg+"measured", "evGain", evGain, "yGain", yGain, "passes", passes,
		"shutter", a.shutter, "gain", a.gain)

	defer func() { a.frameCount++ }()

	if math.Abs(gain-1) < convergedMargin {
		a.state = ipa.AGCConverged
		ipa.AGCStatusKey.Set(ctx.Frame, a.status(false))
		return
	}
	a.state = ipa.AGCConverging

	prev := scale(a.shutter, a.gain)
	current := scale(prev, gain)
	if limit := scale(a.maxShutter, a.maxGain); current > limit {
		current = limit
	}
	a.filter(current)
	a.shutter, a.gain = a.divide(a.filtered)

	ipa.AGCStatusKey.Set(ctx.Frame, a.status(true))
}

func (a *Agc) status(updated bool) ipa.AGCStatus {
	return ipa.AGCStatus{ShutterTime: a.shutter, AnalogueGain: a.gain, State: a.state, Updated: updated}
}

// filter moves the filtered exposure towards current. The move is complete
// during startup, faster when close to the target, and otherwise a fixed
// proportion of the difference.
func (a *Agc) filter(current time.Duration) {
	speed := a.cfg.FilterSpeed
	if a.frameCount < a.cfg.StartupFrames {
		speed = 1
	}
	if a.filtered == 0 {
		a.filtered = current
		return
	}
	if float64(a.filtered) < 1.2*float64(current) && float64(a.filtered) > 0.8*float64(current) {
		speed = math.Sqrt(speed)
	}
	a.filtered = time.Duration(speed*float64(current) + (1-speed)*float64(a.filtered))
}

// divide splits a total exposure into shutter time and analogue gain,
// lengthening the shutter before raising the gain.
func (a *Agc) divide(exposure time.Duration) (time.Duration, float64) {
	shutter := clampDuration(scale(exposure, 1/a.minGain), a.minShutter, a.maxShutter)
	gain := math.Max(a.minGain, math.Min(a.maxGain, float64(exposure)/float64(shutter)))
	return shutter, gain
}

// ComputeGain iterates the gain needed for luma to reach target, returning
// the gain and the number of passes taken. luma gives the normalised
// brightness of the scene after applying a gain; it may saturate, so the
// estimate is refined up to maxPasses times.
func ComputeGain(luma func(gain float64) float64, target float64) (gain float64, passes int) {
	gain = 1.0
	for passes < maxPasses {
		extra := math.Min(maxExtraGain, target/(luma(gain)+0.001))
		gain *= extra
		passes++
		if extra < passTolerance {
			break
		}
	}
	return gain, passes
}

// HistogramGain returns the gain needed to bring the mean of the top 2% of
// h to target, a proportion of the histogram range.
func HistogramGain(h *histogram.Histogram, target float64) float64 {
	return target * float64(h.Bins()) / h.InterQuantileMean(0.98, 1.0)
}

func scale(d time.Duration, g float64) time.Duration { return time.Duration(float64(d) * g) }

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

func minDuration(a, b time.Duration) time.Duration {
	if b > 0 && b < a {
		return b
	}
	return a
}

func maxDuration(a, b time.Duration) time.Duration {
	if b > a {
		return b
	}
	return a
}
