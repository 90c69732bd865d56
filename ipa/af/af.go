/*
DESCRIPTION
  af.go provides Af, a contrast detection autofocus algorithm that sweeps
  the lens coarsely across its range, refines around the sharpest coarse
  position and restarts when the scene's focus measure changes.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package af provides a contrast detection autofocus algorithm.
package af

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ausocean/camstack/ipa"
	"github.com/ausocean/camstack/ipa/stats"
	"github.com/ausocean/utils/logging"
)

const pkg = "af: "

// ErrNoLens is returned by Configure when the sensor has no focus control.
var ErrNoLens = errors.New("sensor has no focus control")

// Defaults for Config fields left at zero.
const (
	DefaultCoarseStep = 30
	DefaultFineStep   = 1
	DefaultFineRange  = 0.05
	DefaultMaxChange  = 0.5
	DefaultTolerance  = 0.1
	DefaultMaxWait    = 8
)

// Window is a region of the statistics grid given as fractions of its
// width and height. The zero Window is the whole grid.
type Window struct {
	X, Y, W, H float64
}

// Config holds the tuning of Af.
type Config struct {
	CoarseStep int32 // Lens steps between coarse samples.
	FineStep   int32 // Lens steps between fine samples.

	// FineRange is the half width of the fine search as a fraction of the
	// best coarse position. The fine search always spans at least one
	// coarse step either side.
	FineRange float64

	// A scan continues while the focus measure stays within Tolerance of
	// the best seen, as a fraction of it.
	Tolerance float64

	// Once focused, a relative change in the focus measure above
	// MaxChange restarts the search.
	MaxChange float64

	// MaxWait is the number of frames to wait for the lens to report a
	// requested position before measuring anyway.
	MaxWait int

	Window Window
}

func (c *Config) defaults() {
	if c.CoarseStep <= 0 {
		c.CoarseStep = DefaultCoarseStep
	}
	if c.FineStep <= 0 {
		c.FineStep = DefaultFineStep
	}
	if c.FineRange <= 0 {
		c.FineRange = DefaultFineRange
	}
	if c.Tolerance <= 0 {
		c.Tolerance = DefaultTolerance
	}
	if c.MaxChange <= 0 {
		c.MaxChange = DefaultMaxChange
	}
	if c.MaxWait <= 0 {
		c.MaxWait = DefaultMaxWait
	}
	if c.Window.W <= 0 || c.Window.H <= 0 {
		c.Window = Window{W: 1, H: 1}
	}
}

// Af implements ipa.Algorithm.
type Af struct {
	log logging.Logger
	cfg Config

	low, high int32 // Lens range.

	lens    int32 // Position last requested of the lens.
	sent    bool  // Whether lens has been requested.
	waited  int   // Frames spent waiting for the lens.
	pos     int32 // Position being measured by the scan.
	end     int32 // Last position of the scan.
	best    int32 // Sharpest position of the scan so far.
	peak    float64
	fine    bool
	state   ipa.AFState
	updated bool
}

// New returns an unconfigured Af.
func New(log logging.Logger, c Config) *Af {
	c.defaults()
	return &Af{log: log, cfg: c}
}

// Name implements ipa.Algorithm.
func (a *Af) Name() string { return "af" }

// Configure implements ipa.Algorithm. The search starts from the near end
// of the lens range.
func (a *Af) Configure(ctx *ipa.Context) error {
	c := ctx.Configuration
	if !c.HasFocus || c.MaxFocus <= c.MinFocus {
		return ErrNoLens
	}
	a.low, a.high = c.MinFocus, c.MaxFocus
	a.lens, a.sent = a.low, false
	a.reset()
	ipa.AFStatusKey.Set(ctx.Session, a.status(0))
	return nil
}

// Prepare implements ipa.Algorithm. The lens is driven through sensor
// controls, so there are no ISP parameters.
func (a *Af) Prepare(ctx *ipa.Context, p *ipa.Params) {}

// Process implements ipa.Algorithm.
func (a *Af) Process(ctx *ipa.Context, f *stats.Frame) {
	if a.high <= a.low {
		return
	}
	a.updated = false
	contrast := Contrast(f, a.cfg.Window)

	switch {
	case !a.sent:
		a.request(a.low)
	case !a.arrived(ctx):
	case a.state == ipa.AFFocused:
		a.track(contrast)
	default:
		a.step(contrast)
	}
	ipa.AFStatusKey.Set(ctx.Frame, a.status(contrast))
}

// arrived reports whether the frame was exposed with the requested lens
// position, giving up after MaxWait frames.
func (a *Af) arrived(ctx *ipa.Context) bool {
	s, ok := ipa.SensorStatusKey.Get(ctx.Frame)
	if !ok || !s.HasFocus || s.Focus == a.lens {
		a.waited = 0
		return true
	}
	a.waited++
	if a.waited > a.cfg.MaxWait {
		a.log.Warning(pkg+"lens did not reach requested position", "requested", a.lens, "reported", s.Focus)
		a.waited = 0
		return true
	}
	return false
}

// step takes one sample of the current scan.
func (a *Af) step(contrast float64) {
	if contrast > a.peak {
		a.peak = contrast
		a.best = a.pos
	}
	stepSize := a.cfg.CoarseStep
	if a.fine {
		stepSize = a.cfg.FineStep
	}
	next := a.pos + stepSize
	if next <= a.end && contrast >= a.peak*(1-a.cfg.Tolerance) {
		a.pos = next
		a.request(next)
		return
	}

	if a.fine {
		a.state = ipa.AFFocused
		a.request(a.best)
		a.log.Info(pkg+"focused", "position", a.best, "contrast", a.peak)
		return
	}

	width := int32(math.Round(float64(a.best) * a.cfg.FineRange))
	if width < a.cfg.CoarseStep {
		width = a.cfg.CoarseStep
	}
	a.fine = true
	a.pos = a.clamp(a.best - width)
	a.end = a.clamp(a.best + width)
	a.peak = 0
	a.request(a.pos)
	a.log.Debug(pkg+"coarse scan done", "best", a.best, "from", a.pos, "to", a.end)
}

// track restarts the search if the focus measure has moved too far from
// the focused peak.
func (a *Af) track(contrast float64) {
	if a.peak == 0 {
		if contrast == 0 {
			return
		}
	} else if math.Abs(contrast-a.peak)/a.peak <= a.cfg.MaxChange {
		return
	}
	a.log.Info(pkg+"focus measure changed, rescanning", "peak", a.peak, "contrast", contrast)
	a.reset()
	a.request(a.low)
}

// reset returns the search to the start of a coarse scan.
func (a *Af) reset() {
	a.state = ipa.AFScanning
	a.fine = false
	a.pos, a.end = a.low, a.high
	a.best = a.low
	a.peak = 0
	a.waited = 0
}

// request asks for the lens to move to pos.
func (a *Af) request(pos int32) {
	pos = a.clamp(pos)
	a.updated = !a.sent || pos != a.lens
	a.lens = pos
	a.sent = true
}

func (a *Af) clamp(v int32) int32 {
	if v < a.low {
		return a.low
	}
	if v > a.high {
		return a.high
	}
	return v
}

func (a *Af) status(contrast float64) ipa.AFStatus {
	return ipa.AFStatus{LensPosition: a.lens, State: a.state, Contrast: contrast, Updated: a.updated}
}

// Contrast returns the mean focus response of the cells of f inside w.
func Contrast(f *stats.Frame, w Window) float64 {
	x0, x1 := span(w.X, w.W, f.Grid.Width)
	y0, y1 := span(w.Y, w.H, f.Grid.Height)
	v := make([]float64, 0, (x1-x0)*(y1-y0))
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			v = append(v, float64(f.At(x, y).Focus))
		}
	}
	if len(v) == 0 {
		return 0
	}
	return stat.Mean(v, nil)
}

// span returns the cell range [lo, hi) covered by the fractions start and
// length of n cells, holding at least one cell.
func span(start, length float64, n int) (int, int) {
	lo := int(math.Floor(start * float64(n)))
	hi := int(math.Ceil((start + length) * float64(n)))
	if lo < 0 {
		lo = 0
	}
	if lo > n-1 {
		lo = n - 1
	}
	if hi > n {
		hi = n
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}
