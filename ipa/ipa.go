/*
DESCRIPTION
  ipa.go provides the Algorithm interface implemented by the image
  processing algorithms, the Context they share, and the status values they
  publish to the shared metadata.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package ipa provides the image processing algorithm host. The host fills
// ISP parameter buffers and turns ISP statistics into sensor control
// updates and per-frame metadata by running an ordered list of algorithms
// against a shared context.
package ipa

import (
	"errors"
	"math"
	"time"

	"github.com/ausocean/camstack/device"
	"github.com/ausocean/camstack/ipa/metadata"
	"github.com/ausocean/camstack/ipa/stats"
)

// Errors returned by the host.
var (
	ErrNotConfigured = errors.New("ipa not configured")
	ErrUnknownBuffer = errors.New("unknown buffer")
	ErrUnknownEvent  = errors.New("unknown event")
)

// Algorithm is implemented by each image processing algorithm. The host
// calls Configure once per stream configuration, Prepare for every
// parameter buffer and Process for every statistics buffer, always from a
// single goroutine.
type Algorithm interface {
	// Name returns the name of the algorithm.
	Name() string

	// Configure resets the algorithm for the configuration in ctx.
	Configure(ctx *Context) error

	// Prepare writes the algorithm's contribution to the ISP parameters.
	Prepare(ctx *Context, p *Params)

	// Process consumes the statistics of a frame and publishes results to
	// ctx.Frame.
	Process(ctx *Context, f *stats.Frame)
}

// Context is shared by the algorithms of a session.
type Context struct {
	Configuration Configuration

	// Session accumulates the most recent result published under each key.
	Session *metadata.Metadata

	// Frame holds the results for the frame being processed.
	Frame *metadata.Metadata
}

// Configuration describes the stream and sensor limits the algorithms run
// against.
type Configuration struct {
	Grid         stats.Grid
	LineDuration time.Duration
	GainUnit     float64 // Sensor gain code for unity gain.

	MinExposure int32 // Lines.
	MaxExposure int32
	MinGainCode int32
	MaxGainCode int32

	// Lens position range, valid only if HasFocus.
	HasFocus bool
	MinFocus int32
	MaxFocus int32
}

// MinShutter returns the shortest shutter time the sensor supports.
func (c Configuration) MinShutter() time.Duration { return c.ShutterTime(c.MinExposure) }

// MaxShutter returns the longest shutter time the sensor supports.
func (c Configuration) MaxShutter() time.Duration { return c.ShutterTime(c.MaxExposure) }

// MinGain returns the smallest analogue gain the sensor supports.
func (c Configuration) MinGain() float64 { return c.Gain(c.MinGainCode) }

// MaxGain returns the largest analogue gain the sensor supports.
func (c Configuration) MaxGain() float64 { return c.Gain(c.MaxGainCode) }

// ShutterTime converts an exposure in lines to a duration.
func (c Configuration) ShutterTime(lines int32) time.Duration {
	return time.Duration(lines) * c.LineDuration
}

// ExposureLines converts a shutter time to whole lines within the sensor
// limits.
func (c Configuration) ExposureLines(d time.Duration) int32 {
	if c.LineDuration <= 0 {
		return c.MinExposure
	}
	return clamp32(int32(d/c.LineDuration), c.MinExposure, c.MaxExposure)
}

// Gain converts a sensor gain code to an analogue gain.
func (c Configuration) Gain(code int32) float64 {
	if c.GainUnit <= 0 {
		return 1
	}
	return float64(code) / c.GainUnit
}

// GainCode converts an analogue gain to a sensor gain code within the
// sensor limits.
func (c Configuration) GainCode(g float64) int32 {
	return clamp32(int32(math.Round(g*c.GainUnit)), c.MinGainCode, c.MaxGainCode)
}

func clamp32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SensorStatus holds the sensor settings in effect for a frame. Focus is
// the lens position, valid only if HasFocus.
type SensorStatus struct {
	Exposure     int32
	GainCode     int32
	ShutterTime  time.Duration
	AnalogueGain float64
	Focus        int32
	HasFocus     bool
}

// AGCState is the state of the exposure control loop.
type AGCState int

// Exposure control states.
const (
	AGCUninitialized AGCState = iota
	AGCMeasuring
	AGCConverging
	AGCConverged
)

func (s AGCState) String() string {
	switch s {
	case AGCUninitialized:
		return "uninitialized"
	case AGCMeasuring:
		return "measuring"
	case AGCConverging:
		return "converging"
	case AGCConverged:
		return "converged"
	default:
		return "unknown"
	}
}

// AGCStatus is published by the exposure algorithm for each frame. Updated
// is false when the frame produced no new exposure.
type AGCStatus struct {
	ShutterTime  time.Duration
	AnalogueGain float64
	State        AGCState
	Updated      bool
}

// AWBStatus is published by the white balance algorithm for each frame.
type AWBStatus struct {
	Gains       stats.RGB
	Temperature float64 // Kelvin.
	Updated     bool
}

// AFState is the state of the focus search.
type AFState int

// Focus states.
const (
	AFScanning AFState = iota
	AFFocused
)

func (s AFState) String() string {
	switch s {
	case AFScanning:
		return "scanning"
	case AFFocused:
		return "focused"
	default:
		return "unknown"
	}
}

// AFStatus is published by the focus algorithm for each frame.
// LensPosition is the position requested of the lens and Contrast the
// focus measure of the frame. Updated is true when a new lens position
// should be written.
type AFStatus struct {
	LensPosition int32
	State        AFState
	Contrast     float64
	Updated      bool
}

// Metadata keys shared by the algorithms.
var (
	SensorStatusKey = metadata.NewKey[SensorStatus]("sensor.status")
	AGCStatusKey    = metadata.NewKey[AGCStatus]("agc.status")
	AWBStatusKey    = metadata.NewKey[AWBStatus]("awb.status")
	AFStatusKey     = metadata.NewKey[AFStatus]("af.status")
	GammaKey        = metadata.NewKey[float64]("contrast.gamma")
)

// Config is passed to the host when a stream is configured.
type Config struct {
	Grid           stats.Grid
	LineDuration   time.Duration
	GainUnit       float64
	SensorControls map[device.ControlID]device.ControlInfo
}
