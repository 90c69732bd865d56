/*
DESCRIPTION
  config.go contains the configuration settings for a camera pipeline
  session.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package config contains the configuration settings for a camera pipeline
// session.
package config

import (
	"time"

	"github.com/ausocean/utils/logging"
)

// Metering modes.
const (
	MeteringAverage uint8 = iota
	MeteringCentre
)

// Algorithms that may be run by a session. They always run in the order
// below regardless of the order they are configured in.
const (
	AlgoAWB uint8 = iota
	AlgoAGC
	AlgoContrast
	AlgoAF
)

// Config provides parameters relevant to a pipeline session. A new config
// must be passed to the session's constructor. Default values for these
// fields are defined as consts in variables.go.
type Config struct {
	// Logger holds an implementation of the Logger interface as defined in
	// the logging package. This must be set for the session to work
	// correctly.
	Logger logging.Logger

	// LogLevel is the session logging verbosity level.
	// Valid values are defined by enums from the logging package: logging.Debugging,
	// logging.Info, logging.Warning logging.Error, logging.Fatal.
	LogLevel int8

	Suppress bool // Holds logger suppression state.

	// Algorithms lists the algorithms to run. Valid values are AlgoAWB,
	// AlgoAGC, AlgoContrast and AlgoAF. Autofocus needs a sensor with a
	// focus control and is not run by default.
	Algorithms []uint8

	// Statistics grid geometry, in cells.
	GridWidth  uint
	GridHeight uint

	// White balance zoning. A zone is used only if it holds at least
	// MinZoneCounted unsaturated cells with a green mean of at least
	// MinZoneGreen, and gains are held unless MinAWBZones zones are usable.
	ZonesX         uint
	ZonesY         uint
	MinZoneCounted uint
	MinZoneGreen   uint
	MinAWBZones    uint

	Metering   uint8   // Exposure metering, MeteringAverage or MeteringCentre.
	TargetLuma float64 // Normalised mean brightness the exposure loop aims for.

	MinShutter time.Duration
	MaxShutter time.Duration
	MinGain    float64
	MaxGain    float64

	LineDuration  time.Duration // Time to read one sensor line.
	GainUnit      uint          // Sensor gain code for unity analogue gain.
	StartupFrames uint          // Frames for which the exposure filter is bypassed.
	FilterSpeed   float64       // Exposure filter step, 0 to 1.
	Gamma         float64

	// Frames between writing a sensor control and it taking effect.
	ExposureDelay uint
	GainDelay     uint
	FocusDelay    uint

	FrameRate    uint // Simulated frame rate.
	RawBuffers   uint
	ParamBuffers uint
	StatBuffers  uint
	HistoryDepth uint // Positions of control history kept.

	// Isolated runs the algorithms behind a serialising proxy. The proxy
	// queues up to ProxyChunks events of at most ProxyChunkSize bytes and
	// polls for them every ProxyTimeout.
	Isolated       bool
	ProxyChunkSize uint
	ProxyChunks    uint
	ProxyTimeout   time.Duration
}

// Validate checks for any errors in the config fields and defaults settings
// if particular parameters have not been defined.
func (c *Config) Validate() error {
	for _, v := range Variables {
		if v.Validate != nil {
			v.Validate(c)
		}
	}
	return nil
}

// Update takes a map of configuration variable names and their corresponding
// values, parses the string values and converting into correct type, and then
// sets the config struct fields as appropriate.
func (c *Config) Update(vars map[string]string) {
	for _, value := range Variables {
		if v, ok := vars[value.Name]; ok && value.Update != nil {
			value.Update(c, v)
		}
	}
}

// LogInvalidField logs that the named field was invalid and defaulted.
func (c *Config) LogInvalidField(name string, def interface{}) {
	c.Logger.Info(name+" bad or unset, defaulting", name, def)
}

// Has reports whether algorithm a is configured to run.
func (c *Config) Has(a uint8) bool {
	for _, v := range c.Algorithms {
		if v == a {
			return true
		}
	}
	return false
}

// MaxDelay returns the largest of the control delays.
func (c *Config) MaxDelay() uint {
	d := c.ExposureDelay
	for _, v := range []uint{c.GainDelay, c.FocusDelay} {
		if v > d {
			d = v
		}
	}
	return d
}
