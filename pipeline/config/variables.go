/*
DESCRIPTION
  variables.go contains a list of structs that provide a variable Name, type in
  a string format, a function for updating the variable in the Config struct
  from a string, and finally, a validation function to check the validity of the
  corresponding field value in the Config.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ausocean/utils/logging"
)

// Config map Keys.
const (
	KeyAlgorithms     = "Algorithms"
	KeyExposureDelay  = "ExposureDelay"
	KeyFilterSpeed    = "FilterSpeed"
	KeyFocusDelay     = "FocusDelay"
	KeyFrameRate      = "FrameRate"
	KeyGainDelay      = "GainDelay"
	KeyGainUnit       = "GainUnit"
	KeyGamma          = "Gamma"
	KeyGridHeight     = "GridHeight"
	KeyGridWidth      = "GridWidth"
	KeyHistoryDepth   = "HistoryDepth"
	KeyIsolated       = "Isolated"
	KeyLineDuration   = "LineDuration"
	KeyLogging        = "logging"
	KeyMaxGain        = "MaxGain"
	KeyMaxShutter     = "MaxShutter"
	KeyMetering       = "Metering"
	KeyMinAWBZones    = "MinAWBZones"
	KeyMinGain        = "MinGain"
	KeyMinShutter     = "MinShutter"
	KeyMinZoneCounted = "MinZoneCounted"
	KeyMinZoneGreen   = "MinZoneGreen"
	KeyParamBuffers   = "ParamBuffers"
	KeyProxyChunks    = "ProxyChunks"
	KeyProxyChunkSize = "ProxyChunkSize"
	KeyProxyTimeout   = "ProxyTimeout"
	KeyRawBuffers     = "RawBuffers"
	KeyStartupFrames  = "StartupFrames"
	KeyStatBuffers    = "StatBuffers"
	KeySuppress       = "Suppress"
	KeyTargetLuma     = "TargetLuma"
	KeyZonesX         = "ZonesX"
	KeyZonesY         = "ZonesY"
)

// Config map parameter types.
const (
	typeUint  = "uint"
	typeBool  = "bool"
	typeFloat = "float"
)

// Default variable values.
const (
	// General session defaults.
	defaultVerbosity  = logging.Info
	defaultFrameRate  = 30
	defaultGridWidth  = 16
	defaultGridHeight = 12

	// Buffer defaults.
	defaultRawBuffers   = 4
	defaultParamBuffers = 4
	defaultStatBuffers  = 4
	defaultHistoryDepth = 16

	// Sensor defaults.
	defaultLineDuration  = 10 * time.Microsecond
	defaultExposureDelay = 2
	defaultGainDelay     = 1
	defaultFocusDelay    = 1
	defaultGainUnit      = 256

	// White balance defaults.
	defaultZonesX         = 8
	defaultZonesY         = 6
	defaultMinZoneCounted = 2
	defaultMinZoneGreen   = 16
	defaultMinAWBZones    = 10

	// Exposure defaults.
	defaultTargetLuma    = 0.162
	defaultMaxShutter    = 60 * time.Millisecond
	defaultMinGain       = 1.0
	defaultMaxGain       = 8.0
	defaultStartupFrames = 10
	defaultFilterSpeed   = 0.2

	// Contrast defaults.
	defaultGamma = 1.1

	// Proxy defaults.
	defaultProxyChunkSize = 256
	defaultProxyChunks    = 64
	defaultProxyTimeout   = 10 * time.Millisecond
)

var defaultAlgorithms = []uint8{AlgoAWB, AlgoAGC, AlgoContrast}

// Variables describes the variables that can be used for session control.
// These structs provide the name and type of variable, a function for updating
// this variable in a Config, and a function for validating the value of the variable.
var Variables = []struct {
	Name     string
	Type     string
	Update   func(*Config, string)
	Validate func(*Config)
}{
	{
		Name: KeyAlgorithms,
		Type: "enums:AWB,AGC,Contrast,AF",
		Update: func(c *Config, v string) {
			algos := strings.Split(v, ",")
			m := map[string]uint8{"awb": AlgoAWB, "agc": AlgoAGC, "contrast": AlgoContrast, "af": AlgoAF}
			c.Algorithms = make([]uint8, 0, len(algos))
			for _, algo := range algos {
				a, ok := m[strings.ToLower(strings.TrimSpace(algo))]
				if !ok {
					c.Logger.Warning("invalid Algorithms param", "value", algo)
					continue
				}
				c.Algorithms = append(c.Algorithms, a)
			}
		},
		Validate: func(c *Config) {
			if len(c.Algorithms) == 0 {
				c.LogInvalidField(KeyAlgorithms, defaultAlgorithms)
				c.Algorithms = append([]uint8(nil), defaultAlgorithms...)
			}
		},
	},
	{
		Name:   KeyExposureDelay,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.ExposureDelay = parseUint(KeyExposureDelay, v, c) },
		Validate: func(c *Config) {
			c.ExposureDelay = lessThanOrEqual(KeyExposureDelay, c.ExposureDelay, 0, c, defaultExposureDelay)
		},
	},
	{
		Name:   KeyFilterSpeed,
		Type:   typeFloat,
		Update: func(c *Config, v string) { c.FilterSpeed = parseFloat(KeyFilterSpeed, v, c) },
		Validate: func(c *Config) {
			if c.FilterSpeed <= 0 || c.FilterSpeed > 1 {
				c.LogInvalidField(KeyFilterSpeed, defaultFilterSpeed)
				c.FilterSpeed = defaultFilterSpeed
			}
		},
	},
	{
		Name:   KeyFocusDelay,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.FocusDelay = parseUint(KeyFocusDelay, v, c) },
		Validate: func(c *Config) {
			c.FocusDelay = lessThanOrEqual(KeyFocusDelay, c.FocusDelay, 0, c, defaultFocusDelay)
		},
	},
	{
		Name:   KeyFrameRate,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.FrameRate = parseUint(KeyFrameRate, v, c) },
		Validate: func(c *Config) {
			if c.FrameRate <= 0 || c.FrameRate > 120 {
				c.LogInvalidField(KeyFrameRate, defaultFrameRate)
				c.FrameRate = defaultFrameRate
			}
		},
	},
	{
		Name:   KeyGainDelay,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.GainDelay = parseUint(KeyGainDelay, v, c) },
		Validate: func(c *Config) {
			c.GainDelay = lessThanOrEqual(KeyGainDelay, c.GainDelay, 0, c, defaultGainDelay)
		},
	},
	{
		Name:   KeyGainUnit,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.GainUnit = parseUint(KeyGainUnit, v, c) },
		Validate: func(c *Config) {
			c.GainUnit = lessThanOrEqual(KeyGainUnit, c.GainUnit, 0, c, defaultGainUnit)
		},
	},
	{
		Name:   KeyGamma,
		Type:   typeFloat,
		Update: func(c *Config, v string) { c.Gamma = parseFloat(KeyGamma, v, c) },
		Validate: func(c *Config) {
			if c.Gamma <= 0 {
				c.LogInvalidField(KeyGamma, defaultGamma)
				c.Gamma = defaultGamma
			}
		},
	},
	{
		Name:   KeyGridHeight,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.GridHeight = parseUint(KeyGridHeight, v, c) },
		Validate: func(c *Config) {
			c.GridHeight = lessThanOrEqual(KeyGridHeight, c.GridHeight, 0, c, defaultGridHeight)
		},
	},
	{
		Name:   KeyGridWidth,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.GridWidth = parseUint(KeyGridWidth, v, c) },
		Validate: func(c *Config) {
			c.GridWidth = lessThanOrEqual(KeyGridWidth, c.GridWidth, 0, c, defaultGridWidth)
		},
	},
	{
		Name:   KeyHistoryDepth,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.HistoryDepth = parseUint(KeyHistoryDepth, v, c) },
		Validate: func(c *Config) {
			// Delays are validated first, so the history must exceed the larger.
			c.HistoryDepth = lessThanOrEqual(KeyHistoryDepth, c.HistoryDepth, c.MaxDelay(), c, defaultHistoryDepth)
		},
	},
	{
		Name:   KeyIsolated,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.Isolated = parseBool(KeyIsolated, v, c) },
	},
	{
		Name: KeyLineDuration,
		Type: typeUint,
		Update: func(c *Config, v string) {
			c.LineDuration = time.Duration(parseUint(KeyLineDuration, v, c)) * time.Nanosecond
		},
		Validate: func(c *Config) {
			if c.LineDuration <= 0 {
				c.LogInvalidField(KeyLineDuration, defaultLineDuration)
				c.LineDuration = defaultLineDuration
			}
		},
	},
	{
		Name: KeyLogging,
		Type: "enum:Debug,Info,Warning,Error,Fatal",
		Update: func(c *Config, v string) {
			switch v {
			case "Debug":
				c.LogLevel = logging.Debug
			case "Info":
				c.LogLevel = logging.Info
			case "Warning":
				c.LogLevel = logging.Warning
			case "Error":
				c.LogLevel = logging.Error
			case "Fatal":
				c.LogLevel = logging.Fatal
			default:
				c.Logger.Warning("invalid Logging param", "value", v)
			}
		},
		Validate: func(c *Config) {
			switch c.LogLevel {
			case logging.Debug, logging.Info, logging.Warning, logging.Error, logging.Fatal:
			default:
				c.LogInvalidField("LogLevel", defaultVerbosity)
				c.LogLevel = defaultVerbosity
			}
		},
	},
	{
		Name:   KeyMaxGain,
		Type:   typeFloat,
		Update: func(c *Config, v string) { c.MaxGain = parseFloat(KeyMaxGain, v, c) },
		Validate: func(c *Config) {
			if c.MaxGain < 1 {
				c.LogInvalidField(KeyMaxGain, defaultMaxGain)
				c.MaxGain = defaultMaxGain
			}
		},
	},
	{
		Name: KeyMaxShutter,
		Type: typeUint,
		Update: func(c *Config, v string) {
			c.MaxShutter = time.Duration(parseUint(KeyMaxShutter, v, c)) * time.Microsecond
		},
		Validate: func(c *Config) {
			if c.MaxShutter <= 0 {
				c.LogInvalidField(KeyMaxShutter, defaultMaxShutter)
				c.MaxShutter = defaultMaxShutter
			}
		},
	},
	{
		Name: KeyMetering,
		Type: "enum:average,centre",
		Update: func(c *Config, v string) {
			c.Metering = parseEnum(KeyMetering, v, map[string]uint8{"average": MeteringAverage, "centre": MeteringCentre}, c)
		},
	},
	{
		Name:   KeyMinAWBZones,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.MinAWBZones = parseUint(KeyMinAWBZones, v, c) },
		Validate: func(c *Config) {
			c.MinAWBZones = lessThanOrEqual(KeyMinAWBZones, c.MinAWBZones, 0, c, defaultMinAWBZones)
		},
	},
	{
		Name:   KeyMinGain,
		Type:   typeFloat,
		Update: func(c *Config, v string) { c.MinGain = parseFloat(KeyMinGain, v, c) },
		Validate: func(c *Config) {
			if c.MinGain < 1 || c.MinGain > c.MaxGain {
				c.LogInvalidField(KeyMinGain, defaultMinGain)
				c.MinGain = defaultMinGain
			}
		},
	},
	{
		Name: KeyMinShutter,
		Type: typeUint,
		Update: func(c *Config, v string) {
			c.MinShutter = time.Duration(parseUint(KeyMinShutter, v, c)) * time.Microsecond
		},
		Validate: func(c *Config) {
			if c.MinShutter < 0 || c.MinShutter > c.MaxShutter {
				c.LogInvalidField(KeyMinShutter, 0)
				c.MinShutter = 0
			}
		},
	},
	{
		Name:   KeyMinZoneCounted,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.MinZoneCounted = parseUint(KeyMinZoneCounted, v, c) },
		Validate: func(c *Config) {
			c.MinZoneCounted = lessThanOrEqual(KeyMinZoneCounted, c.MinZoneCounted, 0, c, defaultMinZoneCounted)
		},
	},
	{
		Name:   KeyMinZoneGreen,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.MinZoneGreen = parseUint(KeyMinZoneGreen, v, c) },
		Validate: func(c *Config) {
			if c.MinZoneGreen == 0 || c.MinZoneGreen > 255 {
				c.LogInvalidField(KeyMinZoneGreen, defaultMinZoneGreen)
				c.MinZoneGreen = defaultMinZoneGreen
			}
		},
	},
	{
		Name:   KeyParamBuffers,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.ParamBuffers = parseUint(KeyParamBuffers, v, c) },
		Validate: func(c *Config) {
			c.ParamBuffers = lessThanOrEqual(KeyParamBuffers, c.ParamBuffers, 0, c, defaultParamBuffers)
		},
	},
	{
		Name:   KeyProxyChunks,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.ProxyChunks = parseUint(KeyProxyChunks, v, c) },
		Validate: func(c *Config) {
			c.ProxyChunks = lessThanOrEqual(KeyProxyChunks, c.ProxyChunks, 0, c, defaultProxyChunks)
		},
	},
	{
		Name:   KeyProxyChunkSize,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.ProxyChunkSize = parseUint(KeyProxyChunkSize, v, c) },
		Validate: func(c *Config) {
			c.ProxyChunkSize = lessThanOrEqual(KeyProxyChunkSize, c.ProxyChunkSize, 0, c, defaultProxyChunkSize)
		},
	},
	{
		Name: KeyProxyTimeout,
		Type: typeUint,
		Update: func(c *Config, v string) {
			c.ProxyTimeout = time.Duration(parseUint(KeyProxyTimeout, v, c)) * time.Millisecond
		},
		Validate: func(c *Config) {
			if c.ProxyTimeout <= 0 {
				c.LogInvalidField(KeyProxyTimeout, defaultProxyTimeout)
				c.ProxyTimeout = defaultProxyTimeout
			}
		},
	},
	{
		Name:   KeyRawBuffers,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.RawBuffers = parseUint(KeyRawBuffers, v, c) },
		Validate: func(c *Config) {
			c.RawBuffers = lessThanOrEqual(KeyRawBuffers, c.RawBuffers, 0, c, defaultRawBuffers)
		},
	},
	{
		Name:   KeyStartupFrames,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.StartupFrames = parseUint(KeyStartupFrames, v, c) },
		Validate: func(c *Config) {
			c.StartupFrames = lessThanOrEqual(KeyStartupFrames, c.StartupFrames, 0, c, defaultStartupFrames)
		},
	},
	{
		Name:   KeyStatBuffers,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.StatBuffers = parseUint(KeyStatBuffers, v, c) },
		Validate: func(c *Config) {
			c.StatBuffers = lessThanOrEqual(KeyStatBuffers, c.StatBuffers, 0, c, defaultStatBuffers)
		},
	},
	{
		Name: KeySuppress,
		Type: typeBool,
		Update: func(c *Config, v string) {
			c.Suppress = parseBool(KeySuppress, v, c)
			if l, ok := c.Logger.(*logging.JSONLogger); ok {
				l.SetSuppress(c.Suppress)
			}
		},
	},
	{
		Name:   KeyTargetLuma,
		Type:   typeFloat,
		Update: func(c *Config, v string) { c.TargetLuma = parseFloat(KeyTargetLuma, v, c) },
		Validate: func(c *Config) {
			if c.TargetLuma <= 0 || c.TargetLuma >= 1 {
				c.LogInvalidField(KeyTargetLuma, defaultTargetLuma)
				c.TargetLuma = defaultTargetLuma
			}
		},
	},
	{
		Name:   KeyZonesX,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.ZonesX = parseUint(KeyZonesX, v, c) },
		Validate: func(c *Config) {
			if c.ZonesX == 0 || c.ZonesX > c.GridWidth {
				def := uint(defaultZonesX)
				if def > c.GridWidth {
					def = c.GridWidth
				}
				c.LogInvalidField(KeyZonesX, def)
				c.ZonesX = def
			}
		},
	},
	{
		Name:   KeyZonesY,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.ZonesY = parseUint(KeyZonesY, v, c) },
		Validate: func(c *Config) {
			if c.ZonesY == 0 || c.ZonesY > c.GridHeight {
				def := uint(defaultZonesY)
				if def > c.GridHeight {
					def = c.GridHeight
				}
				c.LogInvalidField(KeyZonesY, def)
				c.ZonesY = def
			}
		},
	},
}

func parseUint(n, v string, c *Config) uint {
	_v, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		c.Logger.Warning(fmt.Sprintf("expected unsigned int for param %s", n), "value", v)
	}
	return uint(_v)
}

func parseFloat(n, v string, c *Config) float64 {
	_v, err := strconv.ParseFloat(v, 64)
	if err != nil {
		c.Logger.Warning(fmt.Sprintf("expected float for param %s", n), "value", v)
	}
	return _v
}

func parseBool(n, v string, c *Config) (b bool) {
	switch strings.ToLower(v) {
	case "true":
		b = true
	case "false":
		b = false
	default:
		c.Logger.Warning(fmt.Sprintf("expect bool for param %s", n), "value", v)
	}
	return
}

func parseEnum(n, v string, enums map[string]uint8, c *Config) uint8 {
	_v, ok := enums[strings.ToLower(v)]
	if !ok {
		c.Logger.Warning(fmt.Sprintf("invalid value for %s param", n), "value", v)
	}
	return _v
}

func lessThanOrEqual(n string, v, cmp uint, c *Config, def uint) uint {
	if v <= cmp {
		c.LogInvalidField(n, def)
		return def
	}
	return v
}
