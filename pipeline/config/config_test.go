/*
DESCRIPTION
  config_test.go provides testing for configuration functionality found in
  config.go and variables.go.

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
	"testing"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/google/go-cmp/cmp"
)

type dumbLogger struct{}

func (dl *dumbLogger) Log(l int8, m string, a ...interface{})  {}
func (dl *dumbLogger) SetLevel(l int8)                         {}
func (dl *dumbLogger) Debug(msg string, args ...interface{})   {}
func (dl *dumbLogger) Info(msg string, args ...interface{})    {}
func (dl *dumbLogger) Warning(msg string, args ...interface{}) {}
func (dl *dumbLogger) Error(msg string, args ...interface{})   {}
func (dl *dumbLogger) Fatal(msg string, args ...interface{})   {}

func defaultConfig(l logging.Logger) Config {
	return Config{
		Logger:         l,
		LogLevel:       defaultVerbosity,
		Algorithms:     []uint8{AlgoAWB, AlgoAGC, AlgoContrast},
		GridWidth:      defaultGridWidth,
		GridHeight:     defaultGridHeight,
		ZonesX:         defaultZonesX,
		ZonesY:         defaultZonesY,
		MinZoneCounted: defaultMinZoneCounted,
		MinZoneGreen:   defaultMinZoneGreen,
		MinAWBZones:    defaultMinAWBZones,
		TargetLuma:     defaultTargetLuma,
		MaxShutter:     defaultMaxShutter,
		MinGain:        defaultMinGain,
		MaxGain:        defaultMaxGain,
		LineDuration:   defaultLineDuration,
		GainUnit:       defaultGainUnit,
		StartupFrames:  defaultStartupFrames,
		FilterSpeed:    defaultFilterSpeed,
		Gamma:          defaultGamma,
		ExposureDelay:  defaultExposureDelay,
		GainDelay:      defaultGainDelay,
		FocusDelay:     defaultFocusDelay,
		FrameRate:      defaultFrameRate,
		RawBuffers:     defaultRawBuffers,
		ParamBuffers:   defaultParamBuffers,
		StatBuffers:    defaultStatBuffers,
		HistoryDepth:   defaultHistoryDepth,
		ProxyChunkSize: defaultProxyChunkSize,
		ProxyChunks:    defaultProxyChunks,
		ProxyTimeout:   defaultProxyTimeout,
	}
}

func TestValidate(t *testing.T) {
	dl := &dumbLogger{}
	want := defaultConfig(dl)

	got := Config{Logger: dl}
	err := (&got).Validate()
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	if !cmp.Equal(got, want) {
		t.Errorf("configs not equal\n%s", cmp.Diff(want, got))
	}
}

func TestValidateDependent(t *testing.T) {
	dl := &dumbLogger{}
	got := Config{
		Logger:        dl,
		GridWidth:     4,
		GridHeight:    20,
		ZonesX:        5,
		ZonesY:        10,
		ExposureDelay: 20,
		HistoryDepth:  20,
		MaxGain:       2,
		MinGain:       4,
		MaxShutter:    time.Millisecond,
		MinShutter:    2 * time.Millisecond,
	}
	err := (&got).Validate()
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	tests := []struct {
		name      string
		got, want interface{}
	}{
		{name: "ZonesX", got: got.ZonesX, want: uint(4)},
		{name: "ZonesY", got: got.ZonesY, want: uint(10)},
		{name: "HistoryDepth", got: got.HistoryDepth, want: uint(defaultHistoryDepth)},
		{name: "MinGain", got: got.MinGain, want: defaultMinGain},
		{name: "MinShutter", got: got.MinShutter, want: time.Duration(0)},
	}
	for _, test := range tests {
		if test.got != test.want {
			t.Errorf("%s: got: %v, want: %v", test.name, test.got, test.want)
		}
	}
}

func TestUpdate(t *testing.T) {
	updateMap := map[string]string{
		"Algorithms":     "AGC, awb, AF",
		"ExposureDelay":  "3",
		"FilterSpeed":    "0.5",
		"FocusDelay":     "4",
		"FrameRate":      "60",
		"GainDelay":      "2",
		"GainUnit":       "16",
		"Gamma":          "2.2",
		"GridHeight":     "24",
		"GridWidth":      "32",
		"HistoryDepth":   "32",
		"Isolated":       "true",
		"LineDuration":   "14800",
		"logging":        "Debug",
		"MaxGain":        "16",
		"MaxShutter":     "30000",
		"Metering":       "Centre",
		"MinAWBZones":    "12",
		"MinGain":        "1.5",
		"MinShutter":     "100",
		"MinZoneCounted": "4",
		"MinZoneGreen":   "20",
		"ParamBuffers":   "6",
		"ProxyChunks":    "8",
		"ProxyChunkSize": "512",
		"ProxyTimeout":   "5",
		"RawBuffers":     "7",
		"StartupFrames":  "3",
		"StatBuffers":    "5",
		"Suppress":       "true",
		"TargetLuma":     "0.2",
		"ZonesX":         "16",
		"ZonesY":         "12",
	}

	dl := &dumbLogger{}

	want := Config{
		Logger:         dl,
		LogLevel:       logging.Debug,
		Suppress:       true,
		Algorithms:     []uint8{AlgoAGC, AlgoAWB, AlgoAF},
		GridWidth:      32,
		GridHeight:     24,
		ZonesX:         16,
		ZonesY:         12,
		MinZoneCounted: 4,
		MinZoneGreen:   20,
		MinAWBZones:    12,
		Metering:       MeteringCentre,
		TargetLuma:     0.2,
		MinShutter:     100 * time.Microsecond,
		MaxShutter:     30 * time.Millisecond,
		MinGain:        1.5,
		MaxGain:        16,
		LineDuration:   14800 * time.Nanosecond,
		GainUnit:       16,
		StartupFrames:  3,
		FilterSpeed:    0.5,
		Gamma:          2.2,
		ExposureDelay:  3,
		GainDelay:      2,
		FocusDelay:     4,
		FrameRate:      60,
		RawBuffers:     7,
		ParamBuffers:   6,
		StatBuffers:    5,
		HistoryDepth:   32,
		Isolated:       true,
		ProxyChunkSize: 512,
		ProxyChunks:    8,
		ProxyTimeout:   5 * time.Millisecond,
	}

	got := Config{Logger: dl}
	got.Update(updateMap)
	if !cmp.Equal(want, got) {
		t.Errorf("configs not equal\n%s", cmp.Diff(want, got))
	}
	if !got.Has(AlgoAWB) || got.Has(AlgoContrast) {
		t.Errorf("unexpected algorithms: %v", got.Algorithms)
	}
	if got.MaxDelay() != 4 {
		t.Errorf("unexpected max delay: %d", got.MaxDelay())
	}
}
