/*
DESCRIPTION
  analyse.go runs the exposure and white balance algorithms over a single
  statistics frame through an ipa host, as the pipeline would.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/ausocean/camstack/buffer"
	"github.com/ausocean/camstack/device"
	"github.com/ausocean/camstack/ipa"
	"github.com/ausocean/camstack/ipa/af"
	"github.com/ausocean/camstack/ipa/agc"
	"github.com/ausocean/camstack/ipa/awb"
	"github.com/ausocean/camstack/ipa/contrast"
	"github.com/ausocean/camstack/ipa/metadata"
	"github.com/ausocean/camstack/ipa/stats"
	"github.com/ausocean/utils/logging"
)

// Nominal sensor used to interpret a still image.
const (
	lineDuration = 10 * time.Microsecond
	gainUnit     = 256
	maxExposure  = 100000 // Lines, one second.
	maxGainCode  = 16 * gainUnit
	actionWait   = time.Second
)

// result holds what the algorithms made of a frame.
type result struct {
	sensor ipa.SensorStatus
	agc    ipa.AGCStatus
	awb    ipa.AWBStatus
	focus  float64 // Mean focus response of the whole frame.

	// Proposed holds the sensor controls the host asked for, if any.
	proposed device.ControlList
}

// analyse processes f as if it were captured with the given shutter time
// and analogue gain.
func analyse(log logging.Logger, f *stats.Frame, shutter time.Duration, gain float64) (*result, error) {
	mem := buffer.NewMemory(0)
	sb := mem.Allocate(1, f.Grid.Size())[0]
	defer mem.Free(sb)
	b, err := mem.Map(sb)
	if err != nil {
		return nil, fmt.Errorf("could not map statistics buffer: %w", err)
	}
	err = stats.Encode(b, f)
	if err != nil {
		return nil, fmt.Errorf("could not encode statistics: %w", err)
	}

	h := ipa.New(log, mem,
		awb.New(log, awb.Config{}),
		agc.New(log, agc.Config{}),
		contrast.New(log, 0),
	)
	defer h.Stop()

	err = h.Configure(ipa.Config{
		Grid:         f.Grid,
		LineDuration: lineDuration,
		GainUnit:     gainUnit,
		SensorControls: map[device.ControlID]device.ControlInfo{
			device.ControlExposure:     {Min: 1, Max: maxExposure, Default: 1000},
			device.ControlAnalogueGain: {Min: gainUnit, Max: maxGainCode, Default: gainUnit},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not configure host: %w", err)
	}
	err = h.MapBuffers([]*buffer.Buffer{sb})
	if err != nil {
		return nil, err
	}
	defer h.UnmapBuffers([]uint32{sb.ID})

	ctrls := device.ControlList{
		device.ControlExposure:     int32(shutter / lineDuration),
		device.ControlAnalogueGain: int32(gain * gainUnit),
	}
	err = h.ProcessEvent(ipa.Event{Type: ipa.EventProcessStats, BufferID: sb.ID, Controls: ctrls})
	if err != nil {
		return nil, fmt.Errorf("could not process statistics: %w", err)
	}

	r := result{focus: af.Contrast(f, af.Window{W: 1, H: 1})}
	for {
		select {
		case a := <-h.Actions():
			switch a.Type {
			case ipa.ActionSetSensorControls:
				r.proposed = a.Controls
			case ipa.ActionError:
				return nil, a.Err
			case ipa.ActionMetadataReady:
				collect(&r, a.Metadata)
				return &r, nil
			}
		case <-time.After(actionWait):
			return nil, errors.New("no metadata from host")
		}
	}
}

func collect(r *result, md *metadata.Metadata) {
	r.sensor, _ = ipa.SensorStatusKey.Get(md)
	r.agc, _ = ipa.AGCStatusKey.Get(md)
	r.awb, _ = ipa.AWBStatusKey.Get(md)
}

// print writes r in a form suitable for a terminal.
func (r *result) print() {
	fmt.Printf("sensor:   shutter %v gain %.2f\n", r.sensor.ShutterTime, r.sensor.AnalogueGain)
	fmt.Printf("agc:      shutter %v gain %.2f (%v)\n", r.agc.ShutterTime, r.agc.AnalogueGain, r.agc.State)
	fmt.Printf("awb:      gains r %.3f g %.3f b %.3f, %.0fK\n", r.awb.Gains.R, r.awb.Gains.G, r.awb.Gains.B, r.awb.Temperature)
	fmt.Printf("focus:    %.1f\n", r.focus)
	if r.proposed != nil {
		fmt.Printf("proposed: exposure %d lines gain code %d\n",
			r.proposed[device.ControlExposure], r.proposed[device.ControlAnalogueGain])
	}
}
