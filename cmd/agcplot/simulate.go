/*
DESCRIPTION
  simulate.go runs a pipeline session against the simulated sensor and
  records the exposure chosen for each frame.

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
	"github.com/ausocean/camstack/device/sim"
	"github.com/ausocean/camstack/ipa"
	"github.com/ausocean/camstack/ipa/stats"
	"github.com/ausocean/camstack/pipeline"
	"github.com/ausocean/camstack/pipeline/config"
	"github.com/ausocean/utils/logging"
)

// frameTimeout bounds the wait for one simulated frame to complete.
const frameTimeout = 2 * time.Second

// sample is the state of the exposure loop for one frame.
type sample struct {
	frame   int
	shutter time.Duration
	gain    float64
	state   ipa.AGCState
}

// exposure returns the total exposure of s in milliseconds.
func (s sample) exposure() float64 {
	return float64(s.shutter) / float64(time.Millisecond) * s.gain
}

// simulate runs n frames, the scene for each frame given by scene.
func simulate(log logging.Logger, c config.Config, scene func(frame int) sim.Scene, n int) ([]sample, error) {
	err := c.Validate()
	if err != nil {
		return nil, fmt.Errorf("bad config: %w", err)
	}

	mem := buffer.NewMemory(0)
	grid := stats.Grid{Width: int(c.GridWidth), Height: int(c.GridHeight)}
	cam := sim.New(log, sim.Config{
		Grid:          grid,
		LineDuration:  c.LineDuration,
		GainUnit:      int32(c.GainUnit),
		FrameDuration: time.Second / time.Duration(c.FrameRate),
		ExposureDelay: uint32(c.ExposureDelay),
		GainDelay:     uint32(c.GainDelay),
		FocusDelay:    uint32(c.FocusDelay),
		Scene:         scene(0),
	}, mem)

	s, err := pipeline.New(c, cam, cam, mem)
	if err != nil {
		return nil, fmt.Errorf("could not create session: %w", err)
	}
	done := make(chan *pipeline.Request, c.RawBuffers)
	s.SetCompletionHandler(func(r *pipeline.Request) { done <- r })
	cam.SetListener(s)

	err = s.SetBuffers(mem.Allocate(int(c.ParamBuffers), ipa.ParamsSize), mem.Allocate(int(c.StatBuffers), grid.Size()))
	if err != nil {
		return nil, fmt.Errorf("could not set buffers: %w", err)
	}
	err = s.Start()
	if err != nil {
		return nil, fmt.Errorf("could not start session: %w", err)
	}
	defer s.Stop()

	for _, b := range mem.Allocate(int(c.RawBuffers), 16) {
		err = s.QueueRequest(&pipeline.Request{Raw: b})
		if err != nil {
			return nil, fmt.Errorf("could not queue request: %w", err)
		}
	}

	// Each frame start must be handled before the sensor moves on, so that
	// control writes land on the frame they were meant for.
	cam.Step()
	err = s.Sync()
	if err != nil {
		return nil, err
	}

	samples := make([]sample, 0, n)
	for i := 0; i < n; i++ {
		cam.SetScene(scene(i + 1))
		cam.Step()
		err = s.Sync()
		if err != nil {
			return nil, err
		}

		var r *pipeline.Request
		select {
		case r = <-done:
		case err := <-s.Err():
			return nil, fmt.Errorf("session failed: %w", err)
		case <-time.After(frameTimeout):
			return nil, fmt.Errorf("frame %d did not complete", i)
		}
		if r.Status != pipeline.RequestComplete {
			return nil, fmt.Errorf("frame %d: request %v", i, r.Status)
		}

		smp := sample{frame: int(r.Sequence)}
		st, ok := ipa.SensorStatusKey.Get(r.Metadata)
		if !ok {
			return nil, errors.New("no sensor status in metadata")
		}
		smp.shutter, smp.gain = st.ShutterTime, st.AnalogueGain
		if a, ok := ipa.AGCStatusKey.Get(r.Metadata); ok {
			smp.state = a.State
		}
		samples = append(samples, smp)

		err = s.QueueRequest(r)
		if err != nil {
			return nil, fmt.Errorf("could not requeue request: %w", err)
		}
	}
	return samples, nil
}
