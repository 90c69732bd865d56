/*
DESCRIPTION
  camera.go provides camera, which runs a pipeline session against the
  simulated sensor, stepping frames at the configured frame rate and
  keeping the latest exposure and white balance results for reporting.
  Sensor controls may instead be written to a V4L2 sub-device.

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
	"sync"
	"time"

	"github.com/ausocean/camstack/buffer"
	"github.com/ausocean/camstack/device"
	"github.com/ausocean/camstack/device/sim"
	"github.com/ausocean/camstack/device/v4l2"
	"github.com/ausocean/camstack/ipa"
	"github.com/ausocean/camstack/ipa/stats"
	"github.com/ausocean/camstack/pipeline"
	"github.com/ausocean/camstack/pipeline/config"
	"github.com/ausocean/utils/logging"
)

// rawSize is the size of a simulated raw buffer. The simulated sensor does
// not write image data.
const rawSize = 16

// status is the outcome of the most recent completed frame.
type status struct {
	sequence    uint32
	shutter     time.Duration
	gain        float64
	agcState    ipa.AGCState
	temperature float64
}

// options select the hardware backing a camera.
type options struct {
	// subdev is the path of a V4L2 sub-device receiving sensor controls.
	// When empty the simulated sensor takes them.
	subdev string

	// memfd backs buffers with memory files mapped by mmap rather than
	// process memory.
	memfd bool
}

// allocator provides buffers and access to their memory.
type allocator interface {
	buffer.Mapper
	Allocate(n, length int) ([]*buffer.Buffer, error)
	Free(b *buffer.Buffer)
}

// processMemory adapts buffer.Memory to allocator.
type processMemory struct{ *buffer.Memory }

func (m processMemory) Allocate(n, length int) ([]*buffer.Buffer, error) {
	return m.Memory.Allocate(n, length), nil
}

// camera owns a simulated sensor and the session driving it.
type camera struct {
	log    logging.Logger
	mem    allocator
	subdev *v4l2.SubDevice

	mu      sync.Mutex
	sim     *sim.Camera
	s       *pipeline.Session
	bufs    []*buffer.Buffer
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	smu  sync.Mutex
	last status
}

func newCamera(c config.Config, o options) (*camera, error) {
	cam := &camera{log: c.Logger, mem: processMemory{buffer.NewMemory(0)}}
	if o.memfd {
		cam.mem = buffer.NewFDMemory(0)
	}
	if o.subdev != "" {
		d, err := v4l2.Open(o.subdev, c.Logger)
		if err != nil {
			return nil, fmt.Errorf("could not open sub-device: %w", err)
		}
		cam.subdev = d
	}
	err := cam.build(c)
	if err != nil {
		cam.close()
		return nil, err
	}
	return cam, nil
}

// close stops the camera and releases the sub-device, if any.
func (cam *camera) close() {
	cam.stopCamera()
	if cam.subdev == nil {
		return
	}
	err := cam.subdev.Close()
	if err != nil {
		cam.log.Warning(pkg+"could not close sub-device", "error", err.Error())
	}
}

// build creates the simulated sensor and session for c. cam.mu must be
// held or cam not yet shared.
func (cam *camera) build(c config.Config) error {
	err := c.Validate()
	if err != nil {
		return fmt.Errorf("bad config: %w", err)
	}
	cam.sim = sim.New(c.Logger, sim.Config{
		Grid:          stats.Grid{Width: int(c.GridWidth), Height: int(c.GridHeight)},
		LineDuration:  c.LineDuration,
		GainUnit:      int32(c.GainUnit),
		FrameDuration: time.Second / time.Duration(c.FrameRate),
		ExposureDelay: uint32(c.ExposureDelay),
		GainDelay:     uint32(c.GainDelay),
		FocusDelay:    uint32(c.FocusDelay),
	}, cam.mem)

	var dev device.ControlDevice = cam.sim
	if cam.subdev != nil {
		dev = cam.subdev
	}
	s, err := pipeline.New(c, dev, cam.sim, cam.mem)
	if err != nil {
		return fmt.Errorf("could not create session: %w", err)
	}
	s.SetCompletionHandler(func(r *pipeline.Request) { cam.completed(s, r) })
	cam.sim.SetListener(s)
	cam.s = s
	return nil
}

// config returns the config of the current session.
func (cam *camera) config() config.Config {
	cam.mu.Lock()
	defer cam.mu.Unlock()
	return cam.s.Config()
}

// start allocates buffers, starts the session and begins stepping frames.
func (cam *camera) start() error {
	cam.mu.Lock()
	defer cam.mu.Unlock()
	return cam.startLocked()
}

func (cam *camera) startLocked() error {
	if cam.running {
		cam.log.Warning(pkg + "camera already running")
		return nil
	}

	c := cam.s.Config()
	grid := stats.Grid{Width: int(c.GridWidth), Height: int(c.GridHeight)}
	var (
		params, statBufs, raws []*buffer.Buffer
		err                    error
	)
	for _, a := range []struct {
		bufs      *[]*buffer.Buffer
		n, length int
	}{
		{&params, int(c.ParamBuffers), ipa.ParamsSize},
		{&statBufs, int(c.StatBuffers), grid.Size()},
		{&raws, int(c.RawBuffers), rawSize},
	} {
		*a.bufs, err = cam.mem.Allocate(a.n, a.length)
		if err != nil {
			cam.free()
			return fmt.Errorf("could not allocate buffers: %w", err)
		}
		cam.bufs = append(cam.bufs, *a.bufs...)
	}

	err = cam.s.SetBuffers(params, statBufs)
	if err != nil {
		cam.free()
		return fmt.Errorf("could not set buffers: %w", err)
	}
	err = cam.s.Start()
	if err != nil {
		cam.free()
		return fmt.Errorf("could not start session: %w", err)
	}
	for _, b := range raws {
		err = cam.s.QueueRequest(&pipeline.Request{Raw: b})
		if err != nil {
			cam.s.Stop()
			cam.free()
			return fmt.Errorf("could not queue request: %w", err)
		}
	}

	cam.stop = make(chan struct{})
	cam.wg.Add(1)
	go cam.step(time.Second/time.Duration(c.FrameRate), cam.sim, cam.s.Err())
	cam.running = true
	cam.log.Info(pkg+"camera started", "session", cam.s.ID())
	return nil
}

// stopCamera stops stepping frames and stops the session.
func (cam *camera) stopCamera() {
	cam.mu.Lock()
	defer cam.mu.Unlock()
	cam.stopLocked()
}

func (cam *camera) stopLocked() {
	if !cam.running {
		return
	}
	close(cam.stop)
	cam.wg.Wait()
	if cam.s.Running() {
		cam.s.Stop()
	}
	cam.sim.Reset()
	cam.free()
	cam.running = false
	cam.log.Info(pkg + "camera stopped")
}

func (cam *camera) free() {
	for _, b := range cam.bufs {
		cam.mem.Free(b)
	}
	cam.bufs = nil
}

// update applies vars to the session config, rebuilding the sensor and
// session, and restarts the camera if it was running.
func (cam *camera) update(vars map[string]string) error {
	cam.mu.Lock()
	defer cam.mu.Unlock()

	wasRunning := cam.running
	cam.stopLocked()
	err := cam.s.Update(vars)
	if err != nil {
		return fmt.Errorf("could not update session: %w", err)
	}
	err = cam.build(cam.s.Config())
	if err != nil {
		return err
	}
	if !wasRunning {
		return nil
	}
	return cam.startLocked()
}

// step advances the sensor one frame per period until stopped or the
// session fails.
func (cam *camera) step(period time.Duration, sensor *sim.Camera, errs <-chan error) {
	defer cam.wg.Done()
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-cam.stop:
			return
		case err := <-errs:
			cam.log.Error(pkg+"session failed", "error", err.Error())
			return
		case <-t.C:
			sensor.Step()
		}
	}
}

// completed records the results of a request and queues it again on s.
func (cam *camera) completed(s *pipeline.Session, r *pipeline.Request) {
	if r.Status == pipeline.RequestComplete && r.Metadata != nil {
		cam.smu.Lock()
		cam.last.sequence = r.Sequence
		if st, ok := ipa.SensorStatusKey.Get(r.Metadata); ok {
			cam.last.shutter, cam.last.gain = st.ShutterTime, st.AnalogueGain
		}
		if st, ok := ipa.AGCStatusKey.Get(r.Metadata); ok {
			cam.last.agcState = st.State
		}
		if st, ok := ipa.AWBStatusKey.Get(r.Metadata); ok {
			cam.last.temperature = st.Temperature
		}
		cam.smu.Unlock()
	}
	if r.Status == pipeline.RequestCancelled {
		return
	}

	err := s.QueueRequest(r)
	if err != nil && !errors.Is(err, pipeline.ErrNotRunning) {
		cam.log.Warning(pkg+"could not requeue request", "error", err.Error())
	}
}

// latest returns the results of the most recent frame.
func (cam *camera) latest() status {
	cam.smu.Lock()
	defer cam.smu.Unlock()
	return cam.last
}
