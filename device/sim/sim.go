/*
DESCRIPTION
  sim.go provides Camera, a simulated sensor and image signal processor.
  The sensor applies control writes after per-control delays and the ISP
  produces statistics for a synthetic scene from the exposure and gain in
  effect for each frame.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package sim provides a simulated camera for exercising the camera stack
// without hardware.
package sim

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ausocean/camstack/buffer"
	"github.com/ausocean/camstack/device"
	"github.com/ausocean/camstack/ipa"
	"github.com/ausocean/camstack/ipa/stats"
	"github.com/ausocean/utils/logging"
)

const pkg = "sim: "

// Listener receives the notifications of a Camera. Methods are called
// from the goroutine driving the camera and must not block.
type Listener interface {
	// FrameStart is called when the sensor starts exposing frame seq.
	FrameStart(seq uint32)

	// RawReady is called when a raw buffer has been filled. The buffer's
	// metadata holds the frame sequence.
	RawReady(b *buffer.Buffer)

	// ParamsDone is called when the ISP has consumed a parameter buffer.
	ParamsDone(b *buffer.Buffer)

	// StatsReady is called when the ISP has filled a statistics buffer.
	StatsReady(b *buffer.Buffer)
}

// Defaults for Config fields left at zero.
const (
	DefaultLineDuration  = 10 * time.Microsecond
	DefaultGainUnit      = 256
	DefaultFrameDuration = time.Second / 30
	DefaultExposureDelay = 2
	DefaultGainDelay     = 1
	DefaultFocusDelay    = 1
	MaxLensPosition      = 1023
)

// Config describes a simulated camera.
type Config struct {
	Grid          stats.Grid
	LineDuration  time.Duration
	GainUnit      int32
	FrameDuration time.Duration

	// Frames between a control write and its effect. A write made while
	// frame N is exposing takes effect from frame N+delay-1.
	ExposureDelay uint32
	GainDelay     uint32
	FocusDelay    uint32

	Scene Scene
}

func (c *Config) defaults() {
	if c.Grid.Width == 0 || c.Grid.Height == 0 {
		c.Grid = stats.Grid{Width: 16, Height: 12}
	}
	if c.LineDuration <= 0 {
		c.LineDuration = DefaultLineDuration
	}
	if c.GainUnit <= 0 {
		c.GainUnit = DefaultGainUnit
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = DefaultFrameDuration
	}
	if c.ExposureDelay == 0 {
		c.ExposureDelay = DefaultExposureDelay
	}
	if c.GainDelay == 0 {
		c.GainDelay = DefaultGainDelay
	}
	if c.FocusDelay == 0 {
		c.FocusDelay = DefaultFocusDelay
	}
	if c.Scene == (Scene{}) {
		c.Scene = DefaultScene()
	}
}

// Camera is a simulated sensor and ISP. It implements
// device.ControlDevice, and queues raw and ISP buffers for the pipeline.
// Frames advance only when Step is called.
type Camera struct {
	log    logging.Logger
	cfg    Config
	mapper buffer.Mapper

	mu         sync.Mutex
	listener   Listener
	controls   map[device.ControlID]device.ControlInfo
	programmed device.ControlList            // Last written values.
	effective  device.ControlList            // Values exposing the current frame.
	scheduled  map[uint32]device.ControlList // Writes by first effective frame.
	frames     map[uint32]device.ControlList // Values each completed frame was exposed with.
	started    bool
	seq        uint32
	raws       []*buffer.Buffer
	rawFrame   map[uint32]uint32 // Raw buffer id to frame sequence.
	lastParams *ipa.Params
	writes     []device.ControlList
	epoch      time.Time
}

// New returns a Camera. mapper gives access to the memory of parameter and
// statistics buffers.
func New(log logging.Logger, c Config, mapper buffer.Mapper) *Camera {
	c.defaults()
	exposure := device.ControlInfo{Min: 1, Max: int32(c.FrameDuration / c.LineDuration), Default: 100}
	gain := device.ControlInfo{Min: c.GainUnit, Max: 16 * c.GainUnit, Default: c.GainUnit}
	cam := &Camera{
		log:    log,
		cfg:    c,
		mapper: mapper,
		controls: map[device.ControlID]device.ControlInfo{
			device.ControlExposure:       exposure,
			device.ControlAnalogueGain:   gain,
			device.ControlVerticalBlank:  {Min: 4, Max: 0xffff, Default: 32},
			device.ControlHorizontalFlip: {Min: 0, Max: 1, Default: 0},
			device.ControlFocusAbsolute:  {Min: 0, Max: MaxLensPosition, Default: 0},
		},
		epoch: time.Now(),
	}
	cam.resetLocked()
	return cam
}

// Name implements device.ControlDevice.
func (c *Camera) Name() string { return "sim" }

// Grid returns the statistics grid geometry.
func (c *Camera) Grid() stats.Grid { return c.cfg.Grid }

// LineDuration returns the time taken to read one sensor line.
func (c *Camera) LineDuration() time.Duration { return c.cfg.LineDuration }

// GainUnit returns the gain code for unity analogue gain.
func (c *Camera) GainUnit() int32 { return c.cfg.GainUnit }

// Delays returns the actuation delay of each sensor control.
func (c *Camera) Delays() map[device.ControlID]uint32 {
	return map[device.ControlID]uint32{
		device.ControlExposure:      c.cfg.ExposureDelay,
		device.ControlAnalogueGain:  c.cfg.GainDelay,
		device.ControlFocusAbsolute: c.cfg.FocusDelay,
	}
}

// Controls implements device.ControlDevice.
func (c *Camera) Controls() map[device.ControlID]device.ControlInfo {
	out := make(map[device.ControlID]device.ControlInfo, len(c.controls))
	for id, info := range c.controls {
		out[id] = info
	}
	return out
}

// GetControls implements device.ControlDevice, returning the last written
// values.
func (c *Camera) GetControls(ids []device.ControlID) (device.ControlList, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(device.ControlList, len(ids))
	for _, id := range ids {
		v, ok := c.programmed[id]
		if !ok {
			return nil, fmt.Errorf("%w: %v", device.ErrUnknownControl, id)
		}
		out[id] = v
	}
	return out, nil
}

// SetControls implements device.ControlDevice. Values are clamped to the
// control ranges. Before streaming starts writes take effect immediately.
func (c *Camera) SetControls(l device.ControlList) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs device.MultiError
	for _, id := range l.IDs() {
		info, ok := c.controls[id]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %v", device.ErrUnknownControl, id))
			continue
		}
		v := info.Clamp(l[id])
		c.programmed[id] = v
		if !c.started {
			c.effective[id] = v
			continue
		}
		at := c.seq + c.delay(id) - 1
		if c.scheduled[at] == nil {
			c.scheduled[at] = make(device.ControlList)
		}
		c.scheduled[at][id] = v
	}
	c.writes = append(c.writes, l.Clone())
	if len(errs) != 0 {
		return errs
	}
	return nil
}

// delay returns the actuation delay of id, at least one frame.
func (c *Camera) delay(id device.ControlID) uint32 {
	var d uint32 = 1
	switch id {
	case device.ControlExposure:
		d = c.cfg.ExposureDelay
	case device.ControlAnalogueGain:
		d = c.cfg.GainDelay
	case device.ControlFocusAbsolute:
		d = c.cfg.FocusDelay
	}
	if d == 0 {
		d = 1
	}
	return d
}

// Writes returns and clears the control lists written since the last call.
func (c *Camera) Writes() []device.ControlList {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.writes
	c.writes = nil
	return w
}

// SetListener sets the receiver of notifications.
func (c *Camera) SetListener(l Listener) {
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
}

// SetScene replaces the scene from the next frame.
func (c *Camera) SetScene(s Scene) {
	c.mu.Lock()
	c.cfg.Scene = s
	c.mu.Unlock()
}

// Reset stops the sensor and returns every control to its default.
func (c *Camera) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Camera) resetLocked() {
	c.programmed = make(device.ControlList, len(c.controls))
	for id, info := range c.controls {
		c.programmed[id] = info.Default
	}
	c.effective = c.programmed.Clone()
	c.scheduled = make(map[uint32]device.ControlList)
	c.frames = make(map[uint32]device.ControlList)
	c.rawFrame = make(map[uint32]uint32)
	c.raws = nil
	c.started = false
	c.seq = 0
}

// Effective returns the control values frame seq was exposed with. ok is
// false until the frame has completed.
func (c *Camera) Effective(seq uint32) (l device.ControlList, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok = c.frames[seq]
	return l, ok
}

// LastParams returns the most recent parameters consumed by the ISP.
func (c *Camera) LastParams() *ipa.Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastParams
}

// Sequence returns the sequence of the frame being exposed.
func (c *Camera) Sequence() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// QueueRaw queues b to receive a future frame.
func (c *Camera) QueueRaw(b *buffer.Buffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raws = append(c.raws, b)
	return nil
}

// Step completes the frame being exposed, if any, delivering it to the
// oldest queued raw buffer, then starts the next frame.
func (c *Camera) Step() {
	c.mu.Lock()
	l := c.listener
	var done *buffer.Buffer
	if c.started {
		done = c.completeLocked()
		c.seq++
	}
	c.started = true
	seq := c.seq
	c.mu.Unlock()

	if l == nil {
		return
	}
	if done != nil {
		l.RawReady(done)
	}
	l.FrameStart(seq)
}

// applyLocked applies scheduled writes due by frame seq.
func (c *Camera) applyLocked(seq uint32) {
	var due []uint32
	for at := range c.scheduled {
		if at <= seq {
			due = append(due, at)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })
	for _, at := range due {
		for id, v := range c.scheduled[at] {
			c.effective[id] = v
		}
		delete(c.scheduled, at)
	}
}

// completeLocked records the settings of the current frame and fills the
// oldest raw buffer, returning it. A nil return means the frame was
// dropped for want of a buffer.
func (c *Camera) completeLocked() *buffer.Buffer {
	c.applyLocked(c.seq)
	c.frames[c.seq] = c.effective.Clone()
	delete(c.frames, c.seq-64)
	if len(c.raws) == 0 {
		c.log.Debug(pkg+"no raw buffer, frame dropped", "sequence", c.seq)
		return nil
	}
	b := c.raws[0]
	c.raws = c.raws[1:]
	b.Metadata = buffer.Metadata{
		Status:    buffer.StatusSuccess,
		Sequence:  c.seq,
		Timestamp: c.epoch.Add(time.Duration(c.seq) * c.cfg.FrameDuration),
	}
	c.rawFrame[b.ID] = c.seq
	return b
}

// QueueISP processes raw with params, filling stats. The parameter and
// statistics buffers are returned to the listener before QueueISP returns.
func (c *Camera) QueueISP(raw, params, statsBuf *buffer.Buffer) error {
	pmem, err := c.mapper.Map(params)
	if err != nil {
		return fmt.Errorf("could not map params: %w", err)
	}
	smem, err := c.mapper.Map(statsBuf)
	if err != nil {
		return fmt.Errorf("could not map stats: %w", err)
	}
	p, err := ipa.DecodeParams(pmem)
	if err != nil {
		return fmt.Errorf("could not decode params: %w", err)
	}

	c.mu.Lock()
	seq, ok := c.rawFrame[raw.ID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("raw buffer %d holds no frame", raw.ID)
	}
	delete(c.rawFrame, raw.ID)
	l := c.listener
	settings := c.frames[seq]
	scene := c.cfg.Scene
	c.lastParams = p
	c.mu.Unlock()

	shutter := time.Duration(settings[device.ControlExposure]) * c.cfg.LineDuration
	gain := float64(settings[device.ControlAnalogueGain]) / float64(c.cfg.GainUnit)
	f := scene.Render(c.cfg.Grid, shutter, gain, settings[device.ControlFocusAbsolute])
	err = stats.Encode(smem, f)
	if err != nil {
		return fmt.Errorf("could not encode stats: %w", err)
	}
	params.Metadata = buffer.Metadata{Status: buffer.StatusSuccess, Sequence: seq}
	statsBuf.Metadata = buffer.Metadata{Status: buffer.StatusSuccess, Sequence: seq}

	if l != nil {
		l.ParamsDone(params)
		l.StatsReady(statsBuf)
	}
	return nil
}
