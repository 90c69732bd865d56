/*
DESCRIPTION
  host.go provides IPA, which runs an ordered list of algorithms to fill
  parameter buffers and process statistics buffers.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package ipa

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/ausocean/camstack/buffer"
	"github.com/ausocean/camstack/device"
	"github.com/ausocean/camstack/ipa/metadata"
	"github.com/ausocean/camstack/ipa/stats"
	"github.com/ausocean/utils/logging"
)

const pkg = "ipa: "

// actionsLen is the capacity of the action channel.
const actionsLen = 32

// IPA hosts the algorithms of a session. It implements Interface.
type IPA struct {
	log    logging.Logger
	algos  []Algorithm
	mapper buffer.Mapper

	mu         sync.Mutex
	ctx        Context
	configured bool
	buffers    map[uint32]*buffer.Buffer
	mem        map[uint32][]byte

	actions  chan Action
	stopOnce sync.Once
	stopped  chan struct{}
}

// New returns an IPA running algos in order. mapper gives access to the
// memory of parameter and statistics buffers.
func New(log logging.Logger, mapper buffer.Mapper, algos ...Algorithm) *IPA {
	return &IPA{
		log:     log,
		algos:   algos,
		mapper:  mapper,
		buffers: make(map[uint32]*buffer.Buffer),
		mem:     make(map[uint32][]byte),
		actions: make(chan Action, actionsLen),
		stopped: make(chan struct{}),
	}
}

// Configure validates c against the sensor controls and configures every
// algorithm. On error the host is left unconfigured.
func (h *IPA) Configure(c Config) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.configured = false

	err := c.Grid.Validate()
	if err != nil {
		return errors.Wrap(err, "invalid statistics grid")
	}
	if c.LineDuration <= 0 {
		return fmt.Errorf("invalid line duration: %v", c.LineDuration)
	}
	if c.GainUnit <= 0 {
		return fmt.Errorf("invalid gain unit: %v", c.GainUnit)
	}
	exp, ok := c.SensorControls[device.ControlExposure]
	if !ok {
		return fmt.Errorf("%w: sensor has no exposure control", device.ErrUnknownControl)
	}
	gain, ok := c.SensorControls[device.ControlAnalogueGain]
	if !ok {
		return fmt.Errorf("%w: sensor has no analogue gain control", device.ErrUnknownControl)
	}

	h.ctx = Context{
		Configuration: Configuration{
			Grid:         c.Grid,
			LineDuration: c.LineDuration,
			GainUnit:     c.GainUnit,
			MinExposure:  max32(exp.Min, 1),
			MaxExposure:  exp.Max,
			MinGainCode:  max32(gain.Min, 1),
			MaxGainCode:  gain.Max,
		},
		Session: metadata.New(),
		Frame:   metadata.New(),
	}
	if focus, ok := c.SensorControls[device.ControlFocusAbsolute]; ok {
		h.ctx.Configuration.HasFocus = true
		h.ctx.Configuration.MinFocus = focus.Min
		h.ctx.Configuration.MaxFocus = focus.Max
	}

	for _, a := range h.algos {
		err := a.Configure(&h.ctx)
		if err != nil {
			return errors.Wrapf(err, "could not configure %s", a.Name())
		}
		h.log.Debug(pkg+"configured algorithm", "name", a.Name())
	}
	h.configured = true
	return nil
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

// MapBuffers maps the memory of bufs. If any buffer cannot be mapped, the
// buffers mapped by this call are released and an error wrapping
// buffer.ErrMapFailed is returned.
func (h *IPA) MapBuffers(bufs []*buffer.Buffer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var mapped []*buffer.Buffer
	for _, b := range bufs {
		mem, err := h.mapper.Map(b)
		if err != nil {
			for _, m := range mapped {
				h.unmap(m.ID)
			}
			return fmt.Errorf("could not map buffer %d: %w", b.ID, err)
		}
		h.buffers[b.ID] = b
		h.mem[b.ID] = mem
		mapped = append(mapped, b)
	}
	return nil
}

// UnmapBuffers releases the mappings of the buffers with the given ids.
// Unknown ids are ignored.
func (h *IPA) UnmapBuffers(ids []uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		h.unmap(id)
	}
}

// unmap releases one mapping. h.mu must be held.
func (h *IPA) unmap(id uint32) {
	b, ok := h.buffers[id]
	if !ok {
		return
	}
	err := h.mapper.Unmap(b)
	if err != nil {
		h.log.Warning(pkg+"could not unmap buffer", "id", id, "error", err)
	}
	delete(h.buffers, id)
	delete(h.mem, id)
}

// Actions returns the channel on which actions are delivered.
func (h *IPA) Actions() <-chan Action { return h.actions }

// Stop stops action delivery. Events processed after Stop emit nothing.
func (h *IPA) Stop() { h.stopOnce.Do(func() { close(h.stopped) }) }

func (h *IPA) emit(a Action) {
	select {
	case <-h.stopped:
		return
	default:
	}
	select {
	case h.actions <- a:
	case <-h.stopped:
	}
}

// ProcessEvent handles e synchronously, emitting the resulting actions.
func (h *IPA) ProcessEvent(e Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.configured {
		return ErrNotConfigured
	}

	switch e.Type {
	case EventFillParams:
		h.fillParams(e.Frame, e.BufferID)
	case EventProcessStats:
		h.processStats(e.Frame, e.BufferID, e.Controls)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownEvent, e.Type)
	}
	return nil
}

// memory returns the mapped memory of a buffer. A missing mapping is an
// unrecoverable fault and is reported with an ActionError.
func (h *IPA) memory(frame, id uint32) ([]byte, bool) {
	mem, ok := h.mem[id]
	if !ok {
		err := fmt.Errorf("%w: buffer %d is not mapped: %w", ErrUnknownBuffer, id, buffer.ErrMapFailed)
		h.log.Error(pkg+"no memory for buffer", "frame", frame, "buffer", id)
		h.emit(Action{Type: ActionError, Frame: frame, Err: err})
		return nil, false
	}
	return mem, true
}

func (h *IPA) fillParams(frame, id uint32) {
	mem, ok := h.memory(frame, id)
	if !ok {
		return
	}

	var p Params
	for _, a := range h.algos {
		a.Prepare(&h.ctx, &p)
	}
	err := p.Encode(mem)
	if err != nil {
		h.emit(Action{Type: ActionError, Frame: frame, Err: errors.Wrapf(err, "could not encode params for frame %d", frame)})
		return
	}
	h.emit(Action{Type: ActionParamsFilled, Frame: frame})
}

func (h *IPA) processStats(frame, id uint32, ctrls device.ControlList) {
	mem, ok := h.memory(frame, id)
	if !ok {
		return
	}

	cfg := h.ctx.Configuration
	md := metadata.New()
	h.ctx.Frame = md
	if exp, ok := ctrls[device.ControlExposure]; ok {
		code := ctrls[device.ControlAnalogueGain]
		focus, hasFocus := ctrls[device.ControlFocusAbsolute]
		SensorStatusKey.Set(md, SensorStatus{
			Exposure:     exp,
			GainCode:     code,
			ShutterTime:  cfg.ShutterTime(exp),
			AnalogueGain: cfg.Gain(code),
			Focus:        focus,
			HasFocus:     hasFocus,
		})
	}

	f, err := stats.Parse(mem)
	switch {
	case err != nil:
		h.log.Warning(pkg+"could not parse statistics, holding previous results", "frame", frame, "error", err)
	case f.Grid.Width != cfg.Grid.Width || f.Grid.Height != cfg.Grid.Height:
		h.log.Warning(pkg+"statistics grid does not match configuration", "frame", frame,
			"width", f.Grid.Width, "height", f.Grid.Height)
	default:
		for _, a := range h.algos {
			a.Process(&h.ctx, f)
		}
	}
	h.ctx.Session.Merge(md)

	l := make(device.ControlList)
	if s, ok := AGCStatusKey.Get(md); ok && s.Updated {
		l[device.ControlExposure] = cfg.ExposureLines(s.ShutterTime)
		l[device.ControlAnalogueGain] = cfg.GainCode(s.AnalogueGain)
		h.log.Debug(pkg+"new exposure", "frame", frame, "exposure", l[device.ControlExposure], "gain", l[device.ControlAnalogueGain])
	}
	if s, ok := AFStatusKey.Get(md); ok && s.Updated && cfg.HasFocus {
		l[device.ControlFocusAbsolute] = clamp32(s.LensPosition, cfg.MinFocus, cfg.MaxFocus)
		h.log.Debug(pkg+"new lens position", "frame", frame, "position", l[device.ControlFocusAbsolute])
	}
	if len(l) != 0 {
		h.emit(Action{Type: ActionSetSensorControls, Frame: frame, Controls: l})
	}
	h.emit(Action{Type: ActionMetadataReady, Frame: frame, Metadata: md})
}
