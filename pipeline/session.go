/*
DESCRIPTION
  session.go provides Session, which runs a streaming session: it moves
  capture requests through sensor capture, image signal processing and
  the image processing algorithms, and applies the resulting sensor
  controls with the right frame delays.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package pipeline provides the camera pipeline session and the frame
// bookkeeping it relies on.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ausocean/camstack/buffer"
	"github.com/ausocean/camstack/device"
	"github.com/ausocean/camstack/ipa"
	"github.com/ausocean/camstack/ipa/af"
	"github.com/ausocean/camstack/ipa/agc"
	"github.com/ausocean/camstack/ipa/awb"
	"github.com/ausocean/camstack/ipa/contrast"
	"github.com/ausocean/camstack/ipa/proxy"
	"github.com/ausocean/camstack/ipa/stats"
	"github.com/ausocean/camstack/pipeline/config"
	"github.com/ausocean/camstack/pipeline/delayed"
	"github.com/ausocean/camstack/pipeline/frames"
)

// Session errors.
var (
	ErrNotRunning = errors.New("session not running")
	ErrNoBuffers  = errors.New("no parameter or statistics buffer available")

	// ErrRequestBusy is returned when a request, or its raw buffer, is
	// queued again before it has completed.
	ErrRequestBusy = errors.New("request already queued")
)

// Hardware is the capture and processing hardware driven by a Session.
// Completions are reported back through the Session's FrameStart,
// RawReady, ParamsDone and StatsReady methods, which may be called from
// any goroutine, including from within these methods.
type Hardware interface {
	// QueueRaw queues b to receive a frame from the sensor.
	QueueRaw(b *buffer.Buffer) error

	// QueueISP queues a captured raw buffer for processing with the
	// parameters in params, the results being written to stats.
	QueueISP(raw, params, stats *buffer.Buffer) error
}

// Session is a camera streaming session. All frame bookkeeping happens on
// a single event loop goroutine; exported methods post work to it.
type Session struct {
	// cfg holds the session configuration.
	cfg config.Config

	dev    device.ControlDevice
	hw     Hardware
	mapper buffer.Mapper

	// Parameter and statistics buffers shared with the image processing host.
	params []*buffer.Buffer
	stats  []*buffer.Buffer

	// mu serialises Start, Stop and Update.
	mu      sync.Mutex
	running atomic.Bool
	id      uuid.UUID

	// lmu guards the queues and the completion handler, which are used
	// from the event loop and hardware callbacks.
	lmu         sync.Mutex
	events      *taskQueue
	completions *taskQueue
	onComplete  func(*Request)

	// The following are owned by the event loop while running.
	ipa      ipa.Interface
	controls *delayed.Controls
	frames   *frames.Tracker[*Request]
	stopping bool

	done   chan struct{}
	loopWG sync.WaitGroup // Event loop and action forwarder.
	doneWG sync.WaitGroup // Completion handler.

	// err carries errors that ended a session.
	err chan error
}

// New returns a Session controlling the sensor through dev and the capture
// hardware through hw. mapper gives the image processing host access to
// parameter and statistics buffer memory.
func New(c config.Config, dev device.ControlDevice, hw Hardware, mapper buffer.Mapper) (*Session, error) {
	if dev == nil || hw == nil || mapper == nil {
		return nil, errors.New("device, hardware and mapper must be provided")
	}
	s := &Session{dev: dev, hw: hw, mapper: mapper, err: make(chan error, 1)}
	err := s.setConfig(c)
	if err != nil {
		return nil, fmt.Errorf("could not set config: %w", err)
	}
	return s, nil
}

func (s *Session) setConfig(c config.Config) error {
	if c.Logger == nil {
		return errors.New("no logger")
	}
	err := c.Validate()
	if err != nil {
		return fmt.Errorf("config struct is bad: %w", err)
	}
	s.cfg = c
	s.cfg.Logger.SetLevel(s.cfg.LogLevel)
	return nil
}

// Config returns a copy of the session's config.
func (s *Session) Config() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// ID returns the identifier of the current or most recent run.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id.String()
}

// Running reports whether the session is streaming.
func (s *Session) Running() bool { return s.running.Load() }

// Err returns a channel on which errors that stopped the session are sent.
func (s *Session) Err() <-chan error { return s.err }

// SetBuffers sets the parameter and statistics buffers used by the next
// run. Each frame in flight holds one of each.
func (s *Session) SetBuffers(params, stats []*buffer.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return errors.New("cannot set buffers while running")
	}
	if len(params) == 0 || len(stats) == 0 {
		return errors.New("need at least one parameter and one statistics buffer")
	}
	s.params, s.stats = params, stats
	return nil
}

// SetCompletionHandler sets the function called with each request once it
// completes or is cancelled. The handler runs on its own goroutine and may
// call QueueRequest and Running, but no other Session method.
func (s *Session) SetCompletionHandler(fn func(*Request)) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.onComplete = fn
}

// Start configures the algorithms, maps the buffers and starts the event
// loop. If any step fails, everything set up so far is released and the
// session is left stopped.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		s.cfg.Logger.Warning("start called, but session already running")
		return nil
	}
	if len(s.params) == 0 || len(s.stats) == 0 {
		return errors.New("no buffers set")
	}

	s.id = uuid.New()
	log := s.cfg.Logger
	log.Debug("starting session", "id", s.id.String())

	delays := map[device.ControlID]uint32{
		device.ControlExposure:     uint32(s.cfg.ExposureDelay),
		device.ControlAnalogueGain: uint32(s.cfg.GainDelay),
	}
	if s.cfg.Has(config.AlgoAF) {
		delays[device.ControlFocusAbsolute] = uint32(s.cfg.FocusDelay)
	}
	ctrls, err := delayed.New(s.dev, delays, int(s.cfg.HistoryDepth), log)
	if err != nil {
		return fmt.Errorf("could not create delayed controls: %w", err)
	}

	host := s.newIPA()
	err = host.Configure(ipa.Config{
		Grid:           s.grid(),
		LineDuration:   s.cfg.LineDuration,
		GainUnit:       float64(s.cfg.GainUnit),
		SensorControls: s.dev.Controls(),
	})
	if err != nil {
		host.Stop()
		return fmt.Errorf("could not configure image processing: %w", err)
	}

	bufs := append(append([]*buffer.Buffer{}, s.params...), s.stats...)
	err = host.MapBuffers(bufs)
	if err != nil {
		host.Stop()
		return fmt.Errorf("could not map buffers: %w", err)
	}

	s.ipa = host
	s.controls = ctrls
	s.frames = frames.NewTracker[*Request](log)
	s.frames.Init(s.params, s.stats)

	s.stopping = false

	events, completions := newTaskQueue(), newTaskQueue()
	s.lmu.Lock()
	s.events, s.completions = events, completions
	s.lmu.Unlock()

	s.done = make(chan struct{})
	s.loopWG.Add(2)
	go func() { defer s.loopWG.Done(); events.run() }()
	go s.forwardActions(host.Actions(), events, s.done)
	s.doneWG.Add(1)
	go func() { defer s.doneWG.Done(); completions.run() }()

	s.running.Store(true)
	log.Info("session started", "id", s.id.String(), "isolated", s.cfg.Isolated)
	return nil
}

// newIPA returns the image processing host with the configured algorithms,
// behind a proxy if the session is isolated.
func (s *Session) newIPA() ipa.Interface {
	c := s.cfg
	var algos []ipa.Algorithm
	if c.Has(config.AlgoAWB) {
		algos = append(algos, awb.New(c.Logger, awb.Config{
			ZonesX:         int(c.ZonesX),
			ZonesY:         int(c.ZonesY),
			MinZoneCounted: uint32(c.MinZoneCounted),
			MinZoneGreen:   float64(c.MinZoneGreen),
			MinZones:       int(c.MinAWBZones),
		}))
	}
	if c.Has(config.AlgoAGC) {
		metering := agc.MeteringAverage
		if c.Metering == config.MeteringCentre {
			metering = agc.MeteringCentre
		}
		algos = append(algos, agc.New(c.Logger, agc.Config{
			Metering:      metering,
			TargetLuma:    c.TargetLuma,
			MinShutter:    c.MinShutter,
			MaxShutter:    c.MaxShutter,
			MinGain:       c.MinGain,
			MaxGain:       c.MaxGain,
			StartupFrames: int(c.StartupFrames),
			FilterSpeed:   c.FilterSpeed,
		}))
	}
	if c.Has(config.AlgoContrast) {
		algos = append(algos, contrast.New(c.Logger, c.Gamma))
	}
	if c.Has(config.AlgoAF) {
		algos = append(algos, af.New(c.Logger, af.Config{}))
	}

	host := ipa.New(c.Logger, s.mapper, algos...)
	if !c.Isolated {
		return host
	}
	return proxy.New(c.Logger, host, int(c.ProxyChunks), int(c.ProxyChunkSize), c.ProxyTimeout)
}

// forwardActions posts each action from the image processing host to the
// event loop until done is closed.
func (s *Session) forwardActions(actions <-chan ipa.Action, q *taskQueue, done chan struct{}) {
	defer s.loopWG.Done()
	for {
		select {
		case <-done:
			return
		case a := <-actions:
			q.post(func() {
				if !s.stopping {
					s.handleAction(a)
				}
			})
		}
	}
}

// Stop cancels every request in flight, stops the event loop and releases
// the image processing host. Each in-flight request is handed to the
// completion handler exactly once with RequestCancelled.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		s.cfg.Logger.Warning("stop called but session isn't running")
		return
	}
	s.running.Store(false)
	log := s.cfg.Logger

	s.lmu.Lock()
	events, completions := s.events, s.completions
	s.lmu.Unlock()

	log.Debug("cancelling requests in flight")
	cancelled := make(chan struct{})
	if events.post(func() { s.cancelAll(); close(cancelled) }) {
		<-cancelled
	}

	// Stopping the host first stops it blocking on action delivery.
	s.ipa.Stop()

	log.Debug("waiting for routines to finish")
	close(s.done)
	events.close()
	s.loopWG.Wait()
	completions.close()
	s.doneWG.Wait()

	s.lmu.Lock()
	s.events, s.completions = nil, nil
	s.lmu.Unlock()

	var ids []uint32
	for _, b := range append(append([]*buffer.Buffer{}, s.params...), s.stats...) {
		ids = append(ids, b.ID)
	}
	s.ipa.UnmapBuffers(ids)
	log.Info("session stopped", "id", s.id.String())
}

// Update stops the session if it is running and updates its config with
// vars. The session must be started again by the caller.
func (s *Session) Update(vars map[string]string) error {
	if s.Running() {
		s.cfg.Logger.Debug("session running; stopping for re-config")
		s.Stop()
		s.cfg.Logger.Info("session was running; stopped for re-config")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Logger.Debug("checking vars", "vars", vars)
	s.cfg.Update(vars)
	err := s.cfg.Validate()
	if err != nil {
		return fmt.Errorf("config struct is bad: %w", err)
	}
	s.cfg.Logger.SetLevel(s.cfg.LogLevel)
	s.cfg.Logger.Info("finished reconfig")
	return nil
}

// QueueRequest submits r for capture. ErrNoBuffers is returned when every
// parameter or statistics buffer is in use; the caller should retry once a
// request completes. ErrRequestBusy is returned if r, or another request
// using r.Raw, has not yet been handed to the completion handler.
func (s *Session) QueueRequest(r *Request) error {
	if r == nil || r.Raw == nil {
		return errors.New("request has no raw buffer")
	}
	s.lmu.Lock()
	events := s.events
	s.lmu.Unlock()
	if events == nil {
		return ErrNotRunning
	}

	res := make(chan error, 1)
	ok := events.post(func() {
		if s.stopping {
			res <- ErrNotRunning
			return
		}
		res <- s.queueRequest(r)
	})
	if !ok {
		return ErrNotRunning
	}
	return <-res
}

func (s *Session) queueRequest(r *Request) error {
	if s.frames.Busy(r, r.Raw) {
		return ErrRequestBusy
	}
	rec := s.frames.Create(r, r.Raw)
	if rec == nil {
		return ErrNoBuffers
	}
	r.Reuse()

	err := s.hw.QueueRaw(r.Raw)
	if err != nil {
		s.drop(rec)
		return fmt.Errorf("could not queue raw buffer: %w", err)
	}

	err = s.ipa.ProcessEvent(ipa.Event{Type: ipa.EventFillParams, Frame: rec.ID, BufferID: rec.ParamBuffer.ID})
	if err != nil {
		s.fail(fmt.Errorf("could not request parameters for frame %d: %w", rec.ID, err))
	}
	return nil
}

// drop releases a record without completing its request.
func (s *Session) drop(rec *frames.Record[*Request]) {
	rec.SetParamsFilled()
	rec.SetParamsConsumed()
	rec.SetStatsProcessed()
	s.frames.TryComplete(rec)
}

// FrameStart is called by the hardware when the sensor starts exposing
// the frame with sequence seq.
func (s *Session) FrameStart(seq uint32) {
	s.post(func() {
		err := s.controls.FrameStart(seq)
		if err != nil {
			s.cfg.Logger.Error("could not apply delayed controls", "sequence", seq, "error", err.Error())
		}
	})
}

// RawReady is called by the hardware when a raw buffer has been filled.
func (s *Session) RawReady(b *buffer.Buffer) {
	s.post(func() {
		rec := s.frames.FindByBuffer(b)
		if rec == nil {
			return
		}
		r := rec.Request
		r.captured = true
		r.Sequence = b.Metadata.Sequence
		r.Timestamp = b.Metadata.Timestamp
		if b.Metadata.Status != buffer.StatusSuccess {
			s.cfg.Logger.Warning("raw capture failed", "frame", rec.ID, "status", b.Metadata.Status.String())
			r.Status = RequestCancelled
			s.drop(rec)
			s.complete(r)
			return
		}
		s.tryQueueISP(rec)
	})
}

// ParamsDone is called by the hardware once it has consumed a parameter
// buffer.
func (s *Session) ParamsDone(b *buffer.Buffer) {
	s.post(func() {
		rec := s.frames.FindByBuffer(b)
		if rec == nil {
			return
		}
		rec.SetParamsConsumed()
		s.tryComplete(rec)
	})
}

// StatsReady is called by the hardware once it has filled a statistics
// buffer. The statistics are processed with the sensor controls in effect
// for the frame they describe.
func (s *Session) StatsReady(b *buffer.Buffer) {
	s.post(func() {
		rec := s.frames.FindByBuffer(b)
		if rec == nil {
			return
		}
		ctrls := s.controls.Get(rec.Request.Sequence)
		err := s.ipa.ProcessEvent(ipa.Event{
			Type:     ipa.EventProcessStats,
			Frame:    rec.ID,
			BufferID: b.ID,
			Controls: ctrls,
		})
		if err != nil {
			s.fail(fmt.Errorf("could not process statistics for frame %d: %w", rec.ID, err))
		}
	})
}

// Sync waits until the event loop has handled every event posted before
// the call.
func (s *Session) Sync() error {
	s.lmu.Lock()
	events := s.events
	s.lmu.Unlock()
	if events == nil {
		return ErrNotRunning
	}
	done := make(chan struct{})
	if !events.post(func() { close(done) }) {
		return ErrNotRunning
	}
	<-done
	return nil
}

// post runs fn on the event loop. Work posted once the session has begun
// stopping is dropped.
func (s *Session) post(fn func()) {
	s.lmu.Lock()
	events := s.events
	s.lmu.Unlock()
	ok := events != nil && events.post(func() {
		if !s.stopping {
			fn()
		}
	})
	if !ok {
		s.cfg.Logger.Debug("session not running, dropping event")
	}
}

func (s *Session) handleAction(a ipa.Action) {
	switch a.Type {
	case ipa.ActionParamsFilled:
		rec := s.frames.Find(a.Frame)
		if rec == nil {
			return
		}
		rec.SetParamsFilled()
		s.tryQueueISP(rec)

	case ipa.ActionSetSensorControls:
		if !s.controls.Push(a.Controls) {
			s.cfg.Logger.Error("could not queue sensor controls", "frame", a.Frame)
		}

	case ipa.ActionMetadataReady:
		rec := s.frames.Find(a.Frame)
		if rec == nil {
			return
		}
		if rec.Request.Metadata == nil {
			rec.Request.Metadata = a.Metadata
		} else if a.Metadata != nil {
			rec.Request.Metadata.Merge(a.Metadata)
		}
		rec.SetStatsProcessed()
		s.tryComplete(rec)

	case ipa.ActionError:
		s.fail(fmt.Errorf("image processing failed on frame %d: %w", a.Frame, a.Err))

	default:
		s.cfg.Logger.Warning("unknown action", "type", a.Type.String())
	}
}

// tryQueueISP queues rec for processing once its raw frame is captured and
// its parameters are filled.
func (s *Session) tryQueueISP(rec *frames.Record[*Request]) {
	r := rec.Request
	if !r.captured || !rec.ParamsFilled() || r.ispQueued {
		return
	}
	r.ispQueued = true
	err := s.hw.QueueISP(rec.RawBuffer, rec.ParamBuffer, rec.StatBuffer)
	if err != nil {
		s.fail(fmt.Errorf("could not queue frame %d for processing: %w", rec.ID, err))
	}
}

func (s *Session) tryComplete(rec *frames.Record[*Request]) {
	if !s.frames.TryComplete(rec) {
		return
	}
	rec.Request.Status = RequestComplete
	s.complete(rec.Request)
}

// complete hands r to the completion handler.
func (s *Session) complete(r *Request) {
	s.lmu.Lock()
	fn, completions := s.onComplete, s.completions
	s.lmu.Unlock()
	if fn == nil || completions == nil {
		return
	}
	completions.post(func() { fn(r) })
}

// cancelAll cancels every request in flight. It runs on the event loop.
func (s *Session) cancelAll() {
	s.stopping = true
	for _, rec := range s.frames.InFlight() {
		rec.Request.Status = RequestCancelled
		s.drop(rec)
		s.complete(rec.Request)
	}
	s.frames.Clear()
}

// fail reports err and stops the session. It runs on the event loop, so
// the stop happens on another goroutine.
func (s *Session) fail(err error) {
	if s.stopping {
		return
	}
	s.stopping = true
	s.cfg.Logger.Error("session failed", "error", err.Error())
	select {
	case s.err <- err:
	default:
	}
	go s.Stop()
}

// grid returns the statistics grid of the sensor.
func (s *Session) grid() stats.Grid {
	return stats.Grid{Width: int(s.cfg.GridWidth), Height: int(s.cfg.GridHeight)}
}
