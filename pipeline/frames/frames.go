/*
DESCRIPTION
  frames.go provides Tracker, which binds in-flight capture requests to
  pooled parameter and statistics buffers and decides when each frame has
  completed every processing stage.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package frames provides bookkeeping for frames in flight through the
// capture and image processing stages.
package frames

import (
	"sort"

	"github.com/ausocean/camstack/buffer"
	"github.com/ausocean/utils/logging"
)

const pkg = "frames: "

// Record is the bookkeeping for one in-flight frame. The completion flags
// only ever move from false to true.
type Record[R comparable] struct {
	ID          uint32
	Request     R
	RawBuffer   *buffer.Buffer
	ParamBuffer *buffer.Buffer
	StatBuffer  *buffer.Buffer

	paramsFilled   bool
	paramsConsumed bool
	statsProcessed bool
}

// SetParamsFilled records that the parameter buffer has been filled.
func (r *Record[R]) SetParamsFilled() { r.paramsFilled = true }

// SetParamsConsumed records that the processing hardware has consumed the
// parameter buffer.
func (r *Record[R]) SetParamsConsumed() { r.paramsConsumed = true }

// SetStatsProcessed records that the statistics buffer has been processed.
func (r *Record[R]) SetStatsProcessed() { r.statsProcessed = true }

// ParamsFilled reports whether the parameter buffer has been filled.
func (r *Record[R]) ParamsFilled() bool { return r.paramsFilled }

// ParamsConsumed reports whether the parameter buffer has been consumed.
func (r *Record[R]) ParamsConsumed() bool { return r.paramsConsumed }

// StatsProcessed reports whether the statistics buffer has been processed.
func (r *Record[R]) StatsProcessed() bool { return r.statsProcessed }

// Tracker owns the parameter and statistics buffer pools and the records of
// frames in flight. R is the type of the capture request handle, which the
// tracker refers to but does not own. Tracker is not safe for concurrent use.
type Tracker[R comparable] struct {
	log     logging.Logger
	params  *buffer.Pool
	stats   *buffer.Pool
	nextID  uint32
	records map[uint32]*Record[R]
}

// NewTracker returns an empty Tracker.
func NewTracker[R comparable](log logging.Logger) *Tracker[R] {
	return &Tracker[R]{
		log:     log,
		params:  buffer.NewPool(nil),
		stats:   buffer.NewPool(nil),
		records: make(map[uint32]*Record[R]),
	}
}

// Init fills the pools with the given buffers and resets frame ids.
func (t *Tracker[R]) Init(params, stats []*buffer.Buffer) {
	t.params = buffer.NewPool(params)
	t.stats = buffer.NewPool(stats)
	t.nextID = 0
	t.records = make(map[uint32]*Record[R])
}

// Clear drops every in-flight record, returning its buffers to the pools.
func (t *Tracker[R]) Clear() {
	for _, id := range t.ids() {
		t.release(t.records[id])
	}
	t.records = make(map[uint32]*Record[R])
}

// Create returns a new record for req with a fresh id, taking a buffer from
// each pool. If either pool is empty nothing is taken and nil is returned;
// callers should report backpressure.
func (t *Tracker[R]) Create(req R, raw *buffer.Buffer) *Record[R] {
	if t.params.Len() == 0 {
		t.log.Warning(pkg + "parameter buffer underrun")
		return nil
	}
	if t.stats.Len() == 0 {
		t.log.Warning(pkg + "statistics buffer underrun")
		return nil
	}
	p, _ := t.params.Get()
	s, _ := t.stats.Get()

	r := &Record[R]{ID: t.nextID, Request: req, RawBuffer: raw, ParamBuffer: p, StatBuffer: s}
	t.nextID++
	t.records[r.ID] = r
	return r
}

// TryComplete completes r if every stage flag is set, returning its buffers
// to the pools and removing it. It returns true exactly once per record.
func (t *Tracker[R]) TryComplete(r *Record[R]) bool {
	if r == nil || !r.paramsFilled || !r.paramsConsumed || !r.statsProcessed {
		return false
	}
	if t.records[r.ID] != r {
		return false
	}
	t.release(r)
	delete(t.records, r.ID)
	return true
}

// release returns r's pooled buffers.
func (t *Tracker[R]) release(r *Record[R]) {
	t.params.Put(r.ParamBuffer)
	t.stats.Put(r.StatBuffer)
}

// Find returns the in-flight record with the given id, or nil.
func (t *Tracker[R]) Find(id uint32) *Record[R] {
	r, ok := t.records[id]
	if !ok {
		t.log.Error(pkg+"cannot find tracking information for frame", "id", id)
		return nil
	}
	return r
}

// FindByBuffer returns the in-flight record holding b as its raw, parameter
// or statistics buffer, or nil.
func (t *Tracker[R]) FindByBuffer(b *buffer.Buffer) *Record[R] {
	for _, r := range t.records {
		if r.RawBuffer == b || r.ParamBuffer == b || r.StatBuffer == b {
			return r
		}
	}
	if b == nil {
		t.log.Error(pkg + "cannot find tracking information for nil buffer")
		return nil
	}
	t.log.Error(pkg+"cannot find tracking information for buffer", "buffer", b.ID)
	return nil
}

// FindByRequest returns the in-flight record for req, or nil.
func (t *Tracker[R]) FindByRequest(req R) *Record[R] {
	for _, r := range t.records {
		if r.Request == req {
			return r
		}
	}
	t.log.Error(pkg + "cannot find tracking information for request")
	return nil
}

// Busy reports whether req, or a raw buffer equal to raw, belongs to an
// in-flight record. A nil raw matches nothing. Unlike the Find methods a
// miss is not logged.
func (t *Tracker[R]) Busy(req R, raw *buffer.Buffer) bool {
	for _, r := range t.records {
		if r.Request == req || raw != nil && r.RawBuffer == raw {
			return true
		}
	}
	return false
}

// InFlight returns the in-flight records in id order.
func (t *Tracker[R]) InFlight() []*Record[R] {
	ids := t.ids()
	recs := make([]*Record[R], len(ids))
	for i, id := range ids {
		recs[i] = t.records[id]
	}
	return recs
}

// Available returns the number of free parameter and statistics buffers.
func (t *Tracker[R]) Available() (params, stats int) { return t.params.Len(), t.stats.Len() }

func (t *Tracker[R]) ids() []uint32 {
	ids := make([]uint32, 0, len(t.records))
	for id := range t.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
