/*
DESCRIPTION
  delayed.go provides Controls, which schedules sensor control writes so
  that controls with different latencies take effect on the same frame, and
  reports the values in effect for any past frame.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package delayed provides a scheduler for sensor controls whose writes take
// effect a fixed number of frames after they are made.
package delayed

import (
	"fmt"
	"sync"

	"github.com/ausocean/camstack/device"
	"github.com/ausocean/utils/logging"
)

const pkg = "delayed: "

// DefaultDepth is the default number of positions of history kept per control.
const DefaultDepth = 16

// entry is one queued value of a control. updated is set when the value was
// explicitly pushed at this position rather than carried forward.
type entry struct {
	value   int32
	updated bool
}

// Controls schedules control values pushed at request positions and writes
// them to a device at frame start, earlier for controls with longer delays,
// so that every control pushed at the same position lands on the same frame.
//
// Positions are counted from the last Reset. queueCount is the next position
// to push, and writeCount the next position to write. The ring depth bounds
// how far pushes may run ahead of writes and how far back Get can look.
type Controls struct {
	mu  sync.Mutex
	dev device.ControlDevice
	log logging.Logger

	delays   map[device.ControlID]uint32
	maxDelay uint32
	depth    int

	running       bool
	firstSequence uint32
	queueCount    uint32
	writeCount    uint32
	values        map[device.ControlID]*ring[entry]
}

// New returns Controls for dev. delays maps each tracked control to the
// number of frames between writing it and it taking effect. depth is the
// history kept per control; zero means DefaultDepth. Every tracked control
// must be exposed by dev, and New seeds the history with the device's
// current values.
func New(dev device.ControlDevice, delays map[device.ControlID]uint32, depth int, log logging.Logger) (*Controls, error) {
	if len(delays) == 0 {
		return nil, fmt.Errorf("%w: no controls to track", device.ErrUnknownControl)
	}
	if depth <= 0 {
		depth = DefaultDepth
	}

	exposed := dev.Controls()
	c := &Controls{
		dev:    dev,
		log:    log,
		delays: make(map[device.ControlID]uint32, len(delays)),
		depth:  depth,
		values: make(map[device.ControlID]*ring[entry], len(delays)),
	}
	for id, d := range delays {
		if _, ok := exposed[id]; !ok {
			return nil, fmt.Errorf("%w: %v not exposed by %s", device.ErrUnknownControl, id, dev.Name())
		}
		c.delays[id] = d
		if d > c.maxDelay {
			c.maxDelay = d
		}
		c.values[id] = newRing[entry](depth)
	}
	if int(c.maxDelay) >= depth {
		return nil, fmt.Errorf("delay of %d frames needs history deeper than %d", c.maxDelay, depth)
	}

	err := c.Reset(nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// MaxDelay returns the largest tracked delay.
func (c *Controls) MaxDelay() uint32 { return c.maxDelay }

// Reset discards all history, writes l to the device if it is not empty,
// then reads the current control values from the device and seeds position
// 0 with them. The seeded values are written again at the first frame start.
func (c *Controls) Reset(l device.ControlList) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(l) != 0 {
		err := c.dev.SetControls(l)
		if err != nil {
			return fmt.Errorf("could not apply reset controls: %w", err)
		}
	}

	ids := make([]device.ControlID, 0, len(c.delays))
	for id := range c.delays {
		ids = append(ids, id)
	}
	current, err := c.dev.GetControls(ids)
	if err != nil {
		return fmt.Errorf("could not read initial control values: %w", err)
	}

	c.running = false
	c.firstSequence = 0
	c.queueCount = 1
	c.writeCount = 0
	for id, r := range c.values {
		r.reset()
		*r.at(0) = entry{value: current[id], updated: true}
	}
	return nil
}

// Push queues the values in l at the next position. Controls not present in
// l carry their previous value forward. If l holds an untracked control
// nothing is queued and false is returned.
func (c *Controls) Push(l device.ControlList) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id := range l {
		if _, ok := c.delays[id]; !ok {
			c.log.Error(pkg+"cannot push untracked control", "control", id.String())
			return false
		}
	}
	c.queue(l)
	return true
}

// queue appends a position. c.mu must be held.
func (c *Controls) queue(l device.ControlList) {
	if c.queueCount-c.writeCount >= uint32(c.depth) {
		c.log.Warning(pkg+"control queue overflow, oldest unwritten values lost", "queued", c.queueCount, "written", c.writeCount)
	}
	for id, r := range c.values {
		prev := r.at(c.queueCount - 1).value
		next := entry{value: prev}
		if v, ok := l[id]; ok {
			next = entry{value: v, updated: true}
		}
		*r.at(c.queueCount) = next
	}
	c.queueCount++
}

// Get returns the control values in effect for the frame with the given
// sequence number. Sequences before the first frame start, or beyond the
// last queued position, give the nearest known values.
func (c *Controls) Get(sequence uint32) device.ControlList {
	c.mu.Lock()
	defer c.mu.Unlock()

	index := c.index(sequence)
	out := make(device.ControlList, len(c.values))
	for id, r := range c.values {
		out[id] = r.at(index).value
	}
	return out
}

// index returns the position whose values are in effect for sequence.
// c.mu must be held.
func (c *Controls) index(sequence uint32) uint32 {
	var index uint32
	if c.running && sequence >= c.firstSequence {
		rel := int64(sequence) - int64(c.firstSequence) + 1 - int64(c.maxDelay)
		if rel > 0 {
			index = uint32(rel)
		}
	}
	if index >= c.queueCount {
		index = c.queueCount - 1
	}
	if c.queueCount > uint32(c.depth) && index < c.queueCount-uint32(c.depth) {
		index = c.queueCount - uint32(c.depth)
	}
	return index
}

// FrameStart must be called at the start of every frame. It writes to the
// device each control whose value at the position due for its delay was
// explicitly pushed, then advances the write position, queueing empty
// positions if writes have caught up with pushes.
func (c *Controls) FrameStart(sequence uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		c.firstSequence = sequence
		c.running = true
	}

	out := make(device.ControlList)
	for id, r := range c.values {
		var index uint32
		if lead := c.maxDelay - c.delays[id]; c.writeCount > lead {
			index = c.writeCount - lead
		}
		e := r.at(index)
		if !e.updated {
			continue
		}
		out[id] = e.value
		c.log.Debug(pkg+"setting control", "control", id.String(), "value", e.value, "sequence", sequence, "index", index)
	}

	c.writeCount++
	for c.writeCount >= c.queueCount {
		c.queue(nil)
	}

	if len(out) == 0 {
		return nil
	}
	err := c.dev.SetControls(out)
	if err != nil {
		return fmt.Errorf("could not set controls for frame %d: %w", sequence, err)
	}
	return nil
}
