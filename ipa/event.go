/*
DESCRIPTION
  event.go provides the events sent to the image processing host and the
  actions it sends back.

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
	"github.com/ausocean/camstack/buffer"
	"github.com/ausocean/camstack/device"
	"github.com/ausocean/camstack/ipa/metadata"
)

// EventType identifies an event sent to the host.
type EventType uint8

// Events.
const (
	// EventFillParams asks for the parameter buffer BufferID of Frame to be
	// filled.
	EventFillParams EventType = iota + 1

	// EventProcessStats asks for the statistics buffer BufferID of Frame to
	// be processed. Controls holds the sensor controls in effect for the
	// frame.
	EventProcessStats
)

func (t EventType) String() string {
	switch t {
	case EventFillParams:
		return "fill-params"
	case EventProcessStats:
		return "process-stats"
	default:
		return "unknown"
	}
}

// Event is sent from the pipeline to the host. Events hold only plain
// values so that they may be serialised across an isolation boundary.
type Event struct {
	Type     EventType
	Frame    uint32
	BufferID uint32
	Controls device.ControlList
}

// ActionType identifies an action sent by the host.
type ActionType uint8

// Actions.
const (
	// ActionParamsFilled reports that Frame's parameter buffer is ready.
	ActionParamsFilled ActionType = iota + 1

	// ActionSetSensorControls asks for Controls to be queued for the sensor.
	ActionSetSensorControls

	// ActionMetadataReady reports that Frame's statistics were processed and
	// carries the frame's results.
	ActionMetadataReady

	// ActionError reports an unrecoverable fault. Streaming must stop.
	ActionError
)

func (t ActionType) String() string {
	switch t {
	case ActionParamsFilled:
		return "params-filled"
	case ActionSetSensorControls:
		return "set-sensor-controls"
	case ActionMetadataReady:
		return "metadata-ready"
	case ActionError:
		return "error"
	default:
		return "unknown"
	}
}

// Action is sent from the host to the pipeline.
type Action struct {
	Type     ActionType
	Frame    uint32
	Controls device.ControlList
	Metadata *metadata.Metadata
	Err      error
}

// Interface is implemented by the host and by proxies that run a host in
// isolation. Configure and MapBuffers must complete before events are
// processed; actions are delivered asynchronously on the Actions channel.
type Interface interface {
	Configure(c Config) error
	MapBuffers(bufs []*buffer.Buffer) error
	UnmapBuffers(ids []uint32)
	ProcessEvent(e Event) error
	Actions() <-chan Action
	Stop()
}
