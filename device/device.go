/*
DESCRIPTION
  device.go provides ControlDevice, an interface that describes a sensor
  device exposing integer controls, such as exposure and analogue gain, that
  can be read and written.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package device provides an interface and implementations for sensor
// devices whose controls can be read and written while streaming.
package device

import (
	"errors"
	"fmt"
	"sort"
)

// ControlID identifies a device control. Values follow the V4L2 control id
// numbering.
type ControlID uint32

// Control ids used by the camera stack.
const (
	ControlExposure       ControlID = 0x00980911 // V4L2_CID_EXPOSURE, in lines.
	ControlAnalogueGain   ControlID = 0x009e0903 // V4L2_CID_ANALOGUE_GAIN, sensor gain code.
	ControlVerticalBlank  ControlID = 0x009e0901 // V4L2_CID_VBLANK.
	ControlHorizontalFlip ControlID = 0x00980914 // V4L2_CID_HFLIP.
	ControlFocusAbsolute  ControlID = 0x009a090a // V4L2_CID_FOCUS_ABSOLUTE, lens position.
)

var controlNames = map[ControlID]string{
	ControlExposure:       "Exposure",
	ControlAnalogueGain:   "AnalogueGain",
	ControlVerticalBlank:  "VerticalBlank",
	ControlHorizontalFlip: "HorizontalFlip",
	ControlFocusAbsolute:  "FocusAbsolute",
}

// String returns the control name, or its hexadecimal id if unknown.
func (id ControlID) String() string {
	if n, ok := controlNames[id]; ok {
		return n
	}
	return fmt.Sprintf("0x%08x", uint32(id))
}

// ErrUnknownControl is returned when a control id is not exposed by a device
// or not tracked by a consumer.
var ErrUnknownControl = errors.New("unknown control")

// ControlInfo describes the range of a control.
type ControlInfo struct {
	Min     int32
	Max     int32
	Default int32
}

// Clamp returns v limited to the control range.
func (i ControlInfo) Clamp(v int32) int32 {
	if v < i.Min {
		return i.Min
	}
	if v > i.Max {
		return i.Max
	}
	return v
}

// ControlList maps control ids to values.
type ControlList map[ControlID]int32

// IDs returns the ids in l in ascending order.
func (l ControlList) IDs() []ControlID {
	ids := make([]ControlID, 0, len(l))
	for id := range l {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clone returns a copy of l.
func (l ControlList) Clone() ControlList {
	c := make(ControlList, len(l))
	for id, v := range l {
		c[id] = v
	}
	return c
}

// ControlDevice describes a device whose controls may be queried and set.
// Implementations must be safe for use by multiple goroutines.
type ControlDevice interface {
	// Name returns the name of the ControlDevice.
	Name() string

	// Controls returns the controls exposed by the device and their ranges.
	Controls() map[ControlID]ControlInfo

	// GetControls returns the current values of the controls in ids. An
	// ErrUnknownControl error is returned if any id is not exposed.
	GetControls(ids []ControlID) (ControlList, error)

	// SetControls writes the values in l to the device. Implementations
	// should attempt every control and return a MultiError describing any
	// that could not be set.
	SetControls(l ControlList) error
}

// MultiError implements the built in error interface. MultiError is used here
// to collect multiple errors during the setting of controls on a
// ControlDevice.
type MultiError []error

func (me MultiError) Error() string {
	if len(me) == 0 {
		panic("device: invalid use of MultiError")
	}
	return fmt.Sprintf("%v", []error(me))
}
