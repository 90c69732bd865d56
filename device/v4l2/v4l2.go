/*
DESCRIPTION
  v4l2.go provides the V4L2 control definitions shared by the Linux
  sub-device adapter and its stub.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package v4l2 provides a device.ControlDevice for V4L2 sensor
// sub-devices.
package v4l2

import (
	"errors"
	"unsafe"
)

const pkg = "v4l2: "

// ErrUnsupported is returned on platforms without V4L2.
var ErrUnsupported = errors.New("v4l2 not supported on this platform")

// Control query flags.
const (
	ctrlFlagDisabled = 0x0001
	ctrlFlagNextCtrl = 0x80000000
)

type queryctrl struct {
	id           uint32
	typ          uint32
	name         [32]uint8
	minimum      int32
	maximum      int32
	step         int32
	defaultValue int32
	flags        uint32
	reserved     [2]uint32
}

type control struct {
	id    uint32
	value int32
}

// iowr returns the request code of a read/write ioctl of type 'V'.
func iowr(nr, size uintptr) uint {
	const (
		dirRead  = 2
		dirWrite = 1
	)
	return uint((dirRead|dirWrite)<<30 | size<<16 | uintptr('V')<<8 | nr)
}

var (
	vidiocGCtrl     = iowr(27, unsafe.Sizeof(control{}))
	vidiocSCtrl     = iowr(28, unsafe.Sizeof(control{}))
	vidiocQueryCtrl = iowr(36, unsafe.Sizeof(queryctrl{}))
)

func cString(b []uint8) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
