/*
DESCRIPTION
  subdev_linux.go provides SubDevice, which reads and writes sensor
  controls through V4L2 ioctls.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package v4l2

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/ausocean/camstack/device"
	"github.com/ausocean/utils/logging"
)

// SubDevice is a V4L2 sub-device node, usually /dev/v4l-subdevN, exposing
// sensor controls. It implements device.ControlDevice.
type SubDevice struct {
	log  logging.Logger
	path string

	mu       sync.Mutex
	fd       int
	name     string
	controls map[device.ControlID]device.ControlInfo
}

// Open opens the sub-device at path and enumerates its controls.
func Open(path string, log logging.Logger) (*SubDevice, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", path)
	}
	d := &SubDevice{log: log, path: path, fd: fd, controls: make(map[device.ControlID]device.ControlInfo)}
	err = d.enumerate()
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "could not enumerate controls of %s", path)
	}
	log.Info(pkg+"opened sub-device", "path", path, "controls", len(d.controls))
	return d, nil
}

func (d *SubDevice) ioctl(req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// enumerate walks the control list with the next-control flag.
func (d *SubDevice) enumerate() error {
	q := queryctrl{id: ctrlFlagNextCtrl}
	for {
		err := d.ioctl(vidiocQueryCtrl, unsafe.Pointer(&q))
		if err == unix.EINVAL {
			break
		}
		if err != nil {
			return err
		}
		if q.flags&ctrlFlagDisabled == 0 {
			d.controls[device.ControlID(q.id)] = device.ControlInfo{Min: q.minimum, Max: q.maximum, Default: q.defaultValue}
			d.log.Debug(pkg+"found control", "id", device.ControlID(q.id).String(), "name", cString(q.name[:]),
				"min", q.minimum, "max", q.maximum, "default", q.defaultValue)
		}
		q = queryctrl{id: q.id | ctrlFlagNextCtrl}
	}
	d.name = d.path
	return nil
}

// Name implements device.ControlDevice.
func (d *SubDevice) Name() string { return d.name }

// Controls implements device.ControlDevice.
func (d *SubDevice) Controls() map[device.ControlID]device.ControlInfo {
	out := make(map[device.ControlID]device.ControlInfo, len(d.controls))
	for id, info := range d.controls {
		out[id] = info
	}
	return out
}

// GetControls implements device.ControlDevice.
func (d *SubDevice) GetControls(ids []device.ControlID) (device.ControlList, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(device.ControlList, len(ids))
	for _, id := range ids {
		if _, ok := d.controls[id]; !ok {
			return nil, fmt.Errorf("%w: %v", device.ErrUnknownControl, id)
		}
		c := control{id: uint32(id)}
		err := d.ioctl(vidiocGCtrl, unsafe.Pointer(&c))
		if err != nil {
			return nil, fmt.Errorf("could not get %v: %w", id, err)
		}
		out[id] = c.value
	}
	return out, nil
}

// SetControls implements device.ControlDevice. Every control is attempted
// and failures are collected in a device.MultiError.
func (d *SubDevice) SetControls(l device.ControlList) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs device.MultiError
	for _, id := range l.IDs() {
		info, ok := d.controls[id]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %v", device.ErrUnknownControl, id))
			continue
		}
		c := control{id: uint32(id), value: info.Clamp(l[id])}
		err := d.ioctl(vidiocSCtrl, unsafe.Pointer(&c))
		if err != nil {
			errs = append(errs, fmt.Errorf("could not set %v: %w", id, err))
		}
	}
	if len(errs) != 0 {
		return errs
	}
	return nil
}

// Close closes the sub-device.
func (d *SubDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return unix.Close(d.fd)
}
