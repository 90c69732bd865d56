//go:build !linux

/*
DESCRIPTION
  subdev_other.go provides a SubDevice stub for platforms without V4L2.

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
	"github.com/ausocean/camstack/device"
	"github.com/ausocean/utils/logging"
)

// SubDevice is unavailable on this platform.
type SubDevice struct{}

// Open returns ErrUnsupported.
func Open(path string, log logging.Logger) (*SubDevice, error) { return nil, ErrUnsupported }

// Name implements device.ControlDevice.
func (d *SubDevice) Name() string { return "" }

// Controls implements device.ControlDevice.
func (d *SubDevice) Controls() map[device.ControlID]device.ControlInfo { return nil }

// GetControls implements device.ControlDevice.
func (d *SubDevice) GetControls(ids []device.ControlID) (device.ControlList, error) {
	return nil, ErrUnsupported
}

// SetControls implements device.ControlDevice.
func (d *SubDevice) SetControls(l device.ControlList) error { return ErrUnsupported }

// Close implements io.Closer.
func (d *SubDevice) Close() error { return nil }
