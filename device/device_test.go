/*
DESCRIPTION
  device_test.go provides testing for the control types of the device
  package.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package device

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestControlList(t *testing.T) {
	l := ControlList{ControlAnalogueGain: 2, ControlExposure: 1}
	want := []ControlID{ControlExposure, ControlAnalogueGain}
	if !cmp.Equal(l.IDs(), want) {
		t.Errorf("unexpected ids, got: %v, want: %v", l.IDs(), want)
	}

	c := l.Clone()
	c[ControlExposure] = 5
	if l[ControlExposure] != 1 {
		t.Error("clone shares storage with original")
	}
}

func TestClamp(t *testing.T) {
	i := ControlInfo{Min: 4, Max: 10}
	for _, test := range []struct{ in, want int32 }{{0, 4}, {7, 7}, {11, 10}} {
		if got := i.Clamp(test.in); got != test.want {
			t.Errorf("unexpected clamp of %d, got: %d, want: %d", test.in, got, test.want)
		}
	}
}

func TestControlIDString(t *testing.T) {
	if got := ControlExposure.String(); got != "Exposure" {
		t.Errorf("unexpected name: %s", got)
	}
	if got := ControlID(0x1234).String(); got != "0x00001234" {
		t.Errorf("unexpected name: %s", got)
	}
}

func TestMultiError(t *testing.T) {
	var err error = MultiError{ErrUnknownControl, errors.New("busy")}
	if err.Error() != "[unknown control busy]" {
		t.Errorf("unexpected error string: %s", err)
	}
}
