/*
DESCRIPTION
  analyse_test.go provides testing for analyse.go.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"math"
	"testing"
	"time"

	"github.com/ausocean/camstack/device"
	"github.com/ausocean/camstack/ipa"
	"github.com/ausocean/camstack/ipa/stats"
	"github.com/ausocean/utils/logging"
)

func uniform(r, g, b uint8) *stats.Frame {
	grid := stats.Grid{Width: 16, Height: 12}
	f := &stats.Frame{Grid: grid, Cells: make([]stats.Cell, grid.Cells())}
	for i := range f.Cells {
		f.Cells[i] = stats.Cell{GreenRed: g, Red: r, Blue: b, GreenBlue: g, Focus: uint16(i % 2 * 100)}
	}
	return f
}

func TestAnalyse(t *testing.T) {
	tests := []struct {
		name       string
		frame      *stats.Frame
		red, blue  float64
		minLines   int32
		maxLines   int32
		wantUpdate bool
	}{
		{
			// The top of the histogram sits at a quarter of the range, so
			// the exposure should roughly double.
			name:       "dark grey",
			frame:      uniform(64, 64, 64),
			red:        1,
			blue:       1,
			minLines:   1800,
			maxLines:   2100,
			wantUpdate: true,
		},
		{
			name:       "blue tint",
			frame:      uniform(32, 64, 128),
			red:        2,
			blue:       0.5,
			minLines:   1800,
			maxLines:   2100,
			wantUpdate: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r, err := analyse((*logging.TestLogger)(t), test.frame, 10*time.Millisecond, 1)
			if err != nil {
				t.Fatalf("did not expect error: %v", err)
			}

			if r.sensor.ShutterTime != 10*time.Millisecond || r.sensor.AnalogueGain != 1 {
				t.Errorf("unexpected sensor status: %+v", r.sensor)
			}
			if r.agc.Updated != test.wantUpdate {
				t.Errorf("unexpected agc update, got %v want %v", r.agc.Updated, test.wantUpdate)
			}
			if r.agc.State != ipa.AGCConverging {
				t.Errorf("unexpected agc state: %v", r.agc.State)
			}
			if r.proposed == nil {
				t.Fatal("expected proposed sensor controls")
			}
			lines := r.proposed[device.ControlExposure]
			if lines < test.minLines || lines > test.maxLines {
				t.Errorf("proposed exposure %d lines outside [%d, %d]", lines, test.minLines, test.maxLines)
			}

			if r.focus != 50 {
				t.Errorf("unexpected focus response: %v", r.focus)
			}

			if !r.awb.Updated {
				t.Fatal("expected awb update")
			}
			if math.Abs(r.awb.Gains.R-test.red) > 0.05 || math.Abs(r.awb.Gains.B-test.blue) > 0.05 {
				t.Errorf("unexpected gains, got r %v b %v want r %v b %v", r.awb.Gains.R, r.awb.Gains.B, test.red, test.blue)
			}
		})
	}
}
