/*
DESCRIPTION
  proxy_test.go provides testing for the isolated algorithm host proxy.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package proxy

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/camstack/buffer"
	"github.com/ausocean/camstack/device"
	"github.com/ausocean/camstack/ipa"
	"github.com/ausocean/camstack/ipa/contrast"
	"github.com/ausocean/camstack/ipa/stats"
	"github.com/ausocean/utils/logging"
)

func testConfig() ipa.Config {
	return ipa.Config{
		Grid:         stats.Grid{Width: 8, Height: 6},
		LineDuration: 10 * time.Microsecond,
		GainUnit:     256,
		SensorControls: map[device.ControlID]device.ControlInfo{
			device.ControlExposure:     {Min: 1, Max: 10000},
			device.ControlAnalogueGain: {Min: 256, Max: 4096},
		},
	}
}

func nextAction(t *testing.T, p *Proxy) ipa.Action {
	select {
	case a := <-p.Actions():
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for action")
	}
	return ipa.Action{}
}

func TestFillParams(t *testing.T) {
	log := (*logging.TestLogger)(t)
	mem := buffer.NewMemory(0)
	p := New(log, ipa.New(log, mem, contrast.New(log, 0)), 0, 0, 0)
	defer p.Stop()

	err := p.Configure(testConfig())
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	bufs := mem.Allocate(2, ipa.ParamsSize)
	err = p.MapBuffers(bufs)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	for i, b := range bufs {
		err = p.ProcessEvent(ipa.Event{Type: ipa.EventFillParams, Frame: uint32(i + 1), BufferID: b.ID})
		if err != nil {
			t.Fatalf("did not expect error: %v", err)
		}
	}
	for i := range bufs {
		a := nextAction(t, p)
		if a.Type != ipa.ActionParamsFilled || a.Frame != uint32(i+1) {
			t.Errorf("unexpected action: %v for frame %d", a.Type, a.Frame)
		}
	}

	m, _ := mem.Map(bufs[1])
	got, err := ipa.DecodeParams(m)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if want := contrast.LUT(contrast.DefaultGamma); !got.Gamma || !cmp.Equal(got.GammaLUT, want) {
		t.Error("gamma table not written through proxy")
	}
}

// Controls survive serialisation to the worker.
func TestProcessStatsControls(t *testing.T) {
	log := (*logging.TestLogger)(t)
	mem := buffer.NewMemory(0)
	p := New(log, ipa.New(log, mem), 4, 128, time.Millisecond)
	defer p.Stop()

	c := testConfig()
	err := p.Configure(c)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	bufs := mem.Allocate(1, c.Grid.Size())
	err = p.MapBuffers(bufs)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	m, _ := mem.Map(bufs[0])
	err = stats.Encode(m, &stats.Frame{Grid: c.Grid, Cells: make([]stats.Cell, c.Grid.Cells())})
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	ctrls := device.ControlList{device.ControlExposure: 300, device.ControlAnalogueGain: 1024}
	err = p.ProcessEvent(ipa.Event{Type: ipa.EventProcessStats, Frame: 9, BufferID: bufs[0].ID, Controls: ctrls})
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	a := nextAction(t, p)
	if a.Type != ipa.ActionMetadataReady || a.Frame != 9 {
		t.Fatalf("unexpected action: %v for frame %d", a.Type, a.Frame)
	}
	s, ok := ipa.SensorStatusKey.Get(a.Metadata)
	want := ipa.SensorStatus{Exposure: 300, GainCode: 1024, ShutterTime: 3 * time.Millisecond, AnalogueGain: 4}
	if !ok || !cmp.Equal(s, want) {
		t.Errorf("unexpected sensor status\n%s", cmp.Diff(want, s))
	}
}

func TestHostErrorReported(t *testing.T) {
	log := (*logging.TestLogger)(t)
	p := New(log, ipa.New(log, buffer.NewMemory(0)), 0, 0, 0)
	defer p.Stop()

	err := p.ProcessEvent(ipa.Event{Type: ipa.EventFillParams, Frame: 4})
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	a := nextAction(t, p)
	if a.Type != ipa.ActionError || a.Frame != 4 {
		t.Fatalf("unexpected action: %v for frame %d", a.Type, a.Frame)
	}
	if !errors.Is(a.Err, ipa.ErrNotConfigured) {
		t.Errorf("unexpected error: %v", a.Err)
	}
}

func TestStop(t *testing.T) {
	log := (*logging.TestLogger)(t)
	p := New(log, ipa.New(log, buffer.NewMemory(0)), 0, 0, 0)
	p.Stop()
	p.Stop()
	if err := p.ProcessEvent(ipa.Event{Type: ipa.EventFillParams}); err == nil {
		t.Error("expected error after stop")
	}
}
