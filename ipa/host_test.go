/*
DESCRIPTION
  host_test.go provides testing for the algorithm host and the parameter
  buffer codec.

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
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/camstack/buffer"
	"github.com/ausocean/camstack/device"
	"github.com/ausocean/camstack/ipa/stats"
	"github.com/ausocean/utils/logging"
)

var testGrid = stats.Grid{Width: 8, Height: 6}

func testConfig() Config {
	return Config{
		Grid:         testGrid,
		LineDuration: 10 * time.Microsecond,
		GainUnit:     256,
		SensorControls: map[device.ControlID]device.ControlInfo{
			device.ControlExposure:     {Min: 0, Max: 10000, Default: 100},
			device.ControlAnalogueGain: {Min: 256, Max: 4096, Default: 256},
		},
	}
}

// fakeAlgo records calls and publishes a fixed exposure when asked to.
type fakeAlgo struct {
	name      string
	calls     []string
	update    bool
	failSetup bool
}

func (a *fakeAlgo) Name() string { return a.name }

func (a *fakeAlgo) Configure(ctx *Context) error {
	a.calls = append(a.calls, "configure")
	if a.failSetup {
		return errors.New("no")
	}
	return nil
}

func (a *fakeAlgo) Prepare(ctx *Context, p *Params) {
	a.calls = append(a.calls, "prepare")
	p.AWB = true
	p.Gains = stats.RGB{R: 2, G: 1, B: 0.5}
}

func (a *fakeAlgo) Process(ctx *Context, f *stats.Frame) {
	a.calls = append(a.calls, "process")
	s, _ := SensorStatusKey.Get(ctx.Frame)
	AGCStatusKey.Set(ctx.Frame, AGCStatus{
		ShutterTime:  2 * s.ShutterTime,
		AnalogueGain: 2,
		State:        AGCConverging,
		Updated:      a.update,
	})
}

func newHost(t *testing.T, algos ...Algorithm) (*IPA, *buffer.Memory) {
	mem := buffer.NewMemory(0)
	h := New((*logging.TestLogger)(t), mem, algos...)
	err := h.Configure(testConfig())
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	t.Cleanup(h.Stop)
	return h, mem
}

func nextAction(t *testing.T, h *IPA) Action {
	select {
	case a := <-h.Actions():
		return a
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for action")
	}
	return Action{}
}

func TestConfigureErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		algo   *fakeAlgo
	}{
		{name: "bad grid", modify: func(c *Config) { c.Grid = stats.Grid{} }},
		{name: "no line duration", modify: func(c *Config) { c.LineDuration = 0 }},
		{name: "no gain unit", modify: func(c *Config) { c.GainUnit = 0 }},
		{name: "no exposure", modify: func(c *Config) { delete(c.SensorControls, device.ControlExposure) }},
		{name: "no gain", modify: func(c *Config) { delete(c.SensorControls, device.ControlAnalogueGain) }},
		{name: "algorithm fails", modify: func(c *Config) {}, algo: &fakeAlgo{name: "bad", failSetup: true}},
	}

	for _, test := range tests {
		var algos []Algorithm
		if test.algo != nil {
			algos = append(algos, test.algo)
		}
		h := New((*logging.TestLogger)(t), buffer.NewMemory(0), algos...)
		c := testConfig()
		test.modify(&c)
		if err := h.Configure(c); err == nil {
			t.Errorf("%s: expected error", test.name)
		}
		err := h.ProcessEvent(Event{Type: EventFillParams})
		if !errors.Is(err, ErrNotConfigured) {
			t.Errorf("%s: unexpected error after failed configure: %v", test.name, err)
		}
	}
}

func TestConfigureLimits(t *testing.T) {
	h, _ := newHost(t)
	want := Configuration{
		Grid:         testGrid,
		LineDuration: 10 * time.Microsecond,
		GainUnit:     256,
		MinExposure:  1,
		MaxExposure:  10000,
		MinGainCode:  256,
		MaxGainCode:  4096,
	}
	if !cmp.Equal(h.ctx.Configuration, want) {
		t.Errorf("unexpected configuration\n%s", cmp.Diff(want, h.ctx.Configuration))
	}
	if got := want.ExposureLines(time.Hour); got != 10000 {
		t.Errorf("exposure not clamped: %d", got)
	}
	if got := want.GainCode(0.5); got != 256 {
		t.Errorf("gain code not clamped: %d", got)
	}
	if got := want.Gain(512); got != 2 {
		t.Errorf("unexpected gain: %v", got)
	}
}

func TestFillParams(t *testing.T) {
	a := &fakeAlgo{name: "fake"}
	h, mem := newHost(t, a)
	bufs := mem.Allocate(1, ParamsSize)
	err := h.MapBuffers(bufs)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	err = h.ProcessEvent(Event{Type: EventFillParams, Frame: 3, BufferID: bufs[0].ID})
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	act := nextAction(t, h)
	if act.Type != ActionParamsFilled || act.Frame != 3 {
		t.Errorf("unexpected action: %v for frame %d", act.Type, act.Frame)
	}

	b, _ := mem.Map(bufs[0])
	p, err := DecodeParams(b)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	want := &Params{AWB: true, Gains: stats.RGB{R: 2, G: 1, B: 0.5}}
	if !cmp.Equal(p, want) {
		t.Errorf("unexpected params\n%s", cmp.Diff(want, p))
	}
	if !cmp.Equal(a.calls, []string{"configure", "prepare"}) {
		t.Errorf("unexpected calls: %v", a.calls)
	}
}

func TestProcessStats(t *testing.T) {
	for _, update := range []bool{false, true} {
		a := &fakeAlgo{name: "fake", update: update}
		h, mem := newHost(t, a)
		bufs := mem.Allocate(1, testGrid.Size())
		err := h.MapBuffers(bufs)
		if err != nil {
			t.Fatalf("did not expect error: %v", err)
		}
		b, _ := mem.Map(bufs[0])
		err = stats.Encode(b, &stats.Frame{Grid: testGrid, Cells: make([]stats.Cell, testGrid.Cells())})
		if err != nil {
			t.Fatalf("did not expect error: %v", err)
		}

		ctrls := device.ControlList{device.ControlExposure: 100, device.ControlAnalogueGain: 512}
		err = h.ProcessEvent(Event{Type: EventProcessStats, Frame: 7, BufferID: bufs[0].ID, Controls: ctrls})
		if err != nil {
			t.Fatalf("did not expect error: %v", err)
		}

		act := nextAction(t, h)
		if update {
			if act.Type != ActionSetSensorControls {
				t.Fatalf("unexpected action: %v", act.Type)
			}
			want := device.ControlList{device.ControlExposure: 200, device.ControlAnalogueGain: 512}
			if !cmp.Equal(act.Controls, want) {
				t.Errorf("unexpected controls\n%s", cmp.Diff(want, act.Controls))
			}
			act = nextAction(t, h)
		}
		if act.Type != ActionMetadataReady || act.Frame != 7 {
			t.Fatalf("unexpected action: %v for frame %d", act.Type, act.Frame)
		}

		s, ok := SensorStatusKey.Get(act.Metadata)
		want := SensorStatus{Exposure: 100, GainCode: 512, ShutterTime: time.Millisecond, AnalogueGain: 2}
		if !ok || !cmp.Equal(s, want) {
			t.Errorf("unexpected sensor status\n%s", cmp.Diff(want, s))
		}
		if _, ok := AGCStatusKey.Get(h.ctx.Session); !ok {
			t.Error("frame results not merged into session")
		}
	}
}

// focusAlgo requests a fixed lens position.
type focusAlgo struct{ position int32 }

func (a *focusAlgo) Name() string                    { return "focus" }
func (a *focusAlgo) Configure(ctx *Context) error    { return nil }
func (a *focusAlgo) Prepare(ctx *Context, p *Params) {}

func (a *focusAlgo) Process(ctx *Context, f *stats.Frame) {
	AFStatusKey.Set(ctx.Frame, AFStatus{LensPosition: a.position, Updated: true})
}

func TestProcessStatsFocus(t *testing.T) {
	tests := []struct {
		name     string
		lens     bool
		agc      bool
		position int32
		want     device.ControlList
	}{
		{name: "no lens", position: 10},
		{name: "in range", lens: true, position: 10, want: device.ControlList{device.ControlFocusAbsolute: 10}},
		{name: "clamped", lens: true, position: 5000, want: device.ControlList{device.ControlFocusAbsolute: 1023}},
		{
			name: "with exposure", lens: true, agc: true, position: 3,
			want: device.ControlList{
				device.ControlExposure:      200,
				device.ControlAnalogueGain:  512,
				device.ControlFocusAbsolute: 3,
			},
		},
	}

	for _, test := range tests {
		algos := []Algorithm{&focusAlgo{position: test.position}}
		if test.agc {
			algos = append(algos, &fakeAlgo{name: "fake", update: true})
		}
		mem := buffer.NewMemory(0)
		h := New((*logging.TestLogger)(t), mem, algos...)
		c := testConfig()
		if test.lens {
			c.SensorControls[device.ControlFocusAbsolute] = device.ControlInfo{Min: 0, Max: 1023}
		}
		err := h.Configure(c)
		if err != nil {
			t.Fatalf("%s: did not expect error: %v", test.name, err)
		}
		if h.ctx.Configuration.HasFocus != test.lens {
			t.Errorf("%s: unexpected focus configuration: %+v", test.name, h.ctx.Configuration)
		}

		bufs := mem.Allocate(1, testGrid.Size())
		err = h.MapBuffers(bufs)
		if err != nil {
			t.Fatalf("%s: did not expect error: %v", test.name, err)
		}
		b, _ := mem.Map(bufs[0])
		err = stats.Encode(b, &stats.Frame{Grid: testGrid, Cells: make([]stats.Cell, testGrid.Cells())})
		if err != nil {
			t.Fatalf("%s: did not expect error: %v", test.name, err)
		}

		ctrls := device.ControlList{device.ControlExposure: 100, device.ControlAnalogueGain: 512, device.ControlFocusAbsolute: 7}
		err = h.ProcessEvent(Event{Type: EventProcessStats, Frame: 2, BufferID: bufs[0].ID, Controls: ctrls})
		if err != nil {
			t.Fatalf("%s: did not expect error: %v", test.name, err)
		}

		act := nextAction(t, h)
		if test.want != nil {
			if act.Type != ActionSetSensorControls {
				t.Fatalf("%s: unexpected action: %v", test.name, act.Type)
			}
			if !cmp.Equal(act.Controls, test.want) {
				t.Errorf("%s: unexpected controls\n%s", test.name, cmp.Diff(test.want, act.Controls))
			}
			act = nextAction(t, h)
		}
		if act.Type != ActionMetadataReady {
			t.Fatalf("%s: unexpected action: %v", test.name, act.Type)
		}
		s, _ := SensorStatusKey.Get(act.Metadata)
		if !s.HasFocus || s.Focus != 7 {
			t.Errorf("%s: unexpected sensor status: %+v", test.name, s)
		}
		if _, ok := AFStatusKey.Get(act.Metadata); !ok {
			t.Errorf("%s: focus status not published", test.name)
		}
		h.Stop()
	}
}

// Statistics that cannot be parsed hold the previous results but still
// report the frame's metadata.
func TestProcessBadStats(t *testing.T) {
	a := &fakeAlgo{name: "fake", update: true}
	h, mem := newHost(t, a)
	bufs := mem.Allocate(1, 4)
	err := h.MapBuffers(bufs)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	err = h.ProcessEvent(Event{Type: EventProcessStats, Frame: 1, BufferID: bufs[0].ID})
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	act := nextAction(t, h)
	if act.Type != ActionMetadataReady {
		t.Errorf("unexpected action: %v", act.Type)
	}
	if !cmp.Equal(a.calls, []string{"configure"}) {
		t.Errorf("algorithms should not run, calls: %v", a.calls)
	}
}

func TestUnmappedBuffer(t *testing.T) {
	h, _ := newHost(t)
	err := h.ProcessEvent(Event{Type: EventFillParams, Frame: 2, BufferID: 99})
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	act := nextAction(t, h)
	if act.Type != ActionError {
		t.Fatalf("unexpected action: %v", act.Type)
	}
	if !errors.Is(act.Err, buffer.ErrMapFailed) {
		t.Errorf("unexpected error: %v", act.Err)
	}

	err = h.ProcessEvent(Event{Type: 42})
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("unexpected error for unknown event: %v", err)
	}
}

func TestMapBuffersRollback(t *testing.T) {
	h, mem := newHost(t)
	bufs := mem.Allocate(2, 16)
	bufs = append(bufs, &buffer.Buffer{ID: 1000})
	err := h.MapBuffers(bufs)
	if !errors.Is(err, buffer.ErrMapFailed) {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.mem) != 0 {
		t.Errorf("mappings not rolled back: %d left", len(h.mem))
	}
}

func TestStopDropsActions(t *testing.T) {
	h, mem := newHost(t, &fakeAlgo{name: "fake"})
	bufs := mem.Allocate(1, ParamsSize)
	err := h.MapBuffers(bufs)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	h.Stop()
	for i := 0; i < 2*actionsLen; i++ {
		err = h.ProcessEvent(Event{Type: EventFillParams, Frame: uint32(i), BufferID: bufs[0].ID})
		if err != nil {
			t.Fatalf("did not expect error: %v", err)
		}
	}
	if n := len(h.Actions()); n != 0 {
		t.Errorf("unexpected queued actions after stop: %d", n)
	}
}

func TestParamsCodec(t *testing.T) {
	p := &Params{AWB: true, Gains: stats.RGB{R: 1.5, G: 1, B: 0.75}, Gamma: true}
	for i := range p.GammaLUT {
		p.GammaLUT[i] = uint16(i * 32)
	}
	b := make([]byte, ParamsSize)
	err := p.Encode(b)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	got, err := DecodeParams(b)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if !cmp.Equal(got, p) {
		t.Errorf("unexpected params\n%s", cmp.Diff(p, got))
	}

	if err := p.Encode(b[:ParamsSize-1]); !errors.Is(err, ErrShortParams) {
		t.Errorf("unexpected error for short buffer: %v", err)
	}

	// Gains beyond the fixed point range saturate.
	p.Gains.R = 100
	_ = p.Encode(b)
	got, _ = DecodeParams(b)
	if got.Gains.R >= 16 {
		t.Errorf("gain not saturated: %v", got.Gains.R)
	}
}
