/*
DESCRIPTION
  agcplot runs the exposure loop against the simulated sensor and plots
  the shutter time, gain and total exposure of each frame. A step change
  in scene brightness may be introduced to show the loop's response.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// agcplot plots the convergence of automatic exposure control.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"os"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ausocean/camstack/device/sim"
	"github.com/ausocean/camstack/pipeline/config"
	"github.com/ausocean/utils/logging"
)

func main() {
	var (
		frames   = flag.Int("frames", 120, "number of frames to simulate")
		stepAt   = flag.Int("step", 60, "frame at which the scene brightness changes, or 0 for none")
		factor   = flag.Float64("factor", 4, "scene brightness multiplier applied at the step")
		out      = flag.String("out", "agc.png", "output image file")
		isolated = flag.Bool("isolated", false, "run the algorithms behind the proxy")
		tuning   = flag.String("vars", "", "semicolon separated key=value config variables")
		verbose  = flag.Bool("v", false, "log debug messages")
	)
	flag.Parse()

	level := int8(logging.Warning)
	if *verbose {
		level = logging.Debug
	}
	log := logging.New(level, os.Stderr, false)

	c := config.Config{Logger: log, LogLevel: level, Isolated: *isolated}
	vars, err := parseVars(*tuning)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	c.Update(vars)

	base := sim.DefaultScene()
	scene := func(frame int) sim.Scene {
		if *stepAt > 0 && frame >= *stepAt {
			s := base
			s.Dark *= *factor
			s.Bright *= *factor
			return s
		}
		return base
	}

	samples, err := simulate(log, c, scene, *frames)
	if err != nil {
		log.Fatal("simulation failed", "error", err.Error())
	}

	err = render(samples, *stepAt, *out)
	if err != nil {
		log.Fatal("could not plot", "error", err.Error())
	}
	last := samples[len(samples)-1]
	fmt.Printf("final shutter %v gain %.2f state %v\n", last.shutter, last.gain, last.state)
}

var plotColours = []color.Color{
	color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
}

// parseVars parses config variables of the form "k1=v1;k2=v2".
func parseVars(s string) (map[string]string, error) {
	vars := make(map[string]string)
	for _, kv := range strings.Split(s, ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("malformed variable %q", kv)
		}
		vars[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return vars, nil
}

// render plots samples to file. A vertical marker is drawn at stepAt if it
// is positive.
func render(samples []sample, stepAt int, file string) error {
	p := plot.New()
	p.Title.Text = "Automatic exposure"
	p.X.Label.Text = "frame"
	p.Y.Label.Text = "ms / gain"

	shutter := make(plotter.XYs, len(samples))
	gain := make(plotter.XYs, len(samples))
	exposure := make(plotter.XYs, len(samples))
	var top float64
	for i, s := range samples {
		shutter[i].X, gain[i].X, exposure[i].X = float64(s.frame), float64(s.frame), float64(s.frame)
		shutter[i].Y = float64(s.shutter.Microseconds()) / 1000
		gain[i].Y = s.gain
		exposure[i].Y = s.exposure()
		if exposure[i].Y > top {
			top = exposure[i].Y
		}
	}

	lines := []struct {
		name string
		xys  plotter.XYs
	}{
		{"shutter (ms)", shutter},
		{"analogue gain", gain},
		{"exposure (ms)", exposure},
	}
	for i, l := range lines {
		line, err := plotter.NewLine(l.xys)
		if err != nil {
			return fmt.Errorf("could not create %s line: %w", l.name, err)
		}
		line.Color = plotColours[i%len(plotColours)]
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(l.name, line)
	}

	if stepAt > 0 {
		step, err := plotter.NewLine(plotter.XYs{{X: float64(stepAt), Y: 0}, {X: float64(stepAt), Y: top}})
		if err != nil {
			return fmt.Errorf("could not create step marker: %w", err)
		}
		step.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(step)
	}
	p.Add(plotter.NewGrid())

	return p.Save(8*vg.Inch, 4*vg.Inch, file)
}
