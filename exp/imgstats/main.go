//go:build withcv
// +build withcv

/*
DESCRIPTION
  imgstats reduces an image to a statistics grid like the one produced by
  the image signal processor and reports the exposure and white balance the
  algorithms would choose for it.

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
	"flag"
	"fmt"
	"image"
	"os"
	"time"

	"gocv.io/x/gocv"

	"github.com/ausocean/camstack/ipa/stats"
	"github.com/ausocean/utils/logging"
)

// Pixels at or above this level in any channel count as saturated.
const satLevel = 250

func main() {
	var (
		width   = flag.Int("w", 16, "statistics grid width")
		height  = flag.Int("h", 12, "statistics grid height")
		shutter = flag.Duration("shutter", 10*time.Millisecond, "shutter time the image was captured with")
		gain    = flag.Float64("gain", 1, "analogue gain the image was captured with")
		verbose = flag.Bool("v", false, "log algorithm debug output")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Println("How to run:\n\timgstats [flags] <image>")
		os.Exit(1)
	}

	lvl := logging.Info
	if *verbose {
		lvl = logging.Debug
	}
	log := logging.New(int8(lvl), os.Stderr, false)

	img := gocv.IMRead(flag.Arg(0), gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		log.Fatal("could not read image", "path", flag.Arg(0))
	}

	f, err := frameFromImage(img, stats.Grid{Width: *width, Height: *height})
	if err != nil {
		log.Fatal("could not build statistics", "error", err.Error())
	}

	r, err := analyse(log, f, *shutter, *gain)
	if err != nil {
		log.Fatal("could not analyse statistics", "error", err.Error())
	}
	r.print()
}

// frameFromImage averages img, a BGR image, over the cells of grid.
func frameFromImage(img gocv.Mat, grid stats.Grid) (*stats.Frame, error) {
	err := grid.Validate()
	if err != nil {
		return nil, err
	}
	sz := image.Pt(grid.Width, grid.Height)

	chans := gocv.Split(img)
	defer func() {
		for _, c := range chans {
			c.Close()
		}
	}()
	if len(chans) != 3 {
		return nil, fmt.Errorf("expected 3 channels, got %d", len(chans))
	}

	// Area interpolation gives the mean of the pixels under each cell.
	means := make([]gocv.Mat, 3)
	sat := gocv.NewMat()
	defer sat.Close()
	thresh := gocv.NewMat()
	defer thresh.Close()
	for i, c := range chans {
		means[i] = gocv.NewMat()
		defer means[i].Close()
		gocv.Resize(c, &means[i], sz, 0, 0, gocv.InterpolationArea)

		gocv.Threshold(c, &thresh, satLevel-1, 255, gocv.ThresholdBinary)
		if i == 0 {
			thresh.CopyTo(&sat)
			continue
		}
		gocv.BitwiseOr(sat, thresh, &sat)
	}
	satMean := gocv.NewMat()
	defer satMean.Close()
	gocv.Resize(sat, &satMean, sz, 0, 0, gocv.InterpolationArea)

	// Focus response is the mean absolute Laplacian of green in each cell.
	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(chans[1], &lap, gocv.MatTypeCV16S, 3, 1, 0, gocv.BorderDefault)
	absLap := gocv.NewMat()
	defer absLap.Close()
	gocv.ConvertScaleAbs(lap, &absLap, 1, 0)
	focus := gocv.NewMat()
	defer focus.Close()
	gocv.Resize(absLap, &focus, sz, 0, 0, gocv.InterpolationArea)

	f := &stats.Frame{Grid: grid, Cells: make([]stats.Cell, grid.Cells())}
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			b, g, r := means[0].GetUCharAt(y, x), means[1].GetUCharAt(y, x), means[2].GetUCharAt(y, x)
			f.Cells[y*grid.Width+x] = stats.Cell{
				GreenRed:  g,
				Red:       r,
				Blue:      b,
				GreenBlue: g,
				SatRatio:  satMean.GetUCharAt(y, x),
				Focus:     uint16(focus.GetUCharAt(y, x)),
			}
		}
	}
	return f, nil
}
