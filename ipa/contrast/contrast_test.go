/*
DESCRIPTION
  contrast_test.go provides testing for the gamma correction algorithm.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package contrast

import (
	"testing"

	"github.com/ausocean/camstack/ipa"
	"github.com/ausocean/camstack/ipa/metadata"
	"github.com/ausocean/utils/logging"
)

func TestLUT(t *testing.T) {
	lut := LUT(DefaultGamma)
	if lut[0] != 0 {
		t.Errorf("unexpected first entry: %d", lut[0])
	}
	if lut[ipa.GammaEntries-1] != ipa.GammaMax {
		t.Errorf("unexpected last entry: %d", lut[ipa.GammaEntries-1])
	}
	for i := 1; i < len(lut); i++ {
		if lut[i] < lut[i-1] {
			t.Fatalf("table not monotonic at %d: %d < %d", i, lut[i], lut[i-1])
		}
	}

	// A gamma above one lifts the mid tones above the linear curve.
	if mid := lut[128]; float64(mid) <= 128.0/255*ipa.GammaMax {
		t.Errorf("mid tone not lifted: %d", mid)
	}

	linear := LUT(1)
	in := 51.0
	if want := uint16(in / 255 * ipa.GammaMax); linear[51] != want {
		t.Errorf("unexpected linear entry: %d", linear[51])
	}
}

func TestConfigurePrepare(t *testing.T) {
	c := New((*logging.TestLogger)(t), 0)
	ctx := &ipa.Context{Session: metadata.New(), Frame: metadata.New()}
	err := c.Configure(ctx)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	g, ok := ipa.GammaKey.Get(ctx.Session)
	if !ok || g != DefaultGamma {
		t.Errorf("unexpected published gamma: %v, %v", g, ok)
	}

	var p ipa.Params
	c.Prepare(ctx, &p)
	if !p.Gamma {
		t.Error("expected gamma enabled")
	}
	if p.GammaLUT != LUT(DefaultGamma) {
		t.Error("unexpected gamma table")
	}

	// A gamma published to the session replaces the curve.
	ipa.GammaKey.Set(ctx.Session, 2.2)
	c.Prepare(ctx, &p)
	if p.GammaLUT != LUT(2.2) {
		t.Error("gamma table not rebuilt")
	}

	if err := New((*logging.TestLogger)(t), -1).Configure(ctx); err == nil {
		t.Error("expected error for negative gamma")
	}
}
