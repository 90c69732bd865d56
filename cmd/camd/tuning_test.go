/*
DESCRIPTION
  tuning_test.go provides testing for tuning file loading and watching.

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
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/utils/logging"
)

const tuningText = `
Algorithms = ["AWB", "AGC"]
TargetLuma = 0.2
StartupFrames = 5
Metering = "Centre"
Isolated = true
`

func writeFile(t *testing.T, path, text string) {
	t.Helper()
	err := os.WriteFile(path, []byte(text), 0o644)
	if err != nil {
		t.Fatalf("could not write %s: %v", path, err)
	}
}

func TestLoadTuning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.toml")
	writeFile(t, path, tuningText)

	got, err := loadTuning(path)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	want := map[string]string{
		"Algorithms":    "AWB,AGC",
		"TargetLuma":    "0.2",
		"StartupFrames": "5",
		"Metering":      "Centre",
		"Isolated":      "true",
	}
	if !cmp.Equal(got, want) {
		t.Errorf("unexpected vars\n%s", cmp.Diff(want, got))
	}

	_, err = loadTuning(filepath.Join(dir, "missing.toml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("unexpected error for missing file: %v", err)
	}

	bad := filepath.Join(dir, "bad.toml")
	writeFile(t, bad, "[Table]\nKey = 1\n")
	_, err = loadTuning(bad)
	if err == nil {
		t.Error("expected error for table value")
	}
}

func TestTuningWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.toml")
	writeFile(t, path, "Gamma = 1.5\n")

	got := make(chan map[string]string, 4)
	// The watcher may still be logging as the test ends.
	log := logging.New(logging.Debug, io.Discard, false)
	tw, err := newTuningWatcher(path, log, func(vars map[string]string) { got <- vars })
	if err != nil {
		t.Fatalf("could not create watcher: %v", err)
	}
	go tw.run()
	defer tw.close()

	writeFile(t, path, "Gamma = 2.2\n")
	select {
	case vars := <-got:
		if vars["Gamma"] != "2.2" {
			t.Errorf("unexpected vars: %v", vars)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
