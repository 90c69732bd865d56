/*
DESCRIPTION
  tuning.go provides loading and watching of the camd tuning file, a TOML
  file of session config variables.

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
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"github.com/ausocean/utils/logging"
)

// tuningDebounce is how long the tuning file must be quiet before it is
// reloaded. Editors often write a file in several steps.
const tuningDebounce = 500 * time.Millisecond

// loadTuning reads the config variables held in the TOML file at path,
// for example:
//
//	Algorithms = ["AWB", "AGC"]
//	TargetLuma = 0.2
//	Isolated = true
//
// Values are converted to the string form understood by config.Update.
func loadTuning(path string) (map[string]string, error) {
	var raw map[string]interface{}
	_, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("could not decode tuning file: %w", err)
	}

	vars := make(map[string]string, len(raw))
	for k, v := range raw {
		s, err := tuningValue(v)
		if err != nil {
			return nil, fmt.Errorf("bad value for %s: %w", k, err)
		}
		vars[k] = s
	}
	return vars, nil
}

func tuningValue(v interface{}) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case []interface{}:
		parts := make([]string, len(v))
		for i, e := range v {
			s, err := tuningValue(e)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}

// tuningWatcher reloads the tuning file whenever it changes, passing the
// variables to apply.
type tuningWatcher struct {
	path  string
	log   logging.Logger
	apply func(map[string]string)
	w     *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// newTuningWatcher watches the directory holding path so that files
// replaced by rename are still seen.
func newTuningWatcher(path string, l logging.Logger, apply func(map[string]string)) (*tuningWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create watcher: %w", err)
	}
	err = w.Add(filepath.Dir(path))
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("could not watch %s: %w", path, err)
	}
	return &tuningWatcher{path: filepath.Clean(path), log: l, apply: apply, w: w}, nil
}

// run handles watcher events until close is called.
func (tw *tuningWatcher) run() {
	for {
		select {
		case ev, ok := <-tw.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != tw.path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			tw.log.Debug(pkg+"tuning file changed", "op", ev.Op.String())
			tw.schedule()
		case err, ok := <-tw.w.Errors:
			if !ok {
				return
			}
			tw.log.Warning(pkg+"tuning watcher error", "error", err.Error())
		}
	}
}

func (tw *tuningWatcher) schedule() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timer != nil {
		tw.timer.Stop()
	}
	tw.timer = time.AfterFunc(tuningDebounce, tw.reload)
}

func (tw *tuningWatcher) reload() {
	vars, err := loadTuning(tw.path)
	if err != nil {
		tw.log.Error(pkg+"could not load tuning file", "path", tw.path, "error", err.Error())
		return
	}
	tw.log.Info(pkg+"tuning file reloaded", "vars", vars)
	tw.apply(vars)
}

func (tw *tuningWatcher) close() error {
	tw.mu.Lock()
	if tw.timer != nil {
		tw.timer.Stop()
	}
	tw.mu.Unlock()
	return tw.w.Close()
}
