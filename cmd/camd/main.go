/*
DESCRIPTION
  camd is a netsender client running a camera pipeline session whose
  behaviour is controllable via the cloud and a local tuning file.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package camd is a netsender client for the camera pipeline.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime/pprof"
	"strconv"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/camstack/pipeline/config"
	"github.com/ausocean/client/pi/netlogger"
	"github.com/ausocean/client/pi/netsender"
	"github.com/ausocean/utils/logging"
)

// version is reported by -version and logged at start.
const version = "v0.1.0"

// Log file rotation and verbosity.
const (
	logPath      = "/var/log/netsender/netsender.log"
	logMaxSize   = 500 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logVerbosity = logging.Info
	logSuppress  = true
)

// Camera modes.
const (
	modeNormal    = "Normal"
	modePaused    = "Paused"
	modeShutdown  = "Shutdown"
	modeCompleted = "Completed"
)

// Other constants.
const (
	netSendRetryTime  = 5 * time.Second
	defaultSleepTime  = 60 // Seconds
	profilePath       = "camd.prof"
	pkg               = "camd: "
	rebootCmd         = "syncreboot"
	defaultTuningPath = "/etc/camd/tuning.toml"
)

// Software defined pin values.
const (
	shutterPin     = "X40" // Microseconds.
	gainPin        = "X41" // Hundredths.
	temperaturePin = "X42" // Kelvin.
	agcStatePin    = "X43"
)

// canProfile is set by profile.go when built with the profile tag.
var canProfile = false

func main() {
	showVersion := flag.Bool("version", false, "show version")
	tuningPath := flag.String("tuning", defaultTuningPath, "path of the TOML tuning file")
	subdev := flag.String("subdev", "", "V4L2 sub-device receiving sensor controls, e.g. /dev/v4l-subdev0")
	memfd := flag.Bool("memfd", false, "back buffers with mmapped memory files")
	flag.Parse()
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Logs go to a rotated file and to the cloud.
	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}

	netLog := netlogger.New()
	log := logging.New(logVerbosity, io.MultiWriter(fileLog, netLog), logSuppress)

	log.Info("starting camd", "version", version)

	if canProfile {
		profile(log)
		defer pprof.StopCPUProfile()
		log.Info("cpu profiling enabled", "path", profilePath)
	}

	c := config.Config{Logger: log, LogLevel: logVerbosity, Suppress: logSuppress}
	vars, err := loadTuning(*tuningPath)
	switch {
	case err == nil:
		c.Update(vars)
	case errors.Is(err, os.ErrNotExist):
		log.Info(pkg+"no tuning file, using defaults", "path", *tuningPath)
	default:
		log.Warning(pkg+"could not load tuning file", "path", *tuningPath, "error", err.Error())
	}

	log.Debug("initialising camera")
	cam, err := newCamera(c, options{subdev: *subdev, memfd: *memfd})
	if err != nil {
		log.Fatal(pkg+"could not initialise camera", "error", err.Error())
	}
	defer cam.close()

	tw, err := newTuningWatcher(*tuningPath, log, func(vars map[string]string) {
		err := cam.update(vars)
		if err != nil {
			log.Error(pkg+"could not apply tuning", "error", err.Error())
		}
	})
	if err != nil {
		log.Warning(pkg+"tuning file will not be watched", "error", err.Error())
	} else {
		go tw.run()
		defer tw.close()
	}

	log.Debug("creating netsender client")
	ns, err := netsender.New(
		log,
		nil,
		readPin(cam, log),
		nil,
		netsender.WithVarTypes(createVarMap()),
	)
	if err != nil {
		log.Fatal(pkg+"could not create netsender client", "error", err.Error())
	}

	log.Debug("entering run loop")
	run(cam, ns, log, netLog)
}

// run polls the cloud through ns, shipping logs on each pass and applying
// vars and mode to cam whenever the varsum changes.
func run(cam *camera, ns *netsender.Sender, l logging.Logger, nl *netlogger.Logger) {
	var vs int
	for {
		err := ns.Run()
		if err != nil {
			l.Warning(pkg+"netsender run failed, retrying", "error", err.Error())
			time.Sleep(netSendRetryTime)
			continue
		}

		err = nl.Send(ns)
		if err != nil {
			l.Warning(pkg+"could not send logs", "error", err.Error())
		}

		newVs := ns.VarSum()
		if vs == newVs {
			sleep(ns, l)
			continue
		}
		vs = newVs
		l.Info("vars changed", "varsum", vs)

		vars, err := ns.Vars()
		if err != nil {
			l.Error(pkg+"could not get vars", "error", err.Error())
			time.Sleep(netSendRetryTime)
			continue
		}
		l.Debug("applying vars", "vars", vars)
		err = cam.update(vars)
		if err != nil {
			l.Warning(pkg+"couldn't update camera", "error", err.Error())
			sleep(ns, l)
			continue
		}
		l.Info("camera successfully reconfigured")

		mode := ns.Mode()
		l.Debug("handling mode", "mode", mode)
		switch mode {
		case modePaused, modeCompleted:
			cam.stopCamera()
		case modeNormal:
			err = cam.start()
			if err != nil {
				l.Error(pkg+"could not start camera", "error", err.Error())
				ns.SetMode(modePaused)
				sleep(ns, l)
				continue
			}
		case modeShutdown:
			cam.stopCamera()
			ns.SetMode(modePaused)
			out, err := exec.Command(rebootCmd, "-s=true").CombinedOutput()
			if err != nil {
				l.Warning("could not use syncreboot to shutdown", "out", string(out), "error", err.Error())
			}
		}
		l.Info("camera mode applied", "mode", mode)

		sleep(ns, l)
	}
}

// createVarMap returns the type of every session config variable, keyed by
// name, for registration with netsender.
func createVarMap() map[string]string {
	types := make(map[string]string, len(config.Variables))
	for _, v := range config.Variables {
		types[v.Name] = v.Type
	}
	return types
}

// profile writes a CPU profile to profilePath until pprof.StopCPUProfile.
func profile(l logging.Logger) {
	f, err := os.Create(profilePath)
	if err != nil {
		l.Fatal(pkg+"could not create profile file", "error", err.Error())
	}
	err = pprof.StartCPUProfile(f)
	if err != nil {
		l.Fatal(pkg+"could not start profiling", "error", err.Error())
	}
}

// sleep waits for the monitor period, the mp netsender parameter, in
// seconds.
func sleep(ns *netsender.Sender, l logging.Logger) {
	mp, err := strconv.Atoi(ns.Param("mp"))
	if err != nil {
		l.Warning(pkg+"bad monitor period, using default", "mp", ns.Param("mp"), "default", defaultSleepTime)
		mp = defaultSleepTime
	}
	time.Sleep(time.Duration(mp) * time.Second)
}

// readPin returns the netsender callback reporting the software defined
// pins from the latest completed frame. Other pins are left alone.
func readPin(cam *camera, l logging.Logger) func(pin *netsender.Pin) error {
	return func(pin *netsender.Pin) error {
		switch pin.Name {
		case shutterPin, gainPin, temperaturePin, agcStatePin:
		default:
			return nil
		}
		pin.Value = -1
		if cam == nil {
			return nil
		}
		s := cam.latest()
		switch pin.Name {
		case shutterPin:
			pin.Value = int(s.shutter / time.Microsecond)
		case gainPin:
			pin.Value = int(s.gain * 100)
		case temperaturePin:
			pin.Value = int(s.temperature)
		case agcStatePin:
			pin.Value = int(s.agcState)
		}
		l.Debug("setting pin", "pin", pin.Name, "value", pin.Value, "sequence", s.sequence)
		return nil
	}
}
