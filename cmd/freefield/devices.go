package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/teslashibe/go-freefield/internal/config"
	"github.com/teslashibe/go-freefield/internal/log"
	"github.com/teslashibe/go-freefield/pkg/experiment"
	"github.com/teslashibe/go-freefield/pkg/headpose"
	"github.com/teslashibe/go-freefield/pkg/processor"
	"github.com/teslashibe/go-freefield/pkg/speakers"
	"github.com/teslashibe/go-freefield/pkg/stimuli"
	"github.com/teslashibe/go-freefield/pkg/tracking"
)

type devices struct {
	rig      *processor.Rig
	buttons  experiment.Responder
	tracker  headpose.Tracker
	speakers *speakers.Table
	closers  []io.Closer
}

func rigConfig(lab config.Lab) processor.RigConfig {
	cfg := processor.DefaultRigConfig()
	cfg.SampleRate = lab.SampleRate
	cfg.Logger = log.Component("rig")
	return cfg
}

// labDevices connects to the processors through the gateway (buttons
// optionally over serial) and opens the cameras.
func labDevices(lab config.Lab, logger *slog.Logger) (dev devices, err error) {
	defer func() {
		if err != nil {
			for _, c := range dev.closers {
				c.Close()
			}
		}
	}()

	if dev.speakers, err = speakers.LoadFile(lab.SpeakerFile); err != nil {
		return dev, err
	}

	procs := make([]processor.Processor, 0, len(lab.Playback))
	for _, name := range lab.Playback {
		procs = append(procs, processor.NewHTTP(lab.GatewayURL, name, nil))
	}
	if dev.rig, err = processor.NewRig(rigConfig(lab), procs...); err != nil {
		return dev, err
	}

	var box processor.Processor
	if lab.ButtonSerial != "" {
		scfg := processor.DefaultSerialConfig(lab.ButtonSerial)
		scfg.Logger = log.Component("serial")
		sp, err := processor.OpenSerial(lab.Buttons, scfg)
		if err != nil {
			return dev, err
		}
		dev.closers = append(dev.closers, sp)
		box = sp
	} else {
		box = processor.NewHTTP(lab.GatewayURL, lab.Buttons, nil)
	}
	bcfg := processor.DefaultButtonConfig()
	bcfg.Logger = log.Component("buttons")
	dev.buttons = processor.NewButtonBox(box, bcfg)

	tr, err := tracking.Open(lab, log.Component("tracking"))
	if err != nil {
		return dev, err
	}
	dev.closers = append(dev.closers, tr)
	dev.tracker = tr

	logger.Info("lab devices ready",
		"playback", lab.Playback, "buttons", lab.Buttons, "cameras", len(lab.Cameras), "speakers", dev.speakers.Len())
	return dev, nil
}

// simulatedDevices wires mock processors, a simulated head and a simulated
// listener. The lab speaker file is used when present.
func simulatedDevices(lab config.Lab, rng *rand.Rand) (devices, error) {
	var dev devices
	tab, err := speakers.LoadFile(lab.SpeakerFile)
	if err != nil {
		if tab, err = exampleTable(lab.Playback); err != nil {
			return dev, err
		}
	}
	dev.speakers = tab

	procs := make([]processor.Processor, 0, len(lab.Playback))
	for _, name := range lab.Playback {
		procs = append(procs, processor.NewMock(name))
	}
	if dev.rig, err = processor.NewRig(rigConfig(lab), procs...); err != nil {
		return dev, err
	}

	head := headpose.NewSimulatedHead(headpose.Pose{})
	subject := experiment.NewSimulatedSubject(head, rng)
	subject.Delay = 300 * time.Millisecond
	dev.tracker = head
	dev.buttons = subject
	return dev, nil
}

// exampleTable lays out both planes: the vertical plane with the central
// speaker on the first processor, the rest of the horizontal plane on the
// last.
func exampleTable(procs []string) (*speakers.Table, error) {
	if len(procs) == 0 {
		return nil, errors.New("no playback processors configured")
	}
	first, last := procs[0], procs[len(procs)-1]

	var b strings.Builder
	b.WriteString("index analog_channel analog_proc azimuth elevation digital_channel digital_proc\n")
	for i, id := range speakers.PlaneIDs(speakers.Vertical) {
		fmt.Fprintf(&b, "%d %d %s 0.0 %.1f %d %s\n", id, i+1, first, float64(i-3)*12.5, i+1, first)
	}
	for i, id := range speakers.PlaneIDs(speakers.Horizontal) {
		if id == speakers.CentralID {
			continue
		}
		fmt.Fprintf(&b, "%d %d %s %.1f 0.0 %d %s\n", id, i+1, last, float64(i-3)*17.5, i+1, last)
	}
	return speakers.Load(strings.NewReader(b.String()))
}

// loadCue reads the warning tone at the rig's sample rate. Example sessions
// fall back to a short 1 kHz tone when the file is missing.
func loadCue(lab config.Lab, example bool, logger *slog.Logger) (*stimuli.Sound, error) {
	path := lab.SoundPath(lab.Gate.CueFile)
	cue, err := stimuli.ReadWAVFile(path)
	if err == nil {
		if cue.SampleRate != lab.SampleRate {
			logger.Debug("resampling warning tone", "from", cue.SampleRate, "to", lab.SampleRate)
		}
		return cue.Resample(lab.SampleRate), nil
	}
	if example && errors.Is(err, fs.ErrNotExist) {
		logger.Warn("warning tone not found, using a synthetic cue", "path", path)
		cue = stimuli.Tone(1000, 250*time.Millisecond, lab.SampleRate)
		cue.Ramp(10 * time.Millisecond)
		return cue, nil
	}
	return nil, err
}
