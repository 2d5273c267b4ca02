package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Camera describes one head-pose camera.
type Camera struct {
	Index      int     `yaml:"index"`
	Role       string  `yaml:"role"`       // azimuth | elevation
	Dictionary string  `yaml:"dictionary"` // 4x4_100 | 5x5_100
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	Resolution float64 `yaml:"resolution"`
}

// Gate holds gaze gate settings.
type Gate struct {
	Threshold    float64       `yaml:"threshold"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
	CueFile      string        `yaml:"cue_file"`
}

// Localization holds Localization Accuracy settings.
type Localization struct {
	Reps     int           `yaml:"reps"`
	Duration time.Duration `yaml:"duration"`
}

// Unmasking holds Spatial Unmasking settings.
type Unmasking struct {
	Reps       int           `yaml:"reps"`
	Duration   time.Duration `yaml:"duration"`
	StartLevel float64       `yaml:"start_level"`
	StepSizes  []float64     `yaml:"step_sizes"`
	Reversals  int           `yaml:"reversals"`
	MaxTrials  int           `yaml:"max_trials"`
	TalkerDir  string        `yaml:"talker_dir"`
}

// Numerosity holds Numerosity Judgement settings.
type Numerosity struct {
	Reps      int           `yaml:"reps"`
	Duration  time.Duration `yaml:"duration"`
	Talkers   []int         `yaml:"talkers"`
	TalkerDir string        `yaml:"talker_dir"`
	// Clusters is the number of timbre clusters talkers are drawn from.
	// Zero draws talkers uniformly.
	Clusters int `yaml:"clusters"`
}

// Lab is the lab file.
type Lab struct {
	DataRoot     string   `yaml:"data_root"`
	SoundRoot    string   `yaml:"sound_root"`
	SpeakerFile  string   `yaml:"speaker_file"`
	Database     string   `yaml:"database"`
	GatewayURL   string   `yaml:"gateway_url"`
	ButtonSerial string   `yaml:"button_serial"`
	Playback     []string `yaml:"playback"`
	Buttons      string   `yaml:"buttons"`
	SampleRate   float64  `yaml:"sample_rate"`
	MarkerLength float64  `yaml:"marker_length"`
	Cameras      []Camera `yaml:"cameras"`

	Gate         Gate         `yaml:"gate"`
	Localization Localization `yaml:"localization"`
	Unmasking    Unmasking    `yaml:"unmasking"`
	Numerosity   Numerosity   `yaml:"numerosity"`
}

// DefaultLab returns the dome defaults.
func DefaultLab() Lab {
	return Lab{
		DataRoot:     "data",
		SoundRoot:    "sounds",
		SpeakerFile:  "dome_speakers.txt",
		Database:     "freefield.db",
		GatewayURL:   "http://localhost:8765",
		Playback:     []string{"RX81", "RX82"},
		Buttons:      "RP2",
		SampleRate:   48828.125,
		MarkerLength: 0.05,
		Cameras: []Camera{
			{Index: 0, Role: "azimuth", Dictionary: "4x4_100", Width: 1440, Height: 1080, Resolution: 1},
			{Index: 1, Role: "elevation", Dictionary: "5x5_100", Width: 1440, Height: 1080, Resolution: 1},
		},
		Gate: Gate{
			Threshold:    10,
			PollInterval: 100 * time.Millisecond,
			CueFile:      "warning/warning_tone.wav",
		},
		Localization: Localization{Reps: 3, Duration: time.Second},
		Unmasking: Unmasking{
			Reps:       1,
			Duration:   time.Second,
			StartLevel: 70,
			StepSizes:  []float64{4, 1},
			Reversals:  2,
			MaxTrials:  60,
			TalkerDir:  "tts-numbers_resamp_24414",
		},
		Numerosity: Numerosity{
			Reps:      2,
			Duration:  time.Second,
			Talkers:   []int{2, 3, 4, 5},
			TalkerDir: "tts-countries_resamp_24414",
			Clusters:  8,
		},
	}
}

// LoadLab reads a lab file over the defaults and applies env overrides.
// An empty path yields the defaults.
func LoadLab(path string) (Lab, error) {
	lab := DefaultLab()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Lab{}, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &lab); err != nil {
			return Lab{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	lab.applyEnv()
	if err := lab.Validate(); err != nil {
		return Lab{}, err
	}
	return lab, nil
}

// Load resolves the lab file from the -config flag and LAB_CONFIG and
// loads it. Without either the defaults are used; env overrides apply in
// both cases.
func Load(flagPath string) (Lab, error) {
	return LoadLab(ConfigPath(flagPath))
}

func (l *Lab) applyEnv() {
	l.DataRoot = Getenv(EnvDataRoot, l.DataRoot)
	l.SoundRoot = Getenv(EnvSoundRoot, l.SoundRoot)
	l.GatewayURL = Getenv(EnvGateway, l.GatewayURL)
	l.ButtonSerial = Getenv(EnvButtonSerial, l.ButtonSerial)
	l.Gate.Threshold = GetenvFloat(EnvGateThreshold, l.Gate.Threshold)
	l.Gate.Timeout = GetenvDuration(EnvGateTimeout, l.Gate.Timeout)
}

// Validate checks the lab file.
func (l *Lab) Validate() error {
	var errs []error
	if l.DataRoot == "" {
		errs = append(errs, errors.New("data_root is required"))
	}
	if len(l.Playback) == 0 {
		errs = append(errs, errors.New("at least one playback processor is required"))
	}
	if l.SampleRate <= 0 {
		errs = append(errs, errors.New("sample_rate must be positive"))
	}
	if l.MarkerLength <= 0 {
		errs = append(errs, errors.New("marker_length must be positive"))
	}
	if len(l.Cameras) == 0 {
		errs = append(errs, errors.New("at least one camera is required"))
	}
	for i, c := range l.Cameras {
		if c.Role != "azimuth" && c.Role != "elevation" {
			errs = append(errs, fmt.Errorf("camera %d: role must be azimuth or elevation", i))
		}
	}
	if l.Gate.Threshold <= 0 {
		errs = append(errs, errors.New("gate.threshold must be positive"))
	}
	if l.Unmasking.Reversals < 1 || len(l.Unmasking.StepSizes) == 0 {
		errs = append(errs, errors.New("unmasking needs reversals and step sizes"))
	}
	if l.Numerosity.Clusters < 0 {
		errs = append(errs, errors.New("numerosity.clusters must not be negative"))
	}
	for _, n := range l.Numerosity.Talkers {
		if n < 1 {
			errs = append(errs, errors.New("numerosity.talkers must be positive"))
			break
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// DataPath resolves a path under DataRoot.
func (l *Lab) DataPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(l.DataRoot, name)
}

// SoundPath resolves a path under SoundRoot.
func (l *Lab) SoundPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(l.SoundRoot, name)
}
