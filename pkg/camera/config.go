// Package camera provides the capture side of head tracking: per-camera
// settings and an OpenCV-backed frame source.
package camera

import "fmt"

// Config holds the settings of one tracking camera.
type Config struct {
	// Device index as enumerated by the capture backend.
	Index int `json:"index" yaml:"index"`

	// === Resolution ===
	Width     int `json:"width" yaml:"width"`         // Frame width in pixels
	Height    int `json:"height" yaml:"height"`       // Frame height in pixels
	Framerate int `json:"framerate" yaml:"framerate"` // Target FPS

	// ExposureTime is manual exposure in microseconds (0 = auto).
	ExposureTime int `json:"exposure_time" yaml:"exposure_time"`

	// Gain is manual sensor gain in dB (0 = auto).
	Gain float64 `json:"gain" yaml:"gain"`

	// Encoding of captured frames handed to the marker detector.
	// Values: ".png" (lossless, default), ".jpg"
	Encoding string `json:"encoding" yaml:"encoding"`

	// Warmup is the number of frames discarded after opening the device so
	// auto exposure can settle.
	Warmup int `json:"warmup" yaml:"warmup"`
}

// Sensor capabilities of the FLIR Firefly DL used in the dome.
const (
	SensorMaxWidth    = 1440
	SensorMaxHeight   = 1080
	SensorMaxGain     = 47.9
	SensorMaxExposure = 30000000 // microseconds
)

// DefaultConfig returns the full-resolution configuration for camera index.
func DefaultConfig(index int) Config {
	return Config{
		Index:     index,
		Width:     1440,
		Height:    1080,
		Framerate: 30,
		Encoding:  ".png",
		Warmup:    3,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Index < 0 {
		errors = append(errors, "index must not be negative")
	}
	if c.Width < 160 || c.Width > SensorMaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between 160 and %d", SensorMaxWidth))
	}
	if c.Height < 120 || c.Height > SensorMaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between 120 and %d", SensorMaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > 120 {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.ExposureTime < 0 || c.ExposureTime > SensorMaxExposure {
		errors = append(errors, "exposure_time must be 0 (auto) or a positive duration in microseconds")
	}
	if c.Gain < 0 || c.Gain > SensorMaxGain {
		errors = append(errors, "gain must be 0 (auto) or between 0 and 47.9 dB")
	}
	if c.Encoding != "" && c.Encoding != ".png" && c.Encoding != ".jpg" {
		errors = append(errors, "encoding must be .png or .jpg")
	}
	if c.Warmup < 0 {
		errors = append(errors, "warmup must not be negative")
	}

	return errors
}
