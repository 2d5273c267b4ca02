// Package config provides configuration for go-freefield commands: env
// helpers and the YAML lab file.
package config

import (
	"os"
	"strconv"
	"time"
)

// Environment variables.
const (
	EnvConfig       = "LAB_CONFIG"
	EnvDataRoot     = "LAB_DATA_ROOT"
	EnvSoundRoot    = "LAB_SOUND_ROOT"
	EnvGateway      = "PROCESSOR_GATEWAY"
	EnvButtonSerial = "BUTTON_SERIAL"

	EnvGateThreshold = "GATE_THRESHOLD"
	EnvGateTimeout   = "GATE_TIMEOUT"
)

// Getenv returns the variable or def when unset or empty.
func Getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetenvFloat parses a float variable, falling back to def.
func GetenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// GetenvDuration parses a duration variable, falling back to def.
func GetenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// ConfigPath returns the lab file named on the command line, or LAB_CONFIG
// when the flag is empty.
func ConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return os.Getenv(EnvConfig)
}
