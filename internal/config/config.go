// Package config loads stress run settings from a JSON file. Fields
// omitted from the file keep their built-in defaults, so partial
// configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/oakstress/internal/oak/device"
	"github.com/banshee-data/oakstress/internal/stress"
)

// RunConfig is the JSON schema of a stress config file. Pointer fields
// distinguish "not set" from an explicit zero.
type RunConfig struct {
	// Initial IR and sensor tuning.
	DotMa      *int `json:"dot_ma,omitempty"`
	FloodMa    *int `json:"flood_ma,omitempty"`
	ISO        *int `json:"iso,omitempty"`
	ExposureUs *int `json:"exposure_us,omitempty"`

	// Run options, used when the matching flag is left at its default.
	Duration    *string `json:"duration,omitempty"` // duration string like "2h"
	LogInterval *string `json:"log_interval,omitempty"`
	Record      *string `json:"record,omitempty"`
	Listen      *string `json:"listen,omitempty"`
	Blob        *string `json:"blob,omitempty"`
}

// Empty returns a RunConfig with every field unset.
func Empty() *RunConfig {
	return &RunConfig{}
}

// Load reads and validates a config file. The file must have a .json
// extension and be under 1MB.
func Load(path string) (*RunConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges against the IR hardware limits and that
// duration strings parse.
func (c *RunConfig) Validate() error {
	if c.DotMa != nil {
		if *c.DotMa < 0 || *c.DotMa > device.MaxDotProjectorMa {
			return fmt.Errorf("dot_ma must be between 0 and %d, got %d", device.MaxDotProjectorMa, *c.DotMa)
		}
	}
	if c.FloodMa != nil {
		if *c.FloodMa < 0 || *c.FloodMa > device.MaxFloodLightMa {
			return fmt.Errorf("flood_ma must be between 0 and %d, got %d", device.MaxFloodLightMa, *c.FloodMa)
		}
	}
	if c.ISO != nil && (*c.ISO < 0 || *c.ISO > 1600) {
		return fmt.Errorf("iso must be between 0 and 1600, got %d", *c.ISO)
	}
	if c.ExposureUs != nil && (*c.ExposureUs < 0 || *c.ExposureUs > 33000) {
		return fmt.Errorf("exposure_us must be between 0 and 33000, got %d", *c.ExposureUs)
	}
	for name, v := range map[string]*string{"duration": c.Duration, "log_interval": c.LogInterval} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, *v, err)
			}
		}
	}
	return nil
}

// Tuning returns the initial tuning, with file values overriding the
// defaults.
func (c *RunConfig) Tuning() stress.Tuning {
	t := stress.DefaultTuning()
	if c.DotMa != nil {
		t.DotMa = *c.DotMa
	}
	if c.FloodMa != nil {
		t.FloodMa = *c.FloodMa
	}
	if c.ISO != nil {
		t.ISO = *c.ISO
	}
	if c.ExposureUs != nil {
		t.ExposureUs = *c.ExposureUs
	}
	return t
}

// GetDuration returns the configured run bound, or fallback when unset.
func (c *RunConfig) GetDuration(fallback time.Duration) time.Duration {
	return c.durationField(c.Duration, fallback)
}

// GetLogInterval returns the rate logging interval, or fallback when
// unset.
func (c *RunConfig) GetLogInterval(fallback time.Duration) time.Duration {
	return c.durationField(c.LogInterval, fallback)
}

func (c *RunConfig) durationField(v *string, fallback time.Duration) time.Duration {
	if v == nil || *v == "" {
		return fallback
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fallback
	}
	return d
}

// GetRecord returns the recording path, or fallback when unset.
func (c *RunConfig) GetRecord(fallback string) string {
	return stringField(c.Record, fallback)
}

// GetListen returns the monitor address, or fallback when unset.
func (c *RunConfig) GetListen(fallback string) string {
	return stringField(c.Listen, fallback)
}

// GetBlob returns the blob path, or fallback when unset.
func (c *RunConfig) GetBlob(fallback string) string {
	return stringField(c.Blob, fallback)
}

func stringField(v *string, fallback string) string {
	if v == nil || *v == "" {
		return fallback
	}
	return *v
}
