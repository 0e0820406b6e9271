package config

import (
	"fmt"

	"github.com/kilianp07/runsheet/core/schedule/runlog"
)

// RunLogConfig defines storage and rotation of the schedule run history.
type RunLogConfig struct {
	// Backend selects the store type: "jsonl" or "sqlite".
	Backend string `json:"backend"`
	// Path is the file location of the store. Empty disables the history.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

func (c *RunLogConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
}

func (c RunLogConfig) Validate() error {
	if c.Backend != "jsonl" && c.Backend != "sqlite" {
		return fmt.Errorf("runlog: unknown backend %s", c.Backend)
	}
	return nil
}

// JSONL returns the rotation options of the jsonl backend.
func (c RunLogConfig) JSONL() runlog.Config {
	return runlog.Config{
		Path:       c.Path,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
	}
}
