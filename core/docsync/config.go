package docsync

import (
	"fmt"
	"time"
)

const (
	DefaultKey      = "runsheet"
	DefaultDebounce = 400 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
)

// Config tunes the Synchronizer.
type Config struct {
	// Enabled starts sharing with the service.
	Enabled bool   `json:"enabled"`
	Key     string `json:"key"`
	// Debounce is the quiet period after the last local change before the
	// document is written.
	Debounce time.Duration `json:"debounce"`
	// Timeout bounds every store call.
	Timeout time.Duration `json:"timeout"`
	// ShareSchedule adds the placements to the shared document.
	ShareSchedule bool `json:"share_schedule"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Key == "" {
		c.Key = DefaultKey
	}
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	if c.Debounce > 10*time.Second {
		return fmt.Errorf("sync.debounce %s is longer than 10s", c.Debounce)
	}
	return nil
}
