// Package config loads the service configuration from a YAML or JSON file
// with RS_ environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/runsheet/core/docsync"
	"github.com/kilianp07/runsheet/core/factory"
	"github.com/kilianp07/runsheet/core/metrics"
	"github.com/kilianp07/runsheet/core/model"
)

// EnvPrefix prefixes environment overrides. RS_SYNC__KEY=plan sets sync.key.
const EnvPrefix = "RS_"

type Config struct {
	// Store selects the shared document backend (memory, mqtt, sqlite, http).
	Store    factory.ModuleConfig `json:"store"`
	Sync     docsync.Config       `json:"sync"`
	Schedule model.Settings       `json:"schedule"`
	Metrics  metrics.Config       `json:"metrics"`
	RunLog   RunLogConfig         `json:"runlog"`
	HTTP     HTTPConfig           `json:"http"`
	Sentry   SentryConfig         `json:"sentry"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	c.Sync.SetDefaults()
	c.Schedule = scheduleDefaults(c.Schedule)
	c.RunLog.SetDefaults()
	c.HTTP.SetDefaults()
}

// Validate checks every section after defaults are applied.
func (c *Config) Validate() error {
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	w := c.Schedule.Window()
	if w.End <= w.Start {
		return fmt.Errorf("schedule: dayEnd %s must be after dayStart %s", c.Schedule.DayEnd, c.Schedule.DayStart)
	}
	if err := c.RunLog.Validate(); err != nil {
		return err
	}
	return c.Sentry.Validate()
}

func scheduleDefaults(s model.Settings) model.Settings {
	def := model.DefaultSettings()
	if s.DayStart == "" {
		s.DayStart = def.DayStart
	}
	if s.DayEnd == "" {
		s.DayEnd = def.DayEnd
	}
	if s.Gap == 0 {
		s.Gap = def.Gap
	}
	return s.Normalized()
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
