// Package plugins links the optional backends into the binary and builds
// the run history store chosen by configuration.
package plugins

import (
	"fmt"
	"sort"

	"github.com/kilianp07/runsheet/config"
	"github.com/kilianp07/runsheet/core/schedule/runlog"
)

// RunLogFactory builds a schedule run store from its configuration.
type RunLogFactory func(cfg config.RunLogConfig) (runlog.Store, error)

var RunLogStores = map[string]RunLogFactory{}

func RegisterRunLog(name string, f RunLogFactory) { RunLogStores[name] = f }

// NewRunLog builds the store of cfg.Backend. An empty path disables the
// history whatever the backend.
func NewRunLog(cfg config.RunLogConfig) (runlog.Store, error) {
	if cfg.Path == "" {
		return runlog.NopStore{}, nil
	}
	f, ok := RunLogStores[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown runlog backend %s", cfg.Backend)
	}
	return f(cfg)
}

// RunLogBackends lists the registered backends.
func RunLogBackends() []string {
	names := make([]string, 0, len(RunLogStores))
	for n := range RunLogStores {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
