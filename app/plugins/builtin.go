package plugins

import (
	"github.com/kilianp07/runsheet/config"
	"github.com/kilianp07/runsheet/core/schedule/runlog"
	"github.com/kilianp07/runsheet/infra/sqlite"

	// document store and metrics sink registrations
	_ "github.com/kilianp07/runsheet/infra/httpstore"
	_ "github.com/kilianp07/runsheet/infra/metrics"
	_ "github.com/kilianp07/runsheet/infra/mqtt"
)

func init() {
	RegisterRunLog("jsonl", func(cfg config.RunLogConfig) (runlog.Store, error) {
		return runlog.New(cfg.JSONL())
	})
	RegisterRunLog("sqlite", func(cfg config.RunLogConfig) (runlog.Store, error) {
		return sqlite.NewRunLogStore(cfg.Path)
	})
}
