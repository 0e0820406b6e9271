// Package app wires the workspace, the scheduling pipeline and the document
// synchronizer into one service.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/runsheet/app/plugins"
	"github.com/kilianp07/runsheet/config"
	"github.com/kilianp07/runsheet/core/docsync"
	"github.com/kilianp07/runsheet/core/events"
	coremetrics "github.com/kilianp07/runsheet/core/metrics"
	"github.com/kilianp07/runsheet/core/model"
	coremon "github.com/kilianp07/runsheet/core/monitoring"
	"github.com/kilianp07/runsheet/core/schedule"
	"github.com/kilianp07/runsheet/core/schedule/runlog"
	"github.com/kilianp07/runsheet/core/workspace"
	"github.com/kilianp07/runsheet/infra/logger"
	"github.com/kilianp07/runsheet/infra/metrics"
	"github.com/kilianp07/runsheet/infra/monitoring"
	"github.com/kilianp07/runsheet/internal/eventbus"
)

// ErrStopped is returned by calls made after Run returned.
var ErrStopped = errors.New("service stopped")

// Service owns the planning state. Workspace events, manual placements and
// remote documents are all handled on the goroutine running Run, so state
// is never mutated from two places at once.
type Service struct {
	cfg       *config.Config
	Workspace *workspace.Workspace
	State     *schedule.State
	Sync      *docsync.Synchronizer

	pipeline *schedule.Pipeline
	store    docsync.DocumentStore
	runs     runlog.Store
	sink     coremetrics.MetricsSink
	changes  *eventbus.TypedBus[events.Change]
	statuses *eventbus.TypedBus[docsync.Status]
	log      logger.Logger

	ops     chan func()
	done    chan struct{}
	started atomic.Bool
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	store, err := docsync.NewStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("document store: %w", err)
	}
	runs, err := plugins.NewRunLog(cfg.RunLog)
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("run log: %w", err)
	}
	return newService(cfg, store, runs, sink), nil
}

func newService(cfg *config.Config, store docsync.DocumentStore, runs runlog.Store, sink coremetrics.MetricsSink) *Service {
	log := logger.New("service")
	s := &Service{
		cfg:      cfg,
		State:    schedule.NewState(),
		store:    store,
		runs:     runs,
		sink:     coremetrics.OrNop(sink),
		changes:  eventbus.NewTyped[events.Change](),
		statuses: eventbus.NewTyped[docsync.Status](),
		log:      log,
		ops:      make(chan func()),
		done:     make(chan struct{}),
	}
	s.Workspace = workspace.New(s.State, s.changes)
	s.Workspace.SetSettings(cfg.Schedule)
	s.pipeline = schedule.NewPipeline(s.State, runs, s.sink, logger.New("pipeline"))
	s.Sync = docsync.New(store, s, s, cfg.Sync, logger.New("docsync"), s.sink, s.statuses)
	return s
}

// Run starts the synchronizer and the optional listeners, then serves the
// service loop until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("service already running")
	}
	defer coremon.Recover()

	changes := s.changes.SubscribeBuffered(64)
	defer s.changes.Unsubscribe(changes)
	statuses := s.statuses.Subscribe()
	defer s.statuses.Unsubscribe(statuses)

	var wg sync.WaitGroup
	defer wg.Wait()
	defer close(s.done)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.Sync.Run(ctx); err != nil {
			s.log.Errorf("synchronizer: %v", err)
		}
	}()
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.cfg.HTTP.Enabled() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.serveAPI(ctx); err != nil {
				s.log.Errorf("api server: %v", err)
			}
		}()
	}
	if s.cfg.Sync.Enabled {
		go func() {
			if err := s.EnableSync(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Errorf("%v", err)
			}
		}()
	}

	s.pipeline.Recompute(ctx, s.inputs(), s.ActiveDay(), false)
	for {
		select {
		case <-ctx.Done():
			return nil
		case op := <-s.ops:
			op()
		case c := <-changes:
			s.onChange(ctx, c)
		case st := <-statuses:
			s.log.Infow("sync status", map[string]any{"state": string(st.State), "message": st.Message})
		}
	}
}

func (s *Service) onChange(ctx context.Context, c events.Change) {
	share := s.cfg.Sync.ShareSchedule
	if c.Local() && (c.Kind != events.PlacementChanged || share) {
		s.Sync.Notify()
	}
	active := s.ActiveDay()
	s.recompute(ctx, active, false)
	if c.Day.Valid() && c.Day != active {
		s.recompute(ctx, c.Day, false)
	}
}

func (s *Service) recompute(ctx context.Context, day model.Day, force bool) {
	if s.pipeline.Recompute(ctx, s.inputs(), day, force) && s.cfg.Sync.ShareSchedule {
		s.Sync.Notify()
	}
}

func (s *Service) inputs() schedule.Inputs {
	return schedule.Inputs{
		Jobs:     s.Workspace.Jobs(),
		Trucks:   s.Workspace.Trucks(),
		Settings: s.Workspace.Settings(),
	}
}

// do runs fn on the service loop and waits for its result.
func (s *Service) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case s.ops <- func() { errc <- fn() }:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot implements docsync.Source.
func (s *Service) Snapshot() model.Document {
	doc := s.Workspace.Snapshot()
	if s.cfg.Sync.ShareSchedule {
		all := s.State.All()
		doc.Scheduled = &all
	}
	return doc
}

// ApplyRemote implements docsync.Applier. The document is applied on the
// service loop; the call returns once it is applied.
func (s *Service) ApplyRemote(doc model.Document) {
	err := s.do(context.Background(), func() error {
		s.Workspace.Apply(doc)
		if !s.cfg.Sync.ShareSchedule || doc.Scheduled == nil {
			return nil
		}
		s.State.Load(*doc.Scheduled)
		in := s.inputs()
		ids := make([]string, len(in.Jobs))
		for i, j := range in.Jobs {
			ids[i] = j.ID
		}
		s.State.Prune(ids)
		trucks := make([]string, len(in.Trucks))
		for i, t := range in.Trucks {
			trucks[i] = t.ID
		}
		s.State.RetainTrucks(trucks)
		days := map[model.Day]bool{}
		for _, p := range *doc.Scheduled {
			days[p.Day] = true
		}
		for d := range days {
			s.pipeline.Mark(in, d)
		}
		return nil
	})
	if err != nil {
		s.log.Warnf("apply remote document: %v", err)
	}
}

// Import adds the records of doc to the workspace as local edits.
func (s *Service) Import(ctx context.Context, doc model.Document) error {
	return s.do(ctx, func() error {
		if doc.Settings != nil {
			s.Workspace.SetSettings(*doc.Settings)
		}
		if doc.Trucks != nil {
			for _, t := range *doc.Trucks {
				s.Workspace.UpsertTruck(t)
			}
		}
		if doc.Clients != nil {
			for _, c := range *doc.Clients {
				s.Workspace.UpsertClient(c)
			}
		}
		if doc.Jobs != nil {
			for _, j := range *doc.Jobs {
				s.Workspace.UpsertJob(j)
			}
		}
		return nil
	})
}

// ActiveDay returns the day selected in the settings.
func (s *Service) ActiveDay() model.Day { return s.Workspace.Settings().ActiveDay }

// RunSheet computes day if its inputs changed and returns its run sheet.
func (s *Service) RunSheet(ctx context.Context, day model.Day) (schedule.RunSheet, error) {
	var sheet schedule.RunSheet
	err := s.do(ctx, func() error {
		s.recompute(ctx, day, false)
		sheet = s.runSheet(day)
		return nil
	})
	return sheet, err
}

// Unscheduled returns the ids of the jobs of day that found no slot.
func (s *Service) Unscheduled(ctx context.Context, day model.Day) ([]string, error) {
	var ids []string
	err := s.do(ctx, func() error {
		s.recompute(ctx, day, false)
		ids = s.State.Unscheduled(day)
		return nil
	})
	return ids, err
}

// Place places one job manually on the earliest free slot of day.
func (s *Service) Place(ctx context.Context, day model.Day, jobID string) (model.Placement, error) {
	var placed model.Placement
	err := s.do(ctx, func() error {
		var err error
		placed, err = s.pipeline.Place(ctx, s.inputs(), day, jobID)
		if err != nil {
			return err
		}
		s.changes.Publish(events.Change{Kind: events.PlacementChanged, ID: jobID, Day: day, Time: time.Now()})
		return nil
	})
	return placed, err
}

// Recompute forces the auto-scheduler on day and returns the new run sheet.
func (s *Service) Recompute(ctx context.Context, day model.Day) (schedule.RunSheet, error) {
	var sheet schedule.RunSheet
	err := s.do(ctx, func() error {
		s.recompute(ctx, day, true)
		sheet = s.runSheet(day)
		return nil
	})
	return sheet, err
}

// SyncStatus returns the synchronizer connection status.
func (s *Service) SyncStatus() docsync.Status { return s.Sync.Status() }

// EnableSync starts sharing, or restarts it after a failure. The connection
// is opened in the background; SyncStatus reports its progress.
func (s *Service) EnableSync(ctx context.Context) error {
	if err := s.Sync.Enable(ctx); err != nil {
		return fmt.Errorf("enable sync: %w", err)
	}
	return nil
}

// DisableSync stops sharing. Local edits keep working.
func (s *Service) DisableSync(ctx context.Context) error {
	if err := s.Sync.Disable(ctx); err != nil {
		return fmt.Errorf("disable sync: %w", err)
	}
	return nil
}

// Runs returns the run history store.
func (s *Service) Runs() runlog.Store { return s.runs }

func (s *Service) runSheet(day model.Day) schedule.RunSheet {
	return schedule.BuildRunSheet(day, s.State.Day(day), s.Workspace.Jobs(), s.Workspace.Clients(), s.Workspace.Trucks(), s.Workspace.Settings().Window())
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if err := s.runs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("run log: %w", err))
	}
	if c, ok := s.store.(docsync.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("document store: %w", err))
		}
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}

func closeStore(store docsync.DocumentStore) {
	if c, ok := store.(docsync.Closer); ok {
		_ = c.Close()
	}
}
