package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/runsheet/core/metrics"
)

// PromSink records planning and sync events in Prometheus metrics.
type PromSink struct {
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	placed      *prometheus.GaugeVec
	unscheduled *prometheus.GaugeVec
	busyMean    *prometheus.GaugeVec
	busyStdDev  *prometheus.GaugeVec
	manual      *prometheus.CounterVec
	syncs       *prometheus.CounterVec
	syncBytes   *prometheus.CounterVec
}

// NewPromSink registers metrics on the default Prometheus registerer.
// The /metrics endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runsheet_schedule_runs_total",
			Help: "Total number of auto-schedule passes",
		}, []string{"day", "trigger"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "runsheet_schedule_duration_seconds",
			Help:    "Time spent computing a day's placements",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"trigger"}),
		placed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "runsheet_jobs_placed",
			Help: "Jobs placed on a truck by the last pass",
		}, []string{"day"}),
		unscheduled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "runsheet_jobs_unscheduled",
			Help: "Jobs left without a slot by the last pass",
		}, []string{"day"}),
		busyMean: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "runsheet_truck_busy_minutes_mean",
			Help: "Mean busy minutes per truck",
		}, []string{"day"}),
		busyStdDev: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "runsheet_truck_busy_minutes_stddev",
			Help: "Standard deviation of busy minutes per truck",
		}, []string{"day"}),
		manual: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runsheet_manual_placements_total",
			Help: "Manual placement attempts by outcome",
		}, []string{"day", "placed"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runsheet_sync_transfers_total",
			Help: "Shared document transfers by direction and outcome",
		}, []string{"direction", "result"}),
		syncBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runsheet_sync_bytes_total",
			Help: "Bytes of shared document transferred",
		}, []string{"direction"}),
	}
	var err error
	if s.runs, err = register(reg, s.runs); err != nil {
		return nil, err
	}
	if s.runDuration, err = register(reg, s.runDuration); err != nil {
		return nil, err
	}
	if s.placed, err = register(reg, s.placed); err != nil {
		return nil, err
	}
	if s.unscheduled, err = register(reg, s.unscheduled); err != nil {
		return nil, err
	}
	if s.busyMean, err = register(reg, s.busyMean); err != nil {
		return nil, err
	}
	if s.busyStdDev, err = register(reg, s.busyStdDev); err != nil {
		return nil, err
	}
	if s.manual, err = register(reg, s.manual); err != nil {
		return nil, err
	}
	if s.syncs, err = register(reg, s.syncs); err != nil {
		return nil, err
	}
	if s.syncBytes, err = register(reg, s.syncBytes); err != nil {
		return nil, err
	}
	return s, nil
}

// register adds c to reg, reusing an identical collector that is already
// registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordScheduleRun updates counters and gauges for one pass.
func (s *PromSink) RecordScheduleRun(run coremetrics.ScheduleRun) error {
	day := string(run.Day)
	s.runs.WithLabelValues(day, run.Trigger).Inc()
	s.runDuration.WithLabelValues(run.Trigger).Observe(run.Elapsed.Seconds())
	s.placed.WithLabelValues(day).Set(float64(run.Placed))
	s.unscheduled.WithLabelValues(day).Set(float64(run.Unscheduled))
	s.busyMean.WithLabelValues(day).Set(run.BusyMean)
	s.busyStdDev.WithLabelValues(day).Set(run.BusyStdDev)
	return nil
}

// RecordManualPlacement counts a first-fit attempt.
func (s *PromSink) RecordManualPlacement(ev coremetrics.ManualPlacementEvent) error {
	s.manual.WithLabelValues(string(ev.Day), strconv.FormatBool(ev.Placed)).Inc()
	return nil
}

// RecordSync counts a shared document transfer.
func (s *PromSink) RecordSync(ev coremetrics.SyncEvent) error {
	result := "ok"
	if ev.Err != "" {
		result = "error"
	}
	s.syncs.WithLabelValues(string(ev.Direction), result).Inc()
	if ev.Bytes > 0 {
		s.syncBytes.WithLabelValues(string(ev.Direction)).Add(float64(ev.Bytes))
	}
	return nil
}
