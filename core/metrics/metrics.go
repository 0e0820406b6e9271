package metrics

import (
	"time"

	"github.com/kilianp07/runsheet/core/model"
)

// ScheduleRun summarizes one auto-schedule pass over a day.
type ScheduleRun struct {
	Day         model.Day
	Trigger     string
	Jobs        int
	Placed      int
	Unscheduled int
	// BusyMean and BusyStdDev describe busy minutes per truck.
	BusyMean   float64
	BusyStdDev float64
	Elapsed    time.Duration
	Time       time.Time
}

// MetricsSink records planning results for observability purposes.
type MetricsSink interface {
	RecordScheduleRun(run ScheduleRun) error
}

// ManualPlacementEvent captures the outcome of a first-fit probe.
type ManualPlacementEvent struct {
	Day     model.Day
	JobID   string
	TruckID string
	Start   int
	Placed  bool
	Time    time.Time
}

// ManualPlacementRecorder records manual placement attempts.
type ManualPlacementRecorder interface {
	RecordManualPlacement(ev ManualPlacementEvent) error
}

// SyncDirection tells whether a document left or reached this session.
type SyncDirection string

const (
	SyncOutbound SyncDirection = "outbound"
	SyncInbound  SyncDirection = "inbound"
	SyncEcho     SyncDirection = "echo"
)

// SyncEvent describes one shared document transfer.
type SyncEvent struct {
	Direction SyncDirection
	Bytes     int
	Err       string
	Time      time.Time
}

// SyncRecorder records shared-state transfers.
type SyncRecorder interface {
	RecordSync(ev SyncEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordScheduleRun(ScheduleRun) error              { return nil }
func (NopSink) RecordManualPlacement(ManualPlacementEvent) error { return nil }
func (NopSink) RecordSync(SyncEvent) error                       { return nil }

// OrNop returns s, or a NopSink when s is nil.
func OrNop(s MetricsSink) MetricsSink {
	if s == nil {
		return NopSink{}
	}
	return s
}
