// Package runlog keeps an append-only history of schedule computations.
package runlog

import (
	"context"
	"time"

	"github.com/kilianp07/runsheet/core/model"
)

// Trigger names what caused a schedule computation.
type Trigger string

const (
	TriggerAuto   Trigger = "auto"
	TriggerForce  Trigger = "force"
	TriggerManual Trigger = "manual"
)

// Record captures one computation and its outcome.
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	Day         model.Day `json:"day"`
	Trigger     Trigger   `json:"trigger"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Jobs        int       `json:"jobs"`
	Placed      int       `json:"placed"`
	Unscheduled []string  `json:"unscheduled,omitempty"`
	// JobID is set for manual placements.
	JobID     string  `json:"job_id,omitempty"`
	TruckID   string  `json:"truck_id,omitempty"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

// Query defines filters for retrieving records. Zero values match everything.
type Query struct {
	Start   time.Time
	End     time.Time
	Day     model.Day
	Trigger Trigger
}

// Match reports whether r passes every filter of q.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Day != "" && r.Day != q.Day {
		return false
	}
	if q.Trigger != "" && r.Trigger != q.Trigger {
		return false
	}
	return true
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards every record.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error           { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }
