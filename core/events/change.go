package events

import (
	"time"

	"github.com/kilianp07/runsheet/core/model"
)

// ChangeKind names the record operation behind a Change.
type ChangeKind string

const (
	TruckUpserted   ChangeKind = "truck_upserted"
	TruckRemoved    ChangeKind = "truck_removed"
	ClientUpserted  ChangeKind = "client_upserted"
	ClientRemoved   ChangeKind = "client_removed"
	JobUpserted     ChangeKind = "job_upserted"
	JobRemoved      ChangeKind = "job_removed"
	SettingsChanged ChangeKind = "settings_changed"
	// RemoteApplied follows the application of a shared document.
	RemoteApplied ChangeKind = "remote_applied"
	// PlacementChanged follows a manual placement.
	PlacementChanged ChangeKind = "placement_changed"
)

// Change is published after the workspace or the schedule was mutated.
// Subscribers re-read current state instead of relying on the payload, so
// a dropped event is covered by any later one.
type Change struct {
	Kind ChangeKind
	ID   string
	// Day is set when the change concerns a single day.
	Day  model.Day
	Time time.Time
}

// Local reports whether the change originated in this session.
func (c Change) Local() bool { return c.Kind != RemoteApplied }
