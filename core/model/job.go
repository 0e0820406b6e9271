package model

import "strings"

// JobKind distinguishes deliveries from collections. Both kinds share the
// same four duration slots; only the meaning of the labels differs.
type JobKind string

const (
	KindDelivery   JobKind = "delivery"
	KindCollection JobKind = "collection"
)

// DefaultPriority is the neutral rank given to jobs without a priority.
const DefaultPriority = 100

// Job is a unit of scheduling.
type Job struct {
	ID           string  `json:"id"`
	Kind         JobKind `json:"kind"`
	Title        string  `json:"title,omitempty"`
	ClientID     string  `json:"clientId,omitempty"`
	Load         int     `json:"load"`
	Travel       int     `json:"travel"`
	Onsite       int     `json:"onsite"`
	ReturnTravel int     `json:"returnTravel"`
	Earliest     string  `json:"earliest,omitempty"`
	// Latest is advisory only and is never enforced by the schedulers.
	Latest   string `json:"latest,omitempty"`
	TruckID  string `json:"truckId,omitempty"`
	Priority *int   `json:"priority,omitempty"`
	Day      Day    `json:"day,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Segment is a named sub-interval of a job's total duration.
type Segment struct {
	Label   string `json:"label"`
	Minutes int    `json:"minutes"`
}

var segmentLabels = map[JobKind][4]string{
	KindDelivery:   {"Load", "Travel", "Offload", "Return"},
	KindCollection: {"Off-site load", "Travel", "On-site", "Return"},
}

// slots returns load, travel, onsite and return minutes with negatives
// clamped to zero.
func (j Job) slots() [4]int {
	return [4]int{nonNeg(j.Load), nonNeg(j.Travel), nonNeg(j.Onsite), nonNeg(j.ReturnTravel)}
}

// Duration is the total time the job occupies a truck.
func (j Job) Duration() int {
	total := 0
	for _, m := range j.slots() {
		total += m
	}
	return total
}

// Segments lists the non-empty segments of the job in execution order.
func (j Job) Segments() []Segment {
	labels, ok := segmentLabels[j.NormalizedKind()]
	if !ok {
		labels = segmentLabels[KindDelivery]
	}
	var out []Segment
	for i, m := range j.slots() {
		if m == 0 {
			continue
		}
		out = append(out, Segment{Label: labels[i], Minutes: m})
	}
	return out
}

// NormalizedKind maps unknown or differently cased kinds to a known value.
func (j Job) NormalizedKind() JobKind {
	if strings.EqualFold(string(j.Kind), string(KindCollection)) {
		return KindCollection
	}
	return KindDelivery
}

// Rank returns the job priority, DefaultPriority when unset.
func (j Job) Rank() int {
	if j.Priority == nil {
		return DefaultPriority
	}
	return *j.Priority
}

// EarliestMinute resolves the earliest start, fallback when unset or invalid.
func (j Job) EarliestMinute(fallback int) int {
	return MinuteOf(j.Earliest, fallback)
}

// Pinned reports whether the job must run on a specific truck.
func (j Job) Pinned() bool { return j.TruckID != "" }

// ApplyClientDefaults fills zero travel and on-site minutes from the client.
func (j *Job) ApplyClientDefaults(c Client) {
	if j.Travel <= 0 && c.DefaultTravel > 0 {
		j.Travel = c.DefaultTravel
	}
	if j.Onsite <= 0 && c.DefaultOnsite > 0 {
		j.Onsite = c.DefaultOnsite
	}
}

// PlacementInputsEqual reports whether two versions of a job would place
// identically. A change in any of these fields invalidates placements.
func PlacementInputsEqual(a, b Job) bool {
	return a.slots() == b.slots() &&
		a.Earliest == b.Earliest &&
		a.TruckID == b.TruckID &&
		a.Day == b.Day &&
		a.Rank() == b.Rank()
}

func nonNeg(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
