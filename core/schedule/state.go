// Package schedule holds the placements of every day and the pipeline that
// recomputes them when scheduling inputs change.
package schedule

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/runsheet/core/model"
	"github.com/kilianp07/runsheet/core/scheduler"
)

// State holds the placements of each day. It is safe for concurrent readers;
// writes are expected from a single goroutine.
type State struct {
	mu   sync.RWMutex
	days map[model.Day][]model.Placement
}

// NewState returns an empty State.
func NewState() *State {
	return &State{days: map[model.Day][]model.Placement{}}
}

// ReplaceDay drops every placement of day and stores placements instead.
// Entries belonging to another day are ignored.
func (s *State) ReplaceDay(day model.Day, placements []model.Placement) {
	out := make([]model.Placement, 0, len(placements))
	for _, p := range placements {
		if p.Day == day {
			out = append(out, p.Clone())
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(out) == 0 {
		delete(s.days, day)
		return
	}
	s.days[day] = out
}

// Upsert stores p in place of any prior placement of the same job on the
// same day. ErrOverlap is returned, and nothing changes, when p would share
// time with another placement on its truck.
func (s *State) Upsert(p model.Placement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.days[p.Day]
	if start, end, ok := p.Interval(); ok {
		for _, o := range scheduler.OnTruck(cur, p.Day, p.Truck(), p.JobID) {
			if scheduler.Overlaps(start, end, *o.Start, *o.End) {
				return fmt.Errorf("job %s with %s: %w", p.JobID, o.JobID, ErrOverlap)
			}
		}
	}
	next := make([]model.Placement, 0, len(cur)+1)
	for _, o := range cur {
		if o.JobID != p.JobID {
			next = append(next, o)
		}
	}
	s.days[p.Day] = append(next, p.Clone())
	return nil
}

// RemoveJob drops the placements of job on every day.
func (s *State) RemoveJob(jobID string) {
	s.filter(func(p model.Placement) bool { return p.JobID != jobID })
}

// RemoveTruck drops the placements on truck on every day.
func (s *State) RemoveTruck(truckID string) {
	s.filter(func(p model.Placement) bool { return p.Truck() != truckID || truckID == "" })
}

// RetainTrucks drops scheduled placements on trucks missing from truckIDs.
func (s *State) RetainTrucks(truckIDs []string) {
	keep := make(map[string]bool, len(truckIDs))
	for _, id := range truckIDs {
		keep[id] = true
	}
	s.filter(func(p model.Placement) bool { return !p.Scheduled() || keep[p.Truck()] })
}

// Prune drops placements whose job is not in jobIDs.
func (s *State) Prune(jobIDs []string) {
	keep := make(map[string]bool, len(jobIDs))
	for _, id := range jobIDs {
		keep[id] = true
	}
	s.filter(func(p model.Placement) bool { return keep[p.JobID] })
}

func (s *State) filter(keep func(model.Placement) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for day, ps := range s.days {
		out := ps[:0]
		for _, p := range ps {
			if keep(p) {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			delete(s.days, day)
			continue
		}
		s.days[day] = out
	}
}

// Day returns a copy of the placements of day: scheduled entries by truck
// then start, unscheduled entries last by job id.
func (s *State) Day(day model.Day) []model.Placement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sorted(s.days[day])
}

// Placement returns the placement of job on day.
func (s *State) Placement(day model.Day, jobID string) (model.Placement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.days[day] {
		if p.JobID == jobID {
			return p.Clone(), true
		}
	}
	return model.Placement{}, false
}

// Unscheduled lists the ids of jobs of day that hold no truck and times.
func (s *State) Unscheduled(day model.Day) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, p := range s.days[day] {
		if !p.Scheduled() {
			ids = append(ids, p.JobID)
		}
	}
	sort.Strings(ids)
	return ids
}

// All returns every placement, days in week order.
func (s *State) All() []model.Placement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Placement
	for _, d := range model.Days {
		out = append(out, sorted(s.days[d])...)
	}
	for d, ps := range s.days {
		if !d.Valid() {
			out = append(out, sorted(ps)...)
		}
	}
	return out
}

// Load replaces the whole state with all.
func (s *State) Load(all []model.Placement) {
	days := map[model.Day][]model.Placement{}
	for _, p := range all {
		days[p.Day] = append(days[p.Day], p.Clone())
	}
	s.mu.Lock()
	s.days = days
	s.mu.Unlock()
}

func sorted(ps []model.Placement) []model.Placement {
	out := make([]model.Placement, len(ps))
	for i, p := range ps {
		out[i] = p.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Scheduled() != b.Scheduled() {
			return a.Scheduled()
		}
		if !a.Scheduled() {
			return a.JobID < b.JobID
		}
		if a.Truck() != b.Truck() {
			return a.Truck() < b.Truck()
		}
		return *a.Start < *b.Start
	})
	return out
}
