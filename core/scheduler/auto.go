package scheduler

import (
	"cmp"
	"slices"

	"github.com/kilianp07/runsheet/core/model"
)

// PlacementID is the deterministic id given to auto-scheduled placements.
func PlacementID(day model.Day, jobID string) string {
	return string(day) + ":" + jobID
}

// OrderJobs returns the processing order of AutoSchedule: priority
// ascending, earliest start ascending, duration descending, then job id.
func OrderJobs(jobs []model.Job, w model.Window) []model.Job {
	out := append([]model.Job(nil), jobs...)
	slices.SortStableFunc(out, func(a, b model.Job) int {
		if c := cmp.Compare(a.Rank(), b.Rank()); c != 0 {
			return c
		}
		if c := cmp.Compare(a.EarliestMinute(w.Start), b.EarliestMinute(w.Start)); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Duration(), a.Duration()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// AutoSchedule places every job of day in a single greedy pass. Each truck
// keeps an availability cursor starting at the window start; a placed job
// moves its truck cursor to end+buffer. Pinned jobs only try their truck.
// Other jobs try trucks from the least loaded cursor up, ties in fleet order.
// Jobs that do not fit are returned as unscheduled placements.
//
// The output is a pure function of the inputs.
func AutoSchedule(jobs []model.Job, trucks []model.Truck, day model.Day, w model.Window, buffer int) []model.Placement {
	if buffer < 0 {
		buffer = 0
	}
	var dayJobs []model.Job
	for _, j := range jobs {
		if j.Day == day {
			dayJobs = append(dayJobs, j)
		}
	}
	fleet := dedupe(model.SortTrucks(trucks))
	index := make(map[string]int, len(fleet))
	for i, t := range fleet {
		index[t.ID] = i
	}
	cursor := make([]int, len(fleet))
	for i := range cursor {
		cursor[i] = w.Start
	}
	order := make([]int, len(fleet))

	out := make([]model.Placement, 0, len(dayJobs))
	for _, j := range OrderJobs(dayJobs, w) {
		id := PlacementID(day, j.ID)
		dur := j.Duration()
		earliest := max(w.Start, j.EarliestMinute(w.Start))

		try := func(ti int) (model.Placement, bool) {
			start := max(cursor[ti], earliest)
			if !w.Fits(start, dur) {
				return model.Placement{}, false
			}
			cursor[ti] = start + dur + buffer
			return model.Placed(id, day, j.ID, fleet[ti].ID, start, start+dur), true
		}

		if j.Pinned() {
			if ti, ok := index[j.TruckID]; ok {
				if p, ok := try(ti); ok {
					out = append(out, p)
					continue
				}
			}
			out = append(out, model.Unplaced(id, day, j.ID))
			continue
		}

		for i := range order {
			order[i] = i
		}
		slices.SortStableFunc(order, func(a, b int) int { return cmp.Compare(cursor[a], cursor[b]) })
		placed := false
		for _, ti := range order {
			if p, ok := try(ti); ok {
				out = append(out, p)
				placed = true
				break
			}
		}
		if !placed {
			out = append(out, model.Unplaced(id, day, j.ID))
		}
	}
	return out
}

func dedupe(fleet []model.Truck) []model.Truck {
	out := fleet[:0:0]
	seen := map[string]bool{}
	for _, t := range fleet {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}
