package scheduler

import (
	"fmt"

	"github.com/kilianp07/runsheet/core/model"
)

// FindSlot returns the earliest start at or after earliest, snapped to a
// multiple of gap, where a job of duration fits in the window without
// overlapping existing. ok is false when the probe runs past the window end.
func FindSlot(existing []model.Placement, duration int, w model.Window, gap, earliest int) (start int, ok bool) {
	if gap <= 0 {
		gap = 1
	}
	cursor := earliest
	if cursor < w.Start {
		cursor = w.Start
	}
	for {
		start = model.SnapUp(cursor, gap)
		if start+duration > w.End {
			return 0, false
		}
		if Free(existing, start, duration, w) {
			return start, true
		}
		cursor = start + gap
	}
}

// PlaceManual finds the earliest slot for job across candidates. A pinned job
// only considers its own truck. The candidate with the smallest start wins;
// ties go to the first truck in fleet order. day placements may contain a
// previous placement of job: it is ignored, since the result replaces it.
//
// The returned placement has no ID. ErrNoCapacity is returned when no
// candidate has room.
func PlaceManual(job model.Job, candidates []model.Truck, placements []model.Placement, s model.Settings, day model.Day) (model.Placement, error) {
	w := s.Window()
	fleet := model.SortTrucks(candidates)
	if job.Pinned() {
		fleet = pinnedOnly(fleet, job.TruckID)
		if len(fleet) == 0 {
			return model.Placement{}, fmt.Errorf("job %s: truck %s not in fleet: %w", job.ID, job.TruckID, ErrNoCapacity)
		}
	}
	dur := job.Duration()
	earliest := job.EarliestMinute(w.Start)
	bestTruck, bestStart := "", 0
	found := false
	for _, t := range fleet {
		existing := OnTruck(placements, day, t.ID, job.ID)
		start, ok := FindSlot(existing, dur, w, s.Gap, earliest)
		if !ok {
			continue
		}
		if !found || start < bestStart {
			bestTruck, bestStart, found = t.ID, start, true
		}
	}
	if !found {
		return model.Placement{}, fmt.Errorf("job %s on %s: %w", job.ID, day, ErrNoCapacity)
	}
	return model.Placed("", day, job.ID, bestTruck, bestStart, bestStart+dur), nil
}

func pinnedOnly(fleet []model.Truck, id string) []model.Truck {
	for _, t := range fleet {
		if t.ID == id {
			return []model.Truck{t}
		}
	}
	return nil
}
