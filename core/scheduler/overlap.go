package scheduler

import (
	"sort"

	"github.com/kilianp07/runsheet/core/model"
)

// Overlaps reports whether the half-open intervals [aStart,aEnd) and
// [bStart,bEnd) intersect. Touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aEnd > bStart && aStart < bEnd
}

// Free reports whether [start, start+duration) fits in the window without
// touching any scheduled placement of existing. existing is expected to hold
// the placements of a single (day, truck); unscheduled entries are ignored.
func Free(existing []model.Placement, start, duration int, w model.Window) bool {
	if !w.Fits(start, duration) {
		return false
	}
	end := start + duration
	for _, p := range existing {
		s, e, ok := p.Interval()
		if !ok {
			continue
		}
		if Overlaps(start, end, s, e) {
			return false
		}
	}
	return true
}

// OnTruck returns the scheduled placements of day on truck sorted by start,
// skipping the placement of excludeJob.
func OnTruck(placements []model.Placement, day model.Day, truck, excludeJob string) []model.Placement {
	var out []model.Placement
	for _, p := range placements {
		if p.Day != day || !p.Scheduled() || p.Truck() != truck || p.JobID == excludeJob {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].Start < *out[j].Start })
	return out
}

// Validate returns an *OverlapError for the first pair of scheduled
// placements sharing time on the same (day, truck), nil otherwise.
func Validate(placements []model.Placement) error {
	type key struct {
		day   model.Day
		truck string
	}
	groups := map[key][]model.Placement{}
	var keys []key
	for _, p := range placements {
		if !p.Scheduled() {
			continue
		}
		k := key{p.Day, p.Truck()}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], p)
	}
	for _, k := range keys {
		g := groups[k]
		sort.SliceStable(g, func(i, j int) bool { return *g[i].Start < *g[j].Start })
		for i := 1; i < len(g); i++ {
			if Overlaps(*g[i-1].Start, *g[i-1].End, *g[i].Start, *g[i].End) {
				return &OverlapError{Day: k.day, Truck: k.truck, A: g[i-1].ID, B: g[i].ID}
			}
		}
	}
	return nil
}
