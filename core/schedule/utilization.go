package schedule

import (
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/runsheet/core/model"
)

// TruckLoad is the busy time of one truck over a day.
type TruckLoad struct {
	TruckID     string `json:"truckId"`
	Jobs        int    `json:"jobs"`
	BusyMinutes int    `json:"busyMinutes"`
	// Share is BusyMinutes over the window length.
	Share float64 `json:"share"`
}

// Utilization summarizes how evenly a day's work is spread over the fleet.
type Utilization struct {
	Trucks     []TruckLoad `json:"trucks"`
	MeanBusy   float64     `json:"meanBusy"`
	StdDevBusy float64     `json:"stdDevBusy"`
}

// ComputeUtilization reports busy minutes per truck, fleet order, for the
// scheduled placements of day. Trucks without work count as zero.
func ComputeUtilization(day model.Day, placements []model.Placement, trucks []model.Truck, w model.Window) Utilization {
	fleet := model.SortTrucks(trucks)
	index := make(map[string]int, len(fleet))
	loads := make([]TruckLoad, 0, len(fleet))
	for _, t := range fleet {
		if _, dup := index[t.ID]; dup {
			continue
		}
		index[t.ID] = len(loads)
		loads = append(loads, TruckLoad{TruckID: t.ID})
	}
	for _, p := range placements {
		start, end, ok := p.Interval()
		if !ok || p.Day != day {
			continue
		}
		i, ok := index[p.Truck()]
		if !ok {
			continue
		}
		loads[i].Jobs++
		loads[i].BusyMinutes += end - start
	}
	span := float64(w.End - w.Start)
	busy := make([]float64, len(loads))
	for i := range loads {
		busy[i] = float64(loads[i].BusyMinutes)
		if span > 0 {
			loads[i].Share = busy[i] / span
		}
	}
	u := Utilization{Trucks: loads}
	if len(busy) > 0 {
		u.MeanBusy, u.StdDevBusy = stat.PopMeanStdDev(busy, nil)
	}
	return u
}

// Utilization computes the fleet balance of day from the current state.
func (s *State) Utilization(day model.Day, trucks []model.Truck, w model.Window) Utilization {
	return ComputeUtilization(day, s.Day(day), trucks, w)
}
