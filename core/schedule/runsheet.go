package schedule

import (
	"sort"

	"github.com/kilianp07/runsheet/core/model"
)

// Row is one job line of a run sheet.
type Row struct {
	PlacementID string          `json:"placementId"`
	JobID       string          `json:"jobId"`
	Kind        model.JobKind   `json:"kind"`
	Title       string          `json:"title,omitempty"`
	ClientName  string          `json:"clientName,omitempty"`
	Start       string          `json:"start,omitempty"`
	End         string          `json:"end,omitempty"`
	StartMinute *int            `json:"startMinute,omitempty"`
	EndMinute   *int            `json:"endMinute,omitempty"`
	Duration    int             `json:"duration"`
	Segments    []model.Segment `json:"segments,omitempty"`
	Earliest    string          `json:"earliest,omitempty"`
	Latest      string          `json:"latest,omitempty"`
	Notes       string          `json:"notes,omitempty"`
}

// Group holds the rows of one truck ordered by start.
type Group struct {
	TruckID   string `json:"truckId"`
	TruckName string `json:"truckName"`
	Rows      []Row  `json:"rows"`
}

// RunSheet is the printable plan of a day.
type RunSheet struct {
	Day         model.Day   `json:"day"`
	Groups      []Group     `json:"groups"`
	Unscheduled []Row       `json:"unscheduled"`
	Utilization Utilization `json:"utilization"`
}

// BuildRunSheet joins the placements of day with job and client display
// fields. Groups follow fleet order and include idle trucks; placements
// whose job no longer exists are skipped.
func BuildRunSheet(day model.Day, placements []model.Placement, jobs []model.Job, clients []model.Client, trucks []model.Truck, w model.Window) RunSheet {
	jobByID := make(map[string]model.Job, len(jobs))
	for _, j := range jobs {
		jobByID[j.ID] = j
	}
	clientName := make(map[string]string, len(clients))
	for _, c := range clients {
		clientName[c.ID] = c.Name
	}

	fleet := model.SortTrucks(trucks)
	sheet := RunSheet{Day: day, Groups: []Group{}, Unscheduled: []Row{}}
	index := map[string]int{}
	for _, t := range fleet {
		if _, dup := index[t.ID]; dup {
			continue
		}
		index[t.ID] = len(sheet.Groups)
		name := t.Name
		if name == "" {
			name = t.ID
		}
		sheet.Groups = append(sheet.Groups, Group{TruckID: t.ID, TruckName: name, Rows: []Row{}})
	}

	for _, p := range placements {
		if p.Day != day {
			continue
		}
		j, ok := jobByID[p.JobID]
		if !ok {
			continue
		}
		row := newRow(p, j, clientName[j.ClientID])
		if !p.Scheduled() {
			sheet.Unscheduled = append(sheet.Unscheduled, row)
			continue
		}
		gi, ok := index[p.Truck()]
		if !ok {
			gi = len(sheet.Groups)
			index[p.Truck()] = gi
			sheet.Groups = append(sheet.Groups, Group{TruckID: p.Truck(), TruckName: p.Truck()})
		}
		sheet.Groups[gi].Rows = append(sheet.Groups[gi].Rows, row)
	}

	for _, g := range sheet.Groups {
		sort.SliceStable(g.Rows, func(a, b int) bool { return *g.Rows[a].StartMinute < *g.Rows[b].StartMinute })
	}
	sort.SliceStable(sheet.Unscheduled, func(a, b int) bool { return sheet.Unscheduled[a].JobID < sheet.Unscheduled[b].JobID })
	sheet.Utilization = ComputeUtilization(day, placements, trucks, w)
	return sheet
}

func newRow(p model.Placement, j model.Job, client string) Row {
	r := Row{
		PlacementID: p.ID,
		JobID:       j.ID,
		Kind:        j.NormalizedKind(),
		Title:       j.Title,
		ClientName:  client,
		Duration:    j.Duration(),
		Segments:    j.Segments(),
		Earliest:    j.Earliest,
		Latest:      j.Latest,
		Notes:       j.Notes,
	}
	if start, end, ok := p.Interval(); ok {
		r.StartMinute, r.EndMinute = &start, &end
		r.Start, r.End = model.FormatClock(start), model.FormatClock(end)
	}
	return r
}
