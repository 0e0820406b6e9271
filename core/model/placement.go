package model

// Placement is a scheduled row: one job on one day. TruckID, Start and End
// are nil together when the job could not be placed.
type Placement struct {
	ID      string  `json:"id"`
	Day     Day     `json:"day"`
	JobID   string  `json:"jobId"`
	TruckID *string `json:"truckId"`
	Start   *int    `json:"start"`
	End     *int    `json:"end"`
}

// Placed returns a placement of job on truck over [start, end).
func Placed(id string, day Day, jobID, truckID string, start, end int) Placement {
	return Placement{ID: id, Day: day, JobID: jobID, TruckID: &truckID, Start: &start, End: &end}
}

// Unplaced returns a placement marking job as unscheduled.
func Unplaced(id string, day Day, jobID string) Placement {
	return Placement{ID: id, Day: day, JobID: jobID}
}

// Scheduled reports whether the placement holds a truck and times.
func (p Placement) Scheduled() bool {
	return p.TruckID != nil && p.Start != nil && p.End != nil
}

// Truck returns the truck id or "" when unscheduled.
func (p Placement) Truck() string {
	if p.TruckID == nil {
		return ""
	}
	return *p.TruckID
}

// Interval returns start and end; ok is false when unscheduled.
func (p Placement) Interval() (start, end int, ok bool) {
	if !p.Scheduled() {
		return 0, 0, false
	}
	return *p.Start, *p.End, true
}

// Clone returns a copy that shares no pointers with p.
func (p Placement) Clone() Placement {
	c := Placement{ID: p.ID, Day: p.Day, JobID: p.JobID}
	if p.TruckID != nil {
		t := *p.TruckID
		c.TruckID = &t
	}
	if p.Start != nil {
		s := *p.Start
		c.Start = &s
	}
	if p.End != nil {
		e := *p.End
		c.End = &e
	}
	return c
}
