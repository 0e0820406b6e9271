package schedule

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/runsheet/core/logger"
	"github.com/kilianp07/runsheet/core/metrics"
	"github.com/kilianp07/runsheet/core/model"
	"github.com/kilianp07/runsheet/core/schedule/runlog"
	"github.com/kilianp07/runsheet/core/scheduler"
)

// ErrUnknownJob is returned when a manual placement names a missing job.
var ErrUnknownJob = errors.New("unknown job")

// Inputs are the records scheduling reads.
type Inputs struct {
	Jobs     []model.Job
	Trucks   []model.Truck
	Settings model.Settings
}

// Pipeline reruns the auto-scheduler for a day only when that day's inputs
// changed since the last run. Results are written to a State.
type Pipeline struct {
	state *State
	runs  runlog.Store
	sink  metrics.MetricsSink
	log   logger.Logger
	last  map[model.Day]string

	now   func() time.Time
	newID func() string
}

// NewPipeline returns a Pipeline writing to state. runs, sink and log may be nil.
func NewPipeline(state *State, runs runlog.Store, sink metrics.MetricsSink, log logger.Logger) *Pipeline {
	if runs == nil {
		runs = runlog.NopStore{}
	}
	return &Pipeline{
		state: state,
		runs:  runs,
		sink:  metrics.OrNop(sink),
		log:   logger.OrNop(log),
		last:  map[model.Day]string{},
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// State returns the state the pipeline writes to.
func (p *Pipeline) State() *State { return p.state }

// Recompute runs AutoSchedule for day when the fingerprint of its inputs
// differs from the previous run, or unconditionally when force is set. It
// reports whether the day was recomputed.
func (p *Pipeline) Recompute(ctx context.Context, in Inputs, day model.Day, force bool) bool {
	fp := Fingerprint(in, day)
	if !force && p.last[day] == fp {
		return false
	}
	settings := in.Settings.Normalized()
	w := settings.Window()

	began := time.Now()
	placements := scheduler.AutoSchedule(in.Jobs, in.Trucks, day, w, settings.Buffer)
	elapsed := time.Since(began)

	p.state.ReplaceDay(day, placements)
	p.last[day] = fp

	trigger := runlog.TriggerAuto
	if force {
		trigger = runlog.TriggerForce
	}
	rec := runlog.Record{
		Timestamp:   p.now(),
		Day:         day,
		Trigger:     trigger,
		Fingerprint: fp,
		Jobs:        len(placements),
	}
	for _, pl := range placements {
		if pl.Scheduled() {
			rec.Placed++
		} else {
			rec.Unscheduled = append(rec.Unscheduled, pl.JobID)
		}
	}
	rec.ElapsedMS = float64(elapsed.Microseconds()) / 1000
	p.appendRun(ctx, rec)

	util := ComputeUtilization(day, placements, in.Trucks, w)
	if err := p.sink.RecordScheduleRun(metrics.ScheduleRun{
		Day:         day,
		Trigger:     string(trigger),
		Jobs:        rec.Jobs,
		Placed:      rec.Placed,
		Unscheduled: len(rec.Unscheduled),
		BusyMean:    util.MeanBusy,
		BusyStdDev:  util.StdDevBusy,
		Elapsed:     elapsed,
		Time:        rec.Timestamp,
	}); err != nil {
		p.log.Warnf("record schedule run: %v", err)
	}
	p.log.Infow("schedule recomputed", map[string]any{
		"day":         string(day),
		"trigger":     string(trigger),
		"placed":      rec.Placed,
		"unscheduled": len(rec.Unscheduled),
	})
	return true
}

// Invalidate forgets the fingerprint of day so the next Recompute runs.
// An empty day invalidates every day.
func (p *Pipeline) Invalidate(day model.Day) {
	if day == "" {
		p.last = map[model.Day]string{}
		return
	}
	delete(p.last, day)
}

// Mark records the current inputs of day as computed without running the
// scheduler. Used after placements were loaded from elsewhere.
func (p *Pipeline) Mark(in Inputs, day model.Day) {
	p.last[day] = Fingerprint(in, day)
}

// Place puts job on the earliest free slot of day across the fleet, keeping
// the other placements of the day. The day is brought up to date with in
// first, so a later Recompute with the same inputs keeps the placement.
// The placement receives a fresh id. scheduler.ErrNoCapacity is returned
// when no truck has room.
func (p *Pipeline) Place(ctx context.Context, in Inputs, day model.Day, jobID string) (model.Placement, error) {
	var job model.Job
	found := false
	for _, j := range in.Jobs {
		if j.ID == jobID {
			job, found = j, true
			break
		}
	}
	if !found {
		return model.Placement{}, fmt.Errorf("%s: %w", jobID, ErrUnknownJob)
	}
	p.Recompute(ctx, in, day, false)

	ev := metrics.ManualPlacementEvent{Day: day, JobID: jobID, Time: p.now()}
	rec := runlog.Record{Timestamp: ev.Time, Day: day, Trigger: runlog.TriggerManual, JobID: jobID, Jobs: 1}

	placed, err := scheduler.PlaceManual(job, in.Trucks, p.state.Day(day), in.Settings.Normalized(), day)
	if err == nil {
		placed.ID = p.newID()
		err = p.state.Upsert(placed)
	}
	if err != nil {
		rec.Unscheduled = []string{jobID}
		p.appendRun(ctx, rec)
		p.recordManual(ev)
		return model.Placement{}, err
	}
	ev.Placed, ev.TruckID, ev.Start = true, placed.Truck(), *placed.Start
	rec.Placed, rec.TruckID = 1, placed.Truck()
	p.appendRun(ctx, rec)
	p.recordManual(ev)
	return placed, nil
}

func (p *Pipeline) appendRun(ctx context.Context, rec runlog.Record) {
	if err := p.runs.Append(ctx, rec); err != nil {
		p.log.Warnf("append run log: %v", err)
	}
}

func (p *Pipeline) recordManual(ev metrics.ManualPlacementEvent) {
	rec, ok := p.sink.(metrics.ManualPlacementRecorder)
	if !ok {
		return
	}
	if err := rec.RecordManualPlacement(ev); err != nil {
		p.log.Warnf("record manual placement: %v", err)
	}
}

type fingerprintJob struct {
	ID       string `json:"id"`
	Duration int    `json:"d"`
	Earliest int    `json:"e"`
	Truck    string `json:"t,omitempty"`
	Rank     int    `json:"r"`
}

type fingerprintInput struct {
	Jobs   []fingerprintJob `json:"jobs"`
	Trucks []string         `json:"trucks"`
	Start  int              `json:"start"`
	End    int              `json:"end"`
	Buffer int              `json:"buffer"`
}

// Fingerprint hashes every input AutoSchedule reads for day. Two inputs with
// the same fingerprint produce the same placements.
func Fingerprint(in Inputs, day model.Day) string {
	s := in.Settings.Normalized()
	w := s.Window()
	fi := fingerprintInput{Start: w.Start, End: w.End, Buffer: s.Buffer, Jobs: []fingerprintJob{}}
	for _, j := range in.Jobs {
		if j.Day != day {
			continue
		}
		fi.Jobs = append(fi.Jobs, fingerprintJob{
			ID:       j.ID,
			Duration: j.Duration(),
			Earliest: j.EarliestMinute(w.Start),
			Truck:    j.TruckID,
			Rank:     j.Rank(),
		})
	}
	sort.SliceStable(fi.Jobs, func(a, b int) bool { return fi.Jobs[a].ID < fi.Jobs[b].ID })
	for _, t := range model.SortTrucks(in.Trucks) {
		fi.Trucks = append(fi.Trucks, t.ID)
	}
	raw, _ := json.Marshal(fi)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
