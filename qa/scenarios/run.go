package scenarios

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kilianp07/runsheet/core/model"
	"github.com/kilianp07/runsheet/core/schedule"
	"github.com/kilianp07/runsheet/core/scheduler"
	"github.com/kilianp07/runsheet/infra/logger"
	"github.com/kilianp07/runsheet/infra/metrics"
)

func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}

	day, err := model.ParseDay(sc.Day)
	if err != nil {
		t.Fatalf("scenario %s: %v", sc.Name, err)
	}
	settings := sc.Settings
	if settings.DayStart == "" {
		settings.DayStart = model.DefaultSettings().DayStart
	}
	if settings.DayEnd == "" {
		settings.DayEnd = model.DefaultSettings().DayEnd
	}
	in := schedule.Inputs{Settings: settings.Normalized()}
	for _, tr := range sc.Trucks {
		in.Trucks = append(in.Trucks, model.Truck{ID: tr.ID, Name: tr.Name})
	}
	for _, j := range sc.Jobs {
		in.Jobs = append(in.Jobs, j.ToModel())
	}

	state := schedule.NewState()
	p := schedule.NewPipeline(state, nil, sink, logger.NopLogger{})
	ctx := context.Background()
	p.Recompute(ctx, in, day, true)
	first := state.Day(day)
	if p.Recompute(ctx, in, day, false) {
		t.Errorf("scenario %s: unchanged inputs were recomputed", sc.Name)
	}

	for _, step := range sc.Manual {
		placed, err := p.Place(ctx, in, day, step.Job)
		if step.Want == "none" {
			if !errors.Is(err, scheduler.ErrNoCapacity) {
				t.Errorf("scenario %s: manual %s: want no capacity, got %v", sc.Name, step.Job, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("scenario %s: manual %s: %v", sc.Name, step.Job, err)
			continue
		}
		checkSlot(t, sc.Name, placed, step.Want)
	}

	final := state.Day(day)
	if err := scheduler.Validate(final); err != nil {
		t.Errorf("scenario %s: %v", sc.Name, err)
	}
	byJob := map[string]model.Placement{}
	for _, pl := range final {
		byJob[pl.JobID] = pl
	}
	for id, want := range sc.Expected.Starts {
		pl, ok := byJob[id]
		if !ok {
			t.Errorf("scenario %s: job %s has no placement", sc.Name, id)
			continue
		}
		checkSlot(t, sc.Name, pl, want)
	}

	placed := 0
	for _, pl := range first {
		if pl.Scheduled() {
			placed++
		}
	}
	if placed != sc.Expected.Placed {
		t.Errorf("scenario %s expected %d placed, got %d", sc.Name, sc.Expected.Placed, placed)
	}
	if n, err := testutil.GatherAndCount(reg, "runsheet_schedule_runs_total"); err != nil || n != 1 {
		t.Errorf("scenario %s: %d schedule run series (%v)", sc.Name, n, err)
	}
	if got := gaugeValue(t, reg, "runsheet_jobs_placed"); int(got) != sc.Expected.Placed {
		t.Errorf("scenario %s: placed gauge %v", sc.Name, got)
	}
	unscheduled := state.Unscheduled(day)
	if len(unscheduled) != len(sc.Expected.Unscheduled) {
		t.Errorf("scenario %s expected unscheduled %v, got %v", sc.Name, sc.Expected.Unscheduled, unscheduled)
		return
	}
	for i, id := range sc.Expected.Unscheduled {
		if unscheduled[i] != id {
			t.Errorf("scenario %s expected unscheduled %v, got %v", sc.Name, sc.Expected.Unscheduled, unscheduled)
			return
		}
	}
}

func checkSlot(t *testing.T, name string, pl model.Placement, want string) {
	t.Helper()
	truck, start, err := parseSlot(want)
	if err != nil {
		t.Fatalf("scenario %s: %v", name, err)
	}
	if !pl.Scheduled() {
		t.Errorf("scenario %s: job %s unscheduled, want %s", name, pl.JobID, want)
		return
	}
	if pl.Truck() != truck || *pl.Start != start {
		t.Errorf("scenario %s: job %s on %s@%s, want %s", name, pl.JobID, pl.Truck(), model.FormatClock(*pl.Start), want)
	}
}

// gaugeValue returns the value of the first series of the named gauge.
func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
