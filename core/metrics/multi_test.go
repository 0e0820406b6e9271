package metrics

import (
	"errors"
	"testing"
)

type recordSink struct {
	runs, manual, syncs int
	err                 error
}

func (r *recordSink) RecordScheduleRun(ScheduleRun) error {
	r.runs++
	return r.err
}

func (r *recordSink) RecordManualPlacement(ManualPlacementEvent) error {
	r.manual++
	return nil
}

func (r *recordSink) RecordSync(SyncEvent) error {
	r.syncs++
	return nil
}

type runsOnly struct{ runs int }

func (r *runsOnly) RecordScheduleRun(ScheduleRun) error {
	r.runs++
	return nil
}

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &runsOnly{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordScheduleRun(ScheduleRun{}); err != nil {
		t.Fatalf("record run: %v", err)
	}
	if err := m.RecordManualPlacement(ManualPlacementEvent{}); err != nil {
		t.Fatalf("record manual: %v", err)
	}
	if err := m.RecordSync(SyncEvent{}); err != nil {
		t.Fatalf("record sync: %v", err)
	}
	if s1.runs != 1 || s2.runs != 1 || s1.manual != 1 || s1.syncs != 1 {
		t.Fatalf("events not forwarded: %+v %+v", s1, s2)
	}
}

func TestMultiSinkStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	s1 := &recordSink{err: boom}
	s2 := &runsOnly{}
	if err := NewMultiSink(s1, s2).RecordScheduleRun(ScheduleRun{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom got %v", err)
	}
	if s2.runs != 0 {
		t.Fatalf("second sink should not be called")
	}
}
