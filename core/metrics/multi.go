package metrics

// MultiSink fans out events to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordScheduleRun forwards the run to all sinks, returning the first error encountered.
func (m *MultiSink) RecordScheduleRun(run ScheduleRun) error {
	for _, s := range m.Sinks {
		if err := s.RecordScheduleRun(run); err != nil {
			return err
		}
	}
	return nil
}

// RecordManualPlacement forwards placement events when supported by the sink.
func (m *MultiSink) RecordManualPlacement(ev ManualPlacementEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ManualPlacementRecorder); ok {
			if err := rec.RecordManualPlacement(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSync forwards sync events when supported by the sink.
func (m *MultiSink) RecordSync(ev SyncEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(SyncRecorder); ok {
			if err := rec.RecordSync(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
