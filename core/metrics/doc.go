// Package metrics defines the events recorded while planning and syncing:
// auto-schedule runs, manual placements and shared-state transfers. Sinks
// like PromSink and InfluxSink in infra/metrics implement the recorders and
// can be combined with NewMultiSink; NewMetricsSink builds the configured
// set through the factory registry.
package metrics
