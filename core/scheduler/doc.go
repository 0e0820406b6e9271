// Package scheduler places jobs on trucks within a day window. AutoSchedule
// runs a deterministic greedy pass over every job of a day; PlaceManual
// probes forward in gap-sized steps for the earliest free slot of one job.
// Both functions are pure and never touch storage or the network.
package scheduler
