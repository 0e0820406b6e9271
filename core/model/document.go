package model

import "time"

// Meta stamps a shared document with its writer.
type Meta struct {
	WriterID  string    `json:"writerId"`
	Timestamp time.Time `json:"timestamp"`
}

// Document is the snapshot exchanged with the shared document store. Nil
// fields are absent: readers must leave the matching local state untouched.
type Document struct {
	Trucks    *[]Truck     `json:"trucks,omitempty"`
	Clients   *[]Client    `json:"clients,omitempty"`
	Jobs      *[]Job       `json:"jobs,omitempty"`
	Settings  *Settings    `json:"settings,omitempty"`
	Scheduled *[]Placement `json:"scheduled,omitempty"`
	Meta      Meta         `json:"meta"`
}
