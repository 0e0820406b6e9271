package model

import "sort"

// Truck is a fleet vehicle jobs are placed on.
type Truck struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client is the customer a job is performed for.
type Client struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DefaultTravel int    `json:"defaultTravel,omitempty"`
	DefaultOnsite int    `json:"defaultOnsite,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// SortTrucks returns a copy of trucks ordered by id, the fleet order used
// whenever ties between trucks are broken.
func SortTrucks(trucks []Truck) []Truck {
	out := append([]Truck(nil), trucks...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
