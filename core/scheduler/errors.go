package scheduler

import (
	"errors"
	"fmt"

	"github.com/kilianp07/runsheet/core/model"
)

// ErrNoCapacity is returned when no truck has a free slot for a job.
var ErrNoCapacity = errors.New("no capacity")

// OverlapError describes two placements sharing time on the same truck.
type OverlapError struct {
	Day   model.Day
	Truck string
	A, B  string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("placements %s and %s overlap on truck %s (%s)", e.A, e.B, e.Truck, e.Day)
}
