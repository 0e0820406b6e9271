package schedule

import "errors"

// ErrOverlap is returned when an upsert would make two placements share
// time on the same truck.
var ErrOverlap = errors.New("placement overlaps an existing one")
