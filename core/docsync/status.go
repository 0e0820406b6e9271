package docsync

import "time"

// State is the connection state of a Synchronizer.
type State string

const (
	StatusDisabled   State = "disabled"
	StatusConnecting State = "connecting"
	StatusConnected  State = "connected"
	StatusError      State = "error"
)

// Status is the latest connection state with a human readable message.
type Status struct {
	State    State     `json:"state"`
	Message  string    `json:"message,omitempty"`
	WriterID string    `json:"writerId"`
	Since    time.Time `json:"since"`
	// LastWrite and LastRemote are zero until the first transfer.
	LastWrite  time.Time `json:"lastWrite,omitempty"`
	LastRemote time.Time `json:"lastRemote,omitempty"`
}
