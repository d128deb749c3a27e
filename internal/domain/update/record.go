package update

import (
	"errors"
	"time"
)

// ErrAlreadyInProgress is returned by a trigger while another operation
// holds the update slot.
var ErrAlreadyInProgress = errors.New("update already in progress")

// Status is the phase of the last or current update operation.
type Status string

const (
	// StatusIdle means no operation has run yet.
	StatusIdle Status = "idle"
	// StatusPulling means the source sync phase is running.
	StatusPulling Status = "pulling"
	// StatusBuilding means the rebuild phase is running.
	StatusBuilding Status = "building"
	// StatusComplete means the last operation finished successfully.
	StatusComplete Status = "complete"
	// StatusError means the last operation failed.
	StatusError Status = "error"
)

// InProgress reports whether the status describes a running operation.
func (s Status) InProgress() bool {
	return s == StatusPulling || s == StatusBuilding
}

// Lease marks a live claim on the update slot so that a restarted process
// can tell a running operation from a stale record left by a crash.
type Lease struct {
	// PID is the process holding the update slot.
	PID int `json:"pid"`
	// RenewedAt is refreshed periodically while the operation runs.
	RenewedAt time.Time `json:"renewed_at"`
}

// Clone returns a copy of the lease.
func (l *Lease) Clone() *Lease {
	if l == nil {
		return nil
	}

	cloned := *l

	return &cloned
}

// Record describes the last or current update operation. It is the entire
// persisted state of the sidecar: there is exactly one record and every
// write replaces it wholesale.
type Record struct {
	// Status is the current phase.
	Status Status `json:"status"`
	// Message carries human-readable detail on terminal transitions.
	Message string `json:"message,omitempty"`
	// StartedAt is set once when the operation enters the pulling phase
	// and is carried unchanged into every later record of that operation.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is set only when the operation completes or fails.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Lease is present only while an operation is in flight.
	Lease *Lease `json:"lease,omitempty"`
}

// Idle returns the default record observed before any operation has run.
func Idle() *Record {
	return &Record{Status: StatusIdle}
}

// Clone returns a copy of the record to avoid leaking internal references.
func (r *Record) Clone() *Record {
	cloned := &Record{
		Status:  r.Status,
		Message: r.Message,
		Lease:   r.Lease.Clone(),
	}

	if r.StartedAt != nil {
		startedAt := *r.StartedAt
		cloned.StartedAt = &startedAt
	}

	if r.CompletedAt != nil {
		completedAt := *r.CompletedAt
		cloned.CompletedAt = &completedAt
	}

	return cloned
}
