package models

import (
	"errors"
	"time"
)

// RunStatus is the outcome of one stage run.
type RunStatus string

const (
	RunOK     RunStatus = "ok"
	RunFailed RunStatus = "failed"
)

// Run is one stage execution as kept in the run ledger.
type Run struct {
	ID          string
	Stage       string
	Source      Source
	Status      RunStatus
	Error       string
	Inputs      []string
	Output      string
	FilesRead   int
	Processed   int
	Skipped     int
	Written     int
	SkipReasons map[string]int
	Counters    map[string]int
	StartedAt   time.Time
	Duration    time.Duration
}

// Validate checks run field constraints.
func (r *Run) Validate() error {
	if r.Stage == "" {
		return errors.New("run stage must not be empty")
	}
	if r.Status != RunOK && r.Status != RunFailed {
		return errors.New("run status must be ok or failed")
	}
	if r.Status == RunFailed && r.Error == "" {
		return errors.New("failed run must carry an error")
	}
	if r.FilesRead < 0 || r.Processed < 0 || r.Skipped < 0 || r.Written < 0 {
		return errors.New("run counts must not be negative")
	}
	if r.StartedAt.IsZero() {
		return errors.New("run start time must be set")
	}
	if r.Duration < 0 {
		return errors.New("run duration must not be negative")
	}
	return nil
}

// Notification records that an edge for Key was sent.
type Notification struct {
	Key        string
	Phase      Phase
	Conviction float64
	SentAt     time.Time
}
