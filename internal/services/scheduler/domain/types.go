package domain

import (
	"context"
	"time"

	"marketpulse/internal/core/canon"
	"marketpulse/internal/core/changes"
)

// Job is one compiled refresh job: which kind to collect and when
type Job struct {
	Name    string
	Kind    canon.EntityKind
	Cadence Cadence
}

// JobStatus is the observable state of one job
type JobStatus struct {
	Job         string     `json:"job"`
	Kind        string     `json:"kind"`
	Schedule    string     `json:"schedule"`
	Running     bool       `json:"running"`
	NextRun     time.Time  `json:"next_run,omitzero"`
	LastStarted *time.Time `json:"last_started,omitempty"`
	LastOutcome string     `json:"last_outcome,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	LastRecords int        `json:"last_records"`
	LastEvents  int        `json:"last_events"`
	RunsStarted int        `json:"runs_started"`
	RunsSkipped int        `json:"runs_skipped"`
}

// Notifier receives the significant change events of one run. Delivery is
// best effort; a notifier error never fails the run.
type Notifier interface {
	Notify(ctx context.Context, job string, events []changes.Event) error
}

// SchedulerPort is the surface the HTTP module consumes
type SchedulerPort interface {
	TriggerNow(ctx context.Context, job string) (JobStatus, error)
	Status() []JobStatus

	// Thresholds reports the active plan's change thresholds, so read paths
	// recomputing deltas agree with what runs notified
	Thresholds() changes.Thresholds
}
