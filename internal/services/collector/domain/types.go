// Package domain holds the collector's types and ports
package domain

import (
	"time"

	"marketpulse/internal/core/canon"
)

// Outcome classifies how one collection cycle ended
type Outcome string

const (
	// OutcomeOK means every source delivered
	OutcomeOK Outcome = "ok"

	// OutcomePartial means at least one source failed but data was collected
	OutcomePartial Outcome = "partial"

	// OutcomeEmpty means sources succeeded but nothing survived normalization
	OutcomeEmpty Outcome = "empty"

	// OutcomeFailed means every source for the kind failed
	OutcomeFailed Outcome = "failed"
)

// SourceResult is one source's contribution to a cycle
type SourceResult struct {
	Source  string
	Records []canon.RawRecord
	Err     error
}

// CollectResult summarizes one collection cycle for one entity kind
type CollectResult struct {
	Kind         canon.EntityKind  `json:"kind"`
	Outcome      Outcome           `json:"outcome"`
	Records      int               `json:"records"`
	RawRecords   int               `json:"raw_records"`
	SourceErrors map[string]string `json:"source_errors,omitempty"`
	Duration     time.Duration     `json:"duration"`

	// Snapshot is nil when Outcome is failed
	Snapshot *canon.Snapshot `json:"-"`
}
