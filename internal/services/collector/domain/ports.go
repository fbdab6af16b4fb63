package domain

import (
	"context"

	"marketpulse/internal/core/canon"
)

// Source produces raw records for the entity kinds it serves. Implementations
// own their transport concerns (auth, pacing, pagination); the collector only
// sees records or an error.
type Source interface {
	Name() string
	Serves(kind canon.EntityKind) bool
	Fetch(ctx context.Context, kind canon.EntityKind) ([]canon.RawRecord, error)
}

// SnapshotRepo persists and retrieves immutable snapshots. Latest and
// Previous return (nil, nil) when no snapshot exists yet.
type SnapshotRepo interface {
	Save(ctx context.Context, s *canon.Snapshot) error
	Latest(ctx context.Context, kind canon.EntityKind) (*canon.Snapshot, error)
	Previous(ctx context.Context, kind canon.EntityKind) (*canon.Snapshot, error)
}

// CollectorPort is the surface other modules consume
type CollectorPort interface {
	Collect(ctx context.Context, kind canon.EntityKind) (CollectResult, error)
	CollectAll(ctx context.Context) ([]CollectResult, error)
	Latest(ctx context.Context, kind canon.EntityKind) (*canon.Snapshot, error)
	Previous(ctx context.Context, kind canon.EntityKind) (*canon.Snapshot, error)
}
