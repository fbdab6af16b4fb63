package repo

import (
	"context"
	"encoding/json"

	"marketpulse/internal/core/canon"
	"marketpulse/internal/modkit/repokit"
	perr "marketpulse/internal/platform/errors"
	"marketpulse/internal/services/collector/domain"
)

// PG stores snapshots in the market_snapshots table:
//
//	CREATE TABLE market_snapshots (
//	    kind         text        NOT NULL,
//	    collected_on date        NOT NULL,
//	    collected_at timestamptz NOT NULL,
//	    payload      jsonb       NOT NULL,
//	    PRIMARY KEY (kind, collected_on)
//	);
//
// One row per kind per day, matching the filesystem layout's overwrite rule.
type PG struct {
	q repokit.Queryer
}

// NewPG returns a binder that attaches the repo to a queryer at wiring time
func NewPG() repokit.Binder[domain.SnapshotRepo] {
	return repokit.BindFunc[domain.SnapshotRepo](func(q repokit.Queryer) domain.SnapshotRepo {
		return &PG{q: q}
	})
}

// Save upserts the snapshot for its kind and collection day
func (p *PG) Save(ctx context.Context, s *canon.Snapshot) error {
	if s == nil {
		return perr.New(perr.ErrorCodeInvalidArgument, "nil snapshot")
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "marshal snapshot")
	}
	const q = `
		INSERT INTO market_snapshots (kind, collected_on, collected_at, payload)
		VALUES ($1, $2::date, $2, $3)
		ON CONFLICT (kind, collected_on)
		DO UPDATE SET collected_at = EXCLUDED.collected_at, payload = EXCLUDED.payload`
	if _, err := p.q.Exec(ctx, q, string(s.Kind), s.CollectedAt, payload); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "upsert snapshot")
	}
	return nil
}

// Latest returns the newest snapshot for kind, or (nil, nil) when none exists
func (p *PG) Latest(ctx context.Context, kind canon.EntityKind) (*canon.Snapshot, error) {
	return p.nth(ctx, kind, 0)
}

// Previous returns the snapshot before the newest, or (nil, nil)
func (p *PG) Previous(ctx context.Context, kind canon.EntityKind) (*canon.Snapshot, error) {
	return p.nth(ctx, kind, 1)
}

func (p *PG) nth(ctx context.Context, kind canon.EntityKind, n int) (*canon.Snapshot, error) {
	const q = `
		SELECT payload FROM market_snapshots
		WHERE kind = $1
		ORDER BY collected_on DESC
		OFFSET $2 LIMIT 1`
	rows, err := p.q.Query(ctx, q, string(kind), n)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "query snapshot")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var payload []byte
	if err := rows.Scan(&payload); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "scan snapshot")
	}
	var s canon.Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "decode snapshot payload")
	}
	return &s, nil
}
