package cache

import (
	"context"
	"time"

	"marketpulse/internal/platform/store"
)

// PGKV is a KV over a single Postgres table, for deployments where several
// processes share one cache.
//
//	CREATE TABLE IF NOT EXISTS kv_cache (
//	  key        text PRIMARY KEY,
//	  value      bytea NOT NULL,
//	  expires_at timestamptz
//	)
//
// Rows past expires_at read as absent; Sweep deletes them.
type PGKV struct {
	q store.RowQuerier
}

// NewPGKV builds a PGKV over the given querier
func NewPGKV(q store.RowQuerier) *PGKV { return &PGKV{q: q} }

func (p *PGKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	rs, err := p.q.Query(ctx, `
		SELECT value
		  FROM kv_cache
		 WHERE key = $1
		   AND (expires_at IS NULL OR expires_at > now())`,
		key,
	)
	if err != nil {
		return nil, false, err
	}
	defer rs.Close()
	if !rs.Next() {
		return nil, false, rs.Err()
	}
	var v []byte
	if err := rs.Scan(&v); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (p *PGKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expires any
	if ttl > 0 {
		expires = time.Now().UTC().Add(ttl)
	}
	_, err := p.q.Exec(ctx, `
		INSERT INTO kv_cache (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		   SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, expires,
	)
	return err
}

func (p *PGKV) Del(ctx context.Context, key string) error {
	_, err := p.q.Exec(ctx, `DELETE FROM kv_cache WHERE key = $1`, key)
	return err
}

func (p *PGKV) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := p.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM kv_cache
			 WHERE key = $1
			   AND (expires_at IS NULL OR expires_at > now())
		)`,
		key,
	).Scan(&ok)
	return ok, err
}

// Sweep removes expired rows and returns how many went away
func (p *PGKV) Sweep(ctx context.Context) (int64, error) {
	ct, err := p.q.Exec(ctx, `DELETE FROM kv_cache WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
