// Package repo provides the snapshot persistence backends: a filesystem
// layout of one JSON document per kind per day (the default), and a Postgres
// table for deployments that already run one.
package repo

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"marketpulse/internal/core/canon"
	perr "marketpulse/internal/platform/errors"
	"marketpulse/internal/services/collector/domain"
)

// FS stores snapshots as <dir>/<kind>/<yyyy-mm-dd>.json. A second run on the
// same day replaces that day's document. Files are human-inspectable on
// purpose; debugging a bad cycle starts with cat.
type FS struct {
	dir string
}

// NewFS builds the filesystem repo rooted at dir
func NewFS(dir string) *FS { return &FS{dir: dir} }

var _ domain.SnapshotRepo = (*FS)(nil)

// Save writes the snapshot atomically: full write to a temp file in the same
// directory, then rename. A crash mid-write never leaves a torn document.
func (f *FS) Save(_ context.Context, s *canon.Snapshot) error {
	if s == nil {
		return perr.New(perr.ErrorCodeInvalidArgument, "nil snapshot")
	}
	dir := filepath.Join(f.dir, string(s.Kind))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "create snapshot dir")
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "marshal snapshot")
	}

	final := filepath.Join(dir, s.CollectedAt.Format("2006-01-02")+".json")
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "create temp snapshot")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return perr.Wrap(err, perr.ErrorCodeDB, "write snapshot")
	}
	if err := tmp.Close(); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "flush snapshot")
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "publish snapshot")
	}
	return nil
}

// Latest returns the newest snapshot for kind, or (nil, nil) when none exists
func (f *FS) Latest(_ context.Context, kind canon.EntityKind) (*canon.Snapshot, error) {
	return f.nth(kind, 0)
}

// Previous returns the snapshot before the newest, or (nil, nil)
func (f *FS) Previous(_ context.Context, kind canon.EntityKind) (*canon.Snapshot, error) {
	return f.nth(kind, 1)
}

// nth returns the n-th newest snapshot. The yyyy-mm-dd naming makes
// lexical order chronological.
func (f *FS) nth(kind canon.EntityKind, n int) (*canon.Snapshot, error) {
	entries, err := os.ReadDir(filepath.Join(f.dir, string(kind)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "list snapshots")
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) <= n {
		return nil, nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	data, err := os.ReadFile(filepath.Join(f.dir, string(kind), names[n]))
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "read snapshot")
	}
	var s canon.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeDB, "decode snapshot %s", names[n])
	}
	return &s, nil
}
