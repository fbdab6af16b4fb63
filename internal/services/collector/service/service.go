// Package service implements the collection cycle: fan out to sources,
// normalize, dedup, score and persist one immutable snapshot per kind.
package service

import (
	"context"
	"sync"
	"time"

	"marketpulse/internal/core/canon"
	"marketpulse/internal/core/scoring"
	perr "marketpulse/internal/platform/errors"
	"marketpulse/internal/platform/logger"
	"marketpulse/internal/platform/metrics"
	"marketpulse/internal/services/collector/domain"
)

// Service runs collection cycles. Sources are consulted concurrently but
// their records are merged in registration order, so dedup's first-seen rule
// is deterministic across runs.
type Service struct {
	sources []domain.Source
	norm    *canon.Normalizer
	scorer  scoring.Scorer
	repo    domain.SnapshotRepo
	log     logger.Logger
	now     func() time.Time
}

// New builds the collector service. Source order is authoritative: earlier
// sources win identity collisions.
func New(sources []domain.Source, repo domain.SnapshotRepo, scorer scoring.Scorer, log logger.Logger) *Service {
	l := log.With().Str("component", "collector").Logger()
	return &Service{
		sources: sources,
		norm:    canon.NewNormalizer(l),
		scorer:  scorer,
		repo:    repo,
		log:     l,
		now:     time.Now,
	}
}

// Collect runs one cycle for one entity kind
func (s *Service) Collect(ctx context.Context, kind canon.EntityKind) (domain.CollectResult, error) {
	started := s.now()
	log := logger.C(ctx).With().Str("kind", string(kind)).Logger()

	results := s.fanOut(ctx, kind)

	res := domain.CollectResult{Kind: kind, SourceErrors: map[string]string{}}
	var merged []canon.RawRecord
	var consulted, failed int
	for _, sr := range results {
		consulted++
		if sr.Err != nil {
			failed++
			res.SourceErrors[sr.Source] = sr.Err.Error()
			metrics.SourceFailures.WithLabelValues(sr.Source).Inc()
			log.Warn().Err(sr.Err).Str("source", sr.Source).Msg("source failed, continuing with the rest")
			continue
		}
		merged = append(merged, sr.Records...)
	}
	res.RawRecords = len(merged)

	if consulted == 0 {
		return res, perr.Newf(perr.ErrorCodeConfiguration, "no source serves kind %s", kind)
	}
	if failed == consulted {
		res.Outcome = domain.OutcomeFailed
		res.Duration = s.now().Sub(started)
		return res, perr.Newf(perr.ErrorCodeUnavailable, "all %d sources failed for kind %s", consulted, kind)
	}

	snap := s.norm.Snapshot(kind, started, merged)
	if kind == canon.KindDeveloper && s.scorer != nil {
		s.scorer.Score(snap.Developers)
	}

	res.Records = snap.Len()
	res.Snapshot = snap
	metrics.RecordsCollected.WithLabelValues(string(kind)).Add(float64(snap.Len()))
	metrics.RecordsDropped.WithLabelValues(string(kind)).Add(float64(len(merged) - snap.Len()))

	if err := s.repo.Save(ctx, snap); err != nil {
		return res, perr.Wrapf(err, perr.ErrorCodeDB, "persist %s snapshot", kind)
	}

	switch {
	case snap.Len() == 0:
		res.Outcome = domain.OutcomeEmpty
	case failed > 0:
		res.Outcome = domain.OutcomePartial
	default:
		res.Outcome = domain.OutcomeOK
	}
	res.Duration = s.now().Sub(started)

	log.Info().
		Str("outcome", string(res.Outcome)).
		Int("records", res.Records).
		Int("raw_records", res.RawRecords).
		Int("sources_failed", failed).
		Dur("duration", res.Duration).
		Msg("collection cycle finished")
	return res, nil
}

// CollectAll runs one cycle for every entity kind, in canonical order. A
// failed kind does not stop the rest; its result carries the failure.
func (s *Service) CollectAll(ctx context.Context) ([]domain.CollectResult, error) {
	var (
		out     []domain.CollectResult
		lastErr error
	)
	for _, kind := range canon.AllKinds() {
		res, err := s.Collect(ctx, kind)
		out = append(out, res)
		if err != nil {
			lastErr = err
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
	}
	return out, lastErr
}

// Latest returns the newest stored snapshot for kind
func (s *Service) Latest(ctx context.Context, kind canon.EntityKind) (*canon.Snapshot, error) {
	return s.repo.Latest(ctx, kind)
}

// Previous returns the snapshot before the newest for kind
func (s *Service) Previous(ctx context.Context, kind canon.EntityKind) (*canon.Snapshot, error) {
	return s.repo.Previous(ctx, kind)
}

// fanOut queries every source serving kind concurrently, returning results
// indexed by registration order
func (s *Service) fanOut(ctx context.Context, kind canon.EntityKind) []domain.SourceResult {
	type slot struct {
		idx int
		src domain.Source
	}
	var slots []slot
	for i, src := range s.sources {
		if src.Serves(kind) {
			slots = append(slots, slot{idx: i, src: src})
		}
	}

	results := make([]domain.SourceResult, len(slots))
	var wg sync.WaitGroup
	for i, sl := range slots {
		wg.Add(1)
		go func(i int, src domain.Source) {
			defer wg.Done()
			recs, err := src.Fetch(ctx, kind)
			results[i] = domain.SourceResult{Source: src.Name(), Records: recs, Err: err}
		}(i, sl.src)
	}
	wg.Wait()
	return results
}
