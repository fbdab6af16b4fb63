// Package service runs the refresh jobs: one timer loop per job, overlap
// collapse, change detection against the previous snapshot and best-effort
// notification.
package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"marketpulse/internal/core/changes"
	perr "marketpulse/internal/platform/errors"
	"marketpulse/internal/platform/logger"
	"marketpulse/internal/platform/metrics"
	cdom "marketpulse/internal/services/collector/domain"
	"marketpulse/internal/services/scheduler/domain"
	"marketpulse/internal/services/scheduler/plan"

	"github.com/google/uuid"
)

// Service owns the job loops. Apply swaps the whole job set, which is how
// plan hot reloads take effect.
type Service struct {
	collector cdom.CollectorPort
	notifier  domain.Notifier
	log       logger.Logger
	now       func() time.Time

	// applyMu serializes Apply/Stop; mu guards the fields below and is never
	// held while waiting for loops, which need it to finish their runs
	applyMu   sync.Mutex
	mu        sync.Mutex
	parent    context.Context
	genCancel context.CancelFunc
	genWG     sync.WaitGroup
	jobs      map[string]*job
	order     []string
	th        changes.Thresholds
}

// job pairs a compiled spec with its run state. The running flag is the
// overlap guard: exactly one run per job at any moment.
type job struct {
	spec    domain.Job
	running atomic.Bool

	mu     sync.Mutex
	status domain.JobStatus
}

// New builds the scheduler. notifier may be nil; events are then only logged.
func New(collector cdom.CollectorPort, notifier domain.Notifier, log logger.Logger) *Service {
	return &Service{
		collector: collector,
		notifier:  notifier,
		log:       log.With().Str("component", "scheduler").Logger(),
		now:       time.Now,
		jobs:      map[string]*job{},
	}
}

// Start begins running p's jobs until ctx is cancelled
func (s *Service) Start(ctx context.Context, p plan.Plan) {
	s.mu.Lock()
	s.parent = ctx
	s.mu.Unlock()
	s.Apply(p)
}

// Apply replaces the active job set with p's. In-flight runs, manual ones
// included, finish under their own context before the loops are rebuilt.
func (s *Service) Apply(p plan.Plan) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	cancel := s.genCancel
	s.genCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		s.genWG.Wait()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parent == nil {
		s.parent = context.Background()
	}
	genCtx, cancel := context.WithCancel(s.parent)
	s.genCancel = cancel
	s.th = p.Thresholds

	// carry run history across reloads for jobs that keep their name
	prev := s.jobs
	s.jobs = map[string]*job{}
	s.order = s.order[:0]
	for _, spec := range p.Jobs {
		j := &job{spec: spec}
		if old, ok := prev[spec.Name]; ok {
			old.mu.Lock()
			j.status = old.status
			old.mu.Unlock()
		}
		j.status.Job = spec.Name
		j.status.Kind = string(spec.Kind)
		j.status.Schedule = spec.Cadence.String()
		s.jobs[spec.Name] = j
		s.order = append(s.order, spec.Name)

		s.genWG.Add(1)
		go s.loop(genCtx, j)
	}
	s.log.Info().Int("jobs", len(p.Jobs)).Msg("job plan applied")
}

// Stop cancels the job loops and waits for them
func (s *Service) Stop() {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	s.mu.Lock()
	cancel := s.genCancel
	s.genCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.genWG.Wait()
}

// TriggerNow starts job immediately. When a run is already in flight the
// trigger collapses: no second run, a warning, and a conflict error so the
// HTTP surface can say so.
func (s *Service) TriggerNow(ctx context.Context, name string) (domain.JobStatus, error) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	parent := s.parent
	s.mu.Unlock()
	if !ok {
		return domain.JobStatus{}, perr.Newf(perr.ErrorCodeNotFound, "unknown job %q", name)
	}

	if !j.running.CompareAndSwap(false, true) {
		metrics.RunsSkipped.WithLabelValues(name).Inc()
		j.mu.Lock()
		j.status.RunsSkipped++
		st := j.status
		j.mu.Unlock()
		s.log.Warn().Str("job", name).Msg("manual trigger collapsed, run already in flight")
		return st, perr.Newf(perr.ErrorCodeConflict, "job %q already running", name)
	}

	// detach from the HTTP request; the run outlives the 202 response but
	// not the scheduler, Stop waits for it
	if parent == nil {
		parent = context.Background()
	}
	s.genWG.Add(1)
	go func() {
		defer s.genWG.Done()
		s.run(parent, j)
	}()
	return s.snapshotStatus(j), nil
}

// Thresholds returns the active plan's change thresholds
func (s *Service) Thresholds() changes.Thresholds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.th
}

// Status reports every job in plan order
func (s *Service) Status() []domain.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.JobStatus, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.snapshotStatus(s.jobs[name]))
	}
	return out
}

func (s *Service) snapshotStatus(j *job) domain.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := j.status
	st.Running = j.running.Load()
	return st
}

// loop sleeps until the next cadence activation, runs, repeats
func (s *Service) loop(ctx context.Context, j *job) {
	defer s.genWG.Done()
	for {
		next := j.spec.Cadence.Next(s.now())
		j.mu.Lock()
		j.status.NextRun = next
		j.mu.Unlock()

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !j.running.CompareAndSwap(false, true) {
			// previous run (likely a manual trigger) still going
			metrics.RunsSkipped.WithLabelValues(j.spec.Name).Inc()
			j.mu.Lock()
			j.status.RunsSkipped++
			j.mu.Unlock()
			s.log.Warn().Str("job", j.spec.Name).Msg("scheduled run collapsed, run already in flight")
			continue
		}
		s.run(ctx, j)
	}
}

// run executes one cycle. The caller must have won the running flag; run
// releases it on every exit path, panics included.
func (s *Service) run(ctx context.Context, j *job) {
	defer j.running.Store(false)

	runID := uuid.NewString()
	ctx = logger.WithRun(ctx, j.spec.Name, runID)
	log := logger.C(ctx)
	started := s.now()

	metrics.RunsStarted.WithLabelValues(j.spec.Name).Inc()
	j.mu.Lock()
	j.status.RunsStarted++
	j.status.LastStarted = &started
	j.status.LastError = ""
	j.mu.Unlock()

	defer func() {
		metrics.RunDuration.WithLabelValues(j.spec.Name).Observe(s.now().Sub(started).Seconds())
		if r := recover(); r != nil {
			err := perr.PanicErrf("job %s panicked: %v", j.spec.Name, r)
			metrics.RunsFailed.WithLabelValues(j.spec.Name).Inc()
			log.Error().Err(err).Msg("run panicked")
			j.mu.Lock()
			j.status.LastOutcome = string(cdom.OutcomeFailed)
			j.status.LastError = err.Error()
			j.mu.Unlock()
		}
	}()

	log.Info().Str("kind", string(j.spec.Kind)).Msg("run started")

	// the previous snapshot is read before collection makes a new latest
	previous, err := s.collector.Latest(ctx, j.spec.Kind)
	if err != nil {
		log.Warn().Err(err).Msg("previous snapshot unavailable, everything will look new")
		previous = nil
	}

	res, err := s.collector.Collect(ctx, j.spec.Kind)
	if err != nil {
		metrics.RunsFailed.WithLabelValues(j.spec.Name).Inc()
		log.Error().Err(err).Msg("run failed")
		j.mu.Lock()
		j.status.LastOutcome = string(res.Outcome)
		j.status.LastError = err.Error()
		j.mu.Unlock()
		return
	}

	s.mu.Lock()
	th := s.th
	s.mu.Unlock()
	events := changes.Detect(res.Snapshot, previous, th)
	for _, ev := range events {
		metrics.ChangeEvents.WithLabelValues(string(ev.EntityKind), string(ev.Kind)).Inc()
	}
	s.notify(ctx, j.spec.Name, events)

	j.mu.Lock()
	j.status.LastOutcome = string(res.Outcome)
	j.status.LastRecords = res.Records
	j.status.LastEvents = len(events)
	j.mu.Unlock()

	log.Info().
		Str("outcome", string(res.Outcome)).
		Int("records", res.Records).
		Int("events", len(events)).
		Dur("duration", s.now().Sub(started)).
		Msg("run finished")
}

func (s *Service) notify(ctx context.Context, jobName string, events []changes.Event) {
	if len(events) == 0 || s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, jobName, events); err != nil {
		logger.C(ctx).Warn().Err(err).Int("events", len(events)).Msg("notification delivery failed")
	}
}
