package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"marketpulse/internal/core/canon"
	"marketpulse/internal/core/changes"
	perr "marketpulse/internal/platform/errors"
	"marketpulse/internal/platform/testkit"
	cdom "marketpulse/internal/services/collector/domain"
	"marketpulse/internal/services/scheduler/domain"
	"marketpulse/internal/services/scheduler/plan"

	"github.com/rs/zerolog"
)

// fakeCollector serves canned snapshots and can hold a run open
type fakeCollector struct {
	collects atomic.Int64
	latest   atomic.Pointer[canon.Snapshot]
	next     atomic.Pointer[canon.Snapshot]
	block    chan struct{} // when non-nil, Collect waits on it
	fail     bool
	panics   bool
}

func (f *fakeCollector) Collect(ctx context.Context, kind canon.EntityKind) (cdom.CollectResult, error) {
	f.collects.Add(1)
	if f.panics {
		panic("collector exploded")
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return cdom.CollectResult{Kind: kind, Outcome: cdom.OutcomeFailed}, ctx.Err()
		}
	}
	if f.fail {
		return cdom.CollectResult{Kind: kind, Outcome: cdom.OutcomeFailed},
			perr.New(perr.ErrorCodeUnavailable, "sources down")
	}
	snap := f.next.Load()
	if snap == nil {
		snap = &canon.Snapshot{Kind: kind, CollectedAt: time.Now()}
	}
	f.latest.Store(snap)
	return cdom.CollectResult{Kind: kind, Outcome: cdom.OutcomeOK, Records: snap.Len(), Snapshot: snap}, nil
}

func (f *fakeCollector) CollectAll(ctx context.Context) ([]cdom.CollectResult, error) { return nil, nil }
func (f *fakeCollector) Latest(context.Context, canon.EntityKind) (*canon.Snapshot, error) {
	return f.latest.Load(), nil
}
func (f *fakeCollector) Previous(context.Context, canon.EntityKind) (*canon.Snapshot, error) {
	return nil, nil
}

type captureNotifier struct {
	events atomic.Int64
}

func (c *captureNotifier) Notify(_ context.Context, _ string, evs []changes.Event) error {
	c.events.Add(int64(len(evs)))
	return nil
}

func testPlan() plan.Plan {
	return plan.Plan{
		Location:   time.UTC,
		Thresholds: changes.DefaultThresholds(),
		Jobs: []domain.Job{
			// far-future cadence so only manual triggers run during the test
			{Name: "rentals", Kind: canon.KindRental, Cadence: domain.Every(time.Hour)},
		},
	}
}

func TestTriggerNowRunsJob(t *testing.T) {
	fc := &fakeCollector{}
	price := 100.0
	fc.next.Store(&canon.Snapshot{
		Kind:    canon.KindRental,
		Rentals: []canon.RentalListing{{ListingID: "L-1", RentAmount: &price}},
	})
	notif := &captureNotifier{}

	s := New(fc, notif, zerolog.Nop())
	s.Start(context.Background(), testPlan())
	defer s.Stop()

	if _, err := s.TriggerNow(context.Background(), "rentals"); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}
	testkit.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return fc.collects.Load() == 1
	})
	// no previous snapshot: the one listing is a "new" event
	testkit.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return notif.events.Load() == 1
	})
}

func TestTriggerNowCollapsesOverlap(t *testing.T) {
	fc := &fakeCollector{block: make(chan struct{})}
	s := New(fc, nil, zerolog.Nop())
	s.Start(context.Background(), testPlan())
	defer s.Stop()

	if _, err := s.TriggerNow(context.Background(), "rentals"); err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	testkit.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return fc.collects.Load() == 1
	})

	// second trigger while the first is blocked inside Collect
	st, err := s.TriggerNow(context.Background(), "rentals")
	if !perr.IsCode(err, perr.ErrorCodeConflict) {
		t.Fatalf("overlap must be a conflict, got %v", err)
	}
	if st.RunsSkipped != 1 {
		t.Fatalf("skip must be counted: %+v", st)
	}
	if fc.collects.Load() != 1 {
		t.Fatalf("collapsed trigger must not start a second collect, got %d", fc.collects.Load())
	}

	close(fc.block)
	testkit.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return !s.Status()[0].Running
	})

	// after the run finishes a new trigger goes through
	if _, err := s.TriggerNow(context.Background(), "rentals"); err != nil {
		t.Fatalf("post-run trigger: %v", err)
	}
}

func TestTriggerNowUnknownJob(t *testing.T) {
	s := New(&fakeCollector{}, nil, zerolog.Nop())
	s.Start(context.Background(), testPlan())
	defer s.Stop()

	_, err := s.TriggerNow(context.Background(), "nope")
	if !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestFailedRunReleasesGuardAndRecords(t *testing.T) {
	fc := &fakeCollector{fail: true}
	s := New(fc, nil, zerolog.Nop())
	s.Start(context.Background(), testPlan())
	defer s.Stop()

	if _, err := s.TriggerNow(context.Background(), "rentals"); err != nil {
		t.Fatal(err)
	}
	testkit.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		st := s.Status()[0]
		return !st.Running && st.LastError != ""
	})

	// the guard must be free again
	if _, err := s.TriggerNow(context.Background(), "rentals"); err != nil {
		t.Fatalf("guard not released after failure: %v", err)
	}
}

func TestPanickingRunIsContained(t *testing.T) {
	fc := &fakeCollector{panics: true}
	s := New(fc, nil, zerolog.Nop())
	s.Start(context.Background(), testPlan())
	defer s.Stop()

	if _, err := s.TriggerNow(context.Background(), "rentals"); err != nil {
		t.Fatal(err)
	}
	testkit.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		st := s.Status()[0]
		return !st.Running && st.LastError != ""
	})

	// the panic must not poison the guard or the scheduler
	if _, err := s.TriggerNow(context.Background(), "rentals"); err != nil {
		t.Fatalf("guard not released after panic: %v", err)
	}
}

func TestStopWaitsForManualRun(t *testing.T) {
	fc := &fakeCollector{block: make(chan struct{})}
	s := New(fc, nil, zerolog.Nop())
	s.Start(context.Background(), testPlan())

	if _, err := s.TriggerNow(context.Background(), "rentals"); err != nil {
		t.Fatal(err)
	}
	testkit.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return fc.collects.Load() == 1
	})

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while a manual run was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(fc.block)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the run finished")
	}
}

func TestStatusFollowsPlanOrder(t *testing.T) {
	p := testPlan()
	p.Jobs = append(p.Jobs, domain.Job{
		Name: "properties", Kind: canon.KindProperty, Cadence: domain.Every(time.Hour),
	})
	s := New(&fakeCollector{}, nil, zerolog.Nop())
	s.Start(context.Background(), p)
	defer s.Stop()

	sts := s.Status()
	if len(sts) != 2 || sts[0].Job != "rentals" || sts[1].Job != "properties" {
		t.Fatalf("status order: %+v", sts)
	}
	if sts[0].NextRun.IsZero() {
		t.Fatal("next run must be published")
	}
}

func TestApplyCarriesHistoryAcrossReload(t *testing.T) {
	fc := &fakeCollector{}
	s := New(fc, nil, zerolog.Nop())
	s.Start(context.Background(), testPlan())
	defer s.Stop()

	if _, err := s.TriggerNow(context.Background(), "rentals"); err != nil {
		t.Fatal(err)
	}
	testkit.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return s.Status()[0].RunsStarted == 1 && !s.Status()[0].Running
	})

	s.Apply(testPlan())
	if got := s.Status()[0].RunsStarted; got != 1 {
		t.Fatalf("reload must keep run history, got %d", got)
	}
}
