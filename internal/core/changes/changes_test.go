package changes

import (
	"math"
	"testing"
	"time"

	"marketpulse/internal/core/canon"
)

func fp(v float64) *float64 { return &v }

func propSnap(entries map[string]*float64) *canon.Snapshot {
	s := &canon.Snapshot{Kind: canon.KindProperty, CollectedAt: time.Now()}
	// deterministic order for assertions
	for _, id := range []string{"P-1", "P-2", "P-3"} {
		if price, ok := entries[id]; ok {
			s.Properties = append(s.Properties, canon.Property{ID: id, Price: price})
		}
	}
	return s
}

func TestDetectAgainstSelfIsEmpty(t *testing.T) {
	s := propSnap(map[string]*float64{"P-1": fp(100), "P-2": fp(200)})
	if got := Detect(s, s, DefaultThresholds()); len(got) != 0 {
		t.Fatalf("self-comparison must be empty, got %+v", got)
	}
	// a zero threshold must not make an unchanged metric significant
	if got := Detect(s, s, Thresholds{}); len(got) != 0 {
		t.Fatalf("self-comparison under zero thresholds must be empty, got %+v", got)
	}
}

func TestDetectNilPreviousIsAllNew(t *testing.T) {
	s := propSnap(map[string]*float64{"P-1": fp(100), "P-2": fp(200)})
	got := Detect(s, nil, DefaultThresholds())
	if len(got) != 2 {
		t.Fatalf("want 2 new events, got %d", len(got))
	}
	for _, ev := range got {
		if ev.Kind != EventNew {
			t.Fatalf("want %s event, got %+v", EventNew, ev)
		}
	}
}

func TestDetectMetricChangeThreshold(t *testing.T) {
	prev := propSnap(map[string]*float64{"P-1": fp(100), "P-2": fp(100)})
	cur := propSnap(map[string]*float64{"P-1": fp(104), "P-2": fp(110)})

	got := Detect(cur, prev, Thresholds{MetricPct: 5, VolumePct: 10})
	if len(got) != 1 {
		t.Fatalf("want exactly one significant event, got %+v", got)
	}
	ev := got[0]
	if ev.EntityID != "P-2" || ev.Kind != EventMetricChange || ev.Metric != "price" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if math.Abs(ev.ChangePercent-10) > 1e-9 {
		t.Fatalf("want +10%%, got %v", ev.ChangePercent)
	}
}

func TestDetectNegativeMovement(t *testing.T) {
	prev := propSnap(map[string]*float64{"P-1": fp(200)})
	cur := propSnap(map[string]*float64{"P-1": fp(150)})

	got := Detect(cur, prev, DefaultThresholds())
	if len(got) != 1 {
		t.Fatalf("want 1 event, got %+v", got)
	}
	if got[0].ChangePercent != -25 {
		t.Fatalf("want -25%%, got %v", got[0].ChangePercent)
	}
}

func TestDetectZeroBaseIsUndefinedNotPanic(t *testing.T) {
	prev := propSnap(map[string]*float64{"P-1": fp(0)})
	cur := propSnap(map[string]*float64{"P-1": fp(50)})

	got := Detect(cur, prev, DefaultThresholds())
	if len(got) != 1 {
		t.Fatalf("want 1 event, got %+v", got)
	}
	ev := got[0]
	if !ev.UndefinedMagnitude {
		t.Fatalf("zero base must flag undefined magnitude: %+v", ev)
	}
	if ev.ChangePercent != 0 {
		t.Fatalf("undefined magnitude must not fabricate a percent: %+v", ev)
	}
	if math.IsInf(ev.ChangePercent, 0) || math.IsNaN(ev.ChangePercent) {
		t.Fatalf("non-finite percent leaked: %+v", ev)
	}
}

func TestDetectAbsentMetricAppearing(t *testing.T) {
	prev := propSnap(map[string]*float64{"P-1": nil})
	cur := propSnap(map[string]*float64{"P-1": fp(75)})

	got := Detect(cur, prev, DefaultThresholds())
	if len(got) != 1 || !got[0].UndefinedMagnitude {
		t.Fatalf("metric appearing from absence must be undefined-magnitude, got %+v", got)
	}
}

func TestDetectVolumeChange(t *testing.T) {
	mk := func(projects int) *canon.Snapshot {
		ps := make([]canon.Project, projects)
		for i := range ps {
			ps[i] = canon.Project{Name: "p"}
		}
		return &canon.Snapshot{
			Kind:       canon.KindDeveloper,
			Developers: []canon.DeveloperProfile{{Name: "Emaar", Projects: ps}},
		}
	}
	got := Detect(mk(12), mk(10), Thresholds{MetricPct: 5, VolumePct: 10})
	if len(got) != 1 {
		t.Fatalf("want 1 volume event, got %+v", got)
	}
	ev := got[0]
	if ev.Kind != EventVolumeChange || ev.Metric != "project_count" || ev.ChangePercent != 20 {
		t.Fatalf("unexpected event %+v", ev)
	}

	// below threshold: 10 -> 10 and 10 -> 10.9 equivalents stay quiet
	if got := Detect(mk(10), mk(10), DefaultThresholds()); len(got) != 0 {
		t.Fatalf("unchanged volume produced events: %+v", got)
	}
}

func TestDetectVolumeAbsoluteThreshold(t *testing.T) {
	mk := func(projects int) *canon.Snapshot {
		ps := make([]canon.Project, projects)
		for i := range ps {
			ps[i] = canon.Project{Name: "p"}
		}
		return &canon.Snapshot{
			Kind:       canon.KindDeveloper,
			Developers: []canon.DeveloperProfile{{Name: "Emaar", Projects: ps}},
		}
	}

	// 100 -> 107 is only +7%, below VolumePct, but 7 added projects clear
	// the absolute bar
	got := Detect(mk(107), mk(100), Thresholds{MetricPct: 5, VolumePct: 10, VolumeAbs: 5})
	if len(got) != 1 {
		t.Fatalf("want 1 absolute-delta event, got %+v", got)
	}
	ev := got[0]
	if ev.Kind != EventVolumeChange || ev.Metric != "project_count" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if math.Abs(ev.ChangePercent-7) > 1e-9 {
		t.Fatalf("want +7%%, got %v", ev.ChangePercent)
	}

	// below both bars stays quiet
	if got := Detect(mk(103), mk(100), Thresholds{MetricPct: 5, VolumePct: 10, VolumeAbs: 5}); len(got) != 0 {
		t.Fatalf("small move fired: %+v", got)
	}

	// VolumeAbs=0 disables the absolute trigger
	if got := Detect(mk(107), mk(100), Thresholds{MetricPct: 5, VolumePct: 10}); len(got) != 0 {
		t.Fatalf("disabled absolute trigger fired: %+v", got)
	}
}

func TestDetectNilCurrent(t *testing.T) {
	if got := Detect(nil, propSnap(nil), DefaultThresholds()); got != nil {
		t.Fatalf("nil current must yield nil, got %+v", got)
	}
}
