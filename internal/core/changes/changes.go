// Package changes computes significant deltas between two snapshots of the
// same entity kind. Detection is pure: no clock, no IO, no logging.
package changes

import (
	"math"

	"marketpulse/internal/core/canon"
)

// EventKind classifies what moved between two snapshots
type EventKind string

const (
	EventNew          EventKind = "new"
	EventMetricChange EventKind = "metric-change"
	EventVolumeChange EventKind = "volume-change"
)

// Event is one detected change for one entity
type Event struct {
	EntityKind canon.EntityKind `json:"entity_kind"`
	EntityID   string           `json:"entity_id"`
	Kind       EventKind        `json:"kind"`
	Metric     string           `json:"metric,omitempty"`
	Previous   float64          `json:"previous,omitempty"`
	Current    float64          `json:"current,omitempty"`

	// ChangePercent is meaningless when UndefinedMagnitude is set: the metric
	// appeared from a zero or absent base, so no relative size exists
	ChangePercent      float64 `json:"change_percent,omitempty"`
	UndefinedMagnitude bool    `json:"undefined_magnitude,omitempty"`
}

// Thresholds holds the minimum movement that counts as significant for each
// event class. VolumeAbs fires a volume-change on an absolute delta even when
// the relative movement is below VolumePct; 0 disables the absolute trigger.
type Thresholds struct {
	MetricPct float64 `yaml:"metric_pct" json:"metric_pct"`
	VolumePct float64 `yaml:"volume_pct" json:"volume_pct"`
	VolumeAbs int     `yaml:"volume_abs" json:"volume_abs"`
}

// DefaultThresholds are used when the plan does not override them
func DefaultThresholds() Thresholds {
	return Thresholds{MetricPct: 5, VolumePct: 10, VolumeAbs: 5}
}

// Detect compares current against previous and returns the significant
// events in current's record order. A nil previous means everything in
// current is new. Detect(s, s) is always empty.
func Detect(current, previous *canon.Snapshot, th Thresholds) []Event {
	if current == nil {
		return nil
	}

	prev := map[string]canon.MetricRow{}
	if previous != nil {
		for _, row := range previous.MetricView() {
			prev[row.ID] = row
		}
	}

	var events []Event
	for _, row := range current.MetricView() {
		before, existed := prev[row.ID]
		if !existed {
			events = append(events, Event{
				EntityKind: current.Kind,
				EntityID:   row.ID,
				Kind:       EventNew,
			})
			continue
		}
		events = append(events, compareMetrics(current.Kind, row, before, th.MetricPct)...)
		events = append(events, compareVolumes(current.Kind, row, before, th)...)
	}
	return events
}

func compareMetrics(kind canon.EntityKind, cur, prev canon.MetricRow, thresholdPct float64) []Event {
	var events []Event
	for name, now := range cur.Metrics {
		before, had := prev.Metrics[name]
		ev, significant := classify(now, before, had, thresholdPct)
		if !significant {
			continue
		}
		ev.EntityKind = kind
		ev.EntityID = cur.ID
		ev.Kind = EventMetricChange
		ev.Metric = name
		events = append(events, ev)
	}
	return events
}

func compareVolumes(kind canon.EntityKind, cur, prev canon.MetricRow, th Thresholds) []Event {
	var events []Event
	for name, n := range cur.Volumes {
		before, had := prev.Volumes[name]
		ev, significant := classify(float64(n), float64(before), had, th.VolumePct)
		if !significant {
			// a relatively quiet move can still matter in absolute terms,
			// e.g. a large developer adding a handful of projects
			delta := n - before
			if delta < 0 {
				delta = -delta
			}
			if !had || th.VolumeAbs <= 0 || delta < th.VolumeAbs {
				continue
			}
			ev = Event{
				Previous:      float64(before),
				Current:       float64(n),
				ChangePercent: (float64(n) - float64(before)) / math.Abs(float64(before)) * 100,
			}
		}
		ev.EntityKind = kind
		ev.EntityID = cur.ID
		ev.Kind = EventVolumeChange
		ev.Metric = name
		events = append(events, ev)
	}
	return events
}

// classify decides whether a single metric movement is significant. A zero or
// absent base makes the relative magnitude undefined; any nonzero current
// value on such a base is always significant.
func classify(now, before float64, had bool, thresholdPct float64) (Event, bool) {
	if !had || before == 0 {
		if now == 0 {
			return Event{}, false
		}
		return Event{
			Previous:           before,
			Current:            now,
			UndefinedMagnitude: true,
		}, true
	}
	// an exact-zero delta is never significant, whatever the threshold says
	pct := (now - before) / math.Abs(before) * 100
	if pct == 0 || math.Abs(pct) < thresholdPct {
		return Event{}, false
	}
	return Event{Previous: before, Current: now, ChangePercent: pct}, true
}
