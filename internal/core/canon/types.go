// Package canon holds the canonical record schemas the pipeline produces and
// the normalization rules that map heterogeneous raw source payloads onto them
package canon

import (
	"fmt"
	"time"
)

// EntityKind is a logical record category collected by the pipeline
type EntityKind string

const (
	KindProperty  EntityKind = "property"
	KindRental    EntityKind = "rental"
	KindDeveloper EntityKind = "developer"
	KindIndicator EntityKind = "indicator"
)

// AllKinds lists every entity kind in collection order
func AllKinds() []EntityKind {
	return []EntityKind{KindProperty, KindRental, KindDeveloper, KindIndicator}
}

// ParseKind validates a kind string from config or the HTTP surface
func ParseKind(s string) (EntityKind, error) {
	switch EntityKind(s) {
	case KindProperty, KindRental, KindDeveloper, KindIndicator:
		return EntityKind(s), nil
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// SourceKind tags which connector produced a raw record
type SourceKind string

const (
	SourceDLDAPI       SourceKind = "dld_api"
	SourcePortalScrape SourceKind = "portal_scrape"
)

// RawRecord is a source-tagged, semi-structured payload exactly as produced
// by a Source. Immutable once yielded; ownership transfers to the normalizer.
type RawRecord struct {
	Source SourceKind
	Fields map[string]any
}

// Property is a canonical sale/ownership record
type Property struct {
	ID        string     `json:"id"`
	Area      string     `json:"area,omitempty"`
	Type      string     `json:"type,omitempty"`
	Developer string     `json:"developer,omitempty"`
	Price     *float64   `json:"price,omitempty"`
	Bedrooms  *int       `json:"bedrooms,omitempty"`
	SizeSqFt  *float64   `json:"size_sqft,omitempty"`
	Source    SourceKind `json:"source,omitempty"`
}

// RentalListing is a canonical rental transaction or listing
type RentalListing struct {
	ListingID       string     `json:"listing_id"`
	Area            string     `json:"area,omitempty"`
	Bedrooms        *int       `json:"bedrooms,omitempty"`
	RentAmount      *float64   `json:"rent_amount,omitempty"`
	SizeSqFt        *float64   `json:"size_sqft,omitempty"`
	TransactionDate time.Time  `json:"transaction_date"`
	Source          SourceKind `json:"source,omitempty"`
}

// Project is one development attributed to a developer
type Project struct {
	Name        string     `json:"name"`
	Status      string     `json:"status,omitempty"`
	AnnouncedAt *time.Time `json:"announced_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DeveloperProfile aggregates a developer's portfolio and derived scores.
// Score fields are filled by the scoring seam, not by normalization.
type DeveloperProfile struct {
	Name              string     `json:"name"`
	Projects          []Project  `json:"projects,omitempty"`
	ActiveProjects    *int       `json:"active_projects,omitempty"`
	CompletionRatePct *float64   `json:"completion_rate_pct,omitempty"`
	OnTimePct         *float64   `json:"on_time_pct,omitempty"`
	ReputationScore   *float64   `json:"reputation_score,omitempty"`
	Source            SourceKind `json:"source,omitempty"`
}

// EconomicIndicator is one demographic or economic series point
type EconomicIndicator struct {
	Name   string     `json:"name"`
	Value  *float64   `json:"value,omitempty"`
	Unit   string     `json:"unit,omitempty"`
	Period string     `json:"period,omitempty"`
	Source SourceKind `json:"source,omitempty"`
}

// Snapshot is the complete set of canonical records for one entity kind as of
// one collection cycle. Immutable once written; exactly one of the record
// slices is populated, matching Kind.
type Snapshot struct {
	Kind        EntityKind          `json:"kind"`
	CollectedAt time.Time           `json:"collected_at"`
	Properties  []Property          `json:"properties,omitempty"`
	Rentals     []RentalListing     `json:"rentals,omitempty"`
	Developers  []DeveloperProfile  `json:"developers,omitempty"`
	Indicators  []EconomicIndicator `json:"indicators,omitempty"`
}

// Len returns the number of records in the snapshot
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	switch s.Kind {
	case KindProperty:
		return len(s.Properties)
	case KindRental:
		return len(s.Rentals)
	case KindDeveloper:
		return len(s.Developers)
	case KindIndicator:
		return len(s.Indicators)
	}
	return 0
}

// MetricRow is the change-detection view of one record: its identity plus the
// tracked continuous metrics and volume-style counts
type MetricRow struct {
	ID      string
	Metrics map[string]float64
	Volumes map[string]int
}

// MetricView projects the snapshot into rows the change detector compares.
// Absent metrics simply do not appear in the maps.
func (s *Snapshot) MetricView() []MetricRow {
	if s == nil {
		return nil
	}
	rows := make([]MetricRow, 0, s.Len())
	switch s.Kind {
	case KindProperty:
		for _, p := range s.Properties {
			m := map[string]float64{}
			putMetric(m, "price", p.Price)
			rows = append(rows, MetricRow{ID: p.ID, Metrics: m})
		}
	case KindRental:
		for _, r := range s.Rentals {
			m := map[string]float64{}
			putMetric(m, "rent_amount", r.RentAmount)
			rows = append(rows, MetricRow{ID: r.ListingID, Metrics: m})
		}
	case KindDeveloper:
		for _, d := range s.Developers {
			m := map[string]float64{}
			putMetric(m, "reputation_score", d.ReputationScore)
			putMetric(m, "completion_rate_pct", d.CompletionRatePct)
			rows = append(rows, MetricRow{
				ID:      d.Name,
				Metrics: m,
				Volumes: map[string]int{"project_count": len(d.Projects)},
			})
		}
	case KindIndicator:
		for _, in := range s.Indicators {
			m := map[string]float64{}
			putMetric(m, "value", in.Value)
			rows = append(rows, MetricRow{ID: in.Name, Metrics: m})
		}
	}
	return rows
}

func putMetric(m map[string]float64, name string, v *float64) {
	if v != nil {
		m[name] = *v
	}
}
