package canon

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"marketpulse/internal/platform/logger"
)

// dateLayouts are tried in order when coercing raw date strings
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// Normalizer coerces raw source payloads into canonical records. Records with
// no usable identity are dropped and logged rather than failing the batch.
type Normalizer struct {
	log logger.Logger
	now func() time.Time
}

// NewNormalizer builds a Normalizer with the process clock
func NewNormalizer(log logger.Logger) *Normalizer {
	return &Normalizer{log: log.With().Str("component", "canon").Logger(), now: time.Now}
}

// Properties normalizes a raw batch into canonical properties, in input order
func (n *Normalizer) Properties(raws []RawRecord) []Property {
	out := make([]Property, 0, len(raws))
	for _, raw := range raws {
		id := str(raw, "id", "property_id", "transaction_id")
		if id == "" {
			n.drop(raw, KindProperty, "missing identity")
			continue
		}
		out = append(out, Property{
			ID:        id,
			Area:      str(raw, "area", "area_name", "location"),
			Type:      strings.ToLower(str(raw, "type", "property_type", "property_sub_type")),
			Developer: str(raw, "developer", "developer_name"),
			Price:     num(raw, "price", "actual_worth", "amount"),
			Bedrooms:  bedrooms(str(raw, "bedrooms", "rooms", "rooms_en")),
			SizeSqFt:  num(raw, "size_sqft", "size", "procedure_area"),
			Source:    raw.Source,
		})
	}
	return out
}

// Rentals normalizes a raw batch into canonical rental listings
func (n *Normalizer) Rentals(raws []RawRecord) []RentalListing {
	out := make([]RentalListing, 0, len(raws))
	for _, raw := range raws {
		id := str(raw, "listing_id", "id", "contract_id")
		if id == "" {
			n.drop(raw, KindRental, "missing identity")
			continue
		}
		out = append(out, RentalListing{
			ListingID:       id,
			Area:            str(raw, "area", "area_name", "location"),
			Bedrooms:        bedrooms(str(raw, "bedrooms", "rooms")),
			RentAmount:      num(raw, "rent", "rent_amount", "annual_amount", "price"),
			SizeSqFt:        num(raw, "size_sqft", "size", "property_size"),
			TransactionDate: n.date(str(raw, "date", "transaction_date", "contract_start")),
			Source:          raw.Source,
		})
	}
	return out
}

// Developers normalizes a raw batch into developer profiles. Project lists
// arrive nested; anything that does not decode as a project list is ignored.
func (n *Normalizer) Developers(raws []RawRecord) []DeveloperProfile {
	out := make([]DeveloperProfile, 0, len(raws))
	for _, raw := range raws {
		name := str(raw, "name", "developer", "developer_name")
		if name == "" {
			n.drop(raw, KindDeveloper, "missing identity")
			continue
		}
		out = append(out, DeveloperProfile{
			Name:     name,
			Projects: n.projects(raw.Fields["projects"]),
			Source:   raw.Source,
		})
	}
	return out
}

// Indicators normalizes a raw batch into economic indicator points
func (n *Normalizer) Indicators(raws []RawRecord) []EconomicIndicator {
	out := make([]EconomicIndicator, 0, len(raws))
	for _, raw := range raws {
		name := str(raw, "name", "indicator", "indicator_name")
		if name == "" {
			n.drop(raw, KindIndicator, "missing identity")
			continue
		}
		out = append(out, EconomicIndicator{
			Name:   name,
			Value:  num(raw, "value"),
			Unit:   str(raw, "unit"),
			Period: str(raw, "period", "year"),
			Source: raw.Source,
		})
	}
	return out
}

// Snapshot normalizes and dedups a raw batch for kind, stamping collectedAt
func (n *Normalizer) Snapshot(kind EntityKind, collectedAt time.Time, raws []RawRecord) *Snapshot {
	s := &Snapshot{Kind: kind, CollectedAt: collectedAt}
	switch kind {
	case KindProperty:
		s.Properties = Dedup(n.Properties(raws), func(p Property) string { return p.ID })
	case KindRental:
		s.Rentals = Dedup(n.Rentals(raws), func(r RentalListing) string { return r.ListingID })
	case KindDeveloper:
		s.Developers = Dedup(n.Developers(raws), func(d DeveloperProfile) string { return d.Name })
	case KindIndicator:
		s.Indicators = Dedup(n.Indicators(raws), func(i EconomicIndicator) string { return i.Name })
	}
	return s
}

func (n *Normalizer) drop(raw RawRecord, kind EntityKind, reason string) {
	n.log.Warn().
		Str("kind", string(kind)).
		Str("source", string(raw.Source)).
		Str("reason", reason).
		Msg("record dropped during normalization")
}

// date coerces a raw date string, falling back to the normalization time when
// no layout matches. A zero date would break window queries downstream.
func (n *Normalizer) date(s string) time.Time {
	s = strings.TrimSpace(s)
	if s != "" {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return n.now()
}

// projects decodes a nested project list from a raw developer payload
func (n *Normalizer) projects(v any) []Project {
	if v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Project, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		name := anyString(m["name"])
		if name == "" {
			continue
		}
		p := Project{Name: name, Status: strings.ToLower(anyString(m["status"]))}
		if t := n.dateField(m, "announced_at", "start_date"); !t.IsZero() {
			p.AnnouncedAt = &t
		}
		if t := n.dateField(m, "completed_at", "completion_date"); !t.IsZero() {
			p.CompletedAt = &t
		}
		out = append(out, p)
	}
	return out
}

func (n *Normalizer) dateField(m map[string]any, keys ...string) time.Time {
	for _, k := range keys {
		s := strings.TrimSpace(anyString(m[k]))
		if s == "" {
			continue
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// str returns the first non-empty string field among keys
func str(raw RawRecord, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(anyString(raw.Fields[k])); s != "" {
			return s
		}
	}
	return ""
}

// num returns the first coercible numeric field among keys, or nil when every
// candidate is absent or garbage
func num(raw RawRecord, keys ...string) *float64 {
	for _, k := range keys {
		if f, ok := anyFloat(raw.Fields[k]); ok {
			return &f
		}
	}
	return nil
}

// bedrooms maps free-text bedroom counts: "studio" is 0, "N BR" and bare
// integers are N, anything else is absent
func bedrooms(s string) *int {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	if s == "studio" {
		zero := 0
		return &zero
	}
	for _, suffix := range []string{"bedrooms", "bedroom", "beds", "bed", "br", "b/r"} {
		s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

func anyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// anyFloat coerces numeric-ish values. Strings are stripped of currency
// symbols, commas and units before parsing; the decimal point survives.
// Canonical numerics are finite and non-negative, so a negative candidate
// is garbage for these fields, not a sign flip: it maps to absent.
func anyFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return canonNum(t)
	case int:
		return canonNum(float64(t))
	case int64:
		return canonNum(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return canonNum(f)
	case string:
		return parseLooseFloat(t)
	}
	return 0, false
}

func canonNum(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return f, true
}

func parseLooseFloat(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return canonNum(f)
}
