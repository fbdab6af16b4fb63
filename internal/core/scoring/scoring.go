// Package scoring derives developer reputation metrics from normalized
// profiles. The Scorer seam keeps the weighting model swappable.
package scoring

import (
	"strings"

	"marketpulse/internal/core/canon"
)

// Scorer fills the derived score fields of developer profiles in place
type Scorer interface {
	Score(profiles []canon.DeveloperProfile)
}

// Config tunes the default model
type Config struct {
	// AssumeOnTimePct is the on-time delivery percentage credited to a
	// completed project whose dates cannot prove lateness
	AssumeOnTimePct float64 `yaml:"assume_on_time_pct"`

	CompletionWeight float64 `yaml:"completion_weight"`
	OnTimeWeight     float64 `yaml:"on_time_weight"`
	VolumeWeight     float64 `yaml:"volume_weight"`
}

// DefaultConfig gives every project the benefit of the doubt on timing
func DefaultConfig() Config {
	return Config{
		AssumeOnTimePct:  100,
		CompletionWeight: 0.5,
		OnTimeWeight:     0.3,
		VolumeWeight:     0.2,
	}
}

// Weighted is the default Scorer: a weighted blend of completion rate,
// on-time delivery and portfolio volume, scaled 0..100
type Weighted struct {
	cfg Config
}

// NewWeighted builds the default scorer
func NewWeighted(cfg Config) *Weighted {
	if cfg.CompletionWeight+cfg.OnTimeWeight+cfg.VolumeWeight == 0 {
		cfg = DefaultConfig()
	}
	return &Weighted{cfg: cfg}
}

// volumeCeiling is the portfolio size that earns full volume credit
const volumeCeiling = 20

// Score computes ActiveProjects, CompletionRatePct, OnTimePct and
// ReputationScore for each profile. Profiles without projects keep their
// score fields absent rather than scoring zero.
func (w *Weighted) Score(profiles []canon.DeveloperProfile) {
	for i := range profiles {
		w.scoreOne(&profiles[i])
	}
}

func (w *Weighted) scoreOne(d *canon.DeveloperProfile) {
	total := len(d.Projects)
	if total == 0 {
		return
	}

	var active, completed, onTime int
	for _, p := range d.Projects {
		switch strings.ToLower(p.Status) {
		case "completed", "finished", "delivered":
			completed++
			if p.CompletedAt != nil && p.AnnouncedAt != nil && p.CompletedAt.Before(*p.AnnouncedAt) {
				// impossible dates, count as not on time
				continue
			}
			onTime++
		case "cancelled", "canceled", "on_hold":
			// neither active nor completed
		default:
			active++
		}
	}

	d.ActiveProjects = &active

	completionPct := float64(completed) / float64(total) * 100
	d.CompletionRatePct = &completionPct

	onTimePct := w.cfg.AssumeOnTimePct
	if completed > 0 {
		onTimePct = float64(onTime) / float64(completed) * 100
	}
	d.OnTimePct = &onTimePct

	volumePct := float64(total) / volumeCeiling * 100
	if volumePct > 100 {
		volumePct = 100
	}

	score := w.cfg.CompletionWeight*completionPct +
		w.cfg.OnTimeWeight*onTimePct +
		w.cfg.VolumeWeight*volumePct
	d.ReputationScore = &score
}
