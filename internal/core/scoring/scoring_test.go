package scoring

import (
	"testing"
	"time"

	"marketpulse/internal/core/canon"
)

func TestScoreFillsDerivedFields(t *testing.T) {
	ann := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	done := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	profiles := []canon.DeveloperProfile{{
		Name: "Emaar",
		Projects: []canon.Project{
			{Name: "A", Status: "completed", AnnouncedAt: &ann, CompletedAt: &done},
			{Name: "B", Status: "active"},
			{Name: "C", Status: "cancelled"},
			{Name: "D", Status: "under construction"},
		},
	}}

	NewWeighted(DefaultConfig()).Score(profiles)

	d := profiles[0]
	if d.ActiveProjects == nil || *d.ActiveProjects != 2 {
		t.Fatalf("active projects: %+v", d.ActiveProjects)
	}
	if d.CompletionRatePct == nil || *d.CompletionRatePct != 25 {
		t.Fatalf("completion rate: %+v", d.CompletionRatePct)
	}
	if d.OnTimePct == nil || *d.OnTimePct != 100 {
		t.Fatalf("on-time pct: %+v", d.OnTimePct)
	}
	if d.ReputationScore == nil || *d.ReputationScore <= 0 || *d.ReputationScore > 100 {
		t.Fatalf("reputation score out of range: %+v", d.ReputationScore)
	}
}

func TestScoreEmptyPortfolioStaysAbsent(t *testing.T) {
	profiles := []canon.DeveloperProfile{{Name: "Unknown Dev"}}
	NewWeighted(DefaultConfig()).Score(profiles)
	d := profiles[0]
	if d.ReputationScore != nil || d.CompletionRatePct != nil || d.OnTimePct != nil {
		t.Fatalf("empty portfolio must not be scored: %+v", d)
	}
}

func TestScoreAssumedOnTimeWhenNothingCompleted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AssumeOnTimePct = 80

	profiles := []canon.DeveloperProfile{{
		Name:     "Fresh Dev",
		Projects: []canon.Project{{Name: "A", Status: "active"}},
	}}
	NewWeighted(cfg).Score(profiles)
	if got := profiles[0].OnTimePct; got == nil || *got != 80 {
		t.Fatalf("want configured assumption 80, got %+v", got)
	}
}
