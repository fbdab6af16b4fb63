package service

import (
	"context"

	"marketpulse/internal/core/changes"
	"marketpulse/internal/platform/logger"
)

// LogNotifier is the default sink: one structured line per event. Downstream
// consumers tail the log or scrape the change metrics.
type LogNotifier struct {
	log logger.Logger
}

// NewLogNotifier builds the default notifier
func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

// Notify writes each event as a structured log line. Never fails.
func (n *LogNotifier) Notify(_ context.Context, job string, events []changes.Event) error {
	for _, ev := range events {
		line := n.log.Info().
			Str("job", job).
			Str("entity_kind", string(ev.EntityKind)).
			Str("entity_id", ev.EntityID).
			Str("event", string(ev.Kind))
		if ev.Metric != "" {
			line = line.Str("metric", ev.Metric)
		}
		if ev.UndefinedMagnitude {
			line = line.Bool("undefined_magnitude", true)
		} else if ev.Kind != changes.EventNew {
			line = line.Float64("change_pct", ev.ChangePercent)
		}
		line.Msg("market change")
	}
	return nil
}
