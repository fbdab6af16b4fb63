// marketpulse-collect runs one collection cycle and exits. Useful for
// backfills, smoke tests and cron-style deployments that do not want the
// resident scheduler.
package main

import (
	"context"
	"flag"
	"os"

	"marketpulse/internal/core/canon"
	"marketpulse/internal/core/changes"
	"marketpulse/internal/modkit"
	"marketpulse/internal/modkit/module"
	"marketpulse/internal/platform/cache"
	"marketpulse/internal/platform/config"
	"marketpulse/internal/platform/logger"

	collectormod "marketpulse/internal/services/collector/module"
)

func mustSetEnv(key, val string) {
	if val != "" {
		_ = os.Setenv(key, val)
	}
}

func main() {
	var (
		fKind    = flag.String("kind", "", "collect a single kind: property | rental | developer | indicator (default: all)")
		fDir     = flag.String("snapshot-dir", "", "override SNAPSHOT_DIR")
		fPortal  = flag.Bool("portal", false, "also scrape the portal source")
		fChanges = flag.Bool("changes", true, "print detected changes against the previous snapshot")
	)
	flag.Parse()

	mustSetEnv("SNAPSHOT_DIR", *fDir)
	if *fPortal {
		mustSetEnv("PORTAL_ENABLED", "true")
	}

	root := config.New()
	l := logger.Get()
	ctx := context.Background()

	deps := modkit.Deps{Log: *l, Cfg: root, Cache: cache.New(cache.NewMemory())}
	cm, err := collectormod.New(deps)
	if err != nil {
		l.Fatal().Err(err).Msg("collector wiring failed")
	}
	collector := module.MustPortsOf[collectormod.Ports](cm).Collector

	kinds := canon.AllKinds()
	if *fKind != "" {
		kind, err := canon.ParseKind(*fKind)
		if err != nil {
			l.Fatal().Err(err).Msg("bad -kind")
		}
		kinds = []canon.EntityKind{kind}
	}

	failed := false
	for _, kind := range kinds {
		previous, err := collector.Latest(ctx, kind)
		if err != nil {
			l.Warn().Err(err).Str("kind", string(kind)).Msg("previous snapshot unavailable")
		}

		res, err := collector.Collect(ctx, kind)
		if err != nil {
			l.Error().Err(err).Str("kind", string(kind)).Msg("collection failed")
			failed = true
			continue
		}
		l.Info().
			Str("kind", string(kind)).
			Str("outcome", string(res.Outcome)).
			Int("records", res.Records).
			Msg("collected")

		if *fChanges {
			for _, ev := range changes.Detect(res.Snapshot, previous, changes.DefaultThresholds()) {
				line := l.Info().
					Str("entity_id", ev.EntityID).
					Str("event", string(ev.Kind))
				if ev.Metric != "" {
					line = line.Str("metric", ev.Metric)
				}
				if !ev.UndefinedMagnitude && ev.Kind != changes.EventNew {
					line = line.Float64("change_pct", ev.ChangePercent)
				}
				line.Msg("change")
			}
		}
	}
	if failed {
		os.Exit(1)
	}
}
