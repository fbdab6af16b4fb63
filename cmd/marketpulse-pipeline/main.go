// marketpulse-pipeline is the long-running daemon: scheduled collection,
// change detection and the HTTP surface (market API, health, metrics).
package main

import (
	"context"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketpulse/internal/core/version"
	"marketpulse/internal/modkit"
	"marketpulse/internal/platform/cache"
	"marketpulse/internal/platform/config"
	"marketpulse/internal/platform/logger"
	phttp "marketpulse/internal/platform/net/http"
	"marketpulse/internal/platform/net/middleware"
	"marketpulse/internal/platform/store"

	marketmod "marketpulse/internal/services/api/market/module"
	collectormod "marketpulse/internal/services/collector/module"
	schedulermod "marketpulse/internal/services/scheduler/module"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	root := config.New()
	l := logger.Get()
	l.Info().Any("build", version.Info("marketpulse-pipeline")).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// postgres is opt-in: only opened when a backend actually asks for it
	snapshotBackend := root.MayString("SNAPSHOT_BACKEND", "fs")
	cacheBackend := root.MayString("CACHE_BACKEND", "memory")

	var st *store.Store
	if snapshotBackend == "pg" || cacheBackend == "pg" {
		pgCfg := root.Prefix("SERVICE_PGSQL_")
		var err error
		st, err = store.Open(ctx, store.Config{
			PG: store.PGConfig{
				Enabled:     true,
				URL:         pgCfg.MustString("DBURL"),
				MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
				SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
				LogSQL:      pgCfg.MayBool("LOG_SQL", false),
			},
		}, store.WithLogger(*l))
		if err != nil {
			l.Panic().Err(err).Msg("store.Open failed")
		}
		defer func() {
			if err := st.Close(context.Background()); err != nil {
				l.Error().Err(err).Msg("failed to close store")
			}
		}()
	}

	var kv cache.KV = cache.NewMemory()
	if cacheBackend == "pg" {
		kv = cache.NewPGKV(st.PG)
	}

	deps := modkit.Deps{Log: *l, Cfg: root, Cache: cache.New(kv)}
	if st != nil {
		deps.PG = st.PG
	}

	if _, err := collectormod.New(deps); err != nil {
		l.Panic().Err(err).Msg("collector wiring failed")
	}

	scheduler, err := schedulermod.New(deps)
	if err != nil {
		l.Panic().Err(err).Msg("scheduler wiring failed")
	}

	srv := phttp.NewServer(root.Prefix("CORE_"))
	r := srv.Router()
	r.Use(
		chimw.RequestID,
		cors.Handler(cors.Options{
			AllowedOrigins: []string{root.MayString("CORE_CORS_ORIGIN", "*")},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}),
		middleware.RecoverJSON,
		middleware.AccessLogZerolog(middleware.AccessLogOptions{Slow: 2 * time.Second}),
	)
	marketmod.New(deps).MountRoutes(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w stdhttp.ResponseWriter, req *stdhttp.Request) {
		if st != nil {
			if err := st.Guard(req.Context()); err != nil {
				phttp.RespondError(w, req, err)
				return
			}
		}
		phttp.RespondOK(w, req, map[string]string{"status": "up"})
	})

	if err := scheduler.Start(ctx); err != nil {
		l.Panic().Err(err).Msg("scheduler start failed")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	select {
	case <-ctx.Done():
		l.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			l.Error().Err(err).Msg("http server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("http shutdown failed")
	}
	scheduler.Shutdown()
	l.Info().Msg("stopped")
}
