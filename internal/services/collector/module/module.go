// Package module wires the collector service from config: sources, snapshot
// backend and scoring model
package module

import (
	"marketpulse/internal/adapters/scrape/portal"
	"marketpulse/internal/adapters/upstream/dldclient"
	"marketpulse/internal/core/scoring"
	"marketpulse/internal/modkit"
	"marketpulse/internal/modkit/module"
	"marketpulse/internal/modkit/repokit"
	phttp "marketpulse/internal/platform/net/http"
	"marketpulse/internal/services/collector/domain"
	"marketpulse/internal/services/collector/repo"
	"marketpulse/internal/services/collector/service"
)

// Name is the registry name other modules look the collector up under
const Name = "collector"

// Module owns the collector service wiring
type Module struct {
	svc *service.Service
}

// Ports is the bundle the registry exposes
type Ports struct {
	Collector domain.CollectorPort
}

// New wires the collector: the API gateway always participates, the portal
// scraper joins when PORTAL_ENABLED is set, and snapshots land on the
// filesystem unless SNAPSHOT_BACKEND selects postgres.
func New(deps modkit.Deps) (*Module, error) {
	client, err := dldclient.New(dldclient.ConfigFromEnv(deps.Cfg), deps.Log)
	if err != nil {
		return nil, err
	}
	gw := dldclient.NewGateway(client, deps.Cache)

	// registration order decides identity collisions: the registry API is the
	// system of record, the portal only supplements it
	sources := []domain.Source{service.NewAPISource(gw)}
	if deps.Cfg.MayBool("PORTAL_ENABLED", false) {
		scraper := portal.New(portal.ConfigFromEnv(deps.Cfg), deps.Log)
		sources = append(sources, service.NewScrapeSource(scraper))
	}

	var snapshots domain.SnapshotRepo
	switch deps.Cfg.MayString("SNAPSHOT_BACKEND", "fs") {
	case "pg":
		snapshots = repokit.MustBind(repo.NewPG(), deps.PG)
	default:
		snapshots = repo.NewFS(deps.Cfg.MayString("SNAPSHOT_DIR", "data/snapshots"))
	}

	scfg := scoring.DefaultConfig()
	scfg.AssumeOnTimePct = deps.Cfg.MayFloat64("SCORING_ASSUME_ON_TIME_PCT", scfg.AssumeOnTimePct)

	m := &Module{svc: service.New(sources, snapshots, scoring.NewWeighted(scfg), deps.Log)}
	module.Register(Name, m.Ports())
	return m, nil
}

// Name returns the module name
func (m *Module) Name() string { return Name }

// Ports returns the exported port bundle
func (m *Module) Ports() any { return Ports{Collector: m.svc} }

// MountRoutes is a no-op; the collector has no HTTP surface of its own
func (m *Module) MountRoutes(phttp.Router) {}
