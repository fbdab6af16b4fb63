// Package module mounts the market API under /api/v1, resolving the
// collector and scheduler ports from the bootstrap registry
package module

import (
	"marketpulse/internal/modkit"
	"marketpulse/internal/modkit/module"
	phttp "marketpulse/internal/platform/net/http"
	mhttp "marketpulse/internal/services/api/market/http"
	cdom "marketpulse/internal/services/collector/domain"
	collectormod "marketpulse/internal/services/collector/module"
	sdom "marketpulse/internal/services/scheduler/domain"
	schedulermod "marketpulse/internal/services/scheduler/module"
)

// Name is the registry name of the market API module
const Name = "market-api"

// Module serves the read and trigger surface of the pipeline
type Module struct {
	collector cdom.CollectorPort
	scheduler sdom.SchedulerPort
}

// New resolves the ports this module consumes. Both producing modules must be
// registered before the API mounts.
func New(_ modkit.Deps) *Module {
	cports, ok := module.PortsAs[collectormod.Ports](collectormod.Name)
	if !ok {
		panic("market API requires the collector module to be registered first")
	}
	sports, ok := module.PortsAs[schedulermod.Ports](schedulermod.Name)
	if !ok {
		panic("market API requires the scheduler module to be registered first")
	}
	return NewWith(cports.Collector, sports.Scheduler)
}

// NewWith wires the module against explicit ports (used by tests)
func NewWith(collector cdom.CollectorPort, scheduler sdom.SchedulerPort) *Module {
	return &Module{collector: collector, scheduler: scheduler}
}

// Name returns the module name
func (m *Module) Name() string { return Name }

// Ports returns nothing; this module only consumes ports
func (m *Module) Ports() any { return nil }

// MountRoutes mounts the market routes under /api/v1
func (m *Module) MountRoutes(r phttp.Router) {
	r.Route("/api/v1", func(rr phttp.Router) {
		mhttp.Register(rr, m.collector, m.scheduler)
	})
}
