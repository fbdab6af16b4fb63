// Package module wires the scheduler: plan loading, hot reload and the job
// loops, fed by the collector module's port
package module

import (
	"context"

	"marketpulse/internal/modkit"
	"marketpulse/internal/modkit/module"
	phttp "marketpulse/internal/platform/net/http"
	cdom "marketpulse/internal/services/collector/domain"
	collectormod "marketpulse/internal/services/collector/module"
	"marketpulse/internal/services/scheduler/domain"
	"marketpulse/internal/services/scheduler/plan"
	"marketpulse/internal/services/scheduler/service"
)

// Name is the registry name of the scheduler module
const Name = "scheduler"

// Module owns the scheduler lifecycle
type Module struct {
	svc    *service.Service
	loader *plan.Loader
	stop   func()
}

// Ports is the bundle the registry exposes
type Ports struct {
	Scheduler domain.SchedulerPort
}

// New wires the scheduler against the registered collector. PLAN_PATH selects
// the plan file; without it the built-in default plan runs and hot reload is
// off.
func New(deps modkit.Deps) (*Module, error) {
	ports, ok := module.PortsAs[collectormod.Ports](collectormod.Name)
	if !ok {
		panic("scheduler module requires the collector module to be registered first")
	}
	return newWith(deps, ports.Collector)
}

func newWith(deps modkit.Deps, collector cdom.CollectorPort) (*Module, error) {
	svc := service.New(collector, service.NewLogNotifier(deps.Log), deps.Log)
	m := &Module{svc: svc}

	if path := deps.Cfg.MayString("PLAN_PATH", ""); path != "" {
		loader, err := plan.NewLoader(path, deps.Log)
		if err != nil {
			return nil, err
		}
		loader.OnChange(svc.Apply)
		m.loader = loader
	}

	module.Register(Name, m.Ports())
	return m, nil
}

// Start launches the job loops and, when a plan file is configured, the
// file watcher
func (m *Module) Start(ctx context.Context) error {
	p := plan.Default()
	if m.loader != nil {
		p = m.loader.Current()
	}
	m.svc.Start(ctx, p)

	if m.loader != nil {
		stop, err := m.loader.Watch()
		if err != nil {
			return err
		}
		m.stop = stop
	}
	return nil
}

// Shutdown stops the watcher and waits for the job loops
func (m *Module) Shutdown() {
	if m.stop != nil {
		m.stop()
	}
	m.svc.Stop()
}

// Name returns the module name
func (m *Module) Name() string { return Name }

// Ports returns the exported port bundle
func (m *Module) Ports() any { return Ports{Scheduler: m.svc} }

// MountRoutes is a no-op; the pipeline HTTP surface lives in the api module
func (m *Module) MountRoutes(phttp.Router) {}
