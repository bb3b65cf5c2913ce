// Package module wires the processor: alarms repo, consumer service, and routes
package module

import (
	"context"
	"time"

	"chime/internal/modkit"
	"chime/internal/modkit/httpkit"
	"chime/internal/modkit/repokit"
	"chime/internal/platform/config"
	"chime/internal/services/alarms/repo"
	prochttp "chime/internal/services/processor/http"
	"chime/internal/services/processor/service"
)

// Module bundles the processor consumer with its operational endpoints
type Module struct {
	name      string
	prefix    string
	processor *service.Processor
	handlers  *prochttp.Handlers
	built     modkit.Built
}

// New wires the processor module from core deps
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	storage := repokit.MustBind(repo.NewPG(), deps.PG)
	proc := service.New(storage, deps.Bus, deps.Log, FromConfig(deps.Cfg))

	var storePing, busPing prochttp.Probe
	if p, ok := deps.PG.(interface{ Ping(context.Context) error }); ok {
		storePing = p.Ping
	}
	if deps.Bus != nil {
		busPing = deps.Bus.Ping
	}

	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("processor"),
		modkit.WithPrefix("/"),
	}, opts...)...)

	return &Module{
		name:      b.Name,
		prefix:    b.Prefix,
		processor: proc,
		handlers:  prochttp.NewHandlers(proc, storePing, busPing),
		built:     b,
	}
}

// FromConfig reads processor tuning from the PROC_ config namespace
func FromConfig(cfg config.Conf) service.Config {
	pc := cfg.Prefix("PROC_")
	return service.Config{
		DescriptionTimeout: pc.MayDuration("DESC_TIMEOUT", 5*time.Second),
	}
}

// MountRoutes implements modkit.Module
func (m *Module) MountRoutes(r httpkit.Router) {
	httpkit.MountUnder(r, m.prefix, m.built.Mw, func(sub httpkit.Router) {
		prochttp.Register(sub, m.handlers)
	})
}

// Ports implements modkit.Module
func (m *Module) Ports() any { return m.processor }

// Name implements modkit.Module
func (m *Module) Name() string { return m.name }

// Processor exposes the consumer for lifecycle control from main
func (m *Module) Processor() *service.Processor { return m.processor }
