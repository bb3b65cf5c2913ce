// Package module wires the alarms scheduler: repo, service, and admin routes
package module

import (
	"context"

	"chime/internal/modkit"
	"chime/internal/modkit/httpkit"
	"chime/internal/modkit/repokit"
	alarmhttp "chime/internal/services/alarms/http"
	"chime/internal/services/alarms/repo"
	"chime/internal/services/alarms/service"
)

// Module bundles the scheduler service with its admin HTTP surface
type Module struct {
	name      string
	prefix    string
	handlers  *alarmhttp.Handlers
	scheduler *service.Scheduler
	storage   repo.Storage
	deps      modkit.Deps
	built     modkit.Built
}

// New wires the scheduler module from core deps
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	storage := repokit.MustBind(repo.NewPG(), deps.PG)
	sched := service.New(storage, deps.Bus, deps.Log, FromConfig(deps.Cfg))

	var storePing, busPing alarmhttp.Probe
	if p, ok := deps.PG.(interface{ Ping(context.Context) error }); ok {
		storePing = p.Ping
	}
	if deps.Bus != nil {
		busPing = deps.Bus.Ping
	}
	handlers := alarmhttp.NewHandlers(sched, storePing, busPing)

	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("alarms"),
		modkit.WithPrefix("/"),
	}, opts...)...)

	return &Module{
		name:      b.Name,
		prefix:    b.Prefix,
		handlers:  handlers,
		scheduler: sched,
		storage:   storage,
		deps:      deps,
		built:     b,
	}
}

// MountRoutes implements modkit.Module
func (m *Module) MountRoutes(r httpkit.Router) {
	httpkit.MountUnder(r, m.prefix, m.built.Mw, func(sub httpkit.Router) {
		alarmhttp.Register(sub, m.handlers)
	})
}

// Ports implements modkit.Module, exposing the scheduler port for cross wiring
func (m *Module) Ports() any { return m.scheduler }

// Name implements modkit.Module
func (m *Module) Name() string { return m.name }

// Scheduler exposes the service for lifecycle control from main
func (m *Module) Scheduler() *service.Scheduler { return m.scheduler }

// Storage exposes the repo for schema setup from main
func (m *Module) Storage() repo.Storage { return m.storage }
