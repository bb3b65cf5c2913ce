// Package module wires the notifier: sender selection, consumer, and routes
package module

import (
	"time"

	"chime/internal/modkit"
	"chime/internal/modkit/httpkit"
	notifyhttp "chime/internal/services/notifier/http"
	"chime/internal/services/notifier/service"
)

// Module bundles the notifier consumer with its operational endpoints
type Module struct {
	name     string
	prefix   string
	notifier *service.Notifier
	handlers *notifyhttp.Handlers
	built    modkit.Built
}

// New wires the notifier module from core deps. The NOTIFY_MODE key selects
// the sender: "sim" (default) or "smtp"
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	nc := deps.Cfg.Prefix("NOTIFY_")
	mode := nc.MayEnum("MODE", "sim", "sim", "smtp")

	var sender service.Sender
	switch mode {
	case "smtp":
		sender = service.NewSMTPSender(service.SMTPConfig{
			Host:     nc.MustString("SMTP_HOST"),
			Port:     nc.MayInt("SMTP_PORT", 587),
			From:     nc.MustString("SMTP_FROM"),
			Username: nc.MayString("SMTP_USER", ""),
			Password: nc.MayString("SMTP_PASS", ""),
			PoolSize: nc.MayInt("SMTP_POOL", 5),
		}, deps.Log)
	default:
		sender = service.NewSimSender(service.SimConfig{
			MinDelay:    nc.MayDuration("SIM_MIN_DELAY", 10*time.Millisecond),
			MaxDelay:    nc.MayDuration("SIM_MAX_DELAY", 50*time.Millisecond),
			FailureRate: 0.01,
		}, deps.Log)
	}

	n := service.New(sender, deps.Bus, deps.Log)

	var busPing notifyhttp.Probe
	if deps.Bus != nil {
		busPing = deps.Bus.Ping
	}

	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("notifier"),
		modkit.WithPrefix("/"),
	}, opts...)...)

	return &Module{
		name:     b.Name,
		prefix:   b.Prefix,
		notifier: n,
		handlers: notifyhttp.NewHandlers(n, busPing, mode),
		built:    b,
	}
}

// MountRoutes implements modkit.Module
func (m *Module) MountRoutes(r httpkit.Router) {
	httpkit.MountUnder(r, m.prefix, m.built.Mw, func(sub httpkit.Router) {
		notifyhttp.Register(sub, m.handlers)
	})
}

// Ports implements modkit.Module
func (m *Module) Ports() any { return m.notifier }

// Name implements modkit.Module
func (m *Module) Name() string { return m.name }

// Notifier exposes the consumer for lifecycle control from main
func (m *Module) Notifier() *service.Notifier { return m.notifier }
