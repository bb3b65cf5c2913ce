// chime-notifier consumes email requests and delivers notifications
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"chime/internal/modkit"
	"chime/internal/platform/bus"
	"chime/internal/platform/config"
	"chime/internal/platform/logger"
	phttp "chime/internal/platform/net/http"
	"chime/internal/platform/net/middleware"
	notifymod "chime/internal/services/notifier/module"
)

func main() {
	opt := logger.FromEnv()
	if opt.Service == "" {
		opt.Service = "chime-notifier"
	}
	logger.Init(opt)
	log := logger.Get()

	cfg := config.New().Prefix("CHIME_")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := bus.OpenRedis(ctx, bus.Config{
		Addr:     cfg.MayString("REDIS_ADDR", "localhost:6379"),
		Password: cfg.MayString("REDIS_PASSWORD", ""),
		DB:       cfg.MayInt("REDIS_DB", 0),
	}, *log)
	if err != nil {
		log.Fatal().Err(err).Msg("redis open failed")
	}
	defer func() { _ = b.Close() }()

	mod := notifymod.New(modkit.Deps{Log: *log, Cfg: cfg, Bus: b})

	srv := phttp.NewServer(cfg.Prefix("NOTIFY_"))
	r := srv.Router()
	r.Use(middleware.Defaults()...)
	r.Use(middleware.AccessLogZerolog(middleware.AccessLogOptions{Slow: 500 * time.Millisecond}))
	mod.MountRoutes(r)

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Run(ctx) }()
	go func() { errCh <- mod.Notifier().Run(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("notifier runtime failure")
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	log.Info().Msg("notifier exited")
}
