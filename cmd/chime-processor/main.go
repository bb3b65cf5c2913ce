// chime-processor consumes alarm events and emits email requests
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
	"chime/internal/platform/store"
	procmod "chime/internal/services/processor/module"
)

func main() {
	opt := logger.FromEnv()
	if opt.Service == "" {
		opt.Service = "chime-processor"
	}
	logger.Init(opt)
	log := logger.Get()

	cfg := config.New().Prefix("CHIME_")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Config{
		AppName: "chime-processor",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         cfg.MustString("PG_URL"),
			MinConns:    int32(cfg.MayInt("PG_MIN_CONNS", 2)),
			MaxConns:    int32(cfg.MayInt("PG_MAX_CONNS", 4)),
			LogSQL:      cfg.MayBool("PG_LOG_SQL", false),
			SlowQueryMs: cfg.MayInt("PG_SLOW_MS", 200),
		},
	}, store.WithLogger(*log))
	if err != nil {
		log.Fatal().Err(err).Msg("store open failed")
	}
	defer func() { _ = st.Close(context.Background()) }()

	b, err := bus.OpenRedis(ctx, bus.Config{
		Addr:     cfg.MayString("REDIS_ADDR", "localhost:6379"),
		Password: cfg.MayString("REDIS_PASSWORD", ""),
		DB:       cfg.MayInt("REDIS_DB", 0),
	}, *log)
	if err != nil {
		log.Fatal().Err(err).Msg("redis open failed")
	}
	defer func() { _ = b.Close() }()

	mod := procmod.New(modkit.Deps{Log: *log, Cfg: cfg, PG: st.PG, Bus: b})

	srv := phttp.NewServer(cfg.Prefix("PROC_"))
	r := srv.Router()
	r.Use(middleware.Defaults()...)
	r.Use(middleware.AccessLogZerolog(middleware.AccessLogOptions{Slow: 500 * time.Millisecond}))
	mod.MountRoutes(r)

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Run(ctx) }()
	go func() { errCh <- mod.Processor().Run(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("processor runtime failure")
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	log.Info().Msg("processor exited")
}
