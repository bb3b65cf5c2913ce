// chime-scheduler runs the tick loop and the admin API
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
	alarmmod "chime/internal/services/alarms/module"
)

func main() {
	opt := logger.FromEnv()
	if opt.Service == "" {
		opt.Service = "chime-scheduler"
	}
	logger.Init(opt)
	log := logger.Get()

	cfg := config.New().Prefix("CHIME_")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Config{
		AppName: "chime-scheduler",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         cfg.MustString("PG_URL"),
			MinConns:    int32(cfg.MayInt("PG_MIN_CONNS", 5)),
			MaxConns:    int32(cfg.MayInt("PG_MAX_CONNS", 20)),
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

	mod := alarmmod.New(modkit.Deps{Log: *log, Cfg: cfg, PG: st.PG, Bus: b})

	if err := mod.Storage().EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema setup failed")
	}
	if loaded, err := mod.Scheduler().Reload(ctx); err != nil {
		log.Fatal().Err(err).Msg("initial reload failed")
	} else {
		log.Info().Int("loaded", loaded).Msg("alarms loaded from store")
	}
	if err := mod.Scheduler().Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("scheduler start failed")
	}

	srv := phttp.NewServer(cfg)
	r := srv.Router()
	r.Use(middleware.Defaults()...)
	r.Use(middleware.AccessLogZerolog(middleware.AccessLogOptions{Slow: 500 * time.Millisecond}))
	mod.MountRoutes(r)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	mod.Scheduler().Stop()

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	log.Info().Msg("scheduler exited")
}
