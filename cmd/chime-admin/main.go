// chime-admin is a small operator CLI for the scheduler deployment.
//
//	chime-admin clear   clears in-memory alarms via the admin API
//	chime-admin reset   deletes every alarm row from the store
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"chime/internal/modkit/repokit"
	"chime/internal/platform/config"
	"chime/internal/platform/logger"
	"chime/internal/platform/store"
	"chime/internal/services/alarms/repo"
)

func main() {
	opt := logger.FromEnv()
	if opt.Service == "" {
		opt.Service = "chime-admin"
	}
	logger.Init(opt)
	log := logger.Get()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: chime-admin <clear|reset>")
		os.Exit(2)
	}

	cfg := config.New().Prefix("CHIME_")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "clear":
		if err := clear(ctx, cfg); err != nil {
			log.Fatal().Err(err).Msg("clear failed")
		}
		fmt.Println("in-memory alarms cleared")
	case "reset":
		n, err := reset(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("reset failed")
		}
		fmt.Printf("deleted %d alarm rows\n", n)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

// clear calls DELETE /jobs/clear on the scheduler admin API
func clear(ctx context.Context, cfg config.Conf) error {
	base := cfg.MayString("ADMIN_URL", "http://localhost:4000")
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, base+"/jobs/clear", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("admin api returned %d: %s", resp.StatusCode, body)
	}
	return nil
}

// reset wipes the alarms table directly
func reset(ctx context.Context, cfg config.Conf, log *logger.Logger) (int64, error) {
	st, err := store.Open(ctx, store.Config{
		AppName: "chime-admin",
		PG: store.PGConfig{
			Enabled:  true,
			URL:      cfg.MustString("PG_URL"),
			MaxConns: 2,
		},
	}, store.WithLogger(*log))
	if err != nil {
		return 0, err
	}
	defer func() { _ = st.Close(context.Background()) }()

	storage := repokit.MustBind(repo.NewPG(), st.PG)
	return storage.DeleteAll(ctx)
}
