package pg

import (
	"context"
	"testing"

	"chime/internal/platform/testkit"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestOpenBuildsPoolConfig(t *testing.T) {
	testkit.Serial(t)

	var captured *pgxpool.Config
	testkit.Swap(t, &newPool, func(_ context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
		captured = cfg
		return nil, nil
	})

	mutated := false
	p, err := Open(context.Background(),
		Config{URL: "postgres://u:p@localhost:5432/chime?sslmode=disable", MinConns: 3, MaxConns: 7, SlowMs: 150},
		nil,
		func(pc *pgxpool.Config) { mutated = true },
	)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if captured == nil {
		t.Fatal("pool constructor never called")
	}
	if captured.MinConns != 3 {
		t.Fatalf("MinConns = %d, want 3", captured.MinConns)
	}
	if captured.MaxConns != 7 {
		t.Fatalf("MaxConns = %d, want 7", captured.MaxConns)
	}
	if captured.ConnConfig.Database != "chime" {
		t.Fatalf("database = %q, want chime", captured.ConnConfig.Database)
	}
	if !mutated {
		t.Fatal("pool config mutator not applied")
	}
	if p.SlowMs != 150 {
		t.Fatalf("SlowMs = %d, want 150", p.SlowMs)
	}
}

func TestOpenRejectsBadURL(t *testing.T) {
	if _, err := Open(context.Background(), Config{URL: "::not-a-url::"}, nil, nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCloseNilSafe(t *testing.T) {
	var p *PG
	p.Close()
	(&PG{}).Close()
}
