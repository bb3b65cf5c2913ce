//go:build integration_pg
// +build integration_pg

package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"chime/internal/modkit/repokit"
	perr "chime/internal/platform/errors"
	"chime/internal/platform/store"
	"chime/internal/services/alarms/domain"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) (dsn string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		cancel()
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres?sslmode=disable", host, mapped.Port())
	stop = func() {
		_ = c.Terminate(context.Background())
		cancel()
	}
	return dsn, stop
}

func openStorage(t *testing.T, ctx context.Context, dsn string) (Storage, func()) {
	t.Helper()
	st, err := store.Open(ctx, store.Config{
		AppName: "chime-repo-integration",
		PG:      store.PGConfig{Enabled: true, URL: dsn, MaxConns: 2},
	})
	if err != nil {
		t.Fatalf("store open: %v", err)
	}
	storage := repokit.MustBind(NewPG(), st.PG)
	if err := storage.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return storage, func() { _ = st.Close(context.Background()) }
}

func testAlarm(codeID, email, localTime string) domain.Alarm {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Alarm{
		CodeID: codeID, Email: email, LocalTime: localTime,
		UTCTime: "17:00:00", IsRecurring: true,
		DaysOfWeek: "Mon,Tue,Wed,Thu,Fri,Sat,Sun", Timezone: "UTC",
		CreatedAt: now, UpdatedAt: now,
	}
}

func TestAlarmCRUD_Integration(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	storage, closeStore := openStorage(t, ctx, dsn)
	defer closeStore()

	a := testAlarm("C-100", "a@b.com", "09:00")
	if err := storage.Insert(ctx, a); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// same PK triple collides
	err := storage.Insert(ctx, a)
	if !perr.IsCode(err, perr.ErrorCodeDuplicateKey) {
		t.Fatalf("duplicate insert err = %v, want duplicate key", err)
	}

	// different local time is a distinct alarm
	if err := storage.Insert(ctx, testAlarm("C-100", "a@b.com", "10:00")); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	if n, err := storage.Count(ctx); err != nil || n != 2 {
		t.Fatalf("count = (%d, %v), want 2", n, err)
	}

	a.UTCTime = "18:00:00"
	a.DaysOfWeek = "Mon,Fri"
	a.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	ok, err := storage.Update(ctx, a)
	if err != nil || !ok {
		t.Fatalf("update = (%v, %v)", ok, err)
	}

	rows, err := storage.SelectAll(ctx)
	if err != nil {
		t.Fatalf("select all: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].LocalTime != "09:00" || rows[0].UTCTime != "18:00:00" || rows[0].DaysOfWeek != "Mon,Fri" {
		t.Fatalf("updated row = %+v", rows[0])
	}

	page, err := storage.List(ctx, 1, 1)
	if err != nil || len(page) != 1 || page[0].LocalTime != "10:00" {
		t.Fatalf("list page = (%+v, %v)", page, err)
	}

	n, err := storage.Delete(ctx, "C-100", "a@b.com", "09:00")
	if err != nil || n != 1 {
		t.Fatalf("delete = (%d, %v)", n, err)
	}
	// deleting again affects nothing
	n, err = storage.Delete(ctx, "C-100", "a@b.com", "09:00")
	if err != nil || n != 0 {
		t.Fatalf("second delete = (%d, %v)", n, err)
	}

	wiped, err := storage.DeleteAll(ctx)
	if err != nil || wiped != 1 {
		t.Fatalf("delete all = (%d, %v)", wiped, err)
	}
}

func TestDescriptions_Integration(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	storage, closeStore := openStorage(t, ctx, dsn)
	defer closeStore()

	_, err := storage.GetDescription(ctx, "C-404")
	if !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("missing description err = %v, want not found", err)
	}

	if err := storage.UpsertDescription(ctx, "C-100", "Boiler pressure high"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := storage.UpsertDescription(ctx, "C-100", "Boiler pressure critical"); err != nil {
		t.Fatalf("upsert replace: %v", err)
	}

	desc, err := storage.GetDescription(ctx, "C-100")
	if err != nil || desc != "Boiler pressure critical" {
		t.Fatalf("get = (%q, %v)", desc, err)
	}

	all, err := storage.ListDescriptions(ctx)
	if err != nil || len(all) != 1 || all["C-100"] != "Boiler pressure critical" {
		t.Fatalf("list = (%v, %v)", all, err)
	}
}
