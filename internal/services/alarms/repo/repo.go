// Package repo provides the alarms repository implementation
package repo

import (
	"context"
	stderrs "errors"

	"chime/internal/modkit/repokit"
	perr "chime/internal/platform/errors"
	"chime/internal/services/alarms/domain"

	"github.com/jackc/pgx/v5"
)

type (
	pg     struct{ q repokit.Queryer }
	binder struct{}
)

// NewPG constructs a new repo binder for Postgres
func NewPG() repokit.Binder[Storage] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) Storage { return &pg{q: q} }

// Storage defines the alarms repository
type Storage interface {
	EnsureSchema(ctx context.Context) error

	Insert(ctx context.Context, a domain.Alarm) error
	Update(ctx context.Context, a domain.Alarm) (bool, error)
	Delete(ctx context.Context, codeID, email, localTime string) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
	SelectAll(ctx context.Context) ([]domain.Alarm, error)
	List(ctx context.Context, limit, offset int) ([]domain.Alarm, error)
	Count(ctx context.Context) (int64, error)

	GetDescription(ctx context.Context, codeID string) (string, error)
	UpsertDescription(ctx context.Context, codeID, description string) error
	ListDescriptions(ctx context.Context) (map[string]string, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS alarms (
	code_id      TEXT NOT NULL,
	email        TEXT NOT NULL,
	time         TEXT NOT NULL,
	utc_time     TEXT NOT NULL,
	is_recurring BOOLEAN NOT NULL DEFAULT TRUE,
	days_of_week TEXT NOT NULL,
	timezone     TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (code_id, email, time)
);
CREATE TABLE IF NOT EXISTS code_descriptions (
	code_id     TEXT PRIMARY KEY,
	description TEXT NOT NULL
);`

// EnsureSchema creates the tables when they do not exist yet
func (s *pg) EnsureSchema(ctx context.Context) error {
	_, err := s.q.Exec(ctx, schemaSQL)
	return perr.FromPostgres(err, "ensure schema")
}

const alarmColumns = `code_id, email, time, utc_time, is_recurring, days_of_week, timezone, created_at, updated_at`

// Insert adds a new alarm row; a PK collision maps to ErrorCodeDuplicateKey
func (s *pg) Insert(ctx context.Context, a domain.Alarm) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO alarms (`+alarmColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.CodeID, a.Email, a.LocalTime, a.UTCTime, a.IsRecurring,
		a.DaysOfWeek, a.Timezone, a.CreatedAt, a.UpdatedAt,
	)
	return perr.FromPostgres(err, "insert alarm")
}

// Update rewrites the mutable fields of an alarm identified by its PK.
// Returns false when no row matched
func (s *pg) Update(ctx context.Context, a domain.Alarm) (bool, error) {
	ct, err := s.q.Exec(ctx, `
		UPDATE alarms
		SET utc_time = $4, is_recurring = $5, days_of_week = $6, timezone = $7, updated_at = $8
		WHERE code_id = $1 AND email = $2 AND time = $3`,
		a.CodeID, a.Email, a.LocalTime, a.UTCTime, a.IsRecurring,
		a.DaysOfWeek, a.Timezone, a.UpdatedAt,
	)
	if err != nil {
		return false, perr.FromPostgres(err, "update alarm")
	}
	return ct.RowsAffected() > 0, nil
}

// Delete removes an alarm row and reports the affected count
func (s *pg) Delete(ctx context.Context, codeID, email, localTime string) (int64, error) {
	ct, err := s.q.Exec(ctx, `
		DELETE FROM alarms WHERE code_id = $1 AND email = $2 AND time = $3`,
		codeID, email, localTime,
	)
	if err != nil {
		return 0, perr.FromPostgres(err, "delete alarm")
	}
	return ct.RowsAffected(), nil
}

// DeleteAll truncates the alarms table (operator reset)
func (s *pg) DeleteAll(ctx context.Context) (int64, error) {
	ct, err := s.q.Exec(ctx, `DELETE FROM alarms`)
	if err != nil {
		return 0, perr.FromPostgres(err, "delete all alarms")
	}
	return ct.RowsAffected(), nil
}

// SelectAll returns every alarm row, used by Reload
func (s *pg) SelectAll(ctx context.Context) ([]domain.Alarm, error) {
	return s.scanAlarms(ctx, `
		SELECT `+alarmColumns+` FROM alarms
		ORDER BY code_id, email, time`)
}

// List returns a stable page ordered by the primary key
func (s *pg) List(ctx context.Context, limit, offset int) ([]domain.Alarm, error) {
	return s.scanAlarms(ctx, `
		SELECT `+alarmColumns+` FROM alarms
		ORDER BY code_id, email, time
		LIMIT $1 OFFSET $2`, limit, offset)
}

// Count returns the number of alarm rows
func (s *pg) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM alarms`).Scan(&n)
	if err != nil {
		return 0, perr.FromPostgres(err, "count alarms")
	}
	return n, nil
}

func (s *pg) scanAlarms(ctx context.Context, sql string, args ...any) ([]domain.Alarm, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, perr.FromPostgres(err, "select alarms")
	}
	defer rows.Close()

	var out []domain.Alarm
	for rows.Next() {
		var a domain.Alarm
		if err := rows.Scan(
			&a.CodeID, &a.Email, &a.LocalTime, &a.UTCTime, &a.IsRecurring,
			&a.DaysOfWeek, &a.Timezone, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, perr.FromPostgres(err, "scan alarm")
		}
		out = append(out, a)
	}
	return out, perr.FromPostgres(rows.Err(), "iterate alarms")
}

// GetDescription returns the human description for a code id.
// Missing code ids map to ErrorCodeNotFound
func (s *pg) GetDescription(ctx context.Context, codeID string) (string, error) {
	var d string
	err := s.q.QueryRow(ctx, `
		SELECT description FROM code_descriptions WHERE code_id = $1`, codeID,
	).Scan(&d)
	if err != nil {
		if stderrs.Is(err, pgx.ErrNoRows) {
			return "", perr.NotFoundf("code description %q", codeID)
		}
		return "", perr.FromPostgres(err, "get description")
	}
	return d, nil
}

// UpsertDescription inserts or replaces the description for a code id
func (s *pg) UpsertDescription(ctx context.Context, codeID, description string) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO code_descriptions (code_id, description)
		VALUES ($1, $2)
		ON CONFLICT (code_id) DO UPDATE SET description = EXCLUDED.description`,
		codeID, description,
	)
	return perr.FromPostgres(err, "upsert description")
}

// ListDescriptions returns every code description
func (s *pg) ListDescriptions(ctx context.Context) (map[string]string, error) {
	rows, err := s.q.Query(ctx, `SELECT code_id, description FROM code_descriptions ORDER BY code_id`)
	if err != nil {
		return nil, perr.FromPostgres(err, "list descriptions")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, d string
		if err := rows.Scan(&id, &d); err != nil {
			return nil, perr.FromPostgres(err, "scan description")
		}
		out[id] = d
	}
	return out, perr.FromPostgres(rows.Err(), "iterate descriptions")
}
