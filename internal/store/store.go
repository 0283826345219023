// Package store provides the Postgres-backed applicant store. Writes go
// through an idempotent batch loader keyed on the entry URL; reads are
// plain statements executed for the analysis runner.
package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/admitlab/admitpipe/internal/admissions"
	"github.com/admitlab/admitpipe/internal/logging"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PgxPool is the subset of pgxpool.Pool the store uses, small enough for
// pgxmock to stand in during tests.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// LoadStats summarizes one batch load. Skipped counts duplicate-URL
// conflicts, which are a normal outcome, not errors.
type LoadStats struct {
	Attempted int `json:"attempted"`
	Inserted  int `json:"inserted"`
	Skipped   int `json:"skipped"`
	Rejected  int `json:"rejected"`
}

// ApplicantStore persists applicant rows in Postgres.
type ApplicantStore struct {
	pool   PgxPool
	table  string
	logger *zap.Logger
}

// New connects a pool and verifies it with a ping.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*ApplicantStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewWithPool(pool, cfg.Table, logger)
}

// NewWithPool constructs a store from an existing pool (primarily for tests).
func NewWithPool(pool PgxPool, table string, logger *zap.Logger) (*ApplicantStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "applicants"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ApplicantStore{
		pool:   pool,
		table:  table,
		logger: logging.NopIfNil(logger),
	}, nil
}

// LoadBatch inserts a batch of candidate records inside one transaction.
// Every record's surrogate identity is derived from its URL; a conflicting
// URL makes the insert a silent skip via ON CONFLICT DO NOTHING, so
// replaying a batch never changes the row count beyond net-new rows. Any
// other store error aborts and rolls back the whole batch.
func (s *ApplicantStore) LoadBatch(ctx context.Context, records []admissions.Record) (LoadStats, error) {
	stats := LoadStats{Attempted: len(records)}
	if len(records) == 0 {
		return stats, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return stats, fmt.Errorf("begin load batch: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for _, rec := range records {
		if rec.URL == "" {
			// The normalizer already enforces this; the loader still refuses
			// to store a row without its natural key.
			stats.Rejected++
			continue
		}

		query, args, err := s.insertStatement(rec)
		if err != nil {
			return stats, fmt.Errorf("build insert for %s: %w", rec.URL, err)
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return stats, fmt.Errorf("insert %s: %w", rec.URL, err)
		}
		if tag.RowsAffected() == 0 {
			stats.Skipped++
		} else {
			stats.Inserted++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return stats, fmt.Errorf("commit load batch: %w", err)
	}

	s.logger.Info("batch loaded",
		zap.Int("attempted", stats.Attempted),
		zap.Int("inserted", stats.Inserted),
		zap.Int("skipped", stats.Skipped),
		zap.Int("rejected", stats.Rejected),
	)
	return stats, nil
}

func (s *ApplicantStore) insertStatement(rec admissions.Record) (string, []any, error) {
	return sq.Insert(s.table).
		Columns(
			"p_id",
			"program",
			"university",
			"date_added",
			"url",
			"status",
			"status_raw",
			"term",
			"us_or_international",
			"gpa",
			"gre",
			"gre_v",
			"gre_aw",
			"degree",
			"comments",
			"accept_date",
			"reject_date",
			"llm_generated_program",
			"llm_generated_university",
		).
		Values(
			admissions.SurrogateID(rec.URL),
			rec.Program,
			rec.University,
			nullTime(rec.DateAdded),
			rec.URL,
			string(rec.Status),
			rec.StatusRaw,
			nullString(rec.Term()),
			nullString(rec.Citizenship),
			rec.GPA,
			rec.GRETotal,
			rec.GREVerbal,
			rec.GREAnalytical,
			nullString(rec.Degree),
			nullString(rec.Comments),
			nullTime(rec.AcceptDate),
			nullTime(rec.RejectDate),
			nullString(rec.CanonProgram),
			nullString(rec.CanonUniversity),
		).
		Suffix("ON CONFLICT (url) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

// Query executes a read statement for the analysis runner.
func (s *ApplicantStore) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return s.pool.Query(ctx, sql, args...)
}

// ApplySchema executes DDL, typically the contents of sql/schema.sql.
func (s *ApplicantStore) ApplySchema(ctx context.Context, ddl string) error {
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping reports whether the store is reachable.
func (s *ApplicantStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying pool resources.
func (s *ApplicantStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullTime(v time.Time) any {
	if v.IsZero() {
		return nil
	}
	return v
}
