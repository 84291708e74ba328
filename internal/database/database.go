package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the claim tables if needed. Having the migration in
// code keeps the service self-contained so docker-compose can bootstrap
// everything.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS damage_reports (
	id TEXT PRIMARY KEY,
	public_id TEXT NOT NULL UNIQUE,
	edit_token TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'draft',
	incident_date TEXT,
	damage_description TEXT,
	policyholder JSONB,
	vehicle JSONB,
	extra JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_damage_reports_status ON damage_reports(status);
CREATE INDEX IF NOT EXISTS idx_damage_reports_created_at ON damage_reports(created_at DESC);
CREATE TABLE IF NOT EXISTS report_files (
	id TEXT PRIMARY KEY,
	report_id TEXT NOT NULL REFERENCES damage_reports(id),
	storage_path TEXT NOT NULL,
	mime TEXT,
	filename TEXT,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	text_status TEXT NOT NULL DEFAULT 'pending',
	text_excerpt TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_report_files_report ON report_files(report_id, created_at);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
