package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is idempotent; it is applied on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS datesheets (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		version INT NOT NULL DEFAULT 1,
		status TEXT NOT NULL DEFAULT 'draft',
		start_date DATE NOT NULL,
		classes JSONB NOT NULL,
		input JSONB NOT NULL,
		days_attempted INT NOT NULL DEFAULT 0,
		created_by TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		published_at TIMESTAMPTZ,
		UNIQUE (title, version)
	)`,
	`CREATE TABLE IF NOT EXISTS datesheet_rows (
		datesheet_id UUID NOT NULL REFERENCES datesheets(id) ON DELETE CASCADE,
		position INT NOT NULL,
		exam_date DATE NOT NULL,
		weekday TEXT NOT NULL,
		cells JSONB NOT NULL,
		PRIMARY KEY (datesheet_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS holidays (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (end_date >= start_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_holidays_range ON holidays (start_date, end_date)`,
}

// EnsureSchema creates the datesheet and holiday tables when missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
