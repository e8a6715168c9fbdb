package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL for the chat schema and seeds the default
// public channel.
func Migrate(ctx context.Context, db *sql.DB, defaultChannel string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id         BIGSERIAL   PRIMARY KEY,
			username   TEXT        UNIQUE NOT NULL,
			password   TEXT        NOT NULL,
			color      TEXT        NOT NULL DEFAULT '#3b82f6',
			status     TEXT        NOT NULL DEFAULT 'offline',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS channels (
			id         BIGSERIAL   PRIMARY KEY,
			name       TEXT        NOT NULL,
			kind       TEXT        NOT NULL CHECK (kind IN ('public', 'direct', 'private')),
			created_by BIGINT      REFERENCES users(id) ON DELETE SET NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS channel_members (
			channel_id   BIGINT      NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
			user_id      BIGINT      NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			last_read_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (channel_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id         BIGSERIAL   PRIMARY KEY,
			channel_id BIGINT      NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
			user_id    BIGINT      NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			content    TEXT        NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			reply_to   BIGINT      REFERENCES messages(id) ON DELETE SET NULL,
			edited     BOOLEAN     NOT NULL DEFAULT FALSE,
			deleted    BOOLEAN     NOT NULL DEFAULT FALSE
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_channels_direct_name ON channels(name) WHERE kind = 'direct'`,
		`CREATE INDEX IF NOT EXISTS idx_channels_kind ON channels(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_channel_members_user ON channel_members(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_reply ON messages(reply_to)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}

	if defaultChannel != "" {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO channels (name, kind)
			SELECT $1, 'public'
			WHERE NOT EXISTS (SELECT 1 FROM channels WHERE name = $1 AND kind = 'public')
		`, defaultChannel); err != nil {
			return fmt.Errorf("seed default channel: %w", err)
		}
	}
	return nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
