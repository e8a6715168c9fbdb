package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Open opens a SQLite database with the given DSN. Foreign keys and a busy
// timeout are enabled on every pooled connection through DSN pragmas.
func Open(dsn string) (*sql.DB, error) {
	if !strings.Contains(dsn, "_pragma=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer connection keeps concurrent writes from tripping SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// Migrate creates the schema idempotently and seeds the default public channel.
func Migrate(ctx context.Context, db *sql.DB, defaultChannel string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT '#3b82f6',
			status TEXT NOT NULL DEFAULT 'offline',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS channels (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			kind TEXT NOT NULL CHECK (kind IN ('public', 'direct', 'private')),
			created_by INTEGER REFERENCES users(id) ON DELETE SET NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS channel_members (
			channel_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			last_read_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (channel_id, user_id),
			FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			reply_to INTEGER DEFAULT NULL,
			edited BOOLEAN NOT NULL DEFAULT 0,
			deleted BOOLEAN NOT NULL DEFAULT 0,
			FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (reply_to) REFERENCES messages(id) ON DELETE SET NULL
		);`,
		// One row per unordered identity pair.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_channels_direct_name ON channels(name) WHERE kind = 'direct';`,
		`CREATE INDEX IF NOT EXISTS idx_channels_kind ON channels(kind);`,
		`CREATE INDEX IF NOT EXISTS idx_channel_members_user ON channel_members(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_reply ON messages(reply_to);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	if defaultChannel != "" {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO channels (name, kind, created_at)
			SELECT ?, 'public', CURRENT_TIMESTAMP
			WHERE NOT EXISTS (SELECT 1 FROM channels WHERE name = ? AND kind = 'public')
		`, defaultChannel, defaultChannel); err != nil {
			return fmt.Errorf("seed default channel: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
