// Package sqlite is a single-file store for small deployments and local
// development. One connection serializes every write.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/sudo-init-do/errandhub/internal/eligibility"
	"github.com/sudo-init-do/errandhub/internal/lifecycle"
	"github.com/sudo-init-do/errandhub/internal/user"
)

// Compile-time interface checks.
var (
	_ lifecycle.Store   = (*DB)(nil)
	_ eligibility.Store = (*DB)(nil)
	_ user.Store        = (*DB)(nil)
)

type DB struct {
	conn   *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// New opens (or creates) the database file and migrates it.
func New(dbPath string, logger *slog.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, logger: logger, now: time.Now}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Info("sqlite database ready", "path", dbPath)
	return db, nil
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error { return db.conn.PingContext(ctx) }

// Close closes the database.
func (db *DB) Close() error { return db.conn.Close() }

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		tg_id INTEGER NOT NULL UNIQUE,
		username TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'user',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		requester_id TEXT NOT NULL REFERENCES users(id),
		requester_tg_id INTEGER NOT NULL DEFAULT 0,
		origin TEXT NOT NULL DEFAULT '',
		destination TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '',
		comment TEXT NOT NULL DEFAULT '',
		price_mode TEXT NOT NULL,
		client_price INTEGER,
		final_price INTEGER,
		status TEXT NOT NULL,
		provider_id TEXT,
		provider_tg_id INTEGER,
		resource_id TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CHECK (status IN ('NEW','CANCELLED') OR (final_price IS NOT NULL AND provider_id IS NOT NULL)),
		CHECK (status <> 'NEW' OR (final_price IS NULL AND provider_id IS NULL))
	);
	CREATE UNIQUE INDEX IF NOT EXISTS uniq_requests_active_requester
		ON requests(domain, requester_id)
		WHERE status IN ('NEW','ASSIGNED','ON_WAY','IN_PROGRESS');
	CREATE INDEX IF NOT EXISTS idx_requests_domain_status ON requests(domain, status);

	CREATE TABLE IF NOT EXISTS bids (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		request_id TEXT NOT NULL REFERENCES requests(id),
		provider_id TEXT NOT NULL,
		provider_tg_id INTEGER NOT NULL DEFAULT 0,
		offered_price INTEGER NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS uniq_bids_pending_provider
		ON bids(request_id, provider_id) WHERE status = 'PENDING';
	CREATE UNIQUE INDEX IF NOT EXISTS uniq_bids_accepted_request
		ON bids(request_id) WHERE status = 'ACCEPTED';

	CREATE TABLE IF NOT EXISTS provider_profiles (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		user_id TEXT NOT NULL,
		approved INTEGER NOT NULL DEFAULT 0,
		rejected INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 0,
		full_name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		license_number TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS uniq_provider_profiles_user ON provider_profiles(domain, user_id);

	CREATE TABLE IF NOT EXISTS provider_resources (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		user_id TEXT NOT NULL,
		make TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		plate TEXT NOT NULL DEFAULT '',
		seats INTEGER NOT NULL DEFAULT 0,
		photo_url TEXT NOT NULL DEFAULT '',
		verified INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (domain, user_id)
	);
	`

	_, err := db.conn.Exec(schema)
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func (db *DB) stamp() time.Time { return db.now().UTC() }
