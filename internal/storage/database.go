// Package storage provides database access and repositories
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names
const (
	DriverCGo  = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPure = "sqlite"  // modernc.org/sqlite
)

// DB wraps the database connection
type DB struct {
	*sql.DB
	driver string
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens a database file with the given driver. Every connection
// enforces foreign keys, waits on a locked database instead of failing
// and starts write transactions with BEGIN IMMEDIATE.
func New(driver, databaseURL string) (*DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}

	dsn, err := buildDSN(driver, databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", classify(err))
	}

	return &DB{DB: db, driver: driver}, nil
}

func buildDSN(driver, databaseURL string) (string, error) {
	sep := "?"
	if strings.Contains(databaseURL, "?") {
		sep = "&"
	}

	switch driver {
	case DriverCGo:
		return databaseURL + sep + "_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate", nil
	case DriverPure:
		return databaseURL + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Driver returns the database/sql driver name
func (db *DB) Driver() string {
	return db.driver
}

// Ping verifies the database can be reached
func (db *DB) Ping(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", classify(err))
	}
	return nil
}

// Migrate runs database migrations
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		createSitesTable,
		createUsersTable,
		createSessionsTable,
		createAuctionsTable,
	}

	for _, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", classify(err))
		}
	}

	return nil
}

// Reset drops every table and migrates again, leaving an empty store
func (db *DB) Reset(ctx context.Context) error {
	drops := []string{
		"DROP TABLE IF EXISTS auctions",
		"DROP TABLE IF EXISTS sessions",
		"DROP TABLE IF EXISTS users",
		"DROP TABLE IF EXISTS sites",
	}

	for _, drop := range drops {
		if _, err := db.ExecContext(ctx, drop); err != nil {
			return fmt.Errorf("reset failed: %w", classify(err))
		}
	}

	return db.Migrate(ctx)
}

// IsProvisioned reports whether the schema has been created
func (db *DB) IsProvisioned(ctx context.Context) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('sites', 'users', 'sessions', 'auctions')",
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", classify(err))
	}
	return count == 4, nil
}

const createSitesTable = `
CREATE TABLE IF NOT EXISTS sites (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	timezone INTEGER NOT NULL,
	session_expiration_seconds INTEGER NOT NULL CHECK (session_expiration_seconds > 0),
	minimum_bid_increment TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sites_name ON sites(name);
`

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	site_id TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	FOREIGN KEY (site_id) REFERENCES sites(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_site ON users(username, site_id);
`

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	valid_until INTEGER NOT NULL,
	user_id TEXT NOT NULL,
	site_id TEXT NOT NULL,
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
	FOREIGN KEY (site_id) REFERENCES sites(id)
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_site_valid_until ON sessions(site_id, valid_until);
`

const createAuctionsTable = `
CREATE TABLE IF NOT EXISTS auctions (
	id TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	ends_on INTEGER NOT NULL,
	maximum_bid_value TEXT NOT NULL,
	current_price TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	winner_id TEXT,
	site_id TEXT NOT NULL,
	FOREIGN KEY (owner_id) REFERENCES users(id),
	FOREIGN KEY (winner_id) REFERENCES users(id) ON DELETE SET NULL,
	FOREIGN KEY (site_id) REFERENCES sites(id)
);

CREATE INDEX IF NOT EXISTS idx_auctions_site_id ON auctions(site_id);
CREATE INDEX IF NOT EXISTS idx_auctions_owner_id ON auctions(owner_id);
CREATE INDEX IF NOT EXISTS idx_auctions_winner_id ON auctions(winner_id);
`
