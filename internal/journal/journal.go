package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on events.kind
const currentSchemaVersion = 1

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Journal records store events into SQLite.
//
// Safe for use from one goroutine at a time; the store calls it from its
// loop.
type Journal struct {
	db      *sql.DB
	session string
	label   string
	logger  *slog.Logger
}

// Option configures a Journal.
type Option func(*Journal)

// WithSessionID fixes the session id instead of generating a UUIDv7.
// Used for deterministic output in tests and golden traces.
func WithSessionID(id string) Option {
	return func(j *Journal) {
		j.session = id
	}
}

// WithLabel attaches a human-readable label to the session.
func WithLabel(label string) Option {
	return func(j *Journal) {
		j.label = label
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) {
		j.logger = l
	}
}

// Open creates or opens a journal at path and starts a new session.
// Applies required pragmas and migrations automatically.
//
// File databases are configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(ctx context.Context, path string, opts ...Option) (*Journal, error) {
	j := &Journal{logger: slog.Default()}
	for _, opt := range opts {
		opt(j)
	}
	if j.session == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
		j.session = id.String()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time. For :memory: a single
	// connection is also what keeps every query on the same database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db, path == MemoryPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	j.db = db
	if _, err := db.ExecContext(ctx,
		`INSERT INTO sessions (id, label) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		j.session, j.label,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("start session: %w", err)
	}

	j.logger.Debug("journal: opened", "path", path, "session", j.session)
	return j, nil
}

// OpenReadOnly opens an existing journal file for inspection. Nothing is
// written: no schema changes and no new session, so reads must name the
// session they want.
func OpenReadOnly(ctx context.Context, path string, opts ...Option) (*Journal, error) {
	j := &Journal{logger: slog.Default()}
	for _, opt := range opts {
		opt(j)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("journal not found: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	j.db = db
	j.logger.Debug("journal: opened read-only", "path", path)
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Session returns the id of the session this journal writes to.
func (j *Journal) Session() string {
	return j.session
}

func applyPragmas(ctx context.Context, db *sql.DB, memory bool) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	if !memory {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if _, err := db.ExecContext(ctx,
			`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(session_id, kind)`,
		); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// pragma returns the current value of a pragma. Used by tests.
func (j *Journal) pragma(ctx context.Context, name string) (string, error) {
	var value string
	if err := j.db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&value); err != nil {
		return "", fmt.Errorf("failed to query %s: %w", name, err)
	}
	return value, nil
}
