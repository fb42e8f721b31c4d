package journal

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Schema version tracking:
// 1 - Initial schema
// 2 - Added digest column and index
const currentSchemaVersion = 2

const schemaSQL = `
CREATE TABLE IF NOT EXISTS entries (
	run_id        TEXT    NOT NULL,
	seq           INTEGER NOT NULL,
	kind          TEXT    NOT NULL,
	store         TEXT    NOT NULL DEFAULT '',
	type          TEXT    NOT NULL DEFAULT '',
	key           TEXT    NOT NULL DEFAULT '',
	payload       TEXT,
	error         TEXT    NOT NULL DEFAULT '',
	request_id    TEXT    NOT NULL DEFAULT '',
	trace_version TEXT    NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	runtime_version TEXT NOT NULL,
	started_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_entries_kind ON entries(run_id, kind);
`

// Journal is a SQLite-backed trace journal.
// Uses WAL mode so the CLI can read a journal a running process writes.
//
// Thread-safety: safe for concurrent use; writes are serialized by a single
// connection.
type Journal struct {
	db       *sql.DB
	runID    string
	readOnly bool
}

// Option configures Open.
type Option func(*Journal)

// WithRunID sets the run entries are appended under.
// Default: a fresh UUIDv7, so runs sort by start time.
func WithRunID(id string) Option {
	return func(j *Journal) {
		j.runID = id
	}
}

// ReadOnly opens the journal for reading: no run is started and Append
// fails. Used by tools inspecting a journal another process wrote.
func ReadOnly() Option {
	return func(j *Journal) {
		j.readOnly = true
	}
}

// Open creates or opens a journal at path. ":memory:" opens a private
// in-memory journal.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (the journal is diagnostic)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	// SQLite only supports one writer at a time; a single connection also
	// keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	j := &Journal{db: db}
	for _, opt := range opts {
		opt(j)
	}
	if j.readOnly {
		return j, nil
	}
	if j.runID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("generate run id: %w", err)
		}
		j.runID = id.String()
	}
	if err := j.startRun(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// RunID returns the run this journal appends to.
func (j *Journal) RunID() string {
	return j.runID
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 2 {
		if err := migrateToV2(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV2 adds the digest column, used to find every entry about one
// resolver key or request across runs.
func migrateToV2(db *sql.DB) error {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('entries') WHERE name = 'digest'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	if n == 0 {
		if _, err := db.Exec(`ALTER TABLE entries ADD COLUMN digest TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_entries_digest ON entries(digest)`); err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	return nil
}
