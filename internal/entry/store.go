package entry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	msPerSecond       = 1000
	connectionTimeout = 5 * time.Second
)

// Config contains entry store options.
type Config struct {
	// Path is the SQLite file. Its directory is created if missing.
	Path string `yaml:"path" json:"path" default:"vivotherm.db"`

	// WALMode enables Write-Ahead Logging.
	WALMode bool `yaml:"wal_mode" json:"wal_mode" default:"true"`

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" default:"5"`
}

// migrations are applied in order; the index+1 is the schema version.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS entries (
		id         TEXT PRIMARY KEY,
		version    INTEGER NOT NULL,
		title      TEXT NOT NULL,
		unique_id  TEXT NOT NULL UNIQUE,
		data       TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
}

// Store persists entries in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the store at cfg.Path and migrates its schema.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("entry store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating entry store directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", cfg.Path, cfg.BusyTimeout*msPerSecond)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening entry store: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)

	s := &Store{db: db, path: cfg.Path}

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // best effort on error path
		return nil, fmt.Errorf("verifying entry store connection: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // best effort on error path
		return nil, err
	}

	if err := restrictPermissions(cfg.Path); err != nil {
		db.Close() //nolint:errcheck // best effort on error path
		return nil, err
	}

	return s, nil
}

// restrictPermissions limits the database file to its owner. The file exists once the
// schema has been migrated.
func restrictPermissions(path string) error {
	if err := os.Chmod(path, filePermissions); err != nil {
		return fmt.Errorf("restricting entry store permissions: %w", err)
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("starting migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback() //nolint:errcheck // rollback after failed statement
			return fmt.Errorf("applying migration %d: %w", i+1, err)
		}
		// PRAGMA does not accept placeholders.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback() //nolint:errcheck // rollback after failed statement
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Path returns the SQLite file path.
func (s *Store) Path() string {
	return s.path
}

// Create persists e. Missing ID, Version, UniqueID, Title and CreatedAt are filled in.
// It returns ErrDuplicate when an entry with the same unique id exists.
func (s *Store) Create(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Version == 0 {
		e.Version = CurrentVersion
	}
	if e.UniqueID == "" {
		e.UniqueID = e.Data.UniqueID()
	}
	if e.Title == "" {
		e.Title = e.Data.Name
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(e.Data)
	if err != nil {
		return Entry{}, fmt.Errorf("encoding entry data: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries (id, version, title, unique_id, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Version, e.Title, e.UniqueID, string(data), e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return Entry{}, fmt.Errorf("%w: %s", ErrDuplicate, e.UniqueID)
		}
		return Entry{}, fmt.Errorf("inserting entry: %w", err)
	}
	return e, nil
}

// Get returns the entry with the given id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, version, title, unique_id, data, created_at FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

// List returns every entry, oldest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, version, title, unique_id, data, created_at FROM entries ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	return entries, nil
}

// Delete removes the entry with the given id or returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Exists reports whether an entry with uniqueID is stored.
func (s *Store) Exists(ctx context.Context, uniqueID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM entries WHERE unique_id = ?`, uniqueID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking entry: %w", err)
	}
	return n > 0, nil
}

// HealthCheck verifies the store is accessible.
func (s *Store) HealthCheck(ctx context.Context) error {
	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("entry store health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing entry store: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e         Entry
		data      string
		createdAt string
	)
	if err := row.Scan(&e.ID, &e.Version, &e.Title, &e.UniqueID, &data, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("reading entry: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
		return Entry{}, fmt.Errorf("decoding entry %s data: %w", e.ID, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("decoding entry %s timestamp: %w", e.ID, err)
	}
	e.CreatedAt = ts
	return e, nil
}
