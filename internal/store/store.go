// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/prayerwall/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound is returned when a prayer item does not exist.
var ErrNotFound = errors.New("prayer item not found")

// Store wraps SQLite access for the prayer wall.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps pragmas in effect and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, path: path, now: time.Now}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate() error {
	stmts := []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS prayers (
			key TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			author TEXT NOT NULL,
			created_at TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			aggregated INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS prayer_increments (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			item_key TEXT NOT NULL,
			delta INTEGER NOT NULL CHECK (delta IN (-1, 1)),
			shard INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS prayer_shards (
			item_key TEXT NOT NULL,
			shard INTEGER NOT NULL,
			total INTEGER NOT NULL,
			PRIMARY KEY (item_key, shard)
		);`,
		`CREATE TABLE IF NOT EXISTS local_flags (
			device_id TEXT NOT NULL,
			flag_key TEXT NOT NULL,
			value INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (device_id, flag_key)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_prayers_created_at ON prayers(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_prayer_increments_pending ON prayer_increments(processed, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_prayer_increments_created_at ON prayer_increments(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// CreateItem stores a new prayer item. A key is generated when item.Key is empty.
// The returned item has a zero count until the aggregator folds increments for it.
func (s *Store) CreateItem(ctx context.Context, item model.PrayerItem) (model.PrayerItem, error) {
	return s.insertItem(ctx, s.db, item)
}

// CreateItems stores items in one transaction. Either all of them are created
// or none are.
func (s *Store) CreateItems(ctx context.Context, items []model.PrayerItem) (created []model.PrayerItem, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	created = make([]model.PrayerItem, 0, len(items))
	for _, item := range items {
		var stored model.PrayerItem
		stored, err = s.insertItem(ctx, tx, item)
		if err != nil {
			return nil, fmt.Errorf("prayer %q: %w", item.Title, err)
		}
		created = append(created, stored)
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insertItem(ctx context.Context, db execer, item model.PrayerItem) (model.PrayerItem, error) {
	item.Title = strings.TrimSpace(item.Title)
	if item.Title == "" {
		return model.PrayerItem{}, fmt.Errorf("prayer title must not be empty")
	}
	if item.Key == "" {
		item.Key = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	item.Count = 0

	_, err := db.ExecContext(ctx,
		`INSERT INTO prayers (key, title, body, author, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		item.Key,
		item.Title,
		strings.TrimSpace(item.Body),
		strings.TrimSpace(item.Author),
		item.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return model.PrayerItem{}, fmt.Errorf("failed to insert prayer: %w", err)
	}
	return item, nil
}

// GetItem returns one prayer item.
func (s *Store) GetItem(ctx context.Context, key string) (model.PrayerItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, title, body, author, created_at, count FROM prayers WHERE key = ?`, key)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PrayerItem{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return model.PrayerItem{}, err
	}
	return item, nil
}

// ListItems returns every prayer item, newest first.
func (s *Store) ListItems(ctx context.Context) ([]model.PrayerItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, title, body, author, created_at, count
		 FROM prayers
		 ORDER BY created_at DESC, key ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var items []model.PrayerItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// AggregateCount reads the authoritative count for an item. aggregated is false
// while the aggregator has never folded a record for it.
func (s *Store) AggregateCount(ctx context.Context, key string) (count int64, aggregated bool, err error) {
	var flag int
	err = s.db.QueryRowContext(ctx,
		`SELECT count, aggregated FROM prayers WHERE key = ?`, key).Scan(&count, &flag)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return 0, false, err
	}
	return count, flag != 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (model.PrayerItem, error) {
	var item model.PrayerItem
	var createdAt string
	if err := row.Scan(&item.Key, &item.Title, &item.Body, &item.Author, &createdAt, &item.Count); err != nil {
		return model.PrayerItem{}, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.PrayerItem{}, err
	}
	item.CreatedAt = parsed
	return item, nil
}
