// Package sqlitestore provides persistent cache storage backed by SQLite.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed" // Schema.
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/vearutop/swcache"
	_ "modernc.org/sqlite" // SQL driver.
)

//go:embed schema.sql
var schema string

// Config controls SQLite storage.
type Config struct {
	// Logger collects messages with context.
	Logger ctxd.Logger

	// Stats tracks stats.
	Stats stats.Tracker

	// BusyTimeout is a duration of waiting for a locked database, default 5s.
	BusyTimeout time.Duration
}

var (
	_ swcache.Storage = &Storage{}
	_ swcache.Cache   = &Cache{}
)

// Storage keeps cache generations in a SQLite database file.
type Storage struct {
	db   *sql.DB
	log  ctxd.Logger
	stat stats.Tracker
	now  func() time.Time
}

// Open opens database file and creates schema if necessary.
func Open(path string, cfg ...Config) (*Storage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}

	config := Config{}
	if len(cfg) >= 1 {
		config = cfg[0]
	}

	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		filepath.Clean(path), config.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Storage{
		db:   db,
		log:  config.Logger,
		stat: config.Stats,
		now:  time.Now,
	}

	if s.log == nil {
		s.log = ctxd.NoOpLogger{}
	}

	if s.stat == nil {
		s.stat = stats.NoOp{}
	}

	return s, nil
}

// Close releases database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Open returns existing generation or creates a new one.
func (s *Storage) Open(ctx context.Context, name string) (swcache.Cache, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO generations (name, created_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
		name, s.now().UnixMilli())
	if err != nil {
		return nil, ctxd.WrapError(ctx, err, "failed to create cache generation", "name", name)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.log.Debug(ctx, "created cache generation", "name", name)
	}

	return &Cache{s: s, name: name}, nil
}

// Lookup returns existing generation without creating it.
func (s *Storage) Lookup(ctx context.Context, name string) (swcache.Cache, error) {
	ok, err := s.Has(ctx, name)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, swcache.ErrGenerationNotFound
	}

	return &Cache{s: s, name: name}, nil
}

// Has checks if generation exists.
func (s *Storage) Has(ctx context.Context, name string) (bool, error) {
	var one int

	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM generations WHERE name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, ctxd.WrapError(ctx, err, "failed to check cache generation", "name", name)
	}

	return true, nil
}

// Delete removes generation with all entries.
func (s *Storage) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}

	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE generation = ?`, name); err != nil {
		return false, ctxd.WrapError(ctx, err, "failed to delete entries", "name", name)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM generations WHERE name = ?`, name)
	if err != nil {
		return false, ctxd.WrapError(ctx, err, "failed to delete cache generation", "name", name)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	if n > 0 {
		s.log.Debug(ctx, "deleted cache generation", "name", name)
	}

	return n > 0, nil
}

// Keys returns generation names in order of creation.
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM generations ORDER BY id`)
	if err != nil {
		return nil, ctxd.WrapError(ctx, err, "failed to list cache generations")
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		names = append(names, name)
	}

	return names, rows.Err()
}
