// Package sqlite implements the journal storage contracts on modernc SQLite.
package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hardwoodsim/league/internal/platform/storage/sqlitemigrate"
	"github.com/hardwoodsim/league/internal/services/league/domain/event"
	"github.com/hardwoodsim/league/internal/services/league/storage"
	"github.com/hardwoodsim/league/internal/services/league/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides a SQLite-backed season journal.
type Store struct {
	sqlDB         *sql.DB
	eventRegistry *event.Registry
}

// Open opens a journal store at the provided path and applies migrations.
func Open(path string, eventRegistry *event.Registry) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if eventRegistry == nil {
		return nil, fmt.Errorf("event registry is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	// The sequence counter read-modify-append must be serialized; a single
	// connection avoids SQLITE_BUSY races between concurrent transactions.
	sqlDB.SetMaxOpenConns(1)

	store := &Store{sqlDB: sqlDB, eventRegistry: eventRegistry}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.EventsFS, "events"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis reverses toMillis for persisted millisecond timestamps.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

var _ storage.Store = (*Store)(nil)
