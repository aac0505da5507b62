// Package store owns Brain's single embedded SQLite file: pragmas and schema
// migrations. It builds no prepared-statement bundles; each component runs
// its SQL directly against the shared *sql.DB.
//
// Only one *sql.DB is ever opened per process (the server opens it for C1/C3/C4;
// each worker process opens its own handle for C2's runtime half), matching the
// teacher's NewLocalStore shape (internal/store/local_core.go): one connection,
// WAL mode, serialized writers.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"brain/internal/config"
)

// Store wraps the shared *sql.DB plus the logger every component call logs against.
type Store struct {
	DB  *sql.DB
	log *zap.Logger
}

// Open creates the data directory if needed, opens the SQLite file with the
// pragma sequence spec §4.4 step 1 requires, and runs migrations.
func Open(cfg config.StoreConfig, log *zap.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", cfg.Path, err)
	}
	// SQLite allows exactly one writer; a single connection avoids SQLITE_BUSY
	// storms under the driver's own locking instead of relying on busy_timeout alone.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA auto_vacuum = INCREMENTAL",
	}
	if cfg.CacheSizeKiB > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA cache_size = -%d", cfg.CacheSizeKiB))
	}
	if cfg.MmapSizeBytes > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA mmap_size = %d", cfg.MmapSizeBytes))
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	s := &Store{DB: db, log: log.With(zap.String("component", "store"))}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Now returns the store's authoritative notion of the current time, matching
// spec §3's "the store's own now is authoritative": callers pass this value
// into INSERT/UPDATE statements rather than letting SQLite's CURRENT_TIMESTAMP
// and the caller's wall clock drift relative to each other mid-transaction.
func Now() time.Time {
	return time.Now().UTC()
}
