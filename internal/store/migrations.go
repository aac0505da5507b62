package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"
)

// migration is one forward-only schema step, grounded on the teacher's
// versioned Migration struct (internal/store/migrations.go) but generalized
// from column-additive patches to full CREATE TABLE statements, since Brain
// starts from an empty schema rather than upgrading a pre-existing one.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// CurrentSchemaVersion is the highest version this binary knows how to apply.
const CurrentSchemaVersion = 1

var migrations = []migration{
	{Version: 1, Name: "initial_schema", SQL: schemaV1},
}

func checksum(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}

// runMigrations applies every pending migration inside its own transaction,
// refusing to run at all if the store's recorded schema_version is newer
// than this binary understands (spec §4.4 step 2: "refuses to run on a
// future-version store").
func (s *Store) runMigrations() error {
	if _, err := s.DB.Exec(bootstrapSQL); err != nil {
		return fmt.Errorf("bootstrap schema_version tables: %w", err)
	}

	current, err := s.schemaVersion()
	if err != nil {
		return err
	}
	if current > CurrentSchemaVersion {
		return fmt.Errorf("store schema version %d is newer than this binary supports (max %d)", current, CurrentSchemaVersion)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := s.applyMigration(m); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func (s *Store) schemaVersion() (int, error) {
	var version int
	err := s.DB.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return version, nil
}

func (s *Store) applyMigration(m migration) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("run migration sql: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (?)`, m.Version); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO migration_history(version, name, checksum, applied_at) VALUES (?, ?, ?, ?)`,
		m.Version, m.Name, checksum(m.SQL), Now(),
	); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Info("applied migration", zap.Int("version", m.Version), zap.String("name", m.Name))
	return nil
}

const bootstrapSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version     INTEGER PRIMARY KEY,
	applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS migration_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	version     INTEGER NOT NULL,
	name        TEXT NOT NULL,
	checksum    TEXT NOT NULL,
	applied_at  DATETIME NOT NULL
);
`
