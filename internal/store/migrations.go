package store

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// migration is one versioned, forward-only schema step.
type migration struct {
	Version     int
	Description string
	Up          func(db *sql.DB) error
}

var migrations []migration

// registerMigration adds m to the set run by runMigrations. Called from
// each package-level migration file's init.
func registerMigration(m migration) {
	migrations = append(migrations, m)
}

// runMigrations is idempotent: safe to call on every startup, it applies
// only versions above the schema_version table's current max.
func runMigrations(db *sql.DB, logger zerolog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT,
			description TEXT
		)
	`); err != nil {
		return fmt.Errorf("cannot create schema_version table: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("cannot read schema version: %w", err)
	}

	sorted := append([]migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	for _, m := range sorted {
		if m.Version <= current {
			continue
		}
		logger.Info().Int("version", m.Version).Str("description", m.Description).Msg("applying migration")
		if err := m.Up(db); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
		if _, err := db.Exec(
			"INSERT INTO schema_version (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UTC().Format(time.RFC3339), m.Description,
		); err != nil {
			return fmt.Errorf("cannot record migration %d: %w", m.Version, err)
		}
	}
	return nil
}
