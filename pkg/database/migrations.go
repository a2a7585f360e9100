package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration is one versioned schema step.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// migrations are applied in version order; each runs in its own
// transaction and is recorded in schema_migrations.
var migrations = []Migration{
	{
		Version:     "001",
		Description: "rooms and messages",
		SQL: `
			CREATE TABLE IF NOT EXISTS rooms (
				id           TEXT PRIMARY KEY,
				code         TEXT NOT NULL,
				name         TEXT NOT NULL,
				owner_id     TEXT NOT NULL,
				active       INTEGER NOT NULL DEFAULT 1,
				participants TEXT NOT NULL DEFAULT '{}',
				created_at   DATETIME NOT NULL,
				updated_at   DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_rooms_active ON rooms(active);
			CREATE INDEX IF NOT EXISTS idx_rooms_owner ON rooms(owner_id);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_rooms_code_active ON rooms(code) WHERE active = 1;

			CREATE TABLE IF NOT EXISTS messages (
				id          TEXT PRIMARY KEY,
				room_id     TEXT NOT NULL REFERENCES rooms(id),
				author_id   TEXT,
				author_name TEXT,
				author_role TEXT,
				content     TEXT NOT NULL,
				reply_to    TEXT,
				reactions   TEXT NOT NULL DEFAULT '{}',
				system      INTEGER NOT NULL DEFAULT 0,
				edited      INTEGER NOT NULL DEFAULT 0,
				created_at  DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_messages_room_time ON messages(room_id, created_at);
		`,
	},
	{
		Version:     "002",
		Description: "polls",
		SQL: `
			CREATE TABLE IF NOT EXISTS polls (
				id          TEXT PRIMARY KEY,
				room_id     TEXT NOT NULL REFERENCES rooms(id),
				question    TEXT NOT NULL,
				options     TEXT NOT NULL,
				votes       TEXT NOT NULL DEFAULT '{}',
				total_votes INTEGER NOT NULL DEFAULT 0,
				active      INTEGER NOT NULL DEFAULT 1,
				created_by  TEXT,
				created_at  DATETIME NOT NULL,
				closed_at   DATETIME
			);
			CREATE INDEX IF NOT EXISTS idx_polls_room ON polls(room_id);
		`,
	},
}

// MigrationManager applies pending migrations.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a migration manager for db.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies every migration not yet recorded, in order.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	pending := make([]Migration, 0, len(migrations))
	for _, mig := range migrations {
		if !applied[mig.Version] {
			pending = append(pending, mig)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	for _, mig := range pending {
		if err := m.apply(mig); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", mig.Version, err)
		}
	}
	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     TEXT PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) appliedVersions() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) apply(mig Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(mig.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
		mig.Version, mig.Description,
	); err != nil {
		return err
	}
	return tx.Commit()
}
