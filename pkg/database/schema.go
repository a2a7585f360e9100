package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks that a migrated database matches what the store
// expects, catching structural drift before runtime queries hit it.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a validator for db.
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist.
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"rooms":             "Room data storage",
		"messages":          "Message data storage",
		"polls":             "Poll data storage",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}
	return nil
}

// ValidateTableStructure verifies column names and types.
func (v *SchemaValidator) ValidateTableStructure() error {
	roomColumns := map[string]string{
		"id":           "TEXT",
		"code":         "TEXT",
		"name":         "TEXT",
		"owner_id":     "TEXT",
		"active":       "INTEGER",
		"participants": "TEXT",
		"created_at":   "DATETIME",
		"updated_at":   "DATETIME",
	}
	if err := v.validateColumns("rooms", roomColumns); err != nil {
		return fmt.Errorf("rooms table structure invalid: %w", err)
	}

	messageColumns := map[string]string{
		"id":          "TEXT",
		"room_id":     "TEXT",
		"author_id":   "TEXT",
		"author_name": "TEXT",
		"author_role": "TEXT",
		"content":     "TEXT",
		"reply_to":    "TEXT",
		"reactions":   "TEXT",
		"system":      "INTEGER",
		"edited":      "INTEGER",
		"created_at":  "DATETIME",
	}
	if err := v.validateColumns("messages", messageColumns); err != nil {
		return fmt.Errorf("messages table structure invalid: %w", err)
	}

	pollColumns := map[string]string{
		"id":          "TEXT",
		"room_id":     "TEXT",
		"question":    "TEXT",
		"options":     "TEXT",
		"votes":       "TEXT",
		"total_votes": "INTEGER",
		"active":      "INTEGER",
		"created_by":  "TEXT",
		"created_at":  "DATETIME",
		"closed_at":   "DATETIME",
	}
	if err := v.validateColumns("polls", pollColumns); err != nil {
		return fmt.Errorf("polls table structure invalid: %w", err)
	}
	return nil
}

// ValidateIndexes verifies that the performance indexes exist.
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_rooms_active":       "Active room lookups",
		"idx_rooms_owner":        "Room ownership queries",
		"idx_rooms_code_active":  "Join code uniqueness among active rooms",
		"idx_messages_room_time": "Message history retrieval",
		"idx_polls_room":         "Poll lookups per room",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}
	return nil
}

// ValidateAll runs every validation.
func (v *SchemaValidator) ValidateAll() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	return v.ValidateIndexes()
}

func (v *SchemaValidator) tableExists(name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&count)
	return count > 0, err
}

func (v *SchemaValidator) indexExists(name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?", name,
	).Scan(&count)
	return count > 0, err
}

func (v *SchemaValidator) validateColumns(table string, expected map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]string)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &primaryKey); err != nil {
			return err
		}
		found[name] = typ
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, typ := range expected {
		got, ok := found[column]
		if !ok {
			return fmt.Errorf("column %s missing", column)
		}
		if got != typ {
			return fmt.Errorf("column %s has type %s, expected %s", column, got, typ)
		}
	}
	return nil
}
