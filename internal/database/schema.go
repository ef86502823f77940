package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// schemaStatements is driver-neutral DDL: integer primary keys, TEXT
// timestamps (RFC3339), no engine-specific column types.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username VARCHAR(64) NOT NULL UNIQUE,
		password_hash VARCHAR(128) NOT NULL,
		full_name VARCHAR(128) NOT NULL DEFAULT '',
		user_type VARCHAR(16) NOT NULL,
		created_at TEXT NOT NULL,
		last_login_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS work_orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticket_id VARCHAR(32) NOT NULL UNIQUE,
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		creator_id INTEGER NOT NULL,
		assigned_to INTEGER,
		status VARCHAR(16) NOT NULL,
		priority VARCHAR(16) NOT NULL,
		category VARCHAR(64) NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		closed_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS work_order_participants (
		work_order_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		role VARCHAR(16) NOT NULL,
		joined_at TEXT NOT NULL,
		left_at TEXT,
		permissions VARCHAR(255) NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id VARCHAR(64) PRIMARY KEY,
		user_id INTEGER NOT NULL,
		room_id VARCHAR(64) NOT NULL,
		status VARCHAR(16) NOT NULL,
		created_at TEXT NOT NULL,
		last_activity TEXT NOT NULL,
		expires_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_order ON work_order_participants (work_order_id, user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions (user_id)`,
}

// EnsureSchema creates the tables if they do not exist. MySQL and
// PostgreSQL spell AUTOINCREMENT differently; the fixups below keep a
// single statement list.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if err := execSchema(db, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

func execSchema(db *sql.DB, stmt string) error {
	switch ActiveDriver() {
	case DriverMySQL:
		stmt = strings.ReplaceAll(stmt, "INTEGER PRIMARY KEY AUTOINCREMENT", "INTEGER PRIMARY KEY AUTO_INCREMENT")
	case DriverPostgres:
		stmt = strings.ReplaceAll(stmt, "INTEGER PRIMARY KEY AUTOINCREMENT", "BIGSERIAL PRIMARY KEY")
	}
	_, err := db.Exec(stmt)
	return err
}
