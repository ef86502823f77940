// Package repository implements persistence for users, work orders,
// and sessions. Every repository is an interface with a SQL
// implementation and an in-memory implementation; the memory form backs
// tests and single-process trial runs.
package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goatkit/goatlink/internal/database"
	"github.com/goatkit/goatlink/internal/models"
)

// ErrNotFound is returned when a lookup matches no row; ErrDuplicate
// when an insert violates a uniqueness constraint. Callers wrap them
// into business errors with operation context.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// UserRepository defines the interface for user operations.
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id int64) (*models.User, error)
	GetByUsername(username string) (*models.User, error)
	Exists(username string) (bool, error)
	UpdatePassword(id int64, passwordHash string) error
	UpdateLastLogin(id int64, at time.Time) error
}

// UserSQLRepository handles database operations for the users table.
type UserSQLRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQL-backed user repository.
func NewUserRepository(db *sql.DB) *UserSQLRepository {
	return &UserSQLRepository{db: db}
}

// Create inserts a new user and fills in the generated ID.
func (r *UserSQLRepository) Create(user *models.User) error {
	if user.Username == "" {
		return errors.New("username is required")
	}

	query := database.ConvertPlaceholders(`
		INSERT INTO users (username, password_hash, full_name, user_type, created_at)
		VALUES (?, ?, ?, ?, ?)`)

	result, err := r.db.Exec(query,
		user.Username, user.PasswordHash, user.FullName, user.UserType,
		user.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	// lib/pq does not support LastInsertId; fall back to a lookup.
	if id, err := result.LastInsertId(); err == nil && id > 0 {
		user.ID = id
		return nil
	}
	idQuery := database.ConvertPlaceholders(`SELECT id FROM users WHERE username = ?`)
	if err := r.db.QueryRow(idQuery, user.Username).Scan(&user.ID); err != nil {
		return fmt.Errorf("failed to read back user id: %w", err)
	}
	return nil
}

// GetByID retrieves a user by primary key.
func (r *UserSQLRepository) GetByID(id int64) (*models.User, error) {
	query := database.ConvertPlaceholders(`
		SELECT id, username, password_hash, full_name, user_type, created_at, last_login_at
		FROM users
		WHERE id = ?`)
	return r.scanUser(r.db.QueryRow(query, id))
}

// GetByUsername retrieves a user by login name.
func (r *UserSQLRepository) GetByUsername(username string) (*models.User, error) {
	query := database.ConvertPlaceholders(`
		SELECT id, username, password_hash, full_name, user_type, created_at, last_login_at
		FROM users
		WHERE username = ?`)
	return r.scanUser(r.db.QueryRow(query, username))
}

// Exists reports whether a username is already taken.
func (r *UserSQLRepository) Exists(username string) (bool, error) {
	query := database.ConvertPlaceholders(`SELECT COUNT(*) FROM users WHERE username = ?`)

	var count int
	if err := r.db.QueryRow(query, username).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count users: %w", err)
	}
	return count > 0, nil
}

// UpdatePassword replaces a user's password hash.
func (r *UserSQLRepository) UpdatePassword(id int64, passwordHash string) error {
	query := database.ConvertPlaceholders(`UPDATE users SET password_hash = ? WHERE id = ?`)

	result, err := r.db.Exec(query, passwordHash, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireRow(result)
}

// UpdateLastLogin records a successful login time.
func (r *UserSQLRepository) UpdateLastLogin(id int64, at time.Time) error {
	query := database.ConvertPlaceholders(`UPDATE users SET last_login_at = ? WHERE id = ?`)

	result, err := r.db.Exec(query, at.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return requireRow(result)
}

func (r *UserSQLRepository) scanUser(row *sql.Row) (*models.User, error) {
	var (
		user      models.User
		createdAt string
		lastLogin sql.NullString
	)
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.FullName,
		&user.UserType, &createdAt, &lastLogin)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	user.CreatedAt = parseTime(createdAt)
	if lastLogin.Valid {
		t := parseTime(lastLogin.String)
		user.LastLoginAt = &t
	}
	return &user, nil
}

// requireRow converts a zero-row update into ErrNotFound.
func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// parseTime reads an RFC3339 column, tolerating the space-separated
// form some drivers return.
func parseTime(value string) time.Time {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", value); err == nil {
		return t
	}
	return time.Time{}
}
