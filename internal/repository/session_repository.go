package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goatkit/goatlink/internal/database"
	"github.com/goatkit/goatlink/internal/models"
)

// SessionRepository defines the interface for session operations.
type SessionRepository interface {
	Create(session *models.Session) error
	GetByID(sessionID string) (*models.Session, error)
	GetActiveByUserID(userID int64) (*models.Session, error)
	UpdateRoom(sessionID, roomID string) error
	UpdateLastActivity(sessionID string, at time.Time) error
	Expire(sessionID string) error
	Delete(sessionID string) error
	DeleteByUserID(userID int64) (int, error)
	FindExpired(now time.Time, idleTimeout time.Duration) ([]*models.Session, error)
}

// SessionSQLRepository handles database operations for the sessions
// table.
type SessionSQLRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SQL-backed session repository.
func NewSessionRepository(db *sql.DB) *SessionSQLRepository {
	return &SessionSQLRepository{db: db}
}

// Create stores a new session.
func (r *SessionSQLRepository) Create(session *models.Session) error {
	if session.SessionID == "" {
		return errors.New("session ID is required")
	}

	query := database.ConvertPlaceholders(`
		INSERT INTO sessions (session_id, user_id, room_id, status, created_at, last_activity, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.Exec(query,
		session.SessionID, session.UserID, session.RoomID, session.Status,
		session.CreatedAt.Format(time.RFC3339),
		session.LastActivity.Format(time.RFC3339),
		session.ExpiresAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

const sessionColumns = `session_id, user_id, room_id, status, created_at, last_activity, expires_at`

// GetByID retrieves a session by its ID.
func (r *SessionSQLRepository) GetByID(sessionID string) (*models.Session, error) {
	query := database.ConvertPlaceholders(
		`SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = ?`)
	return scanSession(r.db.QueryRow(query, sessionID))
}

// GetActiveByUserID retrieves the user's active session, if any.
func (r *SessionSQLRepository) GetActiveByUserID(userID int64) (*models.Session, error) {
	query := database.ConvertPlaceholders(
		`SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = ? AND status = ?`)
	return scanSession(r.db.QueryRow(query, userID, models.SessionActive))
}

// UpdateRoom rebinds a session to a different room.
func (r *SessionSQLRepository) UpdateRoom(sessionID, roomID string) error {
	query := database.ConvertPlaceholders(`
		UPDATE sessions SET room_id = ?, last_activity = ? WHERE session_id = ?`)
	result, err := r.db.Exec(query, roomID, time.Now().Format(time.RFC3339), sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session room: %w", err)
	}
	return requireRow(result)
}

// UpdateLastActivity touches the session's activity timestamp.
func (r *SessionSQLRepository) UpdateLastActivity(sessionID string, at time.Time) error {
	query := database.ConvertPlaceholders(`
		UPDATE sessions SET last_activity = ? WHERE session_id = ?`)
	result, err := r.db.Exec(query, at.Format(time.RFC3339), sessionID)
	if err != nil {
		return fmt.Errorf("failed to update last activity: %w", err)
	}
	return requireRow(result)
}

// Expire marks a session expired without removing its row.
func (r *SessionSQLRepository) Expire(sessionID string) error {
	query := database.ConvertPlaceholders(`
		UPDATE sessions SET status = ? WHERE session_id = ?`)
	result, err := r.db.Exec(query, models.SessionExpired, sessionID)
	if err != nil {
		return fmt.Errorf("failed to expire session: %w", err)
	}
	return requireRow(result)
}

// Delete removes a session by its ID.
func (r *SessionSQLRepository) Delete(sessionID string) error {
	query := database.ConvertPlaceholders(`DELETE FROM sessions WHERE session_id = ?`)
	result, err := r.db.Exec(query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return requireRow(result)
}

// DeleteByUserID removes all sessions for a user, returning the count.
func (r *SessionSQLRepository) DeleteByUserID(userID int64) (int, error) {
	query := database.ConvertPlaceholders(`DELETE FROM sessions WHERE user_id = ?`)
	result, err := r.db.Exec(query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// FindExpired returns active sessions past their deadline or idle
// window as of now.
func (r *SessionSQLRepository) FindExpired(now time.Time, idleTimeout time.Duration) ([]*models.Session, error) {
	idleCutoff := now.Add(-idleTimeout).Format(time.RFC3339)
	nowStr := now.Format(time.RFC3339)

	query := database.ConvertPlaceholders(`
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE status = ? AND (expires_at < ? OR last_activity < ?)`)

	rows, err := r.db.Query(query, models.SessionActive, nowStr, idleCutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSessionFrom(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return sessions, nil
}

func scanSession(row *sql.Row) (*models.Session, error) {
	session, err := scanSessionFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return session, err
}

func scanSessionFrom(scanner rowScanner) (*models.Session, error) {
	var (
		session      models.Session
		createdAt    string
		lastActivity string
		expiresAt    string
	)
	err := scanner.Scan(&session.SessionID, &session.UserID, &session.RoomID,
		&session.Status, &createdAt, &lastActivity, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	session.CreatedAt = parseTime(createdAt)
	session.LastActivity = parseTime(lastActivity)
	session.ExpiresAt = parseTime(expiresAt)
	return &session, nil
}
