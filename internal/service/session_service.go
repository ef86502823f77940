package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/goatkit/goatlink/internal/constants"
	"github.com/goatkit/goatlink/internal/models"
	"github.com/goatkit/goatlink/internal/protoerrors"
	"github.com/goatkit/goatlink/internal/repository"
)

// UserRoom returns the synthetic per-user room a session is bound to
// between login and ticket join.
func UserRoom(userID int64) string {
	return fmt.Sprintf("%s%d", constants.UserRoomPrefix, userID)
}

// SessionService manages session lifecycle: one active session per
// user, created on login, rebound to a ticket room on join, expired by
// the sweeper.
type SessionService struct {
	repo        repository.SessionRepository
	lifetime    time.Duration
	idleTimeout time.Duration
}

// NewSessionService creates a session service with the given absolute
// lifetime and inactivity timeout. Zero values fall back to defaults.
func NewSessionService(repo repository.SessionRepository, lifetime, idleTimeout time.Duration) *SessionService {
	if lifetime <= 0 {
		lifetime = constants.DefaultSessionLifetime
	}
	if lifetime > constants.MaxSessionLifetime {
		lifetime = constants.MaxSessionLifetime
	}
	if idleTimeout <= 0 {
		idleTimeout = constants.DefaultSessionIdleTimeout
	}
	if idleTimeout < constants.MinSessionIdleTimeout {
		idleTimeout = constants.MinSessionIdleTimeout
	}
	return &SessionService{repo: repo, lifetime: lifetime, idleTimeout: idleTimeout}
}

// IdleTimeout returns the configured inactivity window.
func (s *SessionService) IdleTimeout() time.Duration {
	return s.idleTimeout
}

// Create opens a session for a user, bound initially to the synthetic
// per-user room. A user with a live session cannot open a second one.
func (s *SessionService) Create(userID int64) (*models.Session, error) {
	const op = "create_session"

	if existing, err := s.repo.GetActiveByUserID(userID); err == nil {
		if !existing.IsExpired(time.Now(), s.idleTimeout) {
			return nil, protoerrors.Conflict(op, "user already logged in")
		}
		// Stale row the sweeper has not reached yet.
		if err := s.repo.Expire(existing.SessionID); err != nil {
			return nil, protoerrors.Internal(op, err)
		}
	} else if err != repository.ErrNotFound {
		return nil, protoerrors.Internal(op, err)
	}

	now := time.Now()
	session := &models.Session{
		SessionID:    uuid.NewString(),
		UserID:       userID,
		RoomID:       UserRoom(userID),
		Status:       models.SessionActive,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.lifetime),
	}
	if err := s.repo.Create(session); err != nil {
		return nil, protoerrors.Internal(op, err)
	}
	return session, nil
}

// Get retrieves a session by id.
func (s *SessionService) Get(sessionID string) (*models.Session, error) {
	const op = "get_session"

	session, err := s.repo.GetByID(sessionID)
	if err == repository.ErrNotFound {
		return nil, protoerrors.NotFound(op, "session not found")
	}
	if err != nil {
		return nil, protoerrors.Internal(op, err)
	}
	return session, nil
}

// RebindRoom moves a session into a different room, typically from the
// per-user room into a ticket room on join.
func (s *SessionService) RebindRoom(sessionID, roomID string) error {
	const op = "rebind_session"

	if roomID == "" {
		return protoerrors.Validation(op, "room_id", "room ID is required")
	}
	err := s.repo.UpdateRoom(sessionID, roomID)
	if err == repository.ErrNotFound {
		return protoerrors.NotFound(op, "session not found")
	}
	if err != nil {
		return protoerrors.Internal(op, err)
	}
	return nil
}

// Touch updates the session's activity timestamp. Called on every
// qualifying request.
func (s *SessionService) Touch(sessionID string) error {
	const op = "touch_session"

	err := s.repo.UpdateLastActivity(sessionID, time.Now())
	if err == repository.ErrNotFound {
		return protoerrors.NotFound(op, "session not found")
	}
	if err != nil {
		return protoerrors.Internal(op, err)
	}
	return nil
}

// IsSessionExpired reports whether the stored session has passed its
// deadline or idle window.
func (s *SessionService) IsSessionExpired(session *models.Session) bool {
	return session.IsExpired(time.Now(), s.idleTimeout)
}

// Destroy removes one session.
func (s *SessionService) Destroy(sessionID string) error {
	const op = "destroy_session"

	err := s.repo.Delete(sessionID)
	if err != nil && err != repository.ErrNotFound {
		return protoerrors.Internal(op, err)
	}
	return nil
}

// DestroyForUser removes every session belonging to a user, returning
// the count. Used on logout.
func (s *SessionService) DestroyForUser(userID int64) (int, error) {
	const op = "destroy_user_sessions"

	count, err := s.repo.DeleteByUserID(userID)
	if err != nil {
		return 0, protoerrors.Internal(op, err)
	}
	return count, nil
}

// ExpireStale marks every overdue session expired and returns them so
// the caller can force-leave their rooms.
func (s *SessionService) ExpireStale(now time.Time) ([]*models.Session, error) {
	const op = "expire_sessions"

	stale, err := s.repo.FindExpired(now, s.idleTimeout)
	if err != nil {
		return nil, protoerrors.Internal(op, err)
	}
	for _, session := range stale {
		if err := s.repo.Expire(session.SessionID); err != nil && err != repository.ErrNotFound {
			return stale, protoerrors.Internal(op, err)
		}
		session.Status = models.SessionExpired
	}
	return stale, nil
}
