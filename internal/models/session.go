package models

import "time"

// Session status constants.
const (
	SessionActive   = "active"
	SessionInactive = "inactive"
	SessionExpired  = "expired"
)

// Session is a server-tracked (user, room) binding, distinct from the
// raw TCP connection. Created on login bound to a synthetic per-user
// room, rebound to the ticket room on join, expired by the sweeper.
type Session struct {
	SessionID    string    `json:"session_id"`
	UserID       int64     `json:"user_id"`
	RoomID       string    `json:"room_id"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsExpired reports whether the session is past its absolute deadline
// or has been idle longer than idleTimeout.
func (s *Session) IsExpired(now time.Time, idleTimeout time.Duration) bool {
	if s.Status == SessionExpired {
		return true
	}
	if now.After(s.ExpiresAt) {
		return true
	}
	return idleTimeout > 0 && now.Sub(s.LastActivity) > idleTimeout
}
