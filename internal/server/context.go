// Package server implements the TCP surface of goatlink: the acceptor,
// per-connection state, the message router, the protocol handlers, and
// the room-based connection manager the handlers publish through.
package server

import (
	"net"
	"sync"
	"time"
)

// ClientContext is the per-connection mutable state: identity once the
// login handler sets it, the current room, and the bound session. The
// connection's read goroutine and the sweeper both touch it, so access
// goes through the accessors.
type ClientContext struct {
	conn net.Conn

	mu              sync.RWMutex
	username        string
	userID          int64
	userType        string
	isAuthenticated bool
	currentRoomID   string
	sessionID       string
	connectedAt     time.Time
	lastActivity    time.Time
}

func newClientContext(conn net.Conn) *ClientContext {
	now := time.Now()
	return &ClientContext{conn: conn, connectedAt: now, lastActivity: now}
}

// Conn returns the underlying connection.
func (c *ClientContext) Conn() net.Conn {
	return c.conn
}

// RemoteAddr returns the peer address for logging.
func (c *ClientContext) RemoteAddr() string {
	if c.conn == nil {
		return "?"
	}
	return c.conn.RemoteAddr().String()
}

// SetIdentity marks the connection authenticated. Called by the login
// handler on success.
func (c *ClientContext) SetIdentity(userID int64, username, userType, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.username = username
	c.userType = userType
	c.sessionID = sessionID
	c.isAuthenticated = true
}

// ClearIdentity revokes authentication. Called on logout.
func (c *ClientContext) ClearIdentity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = ""
	c.userID = 0
	c.userType = ""
	c.sessionID = ""
	c.isAuthenticated = false
}

// IsAuthenticated reports whether login has succeeded on this
// connection.
func (c *ClientContext) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isAuthenticated
}

// Username returns the authenticated username, or "".
func (c *ClientContext) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// UserID returns the authenticated user id, or 0.
func (c *ClientContext) UserID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// UserType returns the authenticated account type, or "".
func (c *ClientContext) UserType() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userType
}

// SessionID returns the bound session id, or "".
func (c *ClientContext) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// CurrentRoomID returns the room this connection is in, or "".
func (c *ClientContext) CurrentRoomID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentRoomID
}

func (c *ClientContext) setRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentRoomID = roomID
}

// TouchActivity stamps the last packet time.
func (c *ClientContext) TouchActivity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = time.Now()
}

// LastActivity returns the time of the last packet on this connection.
func (c *ClientContext) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity
}
