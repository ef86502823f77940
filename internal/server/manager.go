package server

import (
	"log"
	"net"
	"sync"
	"time"
)

const writeTimeout = 10 * time.Second

// ConnectionManager is the single authority over who is connected,
// which room they are in, and how to reach them. All room and index
// mutation goes through it; handlers never touch the maps directly.
type ConnectionManager struct {
	logger    *log.Logger
	forwarder *forwarder

	mu         sync.RWMutex
	conns      map[net.Conn]*ClientContext
	rooms      map[string]map[net.Conn]struct{}
	byUsername map[string]net.Conn
	byUserID   map[int64]net.Conn
}

// NewConnectionManager creates a connection manager with the given
// number of media-forward workers.
func NewConnectionManager(logger *log.Logger, forwardWorkers int) *ConnectionManager {
	m := &ConnectionManager{
		logger:     logger,
		conns:      make(map[net.Conn]*ClientContext),
		rooms:      make(map[string]map[net.Conn]struct{}),
		byUsername: make(map[string]net.Conn),
		byUserID:   make(map[int64]net.Conn),
	}
	m.forwarder = newForwarder(logger, forwardWorkers)
	return m
}

// Register allocates a ClientContext for a new connection.
func (m *ConnectionManager) Register(conn net.Conn) *ClientContext {
	cctx := newClientContext(conn)

	m.mu.Lock()
	m.conns[conn] = cctx
	open := len(m.conns)
	m.mu.Unlock()

	metrics().connectionsOpened.Inc()
	metrics().connectionsOpen.Set(float64(open))
	return cctx
}

// Unregister removes a connection: it leaves its room, drops out of
// the user indexes, and frees the context. Safe to call twice.
func (m *ConnectionManager) Unregister(conn net.Conn) {
	m.mu.Lock()
	cctx, ok := m.conns[conn]
	if !ok {
		m.mu.Unlock()
		return
	}
	m.leaveRoomLocked(conn, cctx)
	if username := cctx.Username(); username != "" {
		delete(m.byUsername, username)
	}
	if userID := cctx.UserID(); userID != 0 {
		delete(m.byUserID, userID)
	}
	delete(m.conns, conn)
	open := len(m.conns)
	m.mu.Unlock()

	metrics().connectionsOpen.Set(float64(open))
}

// Context returns the ClientContext for a live connection.
func (m *ConnectionManager) Context(conn net.Conn) (*ClientContext, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cctx, ok := m.conns[conn]
	return cctx, ok
}

// BindUser registers the connection under its authenticated identity so
// point-to-point sends by username work.
func (m *ConnectionManager) BindUser(conn net.Conn, userID int64, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byUsername[username] = conn
	m.byUserID[userID] = conn
}

// UnbindUser removes the connection from the user indexes on logout.
func (m *ConnectionManager) UnbindUser(userID int64, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byUsername, username)
	delete(m.byUserID, userID)
}

// ConnByUsername resolves a username to its live connection.
func (m *ConnectionManager) ConnByUsername(username string) (net.Conn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.byUsername[username]
	return conn, ok
}

// ConnByUserID resolves a user id to its live connection.
func (m *ConnectionManager) ConnByUserID(userID int64) (net.Conn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.byUserID[userID]
	return conn, ok
}

// JoinRoom puts the connection into roomID, leaving any prior room
// first. A connection is in at most one room at a time.
func (m *ConnectionManager) JoinRoom(conn net.Conn, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cctx, ok := m.conns[conn]
	if !ok {
		return
	}
	m.leaveRoomLocked(conn, cctx)

	members, ok := m.rooms[roomID]
	if !ok {
		members = make(map[net.Conn]struct{})
		m.rooms[roomID] = members
	}
	members[conn] = struct{}{}
	cctx.setRoom(roomID)
}

// LeaveRoom removes the connection from its current room; an empty
// room is dropped.
func (m *ConnectionManager) LeaveRoom(conn net.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cctx, ok := m.conns[conn]; ok {
		m.leaveRoomLocked(conn, cctx)
	}
}

func (m *ConnectionManager) leaveRoomLocked(conn net.Conn, cctx *ClientContext) {
	roomID := cctx.CurrentRoomID()
	if roomID == "" {
		return
	}
	if members, ok := m.rooms[roomID]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(m.rooms, roomID)
		}
	}
	cctx.setRoom("")
}

// RoomMembers returns a snapshot of the connections in a room.
func (m *ConnectionManager) RoomMembers(roomID string) []net.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := make([]net.Conn, 0, len(m.rooms[roomID]))
	for conn := range m.rooms[roomID] {
		members = append(members, conn)
	}
	return members
}

// RoomSize returns the current member count of a room.
func (m *ConnectionManager) RoomSize(roomID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[roomID])
}

// BroadcastToRoom writes data to every member of the room except the
// excluded connection. Write failures are logged, never fatal.
func (m *ConnectionManager) BroadcastToRoom(roomID string, data []byte, except net.Conn) {
	for _, conn := range m.RoomMembers(roomID) {
		if conn == except {
			continue
		}
		m.writeConn(conn, data)
	}
	metrics().broadcasts.Inc()
}

// ForwardToRoom resolves the room's members and hands the write to the
// media forward pool so a slow receiver cannot stall the sender's read
// loop. The pool operates on the resolved list only; it never touches
// the room maps.
func (m *ConnectionManager) ForwardToRoom(roomID string, data []byte, except net.Conn) {
	members := m.RoomMembers(roomID)
	dests := members[:0]
	for _, conn := range members {
		if conn != except {
			dests = append(dests, conn)
		}
	}
	if len(dests) == 0 {
		return
	}
	m.forwarder.submit(dests, data)
}

// SendToConn delivers data to one connection.
func (m *ConnectionManager) SendToConn(conn net.Conn, data []byte) {
	m.writeConn(conn, data)
}

// SendToUsername delivers data to the named user's connection. A
// lookup miss is a no-op.
func (m *ConnectionManager) SendToUsername(username string, data []byte) {
	if conn, ok := m.ConnByUsername(username); ok {
		m.writeConn(conn, data)
	}
}

// CloseConnections closes every registered connection, which unblocks
// their read loops. The forward pool keeps running so in-flight frames
// still drain; stop it with Shutdown once the read loops have exited.
func (m *ConnectionManager) CloseConnections() {
	m.mu.Lock()
	conns := make([]net.Conn, 0, len(m.conns))
	for conn := range m.conns {
		conns = append(conns, conn)
	}
	m.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

// Shutdown closes every connection and then stops the forward pool.
// Connections go first: a read loop that is still dispatching must
// never find the pool's queue closed under it.
func (m *ConnectionManager) Shutdown() {
	m.CloseConnections()
	m.forwarder.stop()
}

// writeConn performs one bounded write. Short or failed writes are
// logged and counted; delivery is best-effort at this layer.
func (m *ConnectionManager) writeConn(conn net.Conn, data []byte) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	n, err := conn.Write(data)
	if err != nil {
		m.logger.Printf("write to %s failed after %d/%d bytes: %v",
			conn.RemoteAddr(), n, len(data), err)
		metrics().writeErrors.Inc()
		return
	}
	if n < len(data) {
		m.logger.Printf("short write to %s: %d/%d bytes", conn.RemoteAddr(), n, len(data))
		metrics().writeErrors.Inc()
	}
}
