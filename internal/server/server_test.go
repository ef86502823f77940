package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goatkit/goatlink/internal/protocol"
	"github.com/goatkit/goatlink/internal/repository"
	"github.com/goatkit/goatlink/internal/service"
)

// mockConn is a net.Conn that records everything written to it.
// Deterministic, unlike net.Pipe, which needs a reader on the far end.
type mockConn struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	addr   string
	closed bool
}

func newMockConn(addr string) *mockConn {
	return &mockConn{addr: addr}
}

func (c *mockConn) Read(b []byte) (int, error) { return 0, io.EOF }

func (c *mockConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	return c.buf.Write(b)
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type mockAddr string

func (a mockAddr) Network() string { return "tcp" }
func (a mockAddr) String() string  { return string(a) }

func (c *mockConn) LocalAddr() net.Addr                { return mockAddr("local") }
func (c *mockConn) RemoteAddr() net.Addr               { return mockAddr(c.addr) }
func (c *mockConn) SetDeadline(t time.Time) error      { return nil }
func (c *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *mockConn) SetWriteDeadline(t time.Time) error { return nil }

// takePackets drains and decodes every complete packet written to the
// connection so far.
func (c *mockConn) takePackets(t *testing.T) []*protocol.Packet {
	t.Helper()
	c.mu.Lock()
	data := make([]byte, c.buf.Len())
	copy(data, c.buf.Bytes())
	c.buf.Reset()
	c.mu.Unlock()

	var dec protocol.Decoder
	packets, err := dec.Drain(data)
	require.NoError(t, err)
	require.Zero(t, dec.Buffered(), "partial frame left on mock connection")
	return packets
}

// lastResponse drains the connection and returns the final packet's
// envelope.
func (c *mockConn) lastResponse(t *testing.T) (protocol.MessageType, protocol.Response) {
	t.Helper()
	packets := c.takePackets(t)
	require.NotEmpty(t, packets, "expected at least one response packet")
	pkt := packets[len(packets)-1]
	var resp protocol.Response
	require.NoError(t, pkt.DecodeJSON(&resp))
	return pkt.Type, resp
}

// testRig wires the full handler stack against memory repositories.
type testRig struct {
	manager  *ConnectionManager
	router   *MessageRouter
	users    *repository.MemoryUserRepository
	sessRepo *repository.MemorySessionRepository
	auth     *service.AuthService
	sessions *service.SessionService
	orders   *service.WorkOrderService
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	logger := log.New(io.Discard, "", 0)

	users := repository.NewMemoryUserRepository()
	sessRepo := repository.NewMemorySessionRepository()
	orderRepo := repository.NewMemoryWorkOrderRepository()

	auth := service.NewAuthService(users)
	sessions := service.NewSessionService(sessRepo, 0, 0)
	orders := service.NewWorkOrderService(orderRepo, users)

	manager := NewConnectionManager(logger, 2)
	t.Cleanup(manager.Shutdown)

	router := NewMessageRouter(logger)
	NewIdentityHandler(router, manager, logger, auth, sessions)
	NewTicketHandler(router, manager, logger, orders, sessions)
	NewStreamHandler(router, manager, logger, sessions)

	for _, u := range []struct{ username, userType string }{
		{"alice", "operator"},
		{"bob", "expert"},
		{"root", "admin"},
	} {
		_, err := auth.Register(u.username, "hunter2pass", u.username+" test", u.userType)
		require.NoError(t, err)
	}

	return &testRig{
		manager:  manager,
		router:   router,
		users:    users,
		sessRepo: sessRepo,
		auth:     auth,
		sessions: sessions,
		orders:   orders,
	}
}

// connect registers a fresh mock connection with the manager.
func (r *testRig) connect(t *testing.T, addr string) (*mockConn, *ClientContext) {
	t.Helper()
	conn := newMockConn(addr)
	cctx := r.manager.Register(conn)
	return conn, cctx
}

// send dispatches one packet with a JSON payload.
func (r *testRig) send(t *testing.T, cctx *ClientContext, msgType protocol.MessageType, payload interface{}) {
	t.Helper()
	pkt := &protocol.Packet{Type: msgType}
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		pkt.JSON = b
	}
	r.router.Dispatch(cctx, pkt)
}

// login logs the connection in and returns the login response data.
func (r *testRig) login(t *testing.T, conn *mockConn, cctx *ClientContext, username string) map[string]interface{} {
	t.Helper()
	r.send(t, cctx, protocol.MsgLogin, map[string]string{
		"username": username,
		"password": "hunter2pass",
	})
	msgType, resp := conn.lastResponse(t)
	require.Equal(t, protocol.MsgLogin, msgType)
	require.True(t, resp.OK(), "login failed: %s", resp.Message)
	return resp.Data
}
