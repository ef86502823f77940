package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"

	"github.com/goatkit/goatlink/internal/constants"
	"github.com/goatkit/goatlink/internal/protocol"
	"github.com/goatkit/goatlink/internal/service"
)

const readBufferSize = 64 * 1024

// Server accepts TCP connections and runs a read loop per connection,
// feeding decoded packets to the router.
type Server struct {
	addr     string
	logger   *log.Logger
	manager  *ConnectionManager
	router   *MessageRouter
	orders   *service.WorkOrderService
	sessions *service.SessionService

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer wires the acceptor to the manager, router and services.
func NewServer(addr string, logger *log.Logger, manager *ConnectionManager,
	router *MessageRouter, orders *service.WorkOrderService, sessions *service.SessionService) *Server {
	return &Server{
		addr:     addr,
		logger:   logger,
		manager:  manager,
		router:   router,
		orders:   orders,
		sessions: sessions,
	}
}

// Listen binds the listening socket without accepting yet.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Printf("[CONN] listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs the accept loop until the context is cancelled or the
// listener fails. Listen must have been called first.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server not listening")
	}

	go func() {
		<-ctx.Done()
		ln.Close()
		// Unblock every per-connection read loop. The forward pool
		// stays up until those loops have exited.
		s.manager.CloseConnections()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Printf("[CONN] accept failed: %v", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}

	s.wg.Wait()
	s.manager.Shutdown()
	return nil
}

func (s *Server) serveConn(conn net.Conn) {
	cctx := s.manager.Register(conn)
	s.logger.Printf("[CONN] connected %s", cctx.RemoteAddr())

	defer s.cleanupConn(cctx)

	var dec protocol.Decoder
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			packets, derr := dec.Drain(buf[:n])
			for _, pkt := range packets {
				s.router.Dispatch(cctx, pkt)
			}
			if derr != nil {
				s.logger.Printf("[CONN] framing error from %s: %v", cctx.RemoteAddr(), derr)
				return
			}
		}
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				s.logger.Printf("[CONN] read failed from %s: %v", cctx.RemoteAddr(), err)
			}
			return
		}
	}
}

// cleanupConn tears down everything attached to a dead connection:
// presence notification, participant record, session row, manager
// registration.
func (s *Server) cleanupConn(cctx *ClientContext) {
	conn := cctx.Conn()

	if cctx.IsAuthenticated() {
		userID := cctx.UserID()
		username := cctx.Username()

		if roomID := cctx.CurrentRoomID(); roomID != "" && !strings.HasPrefix(roomID, constants.UserRoomPrefix) {
			if data, err := protocol.EncodeMessage(protocol.MsgServerEvent, map[string]interface{}{
				"event":     "participant_left",
				"ticket_id": roomID,
				"username":  username,
			}, nil); err == nil {
				s.manager.BroadcastToRoom(roomID, data, conn)
			}
			if err := s.orders.Leave(roomID, userID); err != nil {
				s.logger.Printf("[CONN] leave on disconnect failed for %s: %v", username, err)
			}
		}

		if _, err := s.sessions.DestroyForUser(userID); err != nil {
			s.logger.Printf("[CONN] session teardown failed for %s: %v", username, err)
		}
		s.manager.UnbindUser(userID, username)
		s.logger.Printf("[CONN] disconnected %s (user %s)", cctx.RemoteAddr(), username)
	} else {
		s.logger.Printf("[CONN] disconnected %s", cctx.RemoteAddr())
	}

	s.manager.Unregister(conn)
	conn.Close()
}
