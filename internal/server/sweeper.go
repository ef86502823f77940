package server

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/goatkit/goatlink/internal/constants"
	"github.com/goatkit/goatlink/internal/protocol"
	"github.com/goatkit/goatlink/internal/service"
)

// SessionSweeper periodically expires idle sessions and kicks their
// connections out of whatever room they occupied.
type SessionSweeper struct {
	logger   *log.Logger
	manager  *ConnectionManager
	orders   *service.WorkOrderService
	sessions *service.SessionService
	cron     *cron.Cron
}

// NewSessionSweeper builds a sweeper that runs every interval.
func NewSessionSweeper(logger *log.Logger, manager *ConnectionManager,
	orders *service.WorkOrderService, sessions *service.SessionService) *SessionSweeper {
	return &SessionSweeper{
		logger:   logger,
		manager:  manager,
		orders:   orders,
		sessions: sessions,
	}
}

// Start schedules the sweep. Stop must be called on shutdown.
func (s *SessionSweeper) Start(interval time.Duration) error {
	if interval <= 0 {
		interval = constants.DefaultSweepInterval
	}
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), s.Sweep); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	c.Start()
	s.cron = c
	s.logger.Printf("[SWEEP] session sweep scheduled every %s", interval)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *SessionSweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep expires every stale session and tears down the state its
// connection held. Safe to call directly, which the tests do.
func (s *SessionSweeper) Sweep() {
	stale, err := s.sessions.ExpireStale(time.Now())
	if err != nil {
		s.logger.Printf("[SWEEP] expiry scan failed: %v", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	for _, session := range stale {
		s.evict(session.UserID, session.RoomID)
	}
	s.logger.Printf("[SWEEP] expired %d stale session(s)", len(stale))
}

func (s *SessionSweeper) evict(userID int64, roomID string) {
	conn, ok := s.manager.ConnByUserID(userID)
	if !ok {
		return
	}
	cctx, ok := s.manager.Context(conn)
	if !ok {
		return
	}
	username := cctx.Username()

	if roomID != "" && !strings.HasPrefix(roomID, constants.UserRoomPrefix) {
		if data, err := protocol.EncodeMessage(protocol.MsgServerEvent, map[string]interface{}{
			"event":     "participant_left",
			"ticket_id": roomID,
			"username":  username,
		}, nil); err == nil {
			s.manager.BroadcastToRoom(roomID, data, conn)
		}
		if err := s.orders.Leave(roomID, userID); err != nil {
			s.logger.Printf("[SWEEP] leave failed for %s: %v", username, err)
		}
	}
	s.manager.LeaveRoom(conn)

	if data, err := protocol.EncodeMessage(protocol.MsgNotification, map[string]interface{}{
		"event":  "session_expired",
		"reason": "idle timeout",
	}, nil); err == nil {
		s.manager.SendToConn(conn, data)
	}

	s.manager.UnbindUser(userID, username)
	cctx.ClearIdentity()
	s.logger.Printf("[SWEEP] expired session for user %s", username)
}
