package server

import (
	"log"

	"github.com/goatkit/goatlink/internal/protocol"
	"github.com/goatkit/goatlink/internal/service"
)

// IdentityHandler owns the login/register/logout/heartbeat family.
type IdentityHandler struct {
	baseHandler
	auth     *service.AuthService
	sessions *service.SessionService
}

// NewIdentityHandler creates the identity handler and registers its
// message types.
func NewIdentityHandler(router *MessageRouter, manager *ConnectionManager, logger *log.Logger,
	auth *service.AuthService, sessions *service.SessionService) *IdentityHandler {
	h := &IdentityHandler{
		baseHandler: baseHandler{manager: manager, logger: logger},
		auth:        auth,
		sessions:    sessions,
	}
	router.Register(h,
		protocol.MsgLogin, protocol.MsgRegister, protocol.MsgLogout, protocol.MsgHeartbeat)
	return h
}

// HandleMessage dispatches within the identity family.
func (h *IdentityHandler) HandleMessage(cctx *ClientContext, pkt *protocol.Packet) {
	switch pkt.Type {
	case protocol.MsgLogin:
		h.handleLogin(cctx, pkt)
	case protocol.MsgRegister:
		h.handleRegister(cctx, pkt)
	case protocol.MsgLogout:
		h.handleLogout(cctx)
	case protocol.MsgHeartbeat:
		h.handleHeartbeat(cctx)
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *IdentityHandler) handleLogin(cctx *ClientContext, pkt *protocol.Packet) {
	if cctx.IsAuthenticated() {
		h.sendError(cctx, protocol.CodeConflict, "already logged in")
		return
	}

	var req loginRequest
	if err := pkt.DecodeJSON(&req); err != nil {
		h.sendError(cctx, protocol.CodeBadRequest, "malformed login payload")
		return
	}

	user, err := h.auth.Authenticate(req.Username, req.Password)
	if err != nil {
		h.sendBusinessError(cctx, err)
		return
	}

	session, err := h.sessions.Create(user.ID)
	if err != nil {
		h.sendBusinessError(cctx, err)
		return
	}

	cctx.SetIdentity(user.ID, user.Username, user.UserType, session.SessionID)
	h.manager.BindUser(cctx.Conn(), user.ID, user.Username)
	h.manager.JoinRoom(cctx.Conn(), session.RoomID)

	h.logger.Printf("user %s logged in from %s", user.Username, cctx.RemoteAddr())
	h.sendSuccess(cctx, protocol.MsgLogin, "login successful", map[string]interface{}{
		"user_id":    user.ID,
		"username":   user.Username,
		"user_type":  user.UserType,
		"session_id": session.SessionID,
		"room_id":    session.RoomID,
	})
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	UserType string `json:"user_type"`
}

func (h *IdentityHandler) handleRegister(cctx *ClientContext, pkt *protocol.Packet) {
	var req registerRequest
	if err := pkt.DecodeJSON(&req); err != nil {
		h.sendError(cctx, protocol.CodeBadRequest, "malformed register payload")
		return
	}

	user, err := h.auth.Register(req.Username, req.Password, req.FullName, req.UserType)
	if err != nil {
		h.sendBusinessError(cctx, err)
		return
	}

	h.logger.Printf("registered user %s (%s)", user.Username, user.UserType)
	h.sendSuccess(cctx, protocol.MsgRegister, "registration successful", map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
	})
}

func (h *IdentityHandler) handleLogout(cctx *ClientContext) {
	if !h.checkAuthentication(cctx) {
		return
	}

	userID := cctx.UserID()
	username := cctx.Username()

	if _, err := h.sessions.DestroyForUser(userID); err != nil {
		h.logger.Printf("failed to destroy sessions for %s: %v", username, err)
	}
	h.manager.LeaveRoom(cctx.Conn())
	h.manager.UnbindUser(userID, username)
	cctx.ClearIdentity()

	h.logger.Printf("user %s logged out", username)
	h.sendSuccess(cctx, protocol.MsgLogout, "logout successful", nil)
}

func (h *IdentityHandler) handleHeartbeat(cctx *ClientContext) {
	if !h.checkAuthentication(cctx) {
		return
	}

	if sessionID := cctx.SessionID(); sessionID != "" {
		if err := h.sessions.Touch(sessionID); err != nil {
			h.logger.Printf("heartbeat touch failed for %s: %v", cctx.Username(), err)
		}
	}
	h.sendSuccess(cctx, protocol.MsgHeartbeat, "ok", nil)
}
