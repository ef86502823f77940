package server

import (
	"log"

	"github.com/goatkit/goatlink/internal/protocol"
	"github.com/goatkit/goatlink/internal/protoerrors"
)

// baseHandler carries the guards and response helpers every protocol
// handler shares. The auth and room checks are the only gates allowed
// to short-circuit before business logic runs.
type baseHandler struct {
	manager *ConnectionManager
	logger  *log.Logger
}

// checkAuthentication sends a 403 and aborts handling when the
// connection has not logged in.
func (h *baseHandler) checkAuthentication(cctx *ClientContext) bool {
	if cctx.IsAuthenticated() {
		return true
	}
	h.sendError(cctx, protocol.CodeForbidden, "not authenticated")
	return false
}

// checkRoomMembership sends a 403 and aborts handling when the
// connection is not in a room. Required before chat/media/control
// types.
func (h *baseHandler) checkRoomMembership(cctx *ClientContext) bool {
	if cctx.CurrentRoomID() != "" {
		return true
	}
	h.sendError(cctx, protocol.CodeForbidden, "not in a room")
	return false
}

// sendSuccess writes the canonical success envelope, with data merged
// into the envelope object.
func (h *baseHandler) sendSuccess(cctx *ClientContext, msgType protocol.MessageType, message string, data map[string]interface{}) {
	resp := protocol.Response{Code: protocol.CodeOK, Message: message, Data: data}
	wire, err := protocol.EncodeMessage(msgType, resp, nil)
	if err != nil {
		h.logger.Printf("failed to encode %s response: %v", msgType, err)
		return
	}
	h.manager.SendToConn(cctx.Conn(), wire)
}

// sendError writes an error envelope on the ERROR message type.
func (h *baseHandler) sendError(cctx *ClientContext, code int, message string) {
	resp := protocol.Response{Code: code, Message: message}
	wire, err := protocol.EncodeMessage(protocol.MsgError, resp, nil)
	if err != nil {
		h.logger.Printf("failed to encode error response: %v", err)
		return
	}
	h.manager.SendToConn(cctx.Conn(), wire)
}

// sendBusinessError converts a service-layer error into its wire code
// and logs the internal detail server-side.
func (h *baseHandler) sendBusinessError(cctx *ClientContext, err error) {
	code := protoerrors.WireCode(err)
	if code == protocol.CodeInternal {
		h.logger.Printf("internal error for %s: %v", cctx.RemoteAddr(), err)
	}
	h.sendError(cctx, code, protoerrors.WireMessage(err))
}

// notifyRoom broadcasts a server event to the connection's room,
// excluding the connection itself.
func (h *baseHandler) notifyRoom(cctx *ClientContext, msgType protocol.MessageType, data map[string]interface{}) {
	roomID := cctx.CurrentRoomID()
	if roomID == "" {
		return
	}
	wire, err := protocol.EncodeMessage(msgType, protocol.Response{
		Code:    protocol.CodeOK,
		Message: "event",
		Data:    data,
	}, nil)
	if err != nil {
		h.logger.Printf("failed to encode %s event: %v", msgType, err)
		return
	}
	h.manager.BroadcastToRoom(roomID, wire, cctx.Conn())
}
