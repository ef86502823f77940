package server

import (
	"log"

	"github.com/goatkit/goatlink/internal/protocol"
	"github.com/goatkit/goatlink/internal/service"
)

// StreamHandler relays chat, telemetry, file and media traffic to the
// other members of the sender's room. Payloads are forwarded opaque;
// the server never inspects frame contents.
type StreamHandler struct {
	baseHandler
	sessions *service.SessionService
}

// NewStreamHandler creates the stream handler and registers the relay
// message types.
func NewStreamHandler(router *MessageRouter, manager *ConnectionManager, logger *log.Logger,
	sessions *service.SessionService) *StreamHandler {
	h := &StreamHandler{
		baseHandler: baseHandler{manager: manager, logger: logger},
		sessions:    sessions,
	}
	router.Register(h,
		protocol.MsgText, protocol.MsgDeviceData, protocol.MsgFileTransfer,
		protocol.MsgScreenshot, protocol.MsgVideoFrame, protocol.MsgAudioFrame,
		protocol.MsgVideoControl, protocol.MsgAudioControl, protocol.MsgControl,
		protocol.MsgDeviceControl, protocol.MsgSystemControl)
	return h
}

// HandleMessage relays the packet to the sender's room. The sender
// itself is always excluded from the relay.
func (h *StreamHandler) HandleMessage(cctx *ClientContext, pkt *protocol.Packet) {
	if !h.checkAuthentication(cctx) {
		return
	}
	if !h.checkRoomMembership(cctx) {
		return
	}

	switch pkt.Type {
	case protocol.MsgText, protocol.MsgDeviceData, protocol.MsgFileTransfer:
		if len(pkt.JSON) == 0 {
			h.sendError(cctx, protocol.CodeBadRequest, "payload is required")
			return
		}
	case protocol.MsgScreenshot, protocol.MsgVideoFrame, protocol.MsgAudioFrame:
		if len(pkt.Binary) == 0 {
			h.sendError(cctx, protocol.CodeBadRequest, "media frame requires a binary segment")
			return
		}
	}

	if sessionID := cctx.SessionID(); sessionID != "" {
		if err := h.sessions.Touch(sessionID); err != nil {
			h.logger.Printf("session touch failed for %s: %v", cctx.Username(), err)
		}
	}

	data := protocol.Encode(pkt)
	roomID := cctx.CurrentRoomID()
	if pkt.Type.IsMediaFrame() {
		h.manager.ForwardToRoom(roomID, data, cctx.Conn())
	} else {
		h.manager.BroadcastToRoom(roomID, data, cctx.Conn())
	}
}
