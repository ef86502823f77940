package server

import (
	"log"

	"github.com/goatkit/goatlink/internal/protocol"
)

// Handler owns the response logic for one family of message types.
// Handlers run synchronously on the connection's read goroutine, so
// packets from one client are processed in arrival order.
type Handler interface {
	HandleMessage(cctx *ClientContext, pkt *protocol.Packet)
}

// MessageRouter dispatches packets to the handler registered for their
// type. The registry is built once at startup and read-only afterward.
type MessageRouter struct {
	logger   *log.Logger
	handlers map[protocol.MessageType]Handler
}

// NewMessageRouter creates an empty router.
func NewMessageRouter(logger *log.Logger) *MessageRouter {
	return &MessageRouter{
		logger:   logger,
		handlers: make(map[protocol.MessageType]Handler),
	}
}

// Register claims the given message types for a handler.
func (r *MessageRouter) Register(h Handler, types ...protocol.MessageType) {
	for _, t := range types {
		r.handlers[t] = h
	}
}

// Dispatch routes one packet. An unregistered type is logged and
// dropped; it never errors the connection.
func (r *MessageRouter) Dispatch(cctx *ClientContext, pkt *protocol.Packet) {
	metrics().packets.WithLabelValues(pkt.Type.String()).Inc()

	h, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Printf("unhandled message type %s from %s", pkt.Type, cctx.RemoteAddr())
		metrics().unhandled.Inc()
		return
	}
	cctx.TouchActivity()
	h.HandleMessage(cctx, pkt)
}
