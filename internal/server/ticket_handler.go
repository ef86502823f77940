package server

import (
	"log"
	"strings"

	"github.com/goatkit/goatlink/internal/constants"
	"github.com/goatkit/goatlink/internal/models"
	"github.com/goatkit/goatlink/internal/protocol"
	"github.com/goatkit/goatlink/internal/service"
)

// TicketHandler owns the work-order family: create, join, leave,
// update, list, delete.
type TicketHandler struct {
	baseHandler
	orders   *service.WorkOrderService
	sessions *service.SessionService
}

// NewTicketHandler creates the ticket handler and registers its
// message types.
func NewTicketHandler(router *MessageRouter, manager *ConnectionManager, logger *log.Logger,
	orders *service.WorkOrderService, sessions *service.SessionService) *TicketHandler {
	h := &TicketHandler{
		baseHandler: baseHandler{manager: manager, logger: logger},
		orders:      orders,
		sessions:    sessions,
	}
	router.Register(h,
		protocol.MsgCreateWorkOrder, protocol.MsgJoinWorkOrder, protocol.MsgLeaveWorkOrder,
		protocol.MsgUpdateWorkOrder, protocol.MsgListWorkOrders, protocol.MsgDeleteWorkOrder)
	return h
}

// HandleMessage dispatches within the ticketing family. Every
// operation requires authentication.
func (h *TicketHandler) HandleMessage(cctx *ClientContext, pkt *protocol.Packet) {
	if !h.checkAuthentication(cctx) {
		return
	}
	h.touchSession(cctx)

	switch pkt.Type {
	case protocol.MsgCreateWorkOrder:
		h.handleCreate(cctx, pkt)
	case protocol.MsgJoinWorkOrder:
		h.handleJoin(cctx, pkt)
	case protocol.MsgLeaveWorkOrder:
		h.handleLeave(cctx)
	case protocol.MsgUpdateWorkOrder:
		h.handleUpdate(cctx, pkt)
	case protocol.MsgListWorkOrders:
		h.handleList(cctx)
	case protocol.MsgDeleteWorkOrder:
		h.handleDelete(cctx, pkt)
	}
}

func (h *TicketHandler) touchSession(cctx *ClientContext) {
	if sessionID := cctx.SessionID(); sessionID != "" {
		if err := h.sessions.Touch(sessionID); err != nil {
			h.logger.Printf("session touch failed for %s: %v", cctx.Username(), err)
		}
	}
}

type createRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
	AssignedTo  string `json:"assigned_to"`
}

func (h *TicketHandler) handleCreate(cctx *ClientContext, pkt *protocol.Packet) {
	var req createRequest
	if err := pkt.DecodeJSON(&req); err != nil {
		h.sendError(cctx, protocol.CodeBadRequest, "malformed create payload")
		return
	}

	order, err := h.orders.Create(cctx.UserID(), service.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Category:    req.Category,
		AssignedTo:  req.AssignedTo,
	})
	if err != nil {
		h.sendBusinessError(cctx, err)
		return
	}

	h.logger.Printf("user %s created work order %s", cctx.Username(), order.TicketID)
	h.sendSuccess(cctx, protocol.MsgCreateWorkOrder, "work order created", map[string]interface{}{
		"ticket_id": order.TicketID,
		"status":    order.Status,
		"priority":  order.Priority,
	})
}

type ticketRequest struct {
	TicketID string `json:"ticket_id"`
}

func (h *TicketHandler) handleJoin(cctx *ClientContext, pkt *protocol.Packet) {
	var req ticketRequest
	if err := pkt.DecodeJSON(&req); err != nil || req.TicketID == "" {
		h.sendError(cctx, protocol.CodeBadRequest, "ticket_id is required")
		return
	}

	order, err := h.orders.Join(req.TicketID, cctx.UserID())
	if err != nil {
		h.sendBusinessError(cctx, err)
		return
	}

	h.manager.JoinRoom(cctx.Conn(), order.TicketID)
	if sessionID := cctx.SessionID(); sessionID != "" {
		if err := h.sessions.RebindRoom(sessionID, order.TicketID); err != nil {
			h.logger.Printf("session rebind failed for %s: %v", cctx.Username(), err)
		}
	}

	h.notifyRoom(cctx, protocol.MsgServerEvent, map[string]interface{}{
		"event":     "participant_joined",
		"ticket_id": order.TicketID,
		"username":  cctx.Username(),
	})

	h.logger.Printf("user %s joined work order %s", cctx.Username(), order.TicketID)
	h.sendSuccess(cctx, protocol.MsgJoinWorkOrder, "joined work order", map[string]interface{}{
		"ticket_id": order.TicketID,
		"room_id":   order.TicketID,
		"status":    order.Status,
		"title":     order.Title,
	})
}

func (h *TicketHandler) handleLeave(cctx *ClientContext) {
	roomID := cctx.CurrentRoomID()
	if roomID == "" || strings.HasPrefix(roomID, constants.UserRoomPrefix) {
		h.sendError(cctx, protocol.CodeBadRequest, "not in a work order room")
		return
	}

	if err := h.orders.Leave(roomID, cctx.UserID()); err != nil {
		h.sendBusinessError(cctx, err)
		return
	}

	h.notifyRoom(cctx, protocol.MsgServerEvent, map[string]interface{}{
		"event":     "participant_left",
		"ticket_id": roomID,
		"username":  cctx.Username(),
	})

	// Fall back to the synthetic per-user room.
	userRoom := service.UserRoom(cctx.UserID())
	h.manager.JoinRoom(cctx.Conn(), userRoom)
	if sessionID := cctx.SessionID(); sessionID != "" {
		if err := h.sessions.RebindRoom(sessionID, userRoom); err != nil {
			h.logger.Printf("session rebind failed for %s: %v", cctx.Username(), err)
		}
	}

	h.logger.Printf("user %s left work order %s", cctx.Username(), roomID)
	h.sendSuccess(cctx, protocol.MsgLeaveWorkOrder, "left work order", map[string]interface{}{
		"ticket_id": roomID,
	})
}

// updateRequest addresses the assignee by username, the same
// convention createRequest uses.
type updateRequest struct {
	TicketID   string `json:"ticket_id"`
	Status     string `json:"status"`
	AssignedTo string `json:"assigned_to"`
}

func (h *TicketHandler) handleUpdate(cctx *ClientContext, pkt *protocol.Packet) {
	var req updateRequest
	if err := pkt.DecodeJSON(&req); err != nil {
		h.sendError(cctx, protocol.CodeBadRequest, "malformed update payload")
		return
	}
	if req.TicketID == "" {
		req.TicketID = cctx.CurrentRoomID()
	}
	if req.TicketID == "" || strings.HasPrefix(req.TicketID, constants.UserRoomPrefix) {
		h.sendError(cctx, protocol.CodeBadRequest, "ticket_id is required")
		return
	}

	switch {
	case req.AssignedTo != "":
		order, err := h.orders.AssignByUsername(req.TicketID, req.AssignedTo, cctx.UserID())
		if err != nil {
			h.sendBusinessError(cctx, err)
			return
		}
		h.broadcastTicketUpdate(cctx, order)
		h.sendSuccess(cctx, protocol.MsgUpdateWorkOrder, "work order assigned", map[string]interface{}{
			"ticket_id":   order.TicketID,
			"assigned_to": req.AssignedTo,
		})

	case req.Status != "":
		var order *models.WorkOrder
		var err error
		if req.Status == models.StatusClosed {
			order, err = h.orders.Close(req.TicketID, cctx.UserID())
		} else {
			order, err = h.orders.UpdateStatus(req.TicketID, req.Status, cctx.UserID())
		}
		if err != nil {
			h.sendBusinessError(cctx, err)
			return
		}
		h.broadcastTicketUpdate(cctx, order)
		h.sendSuccess(cctx, protocol.MsgUpdateWorkOrder, "status updated", map[string]interface{}{
			"ticket_id": order.TicketID,
			"status":    order.Status,
		})

	default:
		h.sendError(cctx, protocol.CodeBadRequest, "status or assigned_to is required")
	}
}

func (h *TicketHandler) broadcastTicketUpdate(cctx *ClientContext, order *models.WorkOrder) {
	if cctx.CurrentRoomID() != order.TicketID {
		return
	}
	h.notifyRoom(cctx, protocol.MsgNotification, map[string]interface{}{
		"event":     "workorder_updated",
		"ticket_id": order.TicketID,
		"status":    order.Status,
	})
}

func (h *TicketHandler) handleList(cctx *ClientContext) {
	orders, err := h.orders.ListForUser(cctx.UserID())
	if err != nil {
		h.sendBusinessError(cctx, err)
		return
	}

	items := make([]map[string]interface{}, 0, len(orders))
	for _, order := range orders {
		items = append(items, map[string]interface{}{
			"ticket_id":   order.TicketID,
			"title":       order.Title,
			"status":      order.Status,
			"priority":    order.Priority,
			"category":    order.Category,
			"created_at":  order.CreatedAt,
			"assigned_to": order.AssignedTo,
		})
	}
	h.sendSuccess(cctx, protocol.MsgListWorkOrders, "ok", map[string]interface{}{
		"work_orders": items,
	})
}

func (h *TicketHandler) handleDelete(cctx *ClientContext, pkt *protocol.Packet) {
	var req ticketRequest
	if err := pkt.DecodeJSON(&req); err != nil || req.TicketID == "" {
		h.sendError(cctx, protocol.CodeBadRequest, "ticket_id is required")
		return
	}

	if err := h.orders.Delete(req.TicketID, cctx.UserID()); err != nil {
		h.sendBusinessError(cctx, err)
		return
	}

	h.logger.Printf("user %s deleted work order %s", cctx.Username(), req.TicketID)
	h.sendSuccess(cctx, protocol.MsgDeleteWorkOrder, "work order deleted", map[string]interface{}{
		"ticket_id": req.TicketID,
	})
}
