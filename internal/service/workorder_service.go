package service

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goatkit/goatlink/internal/models"
	"github.com/goatkit/goatlink/internal/protoerrors"
	"github.com/goatkit/goatlink/internal/repository"
)

const (
	maxTitleLength       = 255
	maxDescriptionLength = 4000
)

// WorkOrderService owns work-order business rules: creation
// validation, the status state machine, assignment, and participant
// maintenance.
type WorkOrderService struct {
	orders  repository.WorkOrderRepository
	users   repository.UserRepository
	counter atomic.Int64
}

// NewWorkOrderService creates a work-order service.
func NewWorkOrderService(orders repository.WorkOrderRepository, users repository.UserRepository) *WorkOrderService {
	return &WorkOrderService{orders: orders, users: users}
}

// nextTicketID generates a human ticket id: WO-YYYYMMDD-<seq>. The
// date part makes ids sortable; the sequence disambiguates within a
// process. The unique index on ticket_id catches collisions across
// restarts.
func (s *WorkOrderService) nextTicketID(now time.Time) string {
	return fmt.Sprintf("WO-%s-%04d", now.Format("20060102"), s.counter.Add(1))
}

// CreateInput carries the fields a client supplies for a new work
// order.
type CreateInput struct {
	Title       string
	Description string
	Priority    string
	Category    string
	AssignedTo  string // expert username, optional
}

// Create validates input, resolves the assignee, inserts the order
// with status open, and auto-adds the creator as a participant.
func (s *WorkOrderService) Create(creatorID int64, in CreateInput) (*models.WorkOrder, error) {
	const op = "create_workorder"

	if in.Title == "" {
		return nil, protoerrors.Validation(op, "title", "title is required")
	}
	if len(in.Title) > maxTitleLength {
		return nil, protoerrors.Validation(op, "title", "title is too long")
	}
	if in.Description == "" {
		return nil, protoerrors.Validation(op, "description", "description is required")
	}
	if len(in.Description) > maxDescriptionLength {
		return nil, protoerrors.Validation(op, "description", "description is too long")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityNormal
	}
	if !models.ValidPriority(in.Priority) {
		return nil, protoerrors.Validation(op, "priority", "unknown priority")
	}

	var assigneeID int64
	if in.AssignedTo != "" {
		expert, err := s.users.GetByUsername(in.AssignedTo)
		if err == repository.ErrNotFound {
			return nil, protoerrors.NotFound(op, "assigned expert not found")
		}
		if err != nil {
			return nil, protoerrors.Internal(op, err)
		}
		if !expert.IsExpert() {
			return nil, protoerrors.Validation(op, "assigned_to", "assignee is not an expert")
		}
		assigneeID = expert.ID
	}

	now := time.Now()
	order := &models.WorkOrder{
		Title:       in.Title,
		Description: in.Description,
		CreatorID:   creatorID,
		AssignedTo:  assigneeID,
		Status:      models.StatusOpen,
		Priority:    in.Priority,
		Category:    in.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// The in-process sequence can collide after a restart; the unique
	// index on ticket_id surfaces that, so retry with a fresh id.
	var createErr error
	for attempt := 0; attempt < 3; attempt++ {
		order.TicketID = s.nextTicketID(now)
		if createErr = s.orders.Create(order); createErr == nil {
			break
		}
	}
	if createErr != nil {
		return nil, protoerrors.Internal(op, createErr)
	}

	creator := &models.Participant{
		WorkOrderID: order.ID,
		UserID:      creatorID,
		Role:        models.RoleCreator,
		JoinedAt:    now,
	}
	if err := s.orders.AddParticipant(creator); err != nil {
		return nil, protoerrors.Internal(op, err)
	}

	return order, nil
}

// GetByTicketID loads a work order by its human id.
func (s *WorkOrderService) GetByTicketID(ticketID string) (*models.WorkOrder, error) {
	const op = "get_workorder"

	if ticketID == "" {
		return nil, protoerrors.Validation(op, "ticket_id", "ticket ID is required")
	}
	order, err := s.orders.GetByTicketID(ticketID)
	if err == repository.ErrNotFound {
		return nil, protoerrors.NotFound(op, "work order not found")
	}
	if err != nil {
		return nil, protoerrors.Internal(op, err)
	}
	return order, nil
}

// ListForUser returns the orders a user created, is assigned to, or
// participates in.
func (s *WorkOrderService) ListForUser(userID int64) ([]*models.WorkOrder, error) {
	const op = "list_workorders"

	orders, err := s.orders.ListByUser(userID)
	if err != nil {
		return nil, protoerrors.Internal(op, err)
	}
	return orders, nil
}

// Assign reassigns a work order to a different expert. The assignee
// must exist, be an expert, and differ from the assigner.
func (s *WorkOrderService) Assign(ticketID string, assigneeID, assignerID int64) (*models.WorkOrder, error) {
	const op = "assign_workorder"

	order, err := s.GetByTicketID(ticketID)
	if err != nil {
		return nil, err
	}
	if assigneeID == assignerID {
		return nil, protoerrors.Validation(op, "assigned_to", "cannot assign a work order to yourself")
	}

	assignee, err := s.users.GetByID(assigneeID)
	if err == repository.ErrNotFound {
		return nil, protoerrors.NotFound(op, "assignee not found")
	}
	if err != nil {
		return nil, protoerrors.Internal(op, err)
	}
	if !assignee.IsExpert() {
		return nil, protoerrors.Validation(op, "assigned_to", "assignee is not an expert")
	}

	if err := s.orders.UpdateAssignee(order.ID, assigneeID); err != nil {
		return nil, protoerrors.Internal(op, err)
	}
	order.AssignedTo = assigneeID
	return order, nil
}

// AssignByUsername resolves the expert by name, as the wire protocol
// addresses assignees, then delegates to Assign.
func (s *WorkOrderService) AssignByUsername(ticketID, username string, assignerID int64) (*models.WorkOrder, error) {
	const op = "assign_workorder"

	assignee, err := s.users.GetByUsername(username)
	if err == repository.ErrNotFound {
		return nil, protoerrors.NotFound(op, "assignee not found")
	}
	if err != nil {
		return nil, protoerrors.Internal(op, err)
	}
	return s.Assign(ticketID, assignee.ID, assignerID)
}

// UpdateStatus enforces the state machine: the target level must
// strictly exceed the current one, and only the creator may close.
func (s *WorkOrderService) UpdateStatus(ticketID, newStatus string, userID int64) (*models.WorkOrder, error) {
	const op = "update_workorder"

	if !models.ValidStatus(newStatus) {
		return nil, protoerrors.Validation(op, "status", "unknown status")
	}

	order, err := s.GetByTicketID(ticketID)
	if err != nil {
		return nil, err
	}

	if newStatus == models.StatusClosed && order.CreatorID != userID {
		return nil, protoerrors.Authorization(op, userID, "only the creator may close a work order")
	}
	if !models.IsValidTransition(order.Status, newStatus) {
		return nil, protoerrors.StateTransition(op, order.Status, newStatus)
	}

	var closedAt *time.Time
	if newStatus == models.StatusClosed {
		now := time.Now()
		closedAt = &now
	}
	if err := s.orders.UpdateStatus(order.ID, newStatus, closedAt); err != nil {
		return nil, protoerrors.Internal(op, err)
	}

	order.Status = newStatus
	order.ClosedAt = closedAt
	return order, nil
}

// Close moves a work order to closed. Creator-only.
func (s *WorkOrderService) Close(ticketID string, userID int64) (*models.WorkOrder, error) {
	const op = "close_workorder"

	order, err := s.GetByTicketID(ticketID)
	if err != nil {
		return nil, err
	}
	if !models.CanClose(order.Status) {
		return nil, protoerrors.StateTransition(op, order.Status, models.StatusClosed)
	}
	return s.UpdateStatus(ticketID, models.StatusClosed, userID)
}

// Delete removes a work order entirely. Restricted to admin accounts;
// all other mutations keep history.
func (s *WorkOrderService) Delete(ticketID string, userID int64) error {
	const op = "delete_workorder"

	user, err := s.users.GetByID(userID)
	if err == repository.ErrNotFound {
		return protoerrors.NotFound(op, "user not found")
	}
	if err != nil {
		return protoerrors.Internal(op, err)
	}
	if !user.IsAdmin() {
		return protoerrors.Authorization(op, userID, "only administrators may delete work orders")
	}

	order, err := s.GetByTicketID(ticketID)
	if err != nil {
		return err
	}
	if err := s.orders.Delete(order.ID); err != nil {
		return protoerrors.Internal(op, err)
	}
	return nil
}

// Join records a user as an active participant of a work order and
// returns the order. Experts join with the expert role, everyone else
// as an operator unless they created the order.
func (s *WorkOrderService) Join(ticketID string, userID int64) (*models.WorkOrder, error) {
	const op = "join_workorder"

	order, err := s.GetByTicketID(ticketID)
	if err != nil {
		return nil, err
	}

	role := models.RoleOperator
	if order.CreatorID == userID {
		role = models.RoleCreator
	} else if user, err := s.users.GetByID(userID); err == nil && user.IsExpert() {
		role = models.RoleExpert
	}

	participant := &models.Participant{
		WorkOrderID: order.ID,
		UserID:      userID,
		Role:        role,
		JoinedAt:    time.Now(),
	}
	if err := s.orders.AddParticipant(participant); err != nil {
		return nil, protoerrors.Internal(op, err)
	}
	return order, nil
}

// Leave stamps the participant's departure.
func (s *WorkOrderService) Leave(ticketID string, userID int64) error {
	const op = "leave_workorder"

	order, err := s.GetByTicketID(ticketID)
	if err != nil {
		return err
	}
	if err := s.orders.MarkParticipantLeft(order.ID, userID, time.Now()); err != nil {
		return protoerrors.Internal(op, err)
	}
	return nil
}

// Participants lists the participant rows of a work order.
func (s *WorkOrderService) Participants(ticketID string) ([]*models.Participant, error) {
	const op = "get_participants"

	order, err := s.GetByTicketID(ticketID)
	if err != nil {
		return nil, err
	}
	participants, err := s.orders.GetParticipants(order.ID)
	if err != nil {
		return nil, protoerrors.Internal(op, err)
	}
	return participants, nil
}
