package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goatkit/goatlink/internal/database"
	"github.com/goatkit/goatlink/internal/models"
)

// WorkOrderRepository defines the interface for work-order and
// participant operations.
type WorkOrderRepository interface {
	Create(order *models.WorkOrder) error
	GetByID(id int64) (*models.WorkOrder, error)
	GetByTicketID(ticketID string) (*models.WorkOrder, error)
	ListByUser(userID int64) ([]*models.WorkOrder, error)
	UpdateStatus(id int64, status string, closedAt *time.Time) error
	UpdateAssignee(id int64, assigneeID int64) error
	Delete(id int64) error

	AddParticipant(p *models.Participant) error
	GetParticipants(workOrderID int64) ([]*models.Participant, error)
	MarkParticipantLeft(workOrderID, userID int64, at time.Time) error
}

// WorkOrderSQLRepository handles database operations for the
// work_orders and work_order_participants tables.
type WorkOrderSQLRepository struct {
	db *sql.DB
}

// NewWorkOrderRepository creates a new SQL-backed work-order repository.
func NewWorkOrderRepository(db *sql.DB) *WorkOrderSQLRepository {
	return &WorkOrderSQLRepository{db: db}
}

// Create inserts a new work order and fills in the generated ID.
func (r *WorkOrderSQLRepository) Create(order *models.WorkOrder) error {
	if order.TicketID == "" {
		return errors.New("ticket ID is required")
	}

	query := database.ConvertPlaceholders(`
		INSERT INTO work_orders (ticket_id, title, description, creator_id, assigned_to,
			status, priority, category, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	var assignedTo interface{}
	if order.AssignedTo != 0 {
		assignedTo = order.AssignedTo
	}

	result, err := r.db.Exec(query,
		order.TicketID, order.Title, order.Description, order.CreatorID, assignedTo,
		order.Status, order.Priority, order.Category,
		order.CreatedAt.Format(time.RFC3339), order.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert work order: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil && id > 0 {
		order.ID = id
		return nil
	}
	idQuery := database.ConvertPlaceholders(`SELECT id FROM work_orders WHERE ticket_id = ?`)
	if err := r.db.QueryRow(idQuery, order.TicketID).Scan(&order.ID); err != nil {
		return fmt.Errorf("failed to read back work order id: %w", err)
	}
	return nil
}

const workOrderColumns = `id, ticket_id, title, description, creator_id, assigned_to,
	status, priority, category, created_at, updated_at, closed_at`

// GetByID retrieves a work order by primary key.
func (r *WorkOrderSQLRepository) GetByID(id int64) (*models.WorkOrder, error) {
	query := database.ConvertPlaceholders(
		`SELECT ` + workOrderColumns + ` FROM work_orders WHERE id = ?`)
	return scanWorkOrder(r.db.QueryRow(query, id))
}

// GetByTicketID retrieves a work order by its human ticket id.
func (r *WorkOrderSQLRepository) GetByTicketID(ticketID string) (*models.WorkOrder, error) {
	query := database.ConvertPlaceholders(
		`SELECT ` + workOrderColumns + ` FROM work_orders WHERE ticket_id = ?`)
	return scanWorkOrder(r.db.QueryRow(query, ticketID))
}

// ListByUser retrieves work orders the user created, is assigned to, or
// participates in, newest first.
func (r *WorkOrderSQLRepository) ListByUser(userID int64) ([]*models.WorkOrder, error) {
	query := database.ConvertPlaceholders(`
		SELECT DISTINCT ` + workOrderColumns + `
		FROM work_orders
		WHERE creator_id = ? OR assigned_to = ?
			OR id IN (SELECT work_order_id FROM work_order_participants WHERE user_id = ?)
		ORDER BY created_at DESC`)

	rows, err := r.db.Query(query, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query work orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.WorkOrder
	for rows.Next() {
		order, err := scanWorkOrderRows(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

// UpdateStatus persists a status change; closedAt is set only when the
// order moves to closed.
func (r *WorkOrderSQLRepository) UpdateStatus(id int64, status string, closedAt *time.Time) error {
	now := time.Now().Format(time.RFC3339)

	var closed interface{}
	if closedAt != nil {
		closed = closedAt.Format(time.RFC3339)
	}

	query := database.ConvertPlaceholders(`
		UPDATE work_orders SET status = ?, updated_at = ?, closed_at = ? WHERE id = ?`)
	result, err := r.db.Exec(query, status, now, closed, id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return requireRow(result)
}

// UpdateAssignee reassigns a work order to a different expert.
func (r *WorkOrderSQLRepository) UpdateAssignee(id int64, assigneeID int64) error {
	query := database.ConvertPlaceholders(`
		UPDATE work_orders SET assigned_to = ?, updated_at = ? WHERE id = ?`)
	result, err := r.db.Exec(query, assigneeID, time.Now().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to update assignee: %w", err)
	}
	return requireRow(result)
}

// Delete removes a work order and its participants. Admin-only path.
func (r *WorkOrderSQLRepository) Delete(id int64) error {
	partQuery := database.ConvertPlaceholders(`DELETE FROM work_order_participants WHERE work_order_id = ?`)
	if _, err := r.db.Exec(partQuery, id); err != nil {
		return fmt.Errorf("failed to delete participants: %w", err)
	}

	query := database.ConvertPlaceholders(`DELETE FROM work_orders WHERE id = ?`)
	result, err := r.db.Exec(query, id)
	if err != nil {
		return fmt.Errorf("failed to delete work order: %w", err)
	}
	return requireRow(result)
}

// AddParticipant inserts a participant row, or clears left_at when the
// user had previously left the work order.
func (r *WorkOrderSQLRepository) AddParticipant(p *models.Participant) error {
	existing := database.ConvertPlaceholders(`
		SELECT COUNT(*) FROM work_order_participants WHERE work_order_id = ? AND user_id = ?`)

	var count int
	if err := r.db.QueryRow(existing, p.WorkOrderID, p.UserID).Scan(&count); err != nil {
		return fmt.Errorf("failed to check participant: %w", err)
	}

	if count > 0 {
		rejoin := database.ConvertPlaceholders(`
			UPDATE work_order_participants SET left_at = NULL, joined_at = ?
			WHERE work_order_id = ? AND user_id = ?`)
		if _, err := r.db.Exec(rejoin, p.JoinedAt.Format(time.RFC3339), p.WorkOrderID, p.UserID); err != nil {
			return fmt.Errorf("failed to rejoin participant: %w", err)
		}
		return nil
	}

	insert := database.ConvertPlaceholders(`
		INSERT INTO work_order_participants (work_order_id, user_id, role, joined_at, permissions)
		VALUES (?, ?, ?, ?, ?)`)
	if _, err := r.db.Exec(insert, p.WorkOrderID, p.UserID, p.Role,
		p.JoinedAt.Format(time.RFC3339), p.Permissions); err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}
	return nil
}

// GetParticipants retrieves all participant rows for a work order.
func (r *WorkOrderSQLRepository) GetParticipants(workOrderID int64) ([]*models.Participant, error) {
	query := database.ConvertPlaceholders(`
		SELECT work_order_id, user_id, role, joined_at, left_at, permissions
		FROM work_order_participants
		WHERE work_order_id = ?`)

	rows, err := r.db.Query(query, workOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var participants []*models.Participant
	for rows.Next() {
		var (
			p        models.Participant
			joinedAt string
			leftAt   sql.NullString
		)
		if err := rows.Scan(&p.WorkOrderID, &p.UserID, &p.Role, &joinedAt, &leftAt, &p.Permissions); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.JoinedAt = parseTime(joinedAt)
		if leftAt.Valid {
			t := parseTime(leftAt.String)
			p.LeftAt = &t
		}
		participants = append(participants, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return participants, nil
}

// MarkParticipantLeft stamps left_at for an active participant.
func (r *WorkOrderSQLRepository) MarkParticipantLeft(workOrderID, userID int64, at time.Time) error {
	query := database.ConvertPlaceholders(`
		UPDATE work_order_participants SET left_at = ?
		WHERE work_order_id = ? AND user_id = ? AND left_at IS NULL`)

	if _, err := r.db.Exec(query, at.Format(time.RFC3339), workOrderID, userID); err != nil {
		return fmt.Errorf("failed to mark participant left: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkOrder(row *sql.Row) (*models.WorkOrder, error) {
	order, err := scanWorkOrderFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return order, err
}

func scanWorkOrderRows(rows *sql.Rows) (*models.WorkOrder, error) {
	return scanWorkOrderFrom(rows)
}

func scanWorkOrderFrom(scanner rowScanner) (*models.WorkOrder, error) {
	var (
		order      models.WorkOrder
		assignedTo sql.NullInt64
		createdAt  string
		updatedAt  string
		closedAt   sql.NullString
	)
	err := scanner.Scan(&order.ID, &order.TicketID, &order.Title, &order.Description,
		&order.CreatorID, &assignedTo, &order.Status, &order.Priority, &order.Category,
		&createdAt, &updatedAt, &closedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan work order: %w", err)
	}

	if assignedTo.Valid {
		order.AssignedTo = assignedTo.Int64
	}
	order.CreatedAt = parseTime(createdAt)
	order.UpdatedAt = parseTime(updatedAt)
	if closedAt.Valid {
		t := parseTime(closedAt.String)
		order.ClosedAt = &t
	}
	return &order, nil
}
