package models

import "time"

// Work-order status values.
const (
	StatusOpen       = "open"
	StatusRefused    = "refused"
	StatusProcessing = "processing"
	StatusClosed     = "closed"
)

// statusLevels assigns each status a strict ordinal. A transition is
// legal only if the target level is greater than the current one, which
// makes closed terminal and forbids reopening a refused order.
var statusLevels = map[string]int{
	StatusOpen:       0,
	StatusRefused:    3,
	StatusProcessing: 6,
	StatusClosed:     9,
}

// Priority values accepted at creation time.
const (
	PriorityLow      = "low"
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// StatusLevel returns the ordinal for a status, or -1 for an unknown
// status string.
func StatusLevel(status string) int {
	if level, ok := statusLevels[status]; ok {
		return level
	}
	return -1
}

// ValidStatus reports whether status is a known work-order status.
func ValidStatus(status string) bool {
	_, ok := statusLevels[status]
	return ok
}

// IsValidTransition reports whether a work order may move from one
// status to another. The ordinal rule is the single source of truth:
// the target level must strictly increase.
func IsValidTransition(from, to string) bool {
	fromLevel, ok := statusLevels[from]
	if !ok {
		return false
	}
	toLevel, ok := statusLevels[to]
	if !ok {
		return false
	}
	return toLevel > fromLevel
}

// NextStatuses returns the statuses reachable from the given one,
// derived from IsValidTransition so the two can never disagree.
func NextStatuses(from string) []string {
	var next []string
	for _, s := range []string{StatusOpen, StatusRefused, StatusProcessing, StatusClosed} {
		if IsValidTransition(from, s) {
			next = append(next, s)
		}
	}
	return next
}

// CanClose reports whether a work order in the given status may be
// closed.
func CanClose(status string) bool {
	return IsValidTransition(status, StatusClosed)
}

// ValidPriority reports whether p is an accepted priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// WorkOrder is a support ticket. TicketID is the human-facing id and
// doubles as the room id for the ticket's live participants.
type WorkOrder struct {
	ID          int64      `json:"id"`
	TicketID    string     `json:"ticket_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CreatorID   int64      `json:"creator_id"`
	AssignedTo  int64      `json:"assigned_to,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Category    string     `json:"category"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

// Participant roles.
const (
	RoleCreator  = "creator"
	RoleExpert   = "expert"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// Participant is one user's membership in a work order. LeftAt is nil
// while the participant is active; re-joining clears it. At most one
// active row exists per (work order, user).
type Participant struct {
	WorkOrderID int64      `json:"work_order_id"`
	UserID      int64      `json:"user_id"`
	Role        string     `json:"role"`
	JoinedAt    time.Time  `json:"joined_at"`
	LeftAt      *time.Time `json:"left_at,omitempty"`
	Permissions string     `json:"permissions,omitempty"`
}
