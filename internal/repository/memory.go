package repository

import (
	"sync"
	"time"

	"github.com/goatkit/goatlink/internal/models"
)

// MemoryUserRepository is an in-memory UserRepository used by tests and
// the memory storage mode.
type MemoryUserRepository struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]*models.User
}

// NewMemoryUserRepository creates an empty in-memory user repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{nextID: 1, users: make(map[int64]*models.User)}
}

func (r *MemoryUserRepository) Create(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == user.Username {
			return ErrDuplicate
		}
	}

	user.ID = r.nextID
	r.nextID++
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *MemoryUserRepository) GetByID(id int64) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if u, ok := r.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, ErrNotFound
}

func (r *MemoryUserRepository) GetByUsername(username string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Username == username {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryUserRepository) Exists(username string) (bool, error) {
	_, err := r.GetByUsername(username)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *MemoryUserRepository) UpdatePassword(id int64, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (r *MemoryUserRepository) UpdateLastLogin(id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

// MemoryWorkOrderRepository is an in-memory WorkOrderRepository.
type MemoryWorkOrderRepository struct {
	mu           sync.RWMutex
	nextID       int64
	orders       map[int64]*models.WorkOrder
	participants map[int64][]*models.Participant
}

// NewMemoryWorkOrderRepository creates an empty in-memory work-order
// repository.
func NewMemoryWorkOrderRepository() *MemoryWorkOrderRepository {
	return &MemoryWorkOrderRepository{
		nextID:       1,
		orders:       make(map[int64]*models.WorkOrder),
		participants: make(map[int64][]*models.Participant),
	}
}

func (r *MemoryWorkOrderRepository) Create(order *models.WorkOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range r.orders {
		if o.TicketID == order.TicketID {
			return ErrDuplicate
		}
	}

	order.ID = r.nextID
	r.nextID++
	clone := *order
	r.orders[order.ID] = &clone
	return nil
}

func (r *MemoryWorkOrderRepository) GetByID(id int64) (*models.WorkOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if o, ok := r.orders[id]; ok {
		clone := *o
		return &clone, nil
	}
	return nil, ErrNotFound
}

func (r *MemoryWorkOrderRepository) GetByTicketID(ticketID string) (*models.WorkOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, o := range r.orders {
		if o.TicketID == ticketID {
			clone := *o
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryWorkOrderRepository) ListByUser(userID int64) ([]*models.WorkOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var orders []*models.WorkOrder
	for _, o := range r.orders {
		if o.CreatorID == userID || o.AssignedTo == userID || r.isParticipant(o.ID, userID) {
			clone := *o
			orders = append(orders, &clone)
		}
	}
	return orders, nil
}

func (r *MemoryWorkOrderRepository) isParticipant(workOrderID, userID int64) bool {
	for _, p := range r.participants[workOrderID] {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func (r *MemoryWorkOrderRepository) UpdateStatus(id int64, status string, closedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	o.ClosedAt = closedAt
	return nil
}

func (r *MemoryWorkOrderRepository) UpdateAssignee(id int64, assigneeID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.AssignedTo = assigneeID
	o.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryWorkOrderRepository) Delete(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[id]; !ok {
		return ErrNotFound
	}
	delete(r.orders, id)
	delete(r.participants, id)
	return nil
}

func (r *MemoryWorkOrderRepository) AddParticipant(p *models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.participants[p.WorkOrderID] {
		if existing.UserID == p.UserID {
			existing.LeftAt = nil
			existing.JoinedAt = p.JoinedAt
			return nil
		}
	}
	clone := *p
	r.participants[p.WorkOrderID] = append(r.participants[p.WorkOrderID], &clone)
	return nil
}

func (r *MemoryWorkOrderRepository) GetParticipants(workOrderID int64) ([]*models.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	participants := make([]*models.Participant, 0, len(r.participants[workOrderID]))
	for _, p := range r.participants[workOrderID] {
		clone := *p
		participants = append(participants, &clone)
	}
	return participants, nil
}

func (r *MemoryWorkOrderRepository) MarkParticipantLeft(workOrderID, userID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.participants[workOrderID] {
		if p.UserID == userID && p.LeftAt == nil {
			left := at
			p.LeftAt = &left
		}
	}
	return nil
}

// MemorySessionRepository is an in-memory SessionRepository.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewMemorySessionRepository creates an empty in-memory session
// repository.
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]*models.Session)}
}

func (r *MemorySessionRepository) Create(session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.SessionID]; ok {
		return ErrDuplicate
	}
	clone := *session
	r.sessions[session.SessionID] = &clone
	return nil
}

func (r *MemorySessionRepository) GetByID(sessionID string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.sessions[sessionID]; ok {
		clone := *s
		return &clone, nil
	}
	return nil, ErrNotFound
}

func (r *MemorySessionRepository) GetActiveByUserID(userID int64) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s.UserID == userID && s.Status == models.SessionActive {
			clone := *s
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemorySessionRepository) UpdateRoom(sessionID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.RoomID = roomID
	s.LastActivity = time.Now()
	return nil
}

func (r *MemorySessionRepository) UpdateLastActivity(sessionID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivity = at
	return nil
}

func (r *MemorySessionRepository) Expire(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.Status = models.SessionExpired
	return nil
}

func (r *MemorySessionRepository) Delete(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(r.sessions, sessionID)
	return nil
}

func (r *MemorySessionRepository) DeleteByUserID(userID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
			count++
		}
	}
	return count, nil
}

func (r *MemorySessionRepository) FindExpired(now time.Time, idleTimeout time.Duration) ([]*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var expired []*models.Session
	for _, s := range r.sessions {
		if s.Status != models.SessionActive {
			continue
		}
		if s.IsExpired(now, idleTimeout) {
			clone := *s
			expired = append(expired, &clone)
		}
	}
	return expired, nil
}
