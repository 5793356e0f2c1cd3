package inapp

import (
	"context"
	"sort"
	"sync"
	"time"

	"faculty_meetings_backend/platform/apperr"

	"github.com/google/uuid"
)

// MemoryStore keeps notification records in process. It backs tests and
// single-node development runs.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]Notification
	order []uuid.UUID
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[uuid.UUID]Notification),
		now:   time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, p CreateParams) (Notification, error) {
	if err := validateCreate(p); err != nil {
		return Notification{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := Notification{
		ID:             uuid.New(),
		RecipientID:    p.RecipientID,
		AppointmentID:  p.AppointmentID,
		Type:           p.Type,
		Title:          p.Title,
		Message:        p.Message,
		DeliveryStatus: DeliveryPending,
		CreatedAt:      m.now().UTC(),
	}
	m.items[n.ID] = n
	m.order = append(m.order, n.ID)
	return n, nil
}

func (m *MemoryStore) List(_ context.Context, recipientID string, limit, offset int) ([]Notification, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mine := m.forRecipient(recipientID)
	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].CreatedAt.After(mine[j].CreatedAt)
	})

	total := len(mine)
	if offset >= total {
		return []Notification{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return mine[offset:end], total, nil
}

// forRecipient returns the recipient's records newest insertion first.
func (m *MemoryStore) forRecipient(recipientID string) []Notification {
	var out []Notification
	for i := len(m.order) - 1; i >= 0; i-- {
		n := m.items[m.order[i]]
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out
}

func (m *MemoryStore) CountUnread(_ context.Context, recipientID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, n := range m.items {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) MarkRead(_ context.Context, recipientID string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.items[id]
	if !ok || n.RecipientID != recipientID {
		return apperr.NotFound(errNotFound).WithOp(opMarkRead)
	}
	n.IsRead = true
	m.items[id] = n
	return nil
}

func (m *MemoryStore) MarkAllRead(_ context.Context, recipientID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed int64
	for id, n := range m.items {
		if n.RecipientID == recipientID && !n.IsRead {
			n.IsRead = true
			m.items[id] = n
			changed++
		}
	}
	return changed, nil
}

func (m *MemoryStore) UpdateDelivery(_ context.Context, id uuid.UUID, u DeliveryUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.items[id]
	if !ok {
		return apperr.NotFound(errNotFound).WithOp(opUpdateDelivery)
	}
	n.DeliveryStatus = u.Status
	n.DeliveryAttempts = u.Attempts
	n.LastError = nil
	if u.LastError != "" {
		msg := u.LastError
		n.LastError = &msg
	}
	m.items[id] = n
	return nil
}

// All returns every stored record in insertion order.
func (m *MemoryStore) All() []Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Notification, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.items[id])
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
