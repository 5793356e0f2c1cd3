package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"faculty_meetings_backend/internal/appointments/domain"
	"faculty_meetings_backend/platform/apperr"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store with the same version semantics as the
// Postgres repository. Records are copied on the way in and out.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]domain.Appointment
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[uuid.UUID]domain.Appointment)}
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*domain.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	appt, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound(appointmentNotFoundMsg).WithOp(opGet)
	}
	out := appt.Clone()
	return &out, nil
}

func (m *MemoryStore) Put(_ context.Context, appt *domain.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[appt.ID]; exists {
		return apperr.Conflict("appointment already exists").WithOp(opPut)
	}
	m.items[appt.ID] = appt.Clone()
	return nil
}

func (m *MemoryStore) ConditionalPut(_ context.Context, appt *domain.Appointment, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.items[appt.ID]
	if !ok {
		return apperr.NotFound(appointmentNotFoundMsg).WithOp(opConditionalPut)
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}

	next := appt.Clone()
	next.CreatedBy = current.CreatedBy
	next.CreatedAt = current.CreatedAt
	next.RequiresApproval = current.RequiresApproval
	next.Version = expectedVersion + 1
	m.items[appt.ID] = next
	appt.Version = next.Version
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.items[id]
	delete(m.items, id)
	return ok, nil
}

func (m *MemoryStore) QueryByParticipant(_ context.Context, userID string) ([]domain.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]domain.Appointment, 0)
	for _, appt := range m.items {
		if appt.IsParticipant(userID) {
			items = append(items, appt.Clone())
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].StartTime.Equal(items[j].StartTime) {
			return items[i].ID.String() < items[j].ID.String()
		}
		return items[i].StartTime.Before(items[j].StartTime)
	})
	return items, nil
}

func (m *MemoryStore) MarkCompletedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed int64
	for id, appt := range m.items {
		if appt.Status != domain.StatusScheduled || appt.EndTime.After(cutoff) {
			continue
		}
		appt.Status = domain.StatusCompleted
		appt.UpdatedAt = cutoff
		appt.Version++
		m.items[id] = appt
		changed++
	}
	return changed, nil
}

var _ Store = (*MemoryStore)(nil)
