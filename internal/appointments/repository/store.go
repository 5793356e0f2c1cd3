package repository

import (
	"context"
	"errors"
	"time"

	"faculty_meetings_backend/internal/appointments/domain"

	"github.com/google/uuid"
)

// ErrVersionConflict is returned by ConditionalPut when the stored version no
// longer matches the version the caller read.
var ErrVersionConflict = errors.New("appointment version conflict")

const appointmentNotFoundMsg = "appointment not found"

// Store is durable keyed storage for appointments.
type Store interface {
	// Get returns the appointment or an apperr NotFound error.
	Get(ctx context.Context, id uuid.UUID) (*domain.Appointment, error)
	// Put inserts a new appointment as-is.
	Put(ctx context.Context, appt *domain.Appointment) error
	// ConditionalPut writes appt only if the stored version equals
	// expectedVersion. On success appt.Version is expectedVersion+1.
	ConditionalPut(ctx context.Context, appt *domain.Appointment, expectedVersion int) error
	// Delete removes the appointment. Deleting a missing id is not an error.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	// QueryByParticipant lists appointments that include userID, by start time.
	QueryByParticipant(ctx context.Context, userID string) ([]domain.Appointment, error)
	// MarkCompletedBefore persists COMPLETED for SCHEDULED appointments that
	// ended at or before cutoff and returns how many rows changed.
	MarkCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
