package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"faculty_meetings_backend/internal/appointments/domain"
	"faculty_meetings_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opGet                 = "appointments.repository.get"
	opPut                 = "appointments.repository.put"
	opConditionalPut      = "appointments.repository.conditional_put"
	opDelete              = "appointments.repository.delete"
	opQueryByParticipant  = "appointments.repository.query_by_participant"
	opMarkCompletedBefore = "appointments.repository.mark_completed_before"

	errRepoNotConfigured = "appointment repository not configured"
)

const appointmentColumns = `id, title, description, start_time, end_time, created_by, participants,
	requires_approval, faculty_approvals, status, version, created_at, updated_at`

const getAppointmentQuery = `SELECT ` + appointmentColumns + `
	FROM appointments WHERE id = $1`

const insertAppointmentQuery = `INSERT INTO appointments (` + appointmentColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

const conditionalUpdateQuery = `UPDATE appointments SET
		title = $3,
		description = $4,
		start_time = $5,
		end_time = $6,
		participants = $7,
		faculty_approvals = $8,
		status = $9,
		updated_at = $10,
		version = $2 + 1
	WHERE id = $1 AND version = $2`

const appointmentExistsQuery = `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`

const deleteAppointmentQuery = `DELETE FROM appointments WHERE id = $1`

const queryByParticipantQuery = `SELECT ` + appointmentColumns + `
	FROM appointments WHERE $1 = ANY(participants)
	ORDER BY start_time ASC, id ASC`

const markCompletedBeforeQuery = `UPDATE appointments SET
		status = 'COMPLETED',
		updated_at = now(),
		version = version + 1
	WHERE status = 'SCHEDULED' AND end_time <= $1`

// Repository is the Postgres-backed Store.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new appointments repository
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opGet)
	}

	appt, err := scanAppointment(r.pool.QueryRow(ctx, getAppointmentQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(appointmentNotFoundMsg).WithOp(opGet)
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return appt, nil
}

func (r *Repository) Put(ctx context.Context, appt *domain.Appointment) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opPut)
	}

	approvals, err := encodeApprovals(appt.FacultyApprovals)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, insertAppointmentQuery,
		appt.ID, appt.Title, appt.Description, appt.StartTime, appt.EndTime, appt.CreatedBy,
		appt.Participants, appt.RequiresApproval, approvals, string(appt.Status), appt.Version,
		appt.CreatedAt, appt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *Repository) ConditionalPut(ctx context.Context, appt *domain.Appointment, expectedVersion int) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opConditionalPut)
	}

	approvals, err := encodeApprovals(appt.FacultyApprovals)
	if err != nil {
		return err
	}

	result, err := r.pool.Exec(ctx, conditionalUpdateQuery,
		appt.ID, expectedVersion, appt.Title, appt.Description, appt.StartTime, appt.EndTime,
		appt.Participants, approvals, string(appt.Status), appt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, appointmentExistsQuery, appt.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check appointment existence: %w", err)
		}
		if !exists {
			return apperr.NotFound(appointmentNotFoundMsg).WithOp(opConditionalPut)
		}
		return ErrVersionConflict
	}

	appt.Version = expectedVersion + 1
	return nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if r == nil || r.pool == nil {
		return false, apperr.Internal(errRepoNotConfigured).WithOp(opDelete)
	}

	result, err := r.pool.Exec(ctx, deleteAppointmentQuery, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete appointment: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *Repository) QueryByParticipant(ctx context.Context, userID string) ([]domain.Appointment, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opQueryByParticipant)
	}

	rows, err := r.pool.Query(ctx, queryByParticipantQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Appointment, 0)
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		items = append(items, *appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}
	return items, nil
}

func (r *Repository) MarkCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, apperr.Internal(errRepoNotConfigured).WithOp(opMarkCompletedBefore)
	}

	result, err := r.pool.Exec(ctx, markCompletedBeforeQuery, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to mark appointments completed: %w", err)
	}
	return result.RowsAffected(), nil
}

func scanAppointment(row pgx.Row) (*domain.Appointment, error) {
	var (
		appt      domain.Appointment
		status    string
		approvals []byte
	)
	err := row.Scan(
		&appt.ID, &appt.Title, &appt.Description, &appt.StartTime, &appt.EndTime, &appt.CreatedBy,
		&appt.Participants, &appt.RequiresApproval, &approvals, &status, &appt.Version,
		&appt.CreatedAt, &appt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	appt.Status = domain.Status(status)
	appt.FacultyApprovals = map[string]bool{}
	if len(approvals) > 0 {
		if err := json.Unmarshal(approvals, &appt.FacultyApprovals); err != nil {
			return nil, fmt.Errorf("decode faculty approvals: %w", err)
		}
	}
	return &appt, nil
}

func encodeApprovals(approvals map[string]bool) ([]byte, error) {
	if approvals == nil {
		approvals = map[string]bool{}
	}
	data, err := json.Marshal(approvals)
	if err != nil {
		return nil, fmt.Errorf("encode faculty approvals: %w", err)
	}
	return data, nil
}

var _ Store = (*Repository)(nil)
