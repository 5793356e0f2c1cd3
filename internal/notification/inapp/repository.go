package inapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"faculty_meetings_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opCreate         = "notification.inapp.repository.create"
	opList           = "notification.inapp.repository.list"
	opCountUnread    = "notification.inapp.repository.count_unread"
	opMarkRead       = "notification.inapp.repository.mark_read"
	opMarkAllRead    = "notification.inapp.repository.mark_all_read"
	opUpdateDelivery = "notification.inapp.repository.update_delivery"

	errRepoNotConfigured = "in-app notification repository not configured"
	errRecipientRequired = "recipientId is required"
	errNotFound          = "notification not found"
)

// Type classifies a notification by the appointment change that caused it.
type Type string

const (
	TypeRequest  Type = "REQUEST"
	TypeApproved Type = "APPROVED"
	TypeRejected Type = "REJECTED"
	TypeReminder Type = "REMINDER"
	TypeSystem   Type = "SYSTEM"
)

// DeliveryStatus tracks the push side of a notification.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliverySkipped DeliveryStatus = "skipped"
	DeliveryFailed  DeliveryStatus = "failed"
)

type Notification struct {
	ID               uuid.UUID      `json:"id"`
	RecipientID      string         `json:"recipientId"`
	AppointmentID    *uuid.UUID     `json:"appointmentId,omitempty"`
	Type             Type           `json:"type"`
	Title            string         `json:"title"`
	Message          string         `json:"message"`
	IsRead           bool           `json:"read"`
	DeliveryStatus   DeliveryStatus `json:"deliveryStatus"`
	DeliveryAttempts int            `json:"deliveryAttempts"`
	LastError        *string        `json:"lastError,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
}

type CreateParams struct {
	RecipientID   string
	AppointmentID *uuid.UUID
	Type          Type
	Title         string
	Message       string
}

// DeliveryUpdate is the bookkeeping written once a push attempt sequence ends.
type DeliveryUpdate struct {
	Status    DeliveryStatus
	Attempts  int
	LastError string
}

// Store persists notification records.
type Store interface {
	Create(ctx context.Context, p CreateParams) (Notification, error)
	List(ctx context.Context, recipientID string, limit, offset int) ([]Notification, int, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, recipientID string, id uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	UpdateDelivery(ctx context.Context, id uuid.UUID, u DeliveryUpdate) error
}

const notificationColumns = `id, recipient_id, appointment_id, type, title, message, is_read,
	delivery_status, delivery_attempts, last_error, created_at`

const insertNotificationQuery = `INSERT INTO notifications
	(recipient_id, appointment_id, type, title, message, delivery_status)
	VALUES ($1, $2, $3, $4, $5, 'pending')
	RETURNING ` + notificationColumns

const listNotificationsQuery = `SELECT ` + notificationColumns + `
	FROM notifications
	WHERE recipient_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2 OFFSET $3`

const markReadQuery = `UPDATE notifications
	SET is_read = TRUE, updated_at = now()
	WHERE id = $1 AND recipient_id = $2`

const updateDeliveryQuery = `UPDATE notifications
	SET delivery_status = $2, delivery_attempts = $3, last_error = $4, updated_at = now()
	WHERE id = $1`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func validateCreate(p CreateParams) error {
	if strings.TrimSpace(p.RecipientID) == "" {
		return apperr.Validation(errRecipientRequired).WithOp(opCreate)
	}
	if p.Title == "" || p.Message == "" {
		return apperr.Validation("title and message are required").WithOp(opCreate)
	}
	switch p.Type {
	case TypeRequest, TypeApproved, TypeRejected, TypeReminder, TypeSystem:
		return nil
	default:
		return apperr.Validation(fmt.Sprintf("unknown notification type %q", p.Type)).WithOp(opCreate)
	}
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (Notification, error) {
	if r == nil || r.pool == nil {
		return Notification{}, apperr.Internal(errRepoNotConfigured).WithOp(opCreate)
	}
	if err := validateCreate(p); err != nil {
		return Notification{}, err
	}

	n, err := scanNotification(r.pool.QueryRow(ctx, insertNotificationQuery,
		p.RecipientID, p.AppointmentID, string(p.Type), p.Title, p.Message))
	if err != nil {
		return Notification{}, apperr.Internal(fmt.Sprintf("create notification failed: %v", err)).WithOp(opCreate)
	}
	return n, nil
}

func (r *Repository) List(ctx context.Context, recipientID string, limit, offset int) ([]Notification, int, error) {
	if r == nil || r.pool == nil {
		return nil, 0, apperr.Internal(errRepoNotConfigured).WithOp(opList)
	}
	if recipientID == "" {
		return nil, 0, apperr.Validation(errRecipientRequired).WithOp(opList)
	}

	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1`, recipientID).Scan(&total)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("count notifications failed: %v", err)).WithOp(opList)
	}

	rows, err := r.pool.Query(ctx, listNotificationsQuery, recipientID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("list notifications query failed: %v", err)).WithOp(opList)
	}
	defer rows.Close()

	items := make([]Notification, 0, limit)
	for rows.Next() {
		n, scanErr := scanNotification(rows)
		if scanErr != nil {
			return nil, 0, apperr.Internal(fmt.Sprintf("scan notifications failed: %v", scanErr)).WithOp(opList)
		}
		items = append(items, n)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("iterate notifications failed: %v", rowsErr)).WithOp(opList)
	}

	return items, total, nil
}

func (r *Repository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	if r == nil || r.pool == nil {
		return 0, apperr.Internal(errRepoNotConfigured).WithOp(opCountUnread)
	}
	if recipientID == "" {
		return 0, apperr.Validation(errRecipientRequired).WithOp(opCountUnread)
	}

	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND is_read = FALSE
	`, recipientID).Scan(&count)
	if err != nil {
		return 0, apperr.Internal(fmt.Sprintf("count unread notifications failed: %v", err)).WithOp(opCountUnread)
	}

	return count, nil
}

// MarkRead flips the read flag on one of the recipient's notifications.
// Notifications owned by someone else are reported as not found.
func (r *Repository) MarkRead(ctx context.Context, recipientID string, id uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opMarkRead)
	}
	if recipientID == "" || id == uuid.Nil {
		return apperr.Validation("recipientId and notificationId are required").WithOp(opMarkRead)
	}

	tag, err := r.pool.Exec(ctx, markReadQuery, id, recipientID)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("mark notification read failed: %v", err)).WithOp(opMarkRead)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(errNotFound).WithOp(opMarkRead)
	}

	return nil
}

func (r *Repository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, apperr.Internal(errRepoNotConfigured).WithOp(opMarkAllRead)
	}
	if recipientID == "" {
		return 0, apperr.Validation(errRecipientRequired).WithOp(opMarkAllRead)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE, updated_at = now()
		WHERE recipient_id = $1 AND is_read = FALSE
	`, recipientID)
	if err != nil {
		return 0, apperr.Internal(fmt.Sprintf("mark all notifications read failed: %v", err)).WithOp(opMarkAllRead)
	}

	return tag.RowsAffected(), nil
}

func (r *Repository) UpdateDelivery(ctx context.Context, id uuid.UUID, u DeliveryUpdate) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opUpdateDelivery)
	}

	var lastError *string
	if u.LastError != "" {
		lastError = &u.LastError
	}

	tag, err := r.pool.Exec(ctx, updateDeliveryQuery, id, string(u.Status), u.Attempts, lastError)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("update notification delivery failed: %v", err)).WithOp(opUpdateDelivery)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(errNotFound).WithOp(opUpdateDelivery)
	}
	return nil
}

func scanNotification(row pgx.Row) (Notification, error) {
	var (
		n              Notification
		notifType      string
		deliveryStatus string
	)
	err := row.Scan(&n.ID, &n.RecipientID, &n.AppointmentID, &notifType, &n.Title, &n.Message, &n.IsRead,
		&deliveryStatus, &n.DeliveryAttempts, &n.LastError, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Notification{}, apperr.NotFound(errNotFound)
		}
		return Notification{}, err
	}
	n.Type = Type(notifType)
	n.DeliveryStatus = DeliveryStatus(deliveryStatus)
	return n, nil
}

var _ Store = (*Repository)(nil)
