package inapp

import (
	"context"

	"faculty_meetings_backend/internal/notification/sse"
	"faculty_meetings_backend/platform/apperr"
	"faculty_meetings_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Service struct {
	repo Store
	sse  *sse.Service
	log  *logger.Logger
}

func NewService(repo Store, log *logger.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
	}
}

// SetSSE injects the SSE service so new records reach connected clients.
func (s *Service) SetSSE(sseSvc *sse.Service) {
	s.sse = sseSvc
}

// Send persists the notification and pushes it via SSE if the recipient is online.
func (s *Service) Send(ctx context.Context, p CreateParams) (Notification, error) {
	if s == nil || s.repo == nil {
		return Notification{}, apperr.Internal("in-app notification service not configured")
	}

	notif, err := s.repo.Create(ctx, p)
	if err != nil {
		if s.log != nil {
			s.log.Error("failed to persist in-app notification", "error", err, "recipientId", p.RecipientID)
		}
		return Notification{}, err
	}

	if s.sse != nil {
		s.sse.Publish(p.RecipientID, sse.Event{
			Type:    sse.EventNotificationCreated,
			Message: notif.Title,
			Data:    notif,
		})
	}

	return notif, nil
}

// RecordDelivery stores the push outcome on an existing record.
func (s *Service) RecordDelivery(ctx context.Context, id uuid.UUID, u DeliveryUpdate) error {
	return s.repo.UpdateDelivery(ctx, id, u)
}

func (s *Service) List(ctx context.Context, recipientID string, page, pageSize int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	offset := (page - 1) * pageSize
	return s.repo.List(ctx, recipientID, pageSize, offset)
}

func (s *Service) CountUnread(ctx context.Context, recipientID string) (int, error) {
	return s.repo.CountUnread(ctx, recipientID)
}

func (s *Service) MarkRead(ctx context.Context, recipientID string, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, recipientID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	changed, err := s.repo.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	if changed > 0 && s.sse != nil {
		s.sse.Publish(recipientID, sse.Event{Type: sse.EventNotificationsRead})
	}
	return changed, nil
}
