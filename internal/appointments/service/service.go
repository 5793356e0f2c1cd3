package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"faculty_meetings_backend/internal/appointments/domain"
	"faculty_meetings_backend/internal/appointments/repository"
	"faculty_meetings_backend/internal/appointments/transport"
	"faculty_meetings_backend/internal/events"
	"faculty_meetings_backend/internal/scheduler"
	"faculty_meetings_backend/platform/apperr"
	"faculty_meetings_backend/platform/config"
	"faculty_meetings_backend/platform/logger"
	"faculty_meetings_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	defaultMaxAttempts  = 5
	defaultReminderLead = time.Hour
	defaultPage         = 1
	defaultPageSize     = 20
	maxPageSize         = 100
	maxTitleLength      = 200
	maxDescriptionLen   = 2000
)

const (
	errEndTimeAfterStart   = "endTime must be after startTime"
	errParticipantsEmpty   = "participants must not be empty"
	errCreatorRequired     = "createdBy is required"
	errTitleRequired       = "title is required"
	errTitleTooLong        = "title must be at most 200 characters"
	errDescriptionTooLong  = "description must be at most 2000 characters"
	errNoFacultyApprover   = "an appointment that requires approval needs at least one faculty participant besides the creator"
	errOnlyCreatorEdits    = "only the creator can edit this appointment"
	errOnlyCreatorDeletes  = "only the creator can delete this appointment"
	errNotParticipant      = "user is not a participant of this appointment"
	errNotEditable         = "appointment can no longer be edited"
	errStaleVersion        = "appointment has been modified; reload and retry"
	errApprovalContention  = "appointment is being modified concurrently; retry shortly"
	errAppointmentNotFound = "appointment not found"
)

// FacultyDirectory answers whether a user is a faculty member.
type FacultyDirectory interface {
	IsFaculty(ctx context.Context, userID string) (bool, error)
}

// Service provides business logic for appointments
type Service struct {
	store        repository.Store
	faculty      FacultyDirectory
	eventBus     events.Bus
	reminders    scheduler.ReminderScheduler
	log          *logger.Logger
	now          func() time.Time
	maxAttempts  int
	reminderLead time.Duration
}

// ListResult is one page of appointments visible to a user.
type ListResult struct {
	Items      []domain.Appointment
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// New creates a new appointments service
func New(store repository.Store, faculty FacultyDirectory, eventBus events.Bus, cfg config.AppointmentConfig, log *logger.Logger) *Service {
	s := &Service{
		store:        store,
		faculty:      faculty,
		eventBus:     eventBus,
		log:          log,
		now:          time.Now,
		maxAttempts:  defaultMaxAttempts,
		reminderLead: defaultReminderLead,
	}
	if cfg != nil {
		if cfg.GetApprovalMaxAttempts() > 0 {
			s.maxAttempts = cfg.GetApprovalMaxAttempts()
		}
		if cfg.GetReminderLead() > 0 {
			s.reminderLead = cfg.GetReminderLead()
		}
	}
	return s
}

// SetReminderScheduler enables reminder tasks for scheduled appointments.
func (s *Service) SetReminderScheduler(reminders scheduler.ReminderScheduler) {
	s.reminders = reminders
}

// SetClock replaces the time source used for status resolution and timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Create stores a new appointment. It starts PENDING_APPROVAL when approval is
// required and SCHEDULED otherwise.
func (s *Service) Create(ctx context.Context, createdBy string, req transport.CreateAppointmentRequest) (*domain.Appointment, error) {
	createdBy = strings.TrimSpace(createdBy)
	if createdBy == "" {
		return nil, apperr.Validation(errCreatorRequired)
	}
	req.Title = sanitize.Line(req.Title)
	req.Description = sanitize.Text(req.Description)
	if err := validateTitle(req.Title); err != nil {
		return nil, err
	}
	if err := validateDescription(req.Description); err != nil {
		return nil, err
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, apperr.Validation(errEndTimeAfterStart)
	}
	if !hasParticipant(req.Participants) {
		return nil, apperr.Validation(errParticipantsEmpty)
	}

	participants := domain.NormalizeParticipants(createdBy, req.Participants)
	status := domain.StatusScheduled
	if req.RequiresApproval {
		if err := s.ensureApprovers(ctx, createdBy, participants); err != nil {
			return nil, err
		}
		status = domain.StatusPendingApproval
	}

	now := s.now().UTC()
	appt := &domain.Appointment{
		ID:               uuid.New(),
		Title:            req.Title,
		Description:      req.Description,
		StartTime:        req.StartTime.UTC(),
		EndTime:          req.EndTime.UTC(),
		CreatedBy:        createdBy,
		Participants:     participants,
		RequiresApproval: req.RequiresApproval,
		FacultyApprovals: map[string]bool{},
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
		Version:          1,
	}
	if err := s.store.Put(ctx, appt); err != nil {
		return nil, err
	}

	s.publish(ctx, events.AppointmentRequested{
		BaseEvent:           events.NewBaseEventAt(now),
		AppointmentSnapshot: s.snapshot(*appt, now),
		RequiresApproval:    appt.RequiresApproval,
		Recipients:          appt.ParticipantsExcept(createdBy),
	})
	if appt.Status == domain.StatusScheduled {
		s.scheduleReminder(ctx, *appt, now)
	}

	resolved := appt.Resolved(now)
	return &resolved, nil
}

// Update applies the creator's edits. Any edit clears recorded votes, and an
// appointment that requires approval goes back to PENDING_APPROVAL. When
// expectedVersion is set the write only happens against that version.
func (s *Service) Update(ctx context.Context, id uuid.UUID, editorID string, req transport.UpdateAppointmentRequest, expectedVersion *int) (*domain.Appointment, error) {
	req.Title = sanitize.LinePtr(req.Title)
	req.Description = sanitize.TextPtr(req.Description)
	if req.Title != nil {
		if err := validateTitle(*req.Title); err != nil {
			return nil, err
		}
	}
	if req.Description != nil {
		if err := validateDescription(*req.Description); err != nil {
			return nil, err
		}
	}
	if req.Participants != nil && !hasParticipant(req.Participants) {
		return nil, apperr.Validation(errParticipantsEmpty)
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		current, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.CreatedBy != editorID {
			return nil, apperr.Forbidden(errOnlyCreatorEdits)
		}
		if expectedVersion != nil && *expectedVersion != current.Version {
			return nil, apperr.Conflict(errStaleVersion).WithDetails(map[string]int{"currentVersion": current.Version})
		}

		now := s.now().UTC()
		if domain.IsTerminal(domain.EffectiveStatus(current.Status, current.EndTime, now)) {
			return nil, apperr.InvalidState(errNotEditable)
		}

		next := current.Clone()
		applyUpdate(&next, req)
		if !next.EndTime.After(next.StartTime) {
			return nil, apperr.Validation(errEndTimeAfterStart)
		}
		next.FacultyApprovals = map[string]bool{}
		if next.RequiresApproval {
			if err := s.ensureApprovers(ctx, next.CreatedBy, next.Participants); err != nil {
				return nil, err
			}
			next.Status = domain.StatusPendingApproval
		}
		next.UpdatedAt = now

		err = s.store.ConditionalPut(ctx, &next, current.Version)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.publish(ctx, events.AppointmentUpdated{
			BaseEvent:           events.NewBaseEventAt(now),
			AppointmentSnapshot: s.snapshot(next, now),
			EditorID:            editorID,
			Recipients:          unionExcept(current.Participants, next.Participants, editorID),
		})
		if next.Status == domain.StatusScheduled {
			s.scheduleReminder(ctx, next, now)
		}

		resolved := next.Resolved(now)
		return &resolved, nil
	}

	return nil, apperr.Concurrency(errApprovalContention)
}

// Delete removes an appointment. Deleting an appointment that does not exist
// succeeds without doing anything.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, requesterID string) error {
	current, err := s.store.Get(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if current.CreatedBy != requesterID {
		return apperr.Forbidden(errOnlyCreatorDeletes)
	}

	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	now := s.now().UTC()
	s.publish(ctx, events.AppointmentCancelled{
		BaseEvent:           events.NewBaseEventAt(now),
		AppointmentSnapshot: s.snapshot(*current, now),
		CancelledBy:         requesterID,
		Recipients:          current.ParticipantsExcept(requesterID),
	})
	return nil
}

// Approve records a faculty vote. Lost version races re-run the whole
// read-aggregate-write cycle up to the configured number of attempts.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, facultyID string, approved bool) (*domain.Appointment, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		current, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !current.IsParticipant(facultyID) {
			return nil, apperr.Forbidden(errNotParticipant)
		}

		now := s.now().UTC()
		effective := domain.EffectiveStatus(current.Status, current.EndTime, now)
		if effective != domain.StatusPendingApproval {
			return nil, apperr.InvalidState("appointment is " + string(effective) + ", not pending approval")
		}

		required, err := s.requiredApprovers(ctx, current.CreatedBy, current.Participants)
		if err != nil {
			return nil, err
		}
		decision, err := domain.Aggregate(effective, current.FacultyApprovals, required, domain.Vote{ApproverID: facultyID, Approved: approved})
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		next.FacultyApprovals = decision.Approvals
		next.Status = decision.Status
		next.UpdatedAt = now

		err = s.store.ConditionalPut(ctx, &next, current.Version)
		if errors.Is(err, repository.ErrVersionConflict) {
			if s.log != nil {
				s.log.Debug("approval lost version race, retrying", "appointmentId", id, "attempt", attempt+1)
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		s.publishVote(ctx, next, facultyID, approved, now)
		if next.Status == domain.StatusScheduled {
			s.scheduleReminder(ctx, next, now)
		}

		resolved := next.Resolved(now)
		return &resolved, nil
	}

	return nil, apperr.Concurrency(errApprovalContention)
}

// Get returns the appointment with its effective status.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	resolved := appt.Resolved(s.now())
	return &resolved, nil
}

// GetForUser is Get restricted to participants. Admins see everything.
func (s *Service) GetForUser(ctx context.Context, id uuid.UUID, userID string, isAdmin bool) (*domain.Appointment, error) {
	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && !appt.IsParticipant(userID) {
		return nil, apperr.NotFound(errAppointmentNotFound)
	}
	return appt, nil
}

// ListForUser returns the appointments userID participates in, filtered by
// effective status and start time window, ordered by start time.
func (s *Service) ListForUser(ctx context.Context, userID string, req transport.ListAppointmentsRequest) (*ListResult, error) {
	filter, err := parseListFilter(req)
	if err != nil {
		return nil, err
	}

	items, err := s.store.QueryByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	matched := make([]domain.Appointment, 0, len(items))
	for _, item := range items {
		resolved := item.Resolved(now)
		if filter.matches(resolved) {
			matched = append(matched, resolved)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].StartTime.Equal(matched[j].StartTime) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].StartTime.Before(matched[j].StartTime)
	})

	total := len(matched)
	start := (filter.page - 1) * filter.pageSize
	if start > total {
		start = total
	}
	end := start + filter.pageSize
	if end > total {
		end = total
	}

	totalPages := (total + filter.pageSize - 1) / filter.pageSize
	return &ListResult{
		Items:      matched[start:end],
		Total:      total,
		Page:       filter.page,
		PageSize:   filter.pageSize,
		TotalPages: totalPages,
	}, nil
}

func (s *Service) publishVote(ctx context.Context, appt domain.Appointment, voterID string, approved bool, now time.Time) {
	snapshot := s.snapshot(appt, now)
	recipients := appt.ParticipantsExcept(voterID)
	if approved {
		s.publish(ctx, events.AppointmentApproved{
			BaseEvent:           events.NewBaseEventAt(now),
			AppointmentSnapshot: snapshot,
			ApproverID:          voterID,
			Recipients:          recipients,
		})
		return
	}
	s.publish(ctx, events.AppointmentRejected{
		BaseEvent:           events.NewBaseEventAt(now),
		AppointmentSnapshot: snapshot,
		ApproverID:          voterID,
		Recipients:          recipients,
	})
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, event)
	}
}

func (s *Service) snapshot(appt domain.Appointment, now time.Time) events.AppointmentSnapshot {
	return events.AppointmentSnapshot{
		AppointmentID: appt.ID,
		Title:         appt.Title,
		StartTime:     appt.StartTime,
		EndTime:       appt.EndTime,
		CreatedBy:     appt.CreatedBy,
		Status:        string(domain.EffectiveStatus(appt.Status, appt.EndTime, now)),
	}
}

// scheduleReminder enqueues the pre-start reminder. Failures are logged and
// never fail the lifecycle operation.
func (s *Service) scheduleReminder(ctx context.Context, appt domain.Appointment, now time.Time) {
	if s.reminders == nil {
		return
	}
	runAt := appt.StartTime.Add(-s.reminderLead)
	if !runAt.After(now) {
		return
	}

	payload := scheduler.AppointmentReminderPayload{
		AppointmentID: appt.ID.String(),
		StartTime:     appt.StartTime,
	}
	if err := s.reminders.ScheduleAppointmentReminder(ctx, payload, runAt); err != nil && s.log != nil {
		s.log.Warn("failed to schedule appointment reminder", "appointmentId", appt.ID, "runAt", runAt, "error", err)
	}
}

// requiredApprovers returns the faculty participants other than the creator.
func (s *Service) requiredApprovers(ctx context.Context, createdBy string, participants []string) ([]string, error) {
	if s.faculty == nil {
		return nil, nil
	}
	required := make([]string, 0, len(participants))
	for _, p := range participants {
		if p == createdBy {
			continue
		}
		ok, err := s.faculty.IsFaculty(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("resolve faculty status for %s: %w", p, err)
		}
		if ok {
			required = append(required, p)
		}
	}
	return required, nil
}

func (s *Service) ensureApprovers(ctx context.Context, createdBy string, participants []string) error {
	required, err := s.requiredApprovers(ctx, createdBy, participants)
	if err != nil {
		return err
	}
	if len(required) == 0 {
		return apperr.Validation(errNoFacultyApprover)
	}
	return nil
}

func applyUpdate(appt *domain.Appointment, req transport.UpdateAppointmentRequest) {
	if req.Title != nil {
		appt.Title = *req.Title
	}
	if req.Description != nil {
		appt.Description = *req.Description
	}
	if req.StartTime != nil {
		appt.StartTime = req.StartTime.UTC()
	}
	if req.EndTime != nil {
		appt.EndTime = req.EndTime.UTC()
	}
	if req.Participants != nil {
		appt.Participants = domain.NormalizeParticipants(appt.CreatedBy, req.Participants)
	}
}

func validateTitle(title string) error {
	if title == "" {
		return apperr.Validation(errTitleRequired)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return apperr.Validation(errTitleTooLong)
	}
	return nil
}

func validateDescription(description string) error {
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return apperr.Validation(errDescriptionTooLong)
	}
	return nil
}

func hasParticipant(participants []string) bool {
	for _, p := range participants {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

// unionExcept merges two participant lists, keeping first-seen order.
func unionExcept(before, after []string, excluded string) []string {
	seen := map[string]struct{}{excluded: {}}
	out := make([]string, 0, len(before)+len(after))
	for _, list := range [][]string{after, before} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

type listFilter struct {
	status   domain.Status
	from     *time.Time
	to       *time.Time
	page     int
	pageSize int
}

func (f listFilter) matches(appt domain.Appointment) bool {
	if f.status != "" && appt.Status != f.status {
		return false
	}
	if f.from != nil && appt.StartTime.Before(*f.from) {
		return false
	}
	if f.to != nil && !appt.StartTime.Before(*f.to) {
		return false
	}
	return true
}

func parseListFilter(req transport.ListAppointmentsRequest) (listFilter, error) {
	filter := listFilter{page: req.Page, pageSize: req.PageSize}
	if filter.page == 0 {
		filter.page = defaultPage
	}
	if filter.pageSize == 0 {
		filter.pageSize = defaultPageSize
	}
	if filter.page < 1 {
		return listFilter{}, apperr.Validation("page must be at least 1")
	}
	if filter.pageSize < 1 || filter.pageSize > maxPageSize {
		return listFilter{}, apperr.Validation("pageSize must be between 1 and 100")
	}

	if req.Status != "" {
		status := domain.Status(strings.ToUpper(req.Status))
		if !status.Valid() {
			return listFilter{}, apperr.Validation("unknown status " + req.Status)
		}
		filter.status = status
	}

	var err error
	if filter.from, err = parseOptionalTime("from", req.From); err != nil {
		return listFilter{}, err
	}
	if filter.to, err = parseOptionalTime("to", req.To); err != nil {
		return listFilter{}, err
	}
	if filter.from != nil && filter.to != nil && !filter.to.After(*filter.from) {
		return listFilter{}, apperr.Validation("to must be after from")
	}
	return filter, nil
}

func parseOptionalTime(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, apperr.Validation(field + " must be an RFC3339 timestamp")
	}
	return &parsed, nil
}
