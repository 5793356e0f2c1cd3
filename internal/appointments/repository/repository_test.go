package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"faculty_meetings_backend/internal/appointments/domain"
	"faculty_meetings_backend/platform/apperr"

	"github.com/google/uuid"
)

func TestConditionalUpdateQueryIsVersionGuarded(t *testing.T) {
	query := strings.ToLower(conditionalUpdateQuery)

	requiredFragments := []string{
		"where id = $1 and version = $2",
		"version = $2 + 1",
		"faculty_approvals = $8",
		"status = $9",
	}
	for _, fragment := range requiredFragments {
		if !strings.Contains(query, fragment) {
			t.Fatalf("expected conditional update fragment %q", fragment)
		}
	}
	if strings.Contains(query, "created_by") || strings.Contains(query, "requires_approval") {
		t.Fatal("conditional update must not rewrite immutable columns")
	}
}

func TestMarkCompletedQueryOnlyTouchesEndedScheduledRows(t *testing.T) {
	query := strings.ToLower(markCompletedBeforeQuery)

	for _, fragment := range []string{"where status = 'scheduled' and end_time <= $1", "version = version + 1"} {
		if !strings.Contains(query, fragment) {
			t.Fatalf("expected sweep fragment %q", fragment)
		}
	}
}

func TestQueryByParticipantUsesArrayMembership(t *testing.T) {
	if !strings.Contains(strings.ToLower(queryByParticipantQuery), "$1 = any(participants)") {
		t.Fatal("expected participant membership filter")
	}
}

func newTestAppointment(status domain.Status, end time.Time) *domain.Appointment {
	return &domain.Appointment{
		ID:               uuid.New(),
		Title:            "Thesis review",
		StartTime:        end.Add(-time.Hour),
		EndTime:          end,
		CreatedBy:        "stu1",
		Participants:     []string{"stu1", "fac1"},
		RequiresApproval: true,
		FacultyApprovals: map[string]bool{},
		Status:           status,
		Version:          1,
	}
}

func TestMemoryStoreConditionalPut(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	appt := newTestAppointment(domain.StatusPendingApproval, time.Now().Add(time.Hour))
	if err := store.Put(ctx, appt); err != nil {
		t.Fatalf("Put: %v", err)
	}

	update := appt.Clone()
	update.FacultyApprovals["fac1"] = true
	update.Status = domain.StatusScheduled
	if err := store.ConditionalPut(ctx, &update, 1); err != nil {
		t.Fatalf("ConditionalPut: %v", err)
	}
	if update.Version != 2 {
		t.Fatalf("expected version 2, got %d", update.Version)
	}

	stale := appt.Clone()
	stale.Title = "stale"
	if err := store.ConditionalPut(ctx, &stale, 1); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	got, _ := store.Get(ctx, appt.ID)
	if got.Title != "Thesis review" || got.Status != domain.StatusScheduled || !got.FacultyApprovals["fac1"] {
		t.Fatalf("unexpected stored appointment %+v", got)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	appt := newTestAppointment(domain.StatusPendingApproval, time.Now().Add(time.Hour))
	_ = store.Put(ctx, appt)

	got, _ := store.Get(ctx, appt.ID)
	got.Participants[0] = "mallory"
	got.FacultyApprovals["fac1"] = true

	again, _ := store.Get(ctx, appt.ID)
	if again.Participants[0] != "stu1" || len(again.FacultyApprovals) != 0 {
		t.Fatalf("store leaked internal state: %+v", again)
	}
}

func TestMemoryStoreDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	appt := newTestAppointment(domain.StatusScheduled, time.Now().Add(time.Hour))
	_ = store.Put(ctx, appt)

	removed, err := store.Delete(ctx, appt.ID)
	if err != nil || !removed {
		t.Fatalf("first delete: removed=%v err=%v", removed, err)
	}
	removed, err = store.Delete(ctx, appt.ID)
	if err != nil || removed {
		t.Fatalf("second delete: removed=%v err=%v", removed, err)
	}

	if _, err := store.Get(ctx, appt.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
	if err := store.ConditionalPut(ctx, appt, 1); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound on conditional put of deleted row, got %v", err)
	}
}

func TestMemoryStoreMarkCompletedBefore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cutoff := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)

	ended := newTestAppointment(domain.StatusScheduled, cutoff)
	running := newTestAppointment(domain.StatusScheduled, cutoff.Add(time.Minute))
	pending := newTestAppointment(domain.StatusPendingApproval, cutoff.Add(-time.Hour))
	for _, a := range []*domain.Appointment{ended, running, pending} {
		_ = store.Put(ctx, a)
	}

	changed, err := store.MarkCompletedBefore(ctx, cutoff)
	if err != nil || changed != 1 {
		t.Fatalf("expected 1 change, got %d (%v)", changed, err)
	}

	got, _ := store.Get(ctx, ended.ID)
	if got.Status != domain.StatusCompleted || got.Version != 2 {
		t.Fatalf("expected ended appointment completed at version 2, got %s v%d", got.Status, got.Version)
	}
	got, _ = store.Get(ctx, running.ID)
	if got.Status != domain.StatusScheduled {
		t.Fatalf("running appointment changed to %s", got.Status)
	}
	got, _ = store.Get(ctx, pending.ID)
	if got.Status != domain.StatusPendingApproval {
		t.Fatalf("pending appointment changed to %s", got.Status)
	}
}

func TestMemoryStoreQueryByParticipant(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)

	later := newTestAppointment(domain.StatusScheduled, base.Add(2*time.Hour))
	earlier := newTestAppointment(domain.StatusScheduled, base)
	other := newTestAppointment(domain.StatusScheduled, base)
	other.Participants = []string{"stu2", "fac2"}
	for _, a := range []*domain.Appointment{later, earlier, other} {
		_ = store.Put(ctx, a)
	}

	items, err := store.QueryByParticipant(ctx, "fac1")
	if err != nil {
		t.Fatalf("QueryByParticipant: %v", err)
	}
	if len(items) != 2 || items[0].ID != earlier.ID || items[1].ID != later.ID {
		t.Fatalf("expected earlier then later, got %+v", items)
	}
}
