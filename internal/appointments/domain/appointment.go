// Package domain provides the core rules of the appointments bounded context:
// the appointment model, status resolution and approval aggregation.
package domain

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the persisted lifecycle state of an appointment.
type Status string

const (
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusScheduled       Status = "SCHEDULED"
	StatusRejected        Status = "REJECTED"
	StatusCompleted       Status = "COMPLETED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingApproval, StatusScheduled, StatusRejected, StatusCompleted:
		return true
	}
	return false
}

// Appointment is a meeting between a creator and one or more participants.
type Appointment struct {
	ID               uuid.UUID
	Title            string
	Description      string
	StartTime        time.Time
	EndTime          time.Time
	CreatedBy        string
	Participants     []string
	RequiresApproval bool
	FacultyApprovals map[string]bool
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Version          int
}

// Clone returns a deep copy so callers can mutate participants and approvals
// without touching the original.
func (a Appointment) Clone() Appointment {
	out := a
	out.Participants = slices.Clone(a.Participants)
	out.FacultyApprovals = maps.Clone(a.FacultyApprovals)
	if out.FacultyApprovals == nil {
		out.FacultyApprovals = map[string]bool{}
	}
	return out
}

// Resolved returns a copy whose Status is the effective status at now.
func (a Appointment) Resolved(now time.Time) Appointment {
	out := a.Clone()
	out.Status = EffectiveStatus(a.Status, a.EndTime, now)
	return out
}

// IsParticipant reports whether userID is listed on the appointment.
func (a Appointment) IsParticipant(userID string) bool {
	return slices.Contains(a.Participants, userID)
}

// ParticipantsExcept returns the participants minus the given ids, in order.
func (a Appointment) ParticipantsExcept(excluded ...string) []string {
	out := make([]string, 0, len(a.Participants))
	for _, p := range a.Participants {
		if !slices.Contains(excluded, p) {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeParticipants trims ids, drops blanks and duplicates, and makes sure
// createdBy is present. Order of first appearance is kept, creator first when
// it had to be added.
func NormalizeParticipants(createdBy string, participants []string) []string {
	seen := make(map[string]struct{}, len(participants)+1)
	out := make([]string, 0, len(participants)+1)

	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	if !slices.ContainsFunc(participants, func(p string) bool { return strings.TrimSpace(p) == createdBy }) {
		add(createdBy)
	}
	for _, p := range participants {
		add(p)
	}
	return out
}
