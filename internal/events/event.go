// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"faculty_meetings_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var (
	NewBaseEvent   = events.NewBaseEvent
	NewBaseEventAt = events.NewBaseEventAt
)

// =============================================================================
// Appointment Domain Events
// =============================================================================

// AppointmentSnapshot carries the appointment fields notification messages need.
type AppointmentSnapshot struct {
	AppointmentID uuid.UUID `json:"appointmentId"`
	Title         string    `json:"title"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	CreatedBy     string    `json:"createdBy"`
	Status        string    `json:"status"`
}

// AppointmentRequested is published after a new appointment is stored.
// Recipients are the invited participants other than the creator.
type AppointmentRequested struct {
	BaseEvent
	AppointmentSnapshot
	RequiresApproval bool     `json:"requiresApproval"`
	Recipients       []string `json:"recipients"`
}

func (e AppointmentRequested) EventName() string { return "appointments.requested" }

// AppointmentUpdated is published after the creator edits an appointment.
type AppointmentUpdated struct {
	BaseEvent
	AppointmentSnapshot
	EditorID   string   `json:"editorId"`
	Recipients []string `json:"recipients"`
}

func (e AppointmentUpdated) EventName() string { return "appointments.updated" }

// AppointmentApproved is published after a faculty approver votes yes.
// Status is the aggregate after the vote, which may still be pending.
type AppointmentApproved struct {
	BaseEvent
	AppointmentSnapshot
	ApproverID string   `json:"approverId"`
	Recipients []string `json:"recipients"`
}

func (e AppointmentApproved) EventName() string { return "appointments.approved" }

// AppointmentRejected is published after a faculty approver vetoes.
type AppointmentRejected struct {
	BaseEvent
	AppointmentSnapshot
	ApproverID string   `json:"approverId"`
	Recipients []string `json:"recipients"`
}

func (e AppointmentRejected) EventName() string { return "appointments.rejected" }

// AppointmentCancelled is published after the creator deletes an appointment.
type AppointmentCancelled struct {
	BaseEvent
	AppointmentSnapshot
	CancelledBy string   `json:"cancelledBy"`
	Recipients  []string `json:"recipients"`
}

func (e AppointmentCancelled) EventName() string { return "appointments.cancelled" }

// AppointmentReminderDue is published by the scheduler worker shortly before
// a scheduled appointment starts.
type AppointmentReminderDue struct {
	BaseEvent
	AppointmentSnapshot
	Recipients []string `json:"recipients"`
}

func (e AppointmentReminderDue) EventName() string { return "appointments.reminder_due" }
