package transport

import (
	"time"

	"faculty_meetings_backend/internal/appointments/domain"

	"github.com/google/uuid"
)

// CreateAppointmentRequest is the request body for creating an appointment
type CreateAppointmentRequest struct {
	Title            string    `json:"title" validate:"required,notblank,max=200"`
	Description      string    `json:"description,omitempty" validate:"max=2000"`
	StartTime        time.Time `json:"startTime" validate:"required"`
	EndTime          time.Time `json:"endTime" validate:"required"`
	Participants     []string  `json:"participants" validate:"required,min=1,dive,notblank"`
	RequiresApproval bool      `json:"requiresApproval"`
}

// UpdateAppointmentRequest is the request body for editing an appointment.
// Omitted fields are left unchanged.
type UpdateAppointmentRequest struct {
	Title        *string    `json:"title,omitempty" validate:"omitempty,notblank,max=200"`
	Description  *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	StartTime    *time.Time `json:"startTime,omitempty"`
	EndTime      *time.Time `json:"endTime,omitempty"`
	Participants []string   `json:"participants,omitempty" validate:"omitempty,min=1,dive,notblank"`
}

// ApproveRequest is the request body for a faculty vote
type ApproveRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

// ListAppointmentsRequest is the query parameters for listing appointments
type ListAppointmentsRequest struct {
	Status   string `form:"status" validate:"omitempty,oneof=PENDING_APPROVAL SCHEDULED REJECTED COMPLETED"`
	From     string `form:"from"` // RFC3339, inclusive lower bound on startTime
	To       string `form:"to"`   // RFC3339, exclusive upper bound on startTime
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// AppointmentResponse is the response body for an appointment
type AppointmentResponse struct {
	ID               uuid.UUID       `json:"id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	StartTime        time.Time       `json:"startTime"`
	EndTime          time.Time       `json:"endTime"`
	CreatedBy        string          `json:"createdBy"`
	Participants     []string        `json:"participants"`
	RequiresApproval bool            `json:"requiresApproval"`
	FacultyApprovals map[string]bool `json:"facultyApprovals"`
	Status           string          `json:"status"`
	Version          int             `json:"version"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// AppointmentListResponse is the paginated response for listing appointments
type AppointmentListResponse struct {
	Items      []AppointmentResponse `json:"items"`
	Total      int                   `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"pageSize"`
	TotalPages int                   `json:"totalPages"`
}

// ToAppointmentResponse maps a (resolved) appointment to its wire form.
func ToAppointmentResponse(appt domain.Appointment) AppointmentResponse {
	approvals := appt.FacultyApprovals
	if approvals == nil {
		approvals = map[string]bool{}
	}
	return AppointmentResponse{
		ID:               appt.ID,
		Title:            appt.Title,
		Description:      appt.Description,
		StartTime:        appt.StartTime,
		EndTime:          appt.EndTime,
		CreatedBy:        appt.CreatedBy,
		Participants:     appt.Participants,
		RequiresApproval: appt.RequiresApproval,
		FacultyApprovals: approvals,
		Status:           string(appt.Status),
		Version:          appt.Version,
		CreatedAt:        appt.CreatedAt,
		UpdatedAt:        appt.UpdatedAt,
	}
}
