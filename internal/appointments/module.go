// Package appointments provides the appointments domain module.
package appointments

import (
	"faculty_meetings_backend/internal/appointments/handler"
	"faculty_meetings_backend/internal/appointments/repository"
	"faculty_meetings_backend/internal/appointments/service"
	"faculty_meetings_backend/internal/events"
	apphttp "faculty_meetings_backend/internal/http"
	"faculty_meetings_backend/platform/config"
	"faculty_meetings_backend/platform/logger"
	"faculty_meetings_backend/platform/validator"
)

// Module represents the appointments domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new appointments module with all dependencies wired
func NewModule(store repository.Store, faculty service.FacultyDirectory, bus events.Bus, cfg config.AppointmentConfig, log *logger.Logger, val *validator.Validator) *Module {
	svc := service.New(store, faculty, bus, cfg, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		Service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "appointments"
}

// RegisterRoutes registers the module's routes under /api/v1/appointments
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	appointments := ctx.Protected.Group("/appointments")
	m.handler.RegisterRoutes(appointments)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
