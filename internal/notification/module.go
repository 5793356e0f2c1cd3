// Package notification turns appointment events into stored in-app
// notifications and push messages. Domain modules publish events and never
// talk to the push gateway or the notification store directly.
package notification

import (
	"context"
	"strings"
	"text/template"
	"time"

	"faculty_meetings_backend/internal/events"
	apphttp "faculty_meetings_backend/internal/http"
	"faculty_meetings_backend/internal/notification/dispatcher"
	notifhandler "faculty_meetings_backend/internal/notification/handler"
	"faculty_meetings_backend/internal/notification/inapp"
	"faculty_meetings_backend/internal/notification/sse"
	"faculty_meetings_backend/platform/config"
	"faculty_meetings_backend/platform/logger"
)

const timeLayout = "Mon 2 Jan 2006 15:04 MST"

// message is a rendered notification title and body.
type message struct {
	Title string
	Body  string
}

var messageFuncs = template.FuncMap{
	"when": func(t time.Time) string { return t.UTC().Format(timeLayout) },
}

var messageTemplates = template.Must(template.New("messages").Funcs(messageFuncs).Parse(`
{{define "requested"}}{{.CreatedBy}} invited you to "{{.Title}}" on {{when .StartTime}}.{{if .RequiresApproval}} Faculty approval is required.{{end}}{{end}}
{{define "approved"}}{{if eq .Status "SCHEDULED"}}"{{.Title}}" is confirmed for {{when .StartTime}}.{{else}}{{.ApproverID}} approved "{{.Title}}". Waiting for the remaining approvals.{{end}}{{end}}
{{define "rejected"}}{{.ApproverID}} rejected "{{.Title}}".{{end}}
{{define "updated"}}{{.EditorID}} changed "{{.Title}}". It now runs {{when .StartTime}} to {{when .EndTime}}.{{if eq .Status "PENDING_APPROVAL"}} Approvals were reset.{{end}}{{end}}
{{define "cancelled"}}{{.CancelledBy}} cancelled "{{.Title}}" on {{when .StartTime}}.{{end}}
{{define "reminder"}}"{{.Title}}" starts at {{when .StartTime}}.{{end}}
`))

// Module wires the notification store, dispatcher, SSE stream and event handlers.
type Module struct {
	inAppService *inapp.Service
	inAppHandler *notifhandler.HTTPHandler
	sse          *sse.Service
	dispatcher   *dispatcher.Dispatcher
	log          *logger.Logger
}

// New creates the notification module. A nil transport disables push.
func New(store inapp.Store, tokens dispatcher.TokenLookup, transport dispatcher.Transport, cfg config.DispatchConfig, log *logger.Logger) *Module {
	stream := sse.New(log)
	inAppService := inapp.NewService(store, log)
	inAppService.SetSSE(stream)

	return &Module{
		inAppService: inAppService,
		inAppHandler: notifhandler.NewHTTPHandler(inAppService, stream),
		sse:          stream,
		dispatcher:   dispatcher.New(inAppService, tokens, transport, cfg, log),
		log:          log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// RegisterRoutes registers notification API routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	notifications := ctx.Protected.Group("/notifications")
	m.inAppHandler.RegisterRoutes(notifications)
}

// InAppService exposes the in-app notification service for integration points.
func (m *Module) InAppService() *inapp.Service { return m.inAppService }

// Close ends every open notification stream.
func (m *Module) Close() { m.sse.Close() }

// RegisterHandlers subscribes the module to every appointment event.
func (m *Module) RegisterHandlers(bus events.Bus) {
	for _, evt := range []events.Event{
		events.AppointmentRequested{},
		events.AppointmentUpdated{},
		events.AppointmentApproved{},
		events.AppointmentRejected{},
		events.AppointmentCancelled{},
		events.AppointmentReminderDue{},
	} {
		bus.Subscribe(evt.EventName(), m)
	}
	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the dispatcher. Delivery problems are logged by
// the dispatcher and never returned.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	evt, ok := m.toDispatch(event)
	if !ok {
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
	if len(evt.Recipients) == 0 {
		return nil
	}

	result := m.dispatcher.Dispatch(ctx, evt)
	m.log.Debug("notification dispatched", "event", event.EventName(), "recipients", len(result.Outcomes))
	return nil
}

func (m *Module) toDispatch(event events.Event) (dispatcher.Event, bool) {
	switch e := event.(type) {
	case events.AppointmentRequested:
		return m.build(e.AppointmentSnapshot, inapp.TypeRequest, "New meeting request", "requested", e, e.Recipients), true
	case events.AppointmentApproved:
		title := "Meeting approval received"
		if e.Status == "SCHEDULED" {
			title = "Meeting confirmed"
		}
		return m.build(e.AppointmentSnapshot, inapp.TypeApproved, title, "approved", e, e.Recipients), true
	case events.AppointmentRejected:
		return m.build(e.AppointmentSnapshot, inapp.TypeRejected, "Meeting rejected", "rejected", e, e.Recipients), true
	case events.AppointmentUpdated:
		return m.build(e.AppointmentSnapshot, inapp.TypeSystem, "Meeting updated", "updated", e, e.Recipients), true
	case events.AppointmentCancelled:
		return m.build(e.AppointmentSnapshot, inapp.TypeSystem, "Meeting cancelled", "cancelled", e, e.Recipients), true
	case events.AppointmentReminderDue:
		return m.build(e.AppointmentSnapshot, inapp.TypeReminder, "Upcoming meeting", "reminder", e, e.Recipients), true
	default:
		return dispatcher.Event{}, false
	}
}

func (m *Module) build(snap events.AppointmentSnapshot, typ inapp.Type, title, tmpl string, data any, recipients []string) dispatcher.Event {
	appointmentID := snap.AppointmentID
	return dispatcher.Event{
		Type:          typ,
		AppointmentID: &appointmentID,
		Title:         title,
		Message:       m.render(tmpl, data, snap),
		Data: map[string]string{
			"status":    snap.Status,
			"startTime": snap.StartTime.UTC().Format(time.RFC3339),
		},
		Recipients: recipients,
	}
}

// render falls back to the bare title when a template cannot be executed.
func (m *Module) render(name string, data any, snap events.AppointmentSnapshot) string {
	var b strings.Builder
	if err := messageTemplates.ExecuteTemplate(&b, name, data); err != nil {
		m.log.Warn("notification template render failed", "template", name, "error", err)
		return snap.Title
	}
	return strings.TrimSpace(b.String())
}

var _ apphttp.Module = (*Module)(nil)
var _ events.Handler = (*Module)(nil)
