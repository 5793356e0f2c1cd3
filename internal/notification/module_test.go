package notification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"faculty_meetings_backend/internal/events"
	apphttp "faculty_meetings_backend/internal/http"
	"faculty_meetings_backend/internal/notification/inapp"
	"faculty_meetings_backend/platform/httpkit"
	"faculty_meetings_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type noTokens struct{}

func (noTokens) Get(context.Context, string) (string, bool, error) { return "", false, nil }

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestModule(t *testing.T) (*Module, *inapp.MemoryStore, *events.InMemoryBus) {
	t.Helper()
	log := logger.New("development")
	store := inapp.NewMemoryStore()
	m := New(store, noTokens{}, nil, nil, log)
	bus := events.NewInMemoryBus(log)
	m.RegisterHandlers(bus)
	t.Cleanup(m.Close)
	return m, store, bus
}

func snapshot(status string) events.AppointmentSnapshot {
	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	return events.AppointmentSnapshot{
		AppointmentID: uuid.New(),
		Title:         "Thesis review",
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
		CreatedBy:     "stu1",
		Status:        status,
	}
}

func TestRequestedEventStoresOneRecordPerRecipient(t *testing.T) {
	_, store, bus := newTestModule(t)

	err := bus.PublishSync(context.Background(), events.AppointmentRequested{
		AppointmentSnapshot: snapshot("PENDING_APPROVAL"),
		RequiresApproval:    true,
		Recipients:          []string{"fac1", "fac2", "fac1"},
	})
	if err != nil {
		t.Fatalf("PublishSync: %v", err)
	}

	records := store.All()
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	for _, n := range records {
		if n.Type != inapp.TypeRequest || n.IsRead || n.AppointmentID == nil {
			t.Fatalf("unexpected record %+v", n)
		}
		if n.DeliveryStatus != inapp.DeliverySkipped {
			t.Fatalf("expected skipped delivery without transport, got %s", n.DeliveryStatus)
		}
		want := `stu1 invited you to "Thesis review" on Fri 10 Jan 2025 09:00 UTC. Faculty approval is required.`
		if n.Message != want {
			t.Fatalf("unexpected message %q", n.Message)
		}
	}
}

func TestApprovedEventDistinguishesFinalApproval(t *testing.T) {
	_, store, bus := newTestModule(t)
	ctx := context.Background()

	_ = bus.PublishSync(ctx, events.AppointmentApproved{
		AppointmentSnapshot: snapshot("PENDING_APPROVAL"),
		ApproverID:          "fac1",
		Recipients:          []string{"stu1"},
	})
	_ = bus.PublishSync(ctx, events.AppointmentApproved{
		AppointmentSnapshot: snapshot("SCHEDULED"),
		ApproverID:          "fac2",
		Recipients:          []string{"stu1"},
	})

	records := store.All()
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Title != "Meeting approval received" || !strings.Contains(records[0].Message, "Waiting for the remaining approvals") {
		t.Fatalf("unexpected intermediate notification %+v", records[0])
	}
	if records[1].Title != "Meeting confirmed" || records[1].Type != inapp.TypeApproved {
		t.Fatalf("unexpected final notification %+v", records[1])
	}
}

func TestEventTypesMapToNotificationTypes(t *testing.T) {
	cases := []struct {
		event events.Event
		want  inapp.Type
	}{
		{events.AppointmentRejected{AppointmentSnapshot: snapshot("REJECTED"), ApproverID: "fac1", Recipients: []string{"stu1"}}, inapp.TypeRejected},
		{events.AppointmentUpdated{AppointmentSnapshot: snapshot("PENDING_APPROVAL"), EditorID: "stu1", Recipients: []string{"fac1"}}, inapp.TypeSystem},
		{events.AppointmentCancelled{AppointmentSnapshot: snapshot("SCHEDULED"), CancelledBy: "stu1", Recipients: []string{"fac1"}}, inapp.TypeSystem},
		{events.AppointmentReminderDue{AppointmentSnapshot: snapshot("SCHEDULED"), Recipients: []string{"fac1"}}, inapp.TypeReminder},
	}

	for _, tc := range cases {
		_, store, bus := newTestModule(t)
		if err := bus.PublishSync(context.Background(), tc.event); err != nil {
			t.Fatalf("%s: %v", tc.event.EventName(), err)
		}
		records := store.All()
		if len(records) != 1 || records[0].Type != tc.want {
			t.Fatalf("%s: expected one %s record, got %+v", tc.event.EventName(), tc.want, records)
		}
		if records[0].Message == "" {
			t.Fatalf("%s: empty message", tc.event.EventName())
		}
	}
}

func TestEventWithoutRecipientsStoresNothing(t *testing.T) {
	_, store, bus := newTestModule(t)
	_ = bus.PublishSync(context.Background(), events.AppointmentCancelled{AppointmentSnapshot: snapshot("SCHEDULED"), CancelledBy: "stu1"})

	if got := len(store.All()); got != 0 {
		t.Fatalf("expected no records, got %d", got)
	}
}

func newNotificationRouter(m *Module) *gin.Engine {
	engine := gin.New()
	protected := engine.Group("/api/v1", func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			httpkit.SetIdentity(c, user, nil)
		}
	})
	m.RegisterRoutes(&apphttp.RouterContext{Engine: engine, Protected: protected})
	return engine
}

func TestNotificationRoutesAreScopedToRecipient(t *testing.T) {
	m, store, bus := newTestModule(t)
	_ = bus.PublishSync(context.Background(), events.AppointmentRequested{
		AppointmentSnapshot: snapshot("PENDING_APPROVAL"),
		Recipients:          []string{"fac1"},
	})
	record := store.All()[0]
	router := newNotificationRouter(m)

	do := func(method, path, user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		if user != "" {
			req.Header.Set("X-Test-User", user)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	if rec := do(http.MethodGet, "/api/v1/notifications/unread", "fac1"); rec.Code != http.StatusOK || rec.Body.String() != `{"count":1}` {
		t.Fatalf("unexpected unread response %d %s", rec.Code, rec.Body.String())
	}

	readPath := "/api/v1/notifications/" + record.ID.String() + "/read"
	if rec := do(http.MethodPatch, readPath, "stu1"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's notification, got %d", rec.Code)
	}
	if rec := do(http.MethodPatch, readPath, "fac1"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(http.MethodPatch, "/api/v1/notifications/not-a-uuid/read", "fac1"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec := do(http.MethodGet, "/api/v1/notifications?limit=500", "fac1")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"read":true`) || !strings.Contains(rec.Body.String(), `"limit":50`) {
		t.Fatalf("unexpected list response %d %s", rec.Code, rec.Body.String())
	}

	if rec := do(http.MethodGet, "/api/v1/notifications", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMarkAllReadReportsChangedRows(t *testing.T) {
	m, _, bus := newTestModule(t)
	for i := 0; i < 3; i++ {
		_ = bus.PublishSync(context.Background(), events.AppointmentReminderDue{
			AppointmentSnapshot: snapshot("SCHEDULED"),
			Recipients:          []string{"fac1"},
		})
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/notifications/read-all", nil)
	req.Header.Set("X-Test-User", "fac1")
	rec := httptest.NewRecorder()
	newNotificationRouter(m).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != `{"status":"ok","updated":3}` {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}
