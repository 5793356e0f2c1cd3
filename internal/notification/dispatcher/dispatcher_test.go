package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"faculty_meetings_backend/internal/notification/inapp"

	"github.com/google/uuid"
)

type testDispatchConfig struct {
	retries int
	fanout  int
}

func (c testDispatchConfig) GetPushAttemptTimeout() time.Duration { return 50 * time.Millisecond }
func (c testDispatchConfig) GetPushMaxRetries() int               { return c.retries }
func (c testDispatchConfig) GetPushRetryBaseDelay() time.Duration { return time.Millisecond }
func (c testDispatchConfig) GetNotificationFanoutLimit() int      { return c.fanout }

type fakeTokens struct {
	tokens map[string]string
	err    error
}

func (f fakeTokens) Get(_ context.Context, userID string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	token, ok := f.tokens[userID]
	return token, ok, nil
}

type gatewayError struct {
	status int
}

func (e gatewayError) Error() string   { return "gateway error" }
func (e gatewayError) Permanent() bool { return e.status >= 400 && e.status < 500 && e.status != 429 }

// scriptedTransport returns errs in order per token, then succeeds.
type scriptedTransport struct {
	mu    sync.Mutex
	errs  map[string][]error
	calls map[string]int
	data  map[string]map[string]string
}

func newScriptedTransport(errs map[string][]error) *scriptedTransport {
	return &scriptedTransport{errs: errs, calls: map[string]int{}, data: map[string]map[string]string{}}
}

func (s *scriptedTransport) Send(_ context.Context, token, _, _ string, data map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls[token]
	s.calls[token]++
	s.data[token] = data
	if queued := s.errs[token]; idx < len(queued) {
		return queued[idx]
	}
	return nil
}

func (s *scriptedTransport) callsFor(token string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[token]
}

type alwaysFailing struct{}

func (alwaysFailing) Send(context.Context, string, string, string, map[string]string) error {
	return errors.New("connection refused")
}

type blockingTransport struct{}

func (blockingTransport) Send(ctx context.Context, _, _, _ string, _ map[string]string) error {
	<-ctx.Done()
	return ctx.Err()
}

func newEvent(recipients ...string) Event {
	id := uuid.New()
	return Event{
		Type:          inapp.TypeRequest,
		AppointmentID: &id,
		Title:         "Meeting request",
		Message:       "Thesis review on 10 Jan",
		Recipients:    recipients,
	}
}

func recordFor(t *testing.T, store *inapp.MemoryStore, recipient string) inapp.Notification {
	t.Helper()
	var found []inapp.Notification
	for _, n := range store.All() {
		if n.RecipientID == recipient {
			found = append(found, n)
		}
	}
	if len(found) != 1 {
		t.Fatalf("expected exactly one record for %s, got %d", recipient, len(found))
	}
	return found[0]
}

func TestDispatchKeepsRecordWhenPushAlwaysFails(t *testing.T) {
	store := inapp.NewMemoryStore()
	d := New(inapp.NewService(store, nil), fakeTokens{tokens: map[string]string{"fac1": "tok-fac1"}}, alwaysFailing{}, testDispatchConfig{retries: 3}, nil)

	result := d.Dispatch(context.Background(), newEvent("fac1"))

	if result.Outcomes["fac1"] != OutcomeFailed {
		t.Fatalf("expected failed outcome, got %v", result.Outcomes)
	}
	record := recordFor(t, store, "fac1")
	if record.IsRead {
		t.Fatal("record must stay unread")
	}
	if record.DeliveryStatus != inapp.DeliveryFailed || record.DeliveryAttempts != 4 {
		t.Fatalf("expected failed after 4 attempts, got %s/%d", record.DeliveryStatus, record.DeliveryAttempts)
	}
	if record.LastError == nil || *record.LastError != "connection refused" {
		t.Fatalf("expected last error to be recorded, got %v", record.LastError)
	}
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	store := inapp.NewMemoryStore()
	transport := newScriptedTransport(map[string][]error{
		"tok-a": {errors.New("timeout"), gatewayError{status: 503}},
	})
	d := New(inapp.NewService(store, nil), fakeTokens{tokens: map[string]string{"A": "tok-a"}}, transport, testDispatchConfig{retries: 3}, nil)

	result := d.Dispatch(context.Background(), newEvent("A"))

	if result.Outcomes["A"] != OutcomeSent {
		t.Fatalf("expected sent, got %v", result.Outcomes)
	}
	if got := transport.callsFor("tok-a"); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	record := recordFor(t, store, "A")
	if record.DeliveryStatus != inapp.DeliverySent || record.DeliveryAttempts != 3 || record.LastError != nil {
		t.Fatalf("unexpected bookkeeping %+v", record)
	}
}

func TestDispatchDoesNotRetryPermanentFailures(t *testing.T) {
	store := inapp.NewMemoryStore()
	transport := newScriptedTransport(map[string][]error{
		"tok-a": {gatewayError{status: 400}},
	})
	d := New(inapp.NewService(store, nil), fakeTokens{tokens: map[string]string{"A": "tok-a"}}, transport, testDispatchConfig{retries: 3}, nil)

	result := d.Dispatch(context.Background(), newEvent("A"))

	if result.Outcomes["A"] != OutcomeFailed {
		t.Fatalf("expected failed, got %v", result.Outcomes)
	}
	if got := transport.callsFor("tok-a"); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestDispatchRetriesRateLimiting(t *testing.T) {
	transport := newScriptedTransport(map[string][]error{
		"tok-a": {gatewayError{status: 429}},
	})
	d := New(inapp.NewService(inapp.NewMemoryStore(), nil), fakeTokens{tokens: map[string]string{"A": "tok-a"}}, transport, testDispatchConfig{retries: 3}, nil)

	if got := d.Dispatch(context.Background(), newEvent("A")).Outcomes["A"]; got != OutcomeSent {
		t.Fatalf("expected sent after retry, got %s", got)
	}
	if got := transport.callsFor("tok-a"); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestDispatchSkipsRecipientsWithoutToken(t *testing.T) {
	store := inapp.NewMemoryStore()
	transport := newScriptedTransport(nil)
	d := New(inapp.NewService(store, nil), fakeTokens{tokens: map[string]string{"A": "tok-a"}}, transport, testDispatchConfig{retries: 3}, nil)

	result := d.Dispatch(context.Background(), newEvent("A", "B", "A", " "))

	if len(result.Outcomes) != 2 {
		t.Fatalf("expected de-duplicated recipients, got %v", result.Outcomes)
	}
	if result.Outcomes["A"] != OutcomeSent || result.Outcomes["B"] != OutcomeSkipped {
		t.Fatalf("unexpected outcomes %v", result.Outcomes)
	}
	if record := recordFor(t, store, "B"); record.DeliveryStatus != inapp.DeliverySkipped {
		t.Fatalf("expected skipped bookkeeping, got %s", record.DeliveryStatus)
	}
	recordFor(t, store, "A")
}

func TestDispatchTreatsTokenLookupErrorsAsAbsent(t *testing.T) {
	store := inapp.NewMemoryStore()
	d := New(inapp.NewService(store, nil), fakeTokens{err: errors.New("redis down")}, newScriptedTransport(nil), testDispatchConfig{retries: 3}, nil)

	if got := d.Dispatch(context.Background(), newEvent("A")).Outcomes["A"]; got != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", got)
	}
	recordFor(t, store, "A")
}

func TestDispatchWithoutTransportStoresAndSkips(t *testing.T) {
	store := inapp.NewMemoryStore()
	d := New(inapp.NewService(store, nil), fakeTokens{tokens: map[string]string{"A": "tok-a"}}, nil, nil, nil)

	if got := d.Dispatch(context.Background(), newEvent("A")).Outcomes["A"]; got != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", got)
	}
	recordFor(t, store, "A")
}

func TestDispatchBoundsEachAttempt(t *testing.T) {
	store := inapp.NewMemoryStore()
	d := New(inapp.NewService(store, nil), fakeTokens{tokens: map[string]string{"A": "tok-a"}}, blockingTransport{}, testDispatchConfig{retries: 1}, nil)

	start := time.Now()
	result := d.Dispatch(context.Background(), newEvent("A"))
	if result.Outcomes["A"] != OutcomeFailed {
		t.Fatalf("expected failed, got %v", result.Outcomes)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("attempt timeout not applied, took %s", elapsed)
	}
	if record := recordFor(t, store, "A"); record.DeliveryAttempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", record.DeliveryAttempts)
	}
}

func TestDispatchAddsRoutingData(t *testing.T) {
	transport := newScriptedTransport(nil)
	d := New(inapp.NewService(inapp.NewMemoryStore(), nil), fakeTokens{tokens: map[string]string{"A": "tok-a"}}, transport, testDispatchConfig{retries: 0}, nil)

	evt := newEvent("A")
	evt.Data = map[string]string{"status": "PENDING_APPROVAL"}
	d.Dispatch(context.Background(), evt)

	data := transport.data["tok-a"]
	if data["type"] != "REQUEST" || data["appointmentId"] != evt.AppointmentID.String() || data["status"] != "PENDING_APPROVAL" || data["notificationId"] == "" {
		t.Fatalf("unexpected push data %v", data)
	}
}

func TestBackoffScheduleTriplesUntilRetriesRunOut(t *testing.T) {
	b := newBackoff(time.Second, 3)

	want := []time.Duration{time.Second, 3 * time.Second, 9 * time.Second}
	for i, w := range want {
		got, stop := b.Next()
		if stop || got != w {
			t.Fatalf("step %d: got %s stop=%v, want %s", i, got, stop, w)
		}
	}
	if _, stop := b.Next(); !stop {
		t.Fatal("expected backoff to stop after three retries")
	}
}

func TestDispatchFanoutRespectsLimit(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		highest int
	)
	transport := transportFunc(func(ctx context.Context) error {
		mu.Lock()
		active++
		if active > highest {
			highest = active
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	})

	tokens := map[string]string{}
	recipients := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		id := uuid.NewString()
		tokens[id] = "tok-" + id
		recipients = append(recipients, id)
	}

	d := New(inapp.NewService(inapp.NewMemoryStore(), nil), fakeTokens{tokens: tokens}, transport, testDispatchConfig{fanout: 2}, nil)
	result := d.Dispatch(context.Background(), newEvent(recipients...))

	if len(result.Outcomes) != 10 {
		t.Fatalf("expected 10 outcomes, got %d", len(result.Outcomes))
	}
	if highest > 2 {
		t.Fatalf("expected at most 2 concurrent sends, saw %d", highest)
	}
}

type transportFunc func(ctx context.Context) error

func (f transportFunc) Send(ctx context.Context, _, _, _ string, _ map[string]string) error {
	return f(ctx)
}
