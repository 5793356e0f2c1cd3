// Package dispatcher fans a notification out to its recipients. Each
// recipient gets a stored in-app record first; push delivery is attempted
// afterwards and its outcome is written back onto that same record.
package dispatcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"faculty_meetings_backend/internal/notification/inapp"
	"faculty_meetings_backend/platform/config"
	"faculty_meetings_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

const (
	defaultAttemptTimeout = 5 * time.Second
	defaultMaxRetries     = 3
	defaultRetryBase      = time.Second
	defaultFanout         = 8
	backoffFactor         = 3
)

// Outcome is the per-recipient result of a dispatch.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Event is one notification addressed to a set of recipients.
type Event struct {
	Type          inapp.Type
	AppointmentID *uuid.UUID
	Title         string
	Message       string
	Data          map[string]string
	Recipients    []string
}

// Result maps every distinct recipient to its delivery outcome.
type Result struct {
	Outcomes map[string]Outcome
}

// TokenLookup resolves a user's current device token.
type TokenLookup interface {
	Get(ctx context.Context, userID string) (string, bool, error)
}

// Transport sends one push message.
type Transport interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// RecordStore persists in-app records and their delivery bookkeeping.
type RecordStore interface {
	Send(ctx context.Context, p inapp.CreateParams) (inapp.Notification, error)
	RecordDelivery(ctx context.Context, id uuid.UUID, u inapp.DeliveryUpdate) error
}

// permanentError is implemented by transport errors that must not be retried.
type permanentError interface {
	Permanent() bool
}

type Dispatcher struct {
	records        RecordStore
	tokens         TokenLookup
	transport      Transport
	log            *logger.Logger
	attemptTimeout time.Duration
	maxRetries     int
	retryBase      time.Duration
	fanout         int
}

// New creates a dispatcher. A nil transport disables push; records are still
// stored and marked skipped.
func New(records RecordStore, tokens TokenLookup, transport Transport, cfg config.DispatchConfig, log *logger.Logger) *Dispatcher {
	d := &Dispatcher{
		records:        records,
		tokens:         tokens,
		transport:      transport,
		log:            log,
		attemptTimeout: defaultAttemptTimeout,
		maxRetries:     defaultMaxRetries,
		retryBase:      defaultRetryBase,
		fanout:         defaultFanout,
	}
	if cfg != nil {
		if v := cfg.GetPushAttemptTimeout(); v > 0 {
			d.attemptTimeout = v
		}
		if v := cfg.GetPushMaxRetries(); v >= 0 {
			d.maxRetries = v
		}
		if v := cfg.GetPushRetryBaseDelay(); v > 0 {
			d.retryBase = v
		}
		if v := cfg.GetNotificationFanoutLimit(); v > 0 {
			d.fanout = v
		}
	}
	return d
}

// Dispatch delivers evt to every distinct recipient concurrently. It never
// fails; per-recipient problems are logged and reported in the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) Result {
	recipients := uniqueRecipients(evt.Recipients)
	result := Result{Outcomes: make(map[string]Outcome, len(recipients))}
	if len(recipients) == 0 {
		return result
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(d.fanout)
	for _, recipient := range recipients {
		g.Go(func() error {
			outcome := d.deliver(ctx, evt, recipient)
			mu.Lock()
			result.Outcomes[recipient] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return result
}

func (d *Dispatcher) deliver(ctx context.Context, evt Event, recipient string) Outcome {
	record, err := d.records.Send(ctx, inapp.CreateParams{
		RecipientID:   recipient,
		AppointmentID: evt.AppointmentID,
		Type:          evt.Type,
		Title:         evt.Title,
		Message:       evt.Message,
	})
	if err != nil {
		d.logDelivery(recipient, "", OutcomeFailed, 0, err)
		return OutcomeFailed
	}

	if d.transport == nil {
		return d.finish(ctx, recipient, record.ID, OutcomeSkipped, 0, nil)
	}

	token, ok := d.lookupToken(ctx, recipient)
	if !ok {
		return d.finish(ctx, recipient, record.ID, OutcomeSkipped, 0, nil)
	}

	attempts, err := d.send(ctx, token, evt, record.ID)
	if err != nil {
		return d.finish(ctx, recipient, record.ID, OutcomeFailed, attempts, err)
	}
	return d.finish(ctx, recipient, record.ID, OutcomeSent, attempts, nil)
}

// lookupToken treats lookup errors as an absent token.
func (d *Dispatcher) lookupToken(ctx context.Context, recipient string) (string, bool) {
	if d.tokens == nil {
		return "", false
	}
	token, ok, err := d.tokens.Get(ctx, recipient)
	if err != nil {
		if d.log != nil {
			d.log.Warn("push token lookup failed", "recipientId", recipient, "error", err)
		}
		return "", false
	}
	return token, ok && strings.TrimSpace(token) != ""
}

func (d *Dispatcher) send(ctx context.Context, token string, evt Event, notificationID uuid.UUID) (int, error) {
	data := pushData(evt, notificationID)
	attempts := 0

	err := retry.Do(ctx, newBackoff(d.retryBase, d.maxRetries), func(ctx context.Context) error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
		defer cancel()

		err := d.transport.Send(attemptCtx, token, evt.Title, evt.Message, data)
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) && perm.Permanent() {
			return err
		}
		return retry.RetryableError(err)
	})

	return attempts, err
}

func (d *Dispatcher) finish(ctx context.Context, recipient string, id uuid.UUID, outcome Outcome, attempts int, sendErr error) Outcome {
	update := inapp.DeliveryUpdate{Status: deliveryStatus(outcome), Attempts: attempts}
	if sendErr != nil {
		update.LastError = sendErr.Error()
	}
	if err := d.records.RecordDelivery(ctx, id, update); err != nil && d.log != nil {
		d.log.Error("failed to record push delivery", "notificationId", id, "error", err)
	}

	d.logDelivery(recipient, id.String(), outcome, attempts, sendErr)
	return outcome
}

func (d *Dispatcher) logDelivery(recipient, notificationID string, outcome Outcome, attempts int, err error) {
	if d.log == nil {
		return
	}
	d.log.PushDelivery(recipient, notificationID, string(outcome), attempts, err)
}

// newBackoff waits base, base*3, base*9, ... between attempts and stops
// after maxRetries retries.
func newBackoff(base time.Duration, maxRetries int) retry.Backoff {
	next := base
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		current := next
		next *= backoffFactor
		return current, false
	})
	return retry.WithMaxRetries(uint64(maxRetries), b)
}

func deliveryStatus(o Outcome) inapp.DeliveryStatus {
	switch o {
	case OutcomeSent:
		return inapp.DeliverySent
	case OutcomeSkipped:
		return inapp.DeliverySkipped
	default:
		return inapp.DeliveryFailed
	}
}

func pushData(evt Event, notificationID uuid.UUID) map[string]string {
	data := make(map[string]string, len(evt.Data)+3)
	for k, v := range evt.Data {
		data[k] = v
	}
	data["type"] = string(evt.Type)
	data["notificationId"] = notificationID.String()
	if evt.AppointmentID != nil {
		data["appointmentId"] = evt.AppointmentID.String()
	}
	return data
}

func uniqueRecipients(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
