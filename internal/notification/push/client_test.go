package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type testPushConfig struct {
	url string
}

func (c testPushConfig) GetPushGatewayURL() string { return c.url }
func (c testPushConfig) GetPushGatewayKey() string { return "gateway-key" }
func (c testPushConfig) IsPushEnabled() bool       { return c.url != "" }

func TestNewClientDisabledWithoutURL(t *testing.T) {
	if c := NewClient(testPushConfig{}, nil); c != nil {
		t.Fatal("expected nil client when gateway url is empty")
	}
}

func TestSendPostsPayload(t *testing.T) {
	var got gatewayRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(testPushConfig{url: server.URL + "/"}, nil)
	err := client.Send(context.Background(), "tok-1", "Meeting request", "Thesis review", map[string]string{"type": "REQUEST"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if auth != "Bearer gateway-key" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if got.To != "tok-1" || got.Title != "Meeting request" || got.Data["type"] != "REQUEST" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestSendClassifiesGatewayErrors(t *testing.T) {
	cases := []struct {
		status    int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusNotFound, true},
		{http.StatusRequestTimeout, false},
		{http.StatusTooManyRequests, false},
		{http.StatusBadGateway, false},
	}

	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", tc.status)
		}))

		err := NewClient(testPushConfig{url: server.URL}, nil).Send(context.Background(), "tok", "t", "b", nil)
		server.Close()

		var sendErr *SendError
		if !errors.As(err, &sendErr) {
			t.Fatalf("status %d: expected SendError, got %v", tc.status, err)
		}
		if sendErr.StatusCode != tc.status || sendErr.Body != "nope" {
			t.Fatalf("status %d: unexpected error %+v", tc.status, sendErr)
		}
		if IsPermanent(err) != tc.permanent {
			t.Errorf("status %d: permanent = %v, want %v", tc.status, IsPermanent(err), tc.permanent)
		}
	}
}

func TestSendHonoursContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := NewClient(testPushConfig{url: server.URL}, nil).Send(ctx, "tok", "t", "b", nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if IsPermanent(err) {
		t.Fatal("timeouts must be retryable")
	}
}
