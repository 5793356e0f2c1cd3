package httpkit

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"faculty_meetings_backend/platform/apperr"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type testJWTConfig struct{}

func (testJWTConfig) GetJWTAccessSecret() string { return "test-secret" }

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newAuthEngine() *gin.Engine {
	engine := gin.New()
	engine.GET("/me", AuthRequired(testJWTConfig{}), func(c *gin.Context) {
		id := MustGetIdentity(c)
		if id == nil {
			return
		}
		OK(c, gin.H{"userId": id.UserID(), "admin": id.HasRole(RoleAdmin)})
	})
	return engine
}

func TestAuthRequiredAcceptsAccessToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub":   "fac1",
		"type":  "access",
		"roles": []string{"admin"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	newAuthEngine().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := rec.Body.String(); body != `{"admin":true,"userId":"fac1"}` {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestAuthRequiredRejectsRefreshToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "fac1", "type": "refresh"})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	newAuthEngine().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRequiredAcceptsQueryTokenForStreams(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "stu1", "type": "access"})

	req := httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
	rec := httptest.NewRecorder()
	newAuthEngine().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthRequiredRejectsMissingSubject(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"type": "access"})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	newAuthEngine().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleErrorMapsWrappedDomainErrors(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
	}{
		{fmt.Errorf("approve: %w", apperr.InvalidState("not pending")), http.StatusUnprocessableEntity},
		{apperr.Forbidden("only the creator may edit"), http.StatusForbidden},
		{apperr.Concurrency("busy"), http.StatusServiceUnavailable},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		if !HandleError(c, tc.err) {
			t.Fatalf("expected error to be handled")
		}
		if rec.Code != tc.wantStatus {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.wantStatus, rec.Code)
		}
	}
}

func TestHandleErrorSetsRetryAfterOnConcurrency(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	HandleError(c, apperr.Concurrency("busy"))

	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestParseETag(t *testing.T) {
	cases := map[string]int{`W/"3"`: 3, `"12"`: 12, "7": 7}
	for raw, want := range cases {
		got, err := ParseETag(raw)
		if err != nil || got != want {
			t.Errorf("ParseETag(%q) = %d, %v; want %d", raw, got, err, want)
		}
	}

	for _, raw := range []string{`W/"abc"`, `"0"`, ""} {
		if _, err := ParseETag(raw); err == nil {
			t.Errorf("ParseETag(%q) expected error", raw)
		}
	}
}

func TestIfMatchVersion(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPatch, "/", nil)

	version, err := IfMatchVersion(c)
	if err != nil || version != nil {
		t.Fatalf("expected no version without header, got %v, %v", version, err)
	}

	c.Request.Header.Set("If-Match", FormatETag(4))
	version, err = IfMatchVersion(c)
	if err != nil || version == nil || *version != 4 {
		t.Fatalf("expected version 4, got %v, %v", version, err)
	}

	c.Request.Header.Set("If-Match", "*")
	if _, err := IfMatchVersion(c); !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request for wildcard, got %v", err)
	}
}
