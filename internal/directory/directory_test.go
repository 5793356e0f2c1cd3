package directory

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"faculty_meetings_backend/platform/httpkit"
	"faculty_meetings_backend/platform/validator"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestTokenStoreLastWriteWins(t *testing.T) {
	_, rdb := newRedis(t)
	store := NewTokenStore(rdb, 0)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "stu1"); err != nil || ok {
		t.Fatalf("expected no token, got ok=%v err=%v", ok, err)
	}

	_ = store.Set(ctx, "stu1", "device-a")
	_ = store.Set(ctx, "stu1", "device-b")

	token, ok, err := store.Get(ctx, "stu1")
	if err != nil || !ok || token != "device-b" {
		t.Fatalf("expected device-b, got %q ok=%v err=%v", token, ok, err)
	}

	if err := store.Remove(ctx, "stu1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "stu1"); ok {
		t.Fatal("token should be gone after Remove")
	}
}

func TestTokenStoreExpiresTokens(t *testing.T) {
	mr, rdb := newRedis(t)
	store := NewTokenStore(rdb, time.Hour)
	ctx := context.Background()

	_ = store.Set(ctx, "fac1", "device")
	mr.FastForward(59 * time.Minute)
	if _, ok, _ := store.Get(ctx, "fac1"); !ok {
		t.Fatal("token expired too early")
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, _ := store.Get(ctx, "fac1"); ok {
		t.Fatal("token should have expired")
	}
}

func TestTokenStoreRejectsBlankToken(t *testing.T) {
	_, rdb := newRedis(t)
	if err := NewTokenStore(rdb, 0).Set(context.Background(), "u", "  "); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestFacultyStore(t *testing.T) {
	_, rdb := newRedis(t)
	store := NewFacultyStore(rdb)
	ctx := context.Background()

	if err := store.Add(ctx, "fac2", "fac1"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ok, _ := store.IsFaculty(ctx, "fac1"); !ok {
		t.Fatal("fac1 should be faculty")
	}
	if ok, _ := store.IsFaculty(ctx, "stu1"); ok {
		t.Fatal("stu1 should not be faculty")
	}

	list, _ := store.List(ctx)
	if !reflect.DeepEqual(list, []string{"fac1", "fac2"}) {
		t.Fatalf("unexpected list %v", list)
	}

	_ = store.Remove(ctx, "fac1")
	if ok, _ := store.IsFaculty(ctx, "fac1"); ok {
		t.Fatal("fac1 should be removed")
	}
}

func TestSeedFile(t *testing.T) {
	_, rdb := newRedis(t)
	faculty := NewFacultyStore(rdb)

	path := filepath.Join(t.TempDir(), "faculty.yaml")
	if err := os.WriteFile(path, []byte("faculty:\n  - prof.a\n  - prof.b\n"), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	seed, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	added, err := ApplySeed(context.Background(), faculty, seed)
	if err != nil || added != 2 {
		t.Fatalf("ApplySeed: added=%d err=%v", added, err)
	}
	if ok, _ := faculty.IsFaculty(context.Background(), "prof.b"); !ok {
		t.Fatal("seeded faculty missing")
	}

	if _, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing seed file")
	}
}

func TestRegisterTokenHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, rdb := newRedis(t)
	tokens := NewTokenStore(rdb, 0)
	h := NewHandler(tokens, NewFacultyStore(rdb), validator.New())

	engine := gin.New()
	engine.Use(func(c *gin.Context) { httpkit.SetIdentity(c, "stu1", nil) })
	engine.PUT("/push-token", h.RegisterToken)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/push-token", bytes.NewBufferString(`{"token":"abc"}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if token, ok, _ := tokens.Get(context.Background(), "stu1"); !ok || token != "abc" {
		t.Fatalf("token not stored: %q", token)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/push-token", bytes.NewBufferString(`{"token":" "}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank token: expected 400, got %d", rec.Code)
	}
}
