package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"noirkit/internal/contact"
	"noirkit/internal/database"
)

type fakeCounter struct {
	counts map[string]int64
	fail   bool
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}}
}

func (f *fakeCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	if f.fail {
		return redis.NewIntResult(0, errors.New("redis down"))
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCounter) Expire(_ context.Context, _ string, _ time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

func newContactTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&database.ContactSubmission{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pipeline := contact.NewPipeline(db, newFakeCounter(), 5, 15*time.Minute, 5*time.Minute, []string{"https://noirkit.dev"})
	handler := NewContactHandler(pipeline, nil, nil)

	router := gin.New()
	router.POST("/v1/public/contact", handler.Submit)
	return router
}

func postContact(t *testing.T, router *gin.Engine, payload map[string]any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/public/contact", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func validPayload() map[string]any {
	return map[string]any{
		"portfolioOwnerId": "1",
		"formData": map[string]any{
			"name":    "Alice",
			"email":   "alice@example.com",
			"message": "<b>Hello</b>, I would love to work with you.",
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"userAgent": "test-agent",
	}
}

func TestContactSubmitSuccess(t *testing.T) {
	router := newContactTestRouter(t)

	w := postContact(t, router, validPayload(), map[string]string{"X-Real-IP": "203.0.113.4"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Message string `json:"message"`
		Data    struct {
			FormData map[string]any `json:"form_data"`
		} `json:"data"`
		RateLimitRemaining int `json:"rateLimitRemaining"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RateLimitRemaining != 4 {
		t.Fatalf("rateLimitRemaining = %d, want 4", resp.RateLimitRemaining)
	}
	if resp.Data.FormData["message"] != "bHello/b, I would love to work with you." {
		t.Fatalf("sanitized message = %q", resp.Data.FormData["message"])
	}
}

func TestContactSubmitRejectionMapsStatus(t *testing.T) {
	router := newContactTestRouter(t)

	payload := validPayload()
	payload["portfolioOwnerId"] = ""
	w := postContact(t, router, payload, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	w = postContact(t, router, validPayload(), map[string]string{"Origin": "https://evil.example"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] == "" {
		t.Fatal("rejection should carry error message")
	}
}

func TestContactSubmitRateLimited(t *testing.T) {
	router := newContactTestRouter(t)

	headers := map[string]string{"X-Forwarded-For": "198.51.100.7"}
	for i := 0; i < 5; i++ {
		if w := postContact(t, router, validPayload(), headers); w.Code != http.StatusOK {
			t.Fatalf("submit %d: status = %d", i+1, w.Code)
		}
	}
	if w := postContact(t, router, validPayload(), headers); w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
}
