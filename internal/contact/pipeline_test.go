package contact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

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

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
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
	return db
}

func newTestPipeline(t *testing.T, counter RateCounter) *Pipeline {
	t.Helper()
	p := NewPipeline(newTestDB(t), counter, 5, 15*time.Minute, 5*time.Minute, []string{"https://noirkit.dev"})
	fixed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }
	return p
}

func validRequest(p *Pipeline) SubmitRequest {
	return SubmitRequest{
		PortfolioOwnerID: "1",
		FormData: map[string]any{
			"name":    "Alice",
			"email":   "alice@example.com",
			"message": "Hello, I would love to work with you.",
		},
		Timestamp: p.now().Format(time.RFC3339),
		UserAgent: "test-agent",
	}
}

func rejectionStatus(t *testing.T, err error) int {
	t.Helper()
	var rejection *Rejection
	if !errors.As(err, &rejection) {
		t.Fatalf("err = %v, want *Rejection", err)
	}
	return rejection.Status
}

func TestSubmitSuccess(t *testing.T) {
	p := newTestPipeline(t, newFakeCounter())
	req := validRequest(p)
	req.FormData["message"] = "  Hello, I would love to work with you.  "

	submission, remaining, err := p.Submit(context.Background(), req, RequestMeta{RealIP: "203.0.113.9"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if remaining != 4 {
		t.Fatalf("remaining = %d, want 4", remaining)
	}
	if submission.UserID != 1 {
		t.Fatalf("owner = %d", submission.UserID)
	}
	if submission.SubmitterIP != "203.0.113.9" {
		t.Fatalf("submitter ip = %q", submission.SubmitterIP)
	}
	if !submission.SubmittedAt.Equal(p.now().UTC()) {
		t.Fatalf("submitted at = %v", submission.SubmittedAt)
	}

	var stored map[string]any
	if err := json.Unmarshal(submission.FormData, &stored); err != nil {
		t.Fatalf("unmarshal stored form data: %v", err)
	}
	if stored["message"] != "Hello, I would love to work with you." {
		t.Fatalf("message not trimmed: %q", stored["message"])
	}
}

func TestSubmitRateLimitPerIP(t *testing.T) {
	p := newTestPipeline(t, newFakeCounter())

	for i := 0; i < 5; i++ {
		if _, _, err := p.Submit(context.Background(), validRequest(p), RequestMeta{RealIP: "198.51.100.1"}); err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
	}

	_, _, err := p.Submit(context.Background(), validRequest(p), RequestMeta{RealIP: "198.51.100.1"})
	if status := rejectionStatus(t, err); status != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", status)
	}

	// 其他 IP 不受影响。
	if _, _, err := p.Submit(context.Background(), validRequest(p), RequestMeta{RealIP: "198.51.100.2"}); err != nil {
		t.Fatalf("different ip blocked: %v", err)
	}
}

func TestSubmitRateLimitFailsOpen(t *testing.T) {
	counter := newFakeCounter()
	counter.fail = true
	p := newTestPipeline(t, counter)

	if _, _, err := p.Submit(context.Background(), validRequest(p), RequestMeta{}); err != nil {
		t.Fatalf("redis failure must not block submission: %v", err)
	}
}

func TestSubmitClientIPPrecedence(t *testing.T) {
	p := newTestPipeline(t, newFakeCounter())

	meta := RequestMeta{ForwardedFor: "203.0.113.7, 10.0.0.1", RealIP: "198.51.100.9"}
	submission, _, err := p.Submit(context.Background(), validRequest(p), meta)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if submission.SubmitterIP != "203.0.113.7" {
		t.Fatalf("ip = %q, want first forwarded entry", submission.SubmitterIP)
	}

	submission, _, err = p.Submit(context.Background(), validRequest(p), RequestMeta{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if submission.SubmitterIP != "unknown" {
		t.Fatalf("ip = %q, want unknown", submission.SubmitterIP)
	}
}

func TestSubmitRejectsForeignOrigin(t *testing.T) {
	p := newTestPipeline(t, newFakeCounter())

	_, _, err := p.Submit(context.Background(), validRequest(p), RequestMeta{Origin: "https://evil.example"})
	if status := rejectionStatus(t, err); status != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", status)
	}

	// 头缺失可接受；白名单子串命中可接受。
	if _, _, err := p.Submit(context.Background(), validRequest(p), RequestMeta{}); err != nil {
		t.Fatalf("absent headers rejected: %v", err)
	}
	if _, _, err := p.Submit(context.Background(), validRequest(p), RequestMeta{Referer: "https://noirkit.dev/contact"}); err != nil {
		t.Fatalf("allowed referer rejected: %v", err)
	}
}

func TestSubmitRejectsInvalidOwner(t *testing.T) {
	p := newTestPipeline(t, newFakeCounter())

	for _, owner := range []string{"", "abc", "0"} {
		req := validRequest(p)
		req.PortfolioOwnerID = owner
		_, _, err := p.Submit(context.Background(), req, RequestMeta{})
		if status := rejectionStatus(t, err); status != http.StatusBadRequest {
			t.Fatalf("owner %q: status = %d, want 400", owner, status)
		}
	}
}

func TestSubmitReplayWindowBoundary(t *testing.T) {
	p := newTestPipeline(t, newFakeCounter())

	// 偏差恰好等于窗口：接受（闭区间）。
	req := validRequest(p)
	req.Timestamp = p.now().Add(-5 * time.Minute).Format(time.RFC3339)
	if _, _, err := p.Submit(context.Background(), req, RequestMeta{}); err != nil {
		t.Fatalf("boundary timestamp rejected: %v", err)
	}

	// 超过一秒：拒绝。未来方向同样适用。
	for _, offset := range []time.Duration{-5*time.Minute - time.Second, 5*time.Minute + time.Second} {
		req := validRequest(p)
		req.Timestamp = p.now().Add(offset).Format(time.RFC3339)
		_, _, err := p.Submit(context.Background(), req, RequestMeta{})
		if status := rejectionStatus(t, err); status != http.StatusBadRequest {
			t.Fatalf("offset %v: status = %d, want 400", offset, status)
		}
	}

	req = validRequest(p)
	req.Timestamp = "not-a-timestamp"
	_, _, err := p.Submit(context.Background(), req, RequestMeta{})
	if status := rejectionStatus(t, err); status != http.StatusBadRequest {
		t.Fatalf("invalid timestamp: status = %d, want 400", status)
	}
}

func TestSubmitValidatesRequiredFields(t *testing.T) {
	p := newTestPipeline(t, newFakeCounter())

	for _, missing := range []string{"name", "email", "message"} {
		req := validRequest(p)
		delete(req.FormData, missing)
		_, _, err := p.Submit(context.Background(), req, RequestMeta{})
		if err == nil {
			t.Fatalf("missing %q accepted", missing)
		}
		var rejection *Rejection
		if !errors.As(err, &rejection) {
			t.Fatalf("err = %v, want *Rejection", err)
		}
		if !strings.Contains(rejection.Message, missing) {
			t.Fatalf("message %q should name field %q", rejection.Message, missing)
		}
	}
}

func TestSubmitValidatesEmailFormat(t *testing.T) {
	p := newTestPipeline(t, newFakeCounter())

	req := validRequest(p)
	req.FormData["email"] = "not-an-email"
	_, _, err := p.Submit(context.Background(), req, RequestMeta{})
	if status := rejectionStatus(t, err); status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	var rejection *Rejection
	errors.As(err, &rejection)
	if !strings.Contains(rejection.Message, "email") {
		t.Fatalf("message %q should name email field", rejection.Message)
	}
}

func TestSubmitMessageLengthBoundaries(t *testing.T) {
	p := newTestPipeline(t, newFakeCounter())

	cases := []struct {
		length int
		ok     bool
	}{
		{9, false},
		{10, true},
		{1000, true},
		{1001, false},
	}
	for _, tc := range cases {
		req := validRequest(p)
		req.FormData["message"] = strings.Repeat("a", tc.length)
		_, _, err := p.Submit(context.Background(), req, RequestMeta{})
		if tc.ok && err != nil {
			t.Fatalf("length %d rejected: %v", tc.length, err)
		}
		if !tc.ok {
			if status := rejectionStatus(t, err); status != http.StatusBadRequest {
				t.Fatalf("length %d: status = %d, want 400", tc.length, status)
			}
		}
	}
}

func TestListSubmissionsOrderedByRecency(t *testing.T) {
	p := newTestPipeline(t, newFakeCounter())
	ctx := context.Background()

	base := p.now()
	for i, offset := range []time.Duration{-2 * time.Hour, -time.Minute, -24 * time.Hour} {
		submission := database.ContactSubmission{
			UserID:      1,
			FormData:    []byte(fmt.Sprintf(`{"message":"m%d"}`, i)),
			SubmittedAt: base.Add(offset),
		}
		if err := p.db.Create(&submission).Error; err != nil {
			t.Fatalf("seed submission: %v", err)
		}
	}
	other := database.ContactSubmission{UserID: 2, FormData: []byte(`{}`), SubmittedAt: base}
	if err := p.db.Create(&other).Error; err != nil {
		t.Fatalf("seed other owner: %v", err)
	}

	got, err := p.ListSubmissions(ctx, 1)
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d submissions, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].SubmittedAt.After(got[i-1].SubmittedAt) {
			t.Fatal("submissions not ordered by recency")
		}
	}
}
