package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWsUpgraderOriginPolicy(t *testing.T) {
	h := NewWsHandler(nil, nil, nil, []string{"https://noirkit.dev"})

	req := httptest.NewRequest(http.MethodGet, "/v1/ws", nil)
	if !h.upgrader.CheckOrigin(req) {
		t.Fatal("absent origin should be accepted")
	}

	req.Header.Set("Origin", "https://noirkit.dev")
	if !h.upgrader.CheckOrigin(req) {
		t.Fatal("allow-listed origin rejected")
	}

	req.Header.Set("Origin", "https://evil.example")
	if h.upgrader.CheckOrigin(req) {
		t.Fatal("foreign origin accepted")
	}

	// 空白名单回退为同源检查。
	sameHost := NewWsHandler(nil, nil, nil, nil)
	req = httptest.NewRequest(http.MethodGet, "/v1/ws", nil)
	req.Host = "dash.noirkit.dev"
	req.Header.Set("Origin", "https://dash.noirkit.dev")
	if !sameHost.upgrader.CheckOrigin(req) {
		t.Fatal("same-host origin rejected")
	}
	req.Header.Set("Origin", "https://other.example")
	if sameHost.upgrader.CheckOrigin(req) {
		t.Fatal("cross-host origin accepted without allow-list")
	}
}

func TestForwardableNotification(t *testing.T) {
	cases := []struct {
		payload string
		ok      bool
	}{
		{`{"type":"contact_submission","submission_id":7,"sender_name":"Alice"}`, true},
		{`{"type":""}`, false},
		{`{}`, false},
		{`not json`, false},
		{`[]`, false},
	}
	for _, tc := range cases {
		if got := forwardableNotification([]byte(tc.payload)); got != tc.ok {
			t.Fatalf("forwardableNotification(%q) = %v, want %v", tc.payload, got, tc.ok)
		}
	}
}
