package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openalgo/gateway/errs"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := New(Config{
		Broker:      "testbroker",
		BaseURL:     server.URL,
		Timeout:     2 * time.Second,
		RateLimit:   1000,
		Burst:       10,
		MaxAttempts: 3,
	})
	return client, server
}

func TestGetJSONDecodesBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quotes" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "RELIANCE" {
			t.Errorf("unexpected symbol query %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ltp":"2810.55"}`))
	}))

	var out struct {
		LTP string `json:"ltp"`
	}
	query := url.Values{"symbol": {"RELIANCE"}}
	if err := client.GetJSON(context.Background(), "/quotes", query, nil, &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if out.LTP != "2810.55" {
		t.Fatalf("expected ltp 2810.55, got %s", out.LTP)
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	var out struct {
		OK bool `json:"ok"`
	}
	if err := client.GetJSON(context.Background(), "/orders", nil, nil, &out); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
	if !out.OK {
		t.Fatal("expected decoded ok=true")
	}
}

func TestOnRetryFiresPerRetriedAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	var retries atomic.Int32
	client := New(Config{
		Broker:      "testbroker",
		BaseURL:     server.URL,
		Timeout:     2 * time.Second,
		RateLimit:   1000,
		Burst:       10,
		MaxAttempts: 3,
		OnRetry:     func() { retries.Add(1) },
	})
	if err := client.GetJSON(context.Background(), "/orderbook", nil, nil, nil); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if n := retries.Load(); n != 2 {
		t.Fatalf("expected 2 retry callbacks, got %d", n)
	}
}

func TestPostIsNotRetriedByDefault(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	err := client.PostJSON(context.Background(), "/placeorder", nil, map[string]string{"symbol": "SBIN"}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("order placement must not be retried, got %d attempts", n)
	}
}

func TestStatusErrorNormalization(t *testing.T) {
	cases := []struct {
		status    int
		code      errs.Code
		canonical errs.CanonicalCode
	}{
		{http.StatusUnauthorized, errs.CodeAuth, errs.CanonicalSessionExpired},
		{http.StatusTooManyRequests, errs.CodeRateLimited, errs.CanonicalRateLimited},
		{http.StatusBadRequest, errs.CodeInvalid, errs.CanonicalUnknown},
		{http.StatusNotFound, errs.CodeNotFound, errs.CanonicalUnknown},
	}
	for _, tc := range cases {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"message":"broker said no"}`))
		}))
		err := client.PostJSON(context.Background(), "/x", nil, nil, nil)
		var envelope *errs.E
		if !errors.As(err, &envelope) {
			t.Fatalf("status %d: expected errs.E, got %T", tc.status, err)
		}
		if envelope.Code != tc.code {
			t.Errorf("status %d: expected code %s, got %s", tc.status, tc.code, envelope.Code)
		}
		if envelope.Canonical != tc.canonical {
			t.Errorf("status %d: expected canonical %s, got %s", tc.status, tc.canonical, envelope.Canonical)
		}
		if envelope.HTTP != tc.status {
			t.Errorf("expected http status %d recorded, got %d", tc.status, envelope.HTTP)
		}
	}
}

func TestFormEncoding(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("unexpected content type %s", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("jKey") != "token123" {
			t.Errorf("missing jKey field")
		}
		_, _ = w.Write([]byte(`{"stat":"Ok"}`))
	}))

	form := url.Values{"jData": {`{"uid":"FT0001"}`}, "jKey": {"token123"}}
	var out struct {
		Stat string `json:"stat"`
	}
	if err := client.PostForm(context.Background(), "/QuickAuth", nil, form, &out); err != nil {
		t.Fatalf("PostForm() error = %v", err)
	}
	if out.Stat != "Ok" {
		t.Fatalf("expected stat Ok, got %s", out.Stat)
	}
}
