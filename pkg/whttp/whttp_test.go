package whttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kashisync/kashisync/pkg/callerr"
)

func TestSendHTTPRequestTitleAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><head><title>\n  抹茶ロール \n</title></head><body>x</body></html>"))
	}))
	defer srv.Close()

	res, err := SendHTTPRequest(context.Background(), &WHTTPReq{
		URL:     srv.URL,
		Headers: []WHTTPHeader{{Name: "X-Token", Value: "secret"}},
	}, NewClient(ClientOptions{Timeout: time.Second}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != 200 || res.HTTPTitle != "抹茶ロール" {
		t.Fatalf("unexpected response: status=%d title=%q", res.StatusCode, res.HTTPTitle)
	}
	if err := CheckStatus("get", res); err != nil {
		t.Fatalf("2xx must pass CheckStatus: %v", err)
	}
}

func TestSendHTTPRequestRetriesThenPassesThroughStatus(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(ClientOptions{Timeout: time.Second, RetryMax: 2, Backoff: time.Millisecond})
	res, err := SendHTTPRequest(context.Background(), &WHTTPReq{URL: srv.URL}, client)
	if err != nil {
		t.Fatalf("exhausted retries should pass the last response through, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	kind, _ := callerr.KindOf(CheckStatus("get", res))
	if kind != callerr.RateLimited {
		t.Fatalf("expected rate_limited, got %q", kind)
	}
}

func TestSendHTTPRequestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := SendHTTPRequest(context.Background(), &WHTTPReq{URL: url}, NewClient(ClientOptions{Timeout: time.Second}))
	if kind, ok := callerr.KindOf(err); !ok || kind != callerr.Timeout {
		t.Fatalf("expected timeout kind, got %v", err)
	}
}

func TestThrottleSpacesCalls(t *testing.T) {
	th := NewThrottle(30 * time.Millisecond)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := th.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Fatalf("three waits with a 30ms gap took only %v", elapsed)
	}

	var nilThrottle *Throttle
	if err := nilThrottle.Wait(ctx); err != nil {
		t.Fatalf("nil throttle must not block: %v", err)
	}
}
