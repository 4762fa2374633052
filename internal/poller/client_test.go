package poller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/http/httptrace"
	"strings"
	"testing"
	"time"
)

// TestClient_NoConnectionReuse verifies that every request opens its own
// connection, so no idle connections linger between poll cycles.
func TestClient_NoConnectionReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	}))
	defer server.Close()

	client := NewClient(5 * time.Second)

	var reusedCount int
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				reusedCount++
			}
		},
	}

	for i := 0; i < 3; i++ {
		ctx := httptrace.WithClientTrace(context.Background(), trace)
		resp := client.Get(ctx, server.URL)
		if resp.Error != nil {
			t.Fatalf("request %d failed: %v", i, resp.Error)
		}
	}

	if reusedCount != 0 {
		t.Errorf("expected no reused connections, got %d", reusedCount)
	}
}

// TestClient_SkipsCertificateVerification verifies that self-signed TLS
// servers can be polled.
func TestClient_SkipsCertificateVerification(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	resp := NewClient(time.Second).Get(context.Background(), server.URL)
	if resp.Error != nil {
		t.Fatalf("Get() error = %v", resp.Error)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(resp.Body), "ok") {
		t.Errorf("unexpected body %q", resp.Body)
	}
}

// TestClient_NonOKStatus verifies that a non-200 status is reported without
// an error; classification happens in the poller.
func TestClient_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	resp := NewClient(time.Second).Get(context.Background(), server.URL)
	if resp.Error != nil {
		t.Fatalf("Get() error = %v", resp.Error)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", resp.StatusCode)
	}
}

func TestClient_DefaultTimeout(t *testing.T) {
	if got := NewClient(0).Timeout(); got != DefaultTimeout {
		t.Errorf("Timeout() = %v, want %v", got, DefaultTimeout)
	}
}

// TestClient_Close verifies that Close() is safe to call and idempotent.
func TestClient_Close(t *testing.T) {
	client := NewClient(time.Second)

	client.Close()
	client.Close()

	var nilClient *Client
	nilClient.Close()
}
