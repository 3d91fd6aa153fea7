package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"accfleet-server/commons"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{BaseURL: server.URL, Timeout: 2 * time.Second}, commons.NewLogger("gateway-test"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestAuthenticateAlreadyAuthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sessions/+628123456789/authenticate" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"outcome":"already_authorized"}`))
	})

	result, err := client.Authenticate(context.Background(), "+628123456789", Credentials{APIID: 1, APIHash: "h"}, nil)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if result != AuthAlreadyAuthorized {
		t.Errorf("Expected AuthAlreadyAuthorized, got %v", result)
	}
}

func TestVerifyOutcomes(t *testing.T) {
	cases := []struct {
		body    string
		outcome VerifyOutcome
	}{
		{`{"outcome":"authorized","username":"testuser"}`, VerifyAuthorized},
		{`{"outcome":"second_factor_required"}`, VerifySecondFactorRequired},
		{`{"outcome":"invalid_code"}`, VerifyInvalidCode},
	}
	for _, tc := range cases {
		body := tc.body
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})
		result, err := client.Verify(context.Background(), "+628123456789", "12345")
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if result.Outcome != tc.outcome {
			t.Errorf("Expected outcome %v, got %v", tc.outcome, result.Outcome)
		}
	}
}

func TestVerifyReturnsUsername(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"outcome":"authorized","username":"testuser"}`))
	})
	result, err := client.Verify(context.Background(), "+628123456789", "12345")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Username != "testuser" {
		t.Errorf("Expected username testuser, got %s", result.Username)
	}
}

func TestRateLimitedError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"outcome":"rate_limited","wait_seconds":30}`))
	})

	_, err := client.Probe(context.Background(), "+628123456789", Credentials{}, nil)
	var rateLimited *RateLimitedError
	if !errors.As(err, &rateLimited) {
		t.Fatalf("Expected RateLimitedError, got %v", err)
	}
	if rateLimited.WaitSeconds != 30 {
		t.Errorf("Expected 30 wait seconds, got %d", rateLimited.WaitSeconds)
	}
}

func TestBannedError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"outcome":"banned","detail":"deactivated"}`))
	})

	_, err := client.Authenticate(context.Background(), "+628123456789", Credentials{}, nil)
	var banned *BannedError
	if !errors.As(err, &banned) {
		t.Fatalf("Expected BannedError, got %v", err)
	}
	if banned.Detail != "deactivated" {
		t.Errorf("Expected detail deactivated, got %s", banned.Detail)
	}
}

func TestProbeOutcomes(t *testing.T) {
	cases := []struct {
		body    string
		outcome ProbeOutcome
	}{
		{`{"outcome":"authorized"}`, ProbeAuthorized},
		{`{"outcome":"unauthorized"}`, ProbeUnauthorized},
		{`{"outcome":"banned"}`, ProbeBanned},
		{`{"outcome":"expired"}`, ProbeExpired},
	}
	for _, tc := range cases {
		body := tc.body
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})
		outcome, err := client.Probe(context.Background(), "+628123456789", Credentials{}, nil)
		if err != nil {
			t.Fatalf("Probe failed: %v", err)
		}
		if outcome != tc.outcome {
			t.Errorf("Expected outcome %v, got %v", tc.outcome, outcome)
		}
	}
}

func TestUnknownOutcomeIsTransportError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"outcome":"teapot"}`))
	})
	if _, err := client.Probe(context.Background(), "+628123456789", Credentials{}, nil); err == nil {
		t.Error("Unknown outcome should be an error")
	}
}

func TestTimeoutSurfacesAsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"outcome":"authorized"}`))
	})
	client.HTTPClient.Timeout = 50 * time.Millisecond

	if _, err := client.Probe(context.Background(), "+628123456789", Credentials{}, nil); err == nil {
		t.Error("Expected timeout to surface as a transport error")
	}
}
