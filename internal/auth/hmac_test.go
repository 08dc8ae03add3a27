package auth

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestSignThenVerifyRoundTrips(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/hive/poke", bytes.NewReader([]byte(`{"target":"http://example.com"}`)))
	if err := SignRequest(req, "shared-secret"); err != nil {
		t.Fatalf("SignRequest() error: %v", err)
	}
	if req.Header.Get("X-Hive-Signature") == "" {
		t.Fatal("expected a signature header to be set")
	}

	if err := VerifyRequest(req, "shared-secret"); err != nil {
		t.Errorf("VerifyRequest() of a freshly signed request failed: %v", err)
	}
}

func TestSignIsNoOpWhenSecretEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/hive/status", nil)
	if err := SignRequest(req, ""); err != nil {
		t.Fatalf("SignRequest() error: %v", err)
	}
	if req.Header.Get("X-Hive-Signature") != "" {
		t.Error("expected no signature header when secret is empty")
	}
}

func TestVerifyIsNoOpWhenSecretEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/hive/status", nil)
	if err := VerifyRequest(req, ""); err != nil {
		t.Errorf("VerifyRequest() with empty secret should always pass, got %v", err)
	}
}

func TestVerifyRejectsMissingHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/hive/status", nil)
	if err := VerifyRequest(req, "secret"); err == nil {
		t.Fatal("expected an error for a request with no HMAC headers")
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/hive/poke", bytes.NewReader([]byte(`{"target":"http://a.com"}`)))
	if err := SignRequest(req, "secret"); err != nil {
		t.Fatalf("SignRequest() error: %v", err)
	}
	req.Body = http.NoBody
	req2 := req.Clone(req.Context())
	req2.Body = newReaderCloser([]byte(`{"target":"http://evil.com"}`))

	if err := VerifyRequest(req2, "secret"); err == nil {
		t.Fatal("expected signature mismatch for a tampered body")
	}
}

func TestVerifyRejectsExpiredTimestamp(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/hive/status", nil)
	old := time.Now().Add(-10 * time.Minute)
	ts := strconv.FormatInt(old.Unix(), 10)
	sig := computeSignature("secret", req.Method, req.URL.RequestURI(), ts, nil)
	req.Header.Set("X-Hive-Timestamp", ts)
	req.Header.Set("X-Hive-Signature", sig)

	if err := VerifyRequest(req, "secret"); err == nil {
		t.Fatal("expected an error for a timestamp outside the replay-safe window")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/hive/status", nil)
	if err := SignRequest(req, "secret-a"); err != nil {
		t.Fatalf("SignRequest() error: %v", err)
	}
	if err := VerifyRequest(req, "secret-b"); err == nil {
		t.Fatal("expected verification to fail against a different secret")
	}
}

func TestHMACMiddlewarePassThroughWhenDisabled(t *testing.T) {
	called := false
	handler := HMACMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	req := httptest.NewRequest(http.MethodGet, "/hive/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if !called {
		t.Error("expected pass-through when no secret is configured")
	}
}

func TestHMACMiddlewareRejectsUnsigned(t *testing.T) {
	handler := HMACMiddleware("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/hive/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for an unsigned request", rec.Code)
	}
}

type readerCloser struct {
	*bytes.Reader
}

func (readerCloser) Close() error { return nil }

func newReaderCloser(b []byte) readerCloser {
	return readerCloser{bytes.NewReader(b)}
}
