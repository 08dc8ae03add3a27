package coordinator

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPathTailExtractsSuffix(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/wasp/checkin/3000", nil)
	rec := httptest.NewRecorder()
	tail, ok := pathTail(rec, req, "/wasp/checkin/")
	if !ok {
		t.Fatal("expected ok=true for a well-formed path")
	}
	if tail != "3000" {
		t.Errorf("tail = %q, want 3000", tail)
	}
}

func TestPathTailRejectsMissingParameter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/wasp/checkin/", nil)
	rec := httptest.NewRecorder()
	_, ok := pathTail(rec, req, "/wasp/checkin/")
	if ok {
		t.Fatal("expected ok=false for an empty tail")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRespondJSONSetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	respondJSON(rec, map[string]string{"ok": "true"})
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q, want application/json", ct)
	}
	if rec.Body.Len() == 0 {
		t.Error("expected a non-empty JSON body")
	}
}

func TestHandleHealth(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", rec.Body.String())
	}
}

func TestHandleSpawnLocalIsNotImplemented(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodPut, "/hive/spawn/local/3", nil)
	rec := httptest.NewRecorder()
	s.handleSpawnLocal(rec, req)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}
