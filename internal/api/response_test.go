package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	respondJSON(rec, http.StatusCreated, map[string]int{"tasks": 3})

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}
	if rec.Body.String() != "{\"tasks\":3}\n" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestRespondJSON_NilData(t *testing.T) {
	rec := httptest.NewRecorder()
	respondJSON(rec, http.StatusNoContent, nil)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec.Body.String())
	}
}

func TestRespondJSON_EncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	respondJSON(rec, http.StatusOK, map[string]any{"ch": make(chan int)})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error != "internal error" {
		t.Errorf("unexpected error %q", resp.Error)
	}
}

func TestRespondValidationErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	respondValidationErrors(rec, []string{"title", "html_content"})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error != "validation_failed" {
		t.Errorf("expected validation_failed, got %q", resp.Error)
	}
	if got := strings.Join(resp.Details, "; "); got != "title is required; html_content is required" {
		t.Errorf("unexpected details %q", got)
	}
}

func TestRespondError_OmitsDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, http.StatusNotFound, "not found")

	if strings.Contains(rec.Body.String(), "details") {
		t.Errorf("expected no details field, got %s", rec.Body.String())
	}
}
