package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteJSON(rec, http.StatusTeapot, map[string]string{"k": "v"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["k"] != "v" {
		t.Errorf("body = %v", body)
	}
}

func TestWriteErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "bad") }, 400},
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "no") }, 401},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "denied") }, 403},
		{"not found", func(w http.ResponseWriter) { WriteNotFoundError(w, "gone") }, 404},
		{"conflict", func(w http.ResponseWriter) { WriteConflict(w, "dupe") }, 409},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w, errors.New("boom")) }, 500},
		{"unavailable", func(w http.ResponseWriter) { WriteServiceUnavailable(w, "later") }, 503},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}

			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("body is not JSON: %v", err)
			}
			if body["error"] == "" {
				t.Error("error field missing")
			}
		})
	}
}
