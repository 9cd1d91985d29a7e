package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func TestParseJSON(t *testing.T) {
	req := httptest.NewRequest("POST", "/assets", strings.NewReader(`{"name":"trips"}`))

	var body struct {
		Name string `json:"name"`
	}
	if err := ParseJSON(req, &body); err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	if body.Name != "trips" {
		t.Errorf("name = %q, want %q", body.Name, "trips")
	}
}

func TestParseJSON_Invalid(t *testing.T) {
	req := httptest.NewRequest("POST", "/assets", strings.NewReader(`{`))

	var body map[string]interface{}
	if err := ParseJSON(req, &body); err == nil {
		t.Fatal("ParseJSON() expected error for malformed body")
	}
}

func TestParsePathString(t *testing.T) {
	router := mux.NewRouter()
	var got string
	var gotErr error
	router.HandleFunc("/assets/{id}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = ParsePathString(r, "id")
	})

	req := httptest.NewRequest("GET", "/assets/abc-123", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	if gotErr != nil {
		t.Fatalf("ParsePathString() error = %v", gotErr)
	}
	if got != "abc-123" {
		t.Errorf("id = %q, want %q", got, "abc-123")
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantLimit int
		wantOff   int
		wantErr   bool
	}{
		{name: "defaults", query: "", wantLimit: 50, wantOff: 0},
		{name: "explicit", query: "?limit=10&offset=20", wantLimit: 10, wantOff: 20},
		{name: "limit too large", query: "?limit=1000", wantErr: true},
		{name: "negative offset", query: "?offset=-1", wantErr: true},
		{name: "non-numeric", query: "?limit=abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/assets"+tt.query, nil)
			limit, offset, err := ParsePagination(req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePagination() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if limit != tt.wantLimit || offset != tt.wantOff {
				t.Errorf("got (%d, %d), want (%d, %d)", limit, offset, tt.wantLimit, tt.wantOff)
			}
		})
	}
}
