package httpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		var in map[string]float64
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(map[string]float64{"double": in["value"] * 2})
	}))
	defer srv.Close()

	var out struct {
		Double float64 `json:"double"`
	}
	if err := PostJSON(context.Background(), nil, srv.URL, map[string]float64{"value": 21}, &out); err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if out.Double != 42 {
		t.Errorf("double = %v, want 42", out.Double)
	}
}

func TestDoJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"unknown processor RX83"}`))
	}))
	defer srv.Close()

	err := GetJSON(context.Background(), Client, srv.URL, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusNotFound || se.Message != "unknown processor RX83" {
		t.Errorf("got %+v", se)
	}
}

func TestDoJSON_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := GetJSON(ctx, nil, srv.URL, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
