package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBearerTokenAndRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization header %q", got)
		}
		switch r.Method + " " + r.URL.Path {
		case "GET /api/maps":
			json.NewEncoder(w).Encode([]Map{{ID: 4, Name: "My Travel Map"}})
		case "GET /api/maps/4/memories":
			json.NewEncoder(w).Encode([]Memory{{ID: 11, MapID: 4, Lat: 1.5, Photos: []Photo{{ID: 1, Filename: "a.jpg"}}}})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")

	m, err := c.DefaultMap(context.Background())
	if err != nil || m.ID != 4 {
		t.Fatalf("default map: %+v, %v", m, err)
	}
	mems, err := c.Memories(context.Background(), m.ID)
	if err != nil || len(mems) != 1 || mems[0].Photos[0].Filename != "a.jpg" {
		t.Fatalf("memories: %+v, %v", mems, err)
	}
}

func TestDefaultMapCreatesWhenEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode([]Map{})
		case http.MethodPost:
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(Map{ID: 1, Name: body["name"]})
		}
	}))
	defer srv.Close()

	m, err := New(srv.URL, "tok").DefaultMap(context.Background())
	if err != nil {
		t.Fatalf("default map: %v", err)
	}
	if m.Name != "My Travel Map" {
		t.Fatalf("created map named %q", m.Name)
	}
}

func TestErrorPayloadSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Memory not found"})
	}))
	defer srv.Close()

	err := New(srv.URL, "tok").DeleteMemory(context.Background(), 99)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "Memory not found" {
		t.Fatalf("unexpected error contents: %+v", apiErr)
	}
}
