package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVerifyForwardsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/me" {
			t.Errorf("path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization %q", got)
		}
		json.NewEncoder(w).Encode(Identity{ID: "u1", Username: "alice"})
	}))
	defer srv.Close()

	id, err := NewPasskeyVerifier(srv.URL).Verify(context.Background(), "secret")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.ID != "u1" || id.Username != "alice" {
		t.Fatalf("identity %+v", id)
	}
}

func TestVerifyRejectionIsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewPasskeyVerifier(srv.URL).Verify(context.Background(), "bad")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestVerifyEmptyIDIsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Identity{Username: "ghost"})
	}))
	defer srv.Close()

	_, err := NewPasskeyVerifier(srv.URL).Verify(context.Background(), "tok")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for empty id, got %v", err)
	}
}

func TestVerifyServiceOutageIsNotUnauthorized(t *testing.T) {
	v := NewPasskeyVerifier("http://127.0.0.1:1")
	_, err := v.Verify(context.Background(), "tok")
	if err == nil || errors.Is(err, ErrUnauthorized) {
		t.Fatalf("outage must not look like a bad token: %v", err)
	}
}

func TestVerifyUnconfigured(t *testing.T) {
	_, err := (&PasskeyVerifier{}).Verify(context.Background(), "tok")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
}
