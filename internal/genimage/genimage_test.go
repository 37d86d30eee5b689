package genimage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func generationServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-key", "test-model")
}

func TestGenerateReturnsFirstImagePart(t *testing.T) {
	want := []byte("generated-png")
	c := generationServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1beta/models/test-model:generateContent") {
			t.Errorf("path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("api key header %q", got)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Contents.Parts) != 2 || req.Contents.Parts[0].InlineData == nil {
			t.Errorf("request parts %+v", req.Contents.Parts)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{
						{"text": "Here is your sprite"},
						{"inlineData": map[string]string{
							"mimeType": "image/png",
							"data":     base64.StdEncoding.EncodeToString(want),
						}},
					},
				},
			}},
		})
	})

	got, err := c.Generate(context.Background(), []byte("photo"), "image/jpeg", "a prompt")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if string(got.Data) != string(want) || got.MimeType != "image/png" {
		t.Fatalf("got %+v", got)
	}
	if got.Text != "Here is your sprite" {
		t.Fatalf("text %q", got.Text)
	}
}

func TestGenerateNoImageIsErrNoImage(t *testing.T) {
	c := generationServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{"text": "I cannot do that"}},
				},
			}},
		})
	})

	_, err := c.Generate(context.Background(), []byte("photo"), "image/jpeg", "p")
	if !errors.Is(err, ErrNoImage) {
		t.Fatalf("want ErrNoImage, got %v", err)
	}
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	c := New("http://example.invalid", "", "m")
	if _, err := c.Generate(context.Background(), []byte("x"), "image/jpeg", "p"); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestGenerateNon200(t *testing.T) {
	c := generationServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	if _, err := c.Generate(context.Background(), []byte("x"), "image/jpeg", "p"); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestPromptsIncludeLocationAndStyle(t *testing.T) {
	p := PhotoPrompt("Kyoto, Japan")
	if !strings.Contains(p, "Kyoto, Japan") {
		t.Fatalf("location missing from prompt: %q", p)
	}
	if !strings.Contains(p, "3D isometric pixel art") {
		t.Fatalf("style guidance missing: %q", p)
	}

	e := EditPrompt("make it snowy", "Kyoto, Japan")
	if !strings.Contains(e, "make it snowy") || !strings.Contains(e, "3D isometric pixel art") {
		t.Fatalf("edit prompt: %q", e)
	}
}
