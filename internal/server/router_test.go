package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"pixelmap/internal/auth"
	"pixelmap/internal/storage"
)

type fakeVerifier struct {
	tokens map[string]auth.Identity
	outage bool
}

func (f *fakeVerifier) Verify(ctx context.Context, token string) (auth.Identity, error) {
	if f.outage {
		return auth.Identity{}, errors.New("passkey service unreachable")
	}
	id, ok := f.tokens[token]
	if !ok {
		return auth.Identity{}, auth.ErrUnauthorized
	}
	return id, nil
}

func newTestServer(t *testing.T) (*Server, *fakeVerifier, http.Handler) {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	verifier := &fakeVerifier{tokens: map[string]auth.Identity{
		"alice-token": {ID: "alice", Username: "alice"},
		"bob-token":   {ID: "bob", Username: "bob"},
	}}
	s := NewServer(":0", store, verifier, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return s, verifier, s.Router()
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func sync(t *testing.T, h http.Handler, token string) {
	t.Helper()
	if w := doJSON(t, h, "POST", "/api/auth/sync", token, nil); w.Code != http.StatusOK {
		t.Fatalf("sync: %d %s", w.Code, w.Body.String())
	}
}

func firstMapID(t *testing.T, h http.Handler, token string) int64 {
	t.Helper()
	w := doJSON(t, h, "GET", "/api/maps", token, nil)
	maps := decode[[]storage.MapRecord](t, w)
	if len(maps) == 0 {
		t.Fatal("no maps after sync")
	}
	return maps[0].ID
}

func TestHealthIsPublic(t *testing.T) {
	_, _, h := newTestServer(t)
	if w := doJSON(t, h, "GET", "/api/health", "", nil); w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}
}

func TestAuthRejections(t *testing.T) {
	_, verifier, h := newTestServer(t)

	if w := doJSON(t, h, "GET", "/api/maps", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: %d", w.Code)
	}
	if w := doJSON(t, h, "GET", "/api/maps", "forged", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", w.Code)
	}

	verifier.outage = true
	if w := doJSON(t, h, "GET", "/api/maps", "alice-token", nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("verifier outage must be 500, got %d", w.Code)
	}
}

func TestSyncCreatesDefaultMap(t *testing.T) {
	_, _, h := newTestServer(t)
	sync(t, h, "alice-token")

	w := doJSON(t, h, "GET", "/api/maps", "alice-token", nil)
	maps := decode[[]storage.MapRecord](t, w)
	if len(maps) != 1 || maps[0].Name != "My Travel Map" {
		t.Fatalf("maps after sync: %+v", maps)
	}

	// A second sync must not create another map.
	sync(t, h, "alice-token")
	maps = decode[[]storage.MapRecord](t, doJSON(t, h, "GET", "/api/maps", "alice-token", nil))
	if len(maps) != 1 {
		t.Fatalf("sync is not idempotent: %d maps", len(maps))
	}
}

func TestMemoryValidation(t *testing.T) {
	_, _, h := newTestServer(t)
	sync(t, h, "alice-token")
	mapID := firstMapID(t, h, "alice-token")

	bad := map[string]any{"lat": 200.0, "lng": 0.0}
	w := doJSON(t, h, "POST", fmt.Sprintf("/api/maps/%d/memories", mapID), "alice-token", bad)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("lat 200 accepted: %d %s", w.Code, w.Body.String())
	}

	bad = map[string]any{"source_type": "carrier-pigeon"}
	w = doJSON(t, h, "POST", fmt.Sprintf("/api/maps/%d/memories", mapID), "alice-token", bad)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad source_type accepted: %d", w.Code)
	}
}

func TestOwnershipFailsClosed(t *testing.T) {
	_, _, h := newTestServer(t)
	sync(t, h, "alice-token")
	sync(t, h, "bob-token")
	mapID := firstMapID(t, h, "alice-token")

	w := doJSON(t, h, "POST", fmt.Sprintf("/api/maps/%d/memories", mapID), "alice-token",
		map[string]any{"lat": 1.0, "lng": 2.0, "width": 120, "height": 120})
	if w.Code != http.StatusCreated {
		t.Fatalf("create memory: %d %s", w.Code, w.Body.String())
	}
	mem := decode[storage.MemoryRecord](t, w)

	for _, tc := range []struct {
		method, path string
	}{
		{"GET", fmt.Sprintf("/api/memories/%d", mem.ID)},
		{"PUT", fmt.Sprintf("/api/memories/%d", mem.ID)},
		{"DELETE", fmt.Sprintf("/api/memories/%d", mem.ID)},
		{"GET", fmt.Sprintf("/api/maps/%d/memories", mapID)},
		{"GET", fmt.Sprintf("/api/maps/%d/export", mapID)},
	} {
		var body any
		if tc.method == "PUT" {
			body = map[string]any{"lat": 0.0}
		}
		w := doJSON(t, h, tc.method, tc.path, "bob-token", body)
		if w.Code != http.StatusNotFound {
			t.Fatalf("%s %s as bob: %d, want 404", tc.method, tc.path, w.Code)
		}
		var payload map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil || payload["error"] == "" {
			t.Fatalf("%s %s: error body %q", tc.method, tc.path, w.Body.String())
		}
	}

	// The owner still sees the memory untouched.
	w = doJSON(t, h, "GET", fmt.Sprintf("/api/memories/%d", mem.ID), "alice-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("owner read: %d", w.Code)
	}
}

// drainEvents empties the hub queue. Run is never started by these tests,
// so everything published by the handlers is still sitting in the buffer.
func drainEvents(s *Server) []Event {
	var evs []Event
	for {
		select {
		case ev := <-s.hub.broadcast:
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func TestMutationEventsCarryMapID(t *testing.T) {
	s, _, h := newTestServer(t)
	sync(t, h, "alice-token")
	mapID := firstMapID(t, h, "alice-token")

	w := doJSON(t, h, "POST", fmt.Sprintf("/api/maps/%d/memories", mapID), "alice-token",
		map[string]any{"lat": 1.0, "lng": 2.0, "width": 120, "height": 120})
	if w.Code != http.StatusCreated {
		t.Fatalf("create memory: %d %s", w.Code, w.Body.String())
	}
	mem := decode[storage.MemoryRecord](t, w)

	photo := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))
	w = doJSON(t, h, "POST", fmt.Sprintf("/api/memories/%d/photos", mem.ID), "alice-token",
		map[string]string{"photo_data": photo, "filename": "p.jpg"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add photo: %d %s", w.Code, w.Body.String())
	}
	p := decode[storage.PhotoRecord](t, w)

	if w := doJSON(t, h, "DELETE", fmt.Sprintf("/api/memories/%d/photos/%d", mem.ID, p.ID), "alice-token", nil); w.Code != http.StatusOK {
		t.Fatalf("delete photo: %d", w.Code)
	}
	if w := doJSON(t, h, "DELETE", fmt.Sprintf("/api/memories/%d", mem.ID), "alice-token", nil); w.Code != http.StatusOK {
		t.Fatalf("delete memory: %d", w.Code)
	}

	var seen []EventType
	for _, ev := range drainEvents(s) {
		switch ev.Type {
		case EventMemoryCreated, EventMemoryUpdated, EventMemoryDeleted:
			if ev.MapID != mapID {
				t.Fatalf("%s event carries map %d, want %d", ev.Type, ev.MapID, mapID)
			}
			if ev.MemoryID != mem.ID {
				t.Fatalf("%s event carries memory %d, want %d", ev.Type, ev.MemoryID, mem.ID)
			}
			seen = append(seen, ev.Type)
		}
	}
	want := []EventType{EventMemoryCreated, EventMemoryUpdated, EventMemoryUpdated, EventMemoryDeleted}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Fatalf("memory events %v, want %v", seen, want)
	}
}

func TestExportImportRoundTripOverAPI(t *testing.T) {
	_, _, h := newTestServer(t)
	sync(t, h, "alice-token")
	mapID := firstMapID(t, h, "alice-token")

	photo := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))
	for i := 0; i < 3; i++ {
		w := doJSON(t, h, "POST", fmt.Sprintf("/api/maps/%d/memories", mapID), "alice-token", map[string]any{
			"lat": float64(i), "lng": float64(i * 2), "width": 120, "height": 90,
			"is_locked": i == 0, "log_location": fmt.Sprintf("Stop %d", i),
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("create memory %d: %d", i, w.Code)
		}
		mem := decode[storage.MemoryRecord](t, w)
		w = doJSON(t, h, "POST", fmt.Sprintf("/api/memories/%d/photos", mem.ID), "alice-token",
			map[string]string{"photo_data": photo, "filename": fmt.Sprintf("p%d.jpg", i)})
		if w.Code != http.StatusCreated {
			t.Fatalf("add photo: %d %s", w.Code, w.Body.String())
		}
	}

	w := doJSON(t, h, "GET", fmt.Sprintf("/api/maps/%d/export", mapID), "alice-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export: %d", w.Code)
	}
	export := decode[storage.Export](t, w)
	if export.Version != storage.ExportVersion || len(export.Memories) != 3 {
		t.Fatalf("export envelope: version %q, %d memories", export.Version, len(export.Memories))
	}

	w = doJSON(t, h, "POST", "/api/maps", "alice-token", map[string]any{"name": "Second Trip"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create map: %d", w.Code)
	}
	second := decode[storage.MapRecord](t, w)

	raw, _ := json.Marshal(export)
	w = doJSON(t, h, "POST", fmt.Sprintf("/api/maps/%d/import", second.ID), "alice-token",
		map[string]any{"data": json.RawMessage(raw), "clear_existing": true})
	if w.Code != http.StatusOK {
		t.Fatalf("import: %d %s", w.Code, w.Body.String())
	}
	res := decode[map[string]int](t, w)
	if res["imported"] != 3 {
		t.Fatalf("imported %d, want 3", res["imported"])
	}

	w = doJSON(t, h, "GET", fmt.Sprintf("/api/maps/%d/memories", second.ID), "alice-token", nil)
	memories := decode[[]storage.MemoryRecord](t, w)
	if len(memories) != 3 {
		t.Fatalf("memories after import: %d", len(memories))
	}
	lockedSeen := false
	for _, m := range memories {
		if len(m.Photos) != 1 {
			t.Fatalf("memory %d photos: %d", m.ID, len(m.Photos))
		}
		if m.Locked {
			lockedSeen = true
		}
	}
	if !lockedSeen {
		t.Fatal("locked flag lost in round trip")
	}
}

func TestThumbnailEndpoint(t *testing.T) {
	_, _, h := newTestServer(t)
	sync(t, h, "alice-token")
	mapID := firstMapID(t, h, "alice-token")

	img := image.NewNRGBA(image.Rect(0, 0, 100, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 100; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), 0, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}

	w := doJSON(t, h, "POST", fmt.Sprintf("/api/maps/%d/memories", mapID), "alice-token",
		map[string]any{"lat": 0.0, "lng": 0.0, "width": 120, "height": 120})
	mem := decode[storage.MemoryRecord](t, w)
	w = doJSON(t, h, "POST", fmt.Sprintf("/api/memories/%d/photos", mem.ID), "alice-token",
		map[string]string{"photo_data": base64.StdEncoding.EncodeToString(buf.Bytes()), "filename": "p.png"})
	p := decode[storage.PhotoRecord](t, w)

	w = doJSON(t, h, "GET", fmt.Sprintf("/api/memories/%d/photos/%d/thumbnail?size=40", mem.ID, p.ID), "alice-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("thumbnail: %d %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type %q", ct)
	}
	thumb, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if thumb.Bounds().Dx() != 40 || thumb.Bounds().Dy() != 20 {
		t.Fatalf("thumbnail size %v", thumb.Bounds())
	}
}
