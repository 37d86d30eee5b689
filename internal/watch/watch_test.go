package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pixelmap/internal/client"
)

type fakeBackend struct {
	created []client.MemoryPayload
	photos  []string
}

func (f *fakeBackend) DefaultMap(ctx context.Context) (client.Map, error) {
	return client.Map{ID: 1}, nil
}

func (f *fakeBackend) CreateMemory(ctx context.Context, mapID int64, p client.MemoryPayload) (client.Memory, error) {
	f.created = append(f.created, p)
	return client.Memory{ID: int64(len(f.created)), MapID: mapID}, nil
}

func (f *fakeBackend) AddPhoto(ctx context.Context, memoryID int64, data, filename string) (client.Photo, error) {
	f.photos = append(f.photos, filename)
	return client.Photo{ID: 1, MemoryID: memoryID, Filename: filename}, nil
}

type fakeGeo struct{}

func (fakeGeo) Reverse(ctx context.Context, lat, lng float64) string { return "Somewhere" }

func newTestWatcher(t *testing.T) (*Watcher, *fakeBackend, string) {
	t.Helper()
	dir := t.TempDir()
	backend := &fakeBackend{}
	w, err := New(dir, backend, fakeGeo{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	t.Cleanup(func() { w.watcher.Close() })
	w.mapID = 1
	return w, backend, dir
}

func TestEventBurstCoalescesToOneIngestion(t *testing.T) {
	w, backend, dir := newTestWatcher(t)

	path := filepath.Join(dir, "copied.jpg")
	if err := os.WriteFile(path, []byte("no exif data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	// A copied file arrives as a create plus several writes.
	w.mark(path)
	w.mark(path)
	w.mark(path)
	if len(w.pending) != 1 {
		t.Fatalf("burst left %d pending entries, want 1", len(w.pending))
	}

	w.flushSettled(context.Background(), time.Now().Add(w.settle))
	if len(w.pending) != 0 {
		t.Fatalf("flush left %d pending entries", len(w.pending))
	}

	// A later flush must not touch the path again.
	w.flushSettled(context.Background(), time.Now().Add(2*w.settle))
	if len(backend.created) != 0 {
		t.Fatalf("untagged photo was uploaded %d times", len(backend.created))
	}
}

func TestUnsettledFileIsNotFlushed(t *testing.T) {
	w, backend, dir := newTestWatcher(t)

	path := filepath.Join(dir, "inflight.jpg")
	if err := os.WriteFile(path, []byte("partial"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	w.mark(path)
	w.flushSettled(context.Background(), time.Now())

	if len(w.pending) != 1 {
		t.Fatal("file flushed before the settle window elapsed")
	}
	if len(backend.created) != 0 || len(backend.photos) != 0 {
		t.Fatal("half-written file was ingested")
	}
}

func TestIngestSkipsFileWithoutFix(t *testing.T) {
	w, backend, dir := newTestWatcher(t)

	path := filepath.Join(dir, "plain.jpg")
	if err := os.WriteFile(path, []byte("no exif data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := w.Ingest(context.Background(), path); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(backend.created) != 0 || len(backend.photos) != 0 {
		t.Fatalf("untagged photo was uploaded: %+v", backend.created)
	}
}

func TestIngestMissingFileErrors(t *testing.T) {
	w, _, dir := newTestWatcher(t)
	if err := w.Ingest(context.Background(), filepath.Join(dir, "gone.jpg")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestIsImageFile(t *testing.T) {
	cases := map[string]bool{
		"a.jpg":       true,
		"b.JPEG":      true,
		"c.png":       true,
		"d.heic":      true,
		"notes.txt":   false,
		"archive.zip": false,
		"noext":       false,
	}
	for name, want := range cases {
		if got := isImageFile(name); got != want {
			t.Fatalf("isImageFile(%q) = %v, want %v", name, got, want)
		}
	}
}
