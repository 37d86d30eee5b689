// Package watch ingests photos dropped into a local directory. Geotagged
// files become memories on the default map; files without a GPS fix are
// skipped, since there is nobody present to click a placement.
package watch

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"

	"pixelmap/internal/client"
	"pixelmap/internal/exifgps"
)

// Backend is the slice of the API client the watcher needs.
type Backend interface {
	DefaultMap(ctx context.Context) (client.Map, error)
	CreateMemory(ctx context.Context, mapID int64, payload client.MemoryPayload) (client.Memory, error)
	AddPhoto(ctx context.Context, memoryID int64, photoData, filename string) (client.Photo, error)
}

// Geocoder resolves coordinates to a display name.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) string
}

// Watcher monitors one directory and uploads new photos.
type Watcher struct {
	dir     string
	backend Backend
	geo     Geocoder
	log     *slog.Logger
	watcher *fsnotify.Watcher
	mapID   int64

	// settle is how long a file must be quiet before ingestion, so half
	// written copies are not picked up.
	settle time.Duration

	// pending coalesces the burst of create/write events a single copied
	// file produces into one ingestion per path.
	pending map[string]time.Time
}

// New builds a watcher over dir.
func New(dir string, backend Backend, geo Geocoder, log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		dir:     dir,
		backend: backend,
		geo:     geo,
		log:     log,
		watcher: fsw,
		settle:  500 * time.Millisecond,
		pending: make(map[string]time.Time),
	}, nil
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	m, err := w.backend.DefaultMap(ctx)
	if err != nil {
		return err
	}
	w.mapID = m.ID

	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	defer w.watcher.Close()
	w.log.Info("watching directory", "dir", w.dir, "map", w.mapID)

	ticker := time.NewTicker(w.settle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isImageFile(event.Name) {
				continue
			}
			w.mark(event.Name)
		case <-ticker.C:
			w.flushSettled(ctx, time.Now())
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watch error", "error", err)
		}
	}
}

// mark records file activity. Repeated events on the same path only push
// its settle deadline forward.
func (w *Watcher) mark(path string) {
	w.pending[path] = time.Now()
}

// flushSettled ingests every pending path that has been quiet for the
// settle window. Each path is ingested at most once per burst.
func (w *Watcher) flushSettled(ctx context.Context, now time.Time) {
	for path, last := range w.pending {
		if now.Sub(last) < w.settle {
			continue
		}
		delete(w.pending, path)
		if err := w.Ingest(ctx, path); err != nil {
			w.log.Error("ingest failed", "file", path, "error", err)
		}
	}
}

// Ingest uploads one photo file as a memory if it carries a GPS fix.
func (w *Watcher) Ingest(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	fix, err := exifgps.Extract(data)
	if err != nil {
		return err
	}
	if !fix.Valid() {
		w.log.Info("no GPS fix, skipping", "file", filepath.Base(path))
		return nil
	}

	location := w.geo.Reverse(ctx, fix.Lat, fix.Lng)
	filename := filepath.Base(path)
	encoded := base64.StdEncoding.EncodeToString(data)

	payload := client.MemoryPayload{
		SourceType:  "file",
		SourceData:  &encoded,
		Lat:         &fix.Lat,
		Lng:         &fix.Lng,
		Width:       ptr(120),
		Height:      ptr(120),
		LogLocation: &location,
		LogDate:     &fix.Date,
	}
	mem, err := w.backend.CreateMemory(ctx, w.mapID, payload)
	if err != nil {
		return err
	}
	if _, err := w.backend.AddPhoto(ctx, mem.ID, encoded, filename); err != nil {
		return err
	}

	w.log.Info("photo ingested", "file", filename, "memory", mem.ID, "location", location)
	return nil
}

func isImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".tif", ".tiff", ".heic":
		return true
	}
	return false
}

func ptr[T any](v T) *T {
	return &v
}
