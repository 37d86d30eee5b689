// Package editor is the interaction controller for the map canvas. It owns
// the memory store and serializes every mutation: placement, dragging,
// keyboard commands, photo management and sprite generation all funnel
// through one mutex.
package editor

import (
	"context"
	"fmt"
	"sync"

	"log/slog"

	"github.com/google/uuid"

	"pixelmap/internal/client"
	"pixelmap/internal/cluster"
	"pixelmap/internal/exifgps"
	"pixelmap/internal/genimage"
	"pixelmap/internal/memory"
	"pixelmap/internal/pipeline"
	"pixelmap/internal/sprite"
)

// Mode is the controller's interaction state.
type Mode int

const (
	ModeIdle Mode = iota
	// ModeAwaitingPlacement holds a photo without a GPS fix until the next
	// map click supplies its position.
	ModeAwaitingPlacement
	ModeDragging
)

// Viewport converts between geographic and screen coordinates for the
// current map view. The map widget refreshes it on move and zoom.
type Viewport struct {
	Project   func(lat, lng float64) (x, y float64)
	Unproject func(x, y float64) (lat, lng float64)
	Zoom      float64
}

// Notifier receives user-facing toast messages.
type Notifier interface {
	Notify(message string)
}

// Geocoder resolves coordinates to a display name.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) string
}

// Persister is the backend surface the editor writes through. client.Client
// satisfies it.
type Persister interface {
	DefaultMap(ctx context.Context) (client.Map, error)
	Memories(ctx context.Context, mapID int64) ([]client.Memory, error)
	CreateMemory(ctx context.Context, mapID int64, payload client.MemoryPayload) (client.Memory, error)
	UpdateMemory(ctx context.Context, memoryID int64, payload client.MemoryPayload) (client.Memory, error)
	DeleteMemory(ctx context.Context, memoryID int64) error
	AddPhoto(ctx context.Context, memoryID int64, photoData, filename string) (client.Photo, error)
	DeletePhoto(ctx context.Context, memoryID, photoID int64) error
}

// Queue accepts generation jobs and streams their results.
type Queue interface {
	Submit(pipeline.Job) error
	Subscribe() (<-chan pipeline.Result, func())
}

// MoveAmount is the base keyboard nudge in degrees before zoom scaling.
const MoveAmount = 0.001

type pendingPhoto struct {
	data     []byte
	filename string
}

type dragState struct {
	id       int64
	startX   float64
	startY   float64
	startLat float64
	startLng float64
}

// Editor coordinates the store, the backend and the generation queue.
type Editor struct {
	mu      sync.Mutex
	log     *slog.Logger
	store   *memory.Store
	persist Persister
	geo     Geocoder
	queue   Queue
	notify  Notifier
	view    Viewport

	mapID      int64
	mode       Mode
	pending    *pendingPhoto
	selectedID int64
	drag       dragState

	// tokens fences generation per memory: each start bumps the counter
	// and a completion is applied only if it still carries the latest
	// value. The newest request always wins, regardless of finish order.
	tokens map[int64]uint64
}

// New wires an editor. Call Load before use and Run to consume results.
func New(persist Persister, geo Geocoder, queue Queue, notify Notifier, logger *slog.Logger) *Editor {
	return &Editor{
		log:     logger,
		store:   memory.NewStore(),
		persist: persist,
		geo:     geo,
		queue:   queue,
		notify:  notify,
		tokens:  make(map[int64]uint64),
	}
}

// Load fetches the default map and hydrates the store.
func (e *Editor) Load(ctx context.Context) error {
	m, err := e.persist.DefaultMap(ctx)
	if err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	records, err := e.persist.Memories(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("load memories: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.mapID = m.ID
	e.store.Clear()
	for _, rec := range records {
		e.store.Add(fromWire(rec))
	}
	e.log.Info("map loaded", "map", m.ID, "memories", len(records))
	return nil
}

// Run consumes generation results until ctx is done.
func (e *Editor) Run(ctx context.Context) {
	results, unsub := e.queue.Subscribe()
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			e.applyResult(ctx, res)
		}
	}
}

// SetViewport updates the projection used for drags and clustering.
func (e *Editor) SetViewport(v Viewport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.view = v
}

// Mode reports the current interaction state.
func (e *Editor) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// SelectedID reports the selected memory, 0 when none.
func (e *Editor) SelectedID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectedID
}

// Memories returns a snapshot of the store in z-order.
func (e *Editor) Memories() []memory.Memory {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.List()
}

// DisplayItems returns the clustered render list for the current view.
func (e *Editor) DisplayItems() []cluster.DisplayItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.view.Project == nil {
		return nil
	}
	return cluster.ComputeDisplayItems(e.store.List(), cluster.Projector(e.view.Project), e.view.Zoom)
}

// AddPhoto ingests a dropped photo. A GPS fix places and generates right
// away; without one the photo is parked until the next map click.
func (e *Editor) AddPhoto(ctx context.Context, data []byte, filename string) error {
	fix, err := exifgps.Extract(data)
	if err != nil {
		return err
	}

	if fix.Valid() {
		location := e.geo.Reverse(ctx, fix.Lat, fix.Lng)
		e.notify.Notify(fmt.Sprintf("Location found: %s.", location))
		e.placePhoto(ctx, data, filename, fix.Lat, fix.Lng, location, fix.Date)
		return nil
	}

	e.mu.Lock()
	e.pending = &pendingPhoto{data: data, filename: filename}
	e.mode = ModeAwaitingPlacement
	e.mu.Unlock()
	e.notify.Notify("No location found in photo. Click the map to place it.")
	return nil
}

// MapClick resolves a pending placement, otherwise clears the selection.
func (e *Editor) MapClick(ctx context.Context, lat, lng float64) {
	e.mu.Lock()
	if e.mode != ModeAwaitingPlacement || e.pending == nil {
		e.selectedID = 0
		e.mu.Unlock()
		return
	}
	p := e.pending
	e.pending = nil
	e.mode = ModeIdle
	e.mu.Unlock()

	location := e.geo.Reverse(ctx, lat, lng)
	e.placePhoto(ctx, p.data, p.filename, lat, lng, location, today())
}

// placePhoto creates the memory, kicks off generation and persists it.
func (e *Editor) placePhoto(ctx context.Context, data []byte, filename string, lat, lng float64, location, date string) {
	e.mu.Lock()
	m := e.store.Add(memory.Memory{
		Lat: lat, Lng: lng,
		Width: memory.DefaultSize, Height: memory.DefaultSize,
		SpriteBounds: memory.Bounds{Width: int(memory.DefaultSize), Height: int(memory.DefaultSize)},
		Generating:   true,
		Photos:       []memory.Photo{{Data: data, Filename: filename}},
		Log:          memory.Log{Location: location, Date: date},
	})
	e.selectedID = m.ID
	token := e.bumpToken(m.ID)
	e.mu.Unlock()

	e.submitJob(m.ID, token, data, filename, genimage.PhotoPrompt(location))

	rec, err := e.persist.CreateMemory(ctx, e.mapID, createPayload(m))
	if err != nil {
		e.log.Error("persist memory failed", "memory", m.ID, "error", err)
		e.notify.Notify("Failed to save memory")
		return
	}
	photo, err := e.persist.AddPhoto(ctx, rec.ID, encodePhoto(data), filename)
	if err != nil {
		e.log.Error("persist photo failed", "memory", m.ID, "error", err)
	}

	e.mu.Lock()
	e.store.Update(m.ID, func(m memory.Memory) memory.Memory {
		m.RemoteID = rec.ID
		if err == nil && len(m.Photos) > 0 {
			m.Photos[0].RemoteID = photo.ID
		}
		return m
	})
	placed, _ := e.store.Get(m.ID)
	e.mu.Unlock()

	// A fast generation can finish while the create round trip is still in
	// flight; its persist was skipped for lack of a remote id, so push the
	// full state now.
	if placed.HasSprite() {
		e.persistUpdate(ctx, placed)
	}
}

// AddPhotoToMemory appends a photo to an existing memory. This is the path
// for dropping onto a locked memory's card.
func (e *Editor) AddPhotoToMemory(ctx context.Context, id int64, data []byte, filename string) error {
	e.mu.Lock()
	m, ok := e.store.Get(id)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("memory %d not found", id)
	}

	var remotePhotoID int64
	if m.RemoteID != 0 {
		p, err := e.persist.AddPhoto(ctx, m.RemoteID, encodePhoto(data), filename)
		if err != nil {
			e.notify.Notify("Failed to save photo")
			return err
		}
		remotePhotoID = p.ID
	}

	e.mu.Lock()
	e.store.Update(id, func(m memory.Memory) memory.Memory {
		m.Photos = append(m.Photos, memory.Photo{Data: data, Filename: filename, RemoteID: remotePhotoID})
		return m
	})
	e.mu.Unlock()
	return nil
}

// DeletePhoto removes one photo. Deleting the last photo deletes the whole
// memory and clears the selection if it was selected.
func (e *Editor) DeletePhoto(ctx context.Context, id int64, photoIndex int) error {
	e.mu.Lock()
	m, ok := e.store.Get(id)
	if !ok || photoIndex < 0 || photoIndex >= len(m.Photos) {
		e.mu.Unlock()
		return fmt.Errorf("photo %d/%d not found", id, photoIndex)
	}
	photo := m.Photos[photoIndex]
	_, gone := e.store.RemovePhoto(id, photoIndex)
	if gone && e.selectedID == id {
		e.selectedID = 0
	}
	e.mu.Unlock()

	if m.RemoteID == 0 {
		return nil
	}
	if gone {
		if err := e.persist.DeleteMemory(ctx, m.RemoteID); err != nil {
			e.log.Error("delete memory failed", "memory", id, "error", err)
			e.notify.Notify("Failed to delete memory")
		}
		return nil
	}
	if photo.RemoteID != 0 {
		if err := e.persist.DeletePhoto(ctx, m.RemoteID, photo.RemoteID); err != nil {
			e.log.Error("delete photo failed", "memory", id, "error", err)
			e.notify.Notify("Failed to delete photo")
		}
	}
	return nil
}

// Select marks a memory as selected.
func (e *Editor) Select(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.store.Get(id); ok {
		e.selectedID = id
	}
}

// PointerDown starts a drag unless the memory is locked; a locked memory
// is only selected.
func (e *Editor) PointerDown(id int64, x, y float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.store.Get(id)
	if !ok {
		return
	}
	e.selectedID = id
	if m.Locked {
		return
	}
	e.mode = ModeDragging
	e.drag = dragState{id: id, startX: x, startY: y, startLat: m.Lat, startLng: m.Lng}
	e.store.Raise(id)
}

// PointerMove reprojects the drag origin by the pointer delta so the
// memory tracks the cursor without accumulating error.
func (e *Editor) PointerMove(x, y float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != ModeDragging || e.view.Project == nil {
		return
	}
	sx, sy := e.view.Project(e.drag.startLat, e.drag.startLng)
	lat, lng := e.view.Unproject(sx+(x-e.drag.startX), sy+(y-e.drag.startY))
	e.store.Update(e.drag.id, func(m memory.Memory) memory.Memory {
		m.Lat, m.Lng = lat, lng
		return m
	})
}

// PointerUp ends the drag, refreshes the location name for the new spot
// and persists the move.
func (e *Editor) PointerUp(ctx context.Context) {
	e.mu.Lock()
	if e.mode != ModeDragging {
		e.mu.Unlock()
		return
	}
	id := e.drag.id
	e.mode = ModeIdle
	e.drag = dragState{}
	m, ok := e.store.Get(id)
	e.mu.Unlock()
	if !ok {
		return
	}

	location := e.geo.Reverse(ctx, m.Lat, m.Lng)
	e.mu.Lock()
	e.store.Update(id, func(m memory.Memory) memory.Memory {
		m.Log.Location = location
		return m
	})
	m, _ = e.store.Get(id)
	e.mu.Unlock()

	e.persistUpdate(ctx, m)
}

// Delete removes the selected memory. Removal is optimistic: local state
// drops it immediately and a backend failure is only reported, never
// rolled back.
func (e *Editor) Delete(ctx context.Context) {
	e.mu.Lock()
	id := e.selectedID
	m, ok := e.store.Get(id)
	if !ok {
		e.mu.Unlock()
		return
	}
	e.store.Remove(id)
	e.selectedID = 0
	delete(e.tokens, id)
	e.mu.Unlock()

	if m.RemoteID != 0 {
		if err := e.persist.DeleteMemory(ctx, m.RemoteID); err != nil {
			e.log.Error("delete failed", "memory", id, "error", err)
			e.notify.Notify("Failed to delete memory from server")
		}
	}
}

// Regenerate re-runs sprite generation for the selected memory from its
// source photo.
func (e *Editor) Regenerate(ctx context.Context) {
	e.mu.Lock()
	m, ok := e.store.Get(e.selectedID)
	if !ok || len(m.Photos) == 0 {
		e.mu.Unlock()
		return
	}
	token := e.bumpToken(m.ID)
	e.store.Update(m.ID, func(m memory.Memory) memory.Memory {
		m.Generating = true
		return m
	})
	e.mu.Unlock()

	e.submitJob(m.ID, token, m.Photos[0].Data, m.Photos[0].Filename, genimage.PhotoPrompt(m.Log.Location))
}

// EditWithPrompt regenerates the selected memory's sprite with a free-text
// instruction applied to a source image.
func (e *Editor) EditWithPrompt(ctx context.Context, instruction string, source []byte, filename string) {
	e.mu.Lock()
	m, ok := e.store.Get(e.selectedID)
	if !ok {
		e.mu.Unlock()
		return
	}
	token := e.bumpToken(m.ID)
	e.store.Update(m.ID, func(m memory.Memory) memory.Memory {
		m.Generating = true
		if len(source) > 0 && len(m.Photos) > 0 {
			m.Photos[0] = memory.Photo{Data: source, Filename: filename}
		}
		return m
	})
	m, _ = e.store.Get(m.ID)
	e.mu.Unlock()

	data := source
	name := filename
	if len(data) == 0 && len(m.Photos) > 0 {
		data = m.Photos[0].Data
		name = m.Photos[0].Filename
	}
	e.submitJob(m.ID, token, data, name, genimage.EditPrompt(instruction, m.Log.Location))
}

// Flip mirrors the selected memory horizontally.
func (e *Editor) Flip(ctx context.Context) {
	e.updateSelected(ctx, func(m memory.Memory) memory.Memory {
		m.Flipped = !m.Flipped
		return m
	})
}

// Scale resizes the selected memory by a factor.
func (e *Editor) Scale(ctx context.Context, factor float64) {
	e.updateSelected(ctx, func(m memory.Memory) memory.Memory {
		m.Width *= factor
		m.Height *= factor
		return m
	})
}

// SetLocked locks or unlocks the selected memory.
func (e *Editor) SetLocked(ctx context.Context, locked bool) {
	e.mu.Lock()
	id := e.selectedID
	ok := e.store.Update(id, func(m memory.Memory) memory.Memory {
		m.Locked = locked
		return m
	})
	var m memory.Memory
	if ok {
		m, _ = e.store.Get(id)
	}
	e.mu.Unlock()
	if ok {
		e.persistUpdate(ctx, m)
	}
}

// ToggleOriginal swaps between the sprite and the source photo. It works
// even on locked or generating memories.
func (e *Editor) ToggleOriginal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.Update(e.selectedID, func(m memory.Memory) memory.Memory {
		if len(m.Photos) > 0 {
			m.ShowOriginal = !m.ShowOriginal
		}
		return m
	})
}

// Duplicate copies the selected memory offset by (+40,+20) screen pixels.
// The sprite bytes are shared with the source.
func (e *Editor) Duplicate(ctx context.Context) {
	e.mu.Lock()
	m, ok := e.store.Get(e.selectedID)
	if !ok || e.view.Project == nil {
		e.mu.Unlock()
		return
	}
	x, y := e.view.Project(m.Lat, m.Lng)
	lat, lng := e.view.Unproject(x+40, y+20)

	dup := m
	dup.ID = 0
	dup.RemoteID = 0
	dup.Lat, dup.Lng = lat, lng
	dup.Photos = append([]memory.Photo(nil), m.Photos...)
	for i := range dup.Photos {
		dup.Photos[i].RemoteID = 0
	}
	dup = e.store.Add(dup)
	e.selectedID = dup.ID
	e.mu.Unlock()

	rec, err := e.persist.CreateMemory(ctx, e.mapID, createPayload(dup))
	if err != nil {
		e.log.Error("persist duplicate failed", "memory", dup.ID, "error", err)
		e.notify.Notify("Failed to save memory")
		return
	}
	e.mu.Lock()
	e.store.Update(dup.ID, func(m memory.Memory) memory.Memory {
		m.RemoteID = rec.ID
		return m
	})
	e.mu.Unlock()
	for _, p := range dup.Photos {
		if _, err := e.persist.AddPhoto(ctx, rec.ID, encodePhoto(p.Data), p.Filename); err != nil {
			e.log.Error("persist duplicate photo failed", "memory", dup.ID, "error", err)
		}
	}
}

// Nudge moves the selected memory by one keyboard step, scaled down as the
// map zooms in so the on-screen distance stays workable.
func (e *Editor) Nudge(ctx context.Context, dLat, dLng float64) {
	e.mu.Lock()
	zoom := e.view.Zoom
	e.mu.Unlock()
	if zoom < 1 {
		zoom = 1
	}
	factor := 1 / (zoom * zoom)
	e.updateSelected(ctx, func(m memory.Memory) memory.Memory {
		m.Lat += dLat * MoveAmount * factor
		m.Lng += dLng * MoveAmount * factor
		return m
	})
}

// HandleKey dispatches one keyboard event. Keys are ignored while a text
// input is focused. 'o' only needs a selection; every other command also
// requires the memory to be neither generating nor locked.
func (e *Editor) HandleKey(ctx context.Context, key string, inputFocused bool) {
	if inputFocused {
		return
	}

	e.mu.Lock()
	m, ok := e.store.Get(e.selectedID)
	e.mu.Unlock()
	if !ok {
		return
	}

	if key == "o" {
		e.ToggleOriginal()
		return
	}
	if m.Generating || m.Locked {
		return
	}

	switch key {
	case "ArrowUp":
		e.Nudge(ctx, 1, 0)
	case "ArrowDown":
		e.Nudge(ctx, -1, 0)
	case "ArrowLeft":
		e.Nudge(ctx, 0, -1)
	case "ArrowRight":
		e.Nudge(ctx, 0, 1)
	case "Delete", "Backspace":
		e.Delete(ctx)
	case "r":
		e.Regenerate(ctx)
	case "f":
		e.Flip(ctx)
	case "d":
		e.Duplicate(ctx)
	case "=", "+":
		e.Scale(ctx, 1.1)
	case "-":
		e.Scale(ctx, 1/1.1)
	}
}

// updateSelected mutates the selected memory and persists the result.
func (e *Editor) updateSelected(ctx context.Context, fn func(memory.Memory) memory.Memory) {
	e.mu.Lock()
	id := e.selectedID
	if !e.store.Update(id, fn) {
		e.mu.Unlock()
		return
	}
	m, _ := e.store.Get(id)
	e.mu.Unlock()
	e.persistUpdate(ctx, m)
}

func (e *Editor) bumpToken(id int64) uint64 {
	e.tokens[id]++
	return e.tokens[id]
}

func (e *Editor) submitJob(memoryID int64, token uint64, data []byte, filename, prompt string) {
	job := pipeline.Job{
		ID:       uuid.NewString(),
		MemoryID: memoryID,
		Token:    token,
		Image:    data,
		MimeType: mimeFromFilename(filename),
		Prompt:   prompt,
	}
	if err := e.queue.Submit(job); err != nil {
		e.log.Error("submit generation failed", "memory", memoryID, "error", err)
		e.mu.Lock()
		e.store.Update(memoryID, func(m memory.Memory) memory.Memory {
			m.Generating = false
			return m
		})
		e.mu.Unlock()
		e.notify.Notify("Generation queue is full, try again")
	}
}

// applyResult folds a finished generation back into the store. Results
// whose token is no longer current belong to a superseded request and are
// dropped; only the latest start may complete, in any finish order.
func (e *Editor) applyResult(ctx context.Context, res pipeline.Result) {
	e.mu.Lock()
	current := e.tokens[res.Job.MemoryID]
	if res.Job.Token != current {
		e.mu.Unlock()
		e.log.Info("stale generation discarded", "memory", res.Job.MemoryID, "token", res.Job.Token, "current", current)
		return
	}

	if res.Error != nil {
		e.store.Update(res.Job.MemoryID, func(m memory.Memory) memory.Memory {
			m.Generating = false
			return m
		})
		e.mu.Unlock()
		e.notify.Notify("Image generation failed")
		return
	}

	ok := e.store.Update(res.Job.MemoryID, func(m memory.Memory) memory.Memory {
		m.Sprite = res.Sprite.PNG
		m.SpriteBounds = boundsFromSprite(res.Sprite)
		m.ShowOriginal = false
		m.Generating = false
		m.Width = memory.DefaultSize
		m.Height = spriteHeight(res.Sprite)
		return m
	})
	var m memory.Memory
	if ok {
		m, _ = e.store.Get(res.Job.MemoryID)
	}
	e.mu.Unlock()

	if ok {
		e.persistUpdate(ctx, m)
	}
}

// persistUpdate pushes the full current state of a memory to the backend.
func (e *Editor) persistUpdate(ctx context.Context, m memory.Memory) {
	if m.RemoteID == 0 {
		return
	}
	if _, err := e.persist.UpdateMemory(ctx, m.RemoteID, updatePayload(m)); err != nil {
		e.log.Error("persist update failed", "memory", m.ID, "error", err)
		e.notify.Notify("Failed to update memory")
	}
}

func spriteHeight(p sprite.Processed) float64 {
	if p.Width <= 0 || p.Height <= 0 {
		return memory.DefaultSize
	}
	aspect := float64(p.Width) / float64(p.Height)
	return memory.DefaultSize / aspect
}

func boundsFromSprite(p sprite.Processed) memory.Bounds {
	return memory.Bounds{
		X:      p.Bounds.Min.X,
		Y:      p.Bounds.Min.Y,
		Width:  p.Bounds.Dx(),
		Height: p.Bounds.Dy(),
	}
}
