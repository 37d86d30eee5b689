package server

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"pixelmap/internal/sprite"
	"pixelmap/internal/storage"
)

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	memories, err := s.store.MapMemories(identityFrom(r).ID, pathID(r, "id"))
	if s.storeError(w, err, "Map not found") {
		return
	}
	if memories == nil {
		memories = []storage.MemoryRecord{}
	}
	writeJSON(w, http.StatusOK, memories)
}

type memoryRequest struct {
	SourceType     string          `json:"source_type" validate:"omitempty,oneof=file text"`
	SourceData     string          `json:"source_data"`
	ProcessedImage string          `json:"processed_image"`
	Lat            *float64        `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lng            *float64        `json:"lng" validate:"omitempty,gte=-180,lte=180"`
	Width          *int            `json:"width" validate:"omitempty,gt=0"`
	Height         *int            `json:"height" validate:"omitempty,gt=0"`
	ContentBounds  *storage.Bounds `json:"content_bounds"`
	Flipped        *bool           `json:"flipped_horizontally"`
	Locked         *bool           `json:"is_locked"`
	LogLocation    *string         `json:"log_location"`
	LogDate        *string         `json:"log_date"`
	LogMusings     *string         `json:"log_musings"`
}

func (s *Server) handleCreateMemory(w http.ResponseWriter, r *http.Request) {
	var req memoryRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	nm := storage.NewMemory{
		MapID:          pathID(r, "id"),
		SourceType:     req.SourceType,
		SourceData:     req.SourceData,
		ProcessedImage: req.ProcessedImage,
		ContentBounds:  req.ContentBounds,
	}
	if nm.SourceType == "" {
		nm.SourceType = "file"
	}
	if req.Lat != nil {
		nm.Lat = *req.Lat
	}
	if req.Lng != nil {
		nm.Lng = *req.Lng
	}
	if req.Width != nil {
		nm.Width = *req.Width
	}
	if req.Height != nil {
		nm.Height = *req.Height
	}
	if req.Flipped != nil {
		nm.Flipped = *req.Flipped
	}
	if req.Locked != nil {
		nm.Locked = *req.Locked
	}
	if req.LogLocation != nil {
		nm.LogLocation = *req.LogLocation
	}
	if req.LogDate != nil {
		nm.LogDate = *req.LogDate
	}
	if req.LogMusings != nil {
		nm.LogMusings = *req.LogMusings
	}

	m, err := s.store.CreateMemory(identityFrom(r).ID, nm)
	if s.storeError(w, err, "Map not found") {
		return
	}
	s.hub.Publish(Event{Type: EventMemoryCreated, MapID: m.MapID, MemoryID: m.ID})
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetMemory(identityFrom(r).ID, pathID(r, "id"))
	if s.storeError(w, err, "Memory not found") {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	var req memoryRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	upd := storage.MemoryUpdate{
		Lat:           req.Lat,
		Lng:           req.Lng,
		Width:         req.Width,
		Height:        req.Height,
		ContentBounds: req.ContentBounds,
		Flipped:       req.Flipped,
		Locked:        req.Locked,
		LogLocation:   req.LogLocation,
		LogDate:       req.LogDate,
		LogMusings:    req.LogMusings,
	}
	if req.ProcessedImage != "" {
		upd.ProcessedImage = &req.ProcessedImage
	}

	m, err := s.store.UpdateMemory(identityFrom(r).ID, pathID(r, "id"), upd)
	if s.storeError(w, err, "Memory not found") {
		return
	}
	s.hub.Publish(Event{Type: EventMemoryUpdated, MapID: m.MapID, MemoryID: m.ID})
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	m, err := s.store.GetMemory(identityFrom(r).ID, id)
	if s.storeError(w, err, "Memory not found") {
		return
	}
	if err := s.store.DeleteMemory(identityFrom(r).ID, id); s.storeError(w, err, "Memory not found") {
		return
	}
	s.hub.Publish(Event{Type: EventMemoryDeleted, MapID: m.MapID, MemoryID: id})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type photoRequest struct {
	PhotoData string `json:"photo_data" validate:"required"`
	Filename  string `json:"filename" validate:"required,max=255"`
}

func (s *Server) handleAddPhoto(w http.ResponseWriter, r *http.Request) {
	var req photoRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	if _, err := base64.StdEncoding.DecodeString(req.PhotoData); err != nil {
		writeError(w, http.StatusBadRequest, "photo_data must be base64")
		return
	}

	memoryID := pathID(r, "id")
	m, err := s.store.GetMemory(identityFrom(r).ID, memoryID)
	if s.storeError(w, err, "Memory not found") {
		return
	}
	p, err := s.store.AddPhoto(identityFrom(r).ID, memoryID, req.PhotoData, req.Filename)
	if s.storeError(w, err, "Memory not found") {
		return
	}
	s.hub.Publish(Event{Type: EventMemoryUpdated, MapID: m.MapID, MemoryID: memoryID})
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleDeletePhoto(w http.ResponseWriter, r *http.Request) {
	memoryID := pathID(r, "id")
	photoID := pathID(r, "photoID")

	m, err := s.store.GetMemory(identityFrom(r).ID, memoryID)
	if s.storeError(w, err, "Photo not found") {
		return
	}
	// The triple join also proves the photo belongs to this memory.
	if _, err := s.store.GetPhoto(identityFrom(r).ID, memoryID, photoID); s.storeError(w, err, "Photo not found") {
		return
	}
	if err := s.store.DeletePhoto(identityFrom(r).ID, photoID); s.storeError(w, err, "Photo not found") {
		return
	}
	s.hub.Publish(Event{Type: EventMemoryUpdated, MapID: m.MapID, MemoryID: memoryID})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleThumbnail decodes a stored photo and serves a downscaled PNG.
func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPhoto(identityFrom(r).ID, pathID(r, "id"), pathID(r, "photoID"))
	if s.storeError(w, err, "Photo not found") {
		return
	}

	data, err := base64.StdEncoding.DecodeString(p.PhotoData)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Stored photo is corrupt")
		return
	}

	maxDim, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if maxDim <= 0 || maxDim > 1024 {
		maxDim = 256
	}
	thumb, err := sprite.Thumbnail(data, maxDim)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render thumbnail")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(thumb)
}
