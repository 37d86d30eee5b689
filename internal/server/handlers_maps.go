package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"pixelmap/internal/storage"
)

// handleAuthSync upserts the authenticated user and makes sure a default
// map exists. Clients call it once after login.
func (s *Server) handleAuthSync(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	u := storage.User{
		ID:          id.ID,
		Username:    id.Username,
		Email:       id.Email,
		DisplayName: id.DisplayName,
	}
	if err := s.store.UpsertUser(u); err != nil {
		s.log.Error("user sync failed", "user", id.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to sync user")
		return
	}
	if _, err := s.store.DefaultMap(id.ID); err != nil {
		s.log.Error("default map failed", "user", id.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create default map")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleAuthMe(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	u, err := s.store.GetUser(id.ID)
	if errors.Is(err, storage.ErrNotFound) {
		// Verified but never synced; answer from the token.
		writeJSON(w, http.StatusOK, storage.User{
			ID: id.ID, Username: id.Username, Email: id.Email, DisplayName: id.DisplayName,
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleListMaps(w http.ResponseWriter, r *http.Request) {
	maps, err := s.store.ListMaps(identityFrom(r).ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list maps")
		return
	}
	if maps == nil {
		maps = []storage.MapRecord{}
	}
	writeJSON(w, http.StatusOK, maps)
}

type mapRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	IsPublic bool   `json:"is_public"`
}

func (s *Server) handleCreateMap(w http.ResponseWriter, r *http.Request) {
	var req mapRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	m, err := s.store.CreateMap(identityFrom(r).ID, req.Name, req.IsPublic)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create map")
		return
	}
	s.hub.Publish(Event{Type: EventMapCreated, MapID: m.ID})
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleGetMap(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetMap(identityFrom(r).ID, pathID(r, "id"))
	if s.storeError(w, err, "Map not found") {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type mapUpdateRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=120"`
	IsPublic *bool   `json:"is_public"`
}

func (s *Server) handleUpdateMap(w http.ResponseWriter, r *http.Request) {
	var req mapUpdateRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	m, err := s.store.UpdateMap(identityFrom(r).ID, pathID(r, "id"), req.Name, req.IsPublic)
	if s.storeError(w, err, "Map not found") {
		return
	}
	s.hub.Publish(Event{Type: EventMapUpdated, MapID: m.ID})
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMap(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	err := s.store.DeleteMap(identityFrom(r).ID, id)
	if s.storeError(w, err, "Map not found") {
		return
	}
	s.hub.Publish(Event{Type: EventMapDeleted, MapID: id})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleExportMap(w http.ResponseWriter, r *http.Request) {
	export, err := s.store.ExportMap(identityFrom(r).ID, pathID(r, "id"))
	if s.storeError(w, err, "Map not found") {
		return
	}
	writeJSON(w, http.StatusOK, export)
}

type importRequest struct {
	Data          json.RawMessage `json:"data"`
	ClearExisting bool            `json:"clear_existing"`
}

// handleImportMap accepts either a full export envelope or a bare memory
// array under data.
func (s *Server) handleImportMap(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	var memories []storage.ImportMemory
	var envelope struct {
		Memories []storage.ImportMemory `json:"memories"`
	}
	if err := json.Unmarshal(req.Data, &envelope); err == nil && envelope.Memories != nil {
		memories = envelope.Memories
	} else if err := json.Unmarshal(req.Data, &memories); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid import payload")
		return
	}

	mapID := pathID(r, "id")
	count, err := s.store.ImportMemories(identityFrom(r).ID, mapID, memories, req.ClearExisting)
	if s.storeError(w, err, "Map not found") {
		return
	}
	s.hub.Publish(Event{Type: EventMapUpdated, MapID: mapID})
	writeJSON(w, http.StatusOK, map[string]int{"imported": count})
}

func (s *Server) handleGeocodeSearch(w http.ResponseWriter, r *http.Request) {
	if s.geo == nil {
		writeError(w, http.StatusNotImplemented, "Search is not configured")
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "Missing query parameter q")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 20 {
		limit = 5
	}
	places := s.geo.Search(r.Context(), query, limit)
	writeJSON(w, http.StatusOK, places)
}

// decodeValid parses a JSON body and runs validation tags, answering 400
// itself on failure.
func (s *Server) decodeValid(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return false
	}
	return true
}

// storeError maps storage failures to responses. Ownership misses answer
// 404 so foreign rows are indistinguishable from absent ones.
func (s *Server) storeError(w http.ResponseWriter, err error, notFound string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFound)
		return true
	}
	s.log.Error("storage error", "error", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
	return true
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id
}
