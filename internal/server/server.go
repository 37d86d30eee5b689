// Package server exposes the map and memory REST API with passkey bearer
// auth, plus a websocket event feed.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"pixelmap/internal/auth"
	"pixelmap/internal/geocode"
	"pixelmap/internal/storage"
)

// Server wraps the HTTP API around storage, auth and the event hub.
type Server struct {
	addr     string
	store    *storage.Store
	verifier auth.Verifier
	geo      *geocode.Client
	log      *slog.Logger
	validate *validator.Validate
	hub      *Hub
	server   *http.Server
}

// NewServer builds the API server. geo may be nil to disable the search
// proxy.
func NewServer(addr string, store *storage.Store, verifier auth.Verifier, geo *geocode.Client, log *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		store:    store,
		verifier: verifier,
		geo:      geo,
		log:      log,
		validate: validator.New(),
		hub:      NewHub(log),
	}
}

// Router assembles all routes. Exposed for handler tests.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestLog)

	r.HandleFunc("/api/health", s.handleHealth).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireAuth)

	api.HandleFunc("/auth/sync", s.handleAuthSync).Methods("POST")
	api.HandleFunc("/auth/me", s.handleAuthMe).Methods("GET")

	api.HandleFunc("/maps", s.handleListMaps).Methods("GET")
	api.HandleFunc("/maps", s.handleCreateMap).Methods("POST")
	api.HandleFunc("/maps/{id:[0-9]+}", s.handleGetMap).Methods("GET")
	api.HandleFunc("/maps/{id:[0-9]+}", s.handleUpdateMap).Methods("PUT")
	api.HandleFunc("/maps/{id:[0-9]+}", s.handleDeleteMap).Methods("DELETE")
	api.HandleFunc("/maps/{id:[0-9]+}/export", s.handleExportMap).Methods("GET")
	api.HandleFunc("/maps/{id:[0-9]+}/import", s.handleImportMap).Methods("POST")

	api.HandleFunc("/maps/{id:[0-9]+}/memories", s.handleListMemories).Methods("GET")
	api.HandleFunc("/maps/{id:[0-9]+}/memories", s.handleCreateMemory).Methods("POST")
	api.HandleFunc("/memories/{id:[0-9]+}", s.handleGetMemory).Methods("GET")
	api.HandleFunc("/memories/{id:[0-9]+}", s.handleUpdateMemory).Methods("PUT")
	api.HandleFunc("/memories/{id:[0-9]+}", s.handleDeleteMemory).Methods("DELETE")
	api.HandleFunc("/memories/{id:[0-9]+}/photos", s.handleAddPhoto).Methods("POST")
	api.HandleFunc("/memories/{id:[0-9]+}/photos/{photoID:[0-9]+}", s.handleDeletePhoto).Methods("DELETE")
	api.HandleFunc("/memories/{id:[0-9]+}/photos/{photoID:[0-9]+}/thumbnail", s.handleThumbnail).Methods("GET")

	api.HandleFunc("/geocode/search", s.handleGeocodeSearch).Methods("GET")

	api.HandleFunc("/events", s.handleEvents).Methods("GET")
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info("server starting", "addr", s.addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
