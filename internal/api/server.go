// Package api exposes the public server's HTTP and WebSocket surface.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fileferry/fileferry/internal/catalog"
	"github.com/fileferry/fileferry/internal/dispatch"
	"github.com/fileferry/fileferry/internal/hub"
	"github.com/fileferry/fileferry/internal/registry"
)

// Server wires the catalog, hub, registry, and dispatcher behind HTTP.
type Server struct {
	catalog    *catalog.Catalog
	hub        *hub.Hub
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	apiKey     string
	logger     *slog.Logger
}

// NewServer creates the API server.
func NewServer(cat *catalog.Catalog, h *hub.Hub, reg *registry.Registry, d *dispatch.Dispatcher, apiKey string, logger *slog.Logger) *Server {
	return &Server{
		catalog:    cat,
		hub:        h,
		registry:   reg,
		dispatcher: d,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// Router returns the server's HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/list-files", s.handleListFiles)
	r.Post("/start-download/{file}", s.handleStartDownload)
	r.Delete("/files/{file}", s.handleDeleteFile)
	r.Get("/secure-file/{file}", s.handleSecureFile)

	r.Get("/ws", s.handleObserverWS)
	r.Get("/ws/agent", s.handleAgentWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// fileStatus pairs a catalog entry with its registry status for the list view.
type fileStatus struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Status string `json:"status"`
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	entries, err := s.catalog.List()
	if err != nil {
		s.logger.Error("list catalog", "error", err)
		writeError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}

	names := make([]string, 0, len(entries))
	detailed := make([]fileStatus, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
		detailed = append(detailed, fileStatus{
			Name:   e.Name,
			Size:   e.Size,
			Status: string(s.registry.Get(e.Name)),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"files":   names,
		"entries": detailed,
	})
}

func (s *Server) handleStartDownload(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")

	err := s.dispatcher.SubmitDownload(file)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "download started", "file": file})
	case errors.Is(err, dispatch.ErrNotFound):
		writeError(w, http.StatusNotFound, "file not found")
	case errors.Is(err, dispatch.ErrAgentUnavailable):
		writeError(w, http.StatusConflict, "no agent connected")
	default:
		s.logger.Error("submit download", "file", file, "error", err)
		writeError(w, http.StatusInternalServerError, "dispatch failed")
	}
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")

	if err := s.catalog.Delete(file); err != nil {
		if errors.Is(err, catalog.ErrNotFound) || errors.Is(err, catalog.ErrBadName) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		s.logger.Error("delete file", "file", file, "error", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}

	s.registry.Forget(file)
	s.logger.Info("file deleted", "file", file)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "file": file})
}

func (s *Server) handleSecureFile(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusForbidden, "invalid API key")
		return
	}

	file := chi.URLParam(r, "file")
	path, err := s.catalog.Path(file)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	s.logger.Info("secure file access", "file", file)
	http.ServeFile(w, r, path)
}

// authorized compares the request's API key against the shared token.
func (s *Server) authorized(r *http.Request) bool {
	if s.apiKey == "" {
		return false
	}
	got := r.Header.Get("X-API-Key")
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) == 1
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
