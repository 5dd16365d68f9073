package agent

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fileferry/fileferry/internal/catalog"
)

// Router returns the agent's local HTTP surface: connection status plus
// CRUD over the downloaded files.
func (a *Agent) Router() (http.Handler, error) {
	store, err := catalog.Open(a.cfg.FilesDir)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"websocket_connected": a.Connected()})
	})

	r.Get("/list-files", func(w http.ResponseWriter, req *http.Request) {
		entries, err := store.List()
		if err != nil {
			a.logger.Error("list files", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cannot list files"})
			return
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name)
		}
		writeJSON(w, http.StatusOK, map[string]any{"files": names})
	})

	r.Delete("/files/{file}", func(w http.ResponseWriter, req *http.Request) {
		file := chi.URLParam(req, "file")
		if err := store.Delete(file); err != nil {
			if errors.Is(err, catalog.ErrNotFound) || errors.Is(err, catalog.ErrBadName) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "file not found"})
				return
			}
			a.logger.Error("delete file", "file", file, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "delete failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "file": file})
	})

	return r, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
