package reports

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"communitycore/internal/blob"
)

const reportsPrefix = "/api/v1/reports"

// Handler exposes report scheduling and retrieval over HTTP.
type Handler struct {
	worker *Worker
	store  blob.Store
}

// NewHandler constructs a reports HTTP handler. The blob store is used to
// serve artifact payloads and should match the one the worker writes to.
func NewHandler(worker *Worker, store blob.Store) *Handler {
	return &Handler{worker: worker, store: store}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.worker == nil {
		writeError(w, http.StatusInternalServerError, "report worker not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == reportsPrefix:
		h.handleCollection(w, r)
	case strings.HasPrefix(path, reportsPrefix+"/"):
		rest := strings.TrimPrefix(path, reportsPrefix+"/")
		if id, ok := strings.CutSuffix(rest, "/artifact"); ok {
			h.handleArtifact(w, r, id)
			return
		}
		if strings.Contains(rest, "/") {
			http.NotFound(w, r)
			return
		}
		h.handleByID(w, r, rest)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
		record, err := h.worker.Enqueue(r.Context(), req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, record)
	case http.MethodGet:
		records := h.worker.List()
		writeJSON(w, http.StatusOK, map[string]any{"items": records, "count": len(records)})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleByID(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	record, ok := h.worker.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) handleArtifact(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	record, ok := h.worker.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if record.Status != StatusSucceeded || record.Artifact == nil {
		writeError(w, http.StatusConflict, "report artifact not ready")
		return
	}
	if h.store == nil {
		writeError(w, http.StatusInternalServerError, "artifact store not configured")
		return
	}
	info, body, err := h.store.Get(r.Context(), record.Artifact.Key)
	if err != nil {
		writeError(w, http.StatusNotFound, "artifact payload missing")
		return
	}
	defer body.Close()
	contentType := info.ContentType
	if contentType == "" {
		contentType = record.Artifact.ContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
