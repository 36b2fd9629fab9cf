// Package records exposes the service CRUD operations over HTTP. Request
// bodies decode into untyped field sets, pass through the core parse
// functions, and the typed errors map onto status codes.
package records

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"communitycore/internal/core"
	"communitycore/pkg/domain"
)

const apiPrefix = "/api/v1"

// Handler provides HTTP access to the record collections.
type Handler struct {
	service *core.Service
}

// NewHandler constructs a records HTTP handler.
func NewHandler(service *core.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeError(w, http.StatusInternalServerError, "records service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == apiPrefix+"/healthz" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}

	switch {
	case path == apiPrefix+"/members":
		h.handleMembers(w, r)
	case strings.HasPrefix(path, apiPrefix+"/members/"):
		h.handleMemberByID(w, r, strings.TrimPrefix(path, apiPrefix+"/members/"))
	case path == apiPrefix+"/events":
		h.handleEvents(w, r)
	case path == apiPrefix+"/donations":
		h.handleDonations(w, r)
	case path == apiPrefix+"/contributions":
		h.handleContributions(w, r)
	case path == apiPrefix+"/prayer-requests":
		h.handlePrayerRequests(w, r)
	case path == apiPrefix+"/contents":
		h.handleContents(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleMembers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		fields, err := decodeFields(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
		input, err := core.ParseMemberInput(fields)
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		member, res, err := h.service.CreateMember(r.Context(), input)
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entityResponse("member", member, res))
	case http.MethodGet:
		members, err := h.service.ListMembers(r.Context())
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		writeList(w, members)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleMemberByID(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		member, err := h.service.GetMember(r.Context(), id)
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"member": member})
	case http.MethodPut:
		fields, err := decodeFields(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
		input, err := core.ParseMemberInput(fields)
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		member, res, err := h.service.UpdateMember(r.Context(), id, input)
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entityResponse("member", member, res))
	case http.MethodDelete:
		res, err := h.service.DeleteMember(r.Context(), id)
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		payload := map[string]any{"status": "deleted", "id": id}
		if warnings := res.Warnings(); len(warnings) > 0 {
			payload["warnings"] = warnings
		}
		writeJSON(w, http.StatusOK, payload)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		fields, err := decodeFields(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
		input, err := core.ParseEventInput(fields)
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		event, res, err := h.service.CreateEvent(r.Context(), input)
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entityResponse("event", event, res))
	case http.MethodGet:
		events, err := h.service.ListEvents(r.Context())
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		writeList(w, events)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleDonations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		fields, err := decodeFields(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
		input, err := core.ParseDonationInput(fields)
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		donation, res, err := h.service.CreateDonation(r.Context(), input)
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entityResponse("donation", donation, res))
	case http.MethodGet:
		donations, err := h.service.ListDonations(r.Context())
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		writeList(w, donations)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleContributions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		fields, err := decodeFields(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
		input, err := core.ParseContributionInput(fields)
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		contribution, res, err := h.service.CreateContribution(r.Context(), input)
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entityResponse("contribution", contribution, res))
	case http.MethodGet:
		contributions, err := h.service.ListContributions(r.Context())
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		writeList(w, contributions)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handlePrayerRequests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		fields, err := decodeFields(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
		input, err := core.ParsePrayerRequestInput(fields)
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		request, res, err := h.service.CreatePrayerRequest(r.Context(), input)
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entityResponse("prayer_request", request, res))
	case http.MethodGet:
		requests, err := h.service.ListPrayerRequests(r.Context())
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		writeList(w, requests)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleContents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		fields, err := decodeFields(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
		input, err := core.ParseContentInput(fields)
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		content, res, err := h.service.CreateContent(r.Context(), input)
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entityResponse("content", content, res))
	case http.MethodGet:
		contents, err := h.service.ListContents(r.Context())
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		writeList(w, contents)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// decodeFields reads the request body into an untyped field set. An empty
// body is tolerated as an empty field set so the parse functions report the
// missing fields instead of a generic decode failure.
func decodeFields(r *http.Request) (map[string]any, error) {
	fields := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return fields, nil
}

func entityResponse(name string, entity any, res domain.Result) map[string]any {
	payload := map[string]any{name: entity}
	if warnings := res.Warnings(); len(warnings) > 0 {
		payload["warnings"] = warnings
	}
	return payload
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// writeErrorFor maps the service error taxonomy onto status codes.
func writeErrorFor(w http.ResponseWriter, err error) {
	var ve core.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": ve.Error(), "field": ve.Field})
		return
	}
	var nf core.ErrNotFound
	if errors.As(err, &nf) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": nf.Error(), "entity": nf.Entity, "id": nf.ID})
		return
	}
	var rve domain.RuleViolationError
	if errors.As(err, &rve) {
		writeJSON(w, http.StatusConflict, map[string]any{"error": rve.Error(), "violations": rve.Result.Violations})
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
