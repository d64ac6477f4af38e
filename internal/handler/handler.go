// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/evreg/signupd/internal/engine"
	"github.com/evreg/signupd/internal/model"
	"github.com/evreg/signupd/internal/repository"
	"github.com/evreg/signupd/internal/service"
)

// Handler holds all HTTP handlers for the signup API.
type Handler struct {
	events     *service.EventService
	signups    *service.SignupService
	adminToken string
}

// New constructs a Handler. adminToken guards organizer endpoints; when
// empty they are disabled outright.
func New(events *service.EventService, signups *service.SignupService, adminToken string) *Handler {
	return &Handler{events: events, signups: signups, adminToken: adminToken}
}

// Routes mounts all API routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.With(h.requireAdmin).Post("/", h.CreateEvent)
		r.With(h.requireAdmin).Get("/{id}/signups", h.ListSignups)
		r.With(h.requireAdmin).Patch("/{id}/capacity", h.EditCapacity)
	})
	r.Route("/signups", func(r chi.Router) {
		r.Post("/", h.CreateSignup)
		r.Get("/{id}", h.GetSignup)
		r.Patch("/{id}", h.ConfirmSignup)
		r.Delete("/{id}", h.DeleteSignup)
	})
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps the service failure taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		demote     *engine.WouldDemoteError
		validation *service.ValidationError
	)
	switch {
	case errors.As(err, &demote):
		count := demote.Count
		writeJSON(w, http.StatusConflict, model.ErrorResponse{
			Error: demote.Error(),
			Count: &count,
		})
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, service.ErrInvalidToken):
		writeError(w, http.StatusForbidden, "invalid token")
	case errors.Is(err, service.ErrRegistrationClosed):
		writeError(w, http.StatusForbidden, "registration is closed")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminToken == "" || r.Header.Get("X-Admin-Token") != h.adminToken {
			writeError(w, http.StatusUnauthorized, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) isAdmin(r *http.Request) bool {
	return h.adminToken != "" && r.Header.Get("X-Admin-Token") == h.adminToken
}

// signupToken pulls the capability token from query or header.
func signupToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return r.Header.Get("X-Signup-Token")
}

// ─── Event handlers ───────────────────────────────────────────────────────────

// CreateEvent handles POST /events (admin).
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	details, err := h.events.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, details)
}

// ListEvents handles GET /events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	details, err := h.events.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// ListSignups handles GET /events/{id}/signups (admin).
func (h *Handler) ListSignups(w http.ResponseWriter, r *http.Request) {
	signups, err := h.events.Signups(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if signups == nil {
		signups = []model.Signup{}
	}
	writeJSON(w, http.StatusOK, signups)
}

// EditCapacity handles PATCH /events/{id}/capacity (admin).
// A shrink that would demote placed signups returns 409 with the exact
// count unless allow_demotion is set in the body.
func (h *Handler) EditCapacity(w http.ResponseWriter, r *http.Request) {
	var req model.EditCapacityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	assignments, err := h.events.EditCapacity(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if assignments == nil {
		assignments = []model.Assignment{}
	}
	writeJSON(w, http.StatusOK, assignments)
}

// ─── Signup handlers ──────────────────────────────────────────────────────────

// CreateSignup handles POST /signups.
func (h *Handler) CreateSignup(w http.ResponseWriter, r *http.Request) {
	var req model.CreateSignupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	created, err := h.signups.Create(r.Context(), req.QuotaID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetSignup handles GET /signups/{id}.
func (h *Handler) GetSignup(w http.ResponseWriter, r *http.Request) {
	signup, answers, err := h.signups.Get(r.Context(), chi.URLParam(r, "id"), signupToken(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if answers == nil {
		answers = []model.Answer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"signup":  signup,
		"answers": answers,
	})
}

// ConfirmSignup handles PATCH /signups/{id}.
func (h *Handler) ConfirmSignup(w http.ResponseWriter, r *http.Request) {
	var req model.ConfirmSignupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	signup, err := h.signups.Confirm(r.Context(), chi.URLParam(r, "id"), signupToken(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, signup)
}

// DeleteSignup handles DELETE /signups/{id}.
func (h *Handler) DeleteSignup(w http.ResponseWriter, r *http.Request) {
	err := h.signups.Delete(r.Context(), chi.URLParam(r, "id"), signupToken(r), h.isAdmin(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
