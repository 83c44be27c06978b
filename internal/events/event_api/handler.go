package event_api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/apperr"
	"ms-checkin/internal/auth"
	"ms-checkin/internal/events"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

type Handler struct {
	EventService *events.Service
	Logger       *logger.Logger
}

func NewHandler(service *events.Service, log *logger.Logger) *Handler {
	return &Handler{EventService: service, Logger: log}
}

// RegisterRoutes registers the authenticated event-administration routes.
// The anonymous active-status probe is registered separately via
// RegisterPublicRoutes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/events", func(r chi.Router) {
		r.With(auth.RequireRoles(models.RoleAdmin)).Post("/", h.CreateEvent)
		r.With(auth.RequireRoles(models.RoleAdmin)).Get("/", h.ListEvents)
		r.With(auth.RequireRoles(models.RoleAdmin, models.RoleSecurity)).Get("/public/active", h.ListActiveEvents)
		r.With(auth.RequireRoles(models.RoleAdmin, models.RoleSecurity)).Get("/{eventId}", h.GetEvent)
		r.With(auth.RequireRoles(models.RoleAdmin)).Put("/{eventId}/guards", h.UpdateGuards)
		r.With(auth.RequireRoles(models.RoleAdmin)).Put("/{eventId}/status", h.UpdateStatus)
	})
}

// RegisterPublicRoutes exposes the anonymous event-status probe used by
// registration frontends.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/events/check/{eventId}", h.CheckEvent)
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req events.CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, apperr.Wrap(apperr.BadRequest, "invalid request body", err))
		return
	}

	event, err := h.EventService.CreateEvent(r.Context(), req)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	sendJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Event registered successfully",
		"event":   event,
	})
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	list, err := h.EventService.ListEvents(r.Context())
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{"events": list})
}

func (h *Handler) ListActiveEvents(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())

	list, err := h.EventService.ListActiveEvents(r.Context(), claims)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{"events": list})
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	event, svcErr := h.EventService.GetEvent(r.Context(), eventID)
	if svcErr != nil {
		apperr.WriteHTTP(w, svcErr)
		return
	}

	// Security staff must be on the allow-list when one exists.
	claims, _ := auth.ClaimsFrom(r.Context())
	if claims.IsSecurity() && !event.GuardAllowed(claims.Subject) {
		apperr.WriteHTTP(w, apperr.New(apperr.Forbidden, "you are not authorized to access this event"))
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{"event": event})
}

func (h *Handler) UpdateGuards(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	var req struct {
		AllowedGuards []string `json:"allowed_guards"`
	}
	if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
		apperr.WriteHTTP(w, apperr.Wrap(apperr.BadRequest, "invalid request body", decodeErr))
		return
	}

	event, svcErr := h.EventService.UpdateAllowedGuards(r.Context(), eventID, req.AllowedGuards)
	if svcErr != nil {
		apperr.WriteHTTP(w, svcErr)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Guard list updated successfully",
		"event":   event,
	})
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	var req struct {
		IsActive bool `json:"is_active"`
	}
	if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
		apperr.WriteHTTP(w, apperr.Wrap(apperr.BadRequest, "invalid request body", decodeErr))
		return
	}

	event, svcErr := h.EventService.UpdateStatus(r.Context(), eventID, req.IsActive)
	if svcErr != nil {
		apperr.WriteHTTP(w, svcErr)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Event status updated successfully",
		"event":   event,
	})
}

func (h *Handler) CheckEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	event, svcErr := h.EventService.GetEvent(r.Context(), eventID)
	if svcErr != nil {
		apperr.WriteHTTP(w, svcErr)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{"event": event})
}

func eventIDParam(r *http.Request) (int64, error) {
	eventID, err := strconv.ParseInt(chi.URLParam(r, "eventId"), 10, 64)
	if err != nil {
		return 0, apperr.New(apperr.BadRequest, "invalid event id in path")
	}
	return eventID, nil
}

func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
