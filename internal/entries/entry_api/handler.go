package entry_api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/apperr"
	"ms-checkin/internal/auth"
	"ms-checkin/internal/entries"
	"ms-checkin/internal/logger"
)

type Handler struct {
	EntryService *entries.Service
	Logger       *logger.Logger
}

func NewHandler(service *entries.Service, log *logger.Logger) *Handler {
	return &Handler{EntryService: service, Logger: log}
}

// RegisterRoutes registers the gate endpoints on a chi router. The scope
// middleware is attached per endpoint so the {eventId} path param is
// already resolved when it runs.
func (h *Handler) RegisterRoutes(r chi.Router, scope func(http.Handler) http.Handler) {
	r.With(scope).Post("/", h.RecordArrival)
	r.With(scope).Post("/departure", h.RecordDeparture)
	r.With(scope).Get("/today/{userId}/{eventId}", h.GetTodayEntries)
	r.With(scope).Get("/history/{userId}/{eventId}", h.GetHistory)
}

func (h *Handler) RecordArrival(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		apperr.WriteHTTP(w, apperr.New(apperr.Unauthorized, "authentication required"))
		return
	}

	var req entries.ArrivalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, apperr.Wrap(apperr.BadRequest, "invalid request body", err))
		return
	}
	if req.UserID == 0 || req.EventID == 0 {
		apperr.WriteHTTP(w, apperr.New(apperr.BadRequest, "user_id and event_id are required"))
		return
	}

	result, err := h.EntryService.RecordArrival(r.Context(), claims, req)
	if err != nil {
		h.Logger.Error("ENTRY", "RecordArrival failed: "+err.Error())
		apperr.WriteHTTP(w, err)
		return
	}

	sendJSON(w, http.StatusCreated, map[string]interface{}{
		"message":    "Entry registered successfully",
		"record_id":  result.RecordID,
		"entry_item": result.Item,
	})
}

func (h *Handler) RecordDeparture(w http.ResponseWriter, r *http.Request) {
	var req entries.DepartureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, apperr.Wrap(apperr.BadRequest, "invalid request body", err))
		return
	}
	if req.UserID == 0 || req.EventID == 0 {
		apperr.WriteHTTP(w, apperr.New(apperr.BadRequest, "user_id and event_id are required"))
		return
	}

	result, err := h.EntryService.RecordDeparture(r.Context(), req)
	if err != nil {
		h.Logger.Error("ENTRY", "RecordDeparture failed: "+err.Error())
		apperr.WriteHTTP(w, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"message":          "Departure registered successfully",
		"entry_item":       result.Item,
		"duration_seconds": result.DurationSeconds,
	})
}

func (h *Handler) GetTodayEntries(w http.ResponseWriter, r *http.Request) {
	userID, eventID, err := pathIDs(r)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	result, svcErr := h.EntryService.GetTodayEntries(r.Context(), userID, eventID)
	if svcErr != nil {
		apperr.WriteHTTP(w, svcErr)
		return
	}

	sendJSON(w, http.StatusOK, result)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, eventID, err := pathIDs(r)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, parseErr := strconv.Atoi(raw); parseErr == nil && parsed > 0 {
			limit = parsed
		}
	}

	result, svcErr := h.EntryService.GetHistory(r.Context(), userID, eventID, limit)
	if svcErr != nil {
		apperr.WriteHTTP(w, svcErr)
		return
	}

	sendJSON(w, http.StatusOK, result)
}

func pathIDs(r *http.Request) (int64, int64, error) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		return 0, 0, apperr.New(apperr.BadRequest, "invalid user id in path")
	}
	eventID, err := strconv.ParseInt(chi.URLParam(r, "eventId"), 10, 64)
	if err != nil {
		return 0, 0, apperr.New(apperr.BadRequest, "invalid event id in path")
	}
	return userID, eventID, nil
}

func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
