package tourist_api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/apperr"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/tourists"
)

type Handler struct {
	TouristService *tourists.Service
	Logger         *logger.Logger
}

func NewHandler(service *tourists.Service, log *logger.Logger) *Handler {
	return &Handler{TouristService: service, Logger: log}
}

// RegisterPublicRoutes registers the self-service registration endpoint.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/tourists/register", h.Register)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req tourists.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, apperr.Wrap(apperr.BadRequest, "invalid request body", err))
		return
	}

	result, err := h.TouristService.Register(r.Context(), req)
	if err != nil {
		h.Logger.Error("TOURIST", "Register failed: "+err.Error())
		apperr.WriteHTTP(w, err)
		return
	}

	sendJSON(w, http.StatusCreated, result)
}

func (h *Handler) GetTourist(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		apperr.WriteHTTP(w, apperr.New(apperr.BadRequest, "invalid user id in path"))
		return
	}

	tourist, svcErr := h.TouristService.GetTourist(r.Context(), userID)
	if svcErr != nil {
		apperr.WriteHTTP(w, svcErr)
		return
	}

	sendJSON(w, http.StatusOK, tourist)
}

func (h *Handler) ListTourists(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)

	result, err := h.TouristService.ListTourists(r.Context(), limit, offset)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	sendJSON(w, http.StatusOK, result)
}

func (h *Handler) ListByEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.ParseInt(chi.URLParam(r, "eventId"), 10, 64)
	if err != nil {
		apperr.WriteHTTP(w, apperr.New(apperr.BadRequest, "invalid event id in path"))
		return
	}

	limit, offset := pageParams(r)
	result, svcErr := h.TouristService.ListByEvent(r.Context(), eventID, limit, offset)
	if svcErr != nil {
		apperr.WriteHTTP(w, svcErr)
		return
	}
	if result.Tourists == nil {
		result.Tourists = []tourists.TouristWithStatus{}
	}

	sendJSON(w, http.StatusOK, result)
}

func pageParams(r *http.Request) (int, int) {
	limit, offset := 50, 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
