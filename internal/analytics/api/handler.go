package analytics_api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/analytics"
	"ms-checkin/internal/apperr"
	"ms-checkin/internal/logger"
)

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

func NewHandler(service *analytics.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// RegisterRoutes registers the analytics routes on a chi router. The scope
// middleware goes on each endpoint because it reads the {eventId} param,
// which is only resolved once the route has matched.
func (h *Handler) RegisterRoutes(r chi.Router, scope func(http.Handler) http.Handler) {
	r.Route("/analytics", func(r chi.Router) {
		r.With(scope).Get("/event/{eventId}/security-analytics", h.GetSecurityAnalytics)
		r.With(scope).Get("/event/{eventId}/live-feed", h.GetLiveFeed)
		r.With(scope).Get("/event/{eventId}/security-alerts", h.GetSecurityAlerts)
	})
}

func (h *Handler) GetSecurityAnalytics(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	result, svcErr := h.Service.SecurityAnalytics(r.Context(), eventID)
	if svcErr != nil {
		h.Logger.Error("ANALYTICS", "SecurityAnalytics failed: "+svcErr.Error())
		apperr.WriteHTTP(w, svcErr)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"analytics":    result,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) GetLiveFeed(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, parseErr := strconv.Atoi(raw); parseErr == nil && parsed > 0 {
			limit = parsed
		}
	}

	result, svcErr := h.Service.LiveFeed(r.Context(), eventID, limit)
	if svcErr != nil {
		h.Logger.Error("ANALYTICS", "LiveFeed failed: "+svcErr.Error())
		apperr.WriteHTTP(w, svcErr)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"entries":   result.Entries,
		"count":     result.Count,
		"timestamp": result.Timestamp,
	})
}

func (h *Handler) GetSecurityAlerts(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	result, svcErr := h.Service.SecurityAlerts(r.Context(), eventID)
	if svcErr != nil {
		h.Logger.Error("ANALYTICS", "SecurityAlerts failed: "+svcErr.Error())
		apperr.WriteHTTP(w, svcErr)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"alerts":      result.Alerts,
		"alert_count": result.AlertCount,
		"timestamp":   result.Timestamp,
	})
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
