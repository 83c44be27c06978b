package user_api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/apperr"
	"ms-checkin/internal/auth"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/users"
)

type Handler struct {
	UserService *users.Service
	Logger      *logger.Logger
}

func NewHandler(service *users.Service, log *logger.Logger) *Handler {
	return &Handler{UserService: service, Logger: log}
}

// RegisterBootstrapRoutes registers the API-key protected staff
// registration endpoint; the key middleware already resolved the role.
func (h *Handler) RegisterBootstrapRoutes(r chi.Router) {
	r.Post("/users/register", h.RegisterStaff)
}

// RegisterRoutes registers the admin-only account endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/list", h.ListUsers)
	r.Delete("/{userId}", h.DeleteUser)
}

func (h *Handler) RegisterStaff(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		apperr.WriteHTTP(w, apperr.New(apperr.Unauthorized, "authentication required"))
		return
	}

	var req users.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, apperr.Wrap(apperr.BadRequest, "invalid request body", err))
		return
	}

	created, err := h.UserService.RegisterStaff(r.Context(), claims.Role, req)
	if err != nil {
		h.Logger.Error("USERS", "RegisterStaff failed: "+err.Error())
		apperr.WriteHTTP(w, err)
		return
	}

	sendJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User registered successfully",
		"user":    created,
	})
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	staff, err := h.UserService.ListUsers(r.Context())
	if err != nil {
		h.Logger.Error("USERS", "ListUsers failed: "+err.Error())
		apperr.WriteHTTP(w, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{"users": staff})
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		apperr.WriteHTTP(w, apperr.New(apperr.BadRequest, "user id is required"))
		return
	}

	if err := h.UserService.DeleteUser(r.Context(), userID); err != nil {
		h.Logger.Error("USERS", "DeleteUser failed: "+err.Error())
		apperr.WriteHTTP(w, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{"message": "User deleted successfully"})
}

func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
