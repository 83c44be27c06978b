package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/models"
)

type stubEvents struct {
	events map[int64]*models.Event
	err    error
}

func (s *stubEvents) GetEventByID(_ context.Context, eventID int64) (*models.Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	event, ok := s.events[eventID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return event, nil
}

func newGuardRouter(events EventLookup) chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(GuardScope(events))
		r.Get("/entry/today/{userId}/{eventId}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Post("/entry", func(w http.ResponseWriter, r *http.Request) {
			// The middleware must leave the body readable.
			body, _ := io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
		})
	})
	return r
}

func requestAs(claims *models.StaffClaims, method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if claims != nil {
		req = req.WithContext(WithClaims(req.Context(), *claims))
	}
	return req
}

func restrictedEvents() *stubEvents {
	return &stubEvents{events: map[int64]*models.Event{
		10: {EventID: 10, Name: "Restricted", IsActive: true, AllowedGuards: []string{"guard-a"}},
		20: {EventID: 20, Name: "Open", IsActive: true},
	}}
}

func TestGuardScopeAllowsListedGuard(t *testing.T) {
	router := newGuardRouter(restrictedEvents())

	claims := &models.StaffClaims{Subject: "guard-a", Role: models.RoleSecurity}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(claims, http.MethodGet, "/entry/today/1/10", ""))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardScopeRejectsUnlistedGuard(t *testing.T) {
	router := newGuardRouter(restrictedEvents())

	claims := &models.StaffClaims{Subject: "guard-b", Role: models.RoleSecurity}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(claims, http.MethodGet, "/entry/today/1/10", ""))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGuardScopeEmptyAllowListIsUnrestricted(t *testing.T) {
	router := newGuardRouter(restrictedEvents())

	claims := &models.StaffClaims{Subject: "guard-b", Role: models.RoleSecurity}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(claims, http.MethodGet, "/entry/today/1/20", ""))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardScopeAdminAlwaysPasses(t *testing.T) {
	router := newGuardRouter(restrictedEvents())

	claims := &models.StaffClaims{Subject: "boss", Role: models.RoleAdmin}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(claims, http.MethodGet, "/entry/today/1/10", ""))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardScopeResolvesEventFromBodyAndRestoresIt(t *testing.T) {
	router := newGuardRouter(restrictedEvents())

	body := `{"user_id":1,"event_id":10,"entry_type":"normal"}`
	claims := &models.StaffClaims{Subject: "guard-a", Role: models.RoleSecurity}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(claims, http.MethodPost, "/entry", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, body, rec.Body.String())
}

func TestGuardScopeMissingEventID(t *testing.T) {
	router := newGuardRouter(restrictedEvents())

	claims := &models.StaffClaims{Subject: "guard-a", Role: models.RoleSecurity}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(claims, http.MethodPost, "/entry", `{"user_id":1}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGuardScopeUnknownEvent(t *testing.T) {
	router := newGuardRouter(restrictedEvents())

	claims := &models.StaffClaims{Subject: "guard-a", Role: models.RoleSecurity}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(claims, http.MethodGet, "/entry/today/1/999", ""))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "not_found", payload["error"])
}

func TestGuardScopeStoreFailureIsInternal(t *testing.T) {
	router := newGuardRouter(&stubEvents{err: errors.New("connection refused")})

	claims := &models.StaffClaims{Subject: "guard-a", Role: models.RoleSecurity}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(claims, http.MethodGet, "/entry/today/1/10", ""))

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "internal", payload["error"])
}

// Mirrors the server wiring: the scope middleware attached with With on
// routes registered inside a mounted subrouter. Attached with Use instead,
// chi would run it before the {eventId} param is resolved.
func TestGuardScopeSeesPathParamOnSubrouter(t *testing.T) {
	r := chi.NewRouter()
	scope := GuardScope(restrictedEvents())
	r.Route("/api", func(r chi.Router) {
		r.Route("/entry", func(r chi.Router) {
			r.With(scope).Get("/today/{userId}/{eventId}", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		})
		r.Route("/analytics", func(r chi.Router) {
			r.With(scope).Get("/event/{eventId}/security-alerts", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		})
	})

	listed := &models.StaffClaims{Subject: "guard-a", Role: models.RoleSecurity}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, requestAs(listed, http.MethodGet, "/api/entry/today/1/10", ""))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, requestAs(listed, http.MethodGet, "/api/analytics/event/10/security-alerts", ""))
	assert.Equal(t, http.StatusOK, rec.Code)

	// The path param must drive the decision, not fall through to 400.
	unlisted := &models.StaffClaims{Subject: "guard-b", Role: models.RoleSecurity}
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, requestAs(unlisted, http.MethodGet, "/api/analytics/event/10/security-alerts", ""))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGuardScopeRequiresAuthentication(t *testing.T) {
	router := newGuardRouter(restrictedEvents())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(nil, http.MethodGet, "/entry/today/1/10", ""))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardScopeRejectsNonStaffRole(t *testing.T) {
	router := newGuardRouter(restrictedEvents())

	claims := &models.StaffClaims{Subject: "someone", Role: "visitor"}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(claims, http.MethodGet, "/entry/today/1/10", ""))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRoles(t *testing.T) {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(RequireRoles(models.RoleAdmin))
		r.Get("/admin-only", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	admin := &models.StaffClaims{Subject: "boss", Role: models.RoleAdmin}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, requestAs(admin, http.MethodGet, "/admin-only", ""))
	assert.Equal(t, http.StatusOK, rec.Code)

	security := &models.StaffClaims{Subject: "guard-a", Role: models.RoleSecurity}
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, requestAs(security, http.MethodGet, "/admin-only", ""))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, requestAs(nil, http.MethodGet, "/admin-only", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
