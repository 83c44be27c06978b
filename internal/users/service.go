package users

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-redis/redis/v8"

	"ms-checkin/internal/apperr"
	"ms-checkin/internal/auth"
	"ms-checkin/internal/config"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

// Service manages staff accounts through the identity provider's admin
// API. Staff are not stored locally; Keycloak is the source of truth and
// every call here rides an M2M token.
type Service struct {
	Config      config.AuthConfig
	Client      *http.Client
	RedisClient *redis.Client
	Logger      *logger.Logger
}

func NewService(cfg config.AuthConfig, client *http.Client, redisClient *redis.Client, log *logger.Logger) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	return &Service{Config: cfg, Client: client, RedisClient: redisClient, Logger: log}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// keycloakUser is the admin API's user representation, reduced to the
// fields this service reads and writes.
type keycloakUser struct {
	ID          string               `json:"id,omitempty"`
	Username    string               `json:"username"`
	Email       string               `json:"email"`
	FirstName   string               `json:"firstName,omitempty"`
	Enabled     bool                 `json:"enabled"`
	Attributes  map[string][]string  `json:"attributes,omitempty"`
	Credentials []keycloakCredential `json:"credentials,omitempty"`
}

type keycloakCredential struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

// RegisterStaff creates a staff account with the role the registration
// key resolved to. The role rides a user attribute so tokens carry it as
// a claim via the realm's client mappers.
func (s *Service) RegisterStaff(ctx context.Context, role string, req RegisterRequest) (*models.StaffUser, error) {
	if req.Email == "" || req.Password == "" || req.Name == "" {
		return nil, apperr.New(apperr.BadRequest, "email, password and name are required")
	}
	if role != models.RoleAdmin && role != models.RoleSecurity {
		return nil, apperr.Newf(apperr.BadRequest, "unknown staff role %q", role)
	}

	payload := keycloakUser{
		Username:  req.Email,
		Email:     req.Email,
		FirstName: req.Name,
		Enabled:   true,
		Attributes: map[string][]string{
			"role": {role},
		},
		Credentials: []keycloakCredential{
			{Type: "password", Value: req.Password, Temporary: false},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to encode user payload", err)
	}

	resp, err := s.adminRequest(ctx, http.MethodPost, s.adminURL("/users"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
	case http.StatusConflict:
		return nil, apperr.New(apperr.Conflict, "a user with this email already exists")
	default:
		raw, _ := io.ReadAll(resp.Body)
		s.Logger.Error("AUTH", fmt.Sprintf("User creation returned %s: %s", resp.Status, string(raw)))
		return nil, apperr.Newf(apperr.Internal, "identity provider rejected user creation")
	}

	created, err := s.findByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	s.Logger.LogSecurity("STAFF_REGISTERED", fmt.Sprintf("Created %s account %s (%s)", role, created.ID, req.Email))
	return created, nil
}

// ListUsers returns every staff account known to the identity provider.
func (s *Service) ListUsers(ctx context.Context) ([]models.StaffUser, error) {
	resp, err := s.adminRequest(ctx, http.MethodGet, s.adminURL("/users"), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.Logger.Error("AUTH", fmt.Sprintf("User listing returned %s", resp.Status))
		return nil, apperr.New(apperr.Internal, "failed to list users")
	}

	var raw []keycloakUser
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to parse user listing", err)
	}

	staff := make([]models.StaffUser, 0, len(raw))
	for _, u := range raw {
		staff = append(staff, toStaffUser(u))
	}
	return staff, nil
}

// DeleteUser removes a staff account.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	resp, err := s.adminRequest(ctx, http.MethodDelete, s.adminURL("/users/"+url.PathEscape(userID)), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		s.Logger.LogSecurity("STAFF_DELETED", "Deleted staff account "+userID)
		return nil
	case http.StatusNotFound:
		return apperr.Newf(apperr.NotFound, "user %s not found", userID)
	default:
		s.Logger.Error("AUTH", fmt.Sprintf("User deletion returned %s", resp.Status))
		return apperr.New(apperr.Internal, "failed to delete user")
	}
}

// UserExists reports whether a staff identity is known to the identity
// provider; the event allow-list editor uses it to reject typos.
func (s *Service) UserExists(ctx context.Context, userID string) (bool, error) {
	resp, err := s.adminRequest(ctx, http.MethodGet, s.adminURL("/users/"+url.PathEscape(userID)), nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, apperr.Newf(apperr.Internal, "user lookup returned %s", resp.Status)
	}
}

func (s *Service) findByEmail(ctx context.Context, email string) (*models.StaffUser, error) {
	lookupURL := s.adminURL("/users") + "?exact=true&email=" + url.QueryEscape(email)
	resp, err := s.adminRequest(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Newf(apperr.Internal, "user lookup returned %s", resp.Status)
	}

	var raw []keycloakUser
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to parse user lookup", err)
	}
	if len(raw) == 0 {
		return nil, apperr.Newf(apperr.NotFound, "user %s not found after creation", email)
	}

	staff := toStaffUser(raw[0])
	return &staff, nil
}

// adminRequest executes an authenticated call against the admin API.
func (s *Service) adminRequest(ctx context.Context, method, requestURL string, body io.Reader) (*http.Response, error) {
	token, err := auth.GetM2MToken(s.Config, s.Client, s.RedisClient, s.Logger)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to get service token", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to build admin request", err)
	}
	req.Header.Add("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "admin API request failed", err)
	}
	return resp, nil
}

func (s *Service) adminURL(path string) string {
	return fmt.Sprintf("%s/admin/realms/%s%s", s.Config.KeycloakURL, s.Config.KeycloakRealm, path)
}

func toStaffUser(u keycloakUser) models.StaffUser {
	role := ""
	if values, ok := u.Attributes["role"]; ok && len(values) > 0 {
		role = values[0]
	}
	return models.StaffUser{
		ID:      u.ID,
		Email:   u.Email,
		Name:    u.FirstName,
		Role:    role,
		Enabled: u.Enabled,
	}
}
