package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-checkin/internal/apperr"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

type DBLayer interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEventByID(ctx context.Context, eventID int64) (*models.Event, error)
	GetAllEvents(ctx context.Context) ([]models.Event, error)
	GetActiveEvents(ctx context.Context) ([]models.Event, error)
	UpdateAllowedGuards(ctx context.Context, eventID int64, guards []string) (*models.Event, error)
	UpdateStatus(ctx context.Context, eventID int64, isActive bool) (*models.Event, error)
}

// GuardDirectory validates staff identities when the allow-list changes.
// Backed by the identity provider's admin API.
type GuardDirectory interface {
	UserExists(ctx context.Context, uid string) (bool, error)
}

type Service struct {
	DB     DBLayer
	Guards GuardDirectory
	Logger *logger.Logger
}

func NewService(db DBLayer, guards GuardDirectory, log *logger.Logger) *Service {
	return &Service{DB: db, Guards: guards, Logger: log}
}

type CreateEventRequest struct {
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Location      string    `json:"location"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	MaxCapacity   int       `json:"max_capacity"`
	IsActive      bool      `json:"is_active"`
	AllowedGuards []string  `json:"allowed_guards"`
}

func (s *Service) CreateEvent(ctx context.Context, req CreateEventRequest) (*models.Event, error) {
	if req.Name == "" {
		return nil, apperr.New(apperr.BadRequest, "event name is required")
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return nil, apperr.New(apperr.BadRequest, "start_date and end_date are required")
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, apperr.New(apperr.BadRequest, "end_date must not precede start_date")
	}
	if req.MaxCapacity < 0 {
		return nil, apperr.New(apperr.BadRequest, "max_capacity must not be negative")
	}

	guards := req.AllowedGuards
	if guards == nil {
		guards = []string{}
	}

	event := &models.Event{
		Name:          req.Name,
		Description:   req.Description,
		Location:      req.Location,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		MaxCapacity:   req.MaxCapacity,
		IsActive:      req.IsActive,
		AllowedGuards: guards,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.DB.CreateEvent(ctx, event); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to create event", err)
	}

	s.Logger.Info("EVENT", fmt.Sprintf("Event %d (%s) created", event.EventID, event.Name))
	return event, nil
}

func (s *Service) GetEvent(ctx context.Context, eventID int64) (*models.Event, error) {
	event, err := s.DB.GetEventByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.Newf(apperr.NotFound, "event with ID %d not found", eventID)
		}
		return nil, apperr.Wrap(apperr.Internal, "failed to load event", err)
	}
	return event, nil
}

// GetEventByID satisfies auth.EventLookup so the guard-scope middleware can
// resolve events through the same service.
func (s *Service) GetEventByID(ctx context.Context, eventID int64) (*models.Event, error) {
	return s.GetEvent(ctx, eventID)
}

func (s *Service) ListEvents(ctx context.Context) ([]models.Event, error) {
	events, err := s.DB.GetAllEvents(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to fetch events", err)
	}
	return events, nil
}

// ListActiveEvents returns active events, filtered down to what the caller
// may see: security staff only get events whose allow-list is empty or
// contains them.
func (s *Service) ListActiveEvents(ctx context.Context, caller models.StaffClaims) ([]models.Event, error) {
	events, err := s.DB.GetActiveEvents(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to fetch active events", err)
	}

	if !caller.IsSecurity() {
		return events, nil
	}

	filtered := make([]models.Event, 0, len(events))
	for _, event := range events {
		if event.GuardAllowed(caller.Subject) {
			filtered = append(filtered, event)
		}
	}
	return filtered, nil
}

// UpdateAllowedGuards replaces an event's guard allow-list after checking
// each identity against the identity provider.
func (s *Service) UpdateAllowedGuards(ctx context.Context, eventID int64, guards []string) (*models.Event, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	if s.Guards != nil {
		for _, uid := range guards {
			exists, err := s.Guards.UserExists(ctx, uid)
			if err != nil {
				return nil, apperr.Wrap(apperr.Internal, "failed to validate guard identity", err)
			}
			if !exists {
				return nil, apperr.Newf(apperr.BadRequest, "user %s does not exist in the identity provider", uid)
			}
		}
	}

	if guards == nil {
		guards = []string{}
	}

	event, err := s.DB.UpdateAllowedGuards(ctx, eventID, guards)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to update guard list", err)
	}

	s.Logger.LogSecurity("GUARD_LIST", fmt.Sprintf("Event %d allow-list updated (%d guards)", eventID, len(guards)))
	return event, nil
}

func (s *Service) UpdateStatus(ctx context.Context, eventID int64, isActive bool) (*models.Event, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	event, err := s.DB.UpdateStatus(ctx, eventID, isActive)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to update event status", err)
	}

	s.Logger.Info("EVENT", fmt.Sprintf("Event %d is_active set to %v", eventID, isActive))
	return event, nil
}
