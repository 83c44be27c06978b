package events

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/apperr"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

type mockEventDB struct {
	events map[int64]*models.Event
	nextID int64
}

func newMockEventDB() *mockEventDB {
	return &mockEventDB{events: make(map[int64]*models.Event)}
}

func (m *mockEventDB) CreateEvent(_ context.Context, event *models.Event) error {
	m.nextID++
	event.EventID = m.nextID
	m.events[event.EventID] = event
	return nil
}

func (m *mockEventDB) GetEventByID(_ context.Context, eventID int64) (*models.Event, error) {
	event, ok := m.events[eventID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return event, nil
}

func (m *mockEventDB) GetAllEvents(_ context.Context) ([]models.Event, error) {
	out := make([]models.Event, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, *e)
	}
	return out, nil
}

func (m *mockEventDB) GetActiveEvents(_ context.Context) ([]models.Event, error) {
	var out []models.Event
	for _, e := range m.events {
		if e.IsActive {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockEventDB) UpdateAllowedGuards(_ context.Context, eventID int64, guards []string) (*models.Event, error) {
	event, ok := m.events[eventID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	event.AllowedGuards = guards
	return event, nil
}

func (m *mockEventDB) UpdateStatus(_ context.Context, eventID int64, isActive bool) (*models.Event, error) {
	event, ok := m.events[eventID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	event.IsActive = isActive
	return event, nil
}

type mockGuardDirectory struct {
	known map[string]bool
}

func (m *mockGuardDirectory) UserExists(_ context.Context, uid string) (bool, error) {
	return m.known[uid], nil
}

func newTestEventService(db *mockEventDB) *Service {
	directory := &mockGuardDirectory{known: map[string]bool{"guard-a": true, "guard-b": true}}
	return NewService(db, directory, logger.NewTestLogger())
}

func validCreateRequest() CreateEventRequest {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	return CreateEventRequest{
		Name:        "Heritage Week",
		Location:    "Old Town Citadel",
		StartDate:   start,
		EndDate:     start.AddDate(0, 0, 7),
		MaxCapacity: 500,
		IsActive:    true,
	}
}

func TestCreateEventValidation(t *testing.T) {
	svc := newTestEventService(newMockEventDB())
	ctx := context.Background()

	req := validCreateRequest()
	req.Name = ""
	_, err := svc.CreateEvent(ctx, req)
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))

	req = validCreateRequest()
	req.EndDate = req.StartDate.AddDate(0, 0, -1)
	_, err = svc.CreateEvent(ctx, req)
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))

	req = validCreateRequest()
	req.MaxCapacity = -1
	_, err = svc.CreateEvent(ctx, req)
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))
}

func TestCreateEventDefaultsGuardList(t *testing.T) {
	svc := newTestEventService(newMockEventDB())

	event, err := svc.CreateEvent(context.Background(), validCreateRequest())
	require.NoError(t, err)
	require.NotNil(t, event.AllowedGuards)
	assert.Empty(t, event.AllowedGuards)
	assert.NotZero(t, event.EventID)
}

func TestGetEventNotFound(t *testing.T) {
	svc := newTestEventService(newMockEventDB())

	_, err := svc.GetEvent(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestListActiveEventsFiltersForSecurity(t *testing.T) {
	db := newMockEventDB()
	svc := newTestEventService(db)
	ctx := context.Background()

	open, err := svc.CreateEvent(ctx, validCreateRequest())
	require.NoError(t, err)

	restricted := validCreateRequest()
	restricted.Name = "Restricted Night"
	restricted.AllowedGuards = []string{"guard-a"}
	_, err = svc.CreateEvent(ctx, restricted)
	require.NoError(t, err)

	inactive := validCreateRequest()
	inactive.Name = "Closed Event"
	inactive.IsActive = false
	_, err = svc.CreateEvent(ctx, inactive)
	require.NoError(t, err)

	// guard-b only sees the unrestricted event.
	visible, err := svc.ListActiveEvents(ctx, models.StaffClaims{Subject: "guard-b", Role: models.RoleSecurity})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, open.EventID, visible[0].EventID)

	// guard-a sees both active events.
	visible, err = svc.ListActiveEvents(ctx, models.StaffClaims{Subject: "guard-a", Role: models.RoleSecurity})
	require.NoError(t, err)
	assert.Len(t, visible, 2)

	// Admins see every active event.
	visible, err = svc.ListActiveEvents(ctx, models.StaffClaims{Subject: "boss", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, visible, 2)
}

func TestUpdateAllowedGuardsValidatesIdentities(t *testing.T) {
	db := newMockEventDB()
	svc := newTestEventService(db)
	ctx := context.Background()

	event, err := svc.CreateEvent(ctx, validCreateRequest())
	require.NoError(t, err)

	updated, err := svc.UpdateAllowedGuards(ctx, event.EventID, []string{"guard-a", "guard-b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"guard-a", "guard-b"}, updated.AllowedGuards)

	_, err = svc.UpdateAllowedGuards(ctx, event.EventID, []string{"guard-a", "nobody"})
	require.Error(t, err)
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))
}

func TestUpdateAllowedGuardsUnknownEvent(t *testing.T) {
	svc := newTestEventService(newMockEventDB())

	_, err := svc.UpdateAllowedGuards(context.Background(), 42, []string{"guard-a"})
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestUpdateStatus(t *testing.T) {
	db := newMockEventDB()
	svc := newTestEventService(db)
	ctx := context.Background()

	event, err := svc.CreateEvent(ctx, validCreateRequest())
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, event.EventID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
}
