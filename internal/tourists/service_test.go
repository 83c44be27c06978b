package tourists

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/apperr"
	"ms-checkin/internal/config"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/tourists/card"
)

type mockTouristDB struct {
	events   map[int64]*models.Event
	tourists []*models.Tourist
	metas    []*models.TouristMeta
	records  []models.EntryRecord
	items    []models.EntryItem

	nextUserID int64
}

func newMockTouristDB() *mockTouristDB {
	return &mockTouristDB{
		events: map[int64]*models.Event{
			10: {
				EventID: 10, Name: "Heritage Week", IsActive: true,
				StartDate: time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC),
				EndDate:   time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC),
			},
		},
	}
}

func (m *mockTouristDB) CreateTourist(_ context.Context, tourist *models.Tourist) error {
	m.nextUserID++
	tourist.UserID = m.nextUserID
	m.tourists = append(m.tourists, tourist)
	return nil
}

func (m *mockTouristDB) CreateMeta(_ context.Context, meta *models.TouristMeta) error {
	m.metas = append(m.metas, meta)
	return nil
}

func (m *mockTouristDB) GetTouristByID(_ context.Context, userID int64) (*models.Tourist, error) {
	for _, t := range m.tourists {
		if t.UserID == userID {
			return t, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockTouristDB) EmailRegisteredForEvent(_ context.Context, email string, eventID int64) (bool, error) {
	for _, t := range m.tourists {
		if t.Email == email && t.RegisteredEventID == eventID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockTouristDB) GetTourists(_ context.Context, limit, offset int) ([]models.Tourist, error) {
	var out []models.Tourist
	for i := len(m.tourists) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, *m.tourists[i])
	}
	return out, nil
}

func (m *mockTouristDB) GetTouristsByEvent(_ context.Context, eventID int64, limit, offset int) ([]models.Tourist, error) {
	var matched []models.Tourist
	for i := len(m.tourists) - 1; i >= 0; i-- {
		if m.tourists[i].RegisteredEventID == eventID {
			matched = append(matched, *m.tourists[i])
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *mockTouristDB) CountTourists(_ context.Context, eventID int64) (int, error) {
	if eventID == 0 {
		return len(m.tourists), nil
	}
	count := 0
	for _, t := range m.tourists {
		if t.RegisteredEventID == eventID {
			count++
		}
	}
	return count, nil
}

func (m *mockTouristDB) GetRecordsForDate(_ context.Context, userIDs []int64, date string) ([]models.EntryRecord, error) {
	wanted := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}
	var out []models.EntryRecord
	for _, r := range m.records {
		if wanted[r.UserID] && r.EntryDate == date {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockTouristDB) GetItemsByRecords(_ context.Context, recordIDs []int64) ([]models.EntryItem, error) {
	wanted := make(map[int64]bool, len(recordIDs))
	for _, id := range recordIDs {
		wanted[id] = true
	}
	var out []models.EntryItem
	for _, item := range m.items {
		if wanted[item.RecordID] {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *mockTouristDB) GetActiveEvent(_ context.Context, eventID int64) (*models.Event, error) {
	event, ok := m.events[eventID]
	if !ok || !event.IsActive {
		return nil, sql.ErrNoRows
	}
	return event, nil
}

type mockCardMaker struct {
	calls []card.CardData
	fail  bool
}

func (m *mockCardMaker) CreateVisitorCard(data card.CardData) (string, error) {
	if m.fail {
		return "", errors.New("pdf renderer broken")
	}
	m.calls = append(m.calls, data)
	return "static/cards/visitor_card_1.pdf", nil
}

type recordedPublish struct {
	Topic string
	Key   string
}

type mockRegPublisher struct {
	published []recordedPublish
}

func (m *mockRegPublisher) PublishJSON(topic string, key string, _ interface{}) error {
	m.published = append(m.published, recordedPublish{Topic: topic, Key: key})
	return nil
}

var registerNow = time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

func newRegistryService(db *mockTouristDB, cards CardMaker) (*Service, *mockRegPublisher) {
	publisher := &mockRegPublisher{}
	svc := NewService(db, logger.NewTestLogger(), publisher, config.TopicConfig{
		TouristRegistered: "checkin.tourist.registered",
	}, cards)
	svc.now = func() time.Time { return registerNow }
	return svc, publisher
}

func validRegistration() RegisterRequest {
	return RegisterRequest{
		Name:         "Alice Wonderland",
		UniqueIDType: "passport",
		UniqueID:     "P1234567",
		Email:        "alice@example.com",
		EventID:      10,
	}
}

func TestRegisterCreatesTouristMetaAndCard(t *testing.T) {
	db := newMockTouristDB()
	cards := &mockCardMaker{}
	svc, publisher := newRegistryService(db, cards)

	result, err := svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	assert.Equal(t, "Tourist registered successfully", result.Message)
	assert.Equal(t, int64(1), result.Tourist.UserID)
	assert.Equal(t, 1, result.Tourist.GroupCount)
	assert.Equal(t, "static/cards/visitor_card_1.pdf", result.CardPath)

	require.Len(t, db.metas, 1)
	assert.Equal(t, "TOURIST-1", db.metas[0].QRCode)
	assert.Equal(t, result.CardPath, db.metas[0].CardPath)

	require.Len(t, cards.calls, 1)
	assert.Equal(t, "TOURIST-1", cards.calls[0].QRPayload)
	assert.Equal(t, "Heritage Week", cards.calls[0].EventName)

	require.Len(t, publisher.published, 1)
	assert.Equal(t, "checkin.tourist.registered", publisher.published[0].Topic)
	assert.Equal(t, "1", publisher.published[0].Key)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newRegistryService(newMockTouristDB(), &mockCardMaker{})
	ctx := context.Background()

	req := validRegistration()
	req.Name = "  "
	_, err := svc.Register(ctx, req)
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))

	req = validRegistration()
	req.UniqueID = ""
	_, err = svc.Register(ctx, req)
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))

	req = validRegistration()
	req.EventID = 0
	_, err = svc.Register(ctx, req)
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))
}

func TestRegisterGroupCountRules(t *testing.T) {
	db := newMockTouristDB()
	svc, _ := newRegistryService(db, &mockCardMaker{})
	ctx := context.Background()

	// A group of one is not a group.
	req := validRegistration()
	req.IsGroup = true
	req.GroupCount = 1
	_, err := svc.Register(ctx, req)
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))

	// Individuals are always one person, whatever the request claims.
	req = validRegistration()
	req.GroupCount = 7
	result, err := svc.Register(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Tourist.GroupCount)

	req = validRegistration()
	req.Email = "group@example.com"
	req.IsGroup = true
	req.GroupCount = 5
	result, err = svc.Register(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Tourist.GroupCount)
}

func TestRegisterInactiveEvent(t *testing.T) {
	db := newMockTouristDB()
	db.events[10].IsActive = false
	svc, _ := newRegistryService(db, &mockCardMaker{})

	_, err := svc.Register(context.Background(), validRegistration())
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestRegisterDuplicateEmailForEvent(t *testing.T) {
	db := newMockTouristDB()
	svc, _ := newRegistryService(db, &mockCardMaker{})
	ctx := context.Background()

	_, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	_, err = svc.Register(ctx, validRegistration())
	require.Error(t, err)
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))
}

func TestRegisterSurvivesCardFailure(t *testing.T) {
	db := newMockTouristDB()
	svc, publisher := newRegistryService(db, &mockCardMaker{fail: true})

	result, err := svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	assert.Empty(t, result.CardPath)
	require.Len(t, db.metas, 1)
	assert.Empty(t, db.metas[0].CardPath)
	assert.Len(t, publisher.published, 1)
}

func TestListByEventDecoratesTodayStatus(t *testing.T) {
	db := newMockTouristDB()
	svc, _ := newRegistryService(db, &mockCardMaker{})
	ctx := context.Background()

	inside, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	second := validRegistration()
	second.Name = "Bob Builder"
	second.Email = "bob@example.com"
	second.UniqueID = "P7654321"
	exited, err := svc.Register(ctx, second)
	require.NoError(t, err)

	third := validRegistration()
	third.Name = "Carol Newcomer"
	third.Email = "carol@example.com"
	third.UniqueID = "P1111111"
	_, err = svc.Register(ctx, third)
	require.NoError(t, err)

	today := models.DateOf(registerNow)
	departure := registerNow.Add(-time.Hour)
	db.records = []models.EntryRecord{
		{RecordID: 1, UserID: inside.Tourist.UserID, EventID: 10, EntryDate: today},
		{RecordID: 2, UserID: exited.Tourist.UserID, EventID: 10, EntryDate: today},
	}
	db.items = []models.EntryItem{
		{ItemID: 1, RecordID: 1, ArrivalTime: registerNow.Add(-2 * time.Hour)},
		{ItemID: 2, RecordID: 2, ArrivalTime: registerNow.Add(-3 * time.Hour), DepartureTime: &departure},
	}

	result, err := svc.ListByEvent(ctx, 10, 50, 0)
	require.NoError(t, err)
	require.Len(t, result.Tourists, 3)
	assert.Equal(t, 3, result.Total)

	byName := make(map[string]TouristWithStatus, len(result.Tourists))
	for _, entry := range result.Tourists {
		byName[entry.Name] = entry
	}

	require.NotNil(t, byName["Alice Wonderland"].TodayEntry)
	assert.Equal(t, "inside", byName["Alice Wonderland"].TodayEntry.CurrentStatus)
	assert.Equal(t, 1, byName["Alice Wonderland"].TodayEntry.TotalEntries)

	require.NotNil(t, byName["Bob Builder"].TodayEntry)
	assert.Equal(t, "exited", byName["Bob Builder"].TodayEntry.CurrentStatus)
	require.NotNil(t, byName["Bob Builder"].TodayEntry.LastDeparture)

	assert.Nil(t, byName["Carol Newcomer"].TodayEntry)
}

func TestListTouristsPagination(t *testing.T) {
	db := newMockTouristDB()
	svc, _ := newRegistryService(db, &mockCardMaker{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		req := validRegistration()
		req.Email = ""
		req.UniqueID = "P" + string(rune('0'+i))
		_, err := svc.Register(ctx, req)
		require.NoError(t, err)
	}

	result, err := svc.ListTourists(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Len(t, result.Tourists, 2)
	assert.Equal(t, 2, result.Limit)
}

func TestGetTouristNotFound(t *testing.T) {
	svc, _ := newRegistryService(newMockTouristDB(), &mockCardMaker{})

	_, err := svc.GetTourist(context.Background(), 99)
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}
