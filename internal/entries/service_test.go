package entries

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/apperr"
	"ms-checkin/internal/config"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

// mockDB is an in-memory DBLayer for exercising the ledger rules without
// a real database.
type mockDB struct {
	tourists map[int64]bool
	events   map[int64]*models.Event
	records  []*models.EntryRecord
	items    []*models.EntryItem

	nextRecordID int64
	nextItemID   int64

	failOn string
	err    error
}

func newMockDB() *mockDB {
	return &mockDB{
		tourists: map[int64]bool{1: true},
		events: map[int64]*models.Event{
			10: {EventID: 10, Name: "Heritage Week", IsActive: true, MaxCapacity: 100},
		},
	}
}

func (m *mockDB) TouristExists(_ context.Context, userID int64) (bool, error) {
	if m.failOn == "TouristExists" {
		return false, m.err
	}
	return m.tourists[userID], nil
}

func (m *mockDB) GetActiveEvent(_ context.Context, eventID int64) (*models.Event, error) {
	event, ok := m.events[eventID]
	if !ok || !event.IsActive {
		return nil, sql.ErrNoRows
	}
	return event, nil
}

func (m *mockDB) GetRecordForDate(_ context.Context, userID, eventID int64, date string) (*models.EntryRecord, error) {
	for _, r := range m.records {
		if r.UserID == userID && r.EventID == eventID && r.EntryDate == date {
			return r, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockDB) FindOrCreateRecord(ctx context.Context, record *models.EntryRecord) (*models.EntryRecord, error) {
	if existing, err := m.GetRecordForDate(ctx, record.UserID, record.EventID, record.EntryDate); err == nil {
		return existing, nil
	}
	m.nextRecordID++
	record.RecordID = m.nextRecordID
	m.records = append(m.records, record)
	return record, nil
}

func (m *mockDB) CreateItem(_ context.Context, item *models.EntryItem) error {
	if m.failOn == "CreateItem" {
		return m.err
	}
	m.nextItemID++
	item.ItemID = m.nextItemID
	m.items = append(m.items, item)
	return nil
}

func (m *mockDB) GetItemsByRecord(_ context.Context, recordID int64) ([]models.EntryItem, error) {
	var out []models.EntryItem
	for i := len(m.items) - 1; i >= 0; i-- {
		if m.items[i].RecordID == recordID {
			out = append(out, *m.items[i])
		}
	}
	return out, nil
}

func (m *mockDB) GetLatestOpenItem(_ context.Context, recordID int64) (*models.EntryItem, error) {
	var latest *models.EntryItem
	for _, item := range m.items {
		if item.RecordID != recordID || !item.Open() {
			continue
		}
		if latest == nil || item.ArrivalTime.After(latest.ArrivalTime) {
			latest = item
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	return latest, nil
}

func (m *mockDB) CloseItem(_ context.Context, item *models.EntryItem) error {
	if m.failOn == "CloseItem" {
		return m.err
	}
	for _, stored := range m.items {
		if stored.ItemID == item.ItemID {
			if stored != item && !stored.Open() {
				return sql.ErrNoRows
			}
			stored.DepartureTime = item.DepartureTime
			stored.DurationSeconds = item.DurationSeconds
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockDB) GetRecords(_ context.Context, userID, eventID int64, limit int) ([]models.EntryRecord, error) {
	var out []models.EntryRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if m.records[i].UserID == userID && m.records[i].EventID == eventID {
			out = append(out, *m.records[i])
		}
	}
	return out, nil
}

type publishedEvent struct {
	Topic string
	Key   string
}

type mockPublisher struct {
	published []publishedEvent
}

func (m *mockPublisher) PublishJSON(topic string, key string, _ interface{}) error {
	m.published = append(m.published, publishedEvent{Topic: topic, Key: key})
	return nil
}

func newTestService(db *mockDB) (*Service, *mockPublisher) {
	publisher := &mockPublisher{}
	svc := NewService(db, logger.NewTestLogger(), publisher, config.TopicConfig{
		EntryRecorded: "checkin.entry.recorded",
		EntryDeparted: "checkin.entry.departed",
	})
	svc.now = func() time.Time {
		return time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	}
	return svc, publisher
}

var guard = models.StaffClaims{Subject: "guard-1", Role: models.RoleSecurity}

func TestRecordArrivalCreatesRecordAndItem(t *testing.T) {
	db := newMockDB()
	svc, publisher := newTestService(db)

	result, err := svc.RecordArrival(context.Background(), guard, ArrivalRequest{
		UserID: 1, EventID: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.RecordID)
	assert.Equal(t, models.EntryTypeNormal, result.Item.EntryType)
	assert.Equal(t, "guard-1", result.Item.ApprovedBy)
	assert.True(t, result.Item.Open())

	require.Len(t, publisher.published, 1)
	assert.Equal(t, "checkin.entry.recorded", publisher.published[0].Topic)
}

func TestRecordArrivalTwiceSharesRecord(t *testing.T) {
	db := newMockDB()
	svc, _ := newTestService(db)

	first, err := svc.RecordArrival(context.Background(), guard, ArrivalRequest{UserID: 1, EventID: 10})
	require.NoError(t, err)
	second, err := svc.RecordArrival(context.Background(), guard, ArrivalRequest{UserID: 1, EventID: 10})
	require.NoError(t, err)

	assert.Equal(t, first.RecordID, second.RecordID)
	assert.Len(t, db.records, 1)
	assert.Len(t, db.items, 2)
}

func TestRecordArrivalBypassNeedsReason(t *testing.T) {
	svc, _ := newTestService(newMockDB())

	_, err := svc.RecordArrival(context.Background(), guard, ArrivalRequest{
		UserID: 1, EventID: 10, EntryType: models.EntryTypeBypass,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))

	result, err := svc.RecordArrival(context.Background(), guard, ArrivalRequest{
		UserID: 1, EventID: 10, EntryType: models.EntryTypeBypass, BypassReason: "scanner offline",
	})
	require.NoError(t, err)
	assert.Equal(t, "scanner offline", result.Item.BypassReason)
}

func TestRecordArrivalRejectsUnknownEntryType(t *testing.T) {
	svc, _ := newTestService(newMockDB())

	_, err := svc.RecordArrival(context.Background(), guard, ArrivalRequest{
		UserID: 1, EventID: 10, EntryType: "vip",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))
}

func TestRecordArrivalUnknownTourist(t *testing.T) {
	svc, _ := newTestService(newMockDB())

	_, err := svc.RecordArrival(context.Background(), guard, ArrivalRequest{UserID: 99, EventID: 10})
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestRecordArrivalInactiveEvent(t *testing.T) {
	db := newMockDB()
	db.events[10].IsActive = false
	svc, _ := newTestService(db)

	_, err := svc.RecordArrival(context.Background(), guard, ArrivalRequest{UserID: 1, EventID: 10})
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestRecordDepartureClosesLatestOpenItem(t *testing.T) {
	db := newMockDB()
	svc, publisher := newTestService(db)
	ctx := context.Background()

	_, err := svc.RecordArrival(ctx, guard, ArrivalRequest{UserID: 1, EventID: 10})
	require.NoError(t, err)

	// Second arrival an hour later becomes the latest open item.
	svc.now = func() time.Time { return time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC) }
	second, err := svc.RecordArrival(ctx, guard, ArrivalRequest{UserID: 1, EventID: 10})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Date(2026, 8, 30, 11, 30, 0, 0, time.UTC) }
	result, err := svc.RecordDeparture(ctx, DepartureRequest{UserID: 1, EventID: 10})
	require.NoError(t, err)

	assert.Equal(t, second.Item.ItemID, result.Item.ItemID)
	assert.InDelta(t, 1800, result.DurationSeconds, 0.01)

	require.Len(t, publisher.published, 3)
	assert.Equal(t, "checkin.entry.departed", publisher.published[2].Topic)
}

func TestRecordDepartureWithoutRecord(t *testing.T) {
	svc, _ := newTestService(newMockDB())

	_, err := svc.RecordDeparture(context.Background(), DepartureRequest{UserID: 1, EventID: 10})
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestRecordDepartureWithoutOpenItem(t *testing.T) {
	db := newMockDB()
	svc, _ := newTestService(db)
	ctx := context.Background()

	_, err := svc.RecordArrival(ctx, guard, ArrivalRequest{UserID: 1, EventID: 10})
	require.NoError(t, err)
	_, err = svc.RecordDeparture(ctx, DepartureRequest{UserID: 1, EventID: 10})
	require.NoError(t, err)

	_, err = svc.RecordDeparture(ctx, DepartureRequest{UserID: 1, EventID: 10})
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestRecordDepartureLostRaceIsConflict(t *testing.T) {
	db := newMockDB()
	svc, _ := newTestService(db)
	ctx := context.Background()

	_, err := svc.RecordArrival(ctx, guard, ArrivalRequest{UserID: 1, EventID: 10})
	require.NoError(t, err)

	db.failOn = "CloseItem"
	db.err = sql.ErrNoRows

	_, err = svc.RecordDeparture(ctx, DepartureRequest{UserID: 1, EventID: 10})
	require.Error(t, err)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
}

func TestGetTodayEntriesWithoutRecord(t *testing.T) {
	svc, _ := newTestService(newMockDB())

	result, err := svc.GetTodayEntries(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Nil(t, result.Record)
	assert.Empty(t, result.Items)
	assert.Zero(t, result.TotalEntries)
}

func TestGetTodayEntriesCountsOpenItems(t *testing.T) {
	db := newMockDB()
	svc, _ := newTestService(db)
	ctx := context.Background()

	_, err := svc.RecordArrival(ctx, guard, ArrivalRequest{UserID: 1, EventID: 10})
	require.NoError(t, err)
	_, err = svc.RecordDeparture(ctx, DepartureRequest{UserID: 1, EventID: 10})
	require.NoError(t, err)
	_, err = svc.RecordArrival(ctx, guard, ArrivalRequest{UserID: 1, EventID: 10})
	require.NoError(t, err)

	result, err := svc.GetTodayEntries(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalEntries)
	assert.Equal(t, 1, result.OpenEntries)
}

func TestGetHistoryDefaultsLimit(t *testing.T) {
	db := newMockDB()
	svc, _ := newTestService(db)
	ctx := context.Background()

	for day := 1; day <= 12; day++ {
		svc.now = func() time.Time {
			return time.Date(2026, 8, day, 10, 0, 0, 0, time.UTC)
		}
		_, err := svc.RecordArrival(ctx, guard, ArrivalRequest{UserID: 1, EventID: 10})
		require.NoError(t, err)
	}

	history, err := svc.GetHistory(ctx, 1, 10, 0)
	require.NoError(t, err)
	assert.Len(t, history.Days, 10)
	assert.Equal(t, "2026-08-12", history.Days[0].Date)
}
