package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-checkin/internal/apperr"
	"ms-checkin/internal/config"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

// DBLayer is the slice of the directory store the ledger uses.
type DBLayer interface {
	TouristExists(ctx context.Context, userID int64) (bool, error)
	GetActiveEvent(ctx context.Context, eventID int64) (*models.Event, error)
	GetRecordForDate(ctx context.Context, userID, eventID int64, date string) (*models.EntryRecord, error)
	FindOrCreateRecord(ctx context.Context, record *models.EntryRecord) (*models.EntryRecord, error)
	CreateItem(ctx context.Context, item *models.EntryItem) error
	GetItemsByRecord(ctx context.Context, recordID int64) ([]models.EntryItem, error)
	GetLatestOpenItem(ctx context.Context, recordID int64) (*models.EntryItem, error)
	CloseItem(ctx context.Context, item *models.EntryItem) error
	GetRecords(ctx context.Context, userID, eventID int64, limit int) ([]models.EntryRecord, error)
}

// EventPublisher streams gate events to interested consumers.
type EventPublisher interface {
	PublishJSON(topic string, key string, payload interface{}) error
}

// Service is the entry ledger: it records arrivals and departures per
// tourist per calendar day and keeps the one-open-entry invariant by always
// targeting the latest open item on departure.
type Service struct {
	DB       DBLayer
	Logger   *logger.Logger
	Producer EventPublisher
	Topics   config.TopicConfig

	now func() time.Time
}

func NewService(db DBLayer, log *logger.Logger, producer EventPublisher, topics config.TopicConfig) *Service {
	return &Service{
		DB:       db,
		Logger:   log,
		Producer: producer,
		Topics:   topics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type ArrivalRequest struct {
	UserID       int64                  `json:"user_id"`
	EventID      int64                  `json:"event_id"`
	EntryType    string                 `json:"entry_type"`
	BypassReason string                 `json:"bypass_reason,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

type ArrivalResult struct {
	RecordID int64             `json:"record_id"`
	Item     *models.EntryItem `json:"entry_item"`
}

type DepartureRequest struct {
	UserID  int64 `json:"user_id"`
	EventID int64 `json:"event_id"`
}

type DepartureResult struct {
	Item            *models.EntryItem `json:"entry_item"`
	DurationSeconds float64           `json:"duration_seconds"`
}

type TodayEntries struct {
	Record       *models.EntryRecord `json:"entry_record"`
	Items        []models.EntryItem  `json:"entry_items"`
	OpenEntries  int                 `json:"open_entries"`
	TotalEntries int                 `json:"total_entries"`
}

type HistoryDay struct {
	Date         string             `json:"date"`
	RecordID     int64              `json:"record_id"`
	Items        []models.EntryItem `json:"entry_items"`
	TotalEntries int                `json:"total_entries"`
}

type History struct {
	UserID  int64        `json:"user_id"`
	EventID int64        `json:"event_id"`
	Days    []HistoryDay `json:"history"`
}

// RecordArrival registers a gate arrival. The day's record is resolved
// lazily (created on the first arrival of the day) and every arrival adds a
// fresh open item under it, so re-entry is always allowed.
func (s *Service) RecordArrival(ctx context.Context, actor models.StaffClaims, req ArrivalRequest) (*ArrivalResult, error) {
	entryType := req.EntryType
	if entryType == "" {
		entryType = models.EntryTypeNormal
	}
	switch entryType {
	case models.EntryTypeNormal, models.EntryTypeBypass, models.EntryTypeManual:
	default:
		return nil, apperr.Newf(apperr.BadRequest, "unknown entry_type %q", req.EntryType)
	}
	if entryType == models.EntryTypeBypass && req.BypassReason == "" {
		return nil, apperr.New(apperr.BadRequest, "bypass entries require a bypass_reason")
	}

	exists, err := s.DB.TouristExists(ctx, req.UserID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to validate tourist", err)
	}
	if !exists {
		return nil, apperr.Newf(apperr.NotFound, "tourist with user_id %d not found", req.UserID)
	}

	if _, err := s.DB.GetActiveEvent(ctx, req.EventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.Newf(apperr.NotFound, "event %d not found or not active", req.EventID)
		}
		return nil, apperr.Wrap(apperr.Internal, "failed to validate event", err)
	}

	now := s.now()
	record, err := s.DB.FindOrCreateRecord(ctx, &models.EntryRecord{
		UserID:    req.UserID,
		EventID:   req.EventID,
		EntryDate: models.DateOf(now),
		CreatedAt: now,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to resolve entry record", err)
	}

	item := &models.EntryItem{
		RecordID:     record.RecordID,
		ArrivalTime:  now,
		EntryType:    entryType,
		BypassReason: req.BypassReason,
		ApprovedBy:   actor.Subject,
		Metadata:     req.Metadata,
		CreatedAt:    now,
	}
	if err := s.DB.CreateItem(ctx, item); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to create entry item", err)
	}

	s.Logger.LogGate("ARRIVAL", req.UserID, fmt.Sprintf("event=%d record=%d type=%s", req.EventID, record.RecordID, entryType))
	s.publish(s.Topics.EntryRecorded, req.UserID, item)

	return &ArrivalResult{RecordID: record.RecordID, Item: item}, nil
}

// RecordDeparture closes the latest open item of today's record. The
// caller never names the item; the ledger picks the open item with the
// latest arrival time, which is the deterministic choice even if a race
// ever left more than one open.
func (s *Service) RecordDeparture(ctx context.Context, req DepartureRequest) (*DepartureResult, error) {
	now := s.now()
	today := models.DateOf(now)

	record, err := s.DB.GetRecordForDate(ctx, req.UserID, req.EventID, today)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.Newf(apperr.NotFound, "no entry record found for user %d on %s", req.UserID, today)
		}
		return nil, apperr.Wrap(apperr.Internal, "failed to look up entry record", err)
	}

	item, err := s.DB.GetLatestOpenItem(ctx, record.RecordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.Newf(apperr.NotFound, "no open entry found for user %d", req.UserID)
		}
		return nil, apperr.Wrap(apperr.Internal, "failed to look up open entry", err)
	}

	departure := now
	item.DepartureTime = &departure
	item.DurationSeconds = departure.Sub(item.ArrivalTime).Seconds()

	if err := s.DB.CloseItem(ctx, item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.Conflict, "entry was already closed by a concurrent departure")
		}
		return nil, apperr.Wrap(apperr.Internal, "failed to update departure time", err)
	}

	s.Logger.LogGate("DEPARTURE", req.UserID, fmt.Sprintf("event=%d item=%d duration=%.0fs", req.EventID, item.ItemID, item.DurationSeconds))
	s.publish(s.Topics.EntryDeparted, req.UserID, item)

	return &DepartureResult{Item: item, DurationSeconds: item.DurationSeconds}, nil
}

// GetTodayEntries returns today's record and items for a tourist, newest
// arrival first. A missing record is not an error: the tourist simply has
// not arrived today.
func (s *Service) GetTodayEntries(ctx context.Context, userID, eventID int64) (*TodayEntries, error) {
	today := models.DateOf(s.now())

	record, err := s.DB.GetRecordForDate(ctx, userID, eventID, today)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &TodayEntries{Items: []models.EntryItem{}}, nil
		}
		return nil, apperr.Wrap(apperr.Internal, "failed to look up entry record", err)
	}

	items, err := s.DB.GetItemsByRecord(ctx, record.RecordID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to load entry items", err)
	}

	open := 0
	for _, item := range items {
		if item.Open() {
			open++
		}
	}

	return &TodayEntries{
		Record:       record,
		Items:        items,
		OpenEntries:  open,
		TotalEntries: len(items),
	}, nil
}

// GetHistory returns up to limit most recent attendance days for a tourist
// and event, each with its full item list.
func (s *Service) GetHistory(ctx context.Context, userID, eventID int64, limit int) (*History, error) {
	if limit <= 0 {
		limit = 10
	}

	records, err := s.DB.GetRecords(ctx, userID, eventID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to load entry history", err)
	}

	days := make([]HistoryDay, 0, len(records))
	for _, record := range records {
		items, err := s.DB.GetItemsByRecord(ctx, record.RecordID)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "failed to load entry items", err)
		}
		days = append(days, HistoryDay{
			Date:         record.EntryDate,
			RecordID:     record.RecordID,
			Items:        items,
			TotalEntries: len(items),
		})
	}

	return &History{UserID: userID, EventID: eventID, Days: days}, nil
}

func (s *Service) publish(topic string, userID int64, payload interface{}) {
	if s.Producer == nil {
		return
	}
	if err := s.Producer.PublishJSON(topic, fmt.Sprintf("%d", userID), payload); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("Failed to publish to %s: %v", topic, err))
	}
}
