package tourists

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ms-checkin/internal/apperr"
	"ms-checkin/internal/config"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/tourists/card"
)

// DBLayer is the slice of the directory store the tourist registry uses.
type DBLayer interface {
	CreateTourist(ctx context.Context, tourist *models.Tourist) error
	CreateMeta(ctx context.Context, meta *models.TouristMeta) error
	GetTouristByID(ctx context.Context, userID int64) (*models.Tourist, error)
	EmailRegisteredForEvent(ctx context.Context, email string, eventID int64) (bool, error)
	GetTourists(ctx context.Context, limit, offset int) ([]models.Tourist, error)
	GetTouristsByEvent(ctx context.Context, eventID int64, limit, offset int) ([]models.Tourist, error)
	CountTourists(ctx context.Context, eventID int64) (int, error)
	GetRecordsForDate(ctx context.Context, userIDs []int64, date string) ([]models.EntryRecord, error)
	GetItemsByRecords(ctx context.Context, recordIDs []int64) ([]models.EntryItem, error)
	GetActiveEvent(ctx context.Context, eventID int64) (*models.Event, error)
}

// EventPublisher streams registration events to interested consumers.
type EventPublisher interface {
	PublishJSON(topic string, key string, payload interface{}) error
}

// CardMaker renders the visitor card artifacts for a new registration.
type CardMaker interface {
	CreateVisitorCard(data card.CardData) (string, error)
}

type Service struct {
	DB       DBLayer
	Logger   *logger.Logger
	Producer EventPublisher
	Topics   config.TopicConfig
	Cards    CardMaker

	now func() time.Time
}

func NewService(db DBLayer, log *logger.Logger, producer EventPublisher, topics config.TopicConfig, cards CardMaker) *Service {
	return &Service{
		DB:       db,
		Logger:   log,
		Producer: producer,
		Topics:   topics,
		Cards:    cards,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type RegisterRequest struct {
	Name         string `json:"name"`
	UniqueIDType string `json:"unique_id_type"`
	UniqueID     string `json:"unique_id"`
	Email        string `json:"email,omitempty"`
	IsGroup      bool   `json:"is_group"`
	GroupCount   int    `json:"group_count"`
	EventID      int64  `json:"event_id"`
}

type RegisterResult struct {
	Message  string          `json:"message"`
	Tourist  *models.Tourist `json:"tourist"`
	CardPath string          `json:"card_path,omitempty"`
}

// TouristWithStatus decorates a tourist with today's entry status for
// gate-side listings.
type TouristWithStatus struct {
	models.Tourist
	TodayEntry *TodayEntryStatus `json:"today_entry,omitempty"`
}

type TodayEntryStatus struct {
	CurrentStatus string     `json:"current_status"`
	TotalEntries  int        `json:"total_entries"`
	LastArrival   *time.Time `json:"last_arrival,omitempty"`
	LastDeparture *time.Time `json:"last_departure,omitempty"`
}

type ListResult struct {
	Tourists []models.Tourist `json:"tourists"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

type EventListResult struct {
	EventID  int64               `json:"event_id"`
	Tourists []TouristWithStatus `json:"tourists"`
	Total    int                 `json:"total"`
	Limit    int                 `json:"limit"`
	Offset   int                 `json:"offset"`
}

// Register creates a new tourist, mints their QR payload and visitor card,
// and announces the registration on the bus. Group bookings carry a head
// count; individual bookings are always counted as one person.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.UniqueID = strings.TrimSpace(req.UniqueID)
	req.Email = strings.TrimSpace(req.Email)

	if req.Name == "" {
		return nil, apperr.New(apperr.BadRequest, "name is required")
	}
	if req.UniqueIDType == "" || req.UniqueID == "" {
		return nil, apperr.New(apperr.BadRequest, "unique_id_type and unique_id are required")
	}
	if req.EventID == 0 {
		return nil, apperr.New(apperr.BadRequest, "event_id is required")
	}
	if req.IsGroup {
		if req.GroupCount < 2 {
			return nil, apperr.New(apperr.BadRequest, "group registrations need a group_count of at least 2")
		}
	} else {
		req.GroupCount = 1
	}

	event, err := s.DB.GetActiveEvent(ctx, req.EventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.Newf(apperr.NotFound, "event %d not found or not active", req.EventID)
		}
		return nil, apperr.Wrap(apperr.Internal, "failed to load event", err)
	}

	if req.Email != "" {
		taken, err := s.DB.EmailRegisteredForEvent(ctx, req.Email, req.EventID)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "failed to check email registration", err)
		}
		if taken {
			return nil, apperr.New(apperr.BadRequest, "this email is already registered for the event")
		}
	}

	tourist := &models.Tourist{
		Name:              req.Name,
		UniqueIDType:      req.UniqueIDType,
		UniqueID:          req.UniqueID,
		Email:             req.Email,
		IsGroup:           req.IsGroup,
		GroupCount:        req.GroupCount,
		RegisteredEventID: req.EventID,
		CreatedAt:         s.now(),
	}
	if err := s.DB.CreateTourist(ctx, tourist); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to register tourist", err)
	}

	qrPayload := fmt.Sprintf("TOURIST-%d", tourist.UserID)
	meta := &models.TouristMeta{
		UserID:    tourist.UserID,
		QRCode:    qrPayload,
		CreatedAt: s.now(),
	}

	// Card rendering is best-effort: a failed PDF must not lose the
	// registration itself.
	var cardPath string
	if s.Cards != nil {
		cardPath, err = s.Cards.CreateVisitorCard(card.CardData{
			UserID:     tourist.UserID,
			Name:       tourist.Name,
			Email:      tourist.Email,
			QRPayload:  qrPayload,
			EventName:  event.Name,
			ValidDates: fmt.Sprintf("%s to %s", event.StartDate.Format("2006-01-02"), event.EndDate.Format("2006-01-02")),
		})
		if err != nil {
			s.Logger.Error("TOURIST", fmt.Sprintf("Visitor card generation failed for user %d: %v", tourist.UserID, err))
			cardPath = ""
		}
		meta.CardPath = cardPath
	}

	if err := s.DB.CreateMeta(ctx, meta); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to store tourist metadata", err)
	}

	s.Logger.Info("TOURIST", fmt.Sprintf("Registered tourist %d (%s) for event %d", tourist.UserID, tourist.Name, req.EventID))
	s.publish(s.Topics.TouristRegistered, tourist.UserID, map[string]interface{}{
		"user_id":     tourist.UserID,
		"name":        tourist.Name,
		"email":       tourist.Email,
		"event_id":    req.EventID,
		"event_name":  event.Name,
		"is_group":    tourist.IsGroup,
		"group_count": tourist.GroupCount,
		"card_path":   cardPath,
		"timestamp":   s.now().Format(time.RFC3339),
	})

	return &RegisterResult{
		Message:  "Tourist registered successfully",
		Tourist:  tourist,
		CardPath: cardPath,
	}, nil
}

func (s *Service) GetTourist(ctx context.Context, userID int64) (*models.Tourist, error) {
	tourist, err := s.DB.GetTouristByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.Newf(apperr.NotFound, "tourist %d not found", userID)
		}
		return nil, apperr.Wrap(apperr.Internal, "failed to load tourist", err)
	}
	return tourist, nil
}

// ListTourists returns a page over all registrations.
func (s *Service) ListTourists(ctx context.Context, limit, offset int) (*ListResult, error) {
	limit, offset = normalizePage(limit, offset)

	total, err := s.DB.CountTourists(ctx, 0)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to count tourists", err)
	}
	tourists, err := s.DB.GetTourists(ctx, limit, offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to list tourists", err)
	}
	if tourists == nil {
		tourists = []models.Tourist{}
	}
	return &ListResult{Tourists: tourists, Total: total, Limit: limit, Offset: offset}, nil
}

// ListByEvent returns an event's registrations decorated with today's
// entry status, so gate staff can see who is currently inside.
func (s *Service) ListByEvent(ctx context.Context, eventID int64, limit, offset int) (*EventListResult, error) {
	limit, offset = normalizePage(limit, offset)

	total, err := s.DB.CountTourists(ctx, eventID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to count tourists", err)
	}
	tourists, err := s.DB.GetTouristsByEvent(ctx, eventID, limit, offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to list tourists", err)
	}

	decorated := make([]TouristWithStatus, 0, len(tourists))
	statuses, err := s.todayStatuses(ctx, tourists, eventID)
	if err != nil {
		return nil, err
	}
	for _, t := range tourists {
		decorated = append(decorated, TouristWithStatus{Tourist: t, TodayEntry: statuses[t.UserID]})
	}

	return &EventListResult{
		EventID:  eventID,
		Tourists: decorated,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

// todayStatuses resolves today's entry status per tourist from their
// records and items. Tourists with no record today get no status.
func (s *Service) todayStatuses(ctx context.Context, tourists []models.Tourist, eventID int64) (map[int64]*TodayEntryStatus, error) {
	if len(tourists) == 0 {
		return nil, nil
	}

	userIDs := make([]int64, 0, len(tourists))
	for _, t := range tourists {
		userIDs = append(userIDs, t.UserID)
	}

	today := models.DateOf(s.now())
	records, err := s.DB.GetRecordsForDate(ctx, userIDs, today)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to load today's entry records", err)
	}

	recordOwner := make(map[int64]int64, len(records))
	recordIDs := make([]int64, 0, len(records))
	for _, r := range records {
		if r.EventID != eventID {
			continue
		}
		recordOwner[r.RecordID] = r.UserID
		recordIDs = append(recordIDs, r.RecordID)
	}

	items, err := s.DB.GetItemsByRecords(ctx, recordIDs)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to load today's entry items", err)
	}

	statuses := make(map[int64]*TodayEntryStatus, len(recordIDs))
	for _, item := range items {
		userID, ok := recordOwner[item.RecordID]
		if !ok {
			continue
		}
		st := statuses[userID]
		if st == nil {
			st = &TodayEntryStatus{CurrentStatus: "exited"}
			statuses[userID] = st
		}
		st.TotalEntries++
		if item.Open() {
			st.CurrentStatus = "inside"
		}
		arrival := item.ArrivalTime
		if st.LastArrival == nil || arrival.After(*st.LastArrival) {
			st.LastArrival = &arrival
		}
		if item.DepartureTime != nil {
			if st.LastDeparture == nil || item.DepartureTime.After(*st.LastDeparture) {
				st.LastDeparture = item.DepartureTime
			}
		}
	}
	return statuses, nil
}

func (s *Service) publish(topic string, userID int64, payload interface{}) {
	if s.Producer == nil {
		return
	}
	if err := s.Producer.PublishJSON(topic, strconv.FormatInt(userID, 10), payload); err != nil {
		s.Logger.LogKafka("PUBLISH_FAILED", topic, err.Error())
	}
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
