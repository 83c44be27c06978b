package analytics

import (
	"context"
	"sort"
	"time"

	"ms-checkin/internal/apperr"
	"ms-checkin/internal/models"
)

type FeedEntry struct {
	ItemID            int64      `json:"item_id"`
	UserID            int64      `json:"user_id"`
	Name              string     `json:"name"`
	UniqueIDType      string     `json:"unique_id_type"`
	UniqueID          string     `json:"unique_id"`
	IsGroup           bool       `json:"is_group"`
	GroupCount        int        `json:"group_count"`
	ArrivalTime       time.Time  `json:"arrival_time"`
	DepartureTime     *time.Time `json:"departure_time"`
	EntryType         string     `json:"entry_type"`
	BypassReason      string     `json:"bypass_reason,omitempty"`
	CurrentStatus     string     `json:"current_status"`
	TimeInsideSeconds float64    `json:"time_inside_seconds"`
}

type LiveFeedResult struct {
	Entries   []FeedEntry `json:"entries"`
	Count     int         `json:"count"`
	Timestamp string      `json:"timestamp"`
}

// LiveFeed returns the most recent gate crossings of the day with visitor
// identity and an inside/exited status for the monitoring screen.
func (s *Service) LiveFeed(ctx context.Context, eventID int64, limit int) (*LiveFeedResult, error) {
	if limit <= 0 {
		limit = 20
	}

	if _, err := s.getEvent(ctx, eventID); err != nil {
		return nil, err
	}

	now := s.now()
	rows, err := s.loadDayRows(ctx, eventID, models.DateOf(now))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to load ledger data", err)
	}

	entries := []FeedEntry{}
	for _, row := range rows {
		for _, item := range row.Items {
			entry := FeedEntry{
				ItemID:            item.ItemID,
				UserID:            row.Tourist.UserID,
				Name:              row.Tourist.Name,
				UniqueIDType:      row.Tourist.UniqueIDType,
				UniqueID:          row.Tourist.UniqueID,
				IsGroup:           row.Tourist.IsGroup,
				GroupCount:        row.Tourist.GroupCount,
				ArrivalTime:       item.ArrivalTime,
				DepartureTime:     item.DepartureTime,
				EntryType:         item.EntryType,
				BypassReason:      item.BypassReason,
				CurrentStatus:     "inside",
				TimeInsideSeconds: round2(now.Sub(item.ArrivalTime).Seconds()),
			}
			if !item.Open() {
				entry.CurrentStatus = "exited"
				entry.TimeInsideSeconds = round2(item.DepartureTime.Sub(item.ArrivalTime).Seconds())
			}
			entries = append(entries, entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ArrivalTime.After(entries[j].ArrivalTime)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	return &LiveFeedResult{
		Entries:   entries,
		Count:     len(entries),
		Timestamp: now.Format(time.RFC3339),
	}, nil
}
