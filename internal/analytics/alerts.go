package analytics

import (
	"context"
	"fmt"
	"time"

	"ms-checkin/internal/apperr"
	"ms-checkin/internal/models"
)

const (
	// More bypasses than this within the trailing hour raises an alert.
	bypassAlertThreshold = 10
	// Open entries older than this are reported as long stays.
	longStayAfter = 4 * time.Hour
	// At most this many long-stay visitors are listed per alert.
	longStayLimit = 5
)

type Alert struct {
	Type     string                 `json:"type"`
	Severity string                 `json:"severity"`
	Message  string                 `json:"message"`
	Data     map[string]interface{} `json:"data"`
}

type AlertsResult struct {
	Alerts     []Alert `json:"alerts"`
	AlertCount int     `json:"alert_count"`
	Timestamp  string  `json:"timestamp"`
}

type LongStayVisitor struct {
	Name        string    `json:"name"`
	UserID      int64     `json:"user_id"`
	ArrivalTime time.Time `json:"arrival_time"`
	HoursInside float64   `json:"hours_inside"`
}

// SecurityAlerts evaluates threshold alerts against the current ledger
// state: capacity pressure, unusual bypass volume and visitors inside for
// too long. The evaluation order is the response order.
func (s *Service) SecurityAlerts(ctx context.Context, eventID int64) (*AlertsResult, error) {
	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rows, err := s.loadDayRows(ctx, eventID, models.DateOf(now))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to load ledger data", err)
	}

	alerts := []Alert{}

	// 1. Capacity pressure, only when the event declares a capacity.
	if event.MaxCapacity > 0 {
		crowd := computeCrowdStatus(rows, event.MaxCapacity)
		data := map[string]interface{}{
			"current":    crowd.TotalPeopleInside,
			"max":        event.MaxCapacity,
			"percentage": crowd.CapacityPercentage,
		}
		if crowd.CapacityPercentage >= 90 {
			alerts = append(alerts, Alert{
				Type:     "capacity_critical",
				Severity: "critical",
				Message:  fmt.Sprintf("Capacity at %.1f%% - Critical level", crowd.CapacityPercentage),
				Data:     data,
			})
		} else if crowd.CapacityPercentage >= 75 {
			alerts = append(alerts, Alert{
				Type:     "capacity_high",
				Severity: "warning",
				Message:  fmt.Sprintf("Capacity at %.1f%% - High level", crowd.CapacityPercentage),
				Data:     data,
			})
		}
	}

	// 2. Unusual bypass volume in the trailing hour.
	bypassCount := countBypassesInWindow(rows, now.Add(-1*time.Hour), now)
	if bypassCount > bypassAlertThreshold {
		alerts = append(alerts, Alert{
			Type:     "high_bypass_activity",
			Severity: "warning",
			Message:  fmt.Sprintf("High bypass activity detected: %d bypasses in last hour", bypassCount),
			Data:     map[string]interface{}{"bypass_count": bypassCount},
		})
	}

	// 3. Visitors inside for more than four hours.
	longStays := findLongStays(rows, now)
	if len(longStays) > 0 {
		alerts = append(alerts, Alert{
			Type:     "long_stay_visitors",
			Severity: "info",
			Message:  fmt.Sprintf("%d visitor(s) inside for more than 4 hours", len(longStays)),
			Data:     map[string]interface{}{"visitors": longStays},
		})
	}

	return &AlertsResult{
		Alerts:     alerts,
		AlertCount: len(alerts),
		Timestamp:  now.Format(time.RFC3339),
	}, nil
}

func countBypassesInWindow(rows []dayRow, from, to time.Time) int {
	count := 0
	for _, row := range rows {
		for _, item := range row.Items {
			if item.EntryType != models.EntryTypeBypass {
				continue
			}
			if item.ArrivalTime.Before(from) || item.ArrivalTime.After(to) {
				continue
			}
			count++
		}
	}
	return count
}

func findLongStays(rows []dayRow, now time.Time) []LongStayVisitor {
	cutoff := now.Add(-longStayAfter)

	var visitors []LongStayVisitor
	for _, row := range rows {
		for _, item := range row.Items {
			if !item.Open() || !item.ArrivalTime.Before(cutoff) {
				continue
			}
			visitors = append(visitors, LongStayVisitor{
				Name:        row.Tourist.Name,
				UserID:      row.Tourist.UserID,
				ArrivalTime: item.ArrivalTime,
				HoursInside: round2(now.Sub(item.ArrivalTime).Hours()),
			})
			if len(visitors) >= longStayLimit {
				return visitors
			}
		}
	}
	return visitors
}
