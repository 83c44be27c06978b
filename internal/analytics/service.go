package analytics

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/uptrace/bun"

	"ms-checkin/internal/apperr"
	"ms-checkin/internal/models"
)

// Service computes occupancy statistics for the security dashboard. All
// numbers are derived from the ledger at call time; nothing is cached, and
// empty data always yields zero values so consumers never see nulls.
type Service struct {
	db  *bun.DB
	now func() time.Time
}

func NewService(db *bun.DB) *Service {
	return &Service{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

type EventInfo struct {
	EventID     int64  `json:"event_id"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	MaxCapacity int    `json:"max_capacity,omitempty"`
	Date        string `json:"date"`
	CurrentTime string `json:"current_time"`
}

type CrowdStatus struct {
	CurrentlyInside    int     `json:"currently_inside"`
	TotalPeopleInside  int     `json:"total_people_inside"`
	GroupsInside       int     `json:"groups_inside"`
	IndividualsInside  int     `json:"individuals_inside"`
	CapacityPercentage float64 `json:"capacity_percentage"`
	CapacityStatus     string  `json:"capacity_status"`
}

type LastHourStats struct {
	Entries              int     `json:"entries"`
	UniqueVisitors       int     `json:"unique_visitors"`
	EntryRatePerMinute   float64 `json:"entry_rate_per_minute"`
	NormalEntries        int     `json:"normal_entries"`
	BypassEntries        int     `json:"bypass_entries"`
	ManualEntries        int     `json:"manual_entries"`
	AvgProcessingSeconds float64 `json:"avg_processing_time_seconds"`
}

type TodaySummary struct {
	TotalUniqueVisitors     int     `json:"total_unique_visitors"`
	TotalEntries            int     `json:"total_entries"`
	TotalPeopleCount        int     `json:"total_people_count"`
	TotalGroups             int     `json:"total_groups"`
	TotalIndividuals        int     `json:"total_individuals"`
	ExitedVisitors          int     `json:"exited_visitors"`
	AvgVisitDurationMinutes float64 `json:"avg_visit_duration_minutes"`
}

type EntryTypeBreakdown struct {
	EntryType  string  `json:"entry_type"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type HourlyBucket struct {
	Hour           int `json:"hour"`
	Entries        int `json:"entries"`
	UniqueVisitors int `json:"unique_visitors"`
}

type PeakHour struct {
	Hour           int `json:"hour"`
	Entries        int `json:"entries"`
	UniqueVisitors int `json:"unique_visitors"`
}

type ScanningPerformance struct {
	AvgScanSeconds    float64 `json:"avg_scan_time_seconds"`
	MinScanSeconds    float64 `json:"min_scan_time_seconds"`
	MaxScanSeconds    float64 `json:"max_scan_time_seconds"`
	MedianScanSeconds float64 `json:"median_scan_time_seconds"`
}

type RecentEntry struct {
	Name          string     `json:"name"`
	UniqueIDType  string     `json:"unique_id_type"`
	IsGroup       bool       `json:"is_group"`
	GroupCount    int        `json:"group_count"`
	ArrivalTime   time.Time  `json:"arrival_time"`
	EntryType     string     `json:"entry_type"`
	DepartureTime *time.Time `json:"departure_time"`
}

type SecurityAnalytics struct {
	Event               EventInfo            `json:"event"`
	CrowdStatus         CrowdStatus          `json:"crowd_status"`
	LastHour            LastHourStats        `json:"last_hour"`
	TodaySummary        TodaySummary         `json:"today_summary"`
	EntryTypes          []EntryTypeBreakdown `json:"entry_types"`
	HourlyDistribution  []HourlyBucket       `json:"hourly_distribution"`
	PeakHour            *PeakHour            `json:"peak_hour"`
	ScanningPerformance ScanningPerformance  `json:"scanning_performance"`
	RecentEntries       []RecentEntry        `json:"recent_entries"`
}

// dayRow joins one tourist's day record with its items for in-memory
// aggregation.
type dayRow struct {
	Tourist models.Tourist
	Record  models.EntryRecord
	Items   []models.EntryItem
}

// SecurityAnalytics assembles the full dashboard payload for an event as
// of now.
func (s *Service) SecurityAnalytics(ctx context.Context, eventID int64) (*SecurityAnalytics, error) {
	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	today := models.DateOf(now)

	rows, err := s.loadDayRows(ctx, eventID, today)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to load ledger data", err)
	}

	crowd := computeCrowdStatus(rows, event.MaxCapacity)
	hourly, peak := computeHourlyDistribution(rows)

	return &SecurityAnalytics{
		Event: EventInfo{
			EventID:     event.EventID,
			Name:        event.Name,
			Location:    event.Location,
			MaxCapacity: event.MaxCapacity,
			Date:        today,
			CurrentTime: now.Format(time.RFC3339),
		},
		CrowdStatus:         crowd,
		LastHour:            computeLastHour(rows, now),
		TodaySummary:        computeTodaySummary(rows),
		EntryTypes:          computeEntryTypes(rows),
		HourlyDistribution:  hourly,
		PeakHour:            peak,
		ScanningPerformance: computeScanning(rows),
		RecentEntries:       computeRecentEntries(rows, 10),
	}, nil
}

func (s *Service) getEvent(ctx context.Context, eventID int64) (*models.Event, error) {
	var event models.Event
	err := s.db.NewSelect().
		Model(&event).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.Newf(apperr.NotFound, "event with ID %d not found", eventID)
		}
		return nil, apperr.Wrap(apperr.Internal, "failed to load event", err)
	}
	return &event, nil
}

// loadDayRows fetches the event's records for the date plus their tourists
// and items. Three filter/in-set selects keep the store surface simple and
// dialect-portable; the joins happen here.
func (s *Service) loadDayRows(ctx context.Context, eventID int64, date string) ([]dayRow, error) {
	var records []models.EntryRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("event_id = ?", eventID).
		Where("entry_date = ?", date).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	userIDs := make([]int64, 0, len(records))
	recordIDs := make([]int64, 0, len(records))
	for _, r := range records {
		userIDs = append(userIDs, r.UserID)
		recordIDs = append(recordIDs, r.RecordID)
	}

	var tourists []models.Tourist
	err = s.db.NewSelect().
		Model(&tourists).
		Where("user_id IN (?)", bun.In(userIDs)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	touristByID := make(map[int64]models.Tourist, len(tourists))
	for _, t := range tourists {
		touristByID[t.UserID] = t
	}

	var items []models.EntryItem
	err = s.db.NewSelect().
		Model(&items).
		Where("record_id IN (?)", bun.In(recordIDs)).
		Order("arrival_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	itemsByRecord := make(map[int64][]models.EntryItem)
	for _, item := range items {
		itemsByRecord[item.RecordID] = append(itemsByRecord[item.RecordID], item)
	}

	rows := make([]dayRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, dayRow{
			Tourist: touristByID[r.UserID],
			Record:  r,
			Items:   itemsByRecord[r.RecordID],
		})
	}
	return rows, nil
}

func computeCrowdStatus(rows []dayRow, maxCapacity int) CrowdStatus {
	status := CrowdStatus{CapacityStatus: "unknown"}

	for _, row := range rows {
		inside := false
		for _, item := range row.Items {
			if item.Open() {
				inside = true
				break
			}
		}
		if !inside {
			continue
		}
		status.CurrentlyInside++
		status.TotalPeopleInside += peopleWeight(row.Tourist)
		if row.Tourist.IsGroup {
			status.GroupsInside++
		} else {
			status.IndividualsInside++
		}
	}

	status.CapacityPercentage, status.CapacityStatus = CapacityStatus(status.TotalPeopleInside, maxCapacity)
	return status
}

// CapacityStatus buckets group-weighted occupancy against the event
// capacity: >=90% critical, >=75% high, >=50% moderate, else low. Events
// without a capacity report "unknown" at 0%.
func CapacityStatus(peopleInside, maxCapacity int) (float64, string) {
	if maxCapacity <= 0 {
		return 0, "unknown"
	}

	percentage := round2(float64(peopleInside) / float64(maxCapacity) * 100)
	switch {
	case percentage >= 90:
		return percentage, "critical"
	case percentage >= 75:
		return percentage, "high"
	case percentage >= 50:
		return percentage, "moderate"
	default:
		return percentage, "low"
	}
}

func computeLastHour(rows []dayRow, now time.Time) LastHourStats {
	windowStart := now.Add(-1 * time.Hour)
	stats := LastHourStats{}
	visitors := make(map[int64]bool)

	var processingTotal float64
	var processingCount int

	for _, row := range rows {
		for _, item := range row.Items {
			if item.ArrivalTime.Before(windowStart) || item.ArrivalTime.After(now) {
				continue
			}
			stats.Entries++
			visitors[row.Tourist.UserID] = true
			switch item.EntryType {
			case models.EntryTypeNormal:
				stats.NormalEntries++
			case models.EntryTypeBypass:
				stats.BypassEntries++
			case models.EntryTypeManual:
				stats.ManualEntries++
			}
			if secs, ok := item.MetadataSeconds("processing_time"); ok {
				processingTotal += secs
				processingCount++
			}
		}
	}

	stats.UniqueVisitors = len(visitors)
	stats.EntryRatePerMinute = round2(float64(stats.Entries) / 60)
	if processingCount > 0 {
		stats.AvgProcessingSeconds = round2(processingTotal / float64(processingCount))
	}
	return stats
}

func computeTodaySummary(rows []dayRow) TodaySummary {
	summary := TodaySummary{}

	var durationTotal float64
	var durationCount int

	for _, row := range rows {
		summary.TotalUniqueVisitors++
		summary.TotalPeopleCount += peopleWeight(row.Tourist)
		if row.Tourist.IsGroup {
			summary.TotalGroups++
		} else {
			summary.TotalIndividuals++
		}

		exited := false
		for _, item := range row.Items {
			summary.TotalEntries++
			if !item.Open() {
				exited = true
				durationTotal += item.DurationSeconds
				durationCount++
			}
		}
		if exited {
			summary.ExitedVisitors++
		}
	}

	if durationCount > 0 {
		summary.AvgVisitDurationMinutes = round2(durationTotal / float64(durationCount) / 60)
	}
	return summary
}

func computeEntryTypes(rows []dayRow) []EntryTypeBreakdown {
	counts := make(map[string]int)
	total := 0
	for _, row := range rows {
		for _, item := range row.Items {
			counts[item.EntryType]++
			total++
		}
	}

	breakdown := make([]EntryTypeBreakdown, 0, len(counts))
	for entryType, count := range counts {
		percentage := 0.0
		if total > 0 {
			percentage = round2(float64(count) * 100 / float64(total))
		}
		breakdown = append(breakdown, EntryTypeBreakdown{
			EntryType:  entryType,
			Count:      count,
			Percentage: percentage,
		})
	}

	// Largest share first, name as tie-break for stable output.
	sort.Slice(breakdown, func(i, j int) bool {
		if breakdown[i].Count != breakdown[j].Count {
			return breakdown[i].Count > breakdown[j].Count
		}
		return breakdown[i].EntryType < breakdown[j].EntryType
	})
	return breakdown
}

func computeHourlyDistribution(rows []dayRow) ([]HourlyBucket, *PeakHour) {
	entriesByHour := make(map[int]int)
	visitorsByHour := make(map[int]map[int64]bool)

	for _, row := range rows {
		for _, item := range row.Items {
			hour := item.ArrivalTime.Hour()
			entriesByHour[hour]++
			if visitorsByHour[hour] == nil {
				visitorsByHour[hour] = make(map[int64]bool)
			}
			visitorsByHour[hour][row.Tourist.UserID] = true
		}
	}

	hours := make([]int, 0, len(entriesByHour))
	for hour := range entriesByHour {
		hours = append(hours, hour)
	}
	sort.Ints(hours)

	buckets := make([]HourlyBucket, 0, len(hours))
	var peak *PeakHour
	for _, hour := range hours {
		bucket := HourlyBucket{
			Hour:           hour,
			Entries:        entriesByHour[hour],
			UniqueVisitors: len(visitorsByHour[hour]),
		}
		buckets = append(buckets, bucket)
		// Strictly-greater keeps the earliest hour on ties.
		if peak == nil || bucket.Entries > peak.Entries {
			peak = &PeakHour{Hour: bucket.Hour, Entries: bucket.Entries, UniqueVisitors: bucket.UniqueVisitors}
		}
	}
	return buckets, peak
}

func computeScanning(rows []dayRow) ScanningPerformance {
	var samples []float64
	for _, row := range rows {
		for _, item := range row.Items {
			if secs, ok := item.MetadataSeconds("scan_time"); ok {
				samples = append(samples, secs)
			}
		}
	}
	if len(samples) == 0 {
		return ScanningPerformance{}
	}

	sort.Float64s(samples)
	total := 0.0
	for _, s := range samples {
		total += s
	}

	return ScanningPerformance{
		AvgScanSeconds:    round2(total / float64(len(samples))),
		MinScanSeconds:    round2(samples[0]),
		MaxScanSeconds:    round2(samples[len(samples)-1]),
		MedianScanSeconds: round2(median(samples)),
	}
}

func computeRecentEntries(rows []dayRow, limit int) []RecentEntry {
	type entryWithTourist struct {
		tourist models.Tourist
		item    models.EntryItem
	}

	var all []entryWithTourist
	for _, row := range rows {
		for _, item := range row.Items {
			all = append(all, entryWithTourist{tourist: row.Tourist, item: item})
		}
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].item.ArrivalTime.After(all[j].item.ArrivalTime)
	})

	if len(all) > limit {
		all = all[:limit]
	}

	recent := make([]RecentEntry, 0, len(all))
	for _, e := range all {
		recent = append(recent, RecentEntry{
			Name:          e.tourist.Name,
			UniqueIDType:  e.tourist.UniqueIDType,
			IsGroup:       e.tourist.IsGroup,
			GroupCount:    e.tourist.GroupCount,
			ArrivalTime:   e.item.ArrivalTime,
			EntryType:     e.item.EntryType,
			DepartureTime: e.item.DepartureTime,
		})
	}
	return recent
}

func peopleWeight(t models.Tourist) int {
	if t.IsGroup {
		return t.GroupCount
	}
	return 1
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
