package db

import (
	"context"

	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateTourist(ctx context.Context, tourist *models.Tourist) error {
	_, err := d.Bun.NewInsert().Model(tourist).Exec(ctx)
	return err
}

func (d *DB) CreateMeta(ctx context.Context, meta *models.TouristMeta) error {
	_, err := d.Bun.NewInsert().Model(meta).Exec(ctx)
	return err
}

func (d *DB) GetTouristByID(ctx context.Context, userID int64) (*models.Tourist, error) {
	var tourist models.Tourist
	err := d.Bun.NewSelect().
		Model(&tourist).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &tourist, nil
}

// EmailRegisteredForEvent checks the one-email-per-event rule.
func (d *DB) EmailRegisteredForEvent(ctx context.Context, email string, eventID int64) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Tourist)(nil)).
		Where("email = ?", email).
		Where("registered_event_id = ?", eventID).
		Exists(ctx)
}

// GetTourists returns a page of tourists, newest registration first.
func (d *DB) GetTourists(ctx context.Context, limit, offset int) ([]models.Tourist, error) {
	var tourists []models.Tourist
	err := d.Bun.NewSelect().
		Model(&tourists).
		Order("user_id DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tourists, nil
}

// GetTouristsByEvent returns a page of an event's tourists, newest first.
func (d *DB) GetTouristsByEvent(ctx context.Context, eventID int64, limit, offset int) ([]models.Tourist, error) {
	var tourists []models.Tourist
	err := d.Bun.NewSelect().
		Model(&tourists).
		Where("registered_event_id = ?", eventID).
		Order("user_id DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tourists, nil
}

// CountTourists returns the total tourist count, optionally scoped to one
// event (eventID 0 means all).
func (d *DB) CountTourists(ctx context.Context, eventID int64) (int, error) {
	q := d.Bun.NewSelect().Model((*models.Tourist)(nil))
	if eventID != 0 {
		q = q.Where("registered_event_id = ?", eventID)
	}
	return q.Count(ctx)
}

// GetRecordsForDate fetches the entry records of the given tourists on one
// date; used to decorate listings with today's entry status.
func (d *DB) GetRecordsForDate(ctx context.Context, userIDs []int64, date string) ([]models.EntryRecord, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var records []models.EntryRecord
	err := d.Bun.NewSelect().
		Model(&records).
		Where("user_id IN (?)", bun.In(userIDs)).
		Where("entry_date = ?", date).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetItemsByRecords fetches all items of the given records ordered by
// arrival time descending.
func (d *DB) GetItemsByRecords(ctx context.Context, recordIDs []int64) ([]models.EntryItem, error) {
	if len(recordIDs) == 0 {
		return nil, nil
	}
	var items []models.EntryItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("record_id IN (?)", bun.In(recordIDs)).
		Order("arrival_time DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// GetActiveEvent fetches an event only when it is active.
func (d *DB) GetActiveEvent(ctx context.Context, eventID int64) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("event_id = ?", eventID).
		Where("is_active = ?", true).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &event, nil
}
