package db

import (
	"context"

	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	_, err := d.Bun.NewInsert().Model(event).Exec(ctx)
	return err
}

func (d *DB) GetEventByID(ctx context.Context, eventID int64) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (d *DB) GetAllEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Order("event_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (d *DB) GetActiveEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Where("is_active = ?", true).
		Order("event_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (d *DB) UpdateAllowedGuards(ctx context.Context, eventID int64, guards []string) (*models.Event, error) {
	event := &models.Event{EventID: eventID, AllowedGuards: guards}
	_, err := d.Bun.NewUpdate().
		Model(event).
		Column("allowed_guards").
		Where("event_id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return d.GetEventByID(ctx, eventID)
}

func (d *DB) UpdateStatus(ctx context.Context, eventID int64, isActive bool) (*models.Event, error) {
	event := &models.Event{EventID: eventID, IsActive: isActive}
	_, err := d.Bun.NewUpdate().
		Model(event).
		Column("is_active").
		Where("event_id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return d.GetEventByID(ctx, eventID)
}
