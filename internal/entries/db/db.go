package db

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// TouristExists checks if a tourist with the given id is registered.
func (d *DB) TouristExists(ctx context.Context, userID int64) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Tourist)(nil)).
		Where("user_id = ?", userID).
		Exists(ctx)
}

// GetActiveEvent fetches an event only when it is active; sql.ErrNoRows
// otherwise.
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

// GetRecordForDate returns the day's attendance record for a tourist and
// event, or sql.ErrNoRows when none exists yet.
func (d *DB) GetRecordForDate(ctx context.Context, userID, eventID int64, date string) (*models.EntryRecord, error) {
	var record models.EntryRecord
	err := d.Bun.NewSelect().
		Model(&record).
		Where("user_id = ?", userID).
		Where("event_id = ?", eventID).
		Where("entry_date = ?", date).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindOrCreateRecord resolves the day's record, creating it when absent.
// The insert carries an ON CONFLICT DO NOTHING on the
// (user_id, event_id, entry_date) unique key, so two concurrent arrivals
// converge on a single record.
func (d *DB) FindOrCreateRecord(ctx context.Context, record *models.EntryRecord) (*models.EntryRecord, error) {
	existing, err := d.GetRecordForDate(ctx, record.UserID, record.EventID, record.EntryDate)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	_, err = d.Bun.NewInsert().
		Model(record).
		On("CONFLICT (user_id, event_id, entry_date) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	// Re-select to cover the lost-race case where another request inserted
	// the row between our lookup and insert.
	return d.GetRecordForDate(ctx, record.UserID, record.EventID, record.EntryDate)
}

func (d *DB) CreateItem(ctx context.Context, item *models.EntryItem) error {
	_, err := d.Bun.NewInsert().Model(item).Exec(ctx)
	return err
}

// GetItemsByRecord returns a record's items ordered by arrival time
// descending.
func (d *DB) GetItemsByRecord(ctx context.Context, recordID int64) ([]models.EntryItem, error) {
	var items []models.EntryItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("record_id = ?", recordID).
		Order("arrival_time DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// GetLatestOpenItem returns the open item with the latest arrival time for
// the record, or sql.ErrNoRows when the visitor has no open entry.
func (d *DB) GetLatestOpenItem(ctx context.Context, recordID int64) (*models.EntryItem, error) {
	var item models.EntryItem
	err := d.Bun.NewSelect().
		Model(&item).
		Where("record_id = ?", recordID).
		Where("departure_time IS NULL").
		Order("arrival_time DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CloseItem records the departure on an item. The update only matches while
// departure_time is still null, so a concurrent departure cannot close the
// same item twice; sql.ErrNoRows signals the lost race.
func (d *DB) CloseItem(ctx context.Context, item *models.EntryItem) error {
	res, err := d.Bun.NewUpdate().
		Model(item).
		Column("departure_time", "duration_seconds").
		Where("item_id = ?", item.ItemID).
		Where("departure_time IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetRecords returns up to limit most recent records for a tourist and
// event, newest date first.
func (d *DB) GetRecords(ctx context.Context, userID, eventID int64, limit int) ([]models.EntryRecord, error) {
	var records []models.EntryRecord
	err := d.Bun.NewSelect().
		Model(&records).
		Where("user_id = ?", userID).
		Where("event_id = ?", eventID).
		Order("entry_date DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}
