package main

import (
	"context"
	"database/sql"
	"log"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-checkin/internal/config"
	"ms-checkin/internal/models"
)

func main() {
	ctx := context.Background()

	_ = godotenv.Load()
	cfg := config.Load()

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqldb.Close()

	if err := sqldb.PingContext(ctx); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	db := bun.NewDB(sqldb, pgdialect.New())

	log.Println("Dropping tables...")
	dropTables(ctx, db)

	log.Println("Creating tables...")
	createTables(ctx, db)

	log.Println("Creating indexes...")
	createIndexes(ctx, db)

	log.Println("Seeding sample data...")
	seedData(ctx, db)

	log.Println("✅ Done.")
}

func dropTables(ctx context.Context, db *bun.DB) {
	tables := []interface{}{
		(*models.EntryItem)(nil),
		(*models.EntryRecord)(nil),
		(*models.TouristMeta)(nil),
		(*models.Tourist)(nil),
		(*models.Event)(nil),
	}
	for _, m := range tables {
		_, _ = db.NewDropTable().Model(m).IfExists().Cascade().Exec(ctx)
	}
}

func createTables(ctx context.Context, db *bun.DB) {
	tables := []interface{}{
		(*models.Event)(nil),
		(*models.Tourist)(nil),
		(*models.TouristMeta)(nil),
		(*models.EntryRecord)(nil),
		(*models.EntryItem)(nil),
	}
	for _, m := range tables {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			log.Fatalf("❌ Failed to create table for %T: %v", m, err)
		}
	}
}

func createIndexes(ctx context.Context, db *bun.DB) {
	// The ledger's one-record-per-day rule relies on this unique index;
	// the arrival upsert targets it with ON CONFLICT.
	_, err := db.NewCreateIndex().
		Model((*models.EntryRecord)(nil)).
		Index("idx_entry_records_user_event_date").
		Unique().
		Column("user_id", "event_id", "entry_date").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		log.Fatalf("❌ Failed to create entry_records unique index: %v", err)
	}

	_, err = db.NewCreateIndex().
		Model((*models.EntryItem)(nil)).
		Index("idx_entry_items_record_arrival").
		Column("record_id", "arrival_time").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		log.Fatalf("❌ Failed to create entry_items index: %v", err)
	}
}

func seedData(ctx context.Context, db *bun.DB) {
	now := time.Now().UTC()

	event := models.Event{
		Name:          "Heritage Week 2026",
		Description:   "Annual open week at the heritage site.",
		Location:      "Old Town Citadel",
		StartDate:     now.AddDate(0, 0, -1),
		EndDate:       now.AddDate(0, 0, 6),
		MaxCapacity:   500,
		IsActive:      true,
		AllowedGuards: []string{},
		CreatedAt:     now,
	}
	if _, err := db.NewInsert().Model(&event).Exec(ctx); err != nil {
		log.Fatalf("❌ Failed to seed event: %v", err)
	}

	tourists := []models.Tourist{
		{
			Name:              "Alice Wonderland",
			UniqueIDType:      "passport",
			UniqueID:          "P1234567",
			Email:             "alice@example.com",
			GroupCount:        1,
			RegisteredEventID: event.EventID,
			CreatedAt:         now,
		},
		{
			Name:              "Bob Builder",
			UniqueIDType:      "national_id",
			UniqueID:          "N7654321",
			Email:             "bob@example.com",
			IsGroup:           true,
			GroupCount:        4,
			RegisteredEventID: event.EventID,
			CreatedAt:         now,
		},
	}
	if _, err := db.NewInsert().Model(&tourists).Exec(ctx); err != nil {
		log.Fatalf("❌ Failed to seed tourists: %v", err)
	}

	for _, t := range tourists {
		meta := models.TouristMeta{
			UserID:    t.UserID,
			QRCode:    "TOURIST-" + strconv.FormatInt(t.UserID, 10),
			CreatedAt: now,
		}
		_, _ = db.NewInsert().Model(&meta).Exec(ctx)
	}

	record := models.EntryRecord{
		UserID:    tourists[0].UserID,
		EventID:   event.EventID,
		EntryDate: models.DateOf(now),
		CreatedAt: now,
	}
	if _, err := db.NewInsert().Model(&record).Exec(ctx); err != nil {
		log.Fatalf("❌ Failed to seed entry record: %v", err)
	}

	item := models.EntryItem{
		RecordID:    record.RecordID,
		ArrivalTime: now.Add(-30 * time.Minute),
		EntryType:   models.EntryTypeNormal,
		ApprovedBy:  "seed",
		Metadata:    map[string]interface{}{"scan_time": 1.2, "processing_time": 0.4},
		CreatedAt:   now,
	}
	_, _ = db.NewInsert().Model(&item).Exec(ctx)
}
