package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Entry types recorded at the gate.
const (
	EntryTypeNormal = "normal"
	EntryTypeBypass = "bypass"
	EntryTypeManual = "manual"
)

// EntryRecord is the per-day attendance envelope: at most one row per
// (user, event, calendar date). Individual gate crossings hang off it as
// EntryItems.
type EntryRecord struct {
	bun.BaseModel `bun:"table:entry_records"`

	RecordID  int64     `bun:"record_id,pk,autoincrement" json:"record_id"`
	UserID    int64     `bun:"user_id,notnull" json:"user_id"`
	EventID   int64     `bun:"event_id,notnull" json:"event_id"`
	EntryDate string    `bun:"entry_date,notnull" json:"entry_date"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// EntryItem is a single arrival/departure pair. A null departure time
// means the visitor is still inside.
type EntryItem struct {
	bun.BaseModel `bun:"table:entry_items"`

	ItemID          int64                  `bun:"item_id,pk,autoincrement" json:"item_id"`
	RecordID        int64                  `bun:"record_id,notnull" json:"record_id"`
	ArrivalTime     time.Time              `bun:"arrival_time,notnull" json:"arrival_time"`
	DepartureTime   *time.Time             `bun:"departure_time,nullzero" json:"departure_time"`
	DurationSeconds float64                `bun:"duration_seconds,nullzero" json:"duration_seconds,omitempty"`
	EntryType       string                 `bun:"entry_type,notnull,default:'normal'" json:"entry_type"`
	BypassReason    string                 `bun:"bypass_reason,nullzero" json:"bypass_reason,omitempty"`
	ApprovedBy      string                 `bun:"approved_by,nullzero" json:"approved_by,omitempty"`
	Metadata        map[string]interface{} `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	CreatedAt       time.Time              `bun:"created_at,notnull" json:"created_at"`
}

// Open reports whether the visitor has not departed on this item yet.
func (i *EntryItem) Open() bool {
	return i.DepartureTime == nil
}

// MetadataSeconds reads a numeric seconds value from the item metadata.
// Gate devices attach timing diagnostics such as "scan_time" and
// "processing_time" as plain numbers.
func (i *EntryItem) MetadataSeconds(key string) (float64, bool) {
	if i.Metadata == nil {
		return 0, false
	}
	switch v := i.Metadata[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// DateOf formats a timestamp as the entry_date key for its calendar day.
func DateOf(t time.Time) string {
	return t.Format("2006-01-02")
}
