package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Tourist struct {
	bun.BaseModel `bun:"table:tourists"`

	UserID            int64     `bun:"user_id,pk,autoincrement" json:"user_id"`
	Name              string    `bun:"name,notnull" json:"name"`
	UniqueIDType      string    `bun:"unique_id_type,notnull" json:"unique_id_type"`
	UniqueID          string    `bun:"unique_id,notnull" json:"unique_id"`
	Email             string    `bun:"email,nullzero" json:"email,omitempty"`
	IsGroup           bool      `bun:"is_group" json:"is_group"`
	GroupCount        int       `bun:"group_count,notnull,default:1" json:"group_count"`
	RegisteredEventID int64     `bun:"registered_event_id,notnull" json:"registered_event_id"`
	CreatedAt         time.Time `bun:"created_at,notnull" json:"created_at"`
}

// TouristMeta carries the per-tourist artifacts produced at registration:
// the QR payload embedded in the visitor card and the rendered card path.
type TouristMeta struct {
	bun.BaseModel `bun:"table:tourist_meta"`

	MetaID    int64     `bun:"meta_id,pk,autoincrement" json:"meta_id"`
	UserID    int64     `bun:"user_id,notnull" json:"user_id"`
	QRCode    string    `bun:"qr_code" json:"qr_code"`
	CardPath  string    `bun:"card_path" json:"card_path,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
