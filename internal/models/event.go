package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	EventID     int64     `bun:"event_id,pk,autoincrement" json:"event_id"`
	Name        string    `bun:"name,notnull" json:"name"`
	Description string    `bun:"description" json:"description,omitempty"`
	Location    string    `bun:"location" json:"location"`
	StartDate   time.Time `bun:"start_date,notnull" json:"start_date"`
	EndDate     time.Time `bun:"end_date,notnull" json:"end_date"`
	MaxCapacity int       `bun:"max_capacity,nullzero" json:"max_capacity,omitempty"`
	IsActive    bool      `bun:"is_active" json:"is_active"`
	// Staff identities allowed to act on this event. Empty means every
	// security user may access it.
	AllowedGuards []string  `bun:"allowed_guards,type:jsonb" json:"allowed_guards"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

// GuardAllowed reports whether the given staff identity may access the
// event. An empty allow-list is unrestricted.
func (e *Event) GuardAllowed(uid string) bool {
	if len(e.AllowedGuards) == 0 {
		return true
	}
	for _, g := range e.AllowedGuards {
		if g == uid {
			return true
		}
	}
	return false
}
