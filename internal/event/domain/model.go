package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Event struct {
	ID             snowflake.ID                            `gorm:"primaryKey" json:"id"`
	Slug           string                                  `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	Name           string                                  `gorm:"type:text;not null" json:"name"`
	Description    string                                  `gorm:"type:text" json:"description,omitempty"`
	VenueName      string                                  `gorm:"type:text" json:"venue_name,omitempty"`
	OrganizerName  string                                  `gorm:"type:text;not null" json:"organizer_name"`
	StartsAt       time.Time                               `gorm:"not null;index" json:"starts_at"`
	EndsAt         time.Time                               `gorm:"not null" json:"ends_at"`
	TicketTypes    datatypes.JSONSlice[TicketType]         `gorm:"type:jsonb;not null;default:'[]'" json:"ticket_types"`
	IsTransferable bool                                    `gorm:"not null;default:false" json:"is_transferable"`
	CreatedAt      time.Time                               `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time                               `gorm:"not null" json:"updated_at"`
}

func (Event) TableName() string { return "events" }

// TicketType is a purchasable admission class within an event.
type TicketType struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
	Quota    int    `json:"quota,omitempty"`
}

// TicketType returns the named admission class, or nil.
func (e *Event) TicketType(name string) *TicketType {
	for i := range e.TicketTypes {
		if e.TicketTypes[i].Name == name {
			return &e.TicketTypes[i]
		}
	}
	return nil
}

// Ended reports whether the event is over at the given instant. Tickets for
// ended events read as expired.
func (e *Event) Ended(now time.Time) bool {
	return !e.EndsAt.IsZero() && e.EndsAt.Before(now)
}
