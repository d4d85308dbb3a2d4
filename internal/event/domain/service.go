package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateEventRequest struct {
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	VenueName      string       `json:"venue_name"`
	OrganizerName  string       `json:"organizer_name"`
	StartsAt       time.Time    `json:"starts_at"`
	EndsAt         time.Time    `json:"ends_at"`
	TicketTypes    []TicketType `json:"ticket_types"`
	IsTransferable bool         `json:"is_transferable"`
}

type ListEventFilter struct {
	Upcoming bool
}

type Service interface {
	Create(ctx context.Context, req CreateEventRequest) (*Event, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Event, error)
	GetBySlug(ctx context.Context, slug string) (*Event, error)
	List(ctx context.Context, filter ListEventFilter) ([]Event, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *Event) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Event, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Event, error)
	List(ctx context.Context, db *gorm.DB, filter ListEventFilter, now time.Time) ([]Event, error)
}

var (
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidOrganizer = errors.New("invalid_organizer")
	ErrInvalidSchedule  = errors.New("invalid_schedule")
	ErrInvalidID        = errors.New("invalid_id")
	ErrSlugTaken        = errors.New("slug_taken")
	ErrNotFound         = errors.New("not_found")
)

// ParseID parses a client-supplied event identifier.
func ParseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, ErrInvalidID
	}
	return id, nil
}
