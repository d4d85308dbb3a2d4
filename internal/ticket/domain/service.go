package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	eventdomain "github.com/entrada-events/entrada/internal/event/domain"
	regdomain "github.com/entrada-events/entrada/internal/registration/domain"
)

var (
	ErrNotFound             = errors.New("ticket: ticket_not_found")
	ErrTicketAlreadyUsed    = errors.New("ticket: ticket_already_used")
	ErrTicketCancelled      = errors.New("ticket: ticket_cancelled")
	ErrTicketExpired        = errors.New("ticket: ticket_expired")
	ErrNotTransferable      = errors.New("ticket: event_not_transferable")
	ErrInvalidTransferee    = errors.New("ticket: invalid_transferee")
	ErrTransfereeHasTicket  = errors.New("ticket: transferee_already_holds_ticket")
	ErrInvalidStaff         = errors.New("ticket: invalid_staff")
	ErrNumberSpaceExhausted = errors.New("ticket: number_space_exhausted")
)

// CheckInResult reports the updated ticket. Repeat is true when the same
// staff member re-scanned a ticket they already admitted; that case is
// accepted without a second state change.
type CheckInResult struct {
	Ticket *Ticket
	Repeat bool
}

type TransferRequest struct {
	ToName  string `json:"to_name"`
	ToEmail string `json:"to_email"`
}

type Service interface {
	Issue(ctx context.Context, participant *regdomain.Participant, event *eventdomain.Event) (*Ticket, error)
	Get(ctx context.Context, ref string) (*Ticket, error)
	CheckIn(ctx context.Context, ref string, staffID, location string) (*CheckInResult, error)
	Cancel(ctx context.Context, ref string) (*Ticket, error)
	Transfer(ctx context.Context, ref string, req TransferRequest) (*Ticket, error)
	MarkExpired(ctx context.Context) (int64, error)
	IssueMissing(ctx context.Context, limit int) (int, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, t *Ticket) error
	Update(ctx context.Context, db *gorm.DB, t *Ticket) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Ticket, error)
	FindByNumber(ctx context.Context, db *gorm.DB, number string) (*Ticket, error)
	FindByParticipant(ctx context.Context, db *gorm.DB, participantID snowflake.ID) (*Ticket, error)
	MarkExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
	FindUnticketed(ctx context.Context, db *gorm.DB, limit int) ([]regdomain.Participant, error)
}
