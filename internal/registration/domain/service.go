package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidName           = errors.New("registration: invalid_name")
	ErrInvalidEmail          = errors.New("registration: invalid_email")
	ErrInvalidTicketName     = errors.New("registration: invalid_ticket_name")
	ErrInvalidQuantity       = errors.New("registration: invalid_quantity")
	ErrInvalidAmount         = errors.New("registration: invalid_amount")
	ErrEventNotFound         = errors.New("registration: event_not_found")
	ErrNotFound              = errors.New("registration: participant_not_found")
	ErrDuplicateRegistration = errors.New("registration: duplicate_registration")
)

// DuplicateError carries the payment reference of the rejected attempt so
// callers can surface it to support staff. It matches
// ErrDuplicateRegistration under errors.Is.
type DuplicateError struct {
	Email     string
	EventID   snowflake.ID
	OrderID   string
	PaymentID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("registration: duplicate_registration email=%s event=%s order=%s payment=%s",
		e.Email, e.EventID, e.OrderID, e.PaymentID)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicateRegistration }

type ParticipantData struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	TicketName  string `json:"ticket_name"`
	Quantity    int    `json:"quantity"`
	IsVolunteer bool   `json:"is_volunteer"`
	TshirtSize  string `json:"tshirt_size"`
}

type PaymentDetails struct {
	OrderID   string
	PaymentID string
	Signature string
	Amount    int64
	Currency  string
	PaidAt    time.Time
}

type RegisterRequest struct {
	EventID     snowflake.ID
	Participant ParticipantData
	Payment     PaymentDetails
}

// RegisterResult reports the committed participant and, when synchronous
// issuance succeeded, the ticket number assigned to it. TicketNumber is
// empty if issuance was deferred to the background sweep.
type RegisterResult struct {
	Participant  *Participant
	TicketNumber string
}

type Service interface {
	Exists(ctx context.Context, eventID snowflake.ID, email string) (bool, error)
	Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Participant, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, p *Participant) error
	Update(ctx context.Context, db *gorm.DB, p *Participant) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Participant, error)
	FindByEventEmail(ctx context.Context, db *gorm.DB, eventID snowflake.ID, email string) (*Participant, error)
}

func ParseID(s string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(s)
	if err != nil {
		return 0, ErrNotFound
	}
	return id, nil
}
