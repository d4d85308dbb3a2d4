package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusValid     Status = "valid"
	StatusUsed      Status = "used"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Transfer records one hop of ticket ownership.
type Transfer struct {
	FromName  string    `json:"from_name"`
	FromEmail string    `json:"from_email"`
	ToName    string    `json:"to_name"`
	ToEmail   string    `json:"to_email"`
	MovedAt   time.Time `json:"moved_at"`
}

// Ticket is the admission record for one participant. The ticket number is
// globally unique; collisions on insert are retried with a fresh number.
type Ticket struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	TicketNumber  string       `gorm:"type:text;not null;uniqueIndex" json:"ticket_number"`
	EventID       snowflake.ID `gorm:"not null;index" json:"event_id"`
	ParticipantID snowflake.ID `gorm:"not null;uniqueIndex" json:"participant_id"`
	HolderName    string       `gorm:"type:text;not null" json:"holder_name"`
	HolderEmail   string       `gorm:"type:text;not null" json:"holder_email"`
	TicketName    string       `gorm:"type:text;not null" json:"ticket_name"`
	Status        Status       `gorm:"type:text;not null;default:valid;index" json:"status"`

	CheckedInAt       *time.Time `json:"checked_in_at,omitempty"`
	CheckedInBy       *string    `gorm:"type:text" json:"checked_in_by,omitempty"`
	CheckedInLocation *string    `gorm:"type:text" json:"checked_in_location,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`

	TransferHistory datatypes.JSONSlice[Transfer] `json:"transfer_history,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Ticket) TableName() string { return "tickets" }
