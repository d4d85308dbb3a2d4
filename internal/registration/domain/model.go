package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Participant is created at most once per (email, event) pair. The unique
// index on (event_id, email) is the authoritative duplicate guard; the
// application-level existence check is a fast path only.
type Participant struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	EventID     snowflake.ID `gorm:"not null;index;uniqueIndex:idx_participants_event_email" json:"event_id"`
	Email       string       `gorm:"type:text;not null;uniqueIndex:idx_participants_event_email" json:"email"`
	Name        string       `gorm:"type:text;not null" json:"name"`
	Phone       string       `gorm:"type:text" json:"phone,omitempty"`
	TicketName  string       `gorm:"type:text;not null" json:"ticket_name"`
	TicketPrice int64        `gorm:"not null" json:"ticket_price"`
	Quantity    int          `gorm:"not null" json:"quantity"`
	Amount      int64        `gorm:"not null" json:"amount"`
	Currency    string       `gorm:"type:text;not null" json:"currency"`
	IsVolunteer bool         `gorm:"not null;default:false" json:"is_volunteer"`
	TshirtSize  string       `gorm:"type:text" json:"tshirt_size,omitempty"`

	// Payment metadata retained for reconciliation; the raw callback is
	// never persisted.
	PaymentID string    `gorm:"type:text;not null" json:"payment_id"`
	OrderID   string    `gorm:"type:text;not null" json:"order_id"`
	Signature string    `gorm:"type:text;not null" json:"-"`
	Verified  bool      `gorm:"not null;default:false" json:"verified"`
	PaidAt    time.Time `gorm:"not null" json:"paid_at"`

	// Set when the participant's ticket was transferred away; such rows
	// are excluded from the deferred-issuance sweep.
	TransferredOut bool `gorm:"not null;default:false" json:"transferred_out"`

	CertificateGenerated bool          `gorm:"not null;default:false" json:"certificate_generated"`
	CertificateID        *snowflake.ID `gorm:"index" json:"certificate_id,omitempty"`
	EmailSent            bool          `gorm:"not null;default:false" json:"email_sent"`
	EmailSentAt          *time.Time    `json:"email_sent_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Participant) TableName() string { return "participants" }
