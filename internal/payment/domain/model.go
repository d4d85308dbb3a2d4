package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// CallbackRecord stores every verified payment callback exactly once. The
// unique index over (provider, order_id, payment_id) makes webhook
// replays observable instead of re-running the pipeline.
type CallbackRecord struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	Provider    string         `gorm:"type:text;not null;uniqueIndex:idx_callbacks_provider_order_payment" json:"provider"`
	OrderID     string         `gorm:"type:text;not null;uniqueIndex:idx_callbacks_provider_order_payment" json:"order_id"`
	PaymentID   string         `gorm:"type:text;not null;uniqueIndex:idx_callbacks_provider_order_payment" json:"payment_id"`
	EventID     snowflake.ID   `gorm:"index" json:"event_id"`
	Payload     datatypes.JSON `json:"-"`
	ReceivedAt  time.Time      `gorm:"not null" json:"received_at"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
}

func (CallbackRecord) TableName() string { return "payment_callbacks" }
