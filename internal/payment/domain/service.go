package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	regdomain "github.com/entrada-events/entrada/internal/registration/domain"
)

var (
	ErrInvalidSignature         = errors.New("payment: invalid_signature")
	ErrMissingFields            = errors.New("payment: missing_fields")
	ErrInvalidCallback          = errors.New("payment: invalid_callback")
	ErrCallbackAlreadyProcessed = errors.New("payment: callback_already_processed")
	ErrOrderFailed              = errors.New("payment: order_creation_failed")
)

// Verifier checks a provider's payment callback signature.
type Verifier interface {
	Verify(ctx context.Context, orderID, paymentID, signature string) error
	VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) error
}

// OrderClient creates payment orders against the provider's API.
type OrderClient interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error)
}

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	// KeyID is returned to the client so the checkout widget can be
	// initialized without a second round trip.
	KeyID string `json:"key_id,omitempty"`
}

type CreateOrderRequest struct {
	EventID    snowflake.ID `json:"event_id"`
	TicketName string       `json:"ticket_name"`
	Quantity   int          `json:"quantity"`
}

// VerifyRequest is the browser callback after a completed checkout.
type VerifyRequest struct {
	OrderID     string                    `json:"razorpay_order_id"`
	PaymentID   string                    `json:"razorpay_payment_id"`
	Signature   string                    `json:"razorpay_signature"`
	EventID     snowflake.ID              `json:"event_id"`
	Amount      int64                     `json:"amount"`
	Currency    string                    `json:"currency"`
	Participant regdomain.ParticipantData `json:"participant"`
}

type VerifyResult struct {
	Participant  *regdomain.Participant `json:"participant"`
	TicketNumber string                 `json:"ticket_number,omitempty"`
}

type Service interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	VerifyAndRegister(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
	HandleWebhook(ctx context.Context, payload []byte, headers http.Header) error
}

type Repository interface {
	// InsertCallback reports false when the record already existed.
	InsertCallback(ctx context.Context, db *gorm.DB, record *CallbackRecord) (bool, error)
	FindCallback(ctx context.Context, db *gorm.DB, provider, orderID, paymentID string) (*CallbackRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}
