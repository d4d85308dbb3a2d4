package service_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	auditdomain "github.com/entrada-events/entrada/internal/audit/domain"
	"github.com/entrada-events/entrada/internal/clock"
	"github.com/entrada-events/entrada/internal/config"
	eventdomain "github.com/entrada-events/entrada/internal/event/domain"
	eventrepo "github.com/entrada-events/entrada/internal/event/repository"
	eventservice "github.com/entrada-events/entrada/internal/event/service"
	"github.com/entrada-events/entrada/internal/payment/adapters/razorpay"
	"github.com/entrada-events/entrada/internal/payment/domain"
	paymentrepo "github.com/entrada-events/entrada/internal/payment/repository"
	paymentservice "github.com/entrada-events/entrada/internal/payment/service"
	regdomain "github.com/entrada-events/entrada/internal/registration/domain"
	regrepo "github.com/entrada-events/entrada/internal/registration/repository"
	regservice "github.com/entrada-events/entrada/internal/registration/service"
	ticketrepo "github.com/entrada-events/entrada/internal/ticket/repository"
	ticketservice "github.com/entrada-events/entrada/internal/ticket/service"
)

const (
	testKeySecret     = "key_secret"
	testWebhookSecret = "webhook_secret"
)

type noopAuditService struct{}

func (noopAuditService) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	return nil
}

func (noopAuditService) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type recordingOrderClient struct {
	amount   int64
	currency string
	receipt  string
}

func (c *recordingOrderClient) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*domain.Order, error) {
	c.amount = amount
	c.currency = currency
	c.receipt = receipt
	return &domain.Order{ID: "order_stub", Amount: amount, Currency: currency, Status: "created", KeyID: "key_id"}, nil
}

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	events   eventdomain.Service
	payments domain.Service
	orders   *recordingOrderClient
}

func newFixture(t *testing.T, nodeID int64) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC))
	auditSvc := noopAuditService{}
	adapter := razorpay.New("key_id", testKeySecret, testWebhookSecret)
	orders := &recordingOrderClient{}

	eventSvc := eventservice.NewService(eventservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  eventrepo.Provide(),
	})
	ticketSvc := ticketservice.NewService(ticketservice.Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        fake,
		Repo:         ticketrepo.Provide(),
		Participants: regrepo.Provide(),
		Events:       eventSvc,
		Audit:        auditSvc,
	})
	regSvc := regservice.NewService(regservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fake,
		Repo:    regrepo.Provide(),
		Events:  eventSvc,
		Tickets: ticketSvc,
		Audit:   auditSvc,
	})
	paymentSvc := paymentservice.NewService(paymentservice.Params{
		Config:       config.Config{},
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        fake,
		Repo:         paymentrepo.Provide(),
		Verifier:     adapter,
		Orders:       orders,
		Events:       eventSvc,
		Registration: regSvc,
	})

	return &fixture{db: db, node: node, clock: fake, events: eventSvc, payments: paymentSvc, orders: orders}
}

func (f *fixture) createEvent(t *testing.T) *eventdomain.Event {
	t.Helper()

	now := f.clock.Now()
	event, err := f.events.Create(context.Background(), eventdomain.CreateEventRequest{
		Name:          "GopherCon India 2026",
		OrganizerName: "Entrada Community",
		StartsAt:      now.Add(24 * time.Hour),
		EndsAt:        now.Add(32 * time.Hour),
		TicketTypes:   []eventdomain.TicketType{{Name: "General", Price: 50000, Currency: "INR"}},
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return event
}

func sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyReq(eventID snowflake.ID, email, orderID, paymentID string) domain.VerifyRequest {
	return domain.VerifyRequest{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: sign(testKeySecret, orderID+"|"+paymentID),
		EventID:   eventID,
		Amount:    50000,
		Currency:  "INR",
		Participant: regdomain.ParticipantData{
			Name:       "Asha Rao",
			Email:      email,
			TicketName: "General",
			Quantity:   1,
		},
	}
}

func TestCreateOrderPricesFromCatalog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	event := f.createEvent(t)

	order, err := f.payments.CreateOrder(ctx, domain.CreateOrderRequest{
		EventID:    event.ID,
		TicketName: "General",
		Quantity:   2,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID != "order_stub" {
		t.Fatalf("unexpected order %+v", order)
	}
	if f.orders.amount != 100000 || f.orders.currency != "INR" {
		t.Fatalf("expected catalog pricing 2 x 50000 INR, got %d %s", f.orders.amount, f.orders.currency)
	}

	_, err = f.payments.CreateOrder(ctx, domain.CreateOrderRequest{
		EventID:    event.ID,
		TicketName: "VIP",
	})
	if !errors.Is(err, regdomain.ErrInvalidTicketName) {
		t.Fatalf("expected ErrInvalidTicketName, got %v", err)
	}
}

func TestVerifyAndRegister(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 51)
	event := f.createEvent(t)

	result, err := f.payments.VerifyAndRegister(ctx, verifyReq(event.ID, "asha@example.com", "order_1", "pay_1"))
	if err != nil {
		t.Fatalf("verify and register: %v", err)
	}
	if result.Participant == nil || result.Participant.Email != "asha@example.com" {
		t.Fatalf("unexpected participant %+v", result.Participant)
	}
	if result.TicketNumber == "" {
		t.Fatal("expected synchronous ticket issuance")
	}

	var record domain.CallbackRecord
	if err := f.db.Where("order_id = ? AND payment_id = ?", "order_1", "pay_1").First(&record).Error; err != nil {
		t.Fatalf("load callback record: %v", err)
	}
	if record.ProcessedAt == nil {
		t.Fatal("expected callback marked processed")
	}
}

func TestVerifyAndRegisterRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 52)
	event := f.createEvent(t)

	req := verifyReq(event.ID, "asha@example.com", "order_1", "pay_1")
	req.Signature = sign(testKeySecret, "order_1|pay_other")

	_, err := f.payments.VerifyAndRegister(ctx, req)
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	var count int64
	if err := f.db.Model(&regdomain.Participant{}).Count(&count).Error; err != nil {
		t.Fatalf("count participants: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no registration on rejected signature, got %d", count)
	}
}

func TestVerifyAndRegisterMissingFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 53)

	_, err := f.payments.VerifyAndRegister(ctx, domain.VerifyRequest{OrderID: "order_1"})
	if !errors.Is(err, domain.ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
}

func TestVerifyAndRegisterReplay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 54)
	event := f.createEvent(t)

	req := verifyReq(event.ID, "asha@example.com", "order_1", "pay_1")
	if _, err := f.payments.VerifyAndRegister(ctx, req); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	_, err := f.payments.VerifyAndRegister(ctx, req)
	if !errors.Is(err, domain.ErrCallbackAlreadyProcessed) {
		t.Fatalf("expected ErrCallbackAlreadyProcessed, got %v", err)
	}

	var count int64
	if err := f.db.Model(&regdomain.Participant{}).Count(&count).Error; err != nil {
		t.Fatalf("count participants: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single registration, got %d", count)
	}
}

func TestVerifyAndRegisterDuplicateEmailSettles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 55)
	event := f.createEvent(t)

	if _, err := f.payments.VerifyAndRegister(ctx, verifyReq(event.ID, "asha@example.com", "order_1", "pay_1")); err != nil {
		t.Fatalf("first registration: %v", err)
	}

	// A second payment for the same address is rejected as a duplicate.
	second := verifyReq(event.ID, "asha@example.com", "order_2", "pay_2")
	_, err := f.payments.VerifyAndRegister(ctx, second)
	if !errors.Is(err, regdomain.ErrDuplicateRegistration) {
		t.Fatalf("expected ErrDuplicateRegistration, got %v", err)
	}

	// But its callback is settled, so replays stop re-running the pipeline.
	_, err = f.payments.VerifyAndRegister(ctx, second)
	if !errors.Is(err, domain.ErrCallbackAlreadyProcessed) {
		t.Fatalf("expected ErrCallbackAlreadyProcessed on replay, got %v", err)
	}
}

func webhookPayload(t *testing.T, eventID snowflake.ID, email, orderID, paymentID string) []byte {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"event": "payment.captured",
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":       paymentID,
					"order_id": orderID,
					"amount":   50000,
					"currency": "INR",
					"email":    email,
					"notes": map[string]string{
						"event_id":    eventID.String(),
						"name":        "Asha Rao",
						"email":       email,
						"ticket_name": "General",
						"quantity":    "1",
					},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal webhook payload: %v", err)
	}
	return payload
}

func TestHandleWebhook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 56)
	event := f.createEvent(t)

	payload := webhookPayload(t, event.ID, "asha@example.com", "order_1", "pay_1")
	headers := http.Header{}
	headers.Set("X-Razorpay-Signature", sign(testWebhookSecret, string(payload)))

	if err := f.payments.HandleWebhook(ctx, payload, headers); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}

	var participant regdomain.Participant
	if err := f.db.Where("email = ?", "asha@example.com").First(&participant).Error; err != nil {
		t.Fatalf("load participant: %v", err)
	}
	if participant.OrderID != "order_1" || participant.PaymentID != "pay_1" {
		t.Fatalf("unexpected payment reference %s/%s", participant.OrderID, participant.PaymentID)
	}

	err := f.payments.HandleWebhook(ctx, payload, headers)
	if !errors.Is(err, domain.ErrCallbackAlreadyProcessed) {
		t.Fatalf("expected ErrCallbackAlreadyProcessed on redelivery, got %v", err)
	}
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 57)
	event := f.createEvent(t)

	payload := webhookPayload(t, event.ID, "asha@example.com", "order_1", "pay_1")
	headers := http.Header{}
	headers.Set("X-Razorpay-Signature", sign("wrong_secret", string(payload)))

	err := f.payments.HandleWebhook(ctx, payload, headers)
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 58)

	payload := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1"}}}}`)
	headers := http.Header{}
	headers.Set("X-Razorpay-Signature", sign(testWebhookSecret, string(payload)))

	if err := f.payments.HandleWebhook(ctx, payload, headers); err != nil {
		t.Fatalf("expected unhandled event types to be dropped, got %v", err)
	}

	var count int64
	if err := f.db.Model(&domain.CallbackRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count callbacks: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no callback recorded, got %d", count)
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE events (
			id BIGINT PRIMARY KEY,
			slug TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			venue_name TEXT,
			organizer_name TEXT NOT NULL,
			starts_at TIMESTAMP NOT NULL,
			ends_at TIMESTAMP NOT NULL,
			ticket_types TEXT NOT NULL DEFAULT '[]',
			is_transferable BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_events_slug ON events(slug)`,
		`CREATE TABLE participants (
			id BIGINT PRIMARY KEY,
			event_id BIGINT NOT NULL,
			email TEXT NOT NULL,
			name TEXT NOT NULL,
			phone TEXT,
			ticket_name TEXT NOT NULL,
			ticket_price BIGINT NOT NULL,
			quantity INTEGER NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			is_volunteer BOOLEAN NOT NULL DEFAULT FALSE,
			tshirt_size TEXT,
			payment_id TEXT NOT NULL,
			order_id TEXT NOT NULL,
			signature TEXT NOT NULL,
			verified BOOLEAN NOT NULL DEFAULT FALSE,
			paid_at TIMESTAMP NOT NULL,
			transferred_out BOOLEAN NOT NULL DEFAULT FALSE,
			certificate_generated BOOLEAN NOT NULL DEFAULT FALSE,
			certificate_id BIGINT,
			email_sent BOOLEAN NOT NULL DEFAULT FALSE,
			email_sent_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX idx_participants_event_email ON participants(event_id, email)`,
		`CREATE TABLE tickets (
			id BIGINT PRIMARY KEY,
			ticket_number TEXT NOT NULL,
			event_id BIGINT NOT NULL,
			participant_id BIGINT NOT NULL,
			holder_name TEXT NOT NULL,
			holder_email TEXT NOT NULL,
			ticket_name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'valid',
			checked_in_at TIMESTAMP,
			checked_in_by TEXT,
			checked_in_location TEXT,
			cancelled_at TIMESTAMP,
			transfer_history TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_tickets_number ON tickets(ticket_number)`,
		`CREATE UNIQUE INDEX ux_tickets_participant ON tickets(participant_id)`,
		`CREATE TABLE payment_callbacks (
			id BIGINT PRIMARY KEY,
			provider TEXT NOT NULL,
			order_id TEXT NOT NULL,
			payment_id TEXT NOT NULL,
			event_id BIGINT,
			payload TEXT,
			received_at TIMESTAMP NOT NULL,
			processed_at TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX idx_callbacks_provider_order_payment ON payment_callbacks(provider, order_id, payment_id)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}
