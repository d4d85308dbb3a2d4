package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	auditdomain "github.com/entrada-events/entrada/internal/audit/domain"
	"github.com/entrada-events/entrada/internal/clock"
	eventdomain "github.com/entrada-events/entrada/internal/event/domain"
	eventrepo "github.com/entrada-events/entrada/internal/event/repository"
	eventservice "github.com/entrada-events/entrada/internal/event/service"
	regdomain "github.com/entrada-events/entrada/internal/registration/domain"
	regrepo "github.com/entrada-events/entrada/internal/registration/repository"
	"github.com/entrada-events/entrada/internal/ticket/domain"
	ticketrepo "github.com/entrada-events/entrada/internal/ticket/repository"
	ticketservice "github.com/entrada-events/entrada/internal/ticket/service"
)

type noopAuditService struct{}

func (noopAuditService) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	return nil
}

func (noopAuditService) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	events  eventdomain.Service
	tickets domain.Service
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

	return &fixture{db: db, node: node, clock: fake, events: eventSvc, tickets: ticketSvc}
}

func (f *fixture) createEvent(t *testing.T, name string, transferable bool) *eventdomain.Event {
	t.Helper()

	now := f.clock.Now()
	event, err := f.events.Create(context.Background(), eventdomain.CreateEventRequest{
		Name:           name,
		OrganizerName:  "Entrada Community",
		StartsAt:       now.Add(24 * time.Hour),
		EndsAt:         now.Add(32 * time.Hour),
		TicketTypes:    []eventdomain.TicketType{{Name: "General", Price: 50000, Currency: "INR"}},
		IsTransferable: transferable,
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return event
}

func (f *fixture) seedParticipant(t *testing.T, event *eventdomain.Event, email string) *regdomain.Participant {
	t.Helper()

	now := f.clock.Now()
	p := &regdomain.Participant{
		ID:         f.node.Generate(),
		EventID:    event.ID,
		Email:      email,
		Name:       "Asha Rao",
		TicketName: "General",
		Quantity:   1,
		Amount:     50000,
		Currency:   "INR",
		PaymentID:  "pay_" + email,
		OrderID:    "order_" + email,
		Signature:  "sig",
		Verified:   true,
		PaidAt:     now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := f.db.WithContext(context.Background()).Create(p).Error; err != nil {
		t.Fatalf("seed participant: %v", err)
	}
	return p
}

func TestIssueIdempotentPerParticipant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)
	event := f.createEvent(t, "GopherCon India 2026", false)
	participant := f.seedParticipant(t, event, "asha@example.com")

	first, err := f.tickets.Issue(ctx, participant, event)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	if !strings.HasPrefix(first.TicketNumber, "TKT-") {
		t.Fatalf("unexpected ticket number %q", first.TicketNumber)
	}

	second, err := f.tickets.Issue(ctx, participant, event)
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if second.TicketNumber != first.TicketNumber {
		t.Fatalf("expected idempotent issue, got %q then %q", first.TicketNumber, second.TicketNumber)
	}
}

func TestGetResolvesNumberCaseInsensitively(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 31)
	event := f.createEvent(t, "GopherCon India 2026", false)
	participant := f.seedParticipant(t, event, "asha@example.com")

	issued, err := f.tickets.Issue(ctx, participant, event)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	byNumber, err := f.tickets.Get(ctx, strings.ToLower(issued.TicketNumber))
	if err != nil {
		t.Fatalf("get by lowercase number: %v", err)
	}
	if byNumber.ID != issued.ID {
		t.Fatalf("expected ticket %s, got %s", issued.ID, byNumber.ID)
	}

	byID, err := f.tickets.Get(ctx, issued.ID.String())
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID.TicketNumber != issued.TicketNumber {
		t.Fatalf("expected number %q, got %q", issued.TicketNumber, byID.TicketNumber)
	}

	if _, err := f.tickets.Get(ctx, "TKT-209901-ZZZZZZ"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCheckInStateMachine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 32)
	event := f.createEvent(t, "GopherCon India 2026", false)
	participant := f.seedParticipant(t, event, "asha@example.com")

	issued, err := f.tickets.Issue(ctx, participant, event)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := f.tickets.CheckIn(ctx, issued.TicketNumber, "  ", ""); !errors.Is(err, domain.ErrInvalidStaff) {
		t.Fatalf("expected ErrInvalidStaff, got %v", err)
	}

	admitted, err := f.tickets.CheckIn(ctx, issued.TicketNumber, "gate-7", "hall-a entrance")
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if admitted.Repeat {
		t.Fatal("first scan must not be a repeat")
	}
	if admitted.Ticket.Status != domain.StatusUsed {
		t.Fatalf("expected used status, got %s", admitted.Ticket.Status)
	}
	if admitted.Ticket.CheckedInAt == nil || admitted.Ticket.CheckedInBy == nil {
		t.Fatal("expected check-in metadata to be recorded")
	}
	if admitted.Ticket.CheckedInLocation == nil || *admitted.Ticket.CheckedInLocation != "hall-a entrance" {
		t.Fatalf("expected check-in location to be recorded, got %+v", admitted.Ticket.CheckedInLocation)
	}

	// Same staff re-scanning is explicitly reported, not rejected.
	repeat, err := f.tickets.CheckIn(ctx, issued.TicketNumber, "gate-7", "")
	if err != nil {
		t.Fatalf("repeat scan: %v", err)
	}
	if !repeat.Repeat {
		t.Fatal("expected repeat scan to be flagged")
	}

	if _, err := f.tickets.CheckIn(ctx, issued.TicketNumber, "gate-9", ""); !errors.Is(err, domain.ErrTicketAlreadyUsed) {
		t.Fatalf("expected ErrTicketAlreadyUsed for different staff, got %v", err)
	}
}

func TestCancelFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 33)
	event := f.createEvent(t, "GopherCon India 2026", false)

	first := f.seedParticipant(t, event, "asha@example.com")
	issued, err := f.tickets.Issue(ctx, first, event)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cancelled, err := f.tickets.Cancel(ctx, issued.TicketNumber)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("expected cancelled ticket, got %+v", cancelled)
	}

	// Cancelling again settles to the same state.
	if _, err := f.tickets.Cancel(ctx, issued.TicketNumber); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}

	if _, err := f.tickets.CheckIn(ctx, issued.TicketNumber, "gate-7", ""); !errors.Is(err, domain.ErrTicketCancelled) {
		t.Fatalf("expected ErrTicketCancelled, got %v", err)
	}

	second := f.seedParticipant(t, event, "ravi@example.com")
	used, err := f.tickets.Issue(ctx, second, event)
	if err != nil {
		t.Fatalf("issue second: %v", err)
	}
	if _, err := f.tickets.CheckIn(ctx, used.TicketNumber, "gate-7", ""); err != nil {
		t.Fatalf("check in second: %v", err)
	}
	if _, err := f.tickets.Cancel(ctx, used.TicketNumber); !errors.Is(err, domain.ErrTicketAlreadyUsed) {
		t.Fatalf("expected ErrTicketAlreadyUsed, got %v", err)
	}
}

func TestExpiryDerivedFromEventEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 34)
	event := f.createEvent(t, "GopherCon India 2026", false)
	participant := f.seedParticipant(t, event, "asha@example.com")

	issued, err := f.tickets.Issue(ctx, participant, event)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	f.clock.Advance(40 * time.Hour)

	got, err := f.tickets.Get(ctx, issued.TicketNumber)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusExpired {
		t.Fatalf("expected derived expired status, got %s", got.Status)
	}

	if _, err := f.tickets.CheckIn(ctx, issued.TicketNumber, "gate-7", ""); !errors.Is(err, domain.ErrTicketExpired) {
		t.Fatalf("expected ErrTicketExpired, got %v", err)
	}

	// The sweep persists what reads were already deriving.
	n, err := f.tickets.MarkExpired(ctx)
	if err != nil {
		t.Fatalf("mark expired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 ticket swept, got %d", n)
	}

	var stored domain.Ticket
	if err := f.db.Where("id = ?", issued.ID).First(&stored).Error; err != nil {
		t.Fatalf("load stored ticket: %v", err)
	}
	if stored.Status != domain.StatusExpired {
		t.Fatalf("expected persisted expired status, got %s", stored.Status)
	}
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 35)
	event := f.createEvent(t, "GopherCon India 2026", true)
	participant := f.seedParticipant(t, event, "asha@example.com")

	issued, err := f.tickets.Issue(ctx, participant, event)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	moved, err := f.tickets.Transfer(ctx, issued.TicketNumber, domain.TransferRequest{
		ToName:  "Ravi Kumar",
		ToEmail: "Ravi@Example.com",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if moved.HolderName != "Ravi Kumar" || moved.HolderEmail != "ravi@example.com" {
		t.Fatalf("expected holder swap, got %s <%s>", moved.HolderName, moved.HolderEmail)
	}
	if len(moved.TransferHistory) != 1 {
		t.Fatalf("expected one transfer hop, got %d", len(moved.TransferHistory))
	}
	hop := moved.TransferHistory[0]
	if hop.FromEmail != "asha@example.com" || hop.ToEmail != "ravi@example.com" {
		t.Fatalf("unexpected hop %+v", hop)
	}

	// Ownership moves to a registration of the transferee, not just the
	// printed holder fields.
	if moved.ParticipantID == participant.ID {
		t.Fatal("expected participant linkage to be reassigned")
	}
	var transferee regdomain.Participant
	if err := f.db.Where("event_id = ? AND email = ?", event.ID, "ravi@example.com").First(&transferee).Error; err != nil {
		t.Fatalf("load transferee participant: %v", err)
	}
	if moved.ParticipantID != transferee.ID {
		t.Fatalf("expected ticket owned by transferee %s, got %s", transferee.ID, moved.ParticipantID)
	}
	if !transferee.Verified || transferee.OrderID != participant.OrderID {
		t.Fatalf("expected transferee to inherit the payment reference, got %+v", transferee)
	}

	var transferor regdomain.Participant
	if err := f.db.Where("id = ?", participant.ID).First(&transferor).Error; err != nil {
		t.Fatalf("load transferor participant: %v", err)
	}
	if !transferor.TransferredOut {
		t.Fatal("expected transferor to be marked transferred out")
	}

	// The transferor must not be re-issued a ticket by the sweep.
	swept, err := f.tickets.IssueMissing(ctx, 50)
	if err != nil {
		t.Fatalf("issue missing: %v", err)
	}
	if swept != 0 {
		t.Fatalf("expected idle sweep after transfer, got %d", swept)
	}

	if _, err := f.tickets.Transfer(ctx, issued.TicketNumber, domain.TransferRequest{ToName: "X"}); !errors.Is(err, domain.ErrInvalidTransferee) {
		t.Fatalf("expected ErrInvalidTransferee, got %v", err)
	}
}

func TestTransferToExistingTicketHolderRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 38)
	event := f.createEvent(t, "GopherCon India 2026", true)

	asha := f.seedParticipant(t, event, "asha@example.com")
	ravi := f.seedParticipant(t, event, "ravi@example.com")

	ashaTicket, err := f.tickets.Issue(ctx, asha, event)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := f.tickets.Issue(ctx, ravi, event); err != nil {
		t.Fatalf("issue second: %v", err)
	}

	_, err = f.tickets.Transfer(ctx, ashaTicket.TicketNumber, domain.TransferRequest{
		ToName:  "Ravi Kumar",
		ToEmail: "ravi@example.com",
	})
	if !errors.Is(err, domain.ErrTransfereeHasTicket) {
		t.Fatalf("expected ErrTransfereeHasTicket, got %v", err)
	}
}

func TestTransferBlockedForNonTransferableEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 36)
	event := f.createEvent(t, "GopherCon India 2026", false)
	participant := f.seedParticipant(t, event, "asha@example.com")

	issued, err := f.tickets.Issue(ctx, participant, event)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	_, err = f.tickets.Transfer(ctx, issued.TicketNumber, domain.TransferRequest{
		ToName:  "Ravi Kumar",
		ToEmail: "ravi@example.com",
	})
	if !errors.Is(err, domain.ErrNotTransferable) {
		t.Fatalf("expected ErrNotTransferable, got %v", err)
	}
}

func TestIssueMissingSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 37)
	event := f.createEvent(t, "GopherCon India 2026", false)

	ticketed := f.seedParticipant(t, event, "asha@example.com")
	if _, err := f.tickets.Issue(ctx, ticketed, event); err != nil {
		t.Fatalf("issue: %v", err)
	}
	f.seedParticipant(t, event, "ravi@example.com")
	f.seedParticipant(t, event, "mira@example.com")

	issued, err := f.tickets.IssueMissing(ctx, 50)
	if err != nil {
		t.Fatalf("issue missing: %v", err)
	}
	if issued != 2 {
		t.Fatalf("expected 2 deferred issuances, got %d", issued)
	}

	var count int64
	if err := f.db.Model(&domain.Ticket{}).Count(&count).Error; err != nil {
		t.Fatalf("count tickets: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 tickets, got %d", count)
	}

	// Running the sweep again finds nothing to do.
	issued, err = f.tickets.IssueMissing(ctx, 50)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if issued != 0 {
		t.Fatalf("expected idle sweep, got %d", issued)
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
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}
