package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/entrada-events/entrada/internal/audit/domain"
	"github.com/entrada-events/entrada/internal/clock"
	eventdomain "github.com/entrada-events/entrada/internal/event/domain"
	"github.com/entrada-events/entrada/internal/observability/logger"
	"github.com/entrada-events/entrada/internal/observability/metrics"
	"github.com/entrada-events/entrada/internal/registration/domain"
	ticketdomain "github.com/entrada-events/entrada/internal/ticket/domain"
	"github.com/entrada-events/entrada/pkg/db"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Events  eventdomain.Service
	Tickets ticketdomain.Service
	Audit   auditdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	events  eventdomain.Service
	tickets ticketdomain.Service
	audit   auditdomain.Service
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &service{
		db:      p.DB,
		log:     p.Log,
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		events:  p.Events,
		tickets: p.Tickets,
		audit:   p.Audit,
		metrics: p.Metrics,
	}
}

func (s *service) Exists(ctx context.Context, eventID snowflake.ID, email string) (bool, error) {
	p, err := s.repo.FindByEventEmail(ctx, s.db, eventID, normalizeEmail(email))
	if err != nil {
		return false, err
	}
	return p != nil, nil
}

func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.RegisterResult, error) {
	log := logger.WithContext(ctx, s.log)

	if err := validate(req); err != nil {
		return nil, err
	}

	event, err := s.events.GetByID(ctx, req.EventID)
	if errors.Is(err, eventdomain.ErrNotFound) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	tt := event.TicketType(req.Participant.TicketName)
	if tt == nil {
		return nil, domain.ErrInvalidTicketName
	}

	email := normalizeEmail(req.Participant.Email)

	// Fast path only. The unique index remains the source of truth for
	// concurrent attempts.
	existing, err := s.repo.FindByEventEmail(ctx, s.db, req.EventID, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, s.rejectDuplicate(ctx, event, email, req.Payment)
	}

	now := s.clock.Now()
	paidAt := req.Payment.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}
	currency := req.Payment.Currency
	if currency == "" {
		currency = tt.Currency
	}

	participant := &domain.Participant{
		ID:          s.genID.Generate(),
		EventID:     event.ID,
		Email:       email,
		Name:        strings.TrimSpace(req.Participant.Name),
		Phone:       strings.TrimSpace(req.Participant.Phone),
		TicketName:  tt.Name,
		TicketPrice: tt.Price,
		Quantity:    req.Participant.Quantity,
		Amount:      req.Payment.Amount,
		Currency:    currency,
		IsVolunteer: req.Participant.IsVolunteer,
		TshirtSize:  strings.TrimSpace(req.Participant.TshirtSize),
		PaymentID:   req.Payment.PaymentID,
		OrderID:     req.Payment.OrderID,
		Signature:   req.Payment.Signature,
		Verified:    true,
		PaidAt:      paidAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, s.db, participant); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, s.rejectDuplicate(ctx, event, email, req.Payment)
		}
		return nil, err
	}

	s.metrics.RecordRegistration(ctx, event.ID.String())
	_ = s.audit.AuditLog(ctx, auditdomain.ActorTypeSystem, nil, "participant.registered",
		"participant", strPtr(participant.ID.String()), map[string]any{
			"event_id":   event.ID.String(),
			"order_id":   req.Payment.OrderID,
			"payment_id": req.Payment.PaymentID,
		})

	result := &domain.RegisterResult{Participant: participant}

	// Issuance failure must not unwind the committed registration. The
	// background sweep covers any participant left without a ticket.
	ticket, err := s.tickets.Issue(ctx, participant, event)
	if err != nil {
		log.Error("ticket issuance failed after registration, sweep will retry",
			zap.String("participant_id", participant.ID.String()),
			zap.String("event_id", event.ID.String()),
			zap.Error(err))
		return result, nil
	}
	result.TicketNumber = ticket.TicketNumber
	return result, nil
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Participant, error) {
	p, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (s *service) rejectDuplicate(ctx context.Context, event *eventdomain.Event, email string, payment domain.PaymentDetails) error {
	s.metrics.RecordDuplicateRegistration(ctx, event.ID.String())
	s.log.Warn("duplicate registration rejected",
		zap.String("event_id", event.ID.String()),
		zap.String("order_id", payment.OrderID),
		zap.String("payment_id", payment.PaymentID))
	return &domain.DuplicateError{
		Email:     email,
		EventID:   event.ID,
		OrderID:   payment.OrderID,
		PaymentID: payment.PaymentID,
	}
}

func validate(req domain.RegisterRequest) error {
	p := req.Participant
	if strings.TrimSpace(p.Name) == "" {
		return domain.ErrInvalidName
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(p.Email)); err != nil {
		return domain.ErrInvalidEmail
	}
	if strings.TrimSpace(p.TicketName) == "" {
		return domain.ErrInvalidTicketName
	}
	if p.Quantity < 1 {
		return domain.ErrInvalidQuantity
	}
	if req.Payment.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func strPtr(s string) *string { return &s }
