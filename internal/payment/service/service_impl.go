package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/entrada-events/entrada/internal/clock"
	"github.com/entrada-events/entrada/internal/config"
	eventdomain "github.com/entrada-events/entrada/internal/event/domain"
	"github.com/entrada-events/entrada/internal/observability/logger"
	"github.com/entrada-events/entrada/internal/observability/metrics"
	"github.com/entrada-events/entrada/internal/payment/domain"
	regdomain "github.com/entrada-events/entrada/internal/registration/domain"
)

type Params struct {
	fx.In

	Config       config.Config
	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	Verifier     domain.Verifier
	Orders       domain.OrderClient
	Events       eventdomain.Service
	Registration regdomain.Service
	Metrics      *metrics.Metrics `optional:"true"`
}

type service struct {
	provider     string
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	verifier     domain.Verifier
	orders       domain.OrderClient
	events       eventdomain.Service
	registration regdomain.Service
	metrics      *metrics.Metrics
}

func NewService(p Params) domain.Service {
	provider := strings.TrimSpace(p.Config.Payment.Provider)
	if provider == "" {
		provider = "razorpay"
	}
	return &service{
		provider:     provider,
		db:           p.DB,
		log:          p.Log,
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		verifier:     p.Verifier,
		orders:       p.Orders,
		events:       p.Events,
		registration: p.Registration,
		metrics:      p.Metrics,
	}
}

func (s *service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	event, err := s.events.GetByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	tt := event.TicketType(req.TicketName)
	if tt == nil {
		return nil, regdomain.ErrInvalidTicketName
	}
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	receipt := fmt.Sprintf("evt-%s-%s", event.ID, s.genID.Generate())
	order, err := s.orders.CreateOrder(ctx, tt.Price*int64(quantity), tt.Currency, receipt)
	if err != nil {
		return nil, err
	}

	s.log.Info("payment order created",
		zap.String("order_id", order.ID),
		zap.String("event_id", event.ID.String()),
		zap.Int64("amount", order.Amount))
	return order, nil
}

func (s *service) VerifyAndRegister(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error) {
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" || req.EventID == 0 {
		return nil, domain.ErrMissingFields
	}

	if err := s.verifier.Verify(ctx, req.OrderID, req.PaymentID, req.Signature); err != nil {
		s.metrics.RecordPaymentCallback(ctx, s.provider, "invalid_signature")
		s.log.Warn("payment signature rejected",
			zap.String("order_id", req.OrderID),
			zap.String("payment_id", req.PaymentID))
		return nil, domain.ErrInvalidSignature
	}

	return s.process(ctx, req)
}

func (s *service) HandleWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	log := logger.WithContext(ctx, s.log)

	if err := s.verifier.VerifyWebhook(ctx, payload, headers); err != nil {
		s.metrics.RecordPaymentCallback(ctx, s.provider, "invalid_signature")
		return domain.ErrInvalidSignature
	}

	req, err := parseWebhook(payload)
	if err != nil {
		return err
	}
	if req == nil {
		// Event type we do not act on.
		return nil
	}

	_, err = s.process(ctx, *req)
	if errors.Is(err, domain.ErrCallbackAlreadyProcessed) {
		log.Info("webhook replay ignored",
			zap.String("order_id", req.OrderID),
			zap.String("payment_id", req.PaymentID))
		return domain.ErrCallbackAlreadyProcessed
	}
	return err
}

// process records the callback exactly once, then commits the
// registration. A crash between the two leaves an unprocessed record that
// the next delivery resumes.
func (s *service) process(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error) {
	payload, _ := json.Marshal(req)
	now := s.clock.Now()

	record := &domain.CallbackRecord{
		ID:         s.genID.Generate(),
		Provider:   s.provider,
		OrderID:    req.OrderID,
		PaymentID:  req.PaymentID,
		EventID:    req.EventID,
		Payload:    datatypes.JSON(payload),
		ReceivedAt: now,
	}

	inserted, err := s.repo.InsertCallback(ctx, s.db, record)
	if err != nil {
		return nil, err
	}
	if !inserted {
		stored, err := s.repo.FindCallback(ctx, s.db, s.provider, req.OrderID, req.PaymentID)
		if err != nil {
			return nil, err
		}
		if stored == nil {
			return nil, domain.ErrInvalidCallback
		}
		if stored.ProcessedAt != nil {
			s.metrics.RecordPaymentCallback(ctx, s.provider, "replay")
			return nil, domain.ErrCallbackAlreadyProcessed
		}
		record = stored
	}

	result, err := s.registration.Register(ctx, regdomain.RegisterRequest{
		EventID:     req.EventID,
		Participant: req.Participant,
		Payment: regdomain.PaymentDetails{
			OrderID:   req.OrderID,
			PaymentID: req.PaymentID,
			Signature: req.Signature,
			Amount:    req.Amount,
			Currency:  req.Currency,
			PaidAt:    now,
		},
	})
	if err != nil {
		if errors.Is(err, regdomain.ErrDuplicateRegistration) {
			// The duplicate is settled; keep replays of this
			// callback from re-running the pipeline.
			if merr := s.repo.MarkProcessed(ctx, s.db, record.ID, s.clock.Now()); merr != nil {
				s.log.Error("failed to mark duplicate callback processed", zap.Error(merr))
			}
			s.metrics.RecordPaymentCallback(ctx, s.provider, "duplicate")
		}
		return nil, err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, record.ID, s.clock.Now()); err != nil {
		return nil, err
	}

	s.metrics.RecordPaymentCallback(ctx, s.provider, "verified")
	return &domain.VerifyResult{
		Participant:  result.Participant,
		TicketNumber: result.TicketNumber,
	}, nil
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID       string            `json:"id"`
				OrderID  string            `json:"order_id"`
				Amount   int64             `json:"amount"`
				Currency string            `json:"currency"`
				Email    string            `json:"email"`
				Contact  string            `json:"contact"`
				Notes    map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// parseWebhook extracts a registration request from a payment.captured
// event. Registration details travel in the order notes set at checkout.
func parseWebhook(payload []byte) (*domain.VerifyRequest, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, domain.ErrInvalidCallback
	}
	if envelope.Event != "payment.captured" {
		return nil, nil
	}

	entity := envelope.Payload.Payment.Entity
	if entity.ID == "" || entity.OrderID == "" {
		return nil, domain.ErrInvalidCallback
	}

	eventID, err := snowflake.ParseString(entity.Notes["event_id"])
	if err != nil {
		return nil, domain.ErrInvalidCallback
	}

	quantity, _ := strconv.Atoi(entity.Notes["quantity"])
	isVolunteer, _ := strconv.ParseBool(entity.Notes["is_volunteer"])

	email := entity.Email
	if v := entity.Notes["email"]; v != "" {
		email = v
	}

	return &domain.VerifyRequest{
		OrderID:   entity.OrderID,
		PaymentID: entity.ID,
		// Authenticated by the webhook signature over the whole body.
		Signature: "webhook",
		EventID:   eventID,
		Amount:    entity.Amount,
		Currency:  entity.Currency,
		Participant: regdomain.ParticipantData{
			Name:        entity.Notes["name"],
			Email:       email,
			Phone:       entity.Contact,
			TicketName:  entity.Notes["ticket_name"],
			Quantity:    quantity,
			IsVolunteer: isVolunteer,
			TshirtSize:  entity.Notes["tshirt_size"],
		},
	}, nil
}
