package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/entrada-events/entrada/internal/audit/domain"
	"github.com/entrada-events/entrada/internal/clock"
	eventdomain "github.com/entrada-events/entrada/internal/event/domain"
	"github.com/entrada-events/entrada/internal/observability/logger"
	"github.com/entrada-events/entrada/internal/observability/metrics"
	regdomain "github.com/entrada-events/entrada/internal/registration/domain"
	"github.com/entrada-events/entrada/internal/ticket/domain"
	"github.com/entrada-events/entrada/pkg/db"
)

// maxNumberAttempts bounds retries when a freshly generated ticket number
// collides with an existing one.
const maxNumberAttempts = 5

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	Participants regdomain.Repository
	Events       eventdomain.Service
	Audit        auditdomain.Service
	Metrics      *metrics.Metrics `optional:"true"`
}

type service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	participants regdomain.Repository
	events       eventdomain.Service
	audit        auditdomain.Service
	metrics      *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &service{
		db:           p.DB,
		log:          p.Log,
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		participants: p.Participants,
		events:       p.Events,
		audit:        p.Audit,
		metrics:      p.Metrics,
	}
}

func (s *service) Issue(ctx context.Context, participant *regdomain.Participant, event *eventdomain.Event) (*domain.Ticket, error) {
	if existing, err := s.repo.FindByParticipant(ctx, s.db, participant.ID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	now := s.clock.Now()
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		number, err := domain.NewNumber(now)
		if err != nil {
			return nil, err
		}
		ticket := &domain.Ticket{
			ID:            s.genID.Generate(),
			TicketNumber:  number,
			EventID:       event.ID,
			ParticipantID: participant.ID,
			HolderName:    participant.Name,
			HolderEmail:   participant.Email,
			TicketName:    participant.TicketName,
			Status:        domain.StatusValid,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		err = s.repo.Insert(ctx, s.db, ticket)
		if err == nil {
			s.metrics.RecordTicketIssued(ctx, event.ID.String())
			_ = s.audit.AuditLog(ctx, auditdomain.ActorTypeSystem, nil, "ticket.issued",
				"ticket", strPtr(ticket.ID.String()), map[string]any{
					"ticket_number":  number,
					"participant_id": participant.ID.String(),
					"event_id":       event.ID.String(),
				})
			return ticket, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		// The conflict may be the one-ticket-per-participant index
		// rather than the number; a concurrent issuer won that race.
		if existing, ferr := s.repo.FindByParticipant(ctx, s.db, participant.ID); ferr == nil && existing != nil {
			return existing, nil
		}
		s.log.Warn("ticket number collision, regenerating",
			zap.String("ticket_number", number),
			zap.Int("attempt", attempt+1))
	}
	return nil, domain.ErrNumberSpaceExhausted
}

func (s *service) Get(ctx context.Context, ref string) (*domain.Ticket, error) {
	ticket, err := s.find(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.withDerivedStatus(ctx, ticket)
}

func (s *service) CheckIn(ctx context.Context, ref string, staffID, location string) (*domain.CheckInResult, error) {
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return nil, domain.ErrInvalidStaff
	}
	location = strings.TrimSpace(location)

	ticket, err := s.find(ctx, ref)
	if err != nil {
		return nil, err
	}
	ticket, err = s.withDerivedStatus(ctx, ticket)
	if err != nil {
		return nil, err
	}

	switch ticket.Status {
	case domain.StatusCancelled:
		s.metrics.RecordCheckIn(ctx, "rejected_cancelled")
		return nil, domain.ErrTicketCancelled
	case domain.StatusExpired:
		s.metrics.RecordCheckIn(ctx, "rejected_expired")
		return nil, domain.ErrTicketExpired
	case domain.StatusUsed:
		if ticket.CheckedInBy != nil && *ticket.CheckedInBy == staffID {
			s.metrics.RecordCheckIn(ctx, "repeat")
			return &domain.CheckInResult{Ticket: ticket, Repeat: true}, nil
		}
		s.metrics.RecordCheckIn(ctx, "rejected_used")
		return nil, domain.ErrTicketAlreadyUsed
	}

	now := s.clock.Now()
	ticket.Status = domain.StatusUsed
	ticket.CheckedInAt = &now
	ticket.CheckedInBy = &staffID
	if location != "" {
		ticket.CheckedInLocation = &location
	}
	ticket.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, ticket); err != nil {
		return nil, err
	}

	s.metrics.RecordCheckIn(ctx, "admitted")
	_ = s.audit.AuditLog(ctx, auditdomain.ActorTypeStaff, &staffID, "ticket.checked_in",
		"ticket", strPtr(ticket.ID.String()), map[string]any{
			"ticket_number": ticket.TicketNumber,
		})
	return &domain.CheckInResult{Ticket: ticket}, nil
}

func (s *service) Cancel(ctx context.Context, ref string) (*domain.Ticket, error) {
	ticket, err := s.find(ctx, ref)
	if err != nil {
		return nil, err
	}

	switch ticket.Status {
	case domain.StatusCancelled:
		return ticket, nil
	case domain.StatusUsed:
		return nil, domain.ErrTicketAlreadyUsed
	}

	now := s.clock.Now()
	ticket.Status = domain.StatusCancelled
	ticket.CancelledAt = &now
	ticket.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, ticket); err != nil {
		return nil, err
	}

	_ = s.audit.AuditLog(ctx, auditdomain.ActorTypeSystem, nil, "ticket.cancelled",
		"ticket", strPtr(ticket.ID.String()), map[string]any{
			"ticket_number": ticket.TicketNumber,
		})
	return ticket, nil
}

func (s *service) Transfer(ctx context.Context, ref string, req domain.TransferRequest) (*domain.Ticket, error) {
	log := logger.WithContext(ctx, s.log)

	toName := strings.TrimSpace(req.ToName)
	toEmail := strings.ToLower(strings.TrimSpace(req.ToEmail))
	if toName == "" {
		return nil, domain.ErrInvalidTransferee
	}
	if _, err := mail.ParseAddress(toEmail); err != nil {
		return nil, domain.ErrInvalidTransferee
	}

	ticket, err := s.find(ctx, ref)
	if err != nil {
		return nil, err
	}
	ticket, err = s.withDerivedStatus(ctx, ticket)
	if err != nil {
		return nil, err
	}

	switch ticket.Status {
	case domain.StatusUsed:
		return nil, domain.ErrTicketAlreadyUsed
	case domain.StatusCancelled:
		return nil, domain.ErrTicketCancelled
	case domain.StatusExpired:
		return nil, domain.ErrTicketExpired
	}

	event, err := s.events.GetByID(ctx, ticket.EventID)
	if err != nil {
		return nil, err
	}
	if !event.IsTransferable {
		return nil, domain.ErrNotTransferable
	}

	transferor, err := s.participants.FindByID(ctx, s.db, ticket.ParticipantID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	transferee, err := s.transfereeParticipant(ctx, ticket, transferor, toName, toEmail, now)
	if err != nil {
		return nil, err
	}

	hop := domain.Transfer{
		FromName:  ticket.HolderName,
		FromEmail: ticket.HolderEmail,
		ToName:    toName,
		ToEmail:   toEmail,
		MovedAt:   now,
	}
	ticket.TransferHistory = append(ticket.TransferHistory, hop)
	ticket.ParticipantID = transferee.ID
	ticket.HolderName = toName
	ticket.HolderEmail = toEmail
	ticket.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, ticket); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrTransfereeHasTicket
		}
		return nil, err
	}

	if transferor != nil && !transferor.TransferredOut {
		transferor.TransferredOut = true
		transferor.UpdatedAt = now
		if err := s.participants.Update(ctx, s.db, transferor); err != nil {
			return nil, err
		}
	}

	log.Info("ticket transferred",
		zap.String("ticket_number", ticket.TicketNumber),
		zap.String("to_email", toEmail))
	_ = s.audit.AuditLog(ctx, auditdomain.ActorTypeSystem, nil, "ticket.transferred",
		"ticket", strPtr(ticket.ID.String()), map[string]any{
			"ticket_number":  ticket.TicketNumber,
			"from_email":     hop.FromEmail,
			"to_email":       toEmail,
			"participant_id": transferee.ID.String(),
		})
	return ticket, nil
}

// transfereeParticipant resolves the registration the ticket moves to,
// creating one when the transferee is not registered for the event. A
// transferee who already holds a ticket cannot receive a second one.
func (s *service) transfereeParticipant(ctx context.Context, ticket *domain.Ticket, transferor *regdomain.Participant, name, email string, now time.Time) (*regdomain.Participant, error) {
	existing, err := s.participants.FindByEventEmail(ctx, s.db, ticket.EventID, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		held, err := s.repo.FindByParticipant(ctx, s.db, existing.ID)
		if err != nil {
			return nil, err
		}
		if held != nil {
			return nil, domain.ErrTransfereeHasTicket
		}
		return existing, nil
	}

	transferee := &regdomain.Participant{
		ID:         s.genID.Generate(),
		EventID:    ticket.EventID,
		Email:      email,
		Name:       name,
		TicketName: ticket.TicketName,
		Verified:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if transferor != nil {
		transferee.TicketPrice = transferor.TicketPrice
		transferee.Quantity = transferor.Quantity
		transferee.Amount = transferor.Amount
		transferee.Currency = transferor.Currency
		transferee.PaymentID = transferor.PaymentID
		transferee.OrderID = transferor.OrderID
		transferee.Signature = transferor.Signature
		transferee.PaidAt = transferor.PaidAt
	}
	if err := s.participants.Insert(ctx, s.db, transferee); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Concurrent registration won; fall back to it.
			return s.transfereeParticipant(ctx, ticket, transferor, name, email, now)
		}
		return nil, err
	}
	return transferee, nil
}

func (s *service) MarkExpired(ctx context.Context) (int64, error) {
	return s.repo.MarkExpired(ctx, s.db, s.clock.Now())
}

func (s *service) IssueMissing(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	participants, err := s.repo.FindUnticketed(ctx, s.db, limit)
	if err != nil {
		return 0, err
	}

	issued := 0
	for i := range participants {
		p := &participants[i]
		event, err := s.events.GetByID(ctx, p.EventID)
		if err != nil {
			s.log.Warn("skipping unticketed participant, event lookup failed",
				zap.String("participant_id", p.ID.String()),
				zap.Error(err))
			continue
		}
		if _, err := s.Issue(ctx, p, event); err != nil {
			s.log.Error("deferred ticket issuance failed",
				zap.String("participant_id", p.ID.String()),
				zap.Error(err))
			continue
		}
		issued++
	}
	return issued, nil
}

// find resolves a ticket by snowflake ID or ticket number.
func (s *service) find(ctx context.Context, ref string) (*domain.Ticket, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domain.ErrNotFound
	}

	var (
		ticket *domain.Ticket
		err    error
	)
	if id, perr := snowflake.ParseString(ref); perr == nil && !strings.HasPrefix(ref, "TKT-") {
		ticket, err = s.repo.FindByID(ctx, s.db, id)
	} else {
		ticket, err = s.repo.FindByNumber(ctx, s.db, strings.ToUpper(ref))
	}
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, domain.ErrNotFound
	}
	return ticket, nil
}

// withDerivedStatus reports a valid ticket as expired once its event has
// ended. The persisted row is left to the background sweep.
func (s *service) withDerivedStatus(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	if ticket.Status != domain.StatusValid {
		return ticket, nil
	}
	event, err := s.events.GetByID(ctx, ticket.EventID)
	if errors.Is(err, eventdomain.ErrNotFound) {
		return ticket, nil
	}
	if err != nil {
		return nil, err
	}
	if event.Ended(s.clock.Now()) {
		derived := *ticket
		derived.Status = domain.StatusExpired
		return &derived, nil
	}
	return ticket, nil
}

func strPtr(s string) *string { return &s }
