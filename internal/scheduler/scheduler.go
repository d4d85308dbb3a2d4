package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	auditdomain "github.com/entrada-events/entrada/internal/audit/domain"
	auditcontext "github.com/entrada-events/entrada/internal/auditcontext"
	certdomain "github.com/entrada-events/entrada/internal/certificate/domain"
	"github.com/entrada-events/entrada/internal/clock"
	ticketdomain "github.com/entrada-events/entrada/internal/ticket/domain"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	Log            *zap.Logger
	Clock          clock.Clock
	TicketSvc      ticketdomain.Service
	CertificateSvc certdomain.Service
	Config         Config `optional:"true"`
}

type Scheduler struct {
	log            *zap.Logger
	cfg            Config
	clock          clock.Clock
	ticketSvc      ticketdomain.Service
	certificateSvc certdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.TicketSvc == nil || p.CertificateSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:            p.Log,
		cfg:            p.Config.withDefaults(),
		clock:          p.Clock,
		ticketSvc:      p.TicketSvc,
		certificateSvc: p.CertificateSvc,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	start := s.clock.Now()

	err := fn(ctx)
	duration := time.Since(start)

	if err == nil {
		s.log.Debug("job finished",
			zap.String("job", name),
			zap.Duration("duration", duration))
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// ExpireTicketsJob flips valid tickets of ended events to expired.
func (s *Scheduler) ExpireTicketsJob(ctx context.Context) error {
	n, err := s.ticketSvc.MarkExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Info("expired tickets", zap.Int64("count", n))
	}
	return nil
}

// IssueMissingTicketsJob issues tickets for participants whose
// synchronous issuance failed.
func (s *Scheduler) IssueMissingTicketsJob(ctx context.Context) error {
	n, err := s.ticketSvc.IssueMissing(ctx, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Info("issued deferred tickets", zap.Int("count", n))
	}
	return nil
}

// CertificateEmailsJob re-sends certificate emails left undelivered.
func (s *Scheduler) CertificateEmailsJob(ctx context.Context) error {
	n, err := s.certificateSvc.RetryUnsentEmails(ctx, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Info("sent pending certificate emails", zap.Int("count", n))
	}
	return nil
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"expire_tickets", s.ExpireTicketsJob},
		{"issue_missing_tickets", s.IssueMissingTicketsJob},
		{"certificate_emails", s.CertificateEmailsJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(name string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if enabled == name {
			return true
		}
	}
	return false
}
