package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	certdomain "github.com/entrada-events/entrada/internal/certificate/domain"
	"github.com/entrada-events/entrada/internal/clock"
	eventdomain "github.com/entrada-events/entrada/internal/event/domain"
	regdomain "github.com/entrada-events/entrada/internal/registration/domain"
	"github.com/entrada-events/entrada/internal/scheduler"
	ticketdomain "github.com/entrada-events/entrada/internal/ticket/domain"
)

type fakeTicketService struct {
	expired     int
	issued      int
	expireErr   error
	issueErr    error
	markExpired int64
}

func (f *fakeTicketService) Issue(ctx context.Context, p *regdomain.Participant, e *eventdomain.Event) (*ticketdomain.Ticket, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTicketService) Get(ctx context.Context, ref string) (*ticketdomain.Ticket, error) {
	return nil, ticketdomain.ErrNotFound
}

func (f *fakeTicketService) CheckIn(ctx context.Context, ref string, staffID, location string) (*ticketdomain.CheckInResult, error) {
	return nil, ticketdomain.ErrNotFound
}

func (f *fakeTicketService) Cancel(ctx context.Context, ref string) (*ticketdomain.Ticket, error) {
	return nil, ticketdomain.ErrNotFound
}

func (f *fakeTicketService) Transfer(ctx context.Context, ref string, req ticketdomain.TransferRequest) (*ticketdomain.Ticket, error) {
	return nil, ticketdomain.ErrNotFound
}

func (f *fakeTicketService) MarkExpired(ctx context.Context) (int64, error) {
	f.expired++
	return f.markExpired, f.expireErr
}

func (f *fakeTicketService) IssueMissing(ctx context.Context, limit int) (int, error) {
	f.issued++
	return 0, f.issueErr
}

type fakeCertificateService struct {
	retried  int
	retryErr error
}

func (f *fakeCertificateService) Render(ctx context.Context, req certdomain.RenderRequest) (*certdomain.Certificate, error) {
	return nil, certdomain.ErrNotFound
}

func (f *fakeCertificateService) GetByID(ctx context.Context, id snowflake.ID) (*certdomain.Certificate, error) {
	return nil, certdomain.ErrNotFound
}

func (f *fakeCertificateService) DownloadPDF(ctx context.Context, id snowflake.ID) ([]byte, error) {
	return nil, certdomain.ErrNotFound
}

func (f *fakeCertificateService) DownloadJPG(ctx context.Context, id snowflake.ID) ([]byte, error) {
	return nil, certdomain.ErrNotFound
}

func (f *fakeCertificateService) Email(ctx context.Context, id snowflake.ID) error {
	return certdomain.ErrNotFound
}

func (f *fakeCertificateService) RetryUnsentEmails(ctx context.Context, limit int) (int, error) {
	f.retried++
	return 0, f.retryErr
}

func (f *fakeCertificateService) CreateTemplate(ctx context.Context, req certdomain.CreateTemplateRequest) (*certdomain.Template, error) {
	return nil, certdomain.ErrInvalidTemplate
}

func (f *fakeCertificateService) GetTemplate(ctx context.Context, id snowflake.ID) (*certdomain.Template, error) {
	return nil, certdomain.ErrTemplateNotFound
}

func (f *fakeCertificateService) ListTemplates(ctx context.Context, eventID snowflake.ID) ([]certdomain.Template, error) {
	return nil, nil
}

func newScheduler(t *testing.T, tickets *fakeTicketService, certs *fakeCertificateService, cfg scheduler.Config) *scheduler.Scheduler {
	t.Helper()

	s, err := scheduler.New(scheduler.Params{
		Log:            zap.NewNop(),
		Clock:          clock.NewFakeClock(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)),
		TicketSvc:      tickets,
		CertificateSvc: certs,
		Config:         cfg,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func TestRunOnceRunsAllJobs(t *testing.T) {
	tickets := &fakeTicketService{markExpired: 3}
	certs := &fakeCertificateService{}
	s := newScheduler(t, tickets, certs, scheduler.Config{})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if tickets.expired != 1 || tickets.issued != 1 || certs.retried != 1 {
		t.Fatalf("expected every job to run once, got expire=%d issue=%d retry=%d",
			tickets.expired, tickets.issued, certs.retried)
	}
}

func TestRunOnceHonorsJobFilter(t *testing.T) {
	tickets := &fakeTicketService{}
	certs := &fakeCertificateService{}
	s := newScheduler(t, tickets, certs, scheduler.Config{EnabledJobs: []string{"expire_tickets"}})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if tickets.expired != 1 {
		t.Fatalf("expected enabled job to run, got %d", tickets.expired)
	}
	if tickets.issued != 0 || certs.retried != 0 {
		t.Fatalf("expected disabled jobs to be skipped, got issue=%d retry=%d", tickets.issued, certs.retried)
	}
}

func TestRunOnceAggregatesFailures(t *testing.T) {
	sweepErr := errors.New("db gone")
	tickets := &fakeTicketService{expireErr: sweepErr}
	certs := &fakeCertificateService{}
	s := newScheduler(t, tickets, certs, scheduler.Config{})

	err := s.RunOnce(context.Background())
	if !errors.Is(err, sweepErr) {
		t.Fatalf("expected sweep error surfaced, got %v", err)
	}
	// A failing job must not stop the remaining jobs.
	if tickets.issued != 1 || certs.retried != 1 {
		t.Fatalf("expected later jobs to run, got issue=%d retry=%d", tickets.issued, certs.retried)
	}
}

func TestRunOnceSwallowsTimeouts(t *testing.T) {
	tickets := &fakeTicketService{expireErr: context.DeadlineExceeded}
	certs := &fakeCertificateService{}
	s := newScheduler(t, tickets, certs, scheduler.Config{})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected timeout to be logged not surfaced, got %v", err)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := scheduler.New(scheduler.Params{Log: zap.NewNop()})
	if !errors.Is(err, scheduler.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
