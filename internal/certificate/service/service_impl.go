package service

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	auditdomain "github.com/entrada-events/entrada/internal/audit/domain"
	"github.com/entrada-events/entrada/internal/certificate/domain"
	"github.com/entrada-events/entrada/internal/certificate/render"
	"github.com/entrada-events/entrada/internal/clock"
	eventdomain "github.com/entrada-events/entrada/internal/event/domain"
	"github.com/entrada-events/entrada/internal/observability/logger"
	"github.com/entrada-events/entrada/internal/observability/metrics"
	"github.com/entrada-events/entrada/internal/providers/email"
	"github.com/entrada-events/entrada/internal/providers/jpg"
	"github.com/entrada-events/entrada/internal/providers/pdf"
	regdomain "github.com/entrada-events/entrada/internal/registration/domain"
	"github.com/entrada-events/entrada/pkg/db"
)

const maxNumberAttempts = 5

// builtinBody is used when an event has no template of its own.
const builtinBody = `<h1>Certificate of Participation</h1>
<p>This certifies that {{ participant_name }} participated in {{ event_name }}</p>
<p>held on {{ event_date }}</p>
<p>{{ certificate_number }}</p>
<p>{{ organizer_name }}</p>`

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
	Email        email.Provider
	PDF          pdf.Provider
	JPG          *jpg.Renderer
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
	email        email.Provider
	pdf          pdf.Provider
	jpg          *jpg.Renderer
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
		email:        p.Email,
		pdf:          p.PDF,
		jpg:          p.JPG,
		metrics:      p.Metrics,
	}
}

func (s *service) Render(ctx context.Context, req domain.RenderRequest) (*domain.Certificate, error) {
	log := logger.WithContext(ctx, s.log)

	participant, err := s.participants.FindByID(ctx, s.db, req.ParticipantID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, regdomain.ErrNotFound
	}

	// Issued once per participant. Repeat requests return the stored row.
	if participant.CertificateGenerated {
		existing, err := s.repo.FindByParticipant(ctx, s.db, participant.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		// Flag set but row missing, fall through and render again.
		log.Warn("participant flagged as certified but certificate row missing, re-rendering",
			zap.String("participant_id", participant.ID.String()))
	}

	event, err := s.events.GetByID(ctx, participant.EventID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !event.Ended(now) && !req.Force {
		return nil, domain.ErrEventNotEnded
	}

	tmpl, err := s.resolveTemplate(ctx, req.TemplateID, event.ID)
	if err != nil {
		return nil, err
	}

	fields := certificateFields(participant, event)

	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		number, err := domain.NewNumber(now)
		if err != nil {
			return nil, err
		}
		fields["certificate_number"] = number

		cert := &domain.Certificate{
			ID:                s.genID.Generate(),
			CertificateNumber: number,
			ParticipantID:     participant.ID,
			EventID:           event.ID,
			TemplateID:        tmpl.ID,
			Variant:           tmpl.Variant,
			RecipientName:     participant.Name,
			EventName:         event.Name,
			RenderedHTML:      render.Substitute(tmpl.BodyHTML, fields),
			IssuedAt:          now,
			CreatedAt:         now,
			UpdatedAt:         now,
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.repo.Insert(ctx, tx, cert); err != nil {
				return err
			}
			return tx.Model(&regdomain.Participant{}).
				Where("id = ?", participant.ID).
				Updates(map[string]any{
					"certificate_generated": true,
					"certificate_id":        cert.ID,
					"updated_at":            now,
				}).Error
		})
		if err == nil {
			s.metrics.RecordCertificateIssued(ctx, string(cert.Variant))
			_ = s.audit.AuditLog(ctx, auditdomain.ActorTypeSystem, nil, "certificate.issued",
				"certificate", strPtr(cert.ID.String()), map[string]any{
					"certificate_number": number,
					"participant_id":     participant.ID.String(),
					"event_id":           event.ID.String(),
				})
			return cert, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		// Either the number collided or a concurrent render won the
		// per-participant index.
		if existing, ferr := s.repo.FindByParticipant(ctx, s.db, participant.ID); ferr == nil && existing != nil {
			return existing, nil
		}
		log.Warn("certificate number collision, regenerating",
			zap.String("certificate_number", number),
			zap.Int("attempt", attempt+1))
	}
	return nil, domain.ErrNumberSpaceExhausted
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Certificate, error) {
	cert, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, domain.ErrNotFound
	}
	return cert, nil
}

func (s *service) DownloadPDF(ctx context.Context, id snowflake.ID) ([]byte, error) {
	cert, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := s.certificateData(ctx, cert)
	if err != nil {
		return nil, err
	}
	reader, err := s.pdf.GenerateCertificate(ctx, data)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(reader)
}

func (s *service) DownloadJPG(ctx context.Context, id snowflake.ID) ([]byte, error) {
	cert, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := s.certificateData(ctx, cert)
	if err != nil {
		return nil, err
	}

	background := ""
	var boxes []jpg.Box
	if cert.Variant == domain.VariantImage {
		tmpl, err := s.repo.FindTemplateByID(ctx, s.db, cert.TemplateID)
		if err != nil {
			return nil, err
		}
		if tmpl != nil {
			background = tmpl.BackgroundPath
			boxes = resolveBoxes(tmpl.Boxes, data)
		}
	}
	return s.jpg.Render(ctx, data, background, boxes)
}

func (s *service) Email(ctx context.Context, id snowflake.ID) error {
	cert, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	participant, err := s.participants.FindByID(ctx, s.db, cert.ParticipantID)
	if err != nil {
		return err
	}
	if participant == nil {
		return regdomain.ErrNotFound
	}
	if participant.EmailSent {
		return domain.ErrEmailAlreadySent
	}
	return s.send(ctx, cert, participant)
}

func (s *service) RetryUnsentEmails(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	certs, err := s.repo.FindUnsentCertificates(ctx, s.db, limit)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range certs {
		cert := &certs[i]
		participant, err := s.participants.FindByID(ctx, s.db, cert.ParticipantID)
		if err != nil || participant == nil {
			continue
		}
		if err := s.send(ctx, cert, participant); err != nil {
			s.log.Error("certificate email retry failed",
				zap.String("certificate_id", cert.ID.String()),
				zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *service) CreateTemplate(ctx context.Context, req domain.CreateTemplateRequest) (*domain.Template, error) {
	if _, err := s.events.GetByID(ctx, req.EventID); err != nil {
		return nil, err
	}

	variant := req.Variant
	if variant == "" {
		variant = domain.VariantHTML
	}
	switch variant {
	case domain.VariantHTML:
		if strings.TrimSpace(req.BodyHTML) == "" {
			return nil, domain.ErrInvalidTemplate
		}
	case domain.VariantImage:
		if strings.TrimSpace(req.BackgroundPath) == "" {
			return nil, domain.ErrInvalidTemplate
		}
	default:
		return nil, domain.ErrInvalidTemplate
	}

	now := s.clock.Now()
	tmpl := &domain.Template{
		ID:             s.genID.Generate(),
		EventID:        req.EventID,
		Name:           strings.TrimSpace(req.Name),
		Variant:        variant,
		BodyHTML:       req.BodyHTML,
		BackgroundPath: req.BackgroundPath,
		Boxes:          datatypes.NewJSONSlice(req.Boxes),
		IsDefault:      req.IsDefault,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if tmpl.Name == "" {
		tmpl.Name = fmt.Sprintf("template-%s", tmpl.ID)
	}
	if err := s.repo.InsertTemplate(ctx, s.db, tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

func (s *service) GetTemplate(ctx context.Context, id snowflake.ID) (*domain.Template, error) {
	tmpl, err := s.repo.FindTemplateByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, domain.ErrTemplateNotFound
	}
	return tmpl, nil
}

func (s *service) ListTemplates(ctx context.Context, eventID snowflake.ID) ([]domain.Template, error) {
	return s.repo.ListTemplates(ctx, s.db, eventID)
}

func (s *service) send(ctx context.Context, cert *domain.Certificate, participant *regdomain.Participant) error {
	pdfBytes, err := s.DownloadPDF(ctx, cert.ID)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Your certificate for %s", cert.EventName)
	body := fmt.Sprintf(
		"<p>Dear %s,</p><p>Thank you for attending %s. Your certificate %s is attached.</p>",
		participant.Name, cert.EventName, cert.CertificateNumber)

	err = s.email.Send(ctx, []string{participant.Email}, subject, body, email.Attachment{
		Filename:    cert.CertificateNumber + ".pdf",
		ContentType: "application/pdf",
		Data:        pdfBytes,
	})
	if err != nil {
		s.metrics.RecordEmailSent(ctx, "certificate", "failed")
		return err
	}

	now := s.clock.Now()
	uerr := s.db.WithContext(ctx).Model(&regdomain.Participant{}).
		Where("id = ?", participant.ID).
		Updates(map[string]any{
			"email_sent":    true,
			"email_sent_at": now,
			"updated_at":    now,
		}).Error
	if uerr != nil {
		// Delivery happened, only bookkeeping failed. The retry sweep
		// may re-send; acceptable over losing certificates.
		s.log.Error("failed to mark certificate email as sent",
			zap.String("participant_id", participant.ID.String()),
			zap.Error(uerr))
	}

	s.metrics.RecordEmailSent(ctx, "certificate", "sent")
	_ = s.audit.AuditLog(ctx, auditdomain.ActorTypeSystem, nil, "certificate.emailed",
		"certificate", strPtr(cert.ID.String()), map[string]any{
			"certificate_number": cert.CertificateNumber,
			"recipient":          participant.Email,
		})
	return nil
}

func (s *service) resolveTemplate(ctx context.Context, templateID, eventID snowflake.ID) (*domain.Template, error) {
	if templateID != 0 {
		tmpl, err := s.repo.FindTemplateByID(ctx, s.db, templateID)
		if err != nil {
			return nil, err
		}
		if tmpl == nil {
			return nil, domain.ErrTemplateNotFound
		}
		if tmpl.EventID != eventID {
			return nil, domain.ErrInvalidTemplate
		}
		return tmpl, nil
	}

	tmpl, err := s.repo.FindDefaultTemplate(ctx, s.db, eventID)
	if err != nil {
		return nil, err
	}
	if tmpl != nil {
		return tmpl, nil
	}
	return &domain.Template{
		Variant:  domain.VariantHTML,
		BodyHTML: builtinBody,
	}, nil
}

func (s *service) certificateData(ctx context.Context, cert *domain.Certificate) (pdf.CertificateData, error) {
	data := pdf.CertificateData{
		CertificateNumber: cert.CertificateNumber,
		RecipientName:     cert.RecipientName,
		EventName:         cert.EventName,
	}
	event, err := s.events.GetByID(ctx, cert.EventID)
	if err == nil {
		data.EventDate = formatEventDate(event.StartsAt)
		data.VenueName = event.VenueName
		data.OrganizerName = event.OrganizerName
	}
	if cert.Variant == domain.VariantHTML {
		data.Body = stripTags(cert.RenderedHTML)
	}
	return data, nil
}

func certificateFields(p *regdomain.Participant, e *eventdomain.Event) map[string]string {
	return map[string]string{
		"participant_name":  p.Name,
		"participant_email": p.Email,
		"ticket_name":       p.TicketName,
		"event_name":        e.Name,
		"event_date":        formatEventDate(e.StartsAt),
		"venue_name":        e.VenueName,
		"organizer_name":    e.OrganizerName,
	}
}

func resolveBoxes(boxes []domain.TextBox, data pdf.CertificateData) []jpg.Box {
	fields := map[string]string{
		"participant_name":   data.RecipientName,
		"event_name":         data.EventName,
		"event_date":         data.EventDate,
		"venue_name":         data.VenueName,
		"organizer_name":     data.OrganizerName,
		"certificate_number": data.CertificateNumber,
	}
	out := make([]jpg.Box, 0, len(boxes))
	for _, b := range boxes {
		text, ok := fields[strings.ToLower(b.Field)]
		if !ok {
			continue
		}
		out = append(out, jpg.Box{
			Text:     text,
			X:        b.X,
			Y:        b.Y,
			Size:     b.Size,
			Font:     b.Font,
			Color:    b.Color,
			Align:    b.Align,
			Rotation: b.Rotation,
		})
	}
	return out
}

func formatEventDate(t time.Time) string {
	return t.Format("2 January 2006")
}

var (
	brRe  = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</h[1-6]>`)
	tagRe = regexp.MustCompile(`<[^>]*>`)
)

// stripTags flattens rendered HTML into the plain lines the PDF layout
// draws.
func stripTags(html string) string {
	text := brRe.ReplaceAllString(html, "\n")
	text = tagRe.ReplaceAllString(text, "")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func strPtr(s string) *string { return &s }
