package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrNotFound             = errors.New("certificate: certificate_not_found")
	ErrTemplateNotFound     = errors.New("certificate: template_not_found")
	ErrInvalidTemplate      = errors.New("certificate: invalid_template")
	ErrEventNotEnded        = errors.New("certificate: event_not_ended")
	ErrEmailAlreadySent     = errors.New("certificate: email_already_sent")
	ErrNumberSpaceExhausted = errors.New("certificate: number_space_exhausted")
	ErrUnsupportedFormat    = errors.New("certificate: unsupported_format")
)

type RenderRequest struct {
	ParticipantID snowflake.ID
	// TemplateID selects a specific template; zero means the event's
	// default template, falling back to the built-in layout.
	TemplateID snowflake.ID
	// Force renders even if the event has not ended yet.
	Force bool
}

type CreateTemplateRequest struct {
	EventID        snowflake.ID `json:"event_id"`
	Name           string       `json:"name"`
	Variant        Variant      `json:"variant"`
	BodyHTML       string       `json:"body_html"`
	BackgroundPath string       `json:"background_path"`
	Boxes          []TextBox    `json:"boxes"`
	IsDefault      bool         `json:"is_default"`
}

type Service interface {
	Render(ctx context.Context, req RenderRequest) (*Certificate, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Certificate, error)
	DownloadPDF(ctx context.Context, id snowflake.ID) ([]byte, error)
	DownloadJPG(ctx context.Context, id snowflake.ID) ([]byte, error)
	Email(ctx context.Context, id snowflake.ID) error
	RetryUnsentEmails(ctx context.Context, limit int) (int, error)

	CreateTemplate(ctx context.Context, req CreateTemplateRequest) (*Template, error)
	GetTemplate(ctx context.Context, id snowflake.ID) (*Template, error)
	ListTemplates(ctx context.Context, eventID snowflake.ID) ([]Template, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, c *Certificate) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Certificate, error)
	FindByParticipant(ctx context.Context, db *gorm.DB, participantID snowflake.ID) (*Certificate, error)

	InsertTemplate(ctx context.Context, db *gorm.DB, t *Template) error
	FindTemplateByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Template, error)
	FindDefaultTemplate(ctx context.Context, db *gorm.DB, eventID snowflake.ID) (*Template, error)
	ListTemplates(ctx context.Context, db *gorm.DB, eventID snowflake.ID) ([]Template, error)

	FindUnsentCertificates(ctx context.Context, db *gorm.DB, limit int) ([]Certificate, error)
}
