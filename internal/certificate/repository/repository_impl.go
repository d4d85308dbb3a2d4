package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/entrada-events/entrada/internal/certificate/domain"
	regdomain "github.com/entrada-events/entrada/internal/registration/domain"
)

type repo struct{}

func Provide() domain.Repository { return &repo{} }

func (r *repo) Insert(ctx context.Context, db *gorm.DB, c *domain.Certificate) error {
	return db.WithContext(ctx).Create(c).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Certificate, error) {
	var c domain.Certificate
	err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repo) FindByParticipant(ctx context.Context, db *gorm.DB, participantID snowflake.ID) (*domain.Certificate, error) {
	var c domain.Certificate
	err := db.WithContext(ctx).Where("participant_id = ?", participantID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repo) InsertTemplate(ctx context.Context, db *gorm.DB, t *domain.Template) error {
	return db.WithContext(ctx).Create(t).Error
}

func (r *repo) FindTemplateByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Template, error) {
	var t domain.Template
	err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repo) FindDefaultTemplate(ctx context.Context, db *gorm.DB, eventID snowflake.ID) (*domain.Template, error) {
	var t domain.Template
	err := db.WithContext(ctx).
		Where("event_id = ? AND is_default = ?", eventID, true).
		Order("updated_at DESC").
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repo) ListTemplates(ctx context.Context, db *gorm.DB, eventID snowflake.ID) ([]domain.Template, error) {
	var templates []domain.Template
	err := db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at DESC").
		Find(&templates).Error
	if err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *repo) FindUnsentCertificates(ctx context.Context, db *gorm.DB, limit int) ([]domain.Certificate, error) {
	unsent := db.Model(&regdomain.Participant{}).
		Select("id").
		Where("certificate_generated = ? AND email_sent = ?", true, false)

	var certs []domain.Certificate
	err := db.WithContext(ctx).
		Where("participant_id IN (?)", unsent).
		Order("created_at ASC").
		Limit(limit).
		Find(&certs).Error
	if err != nil {
		return nil, err
	}
	return certs, nil
}
