package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	eventdomain "github.com/entrada-events/entrada/internal/event/domain"
	regdomain "github.com/entrada-events/entrada/internal/registration/domain"
	"github.com/entrada-events/entrada/internal/ticket/domain"
)

type repo struct{}

func Provide() domain.Repository { return &repo{} }

func (r *repo) Insert(ctx context.Context, db *gorm.DB, t *domain.Ticket) error {
	return db.WithContext(ctx).Create(t).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, t *domain.Ticket) error {
	return db.WithContext(ctx).Save(t).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Ticket, error) {
	var t domain.Ticket
	err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, number string) (*domain.Ticket, error) {
	var t domain.Ticket
	err := db.WithContext(ctx).Where("ticket_number = ?", number).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repo) FindByParticipant(ctx context.Context, db *gorm.DB, participantID snowflake.ID) (*domain.Ticket, error) {
	var t domain.Ticket
	err := db.WithContext(ctx).Where("participant_id = ?", participantID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repo) MarkExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	ended := db.Model(&eventdomain.Event{}).Select("id").Where("ends_at < ?", now)
	res := db.WithContext(ctx).
		Model(&domain.Ticket{}).
		Where("status = ? AND event_id IN (?)", domain.StatusValid, ended).
		Updates(map[string]any{"status": domain.StatusExpired, "updated_at": now})
	return res.RowsAffected, res.Error
}

func (r *repo) FindUnticketed(ctx context.Context, db *gorm.DB, limit int) ([]regdomain.Participant, error) {
	var participants []regdomain.Participant
	err := db.WithContext(ctx).
		Where("id NOT IN (?)", db.Model(&domain.Ticket{}).Select("participant_id")).
		Where("transferred_out = ?", false).
		Order("created_at ASC").
		Limit(limit).
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}
