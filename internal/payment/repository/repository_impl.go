package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/entrada-events/entrada/internal/payment/domain"
)

type repo struct{}

func Provide() domain.Repository { return &repo{} }

func (r *repo) InsertCallback(ctx context.Context, db *gorm.DB, record *domain.CallbackRecord) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "order_id"}, {Name: "payment_id"}},
			DoNothing: true,
		}).
		Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindCallback(ctx context.Context, db *gorm.DB, provider, orderID, paymentID string) (*domain.CallbackRecord, error) {
	var record domain.CallbackRecord
	err := db.WithContext(ctx).
		Where("provider = ? AND order_id = ? AND payment_id = ?", provider, orderID, paymentID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.CallbackRecord{}).
		Where("id = ?", id).
		Update("processed_at", processedAt).Error
}
