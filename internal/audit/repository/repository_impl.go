package repository

import (
	"context"

	"github.com/entrada-events/entrada/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req domain.ListAuditLogRequest, limit int) ([]domain.AuditLog, error) {
	query := db.WithContext(ctx).Model(&domain.AuditLog{})

	if req.Action != "" {
		query = query.Where("action = ?", req.Action)
	}
	if req.TargetType != "" {
		query = query.Where("target_type = ?", req.TargetType)
	}
	if req.TargetID != "" {
		query = query.Where("target_id = ?", req.TargetID)
	}
	if req.ActorType != "" {
		query = query.Where("actor_type = ?", req.ActorType)
	}
	if req.StartAt != nil {
		query = query.Where("created_at >= ?", *req.StartAt)
	}
	if req.EndAt != nil {
		query = query.Where("created_at <= ?", *req.EndAt)
	}

	var items []domain.AuditLog
	err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
