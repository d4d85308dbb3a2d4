package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/entrada-events/entrada/internal/clock"
	"github.com/entrada-events/entrada/internal/event/domain"
	"github.com/entrada-events/entrada/pkg/db"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("event.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateEventRequest) (*domain.Event, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	organizer := strings.TrimSpace(req.OrganizerName)
	if organizer == "" {
		return nil, domain.ErrInvalidOrganizer
	}
	if req.StartsAt.IsZero() || req.EndsAt.IsZero() || req.EndsAt.Before(req.StartsAt) {
		return nil, domain.ErrInvalidSchedule
	}

	now := s.clock.Now()
	item := &domain.Event{
		ID:             s.genID.Generate(),
		Slug:           slug.Make(name),
		Name:           name,
		Description:    strings.TrimSpace(req.Description),
		VenueName:      strings.TrimSpace(req.VenueName),
		OrganizerName:  organizer,
		StartsAt:       req.StartsAt.UTC(),
		EndsAt:         req.EndsAt.UTC(),
		TicketTypes:    datatypes.NewJSONSlice(normalizeTicketTypes(req.TicketTypes)),
		IsTransferable: req.IsTransferable,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, s.db, item); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSlugTaken
		}
		return nil, err
	}
	return item, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Event, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) GetBySlug(ctx context.Context, raw string) (*domain.Event, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, domain.ErrNotFound
	}
	item, err := s.repo.FindBySlug(ctx, s.db, raw)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, filter domain.ListEventFilter) ([]domain.Event, error) {
	return s.repo.List(ctx, s.db, filter, s.clock.Now())
}

func normalizeTicketTypes(types []domain.TicketType) []domain.TicketType {
	out := make([]domain.TicketType, 0, len(types))
	for _, t := range types {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		currency := strings.ToUpper(strings.TrimSpace(t.Currency))
		if currency == "" {
			currency = "INR"
		}
		out = append(out, domain.TicketType{
			Name:     name,
			Price:    t.Price,
			Currency: currency,
			Quota:    t.Quota,
		})
	}
	return out
}
