package event

import (
	"github.com/entrada-events/entrada/internal/event/repository"
	"github.com/entrada-events/entrada/internal/event/service"
	"go.uber.org/fx"
)

var Module = fx.Module("event.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
