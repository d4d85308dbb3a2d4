package ticket

import (
	"go.uber.org/fx"

	"github.com/entrada-events/entrada/internal/ticket/repository"
	"github.com/entrada-events/entrada/internal/ticket/service"
)

var Module = fx.Module("ticket.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
