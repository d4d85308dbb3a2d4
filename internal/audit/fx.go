package audit

import (
	"github.com/entrada-events/entrada/internal/audit/repository"
	"github.com/entrada-events/entrada/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
