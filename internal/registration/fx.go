package registration

import (
	"go.uber.org/fx"

	"github.com/entrada-events/entrada/internal/registration/repository"
	"github.com/entrada-events/entrada/internal/registration/service"
)

var Module = fx.Module("registration.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
