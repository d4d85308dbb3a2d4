package certificate

import (
	"go.uber.org/fx"

	"github.com/entrada-events/entrada/internal/certificate/repository"
	"github.com/entrada-events/entrada/internal/certificate/service"
)

var Module = fx.Module("certificate.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
