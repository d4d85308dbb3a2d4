package payment

import (
	"go.uber.org/fx"

	"github.com/entrada-events/entrada/internal/config"
	"github.com/entrada-events/entrada/internal/payment/adapters/razorpay"
	"github.com/entrada-events/entrada/internal/payment/domain"
	"github.com/entrada-events/entrada/internal/payment/repository"
	"github.com/entrada-events/entrada/internal/payment/service"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(newAdapter),
	fx.Provide(func(a *razorpay.Adapter) domain.Verifier { return a }),
	fx.Provide(func(a *razorpay.Adapter) domain.OrderClient { return a }),
	fx.Provide(service.NewService),
)

func newAdapter(cfg config.Config) *razorpay.Adapter {
	opts := []razorpay.Option{}
	if cfg.Payment.OrdersBaseURL != "" {
		opts = append(opts, razorpay.WithBaseURL(cfg.Payment.OrdersBaseURL))
	}
	return razorpay.New(cfg.Payment.KeyID, cfg.Payment.KeySecret, cfg.Payment.WebhookSecret, opts...)
}
