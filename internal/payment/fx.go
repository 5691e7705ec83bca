package payment

import (
	"github.com/smallbiznis/staybook/internal/config"
	"github.com/smallbiznis/staybook/internal/payment/adapters"
	"github.com/smallbiznis/staybook/internal/payment/adapters/stripe"
	"github.com/smallbiznis/staybook/internal/payment/repository"
	paymentservice "github.com/smallbiznis/staybook/internal/payment/service"
	"github.com/smallbiznis/staybook/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) *adapters.Registry {
		return adapters.NewRegistry(
			map[string]string{"stripe": cfg.Stripe.WebhookSecret},
			stripe.NewFactory(),
		)
	}),
	fx.Provide(stripe.NewClient),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
