package reconciliation

import (
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/staybook/internal/reconciliation/domain"
	"github.com/smallbiznis/staybook/internal/reconciliation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciliation.service",
	fx.Provide(
		fx.Annotate(
			service.NewEngine,
			fx.As(new(reconciliationdomain.Service)),
			fx.As(new(paymentdomain.EventHandler)),
		),
	),
)
