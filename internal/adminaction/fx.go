package adminaction

import (
	"github.com/smallbiznis/staybook/internal/adminaction/service"
	"go.uber.org/fx"
)

var Module = fx.Module("adminaction.service",
	fx.Provide(service.NewService),
)
