package notification

import (
	"github.com/smallbiznis/staybook/internal/notification/repository"
	"github.com/smallbiznis/staybook/internal/notification/service"
	"github.com/smallbiznis/staybook/internal/notification/sideeffect"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(sideeffect.New),
)
