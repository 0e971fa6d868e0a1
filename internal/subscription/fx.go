package subscription

import (
	"github.com/smallbiznis/invosync/internal/subscription/repository"
	"github.com/smallbiznis/invosync/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
