package account

import (
	"github.com/smallbiznis/invosync/internal/account/repository"
	"github.com/smallbiznis/invosync/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
