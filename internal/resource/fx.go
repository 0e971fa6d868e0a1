package resource

import (
	"github.com/smallbiznis/invosync/internal/resource/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("resource",
	fx.Provide(repository.Provide),
)
