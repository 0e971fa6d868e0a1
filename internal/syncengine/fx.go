package syncengine

import (
	jobdomain "github.com/smallbiznis/invosync/internal/jobqueue/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("syncengine",
	fx.Provide(
		New,
		func(e *Engine) jobdomain.Handler { return e },
	),
)
