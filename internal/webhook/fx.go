package webhook

import (
	"github.com/smallbiznis/invosync/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook",
	fx.Provide(service.New),
)
