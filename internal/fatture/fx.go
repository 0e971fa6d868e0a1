package fatture

import "go.uber.org/fx"

var Module = fx.Module("fatture",
	fx.Provide(NewHTTPClient),
)
