package jpg

import "go.uber.org/fx"

var Module = fx.Module("providers.jpg",
	fx.Provide(New),
)
