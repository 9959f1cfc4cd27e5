package extractor

import "go.uber.org/fx"

var Module = fx.Module("providers.extractor",
	fx.Provide(NewAnthropicClient),
)
