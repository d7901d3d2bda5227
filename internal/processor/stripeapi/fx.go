package stripeapi

import (
	processordomain "github.com/smallbiznis/paygate/internal/processor/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("processor.stripe",
	fx.Provide(
		fx.Annotate(New, fx.As(new(processordomain.Client))),
	),
)
