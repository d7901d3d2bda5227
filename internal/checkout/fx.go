package checkout

import (
	checkoutdomain "github.com/smallbiznis/paygate/internal/checkout/domain"
	"github.com/smallbiznis/paygate/internal/checkout/repository"
	"github.com/smallbiznis/paygate/internal/checkout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout",
	fx.Provide(
		repository.Provide,
		fx.Annotate(service.NewService, fx.As(new(checkoutdomain.Service))),
	),
)
