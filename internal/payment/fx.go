package payment

import (
	"github.com/smallbiznis/paygate/internal/payment/fee"
	"github.com/smallbiznis/paygate/internal/payment/recorder"
	"github.com/smallbiznis/paygate/internal/payment/returnflow"
	"github.com/smallbiznis/paygate/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(
		fee.NewResolver,
		recorder.New,
		returnflow.New,
		webhook.New,
	),
)
