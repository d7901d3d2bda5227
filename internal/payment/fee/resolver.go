package fee

import (
	"context"

	processordomain "github.com/smallbiznis/paygate/internal/processor/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Client processordomain.Client
	Log    *zap.Logger
}

// Resolver determines the processor fee for a settled charge through an
// ordered fallback chain. The result is always in minor currency units.
type Resolver struct {
	client processordomain.Client
	log    *zap.Logger
}

func NewResolver(p Params) *Resolver {
	return &Resolver{
		client: p.Client,
		log:    p.Log.Named("payment.fee"),
	}
}

// Resolve walks the fallback chain: balance-transaction fee, then explicit
// application fee, then the captured-amount delta. First success wins;
// default is 0. A failed balance-transaction fetch falls through rather than
// failing the caller — fee extraction never blocks payment recording.
func (r *Resolver) Resolve(ctx context.Context, charge *processordomain.Charge) int64 {
	if charge == nil {
		return 0
	}

	if charge.BalanceTransactionID != "" {
		txn, err := r.client.RetrieveBalanceTransaction(ctx, charge.BalanceTransactionID)
		if err == nil && txn != nil {
			r.log.Debug("fee resolved from balance transaction",
				zap.String("charge_id", charge.ID),
				zap.String("balance_transaction_id", txn.ID),
				zap.Int64("fee_minor", txn.Fee),
			)
			return txn.Fee
		}
		r.log.Warn("balance transaction lookup failed, falling back",
			zap.String("charge_id", charge.ID),
			zap.String("balance_transaction_id", charge.BalanceTransactionID),
			zap.Error(err),
		)
	}

	if charge.ApplicationFeeAmount > 0 {
		r.log.Debug("fee resolved from application fee",
			zap.String("charge_id", charge.ID),
			zap.Int64("fee_minor", charge.ApplicationFeeAmount),
		)
		return charge.ApplicationFeeAmount
	}

	if delta := charge.Amount - charge.AmountCaptured; delta > 0 {
		r.log.Debug("fee resolved from captured-amount delta",
			zap.String("charge_id", charge.ID),
			zap.Int64("fee_minor", delta),
		)
		return delta
	}

	return 0
}
