package recorder

import (
	"context"
	"errors"

	ledgerdomain "github.com/smallbiznis/paygate/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/paygate/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/paygate/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Outcome reports whether a recording attempt wrote a new ledger entry.
type Outcome string

const (
	OutcomeRecorded        Outcome = "recorded"
	OutcomeAlreadyRecorded Outcome = "already_recorded"
)

type Params struct {
	fx.In

	Ledger     ledgerdomain.Ledger
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Recorder turns a verified payment fact into an idempotent ledger write.
// Both entry flows converge here; the ledger's (invoice, transaction)
// uniqueness constraint is the arbiter under concurrent delivery.
type Recorder struct {
	ledger     ledgerdomain.Ledger
	log        *zap.Logger
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) *Recorder {
	return &Recorder{
		ledger:     p.Ledger,
		log:        p.Log.Named("payment.recorder"),
		obsMetrics: p.ObsMetrics,
	}
}

// Record writes one payment entry for (invoiceID, transactionID). Amounts
// arrive in minor units and cross the ledger boundary as decimal. A
// concurrent insert losing the uniqueness race is an expected outcome, not an
// error.
func (r *Recorder) Record(ctx context.Context, event *paymentdomain.PaymentEvent, gateway string) (Outcome, error) {
	if event == nil || event.InvoiceID == 0 || event.PaymentIntentID == "" {
		return "", ledgerdomain.ErrInvoiceNotFound
	}

	exists, err := r.ledger.PaymentAlreadyRecorded(ctx, event.InvoiceID, event.PaymentIntentID)
	if err != nil {
		return "", err
	}
	if exists {
		r.logDuplicate(event)
		return OutcomeAlreadyRecorded, nil
	}

	amount := float64(event.AmountMinor) / 100
	fee := float64(event.FeeMinor) / 100

	err = r.ledger.RecordPayment(ctx, event.InvoiceID, event.PaymentIntentID, amount, fee, gateway)
	if errors.Is(err, ledgerdomain.ErrDuplicatePayment) {
		r.logDuplicate(event)
		return OutcomeAlreadyRecorded, nil
	}
	if err != nil {
		r.log.Error("ledger write failed",
			zap.Int64("invoice_id", event.InvoiceID),
			zap.String("transaction_id", event.PaymentIntentID),
			zap.Error(err),
		)
		return "", err
	}

	r.log.Info("payment recorded",
		zap.Int64("invoice_id", event.InvoiceID),
		zap.String("transaction_id", event.PaymentIntentID),
		zap.Int64("amount_minor", event.AmountMinor),
		zap.Int64("fee_minor", event.FeeMinor),
		zap.String("currency", event.Currency),
		zap.String("source", string(event.Source)),
	)
	r.obsMetrics.RecordPayment(string(event.Source))
	return OutcomeRecorded, nil
}

func (r *Recorder) logDuplicate(event *paymentdomain.PaymentEvent) {
	r.log.Info("payment already recorded, skipping",
		zap.Int64("invoice_id", event.InvoiceID),
		zap.String("transaction_id", event.PaymentIntentID),
		zap.String("source", string(event.Source)),
	)
	r.obsMetrics.RecordDuplicateSuppressed(string(event.Source))
}
