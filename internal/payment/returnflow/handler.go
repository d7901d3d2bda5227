package returnflow

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/smallbiznis/paygate/internal/config"
	ledgerdomain "github.com/smallbiznis/paygate/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/paygate/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/paygate/internal/payment/domain"
	"github.com/smallbiznis/paygate/internal/payment/fee"
	"github.com/smallbiznis/paygate/internal/payment/recorder"
	processordomain "github.com/smallbiznis/paygate/internal/processor/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type Params struct {
	fx.In

	Config     config.Config
	Client     processordomain.Client
	Ledger     ledgerdomain.Ledger
	Fee        *fee.Resolver
	Recorder   *recorder.Recorder
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Handler drives the browser return flow after hosted checkout. It trusts
// nothing from the query string: the session and its payment intent are
// re-fetched from the processor before any ledger write.
type Handler struct {
	cfg        config.Config
	client     processordomain.Client
	ledger     ledgerdomain.Ledger
	fee        *fee.Resolver
	recorder   *recorder.Recorder
	log        *zap.Logger
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) *Handler {
	return &Handler{
		cfg:        p.Config,
		client:     p.Client,
		ledger:     p.Ledger,
		fee:        p.Fee,
		recorder:   p.Recorder,
		log:        p.Log.Named("payment.returnflow"),
		obsMetrics: p.ObsMetrics,
	}
}

// HandleReturn resolves one return-flow invocation to exactly one redirect:
// success with a newly verified payment, success for an already-paid invoice,
// or the cart error page.
func (h *Handler) HandleReturn(ctx context.Context, invoiceID int64, sessionID string) paymentdomain.RedirectOutcome {
	if invoiceID == 0 || !sessionIDPattern.MatchString(sessionID) {
		h.log.Warn("malformed return parameters",
			zap.Int64("invoice_id", invoiceID),
			zap.String("session_id", sessionID),
		)
		return h.reject(paymentdomain.RejectMalformedInput)
	}

	status, err := h.ledger.InvoiceStatus(ctx, invoiceID)
	if errors.Is(err, ledgerdomain.ErrInvoiceNotFound) {
		h.log.Warn("return for unknown invoice", zap.Int64("invoice_id", invoiceID))
		return h.reject(paymentdomain.RejectMalformedInput)
	}
	if err != nil {
		h.log.Error("invoice status lookup failed", zap.Int64("invoice_id", invoiceID), zap.Error(err))
		return h.reject(paymentdomain.RejectAPIError)
	}
	if status == ledgerdomain.InvoiceStatusPaid {
		h.log.Info("invoice already paid, skipping verification",
			zap.Int64("invoice_id", invoiceID),
			zap.String("session_id", sessionID),
		)
		return paymentdomain.RedirectOutcome{Location: h.invoiceURL(invoiceID)}
	}

	session, err := h.client.RetrieveSession(ctx, sessionID)
	if err != nil {
		h.obsMetrics.RecordProcessorAPIError()
		h.log.Error("session retrieval failed",
			zap.Int64("invoice_id", invoiceID),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return h.reject(paymentdomain.RejectAPIError)
	}
	if session.PaymentStatus != processordomain.SessionPaymentStatusPaid || session.PaymentIntentID == "" {
		h.log.Warn("session not paid",
			zap.Int64("invoice_id", invoiceID),
			zap.String("session_id", sessionID),
			zap.String("payment_status", session.PaymentStatus),
		)
		return h.reject(paymentdomain.RejectPaymentNotCompleted)
	}

	intent, err := h.client.RetrievePaymentIntent(ctx, session.PaymentIntentID)
	if err != nil {
		h.obsMetrics.RecordProcessorAPIError()
		h.log.Error("payment intent retrieval failed",
			zap.Int64("invoice_id", invoiceID),
			zap.String("payment_intent_id", session.PaymentIntentID),
			zap.Error(err),
		)
		return h.reject(paymentdomain.RejectAPIError)
	}
	if intent.Status != processordomain.IntentStatusSucceeded {
		h.log.Warn("payment intent not succeeded",
			zap.Int64("invoice_id", invoiceID),
			zap.String("payment_intent_id", intent.ID),
			zap.String("status", intent.Status),
		)
		return h.reject(paymentdomain.RejectPaymentNotSucceeded)
	}

	event := &paymentdomain.PaymentEvent{
		Source:          paymentdomain.SourceReturn,
		SessionID:       sessionID,
		PaymentIntentID: intent.ID,
		InvoiceID:       invoiceID,
		AmountMinor:     intent.AmountReceived,
		FeeMinor:        h.fee.Resolve(ctx, intent.LatestCharge),
		Currency:        intent.Currency,
	}
	if _, err := h.recorder.Record(ctx, event, h.cfg.GatewayName); err != nil {
		return h.reject(paymentdomain.RejectAPIError)
	}

	return paymentdomain.RedirectOutcome{Location: h.invoiceURL(invoiceID) + "?paymentsuccess=1"}
}

func (h *Handler) invoiceURL(invoiceID int64) string {
	return fmt.Sprintf("%s/invoices/%d", h.cfg.BaseURL, invoiceID)
}

func (h *Handler) reject(reason string) paymentdomain.RedirectOutcome {
	return paymentdomain.RedirectOutcome{
		Location: h.cfg.BaseURL + "/cart?action=view&paymenterror=1",
		Reason:   reason,
	}
}
