package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/smallbiznis/paygate/internal/clock"
	"github.com/smallbiznis/paygate/internal/config"
	obsmetrics "github.com/smallbiznis/paygate/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/paygate/internal/payment/domain"
	"github.com/smallbiznis/paygate/internal/payment/fee"
	"github.com/smallbiznis/paygate/internal/payment/recorder"
	"github.com/smallbiznis/paygate/internal/payment/signature"
	processordomain "github.com/smallbiznis/paygate/internal/processor/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
)

// Ack is the HTTP answer for one webhook delivery. A non-2xx status is
// returned only for transport problems (missing secret, bad signature,
// unreadable payload); business failures after verification always
// acknowledge so the processor does not redeliver.
type Ack struct {
	StatusCode int
	Reason     string
}

func (a Ack) Accepted() bool { return a.StatusCode == http.StatusOK }

type Params struct {
	fx.In

	Config     config.Config
	Clock      clock.Clock
	Client     processordomain.Client
	Fee        *fee.Resolver
	Recorder   *recorder.Recorder
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Handler struct {
	cfg        config.Config
	clock      clock.Clock
	client     processordomain.Client
	fee        *fee.Resolver
	recorder   *recorder.Recorder
	log        *zap.Logger
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) *Handler {
	return &Handler{
		cfg:        p.Config,
		clock:      p.Clock,
		client:     p.Client,
		fee:        p.Fee,
		recorder:   p.Recorder,
		log:        p.Log.Named("payment.webhook"),
		obsMetrics: p.ObsMetrics,
	}
}

// stripeEvent is the envelope shared by every event type; the payload object
// is decoded per type after dispatch.
type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type sessionPayload struct {
	ID            string            `json:"id"`
	PaymentStatus string            `json:"payment_status"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

type intentPayload struct {
	ID             string            `json:"id"`
	Status         string            `json:"status"`
	Amount         int64             `json:"amount"`
	AmountReceived int64             `json:"amount_received"`
	Currency       string            `json:"currency"`
	Metadata       map[string]string `json:"metadata"`
	LatestCharge   json.RawMessage   `json:"latest_charge"`
}

type chargePayload struct {
	ID                   string          `json:"id"`
	Amount               int64           `json:"amount"`
	AmountCaptured       int64           `json:"amount_captured"`
	ApplicationFeeAmount int64           `json:"application_fee_amount"`
	BalanceTransaction   json.RawMessage `json:"balance_transaction"`
}

// HandleWebhook verifies one delivery and, for the event types that carry a
// settled payment, records it against the invoice ledger.
func (h *Handler) HandleWebhook(ctx context.Context, rawBody []byte, sigHeader string) Ack {
	if h.cfg.StripeWebhookSecret == "" {
		h.log.Error("webhook secret not configured")
		return h.reject(http.StatusBadRequest, paymentdomain.ErrMissingSecret)
	}

	if err := signature.Verify(rawBody, sigHeader, h.cfg.StripeWebhookSecret, h.clock.Now()); err != nil {
		h.log.Warn("signature verification failed", zap.Error(err))
		if errors.Is(err, paymentdomain.ErrBadSignature) {
			return h.reject(http.StatusForbidden, err)
		}
		return h.reject(http.StatusBadRequest, err)
	}

	var event stripeEvent
	if err := json.Unmarshal(rawBody, &event); err != nil || event.Type == "" {
		h.log.Warn("undecodable event payload", zap.Error(err))
		return h.reject(http.StatusBadRequest, paymentdomain.ErrInvalidPayload)
	}

	h.obsMetrics.RecordWebhookEvent(event.Type)
	log := h.log.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	switch event.Type {
	case EventCheckoutSessionCompleted:
		h.handleSessionCompleted(ctx, log, event.Data.Object)
	case EventPaymentIntentSucceeded:
		h.handleIntentSucceeded(ctx, log, event.Data.Object)
	default:
		log.Debug("ignoring event type")
	}
	return Ack{StatusCode: http.StatusOK}
}

// handleSessionCompleted does not trust the session's embedded amounts: the
// payment intent is re-fetched from the processor before recording.
func (h *Handler) handleSessionCompleted(ctx context.Context, log *zap.Logger, object json.RawMessage) {
	var session sessionPayload
	if err := json.Unmarshal(object, &session); err != nil {
		log.Warn("undecodable session object", zap.Error(err))
		return
	}

	invoiceID := parseInvoiceID(session.Metadata)
	if invoiceID == 0 || session.PaymentIntent == "" {
		log.Warn("session missing invoice metadata or payment intent",
			zap.String("session_id", session.ID),
		)
		return
	}

	intent, err := h.client.RetrievePaymentIntent(ctx, session.PaymentIntent)
	if err != nil {
		h.obsMetrics.RecordProcessorAPIError()
		log.Error("payment intent retrieval failed",
			zap.Int64("invoice_id", invoiceID),
			zap.String("payment_intent_id", session.PaymentIntent),
			zap.Error(err),
		)
		return
	}
	if intent.Status != processordomain.IntentStatusSucceeded {
		log.Warn("payment intent not succeeded",
			zap.Int64("invoice_id", invoiceID),
			zap.String("payment_intent_id", intent.ID),
			zap.String("status", intent.Status),
		)
		return
	}

	h.record(ctx, log, &paymentdomain.PaymentEvent{
		Source:          paymentdomain.SourceWebhook,
		EventType:       EventCheckoutSessionCompleted,
		SessionID:       session.ID,
		PaymentIntentID: intent.ID,
		InvoiceID:       invoiceID,
		AmountMinor:     intent.AmountReceived,
		FeeMinor:        h.fee.Resolve(ctx, intent.LatestCharge),
		Currency:        intent.Currency,
	})
}

// handleIntentSucceeded uses the delivered object directly; the payload has
// already passed signature verification.
func (h *Handler) handleIntentSucceeded(ctx context.Context, log *zap.Logger, object json.RawMessage) {
	var intent intentPayload
	if err := json.Unmarshal(object, &intent); err != nil {
		log.Warn("undecodable payment intent object", zap.Error(err))
		return
	}

	invoiceID := parseInvoiceID(intent.Metadata)
	if invoiceID == 0 || intent.ID == "" {
		log.Warn("payment intent missing invoice metadata",
			zap.String("payment_intent_id", intent.ID),
		)
		return
	}
	if intent.Status != processordomain.IntentStatusSucceeded {
		log.Warn("payment intent not succeeded",
			zap.Int64("invoice_id", invoiceID),
			zap.String("payment_intent_id", intent.ID),
			zap.String("status", intent.Status),
		)
		return
	}

	amount := intent.AmountReceived
	if amount == 0 {
		amount = intent.Amount
	}

	h.record(ctx, log, &paymentdomain.PaymentEvent{
		Source:          paymentdomain.SourceWebhook,
		EventType:       EventPaymentIntentSucceeded,
		PaymentIntentID: intent.ID,
		InvoiceID:       invoiceID,
		AmountMinor:     amount,
		FeeMinor:        h.fee.Resolve(ctx, decodeCharge(intent.LatestCharge)),
		Currency:        intent.Currency,
	})
}

func (h *Handler) record(ctx context.Context, log *zap.Logger, event *paymentdomain.PaymentEvent) {
	if _, err := h.recorder.Record(ctx, event, h.cfg.GatewayName); err != nil {
		// Recording failures still acknowledge; redelivery would hit the
		// same failure and the duplicate guard covers the success case.
		log.Error("payment recording failed",
			zap.Int64("invoice_id", event.InvoiceID),
			zap.String("transaction_id", event.PaymentIntentID),
			zap.Error(err),
		)
	}
}

func (h *Handler) reject(status int, err error) Ack {
	h.obsMetrics.RecordWebhookRejected(err.Error())
	return Ack{StatusCode: status, Reason: err.Error()}
}

func parseInvoiceID(metadata map[string]string) int64 {
	raw, ok := metadata["invoice_id"]
	if !ok {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// decodeCharge accepts both shapes the processor uses for latest_charge:
// a bare charge ID string, or the expanded charge object.
func decodeCharge(raw json.RawMessage) *processordomain.Charge {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil || id == "" {
			return nil
		}
		return &processordomain.Charge{ID: id}
	}

	var charge chargePayload
	if err := json.Unmarshal(raw, &charge); err != nil {
		return nil
	}
	out := &processordomain.Charge{
		ID:                   charge.ID,
		Amount:               charge.Amount,
		AmountCaptured:       charge.AmountCaptured,
		ApplicationFeeAmount: charge.ApplicationFeeAmount,
	}
	if txn := bytes.TrimSpace(charge.BalanceTransaction); len(txn) > 0 && txn[0] == '"' {
		_ = json.Unmarshal(txn, &out.BalanceTransactionID)
	}
	return out
}
