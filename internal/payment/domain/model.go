package domain

import "errors"

// Transport-level verification failures. These are the only rejections that
// produce a non-success HTTP status on the webhook endpoint.
var (
	ErrMissingSecret   = errors.New("webhook_secret_missing")
	ErrMalformedHeader = errors.New("malformed_signature_header")
	ErrStaleTimestamp  = errors.New("stale_timestamp")
	ErrBadSignature    = errors.New("bad_signature")
	ErrInvalidPayload  = errors.New("invalid_payload")
)

// Source identifies which entry flow produced a payment fact.
type Source string

const (
	SourceReturn  Source = "return"
	SourceWebhook Source = "webhook"
)

// PaymentEvent is a verified payment fact, constructed per request and
// discarded once recorded. It is never persisted directly.
type PaymentEvent struct {
	Source          Source
	EventType       string
	SessionID       string
	PaymentIntentID string
	InvoiceID       int64
	AmountMinor     int64
	FeeMinor        int64
	Currency        string
	RawTimestamp    int64
}

// Return-flow rejection reasons, surfaced on the error redirect and in logs.
const (
	RejectMalformedInput      = "malformed_input"
	RejectPaymentNotCompleted = "payment_not_completed"
	RejectPaymentNotSucceeded = "payment_not_succeeded"
	RejectAPIError            = "api_error"
)

// RedirectOutcome is the single observable effect of one return-flow
// invocation: where to send the payer's browser, and why if it failed.
type RedirectOutcome struct {
	Location string
	Reason   string
}

func (o RedirectOutcome) Rejected() bool { return o.Reason != "" }
