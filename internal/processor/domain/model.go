package domain

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("processor_object_not_found")
	ErrAPIError = errors.New("processor_api_error")
)

const (
	SessionPaymentStatusPaid = "paid"
	IntentStatusSucceeded    = "succeeded"
)

// Session is a hosted checkout session as reported by the processor.
type Session struct {
	ID              string
	PaymentStatus   string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	URL             string
	Metadata        map[string]string
}

// PaymentIntent is the processor's record of a single attempted charge.
type PaymentIntent struct {
	ID             string
	Status         string
	Amount         int64
	AmountReceived int64
	Currency       string
	Metadata       map[string]string
	LatestCharge   *Charge
}

// Charge carries the settlement fields fee resolution needs.
type Charge struct {
	ID                   string
	Amount               int64
	AmountCaptured       int64
	ApplicationFeeAmount int64
	BalanceTransactionID string
}

// BalanceTransaction is the processor's settlement record for a charge.
type BalanceTransaction struct {
	ID     string
	Status string
	Fee    int64
}

type CreateSessionParams struct {
	InvoiceID     int64
	AmountMinor   int64
	Currency      string
	Description   string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// Client is the outbound processor API surface consumed by the verification
// flows. All calls are synchronous request/response; callers treat any error
// as terminal for the current request.
type Client interface {
	CreateCheckoutSession(ctx context.Context, params CreateSessionParams) (*Session, error)
	RetrieveSession(ctx context.Context, id string) (*Session, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	RetrieveBalanceTransaction(ctx context.Context, id string) (*BalanceTransaction, error)
}
