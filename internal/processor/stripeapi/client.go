package stripeapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/smallbiznis/paygate/internal/config"
	processordomain "github.com/smallbiznis/paygate/internal/processor/domain"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.uber.org/zap"
)

// Client implements processordomain.Client against the Stripe API using the
// secret key for the configured mode (test or live).
type Client struct {
	sc  *client.API
	log *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) (*Client, error) {
	key := strings.TrimSpace(cfg.SecretKey())
	if key == "" {
		return nil, fmt.Errorf("stripe secret key not configured for mode %q", cfg.Mode)
	}

	sc := &client.API{}
	sc.Init(key, nil)

	return &Client{
		sc:  sc,
		log: log.Named("processor.stripe"),
	}, nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, params processordomain.CreateSessionParams) (*processordomain.Session, error) {
	sessionParams := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(params.SuccessURL),
		CancelURL:          stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(params.Currency)),
				UnitAmount: stripe.Int64(params.AmountMinor),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(params.Description),
				},
			},
		}},
	}
	if params.CustomerEmail != "" {
		sessionParams.CustomerEmail = stripe.String(params.CustomerEmail)
	}
	sessionParams.AddMetadata("invoice_id", strconv.FormatInt(params.InvoiceID, 10))
	for key, value := range params.Metadata {
		sessionParams.AddMetadata(key, value)
	}

	session, err := c.sc.CheckoutSessions.New(sessionParams)
	if err != nil {
		return nil, c.wrap("create checkout session", err)
	}
	return buildSession(session), nil
}

func (c *Client) RetrieveSession(ctx context.Context, id string) (*processordomain.Session, error) {
	session, err := c.sc.CheckoutSessions.Get(id, &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, c.wrap("retrieve checkout session", err)
	}
	return buildSession(session), nil
}

func (c *Client) RetrievePaymentIntent(ctx context.Context, id string) (*processordomain.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	}
	params.AddExpand("latest_charge")

	intent, err := c.sc.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, c.wrap("retrieve payment intent", err)
	}
	return buildPaymentIntent(intent), nil
}

func (c *Client) RetrieveBalanceTransaction(ctx context.Context, id string) (*processordomain.BalanceTransaction, error) {
	txn, err := c.sc.BalanceTransactions.Get(id, &stripe.BalanceTransactionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, c.wrap("retrieve balance transaction", err)
	}
	return &processordomain.BalanceTransaction{
		ID:     txn.ID,
		Status: string(txn.Status),
		Fee:    txn.Fee,
	}, nil
}

func (c *Client) wrap(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return processordomain.ErrNotFound
		}
		c.log.Warn("stripe api call failed",
			zap.String("op", op),
			zap.String("code", string(stripeErr.Code)),
			zap.String("request_id", stripeErr.RequestID),
		)
		return fmt.Errorf("%w: %s", processordomain.ErrAPIError, stripeErr.Code)
	}
	c.log.Warn("stripe api call failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %v", processordomain.ErrAPIError, err)
}

func buildSession(session *stripe.CheckoutSession) *processordomain.Session {
	if session == nil {
		return nil
	}
	out := &processordomain.Session{
		ID:            session.ID,
		PaymentStatus: string(session.PaymentStatus),
		AmountTotal:   session.AmountTotal,
		Currency:      strings.ToUpper(string(session.Currency)),
		URL:           session.URL,
		Metadata:      session.Metadata,
	}
	if session.PaymentIntent != nil {
		out.PaymentIntentID = session.PaymentIntent.ID
	}
	return out
}

func buildPaymentIntent(intent *stripe.PaymentIntent) *processordomain.PaymentIntent {
	if intent == nil {
		return nil
	}
	out := &processordomain.PaymentIntent{
		ID:             intent.ID,
		Status:         string(intent.Status),
		Amount:         intent.Amount,
		AmountReceived: intent.AmountReceived,
		Currency:       strings.ToUpper(string(intent.Currency)),
		Metadata:       intent.Metadata,
	}
	if intent.LatestCharge != nil {
		charge := &processordomain.Charge{
			ID:                   intent.LatestCharge.ID,
			Amount:               intent.LatestCharge.Amount,
			AmountCaptured:       intent.LatestCharge.AmountCaptured,
			ApplicationFeeAmount: intent.LatestCharge.ApplicationFeeAmount,
		}
		if intent.LatestCharge.BalanceTransaction != nil {
			charge.BalanceTransactionID = intent.LatestCharge.BalanceTransaction.ID
		}
		out.LatestCharge = charge
	}
	return out
}
