package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/smallbiznis/paygate/internal/checkout/domain"
	"github.com/smallbiznis/paygate/internal/config"
	ledgerdomain "github.com/smallbiznis/paygate/internal/ledger/domain"
	processordomain "github.com/smallbiznis/paygate/internal/processor/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Config config.Config
	Client processordomain.Client
	Ledger ledgerdomain.Ledger
	Repo   checkoutdomain.Repository
	GenID  *snowflake.Node
	Log    *zap.Logger
}

type Service struct {
	cfg    config.Config
	client processordomain.Client
	ledger ledgerdomain.Ledger
	repo   checkoutdomain.Repository
	genID  *snowflake.Node
	log    *zap.Logger
}

func NewService(p Params) *Service {
	return &Service{
		cfg:    p.Config,
		client: p.Client,
		ledger: p.Ledger,
		repo:   p.Repo,
		genID:  p.GenID,
		log:    p.Log.Named("checkout.service"),
	}
}

// CreateSession opens a hosted checkout session for an open invoice. The
// success URL routes the payer back through the return flow; the session
// carries the invoice ID in its metadata so the webhook flow can attribute it.
func (s *Service) CreateSession(ctx context.Context, invoiceID int64) (*checkoutdomain.CreatedSession, error) {
	invoice, err := s.ledger.FindInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status == ledgerdomain.InvoiceStatusPaid {
		return nil, checkoutdomain.ErrInvoiceAlreadyPaid
	}

	metadata := map[string]string{
		"invoice_id": strconv.FormatInt(invoiceID, 10),
	}
	session, err := s.client.CreateCheckoutSession(ctx, processordomain.CreateSessionParams{
		InvoiceID:     invoiceID,
		AmountMinor:   invoice.AmountCents,
		Currency:      invoice.Currency,
		Description:   fmt.Sprintf("Invoice #%d", invoiceID),
		CustomerEmail: invoice.CustomerEmail,
		SuccessURL:    fmt.Sprintf("%s/payments/stripe/return?action=return&invoice=%d&session_id={CHECKOUT_SESSION_ID}", s.cfg.BaseURL, invoiceID),
		CancelURL:     s.cfg.BaseURL + "/cart?action=view",
		Metadata:      metadata,
	})
	if err != nil {
		s.log.Error("session creation failed", zap.Int64("invoice_id", invoiceID), zap.Error(err))
		return nil, err
	}

	raw, _ := json.Marshal(metadata)
	record := &checkoutdomain.SessionRecord{
		ID:          s.genID.Generate(),
		InvoiceID:   invoiceID,
		SessionID:   session.ID,
		AmountCents: invoice.AmountCents,
		Currency:    invoice.Currency,
		CheckoutURL: session.URL,
		Metadata:    datatypes.JSON(raw),
		CreatedAt:   time.Now().UTC(),
	}
	// The record is advisory; a failed save must not lose the session URL.
	if err := s.repo.Save(ctx, record); err != nil {
		s.log.Warn("session record save failed",
			zap.Int64("invoice_id", invoiceID),
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
	}

	s.log.Info("checkout session created",
		zap.Int64("invoice_id", invoiceID),
		zap.String("session_id", session.ID),
		zap.Int64("amount_minor", invoice.AmountCents),
		zap.String("currency", invoice.Currency),
	)
	return &checkoutdomain.CreatedSession{SessionID: session.ID, URL: session.URL}, nil
}

func (s *Service) ListSessions(ctx context.Context, invoiceID int64) ([]checkoutdomain.SessionRecord, error) {
	return s.repo.ListByInvoice(ctx, invoiceID)
}

var _ checkoutdomain.Service = (*Service)(nil)
