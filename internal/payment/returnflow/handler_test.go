package returnflow

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/smallbiznis/paygate/internal/config"
	ledgerdomain "github.com/smallbiznis/paygate/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/paygate/internal/payment/domain"
	"github.com/smallbiznis/paygate/internal/payment/fee"
	"github.com/smallbiznis/paygate/internal/payment/recorder"
	processordomain "github.com/smallbiznis/paygate/internal/processor/domain"
	"go.uber.org/zap"
)

type recordedPayment struct {
	invoiceID     int64
	transactionID string
	amount        float64
	fee           float64
	gateway       string
}

type fakeLedger struct {
	mu       sync.Mutex
	statuses map[int64]string
	records  []recordedPayment
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{statuses: map[int64]string{}}
}

func (f *fakeLedger) RecordPayment(ctx context.Context, invoiceID int64, transactionID string, amount, feeAmount float64, gateway string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.invoiceID == invoiceID && r.transactionID == transactionID {
			return ledgerdomain.ErrDuplicatePayment
		}
	}
	f.records = append(f.records, recordedPayment{invoiceID, transactionID, amount, feeAmount, gateway})
	f.statuses[invoiceID] = ledgerdomain.InvoiceStatusPaid
	return nil
}

func (f *fakeLedger) InvoiceStatus(ctx context.Context, invoiceID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[invoiceID]
	if !ok {
		return "", ledgerdomain.ErrInvoiceNotFound
	}
	return status, nil
}

func (f *fakeLedger) PaymentAlreadyRecorded(ctx context.Context, invoiceID int64, transactionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.invoiceID == invoiceID && r.transactionID == transactionID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) FindInvoice(ctx context.Context, invoiceID int64) (*ledgerdomain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[invoiceID]
	if !ok {
		return nil, ledgerdomain.ErrInvoiceNotFound
	}
	return &ledgerdomain.Invoice{ID: invoiceID, Status: status}, nil
}

type fakeClient struct {
	session     *processordomain.Session
	sessionErr  error
	intent      *processordomain.PaymentIntent
	intentErr   error
	sessionGets int
	intentGets  int
}

func (f *fakeClient) CreateCheckoutSession(ctx context.Context, params processordomain.CreateSessionParams) (*processordomain.Session, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeClient) RetrieveSession(ctx context.Context, id string) (*processordomain.Session, error) {
	f.sessionGets++
	return f.session, f.sessionErr
}

func (f *fakeClient) RetrievePaymentIntent(ctx context.Context, id string) (*processordomain.PaymentIntent, error) {
	f.intentGets++
	return f.intent, f.intentErr
}

func (f *fakeClient) RetrieveBalanceTransaction(ctx context.Context, id string) (*processordomain.BalanceTransaction, error) {
	return nil, processordomain.ErrNotFound
}

func newHandler(client processordomain.Client, ledger ledgerdomain.Ledger) *Handler {
	log := zap.NewNop()
	cfg := config.Config{BaseURL: "https://billing.example.com", GatewayName: "stripelite"}
	return New(Params{
		Config:   cfg,
		Client:   client,
		Ledger:   ledger,
		Fee:      fee.NewResolver(fee.Params{Client: client, Log: log}),
		Recorder: recorder.New(recorder.Params{Ledger: ledger, Log: log}),
		Log:      log,
	})
}

func TestHandleReturnMalformedParams(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{}
	handler := newHandler(client, newFakeLedger())

	cases := []struct {
		name      string
		invoiceID int64
		sessionID string
	}{
		{"zero invoice", 0, "cs_test_abc"},
		{"empty session", 7, ""},
		{"session with space", 7, "cs test"},
		{"session with symbols", 7, "cs_test_$$$"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome := handler.HandleReturn(ctx, tc.invoiceID, tc.sessionID)
			if outcome.Reason != paymentdomain.RejectMalformedInput {
				t.Fatalf("expected malformed_input, got %q", outcome.Reason)
			}
			if outcome.Location != "https://billing.example.com/cart?action=view&paymenterror=1" {
				t.Fatalf("unexpected redirect %q", outcome.Location)
			}
		})
	}
	if client.sessionGets != 0 {
		t.Fatalf("expected no processor calls, got %d", client.sessionGets)
	}
}

func TestHandleReturnAlreadyPaidSkipsProcessor(t *testing.T) {
	ledger := newFakeLedger()
	ledger.statuses[7] = ledgerdomain.InvoiceStatusPaid
	client := &fakeClient{}
	handler := newHandler(client, ledger)

	outcome := handler.HandleReturn(context.Background(), 7, "cs_test_abc")
	if outcome.Rejected() {
		t.Fatalf("expected success, got rejection %q", outcome.Reason)
	}
	if outcome.Location != "https://billing.example.com/invoices/7" {
		t.Fatalf("unexpected redirect %q", outcome.Location)
	}
	if client.sessionGets != 0 || client.intentGets != 0 {
		t.Fatalf("expected no processor calls, got %d/%d", client.sessionGets, client.intentGets)
	}
}

func TestHandleReturnSessionNotPaid(t *testing.T) {
	ledger := newFakeLedger()
	ledger.statuses[7] = ledgerdomain.InvoiceStatusUnpaid
	client := &fakeClient{
		session: &processordomain.Session{ID: "cs_test_abc", PaymentStatus: "unpaid"},
	}
	handler := newHandler(client, ledger)

	outcome := handler.HandleReturn(context.Background(), 7, "cs_test_abc")
	if outcome.Reason != paymentdomain.RejectPaymentNotCompleted {
		t.Fatalf("expected payment_not_completed, got %q", outcome.Reason)
	}
}

func TestHandleReturnIntentNotSucceeded(t *testing.T) {
	ledger := newFakeLedger()
	ledger.statuses[7] = ledgerdomain.InvoiceStatusUnpaid
	client := &fakeClient{
		session: &processordomain.Session{
			ID:              "cs_test_abc",
			PaymentStatus:   processordomain.SessionPaymentStatusPaid,
			PaymentIntentID: "pi_1",
		},
		intent: &processordomain.PaymentIntent{ID: "pi_1", Status: "requires_capture"},
	}
	handler := newHandler(client, ledger)

	outcome := handler.HandleReturn(context.Background(), 7, "cs_test_abc")
	if outcome.Reason != paymentdomain.RejectPaymentNotSucceeded {
		t.Fatalf("expected payment_not_succeeded, got %q", outcome.Reason)
	}
	if len(ledger.records) != 0 {
		t.Fatalf("expected no ledger writes, got %d", len(ledger.records))
	}
}

func TestHandleReturnProcessorFailure(t *testing.T) {
	ledger := newFakeLedger()
	ledger.statuses[7] = ledgerdomain.InvoiceStatusUnpaid
	client := &fakeClient{sessionErr: processordomain.ErrAPIError}
	handler := newHandler(client, ledger)

	outcome := handler.HandleReturn(context.Background(), 7, "cs_test_abc")
	if outcome.Reason != paymentdomain.RejectAPIError {
		t.Fatalf("expected api_error, got %q", outcome.Reason)
	}
}

func TestHandleReturnRecordsVerifiedPayment(t *testing.T) {
	ledger := newFakeLedger()
	ledger.statuses[100] = ledgerdomain.InvoiceStatusUnpaid
	client := &fakeClient{
		session: &processordomain.Session{
			ID:              "cs_test_abc",
			PaymentStatus:   processordomain.SessionPaymentStatusPaid,
			PaymentIntentID: "pi_100",
		},
		intent: &processordomain.PaymentIntent{
			ID:             "pi_100",
			Status:         processordomain.IntentStatusSucceeded,
			Amount:         1999,
			AmountReceived: 1999,
			Currency:       "usd",
			LatestCharge: &processordomain.Charge{
				ID:                   "ch_100",
				Amount:               1999,
				AmountCaptured:       1999,
				ApplicationFeeAmount: 88,
			},
		},
	}
	handler := newHandler(client, ledger)

	outcome := handler.HandleReturn(context.Background(), 100, "cs_test_abc")
	if outcome.Rejected() {
		t.Fatalf("expected success, got rejection %q", outcome.Reason)
	}
	if outcome.Location != "https://billing.example.com/invoices/100?paymentsuccess=1" {
		t.Fatalf("unexpected redirect %q", outcome.Location)
	}

	if len(ledger.records) != 1 {
		t.Fatalf("expected one ledger write, got %d", len(ledger.records))
	}
	entry := ledger.records[0]
	if entry.transactionID != "pi_100" || entry.amount != 19.99 || entry.fee != 0.88 {
		t.Fatalf("unexpected ledger entry %+v", entry)
	}
	if entry.gateway != "stripelite" {
		t.Fatalf("unexpected gateway %q", entry.gateway)
	}
}
