package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/paygate/internal/clock"
	"github.com/smallbiznis/paygate/internal/config"
	ledgerdomain "github.com/smallbiznis/paygate/internal/ledger/domain"
	"github.com/smallbiznis/paygate/internal/payment/fee"
	"github.com/smallbiznis/paygate/internal/payment/recorder"
	processordomain "github.com/smallbiznis/paygate/internal/processor/domain"
	"go.uber.org/zap"
)

const testSecret = "whsec_test_secret"

type recordedPayment struct {
	invoiceID     int64
	transactionID string
	amount        float64
	fee           float64
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
	f.records = append(f.records, recordedPayment{invoiceID, transactionID, amount, feeAmount})
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
	intent     *processordomain.PaymentIntent
	intentErr  error
	intentGets int
}

func (f *fakeClient) CreateCheckoutSession(ctx context.Context, params processordomain.CreateSessionParams) (*processordomain.Session, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeClient) RetrieveSession(ctx context.Context, id string) (*processordomain.Session, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeClient) RetrievePaymentIntent(ctx context.Context, id string) (*processordomain.PaymentIntent, error) {
	f.intentGets++
	return f.intent, f.intentErr
}

func (f *fakeClient) RetrieveBalanceTransaction(ctx context.Context, id string) (*processordomain.BalanceTransaction, error) {
	return nil, processordomain.ErrNotFound
}

func signBody(body string, at time.Time, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", at.Unix(), body)))
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func newHandler(secret string, client processordomain.Client, ledger ledgerdomain.Ledger, clk clock.Clock) *Handler {
	log := zap.NewNop()
	cfg := config.Config{
		BaseURL:             "https://billing.example.com",
		GatewayName:         "stripelite",
		StripeWebhookSecret: secret,
	}
	return New(Params{
		Config:   cfg,
		Clock:    clk,
		Client:   client,
		Fee:      fee.NewResolver(fee.Params{Client: client, Log: log}),
		Recorder: recorder.New(recorder.Params{Ledger: ledger, Log: log}),
		Log:      log,
	})
}

func TestHandleWebhookMissingSecret(t *testing.T) {
	handler := newHandler("", &fakeClient{}, newFakeLedger(), clock.NewFakeClock(time.Now()))

	ack := handler.HandleWebhook(context.Background(), []byte(`{}`), "t=1,v1=abc")
	if ack.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", ack.StatusCode)
	}
}

func TestHandleWebhookSignatureRejections(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clk := clock.NewFakeClock(now)
	ledger := newFakeLedger()
	handler := newHandler(testSecret, &fakeClient{}, ledger, clk)
	body := `{"id":"evt_1","type":"customer.updated","data":{"object":{}}}`

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusBadRequest},
		{"no v1", fmt.Sprintf("t=%d", now.Unix()), http.StatusBadRequest},
		{"tampered signature", signBody(body+"x", now, testSecret), http.StatusForbidden},
		{"wrong secret", signBody(body, now, "whsec_other"), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ack := handler.HandleWebhook(context.Background(), []byte(body), tc.header)
			if ack.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, ack.StatusCode)
			}
		})
	}
}

func TestHandleWebhookStaleTimestamp(t *testing.T) {
	sent := time.Unix(1_700_000_000, 0)
	clk := clock.NewFakeClock(sent)
	handler := newHandler(testSecret, &fakeClient{}, newFakeLedger(), clk)
	body := `{"id":"evt_1","type":"customer.updated","data":{"object":{}}}`
	header := signBody(body, sent, testSecret)

	clk.Advance(300 * time.Second)
	if ack := handler.HandleWebhook(context.Background(), []byte(body), header); !ack.Accepted() {
		t.Fatalf("expected acceptance at tolerance boundary, got %d", ack.StatusCode)
	}

	clk.Advance(time.Second)
	if ack := handler.HandleWebhook(context.Background(), []byte(body), header); ack.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 past tolerance, got %d", ack.StatusCode)
	}
}

func TestHandleWebhookUnknownEventTypeAcks(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ledger := newFakeLedger()
	handler := newHandler(testSecret, &fakeClient{}, ledger, clock.NewFakeClock(now))
	body := `{"id":"evt_1","type":"customer.updated","data":{"object":{"id":"cus_1"}}}`

	ack := handler.HandleWebhook(context.Background(), []byte(body), signBody(body, now, testSecret))
	if !ack.Accepted() {
		t.Fatalf("expected 200, got %d", ack.StatusCode)
	}
	if len(ledger.records) != 0 {
		t.Fatalf("expected no ledger writes, got %d", len(ledger.records))
	}
}

func TestHandleWebhookSessionCompletedRecords(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ledger := newFakeLedger()
	ledger.statuses[100] = ledgerdomain.InvoiceStatusUnpaid
	client := &fakeClient{
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
	handler := newHandler(testSecret, client, ledger, clock.NewFakeClock(now))

	body := `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{` +
		`"id":"cs_test_abc","payment_status":"paid","payment_intent":"pi_100",` +
		`"metadata":{"invoice_id":"100"}}}}`
	ack := handler.HandleWebhook(context.Background(), []byte(body), signBody(body, now, testSecret))
	if !ack.Accepted() {
		t.Fatalf("expected 200, got %d", ack.StatusCode)
	}

	if client.intentGets != 1 {
		t.Fatalf("expected one intent retrieval, got %d", client.intentGets)
	}
	if len(ledger.records) != 1 {
		t.Fatalf("expected one ledger write, got %d", len(ledger.records))
	}
	entry := ledger.records[0]
	if entry.invoiceID != 100 || entry.transactionID != "pi_100" || entry.amount != 19.99 || entry.fee != 0.88 {
		t.Fatalf("unexpected ledger entry %+v", entry)
	}
}

func TestHandleWebhookSessionMissingMetadataAcks(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ledger := newFakeLedger()
	client := &fakeClient{}
	handler := newHandler(testSecret, client, ledger, clock.NewFakeClock(now))

	body := `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{` +
		`"id":"cs_test_abc","payment_status":"paid","payment_intent":"pi_100","metadata":{}}}}`
	ack := handler.HandleWebhook(context.Background(), []byte(body), signBody(body, now, testSecret))
	if !ack.Accepted() {
		t.Fatalf("expected 200, got %d", ack.StatusCode)
	}
	if client.intentGets != 0 {
		t.Fatalf("expected no processor calls, got %d", client.intentGets)
	}
	if len(ledger.records) != 0 {
		t.Fatalf("expected no ledger writes, got %d", len(ledger.records))
	}
}

func TestHandleWebhookIntentSucceededUsesPayloadDirectly(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ledger := newFakeLedger()
	ledger.statuses[42] = ledgerdomain.InvoiceStatusUnpaid
	client := &fakeClient{}
	handler := newHandler(testSecret, client, ledger, clock.NewFakeClock(now))

	body := `{"id":"evt_2","type":"payment_intent.succeeded","data":{"object":{` +
		`"id":"pi_abc","status":"succeeded","amount":5000,"amount_received":5000,` +
		`"currency":"usd","metadata":{"invoice_id":"42"},` +
		`"latest_charge":{"id":"ch_1","amount":5000,"amount_captured":4970}}}}`
	ack := handler.HandleWebhook(context.Background(), []byte(body), signBody(body, now, testSecret))
	if !ack.Accepted() {
		t.Fatalf("expected 200, got %d", ack.StatusCode)
	}

	if client.intentGets != 0 {
		t.Fatalf("expected no intent retrieval, got %d", client.intentGets)
	}
	if len(ledger.records) != 1 {
		t.Fatalf("expected one ledger write, got %d", len(ledger.records))
	}
	entry := ledger.records[0]
	if entry.invoiceID != 42 || entry.transactionID != "pi_abc" || entry.amount != 50.0 || entry.fee != 0.30 {
		t.Fatalf("unexpected ledger entry %+v", entry)
	}
}

func TestHandleWebhookDuplicateDeliveryAcksOnce(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ledger := newFakeLedger()
	ledger.statuses[42] = ledgerdomain.InvoiceStatusUnpaid
	handler := newHandler(testSecret, &fakeClient{}, ledger, clock.NewFakeClock(now))

	body := `{"id":"evt_2","type":"payment_intent.succeeded","data":{"object":{` +
		`"id":"pi_abc","status":"succeeded","amount":5000,"amount_received":5000,` +
		`"currency":"usd","metadata":{"invoice_id":"42"},"latest_charge":"ch_1"}}}`
	header := signBody(body, now, testSecret)

	for i := 0; i < 2; i++ {
		if ack := handler.HandleWebhook(context.Background(), []byte(body), header); !ack.Accepted() {
			t.Fatalf("delivery %d: expected 200, got %d", i, ack.StatusCode)
		}
	}
	if len(ledger.records) != 1 {
		t.Fatalf("expected exactly one ledger write, got %d", len(ledger.records))
	}
}
