package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvoiceNotFound  = errors.New("invoice_not_found")
	ErrDuplicatePayment = errors.New("payment_already_recorded")
)

const (
	InvoiceStatusUnpaid = "unpaid"
	InvoiceStatusPaid   = "paid"
)

// Invoice mirrors the billing system's invoice row. The bridge reads the
// status and amount; it never creates or deletes invoices.
type Invoice struct {
	ID            int64     `json:"id" gorm:"primaryKey"`
	Status        string    `json:"status" gorm:"type:text;not null"`
	AmountCents   int64     `json:"amount_cents" gorm:"not null"`
	Currency      string    `json:"currency" gorm:"type:text;not null"`
	CustomerEmail string    `json:"customer_email" gorm:"type:text"`
	CreatedAt     time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"not null"`
}

func (Invoice) TableName() string { return "invoices" }

// PaymentEntry is one recorded payment against an invoice. The composite
// unique index on (invoice_id, transaction_id) is the system's core
// consistency guarantee: both delivery paths may race to insert the same
// logical payment and the constraint decides the winner.
type PaymentEntry struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	InvoiceID      int64        `json:"invoice_id" gorm:"not null;uniqueIndex:ux_invoice_transaction"`
	TransactionID  string       `json:"transaction_id" gorm:"type:text;not null;uniqueIndex:ux_invoice_transaction"`
	AmountCents    int64        `json:"amount_cents" gorm:"not null"`
	FeeCents       int64        `json:"fee_cents" gorm:"not null"`
	AmountOutCents int64        `json:"amount_out_cents" gorm:"not null;default:0"`
	Gateway        string       `json:"gateway" gorm:"type:text;not null"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
}

func (PaymentEntry) TableName() string { return "invoice_payments" }

// Ledger is the invoicing system's payment record. Amounts cross this
// boundary as decimal units (the billing system's contract); storage converts
// back to integer cents.
type Ledger interface {
	RecordPayment(ctx context.Context, invoiceID int64, transactionID string, amount float64, fee float64, gateway string) error
	InvoiceStatus(ctx context.Context, invoiceID int64) (string, error)
	PaymentAlreadyRecorded(ctx context.Context, invoiceID int64, transactionID string) (bool, error)
	FindInvoice(ctx context.Context, invoiceID int64) (*Invoice, error)
}
