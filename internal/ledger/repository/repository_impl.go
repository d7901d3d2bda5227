package repository

import (
	"context"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paygate/internal/ledger/domain"
	"github.com/smallbiznis/paygate/pkg/db"
	"gorm.io/gorm"
)

type repo struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func Provide(gdb *gorm.DB, genID *snowflake.Node) domain.Ledger {
	return &repo{db: gdb, genID: genID}
}

func (r *repo) RecordPayment(ctx context.Context, invoiceID int64, transactionID string, amount float64, fee float64, gateway string) error {
	now := time.Now().UTC()
	entry := domain.PaymentEntry{
		ID:             r.genID.Generate(),
		InvoiceID:      invoiceID,
		TransactionID:  transactionID,
		AmountCents:    toCents(amount),
		FeeCents:       toCents(fee),
		AmountOutCents: 0,
		Gateway:        gateway,
		CreatedAt:      now,
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(
			`INSERT INTO invoice_payments (
				id, invoice_id, transaction_id, amount_cents, fee_cents,
				amount_out_cents, gateway, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID,
			entry.InvoiceID,
			entry.TransactionID,
			entry.AmountCents,
			entry.FeeCents,
			entry.AmountOutCents,
			entry.Gateway,
			entry.CreatedAt,
		)
		if res.Error != nil {
			if db.IsDuplicateKeyErr(res.Error) {
				return domain.ErrDuplicatePayment
			}
			return res.Error
		}

		return tx.Exec(
			`UPDATE invoices
			 SET status = ?, updated_at = ?
			 WHERE id = ?`,
			domain.InvoiceStatusPaid,
			now,
			invoiceID,
		).Error
	})
}

func (r *repo) InvoiceStatus(ctx context.Context, invoiceID int64) (string, error) {
	var status string
	err := r.db.WithContext(ctx).Raw(
		`SELECT status
		 FROM invoices
		 WHERE id = ?`,
		invoiceID,
	).Scan(&status).Error
	if err != nil {
		return "", err
	}
	if status == "" {
		return "", domain.ErrInvoiceNotFound
	}
	return status, nil
}

func (r *repo) PaymentAlreadyRecorded(ctx context.Context, invoiceID int64, transactionID string) (bool, error) {
	var id snowflake.ID
	err := r.db.WithContext(ctx).Raw(
		`SELECT id
		 FROM invoice_payments
		 WHERE invoice_id = ? AND transaction_id = ? AND amount_out_cents = 0
		 LIMIT 1`,
		invoiceID,
		transactionID,
	).Scan(&id).Error
	if err != nil {
		return false, err
	}
	return id != 0, nil
}

func (r *repo) FindInvoice(ctx context.Context, invoiceID int64) (*domain.Invoice, error) {
	var item domain.Invoice
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, status, amount_cents, currency, customer_email, created_at, updated_at
		 FROM invoices
		 WHERE id = ?
		 LIMIT 1`,
		invoiceID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrInvoiceNotFound
	}
	return &item, nil
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
