package repository

import (
	"context"

	checkoutdomain "github.com/smallbiznis/paygate/internal/checkout/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) checkoutdomain.Repository {
	return &repo{db: db}
}

func (r *repo) Save(ctx context.Context, record *checkoutdomain.SessionRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repo) ListByInvoice(ctx context.Context, invoiceID int64) ([]checkoutdomain.SessionRecord, error) {
	var records []checkoutdomain.SessionRecord
	err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
