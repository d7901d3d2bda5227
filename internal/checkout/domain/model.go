package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

var ErrInvoiceAlreadyPaid = errors.New("invoice_already_paid")

// SessionRecord is an advisory trace of a hosted checkout session created for
// an invoice. Diagnostics only; payment verification never reads it.
type SessionRecord struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	InvoiceID   int64          `json:"invoice_id" gorm:"not null;index"`
	SessionID   string         `json:"session_id" gorm:"type:text;not null;uniqueIndex"`
	AmountCents int64          `json:"amount_cents" gorm:"not null"`
	Currency    string         `json:"currency" gorm:"type:text;not null"`
	CheckoutURL string         `json:"checkout_url" gorm:"type:text"`
	Metadata    datatypes.JSON `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null"`
}

func (SessionRecord) TableName() string { return "checkout_sessions" }

// CreatedSession is what the API hands back for a new hosted session.
type CreatedSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type Repository interface {
	Save(ctx context.Context, record *SessionRecord) error
	ListByInvoice(ctx context.Context, invoiceID int64) ([]SessionRecord, error)
}

type Service interface {
	CreateSession(ctx context.Context, invoiceID int64) (*CreatedSession, error)
	ListSessions(ctx context.Context, invoiceID int64) ([]SessionRecord, error)
}
