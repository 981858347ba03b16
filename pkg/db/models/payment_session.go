package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/resumeloft/backend/pkg/enums"
)

// PaymentSession is the ledger entry for one checkout attempt. The Stripe
// session id carries a uniqueness constraint; it is the idempotency key for
// webhook reconciliation. Rows are never deleted except by resume cascade.
type PaymentSession struct {
	ID                    uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	StripeSessionID       string              `gorm:"column:stripe_session_id;not null;uniqueIndex:uq_payment_sessions_stripe_session_id"`
	UserID                uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	ResumeID              uuid.UUID           `gorm:"column:resume_id;type:uuid;not null;index"`
	AmountCents           int64               `gorm:"column:amount_cents;not null"`
	Currency              string              `gorm:"column:currency;not null"`
	Status                enums.SessionStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	StripePaymentIntentID *string             `gorm:"column:stripe_payment_intent_id"`
	ExpiresAt             *time.Time          `gorm:"column:expires_at"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
