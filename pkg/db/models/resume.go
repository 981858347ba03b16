package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/resumeloft/backend/pkg/enums"
)

// Resume persists one document plus its payment state. Payment fields are
// written only by the webhook reconciler after creation.
type Resume struct {
	ID                    uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID                uuid.UUID            `gorm:"column:user_id;type:uuid;not null;index:idx_resumes_user_template"`
	Title                 string               `gorm:"column:title;not null"`
	Template              enums.ResumeTemplate `gorm:"column:template;type:text;not null;index:idx_resumes_user_template"`
	Content               json.RawMessage      `gorm:"column:content;type:jsonb"`
	IsPaid                bool                 `gorm:"column:is_paid;not null;default:false"`
	PaidAt                *time.Time           `gorm:"column:paid_at"`
	PaymentStatus         enums.PaymentStatus  `gorm:"column:payment_status;type:text;not null;default:'none'"`
	StripePaymentIntentID *string              `gorm:"column:stripe_payment_intent_id"`
	CreatedAt             time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time            `gorm:"column:updated_at;autoUpdateTime"`

	Sessions []PaymentSession `gorm:"foreignKey:ResumeID;constraint:OnDelete:CASCADE"`
}
