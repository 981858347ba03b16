package checkout

import (
	"time"

	"github.com/google/uuid"
	"github.com/resumeloft/backend/pkg/enums"
)

// CreateCheckoutResponse returns the hosted payment page for the client to
// redirect to.
type CreateCheckoutResponse struct {
	CheckoutURL     string     `json:"checkout_url"`
	StripeSessionID string     `json:"stripe_session_id"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	Reused          bool       `json:"reused"`
}

// VerifyPaymentResponse reports the persisted payment state so the client
// can poll after redirect-back while the webhook is still in flight.
type VerifyPaymentResponse struct {
	ResumeID      uuid.UUID           `json:"resume_id"`
	IsPaid        bool                `json:"is_paid"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
}
