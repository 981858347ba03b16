package resumes

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/resumeloft/backend/internal/entitlements"
	"github.com/resumeloft/backend/pkg/db/models"
	"github.com/resumeloft/backend/pkg/enums"
)

// CreateResumeRequest is the payload accepted by the create endpoint.
type CreateResumeRequest struct {
	Title    string          `json:"title" validate:"required,max=200"`
	Template string          `json:"template" validate:"required"`
	Content  json.RawMessage `json:"content,omitempty"`
}

// UpdateResumeRequest carries the patchable fields. Nil pointers mean
// "leave unchanged".
type UpdateResumeRequest struct {
	Title    *string         `json:"title,omitempty" validate:"omitempty,max=200"`
	Template *string         `json:"template,omitempty"`
	Content  json.RawMessage `json:"content,omitempty"`
}

// ResumeDTO is the full transport shape, content included only when the
// caller is entitled.
type ResumeDTO struct {
	ID                       uuid.UUID            `json:"id"`
	Title                    string               `json:"title"`
	Template                 enums.ResumeTemplate `json:"template"`
	Content                  json.RawMessage      `json:"content,omitempty"`
	IsPaid                   bool                 `json:"is_paid"`
	PaidAt                   *time.Time           `json:"paid_at,omitempty"`
	PaymentStatus            enums.PaymentStatus  `json:"payment_status"`
	CanAccessPremiumFeatures bool                 `json:"can_access_premium_features"`
	RequiresPayment          bool                 `json:"requires_payment"`
	AccessReason             enums.AccessReason   `json:"access_reason"`
	CreatedAt                time.Time            `json:"created_at"`
	UpdatedAt                time.Time            `json:"updated_at"`
}

// ListResumesResponse pairs a page of resumes with the cursor for the next one.
type ListResumesResponse struct {
	Items      []ResumeDTO `json:"items"`
	NextCursor *string     `json:"next_cursor,omitempty"`
}

// FromModel maps a resume row plus its access decision. Content is stripped
// unless the decision grants access.
func FromModel(r *models.Resume, decision entitlements.Decision) ResumeDTO {
	dto := ResumeDTO{
		ID:                       r.ID,
		Title:                    r.Title,
		Template:                 r.Template,
		IsPaid:                   r.IsPaid,
		PaidAt:                   r.PaidAt,
		PaymentStatus:            r.PaymentStatus,
		CanAccessPremiumFeatures: decision.Allowed,
		RequiresPayment:          !decision.Allowed,
		AccessReason:             decision.Reason,
		CreatedAt:                r.CreatedAt,
		UpdatedAt:                r.UpdatedAt,
	}
	if decision.Allowed {
		dto.Content = r.Content
	}
	return dto
}
