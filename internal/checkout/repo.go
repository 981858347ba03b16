package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/resumeloft/backend/pkg/db/models"
	"github.com/resumeloft/backend/pkg/enums"
	"gorm.io/gorm"
)

// CreatePaymentSessionDTO carries the ledger row written when a purchase starts.
type CreatePaymentSessionDTO struct {
	StripeSessionID string
	UserID          uuid.UUID
	ResumeID        uuid.UUID
	AmountCents     int64
	Currency        string
	ExpiresAt       *time.Time
}

// Repository handles the payment-session ledger. Rows are created by the
// checkout service and mutated only by the webhook reconciler; they are
// never deleted outside the owning resume's cascade.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, dto CreatePaymentSessionDTO) (*models.PaymentSession, error)
	FindByStripeSessionID(ctx context.Context, stripeSessionID string) (*models.PaymentSession, error)
	FindLatestPendingByResume(ctx context.Context, resumeID uuid.UUID) (*models.PaymentSession, error)
	MarkCompleted(ctx context.Context, stripeSessionID string, paymentIntentID *string) error
	MarkFailed(ctx context.Context, stripeSessionID string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment-session repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, dto CreatePaymentSessionDTO) (*models.PaymentSession, error) {
	row := &models.PaymentSession{
		ID:              uuid.New(),
		StripeSessionID: dto.StripeSessionID,
		UserID:          dto.UserID,
		ResumeID:        dto.ResumeID,
		AmountCents:     dto.AmountCents,
		Currency:        dto.Currency,
		Status:          enums.SessionStatusPending,
		ExpiresAt:       dto.ExpiresAt,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *repository) FindByStripeSessionID(ctx context.Context, stripeSessionID string) (*models.PaymentSession, error) {
	var row models.PaymentSession
	if err := r.db.WithContext(ctx).
		Where("stripe_session_id = ?", stripeSessionID).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindLatestPendingByResume(ctx context.Context, resumeID uuid.UUID) (*models.PaymentSession, error) {
	var row models.PaymentSession
	if err := r.db.WithContext(ctx).
		Where("resume_id = ? AND status = ?", resumeID, enums.SessionStatusPending).
		Order("created_at DESC, id DESC").
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) MarkCompleted(ctx context.Context, stripeSessionID string, paymentIntentID *string) error {
	fields := map[string]any{
		"status":     enums.SessionStatusCompleted,
		"updated_at": time.Now().UTC(),
	}
	if paymentIntentID != nil {
		fields["stripe_payment_intent_id"] = *paymentIntentID
	}
	return r.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("stripe_session_id = ?", stripeSessionID).
		Updates(fields).Error
}

func (r *repository) MarkFailed(ctx context.Context, stripeSessionID string) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("stripe_session_id = ? AND status <> ?", stripeSessionID, enums.SessionStatusCompleted).
		Updates(map[string]any{
			"status":     enums.SessionStatusFailed,
			"updated_at": time.Now().UTC(),
		}).Error
}
