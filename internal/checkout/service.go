package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/resumeloft/backend/internal/resumes"
	"github.com/resumeloft/backend/pkg/config"
	"github.com/resumeloft/backend/pkg/db/models"
	"github.com/resumeloft/backend/pkg/enums"
	pkgerrors "github.com/resumeloft/backend/pkg/errors"
	"github.com/resumeloft/backend/pkg/metrics"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"
)

// Service starts purchases and reports their persisted state. It writes
// payment rows only at creation time; all later transitions belong to the
// webhook reconciler.
type Service interface {
	CreateCheckout(ctx context.Context, userID, resumeID uuid.UUID) (*CreateCheckoutResponse, error)
	VerifyPayment(ctx context.Context, userID, resumeID uuid.UUID) (*VerifyPaymentResponse, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type userRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
}

type service struct {
	db       txRunner
	sessions Repository
	resumes  resumes.Repository
	users    userRepository
	stripe   StripeCheckoutClient
	cfg      config.StripeConfig
	metrics  *metrics.PaymentMetrics
}

// ServiceParams bundles the dependencies required to build a checkout service.
type ServiceParams struct {
	DB           txRunner
	SessionRepo  Repository
	ResumeRepo   resumes.Repository
	UserRepo     userRepository
	StripeClient StripeCheckoutClient
	StripeConfig config.StripeConfig
	Metrics      *metrics.PaymentMetrics
}

// NewService constructs the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("database client is required")
	}
	if params.SessionRepo == nil {
		return nil, fmt.Errorf("payment session repository is required")
	}
	if params.ResumeRepo == nil {
		return nil, fmt.Errorf("resume repository is required")
	}
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.StripeClient == nil {
		return nil, fmt.Errorf("stripe client is required")
	}
	return &service{
		db:       params.DB,
		sessions: params.SessionRepo,
		resumes:  params.ResumeRepo,
		users:    params.UserRepo,
		stripe:   params.StripeClient,
		cfg:      params.StripeConfig,
		metrics:  params.Metrics,
	}, nil
}

// CreateCheckout starts a purchase for the resume. A still-open provider
// session is reused so a double-click or page reload does not create a
// second charge attempt.
func (s *service) CreateCheckout(ctx context.Context, userID, resumeID uuid.UUID) (*CreateCheckoutResponse, error) {
	resume, err := s.loadOwned(ctx, userID, resumeID)
	if err != nil {
		s.metrics.IncCheckout("rejected")
		return nil, err
	}

	if resume.IsPaid {
		s.metrics.IncCheckout("rejected")
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyPaid, "resume already paid").
			WithDetails(map[string]string{"resume_id": resumeID.String()})
	}

	if resume.PaymentStatus == enums.PaymentStatusPending {
		reused, err := s.reuseLiveSession(ctx, resumeID)
		if err != nil {
			return nil, err
		}
		if reused != nil {
			s.metrics.IncCheckout("reused")
			return reused, nil
		}
	}

	customerID, err := s.ensureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().UTC().Add(s.sessionValidity())
	meta := SessionMetadata{UserID: userID, ResumeID: resumeID}
	if err := meta.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build session metadata")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		Customer:   stripe.String(customerID),
		SuccessURL: stripe.String(s.cfg.SuccessURL),
		CancelURL:  stripe.String(s.cfg.CancelURL),
		ExpiresAt:  stripe.Int64(expiresAt.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(s.cfg.Currency),
					UnitAmount: stripe.Int64(s.cfg.PriceCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Resume unlock: %s", resume.Title)),
					},
				},
			},
		},
	}
	for key, value := range meta.ToMap() {
		params.AddMetadata(key, value)
	}

	created, err := s.stripe.CreateSession(ctx, params)
	if err != nil {
		s.metrics.IncCheckout("rejected")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.sessions.WithTx(tx).Create(ctx, CreatePaymentSessionDTO{
			StripeSessionID: created.ID,
			UserID:          userID,
			ResumeID:        resumeID,
			AmountCents:     s.cfg.PriceCents,
			Currency:        s.cfg.Currency,
			ExpiresAt:       &expiresAt,
		}); err != nil {
			return fmt.Errorf("persist payment session: %w", err)
		}
		if err := s.resumes.WithTx(tx).UpdateFields(ctx, resumeID, map[string]any{
			"payment_status": enums.PaymentStatusPending,
		}); err != nil {
			return fmt.Errorf("mark resume pending: %w", err)
		}
		return nil
	})
	if err != nil {
		// The provider session stays orphaned and expires on its own; with
		// no local row the reconciler has nothing to mark paid, so a retry
		// cannot double-charge.
		s.metrics.IncCheckout("rejected")
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist checkout")
	}

	s.metrics.IncCheckout("created")
	return &CreateCheckoutResponse{
		CheckoutURL:     created.URL,
		StripeSessionID: created.ID,
		ExpiresAt:       &expiresAt,
	}, nil
}

// VerifyPayment reports the persisted payment state. The webhook reconciler
// is the sole writer of these fields, so the client polls this endpoint
// after redirect-back instead of trusting the redirect itself.
func (s *service) VerifyPayment(ctx context.Context, userID, resumeID uuid.UUID) (*VerifyPaymentResponse, error) {
	resume, err := s.loadOwned(ctx, userID, resumeID)
	if err != nil {
		return nil, err
	}
	return &VerifyPaymentResponse{
		ResumeID:      resume.ID,
		IsPaid:        resume.IsPaid,
		PaymentStatus: resume.PaymentStatus,
		PaidAt:        resume.PaidAt,
	}, nil
}

func (s *service) loadOwned(ctx context.Context, userID, resumeID uuid.UUID) (*models.Resume, error) {
	resume, err := s.resumes.FindByID(ctx, resumeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "resume not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load resume")
	}
	if resume.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "resume not found")
	}
	return resume, nil
}

// reuseLiveSession returns the most recent pending session's URL when the
// provider still reports it open, nil when a fresh session is needed.
func (s *service) reuseLiveSession(ctx context.Context, resumeID uuid.UUID) (*CreateCheckoutResponse, error) {
	pending, err := s.sessions.FindLatestPendingByResume(ctx, resumeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find pending session")
	}

	remote, err := s.stripe.GetSession(ctx, pending.StripeSessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up checkout session")
	}
	if remote.Status != stripe.CheckoutSessionStatusOpen {
		return nil, nil
	}

	return &CreateCheckoutResponse{
		CheckoutURL:     remote.URL,
		StripeSessionID: pending.StripeSessionID,
		ExpiresAt:       pending.ExpiresAt,
		Reused:          true,
	}, nil
}

func (s *service) ensureCustomer(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	created, err := s.stripe.CreateCustomer(ctx, &stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Name:  stripe.String(fmt.Sprintf("%s %s", user.FirstName, user.LastName)),
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe customer")
	}
	if err := s.users.SetStripeCustomerID(ctx, userID, created.ID); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist stripe customer id")
	}
	return created.ID, nil
}

func (s *service) sessionValidity() time.Duration {
	if s.cfg.SessionValidity > 0 {
		return s.cfg.SessionValidity
	}
	return 30 * time.Minute
}
