package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/resumeloft/backend/internal/checkout"
	"github.com/resumeloft/backend/internal/resumes"
	"github.com/resumeloft/backend/pkg/db/models"
	"github.com/resumeloft/backend/pkg/enums"
	pkgerrors "github.com/resumeloft/backend/pkg/errors"
	"github.com/resumeloft/backend/pkg/logger"
	"github.com/resumeloft/backend/pkg/mailer"
	"github.com/resumeloft/backend/pkg/metrics"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type mailSender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

type ServiceParams struct {
	SessionRepo       checkout.Repository
	ResumeRepo        resumes.Repository
	UserRepo          userFinder
	Mailer            mailSender
	TransactionRunner txRunner
	Metrics           *metrics.PaymentMetrics
	Logger            *logger.Logger
}

// Service reconciles provider payment events into the ledger and resume
// rows. It is the sole writer of payment fields after checkout creation.
type Service struct {
	sessions checkout.Repository
	resumes  resumes.Repository
	users    userFinder
	mailer   mailSender
	txRunner txRunner
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.SessionRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment session repo required")
	}
	if params.ResumeRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "resume repo required")
	}
	if params.UserRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		sessions: params.SessionRepo,
		resumes:  params.ResumeRepo,
		users:    params.UserRepo,
		mailer:   params.Mailer,
		txRunner: params.TransactionRunner,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// HandleEvent applies one verified provider event. Events the service does
// not subscribe to are acknowledged without effect; the provider retries
// only on returned errors.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		session, err := decodeSession(event)
		if err != nil {
			return err
		}
		return s.handleCompleted(ctx, session)
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
		session, err := decodeSession(event)
		if err != nil {
			return err
		}
		return s.handleFailed(ctx, session)
	default:
		s.metrics.IncWebhook("ignored")
		return nil
	}
}

func (s *Service) handleCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	meta, err := checkout.ParseSessionMetadata(session.Metadata)
	if err != nil {
		// Malformed metadata cannot be repaired by redelivery, so the event
		// is acknowledged and dropped.
		s.warn(ctx, fmt.Sprintf("stripe session %s has unusable metadata: %v", session.ID, err))
		s.metrics.IncWebhook("rejected")
		return nil
	}

	stored, err := s.sessions.FindByStripeSessionID(ctx, session.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No local ledger row: an orphaned provider session. Nothing to
			// mark paid, safe to acknowledge.
			s.warn(ctx, fmt.Sprintf("stripe session %s has no ledger row", session.ID))
			s.metrics.IncWebhook("ignored")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment session")
	}

	if stored.Status == enums.SessionStatusCompleted {
		s.info(ctx, fmt.Sprintf("stripe session %s already completed, skipping", session.ID))
		s.metrics.IncWebhook("duplicate")
		return nil
	}

	if stored.ResumeID != meta.ResumeID {
		s.warn(ctx, fmt.Sprintf("stripe session %s metadata resume %s disagrees with ledger %s",
			session.ID, meta.ResumeID, stored.ResumeID))
	}

	intentID := paymentIntentID(session)
	now := time.Now().UTC()

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.sessions.WithTx(tx).MarkCompleted(ctx, session.ID, intentID); err != nil {
			return fmt.Errorf("mark session completed: %w", err)
		}
		fields := map[string]any{
			"is_paid":        true,
			"paid_at":        now,
			"payment_status": enums.PaymentStatusCompleted,
		}
		if intentID != nil {
			fields["stripe_payment_intent_id"] = *intentID
		}
		if err := s.resumes.WithTx(tx).UpdateFields(ctx, stored.ResumeID, fields); err != nil {
			return fmt.Errorf("mark resume paid: %w", err)
		}
		return nil
	})
	if err != nil {
		s.metrics.IncWebhook("failed")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply completed event")
	}

	s.sendReceipt(ctx, stored)
	s.metrics.IncWebhook("processed")
	return nil
}

func (s *Service) handleFailed(ctx context.Context, session *stripe.CheckoutSession) error {
	stored, err := s.sessions.FindByStripeSessionID(ctx, session.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.metrics.IncWebhook("ignored")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment session")
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.sessions.WithTx(tx).MarkFailed(ctx, session.ID); err != nil {
			return fmt.Errorf("mark session failed: %w", err)
		}

		resume, err := s.resumes.WithTx(tx).FindByID(ctx, stored.ResumeID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("load resume: %w", err)
		}
		// A failure for an old session never demotes a paid resume; only
		// the ledger row is marked.
		if resume.PaymentStatus == enums.PaymentStatusCompleted {
			return nil
		}
		return s.resumes.WithTx(tx).UpdateFields(ctx, stored.ResumeID, map[string]any{
			"payment_status": enums.PaymentStatusFailed,
		})
	})
	if err != nil {
		s.metrics.IncWebhook("failed")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply failed event")
	}

	s.metrics.IncWebhook("processed")
	return nil
}

// sendReceipt delivers the confirmation email best-effort. A send failure
// never fails the webhook; redelivery would re-run the whole event.
func (s *Service) sendReceipt(ctx context.Context, session *models.PaymentSession) {
	if s.mailer == nil {
		return
	}
	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		s.warn(ctx, fmt.Sprintf("receipt skipped, user %s lookup failed: %v", session.UserID, err))
		return
	}

	amount := decimal.NewFromInt(session.AmountCents).Div(decimal.NewFromInt(100))
	msg := mailer.Message{
		To:      user.Email,
		Subject: "Your resume purchase is confirmed",
		TextBody: fmt.Sprintf(
			"Hi %s,\n\nYour payment of %s %s was received. Your resume now has full access to premium templates and exports.\n\nThanks,\nThe ResumeLoft team",
			user.FirstName, amount.StringFixed(2), strings.ToUpper(session.Currency),
		),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.warn(ctx, fmt.Sprintf("receipt email to user %s failed: %v", session.UserID, err))
	}
}

func (s *Service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func (s *Service) warn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}

func decodeSession(event *stripe.Event) (*stripe.CheckoutSession, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
	}
	return &session, nil
}

func paymentIntentID(session *stripe.CheckoutSession) *string {
	if session == nil || session.PaymentIntent == nil || session.PaymentIntent.ID == "" {
		return nil
	}
	id := session.PaymentIntent.ID
	return &id
}
