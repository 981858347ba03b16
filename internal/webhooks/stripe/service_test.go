package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/resumeloft/backend/internal/checkout"
	"github.com/resumeloft/backend/internal/resumes"
	"github.com/resumeloft/backend/pkg/db/models"
	"github.com/resumeloft/backend/pkg/enums"
	"github.com/resumeloft/backend/pkg/mailer"
	"github.com/resumeloft/backend/pkg/pagination"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"
)

type stubSessionRepo struct {
	rows        map[string]*models.PaymentSession
	completed   []string
	failed      []string
	intentSaved *string
}

func newStubSessionRepo(rows ...*models.PaymentSession) *stubSessionRepo {
	s := &stubSessionRepo{rows: map[string]*models.PaymentSession{}}
	for _, row := range rows {
		s.rows[row.StripeSessionID] = row
	}
	return s
}

func (s *stubSessionRepo) WithTx(tx *gorm.DB) checkout.Repository { return s }

func (s *stubSessionRepo) Create(ctx context.Context, dto checkout.CreatePaymentSessionDTO) (*models.PaymentSession, error) {
	return nil, nil
}

func (s *stubSessionRepo) FindByStripeSessionID(ctx context.Context, stripeSessionID string) (*models.PaymentSession, error) {
	if row, ok := s.rows[stripeSessionID]; ok {
		return row, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubSessionRepo) FindLatestPendingByResume(ctx context.Context, resumeID uuid.UUID) (*models.PaymentSession, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubSessionRepo) MarkCompleted(ctx context.Context, stripeSessionID string, paymentIntentID *string) error {
	s.completed = append(s.completed, stripeSessionID)
	s.intentSaved = paymentIntentID
	return nil
}

func (s *stubSessionRepo) MarkFailed(ctx context.Context, stripeSessionID string) error {
	s.failed = append(s.failed, stripeSessionID)
	return nil
}

type stubResumeRepo struct {
	rows    map[uuid.UUID]*models.Resume
	updates map[uuid.UUID]map[string]any
}

func newStubResumeRepo(rows ...*models.Resume) *stubResumeRepo {
	s := &stubResumeRepo{
		rows:    map[uuid.UUID]*models.Resume{},
		updates: map[uuid.UUID]map[string]any{},
	}
	for _, row := range rows {
		s.rows[row.ID] = row
	}
	return s
}

func (s *stubResumeRepo) WithTx(tx *gorm.DB) resumes.Repository { return s }

func (s *stubResumeRepo) Create(ctx context.Context, dto resumes.CreateResumeDTO) (*models.Resume, error) {
	return nil, nil
}

func (s *stubResumeRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Resume, error) {
	if row, ok := s.rows[id]; ok {
		return row, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubResumeRepo) FindEarliestFreeTemplate(ctx context.Context, userID uuid.UUID) (*models.Resume, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubResumeRepo) List(ctx context.Context, params resumes.ListParams) ([]models.Resume, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (s *stubResumeRepo) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	s.updates[id] = fields
	return nil
}

func (s *stubResumeRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

type stubUserFinder struct {
	user *models.User
}

func (s *stubUserFinder) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if s.user != nil {
		return s.user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type stubMailer struct {
	sent []mailer.Message
	err  error
}

func (s *stubMailer) Send(ctx context.Context, msg mailer.Message) error {
	s.sent = append(s.sent, msg)
	return s.err
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func newWebhookService(t *testing.T, sessions checkout.Repository, resumeRepo resumes.Repository, users userFinder, mail mailSender) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		SessionRepo:       sessions,
		ResumeRepo:        resumeRepo,
		UserRepo:          users,
		Mailer:            mail,
		TransactionRunner: stubTxRunner{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return svc
}

func sessionEvent(t *testing.T, eventType stripe.EventType, sessionID string, meta map[string]string, intentID string) *stripe.Event {
	t.Helper()
	payload := map[string]any{
		"id":       sessionID,
		"metadata": meta,
	}
	if intentID != "" {
		payload["payment_intent"] = map[string]any{"id": intentID}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal session payload: %v", err)
	}
	return &stripe.Event{
		ID:   "evt_" + sessionID,
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func metadataFor(userID, resumeID uuid.UUID) map[string]string {
	return map[string]string{
		"user_id":   userID.String(),
		"resume_id": resumeID.String(),
	}
}

func TestHandleCompletedMarksSessionAndResume(t *testing.T) {
	userID := uuid.New()
	resume := &models.Resume{ID: uuid.New(), UserID: userID, PaymentStatus: enums.PaymentStatusPending}
	row := &models.PaymentSession{
		StripeSessionID: "cs_done",
		UserID:          userID,
		ResumeID:        resume.ID,
		AmountCents:     999,
		Currency:        "usd",
		Status:          enums.SessionStatusPending,
	}

	sessions := newStubSessionRepo(row)
	resumeRepo := newStubResumeRepo(resume)
	mail := &stubMailer{}
	users := &stubUserFinder{user: &models.User{ID: userID, Email: "jo@example.com", FirstName: "Jo"}}

	svc := newWebhookService(t, sessions, resumeRepo, users, mail)
	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, "cs_done", metadataFor(userID, resume.ID), "pi_123")
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sessions.completed) != 1 || sessions.completed[0] != "cs_done" {
		t.Fatalf("session not marked completed: %v", sessions.completed)
	}
	if sessions.intentSaved == nil || *sessions.intentSaved != "pi_123" {
		t.Fatal("payment intent not recorded")
	}
	fields, ok := resumeRepo.updates[resume.ID]
	if !ok {
		t.Fatal("resume not updated")
	}
	if fields["is_paid"] != true || fields["payment_status"] != enums.PaymentStatusCompleted {
		t.Fatalf("unexpected resume fields: %v", fields)
	}
	if len(mail.sent) != 1 {
		t.Fatalf("expected one receipt email, got %d", len(mail.sent))
	}
}

func TestHandleCompletedDuplicateIsNoOp(t *testing.T) {
	userID := uuid.New()
	resumeID := uuid.New()
	row := &models.PaymentSession{
		StripeSessionID: "cs_dup",
		UserID:          userID,
		ResumeID:        resumeID,
		Status:          enums.SessionStatusCompleted,
	}

	sessions := newStubSessionRepo(row)
	resumeRepo := newStubResumeRepo()
	mail := &stubMailer{}

	svc := newWebhookService(t, sessions, resumeRepo, &stubUserFinder{}, mail)
	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, "cs_dup", metadataFor(userID, resumeID), "")
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sessions.completed) != 0 {
		t.Fatal("duplicate delivery must not rewrite the ledger")
	}
	if len(resumeRepo.updates) != 0 {
		t.Fatal("duplicate delivery must not touch the resume")
	}
	if len(mail.sent) != 0 {
		t.Fatal("duplicate delivery must not resend the receipt")
	}
}

func TestHandleCompletedOrphanedSessionAcknowledged(t *testing.T) {
	sessions := newStubSessionRepo()
	resumeRepo := newStubResumeRepo()

	svc := newWebhookService(t, sessions, resumeRepo, &stubUserFinder{}, &stubMailer{})
	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, "cs_ghost", metadataFor(uuid.New(), uuid.New()), "")
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("orphaned session must be acknowledged, got %v", err)
	}
	if len(resumeRepo.updates) != 0 {
		t.Fatal("orphaned session must not write anything")
	}
}

func TestHandleCompletedMalformedMetadataAcknowledged(t *testing.T) {
	row := &models.PaymentSession{StripeSessionID: "cs_bad", ResumeID: uuid.New(), Status: enums.SessionStatusPending}
	sessions := newStubSessionRepo(row)
	resumeRepo := newStubResumeRepo()

	svc := newWebhookService(t, sessions, resumeRepo, &stubUserFinder{}, &stubMailer{})
	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, "cs_bad", map[string]string{"user_id": "garbage"}, "")
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unusable metadata must be acknowledged, got %v", err)
	}
	if len(sessions.completed) != 0 || len(resumeRepo.updates) != 0 {
		t.Fatal("unusable metadata must not write anything")
	}
}

func TestHandleExpiredMarksFailure(t *testing.T) {
	userID := uuid.New()
	resume := &models.Resume{ID: uuid.New(), UserID: userID, PaymentStatus: enums.PaymentStatusPending}
	row := &models.PaymentSession{
		StripeSessionID: "cs_exp",
		UserID:          userID,
		ResumeID:        resume.ID,
		Status:          enums.SessionStatusPending,
	}

	sessions := newStubSessionRepo(row)
	resumeRepo := newStubResumeRepo(resume)

	svc := newWebhookService(t, sessions, resumeRepo, &stubUserFinder{}, &stubMailer{})
	event := sessionEvent(t, stripe.EventTypeCheckoutSessionExpired, "cs_exp", metadataFor(userID, resume.ID), "")
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sessions.failed) != 1 {
		t.Fatal("session not marked failed")
	}
	fields := resumeRepo.updates[resume.ID]
	if fields["payment_status"] != enums.PaymentStatusFailed {
		t.Fatalf("resume not marked failed: %v", fields)
	}
}

func TestHandleExpiredNeverDemotesPaidResume(t *testing.T) {
	userID := uuid.New()
	resume := &models.Resume{ID: uuid.New(), UserID: userID, IsPaid: true, PaymentStatus: enums.PaymentStatusCompleted}
	row := &models.PaymentSession{
		StripeSessionID: "cs_old",
		UserID:          userID,
		ResumeID:        resume.ID,
		Status:          enums.SessionStatusPending,
	}

	sessions := newStubSessionRepo(row)
	resumeRepo := newStubResumeRepo(resume)

	svc := newWebhookService(t, sessions, resumeRepo, &stubUserFinder{}, &stubMailer{})
	event := sessionEvent(t, stripe.EventTypeCheckoutSessionExpired, "cs_old", metadataFor(userID, resume.ID), "")
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sessions.failed) != 1 {
		t.Fatal("ledger row should still be marked failed")
	}
	if _, touched := resumeRepo.updates[resume.ID]; touched {
		t.Fatal("a completed resume must never be demoted")
	}
}

func TestHandleEventIgnoresUnknownTypes(t *testing.T) {
	svc := newWebhookService(t, newStubSessionRepo(), newStubResumeRepo(), &stubUserFinder{}, &stubMailer{})
	event := &stripe.Event{
		ID:   "evt_other",
		Type: stripe.EventType("invoice.created"),
		Data: &stripe.EventData{Raw: json.RawMessage(`{}`)},
	}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReceiptFailureDoesNotFailEvent(t *testing.T) {
	userID := uuid.New()
	resume := &models.Resume{ID: uuid.New(), UserID: userID, PaymentStatus: enums.PaymentStatusPending}
	row := &models.PaymentSession{
		StripeSessionID: "cs_mail",
		UserID:          userID,
		ResumeID:        resume.ID,
		AmountCents:     999,
		Currency:        "usd",
		Status:          enums.SessionStatusPending,
	}

	sessions := newStubSessionRepo(row)
	resumeRepo := newStubResumeRepo(resume)
	mail := &stubMailer{err: fmt.Errorf("smtp down")}
	users := &stubUserFinder{user: &models.User{ID: userID, Email: "jo@example.com"}}

	svc := newWebhookService(t, sessions, resumeRepo, users, mail)
	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, "cs_mail", metadataFor(userID, resume.ID), "")
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("receipt failure must not fail the event, got %v", err)
	}
}
