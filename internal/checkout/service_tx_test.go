package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/resumeloft/backend/internal/resumes"
	"github.com/resumeloft/backend/pkg/db/models"
	"github.com/resumeloft/backend/pkg/enums"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var errAbortTx = errors.New("abort transaction")

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// abortingTxRunner fails the transaction after the closure succeeds, so
// every write inside the closure must roll back together.
type abortingTxRunner struct {
	db *gorm.DB
}

func (r abortingTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errAbortTx
	})
}

func setupCheckoutTxDB(t *testing.T) (*gorm.DB, *models.Resume) {
	t.Helper()

	db := setupSessionsTestDB(t)
	resumesDDL := `
CREATE TABLE IF NOT EXISTS resumes (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  title TEXT NOT NULL,
  template TEXT NOT NULL,
  content TEXT,
  is_paid INTEGER NOT NULL DEFAULT 0,
  paid_at DATETIME,
  payment_status TEXT NOT NULL DEFAULT 'none',
  stripe_payment_intent_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(resumesDDL).Error)

	resume := &models.Resume{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		Title:         "SRE",
		Template:      enums.TemplateModern,
		Content:       json.RawMessage(`{}`),
		PaymentStatus: enums.PaymentStatusNone,
	}
	require.NoError(t, db.Create(resume).Error)
	return db, resume
}

func newTxCheckoutService(t *testing.T, db *gorm.DB, runner txRunner) Service {
	t.Helper()

	users := &stubUserRepo{findFn: func(ctx context.Context, id uuid.UUID) (*models.User, error) {
		return paidCustomerUser(id), nil
	}}
	svc, err := NewService(ServiceParams{
		DB:           runner,
		SessionRepo:  NewRepository(db),
		ResumeRepo:   resumes.NewRepository(db),
		UserRepo:     users,
		StripeClient: &stubStripeClient{},
		StripeConfig: testStripeConfig(),
	})
	require.NoError(t, err)
	return svc
}

func TestCreateCheckoutCommitsLedgerAndResumeTogether(t *testing.T) {
	db, resume := setupCheckoutTxDB(t)
	svc := newTxCheckoutService(t, db, gormTxRunner{db: db})

	_, err := svc.CreateCheckout(context.Background(), resume.UserID, resume.ID)
	require.NoError(t, err)

	var sessionCount int64
	require.NoError(t, db.Model(&models.PaymentSession{}).Where("resume_id = ?", resume.ID).Count(&sessionCount).Error)
	assert.Equal(t, int64(1), sessionCount)

	var stored models.Resume
	require.NoError(t, db.Where("id = ?", resume.ID).First(&stored).Error)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
}

func TestCreateCheckoutRollbackLeavesNoPartialState(t *testing.T) {
	db, resume := setupCheckoutTxDB(t)
	svc := newTxCheckoutService(t, db, abortingTxRunner{db: db})

	_, err := svc.CreateCheckout(context.Background(), resume.UserID, resume.ID)
	require.Error(t, err)

	var sessionCount int64
	require.NoError(t, db.Model(&models.PaymentSession{}).Where("resume_id = ?", resume.ID).Count(&sessionCount).Error)
	assert.Zero(t, sessionCount, "no ledger row may survive the rollback")

	var stored models.Resume
	require.NoError(t, db.Where("id = ?", resume.ID).First(&stored).Error)
	assert.Equal(t, enums.PaymentStatusNone, stored.PaymentStatus, "the resume must not be left pending without a ledger row")
}
