package resumes

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/resumeloft/backend/internal/entitlements"
	"github.com/resumeloft/backend/internal/users"
	"github.com/resumeloft/backend/pkg/db/models"
	"github.com/resumeloft/backend/pkg/enums"
	pkgerrors "github.com/resumeloft/backend/pkg/errors"
	"github.com/resumeloft/backend/pkg/pagination"
	"gorm.io/gorm"
)

type stubRepo struct {
	createFn   func(ctx context.Context, dto CreateResumeDTO) (*models.Resume, error)
	findFn     func(ctx context.Context, id uuid.UUID) (*models.Resume, error)
	earliestFn func(ctx context.Context, userID uuid.UUID) (*models.Resume, error)
	listFn     func(ctx context.Context, params ListParams) ([]models.Resume, *pagination.Cursor, error)
	updateFn   func(ctx context.Context, id uuid.UUID, fields map[string]any) error
	deleteFn   func(ctx context.Context, id uuid.UUID) error
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) Create(ctx context.Context, dto CreateResumeDTO) (*models.Resume, error) {
	if s.createFn != nil {
		return s.createFn(ctx, dto)
	}
	return nil, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Resume, error) {
	if s.findFn != nil {
		return s.findFn(ctx, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) FindEarliestFreeTemplate(ctx context.Context, userID uuid.UUID) (*models.Resume, error) {
	if s.earliestFn != nil {
		return s.earliestFn(ctx, userID)
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) List(ctx context.Context, params ListParams) ([]models.Resume, *pagination.Cursor, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return nil, nil, nil
}

func (s *stubRepo) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, id, fields)
	}
	return nil
}

func (s *stubRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	return nil
}

type stubEntitlements struct {
	checkFn     func(ctx context.Context, userID uuid.UUID, resume *models.Resume) (entitlements.Decision, error)
	canCreateFn func(ctx context.Context, userID uuid.UUID, template enums.ResumeTemplate) (entitlements.Decision, error)
	canChangeFn func(ctx context.Context, userID, resumeID uuid.UUID, template enums.ResumeTemplate) (entitlements.Decision, error)
}

func (s *stubEntitlements) CheckResumeAccess(ctx context.Context, userID, resumeID uuid.UUID) (entitlements.Decision, error) {
	return entitlements.Decision{}, nil
}

func (s *stubEntitlements) CheckResume(ctx context.Context, userID uuid.UUID, resume *models.Resume) (entitlements.Decision, error) {
	if s.checkFn != nil {
		return s.checkFn(ctx, userID, resume)
	}
	return entitlements.Decision{Allowed: true, Reason: enums.AccessReasonPaid}, nil
}

func (s *stubEntitlements) CanCreateResume(ctx context.Context, userID uuid.UUID, template enums.ResumeTemplate) (entitlements.Decision, error) {
	if s.canCreateFn != nil {
		return s.canCreateFn(ctx, userID, template)
	}
	return entitlements.Decision{Allowed: true, Reason: enums.AccessReasonFreeSlot}, nil
}

func (s *stubEntitlements) CanChangeTemplate(ctx context.Context, userID, resumeID uuid.UUID, template enums.ResumeTemplate) (entitlements.Decision, error) {
	if s.canChangeFn != nil {
		return s.canChangeFn(ctx, userID, resumeID, template)
	}
	return entitlements.Decision{Allowed: true, Reason: enums.AccessReasonPaid}, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

type stubSlotMarker struct {
	marked []uuid.UUID
}

func (s *stubSlotMarker) WithTx(tx *gorm.DB) users.Repository { return s }

func (s *stubSlotMarker) Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error) {
	return nil, nil
}

func (s *stubSlotMarker) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubSlotMarker) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubSlotMarker) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

func (s *stubSlotMarker) MarkFreeSlotUsed(ctx context.Context, id uuid.UUID) error {
	s.marked = append(s.marked, id)
	return nil
}

func (s *stubSlotMarker) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	return nil
}

func newResumeService(t *testing.T, repo Repository, userRepo users.Repository, ent entitlements.Service) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		DB:           stubTxRunner{},
		Repo:         repo,
		UserRepo:     userRepo,
		Entitlements: ent,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return svc
}

func TestCreateConsumesFreeSlot(t *testing.T) {
	userID := uuid.New()
	users := &stubSlotMarker{}
	repo := &stubRepo{
		createFn: func(ctx context.Context, dto CreateResumeDTO) (*models.Resume, error) {
			return &models.Resume{
				ID:            uuid.New(),
				UserID:        dto.UserID,
				Title:         dto.Title,
				Template:      dto.Template,
				Content:       dto.Content,
				PaymentStatus: enums.PaymentStatusNone,
			}, nil
		},
	}

	svc := newResumeService(t, repo, users, &stubEntitlements{})
	dto, err := svc.Create(context.Background(), userID, CreateResumeRequest{
		Title:    "Backend Engineer",
		Template: string(enums.FreeTemplate),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users.marked) != 1 || users.marked[0] != userID {
		t.Fatalf("expected free slot marked for %s, got %v", userID, users.marked)
	}
	if string(dto.Content) != "{}" {
		t.Fatalf("expected defaulted content, got %q", dto.Content)
	}
}

func TestCreateRejectsUnknownTemplate(t *testing.T) {
	svc := newResumeService(t, &stubRepo{}, &stubSlotMarker{}, &stubEntitlements{})
	_, err := svc.Create(context.Background(), uuid.New(), CreateResumeRequest{
		Title:    "CV",
		Template: "brutalist",
	})
	if err == nil {
		t.Fatal("expected error for unknown template")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateTitleOnlyAllowedWithoutEntitlement(t *testing.T) {
	userID := uuid.New()
	resume := &models.Resume{ID: uuid.New(), UserID: userID, Template: enums.TemplateModern}

	var updated map[string]any
	repo := &stubRepo{
		findFn: func(ctx context.Context, id uuid.UUID) (*models.Resume, error) {
			return resume, nil
		},
		updateFn: func(ctx context.Context, id uuid.UUID, fields map[string]any) error {
			updated = fields
			return nil
		},
	}
	ent := &stubEntitlements{
		checkFn: func(ctx context.Context, id uuid.UUID, r *models.Resume) (entitlements.Decision, error) {
			return entitlements.Decision{Allowed: false, Reason: enums.AccessReasonPaymentRequired}, nil
		},
	}

	svc := newResumeService(t, repo, &stubSlotMarker{}, ent)
	title := "Lead Engineer"
	dto, err := svc.Update(context.Background(), userID, resume.ID, UpdateResumeRequest{Title: &title})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated["title"] != title {
		t.Fatalf("expected title update, got %v", updated)
	}
	if len(dto.Content) != 0 {
		t.Fatal("content should be stripped when access is denied")
	}
}

func TestUpdateContentDeniedWithoutEntitlement(t *testing.T) {
	userID := uuid.New()
	resume := &models.Resume{ID: uuid.New(), UserID: userID, Template: enums.TemplateModern}

	updateCalled := false
	repo := &stubRepo{
		findFn: func(ctx context.Context, id uuid.UUID) (*models.Resume, error) {
			return resume, nil
		},
		updateFn: func(ctx context.Context, id uuid.UUID, fields map[string]any) error {
			updateCalled = true
			return nil
		},
	}
	ent := &stubEntitlements{
		checkFn: func(ctx context.Context, id uuid.UUID, r *models.Resume) (entitlements.Decision, error) {
			return entitlements.Decision{Allowed: false, Reason: enums.AccessReasonPaymentRequired}, nil
		},
	}

	svc := newResumeService(t, repo, &stubSlotMarker{}, ent)
	_, err := svc.Update(context.Background(), userID, resume.ID, UpdateResumeRequest{
		Content: json.RawMessage(`{"summary":"..."}`),
	})
	if err == nil {
		t.Fatal("expected payment-required rejection")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodePaymentRequired {
		t.Fatalf("expected payment-required error, got %v", err)
	}
	if updateCalled {
		t.Fatal("no fields should be written on rejection")
	}
}

func TestUpdateTemplateSwitchDenied(t *testing.T) {
	userID := uuid.New()
	resume := &models.Resume{ID: uuid.New(), UserID: userID, Template: enums.FreeTemplate}

	repo := &stubRepo{
		findFn: func(ctx context.Context, id uuid.UUID) (*models.Resume, error) {
			return resume, nil
		},
	}
	ent := &stubEntitlements{
		checkFn: func(ctx context.Context, id uuid.UUID, r *models.Resume) (entitlements.Decision, error) {
			return entitlements.Decision{Allowed: true, Reason: enums.AccessReasonFreeSlot}, nil
		},
		canChangeFn: func(ctx context.Context, uid, rid uuid.UUID, template enums.ResumeTemplate) (entitlements.Decision, error) {
			return entitlements.Decision{Allowed: false, Reason: enums.AccessReasonPaymentRequired}, nil
		},
	}

	svc := newResumeService(t, repo, &stubSlotMarker{}, ent)
	premium := string(enums.TemplateExecutive)
	_, err := svc.Update(context.Background(), userID, resume.ID, UpdateResumeRequest{Template: &premium})
	if err == nil {
		t.Fatal("expected payment-required rejection")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodePaymentRequired {
		t.Fatalf("expected payment-required error, got %v", err)
	}
}

func TestExportDeniedWithoutEntitlement(t *testing.T) {
	userID := uuid.New()
	resume := &models.Resume{ID: uuid.New(), UserID: userID, Template: enums.TemplateModern}

	repo := &stubRepo{
		findFn: func(ctx context.Context, id uuid.UUID) (*models.Resume, error) {
			return resume, nil
		},
	}
	ent := &stubEntitlements{
		checkFn: func(ctx context.Context, id uuid.UUID, r *models.Resume) (entitlements.Decision, error) {
			return entitlements.Decision{Allowed: false, Reason: enums.AccessReasonPaymentRequired}, nil
		},
	}

	svc := newResumeService(t, repo, &stubSlotMarker{}, ent)
	_, err := svc.Export(context.Background(), userID, resume.ID)
	if err == nil {
		t.Fatal("expected payment-required rejection")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodePaymentRequired {
		t.Fatalf("expected payment-required error, got %v", err)
	}
}

func TestDeleteForeignResumeReportsNotFound(t *testing.T) {
	resume := &models.Resume{ID: uuid.New(), UserID: uuid.New()}
	repo := &stubRepo{
		findFn: func(ctx context.Context, id uuid.UUID) (*models.Resume, error) {
			return resume, nil
		},
	}

	svc := newResumeService(t, repo, &stubSlotMarker{}, &stubEntitlements{})
	err := svc.Delete(context.Background(), uuid.New(), resume.ID)
	if err == nil {
		t.Fatal("expected not-found error")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestListForwardsCursorAndEncodesNext(t *testing.T) {
	userID := uuid.New()
	now := time.Now().UTC()
	next := pagination.Cursor{CreatedAt: now.Add(-time.Hour), ID: uuid.New()}

	var captured ListParams
	repo := &stubRepo{
		listFn: func(ctx context.Context, params ListParams) ([]models.Resume, *pagination.Cursor, error) {
			captured = params
			return []models.Resume{{ID: uuid.New(), UserID: userID, CreatedAt: now}}, &next, nil
		},
	}

	svc := newResumeService(t, repo, &stubSlotMarker{}, &stubEntitlements{})
	resp, err := svc.List(context.Background(), userID, pagination.Params{
		Limit:  5,
		Cursor: pagination.EncodeCursor(next),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.Limit != 5 {
		t.Fatalf("expected limit 5, got %d", captured.Limit)
	}
	if captured.Cursor == nil || captured.Cursor.ID != next.ID {
		t.Fatal("cursor not forwarded")
	}
	if resp.NextCursor == nil || *resp.NextCursor != pagination.EncodeCursor(next) {
		t.Fatal("next cursor not encoded")
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(resp.Items))
	}
}
