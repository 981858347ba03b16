package resumes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/resumeloft/backend/internal/entitlements"
	"github.com/resumeloft/backend/internal/users"
	"github.com/resumeloft/backend/pkg/db/models"
	"github.com/resumeloft/backend/pkg/enums"
	pkgerrors "github.com/resumeloft/backend/pkg/errors"
	"github.com/resumeloft/backend/pkg/pagination"
	"gorm.io/gorm"
)

// Service exposes the resume CRUD surface. Every content-bearing operation
// resolves entitlement before returning or mutating premium fields.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, req CreateResumeRequest) (*ResumeDTO, error)
	Get(ctx context.Context, userID, resumeID uuid.UUID) (*ResumeDTO, error)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResumesResponse, error)
	Update(ctx context.Context, userID, resumeID uuid.UUID, req UpdateResumeRequest) (*ResumeDTO, error)
	Delete(ctx context.Context, userID, resumeID uuid.UUID) error
	Export(ctx context.Context, userID, resumeID uuid.UUID) (*ResumeDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	db           txRunner
	repo         Repository
	users        users.Repository
	entitlements entitlements.Service
}

// ServiceParams bundles the dependencies required to build a resume service.
type ServiceParams struct {
	DB           txRunner
	Repo         Repository
	UserRepo     users.Repository
	Entitlements entitlements.Service
}

// NewService constructs the resume service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("database client is required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("resume repository is required")
	}
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.Entitlements == nil {
		return nil, fmt.Errorf("entitlement service is required")
	}
	return &service{
		db:           params.DB,
		repo:         params.Repo,
		users:        params.UserRepo,
		entitlements: params.Entitlements,
	}, nil
}

// Create persists a new resume. The first creation consumes the account's
// free slot whether or not the template qualifies for it, so no later
// resume can be free.
func (s *service) Create(ctx context.Context, userID uuid.UUID, req CreateResumeRequest) (*ResumeDTO, error) {
	template, err := enums.ParseResumeTemplate(req.Template)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid template").
			WithDetails(map[string]string{"template": req.Template})
	}

	decision, err := s.entitlements.CanCreateResume(ctx, userID, template)
	if err != nil {
		return nil, err
	}
	if decision.NotFound() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}

	content := req.Content
	if len(content) == 0 {
		content = json.RawMessage(`{}`)
	}

	var created *models.Resume
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		resume, err := s.repo.WithTx(tx).Create(ctx, CreateResumeDTO{
			UserID:   userID,
			Title:    req.Title,
			Template: template,
			Content:  content,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create resume")
		}
		if err := s.users.WithTx(tx).MarkFreeSlotUsed(ctx, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "consume free slot")
		}
		created = resume
		return nil
	})
	if err != nil {
		return nil, err
	}

	access, err := s.entitlements.CheckResume(ctx, userID, created)
	if err != nil {
		return nil, err
	}
	dto := FromModel(created, access)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, userID, resumeID uuid.UUID) (*ResumeDTO, error) {
	resume, decision, err := s.load(ctx, userID, resumeID)
	if err != nil {
		return nil, err
	}
	dto := FromModel(resume, decision)
	return &dto, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResumesResponse, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}

	rows, next, err := s.repo.List(ctx, ListParams{
		UserID: userID,
		Limit:  params.Limit,
		Cursor: cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list resumes")
	}

	items := make([]ResumeDTO, 0, len(rows))
	for i := range rows {
		decision, err := s.entitlements.CheckResume(ctx, userID, &rows[i])
		if err != nil {
			return nil, err
		}
		items = append(items, FromModel(&rows[i], decision))
	}

	resp := &ListResumesResponse{Items: items}
	if next != nil {
		encoded := pagination.EncodeCursor(*next)
		resp.NextCursor = &encoded
	}
	return resp, nil
}

// Update applies a patch. Without entitlement only the title may change;
// any other field yields a payment-required rejection.
func (s *service) Update(ctx context.Context, userID, resumeID uuid.UUID, req UpdateResumeRequest) (*ResumeDTO, error) {
	_, decision, err := s.load(ctx, userID, resumeID)
	if err != nil {
		return nil, err
	}

	touchesPremium := len(req.Content) > 0 || req.Template != nil
	if !decision.Allowed && touchesPremium {
		return nil, pkgerrors.New(pkgerrors.CodePaymentRequired, "payment required to edit this resume").
			WithDetails(map[string]string{"resume_id": resumeID.String()})
	}

	fields := map[string]any{}
	if req.Title != nil {
		fields["title"] = *req.Title
	}
	if req.Template != nil {
		template, err := enums.ParseResumeTemplate(*req.Template)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid template").
				WithDetails(map[string]string{"template": *req.Template})
		}
		templateDecision, err := s.entitlements.CanChangeTemplate(ctx, userID, resumeID, template)
		if err != nil {
			return nil, err
		}
		if !templateDecision.Allowed {
			return nil, pkgerrors.New(pkgerrors.CodePaymentRequired, "payment required to switch template").
				WithDetails(map[string]string{"template": string(template)})
		}
		fields["template"] = template
	}
	if len(req.Content) > 0 {
		fields["content"] = req.Content
	}

	if len(fields) > 0 {
		if err := s.repo.UpdateFields(ctx, resumeID, fields); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update resume")
		}
	}

	return s.Get(ctx, userID, resumeID)
}

func (s *service) Delete(ctx context.Context, userID, resumeID uuid.UUID) error {
	resume, err := s.repo.FindByID(ctx, resumeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "resume not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load resume")
	}
	if resume.UserID != userID {
		return pkgerrors.New(pkgerrors.CodeNotFound, "resume not found")
	}
	if err := s.repo.Delete(ctx, resumeID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete resume")
	}
	return nil
}

// Export returns the full document payload for rendering. It is a premium
// read, so denial surfaces as payment required rather than a filtered view.
func (s *service) Export(ctx context.Context, userID, resumeID uuid.UUID) (*ResumeDTO, error) {
	resume, decision, err := s.load(ctx, userID, resumeID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, pkgerrors.New(pkgerrors.CodePaymentRequired, "payment required to export this resume").
			WithDetails(map[string]string{"resume_id": resumeID.String()})
	}
	dto := FromModel(resume, decision)
	return &dto, nil
}

func (s *service) load(ctx context.Context, userID, resumeID uuid.UUID) (*models.Resume, entitlements.Decision, error) {
	resume, err := s.repo.FindByID(ctx, resumeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entitlements.Decision{}, pkgerrors.New(pkgerrors.CodeNotFound, "resume not found")
		}
		return nil, entitlements.Decision{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load resume")
	}

	decision, err := s.entitlements.CheckResume(ctx, userID, resume)
	if err != nil {
		return nil, entitlements.Decision{}, err
	}
	if decision.NotFound() {
		return nil, entitlements.Decision{}, pkgerrors.New(pkgerrors.CodeNotFound, "resume not found")
	}
	return resume, decision, nil
}
