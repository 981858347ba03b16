package entitlements

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/resumeloft/backend/pkg/db/models"
	"github.com/resumeloft/backend/pkg/enums"
	pkgerrors "github.com/resumeloft/backend/pkg/errors"
	"gorm.io/gorm"
)

// Decision is the access verdict for a resume/user pair. Denial is a value,
// not an error: callers branch on Allowed and Reason.
type Decision struct {
	Allowed bool               `json:"allowed"`
	Reason  enums.AccessReason `json:"reason"`
}

// Granted reports whether the decision permits premium access.
func (d Decision) Granted() bool { return d.Allowed }

// NotFound reports whether the resume was absent or owned by another user.
func (d Decision) NotFound() bool { return d.Reason == enums.AccessReasonNotFound }

type resumeFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Resume, error)
	FindEarliestFreeTemplate(ctx context.Context, userID uuid.UUID) (*models.Resume, error)
}

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Service computes entitlement decisions from persisted payment state.
// It reads only; payment fields are written by the webhook reconciler.
type Service interface {
	CheckResumeAccess(ctx context.Context, userID, resumeID uuid.UUID) (Decision, error)
	CheckResume(ctx context.Context, userID uuid.UUID, resume *models.Resume) (Decision, error)
	CanCreateResume(ctx context.Context, userID uuid.UUID, template enums.ResumeTemplate) (Decision, error)
	CanChangeTemplate(ctx context.Context, userID, resumeID uuid.UUID, newTemplate enums.ResumeTemplate) (Decision, error)
}

// ServiceParams bundles the dependencies required to build the resolver.
type ServiceParams struct {
	ResumeRepo resumeFinder
	UserRepo   userFinder
}

type service struct {
	resumes resumeFinder
	users   userFinder
}

// NewService constructs the entitlement resolver.
func NewService(params ServiceParams) (Service, error) {
	if params.ResumeRepo == nil {
		return nil, fmt.Errorf("resume repository is required")
	}
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	return &service{resumes: params.ResumeRepo, users: params.UserRepo}, nil
}

// CheckResumeAccess loads the resume and evaluates access for the user.
func (s *service) CheckResumeAccess(ctx context.Context, userID, resumeID uuid.UUID) (Decision, error) {
	resume, err := s.resumes.FindByID(ctx, resumeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Decision{Reason: enums.AccessReasonNotFound}, nil
		}
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load resume")
	}
	return s.CheckResume(ctx, userID, resume)
}

// CheckResume evaluates access for an already-loaded resume. Ownership
// mismatch is reported as not found so resume ids cannot be probed.
func (s *service) CheckResume(ctx context.Context, userID uuid.UUID, resume *models.Resume) (Decision, error) {
	if resume == nil || resume.UserID != userID {
		return Decision{Reason: enums.AccessReasonNotFound}, nil
	}

	if resume.IsPaid {
		return Decision{Allowed: true, Reason: enums.AccessReasonPaid}, nil
	}

	if resume.Template.IsFree() {
		// The free slot is re-derived from creation order on every call
		// rather than cached on the resume row, so deletions cannot leave
		// a stale grant behind.
		earliest, err := s.resumes.FindEarliestFreeTemplate(ctx, userID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return Decision{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find earliest free-template resume")
		}
		if earliest != nil && earliest.ID == resume.ID {
			return Decision{Allowed: true, Reason: enums.AccessReasonFreeSlot}, nil
		}
	}

	return Decision{Allowed: false, Reason: enums.AccessReasonPaymentRequired}, nil
}

// CanCreateResume decides whether a new resume with the given template is
// free. Only the first creation is, and only under the free template.
func (s *service) CanCreateResume(ctx context.Context, userID uuid.UUID, template enums.ResumeTemplate) (Decision, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Decision{Reason: enums.AccessReasonNotFound}, nil
		}
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}

	if !user.FreeSlotUsed && template.IsFree() {
		return Decision{Allowed: true, Reason: enums.AccessReasonFreeSlot}, nil
	}
	return Decision{Allowed: false, Reason: enums.AccessReasonPaymentRequired}, nil
}

// CanChangeTemplate allows any template on a paid resume; unpaid resumes may
// only move to the free template.
func (s *service) CanChangeTemplate(ctx context.Context, userID, resumeID uuid.UUID, newTemplate enums.ResumeTemplate) (Decision, error) {
	resume, err := s.resumes.FindByID(ctx, resumeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Decision{Reason: enums.AccessReasonNotFound}, nil
		}
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load resume")
	}
	if resume.UserID != userID {
		return Decision{Reason: enums.AccessReasonNotFound}, nil
	}

	if resume.IsPaid {
		return Decision{Allowed: true, Reason: enums.AccessReasonPaid}, nil
	}
	if newTemplate.IsFree() {
		return Decision{Allowed: true, Reason: enums.AccessReasonFreeSlot}, nil
	}
	return Decision{Allowed: false, Reason: enums.AccessReasonPaymentRequired}, nil
}
