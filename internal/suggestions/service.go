package suggestions

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/resumeloft/backend/internal/entitlements"
	pkgerrors "github.com/resumeloft/backend/pkg/errors"
)

const systemPrompt = "You are a professional resume writer. Rewrite the provided text to be concise, " +
	"achievement-oriented, and written in strong action verbs. Return only the rewritten text."

// SuggestRequest carries the text to improve for a given resume section.
type SuggestRequest struct {
	Section string `json:"section" validate:"required,max=100"`
	Text    string `json:"text" validate:"required,max=4000"`
}

// SuggestResponse returns the improved text.
type SuggestResponse struct {
	Section    string `json:"section"`
	Suggestion string `json:"suggestion"`
}

type completionClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Service produces AI rewrite suggestions. It is a premium feature: every
// call resolves entitlement for the target resume first.
type Service interface {
	Suggest(ctx context.Context, userID, resumeID uuid.UUID, req SuggestRequest) (*SuggestResponse, error)
}

// ServiceParams bundles the dependencies required to build the suggestion service.
type ServiceParams struct {
	Entitlements entitlements.Service
	Completions  completionClient
}

type service struct {
	entitlements entitlements.Service
	completions  completionClient
}

// NewService constructs the suggestion service.
func NewService(params ServiceParams) (Service, error) {
	if params.Entitlements == nil {
		return nil, fmt.Errorf("entitlement service is required")
	}
	if params.Completions == nil {
		return nil, fmt.Errorf("completion client is required")
	}
	return &service{
		entitlements: params.Entitlements,
		completions:  params.Completions,
	}, nil
}

func (s *service) Suggest(ctx context.Context, userID, resumeID uuid.UUID, req SuggestRequest) (*SuggestResponse, error) {
	decision, err := s.entitlements.CheckResumeAccess(ctx, userID, resumeID)
	if err != nil {
		return nil, err
	}
	if decision.NotFound() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "resume not found")
	}
	if !decision.Allowed {
		return nil, pkgerrors.New(pkgerrors.CodePaymentRequired, "payment required for AI suggestions").
			WithDetails(map[string]string{"resume_id": resumeID.String()})
	}

	prompt := fmt.Sprintf("Section: %s\n\n%s", req.Section, req.Text)
	suggestion, err := s.completions.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate suggestion")
	}

	return &SuggestResponse{
		Section:    req.Section,
		Suggestion: strings.TrimSpace(suggestion),
	}, nil
}
