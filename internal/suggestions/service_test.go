package suggestions

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/resumeloft/backend/internal/entitlements"
	"github.com/resumeloft/backend/pkg/db/models"
	"github.com/resumeloft/backend/pkg/enums"
	pkgerrors "github.com/resumeloft/backend/pkg/errors"
)

type stubEntitlements struct {
	decision entitlements.Decision
}

func (s *stubEntitlements) CheckResumeAccess(ctx context.Context, userID, resumeID uuid.UUID) (entitlements.Decision, error) {
	return s.decision, nil
}

func (s *stubEntitlements) CheckResume(ctx context.Context, userID uuid.UUID, resume *models.Resume) (entitlements.Decision, error) {
	return s.decision, nil
}

func (s *stubEntitlements) CanCreateResume(ctx context.Context, userID uuid.UUID, template enums.ResumeTemplate) (entitlements.Decision, error) {
	return s.decision, nil
}

func (s *stubEntitlements) CanChangeTemplate(ctx context.Context, userID, resumeID uuid.UUID, template enums.ResumeTemplate) (entitlements.Decision, error) {
	return s.decision, nil
}

type stubCompletions struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubCompletions) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.prompts = append(s.prompts, userPrompt)
	return s.reply, s.err
}

func newSuggestionService(t *testing.T, decision entitlements.Decision, completions completionClient) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Entitlements: &stubEntitlements{decision: decision},
		Completions:  completions,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return svc
}

func TestSuggestRequiresEntitlement(t *testing.T) {
	completions := &stubCompletions{}
	svc := newSuggestionService(t, entitlements.Decision{
		Allowed: false,
		Reason:  enums.AccessReasonPaymentRequired,
	}, completions)

	_, err := svc.Suggest(context.Background(), uuid.New(), uuid.New(), SuggestRequest{
		Section: "experience",
		Text:    "did stuff",
	})
	if err == nil {
		t.Fatal("expected payment-required rejection")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodePaymentRequired {
		t.Fatalf("expected payment-required error, got %v", err)
	}
	if len(completions.prompts) != 0 {
		t.Fatal("denied request must not reach the completion API")
	}
}

func TestSuggestUnknownResumeIsNotFound(t *testing.T) {
	svc := newSuggestionService(t, entitlements.Decision{
		Reason: enums.AccessReasonNotFound,
	}, &stubCompletions{})

	_, err := svc.Suggest(context.Background(), uuid.New(), uuid.New(), SuggestRequest{
		Section: "summary",
		Text:    "text",
	})
	if err == nil {
		t.Fatal("expected not-found rejection")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestSuggestReturnsTrimmedCompletion(t *testing.T) {
	completions := &stubCompletions{reply: "  Led a team of five engineers.  \n"}
	svc := newSuggestionService(t, entitlements.Decision{
		Allowed: true,
		Reason:  enums.AccessReasonPaid,
	}, completions)

	resp, err := svc.Suggest(context.Background(), uuid.New(), uuid.New(), SuggestRequest{
		Section: "experience",
		Text:    "managed some people",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Suggestion != "Led a team of five engineers." {
		t.Fatalf("completion not trimmed: %q", resp.Suggestion)
	}
	if resp.Section != "experience" {
		t.Fatalf("section not echoed: %q", resp.Section)
	}
	if len(completions.prompts) != 1 || !strings.Contains(completions.prompts[0], "managed some people") {
		t.Fatalf("original text not forwarded: %v", completions.prompts)
	}
}

func TestSuggestProviderFailure(t *testing.T) {
	completions := &stubCompletions{err: fmt.Errorf("rate limited")}
	svc := newSuggestionService(t, entitlements.Decision{
		Allowed: true,
		Reason:  enums.AccessReasonPaid,
	}, completions)

	_, err := svc.Suggest(context.Background(), uuid.New(), uuid.New(), SuggestRequest{
		Section: "skills",
		Text:    "text",
	})
	if err == nil {
		t.Fatal("expected dependency error")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}
