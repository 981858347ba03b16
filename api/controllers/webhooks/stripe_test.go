package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkgerrors "github.com/resumeloft/backend/pkg/errors"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const testSigningSecret = "whsec_test_secret"

type stubService struct {
	handled []*stripe.Event
	err     error
}

func (s *stubService) HandleEvent(ctx context.Context, event *stripe.Event) error {
	s.handled = append(s.handled, event)
	return s.err
}

type stubGuard struct {
	seen    bool
	err     error
	deleted []string
}

func (s *stubGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	return s.seen, s.err
}

func (s *stubGuard) Delete(ctx context.Context, eventID string) error {
	s.deleted = append(s.deleted, eventID)
	return nil
}

type stubClient struct{}

func (stubClient) SigningSecret() string { return testSigningSecret }

func signedHeader(t *testing.T, payload []byte) string {
	t.Helper()
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, testSigningSecret)
	return fmt.Sprintf("t=%d,v1=%x", now.Unix(), sig)
}

func eventPayload() []byte {
	return []byte(`{"id":"evt_test","object":"event","api_version":"` + stripe.APIVersion + `","type":"checkout.session.completed","data":{"object":{"id":"cs_test"}}}`)
}

func postWebhook(handler http.HandlerFunc, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestStripeWebhookMissingSignature(t *testing.T) {
	svc := &stubService{}
	handler := StripeWebhook(svc, stubClient{}, &stubGuard{}, nil)

	rec := postWebhook(handler, eventPayload(), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(svc.handled) != 0 {
		t.Fatal("unsigned request must not reach the service")
	}
}

func TestStripeWebhookInvalidSignature(t *testing.T) {
	svc := &stubService{}
	guard := &stubGuard{}
	handler := StripeWebhook(svc, stubClient{}, guard, nil)

	payload := eventPayload()
	forged := fmt.Sprintf("t=%d,v1=%x", time.Now().Unix(), []byte("not a signature"))
	rec := postWebhook(handler, payload, forged)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(svc.handled) != 0 {
		t.Fatal("a forged signature must not reach the service")
	}
	if len(guard.deleted) != 0 {
		t.Fatal("guard must not be touched for a forged signature")
	}
}

func TestStripeWebhookValidSignatureProcessed(t *testing.T) {
	svc := &stubService{}
	handler := StripeWebhook(svc, stubClient{}, &stubGuard{}, nil)

	payload := eventPayload()
	rec := postWebhook(handler, payload, signedHeader(t, payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.handled) != 1 || svc.handled[0].ID != "evt_test" {
		t.Fatalf("event not handled: %+v", svc.handled)
	}
}

func TestStripeWebhookDuplicateDeliverySkipsService(t *testing.T) {
	svc := &stubService{}
	handler := StripeWebhook(svc, stubClient{}, &stubGuard{seen: true}, nil)

	payload := eventPayload()
	rec := postWebhook(handler, payload, signedHeader(t, payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", rec.Code)
	}
	if len(svc.handled) != 0 {
		t.Fatal("duplicate delivery must not reach the service")
	}
}

func TestStripeWebhookGuardOutageStillProcesses(t *testing.T) {
	svc := &stubService{}
	guard := &stubGuard{err: fmt.Errorf("redis: connection refused")}
	handler := StripeWebhook(svc, stubClient{}, guard, nil)

	payload := eventPayload()
	rec := postWebhook(handler, payload, signedHeader(t, payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 despite guard outage, got %d", rec.Code)
	}
	if len(svc.handled) != 1 {
		t.Fatal("the event must still reach the service when the guard is down")
	}
}

func TestStripeWebhookFailureClearsGuard(t *testing.T) {
	svc := &stubService{err: pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")}
	guard := &stubGuard{}
	handler := StripeWebhook(svc, stubClient{}, guard, nil)

	payload := eventPayload()
	rec := postWebhook(handler, payload, signedHeader(t, payload))
	if rec.Code < 500 {
		t.Fatalf("expected server error, got %d", rec.Code)
	}
	if len(guard.deleted) != 1 || guard.deleted[0] != "evt_test" {
		t.Fatalf("guard mark not cleared: %v", guard.deleted)
	}
}
