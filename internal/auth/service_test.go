package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pkgAuth "github.com/resumeloft/backend/pkg/auth"
	"github.com/resumeloft/backend/pkg/auth/session"
	"github.com/resumeloft/backend/pkg/config"
	"github.com/resumeloft/backend/pkg/db/models"
	pkgerrors "github.com/resumeloft/backend/pkg/errors"
	"github.com/resumeloft/backend/pkg/security"
	"gorm.io/gorm"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret-test-secret-test-secret",
		Issuer:            "resumeloft-test",
		ExpirationMinutes: 15,
	}
}

func testPasswordConfig() config.PasswordConfig {
	return config.PasswordConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
}

type stubUserRepo struct {
	user       *models.User
	lastLogins []uuid.UUID
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.user != nil && s.user.Email == email {
		return s.user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.lastLogins = append(s.lastLogins, id)
	return nil
}

type stubSessionManager struct {
	generated []string
	revoked   []string
	rotateErr error
}

func (s *stubSessionManager) Generate(ctx context.Context, accessID string) (string, error) {
	s.generated = append(s.generated, accessID)
	return "refresh-" + accessID, nil
}

func (s *stubSessionManager) Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error) {
	if s.rotateErr != nil {
		return "", "", s.rotateErr
	}
	next := session.NewAccessID()
	return next, "refresh-" + next, nil
}

func (s *stubSessionManager) Revoke(ctx context.Context, accessID string) error {
	s.revoked = append(s.revoked, accessID)
	return nil
}

func seedUser(t *testing.T, email, password string) *models.User {
	t.Helper()
	hash, err := security.HashPassword(password, testPasswordConfig())
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Jo",
		LastName:     "Doe",
		IsActive:     true,
	}
}

func newAuthService(t *testing.T, repo userRepository, sessions sessionManager) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		UserRepo:       repo,
		SessionManager: sessions,
		JWTConfig:      testJWTConfig(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return svc
}

func TestLoginSuccess(t *testing.T) {
	user := seedUser(t, "jo@example.com", "correct horse battery")
	repo := &stubUserRepo{user: user}
	sessions := &stubSessionManager{}

	svc := newAuthService(t, repo, sessions)
	resp, err := svc.Login(context.Background(), LoginRequest{
		Email:    "Jo@Example.com",
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := pkgAuth.ParseAccessToken(testJWTConfig(), resp.AccessToken)
	if err != nil {
		t.Fatalf("minted token failed to parse: %v", err)
	}
	if claims.UserID != user.ID {
		t.Fatalf("token user mismatch: got %s, want %s", claims.UserID, user.ID)
	}
	if len(sessions.generated) != 1 {
		t.Fatal("refresh token not generated")
	}
	if len(repo.lastLogins) != 1 || repo.lastLogins[0] != user.ID {
		t.Fatal("last login not recorded")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	user := seedUser(t, "jo@example.com", "correct horse battery")
	svc := newAuthService(t, &stubUserRepo{user: user}, &stubSessionManager{})

	_, err := svc.Login(context.Background(), LoginRequest{
		Email:    "jo@example.com",
		Password: "wrong",
	})
	if err == nil {
		t.Fatal("expected rejection")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	svc := newAuthService(t, &stubUserRepo{}, &stubSessionManager{})

	_, err := svc.Login(context.Background(), LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever",
	})
	if err == nil {
		t.Fatal("expected rejection")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestLoginInactiveAccountRejected(t *testing.T) {
	user := seedUser(t, "jo@example.com", "correct horse battery")
	user.IsActive = false
	svc := newAuthService(t, &stubUserRepo{user: user}, &stubSessionManager{})

	_, err := svc.Login(context.Background(), LoginRequest{
		Email:    "jo@example.com",
		Password: "correct horse battery",
	})
	if err == nil {
		t.Fatal("expected rejection for inactive account")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	user := seedUser(t, "jo@example.com", "correct horse battery")
	sessions := &stubSessionManager{}
	svc := newAuthService(t, &stubUserRepo{user: user}, sessions)

	login, err := svc.Login(context.Background(), LoginRequest{
		Email:    "jo@example.com",
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := svc.Refresh(context.Background(), RefreshRequest{
		AccessToken:  login.AccessToken,
		RefreshToken: login.RefreshToken,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.AccessToken == login.AccessToken {
		t.Fatal("access token was not rotated")
	}
	if resp.RefreshToken == login.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
}

func TestRefreshInvalidTokenRejected(t *testing.T) {
	user := seedUser(t, "jo@example.com", "correct horse battery")
	sessions := &stubSessionManager{rotateErr: session.ErrInvalidRefreshToken}
	svc := newAuthService(t, &stubUserRepo{user: user}, sessions)

	login, err := svc.Login(context.Background(), LoginRequest{
		Email:    "jo@example.com",
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.Refresh(context.Background(), RefreshRequest{
		AccessToken:  login.AccessToken,
		RefreshToken: "stolen-token",
	})
	if err == nil {
		t.Fatal("expected rejection")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	user := seedUser(t, "jo@example.com", "correct horse battery")
	sessions := &stubSessionManager{}
	svc := newAuthService(t, &stubUserRepo{user: user}, sessions)

	login, err := svc.Login(context.Background(), LoginRequest{
		Email:    "jo@example.com",
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Logout(context.Background(), LogoutRequest{AccessToken: login.AccessToken}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions.revoked) != 1 {
		t.Fatal("session not revoked")
	}
}
