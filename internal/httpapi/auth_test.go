package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"grinkrawear/backend/internal/domain"
	"grinkrawear/backend/internal/store"
)

type userStoreStub struct {
	users map[string]domain.UserAccount
}

func (s *userStoreStub) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	account, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &account, nil
}

func stubWithUser(t *testing.T, username, password, role string, active bool) *userStoreStub {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return &userStoreStub{users: map[string]domain.UserAccount{
		username: {
			Username:  username,
			Password:  string(hash),
			Role:      role,
			Active:    active,
			CreatedAt: time.Now().UTC(),
		},
	}}
}

func TestLoginIssuesParsableToken(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour, stubWithUser(t, "admin", "admin123", domain.RoleAdmin, true))

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "Admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("role = %q, want %q", resp.Role, domain.RoleAdmin)
	}
	if _, err := time.Parse(time.RFC3339, resp.ExpiresAt); err != nil {
		t.Fatalf("expires_at %q is not RFC3339: %v", resp.ExpiresAt, err)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("actor = %+v", actor)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour, stubWithUser(t, "admin", "admin123", domain.RoleAdmin, true))

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "nope"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "admin123"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := auth.Login(context.Background(), domain.LoginRequest{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty request err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour, stubWithUser(t, "staff", "staff123", domain.RoleStaff, false))

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "staff", Password: "staff123"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	users := stubWithUser(t, "admin", "admin123", domain.RoleAdmin, true)
	issuer := NewAuthManager("secret-one", time.Hour, users)
	verifier := NewAuthManager("secret-two", time.Hour, users)

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
	if _, err := issuer.ParseToken("not-a-token"); err == nil {
		t.Fatal("expected garbage token to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour, stubWithUser(t, "admin", "admin123", domain.RoleAdmin, true))
	auth.tokenTTL = -time.Minute

	token, _, err := auth.sign("admin", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}
