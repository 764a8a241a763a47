// Package services – AuthService
//
// AuthService binds bearer tokens to stored users: it issues a token after a
// successful login or registration and, on every authenticated request,
// verifies the token and resolves the user it names straight from the
// database so that deactivation takes effect at once.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/go-user-service/internal/auth"
	"github.com/tbourn/go-user-service/internal/domain"
	"github.com/tbourn/go-user-service/internal/repo"
)

// AuthService issues and verifies bearer tokens.
type AuthService struct {
	DB     *gorm.DB
	Tokens *auth.Tokens
}

// NewAuthService constructs an AuthService.
func NewAuthService(db *gorm.DB, tokens *auth.Tokens) *AuthService {
	return &AuthService{DB: db, Tokens: tokens}
}

// Issue signs a token for u and returns it with its expiry.
func (s *AuthService) Issue(u *domain.User) (string, time.Time, error) {
	return s.Tokens.Issue(u.ID, u.Email)
}

// Verify parses raw and loads the user it names.
//
// Errors: auth.ErrMalformed, auth.ErrExpired, auth.ErrInvalidSignature,
// ErrUserNotFound, ErrUserInactive, or a database error.
func (s *AuthService) Verify(ctx context.Context, raw string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Verify")
	defer span.End()

	claims, err := s.Tokens.Parse(raw)
	if err != nil {
		return nil, err
	}

	u, err := repo.GetUserByID(ctx, s.DB, claims.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrUserInactive
	}
	return u, nil
}
