// Package services – UserService
//
// This file implements UserService, which owns user accounts and their
// notification preferences. Writes go to the database first and then
// synchronously invalidate both cache entries for the user, so the caller's
// next read is fresh. Reads of a single user or its preferences go through
// the read-through cache; listings always hit the database.
//
// Observability: public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-user-service/internal/auth"
	"github.com/tbourn/go-user-service/internal/cache"
	"github.com/tbourn/go-user-service/internal/domain"
	"github.com/tbourn/go-user-service/internal/repo"
)

const (
	minPasswordRunes = 8
	maxNameRunes     = 255
)

var validate = validator.New()

// checkPassword compares a password with a bcrypt hash. Tests may replace it.
var checkPassword = auth.CheckPassword

// PreferencesInput carries both preference flags.
type PreferencesInput struct {
	Email bool
	Push  bool
}

// CreateUserInput is the validated-at-transport shape of a registration.
type CreateUserInput struct {
	Name        string
	Email       string
	Password    string
	PushToken   *string
	Preferences PreferencesInput
}

// UpdateUserInput is a partial update. Nil fields are left unchanged.
type UpdateUserInput struct {
	Name      *string
	PushToken *string
	Email     *bool // email notifications
	Push      *bool // push notifications
}

func (in UpdateUserInput) empty() bool {
	return in.Name == nil && in.PushToken == nil && in.Email == nil && in.Push == nil
}

// UserService manages accounts, credentials and preferences.
type UserService struct {
	DB    *gorm.DB
	Cache *cache.UserCache

	// BcryptCost is the work factor for new password hashes.
	BcryptCost int
	// Now is the clock for timestamps. Tests may replace it.
	Now func() time.Time

	dummyOnce sync.Once
	dummy     string
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB, c *cache.UserCache, bcryptCost int) *UserService {
	return &UserService{DB: db, Cache: c, BcryptCost: bcryptCost, Now: time.Now}
}

func (s *UserService) now() time.Time { return s.Now().UTC() }

func (s *UserService) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/UserService").Start(ctx, name, trace.WithAttributes(attrs...))
}

// Create registers a user and its preferences in one transaction.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	ctx, span := s.span(ctx, "Create")
	defer span.End()

	name := normalizeName(in.Name)
	email := NormalizeEmail(in.Email)
	switch {
	case name == "":
		return nil, invalid("name is required")
	case utf8.RuneCountInString(name) > maxNameRunes:
		return nil, invalid("name is too long")
	case validate.Var(email, "required,email") != nil:
		return nil, invalid("a valid email is required")
	case utf8.RuneCountInString(in.Password) < minPasswordRunes:
		return nil, invalid("password must be at least 8 characters")
	}

	hash, err := auth.HashPassword(in.Password, s.BcryptCost)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return nil, invalid("password must be at most 72 bytes")
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	u := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		PushToken:    normalizeToken(in.PushToken),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
		Preference: domain.Preference{
			ID:        uuid.NewString(),
			Email:     in.Preferences.Email,
			Push:      in.Preferences.Push,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if err := repo.CreateUserWithPreference(ctx, s.DB, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", u.ID))

	s.Cache.Invalidate(ctx, u.ID)
	return u, nil
}

// Authenticate checks credentials, records the login time and returns the
// user. An unknown email and a wrong password are indistinguishable.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	ctx, span := s.span(ctx, "Authenticate")
	defer span.End()

	u, err := repo.GetUserByEmail(ctx, s.DB, NormalizeEmail(email))
	if errors.Is(err, repo.ErrNotFound) {
		checkPassword(s.dummyHash(), password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !checkPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrAccountDisabled
	}

	at := s.now()
	if err := repo.TouchLastLogin(ctx, s.DB, u.ID, at); err != nil {
		return nil, err
	}
	u.LastLogin = &at
	u.UpdatedAt = at

	s.Cache.Invalidate(ctx, u.ID)
	return u, nil
}

// dummyHash is compared against when the email is unknown, so that path costs
// the same bcrypt work as a wrong password.
func (s *UserService) dummyHash() string {
	s.dummyOnce.Do(func() {
		s.dummy, _ = auth.HashPassword(uuid.NewString(), s.BcryptCost)
	})
	return s.dummy
}

// Get returns an active user, preferring the cache.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := s.span(ctx, "Get", attribute.String("user.id", id))
	defer span.End()

	if u, ok := s.Cache.GetUser(ctx, id); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return u, nil
	}

	u, err := repo.GetActiveUserByID(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Cache.PutUser(ctx, u)
	return u, nil
}

// GetPreferences returns an active user's preferences, preferring the cache.
func (s *UserService) GetPreferences(ctx context.Context, id string) (*domain.Preference, error) {
	ctx, span := s.span(ctx, "GetPreferences", attribute.String("user.id", id))
	defer span.End()

	if p, ok := s.Cache.GetPreferences(ctx, id); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return p, nil
	}

	u, err := repo.GetActiveUserByID(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Cache.PutPreferences(ctx, id, u.Preference)
	return &u.Preference, nil
}

// List returns all active users from the database.
func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	ctx, span := s.span(ctx, "List")
	defer span.End()

	users, err := repo.ListActiveUsers(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("users.count", len(users)))
	return users, nil
}

// Update applies a partial update to the user and its preferences in one
// transaction and returns the stored result.
func (s *UserService) Update(ctx context.Context, id string, in UpdateUserInput) (*domain.User, error) {
	ctx, span := s.span(ctx, "Update", attribute.String("user.id", id))
	defer span.End()

	cols := map[string]any{}
	if in.Name != nil {
		name := normalizeName(*in.Name)
		if name == "" {
			return nil, invalid("name must not be empty")
		}
		if utf8.RuneCountInString(name) > maxNameRunes {
			return nil, invalid("name is too long")
		}
		cols["name"] = name
	}
	if in.PushToken != nil {
		tok := normalizeToken(in.PushToken)
		if tok == nil {
			return nil, ErrMissingPushToken
		}
		cols["push_token"] = *tok
	}
	prefCols := map[string]any{}
	if in.Email != nil {
		prefCols["email"] = *in.Email
	}
	if in.Push != nil {
		prefCols["push"] = *in.Push
	}
	if in.empty() {
		return nil, invalid("no fields to update")
	}

	now := s.now()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateUserColumns(ctx, tx, id, cols, now); err != nil {
			return err
		}
		return repo.UpdatePreferenceColumns(ctx, tx, id, prefCols, now)
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	s.Cache.Invalidate(ctx, id)
	return s.reload(ctx, id)
}

// SetPushToken replaces the user's device token.
func (s *UserService) SetPushToken(ctx context.Context, id, token string) (*domain.User, error) {
	ctx, span := s.span(ctx, "SetPushToken", attribute.String("user.id", id))
	defer span.End()

	tok := normalizeToken(&token)
	if tok == nil {
		return nil, ErrMissingPushToken
	}
	err := repo.UpdateUserColumns(ctx, s.DB, id, map[string]any{"push_token": *tok}, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	s.Cache.Invalidate(ctx, id)
	return s.reload(ctx, id)
}

// Deactivate marks the caller's own account inactive. Outstanding tokens for
// the user stop verifying immediately.
func (s *UserService) Deactivate(ctx context.Context, actorID, id string) error {
	ctx, span := s.span(ctx, "Deactivate", attribute.String("user.id", id))
	defer span.End()

	if actorID != id {
		return ErrForbidden
	}
	err := repo.DeactivateUser(ctx, s.DB, id, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}

	s.Cache.Invalidate(ctx, id)
	return nil
}

// reload reads the committed user straight from the database.
func (s *UserService) reload(ctx context.Context, id string) (*domain.User, error) {
	u, err := repo.GetActiveUserByID(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}
