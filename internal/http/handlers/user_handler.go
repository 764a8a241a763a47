// User HTTP handlers.
//
// This file exposes REST endpoints for user accounts:
//   - POST   /users                    (register, no auth)
//   - POST   /users/login              (login, no auth)
//   - GET    /users                    (list active users, ETag support)
//   - GET    /users/{id}               (read-through)
//   - PATCH  /users/{id}               (partial update)
//   - GET    /users/{id}/preferences   (read-through)
//   - PATCH  /users/{id}/push_token    (replace device token)
//   - DELETE /users/{id}               (self-deactivate)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into envelopes (including conditional responses).
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-user-service/internal/domain"
	"github.com/tbourn/go-user-service/internal/http/middleware"
	"github.com/tbourn/go-user-service/internal/repo"
	"github.com/tbourn/go-user-service/internal/services"
	"github.com/tbourn/go-user-service/internal/utils"
)

//
// Service contracts (context-aware)
//

// UserService defines account operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type UserService interface {
	// Create registers a user together with its preferences.
	Create(ctx context.Context, in services.CreateUserInput) (*domain.User, error)
	// Authenticate checks credentials and records the login.
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	// Get returns an active user.
	Get(ctx context.Context, id string) (*domain.User, error)
	// GetPreferences returns an active user's preferences.
	GetPreferences(ctx context.Context, id string) (*domain.Preference, error)
	// List returns all active users, newest first.
	List(ctx context.Context) ([]domain.User, error)
	// Update applies a partial update.
	Update(ctx context.Context, id string, in services.UpdateUserInput) (*domain.User, error)
	// SetPushToken replaces the device token.
	SetPushToken(ctx context.Context, id, token string) (*domain.User, error)
	// Deactivate disables actorID's own account.
	Deactivate(ctx context.Context, actorID, id string) error
}

// TokenIssuer signs bearer tokens for users.
type TokenIssuer interface {
	Issue(u *domain.User) (token string, expiresAt time.Time, err error)
}

// StatusService defines the notification status ledger operations.
type StatusService interface {
	// Record appends a report; replayed is true when an idempotency key
	// matched an earlier report.
	Record(ctx context.Context, userID string, r services.StatusReport) (ev *domain.NotificationStatusEvent, replayed bool, err error)
	// History returns a page of the user's events, newest first, and the total.
	History(ctx context.Context, userID, channel string, page, pageSize int) ([]domain.NotificationStatusEvent, int64, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for users, status reports and health.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	users    UserService
	tokens   TokenIssuer
	statuses StatusService
	checks   []HealthCheck
}

// New constructs and returns a Handlers instance bound to the given services.
// checks are reported by the health endpoint in order.
func New(users UserService, tokens TokenIssuer, statuses StatusService, checks ...HealthCheck) *Handlers {
	return &Handlers{users: users, tokens: tokens, statuses: statuses, checks: checks}
}

//
// DTOs
//

// PreferencesRequest carries notification opt-ins. Omitted flags are
// unchanged on update and default to true on registration.
type PreferencesRequest struct {
	Email *bool `json:"email" example:"true"`
	Push  *bool `json:"push"  example:"true"`
}

// CreateUserRequest is the JSON payload for registration.
type CreateUserRequest struct {
	Name        string              `json:"name"        binding:"required" example:"Ada Lovelace"`
	Email       string              `json:"email"       binding:"required" example:"ada@example.com"`
	Password    string              `json:"password"    binding:"required" example:"correct-horse"`
	PushToken   *string             `json:"push_token"                     example:"fcm:abc123"`
	Preferences *PreferencesRequest `json:"preferences" binding:"required"`
}

// UpdateUserRequest is the JSON payload for a partial update.
type UpdateUserRequest struct {
	Name        *string             `json:"name"        example:"Ada King"`
	PushToken   *string             `json:"push_token"  example:"fcm:def456"`
	Preferences *PreferencesRequest `json:"preferences"`
}

// LoginRequest is the JSON payload for login.
type LoginRequest struct {
	Email    string `json:"email"    binding:"required" example:"ada@example.com"`
	Password string `json:"password" binding:"required" example:"correct-horse"`
}

// PushTokenRequest is the JSON payload for replacing the device token.
type PushTokenRequest struct {
	PushToken *string `json:"push_token" example:"fcm:abc123"`
}

// PreferencesResponse is the public view of a Preference.
type PreferencesResponse struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
}

// UserResponse is the public view of a User. It never carries the password
// hash.
type UserResponse struct {
	ID          string              `json:"id"          example:"0b5c0a38-64c4-4b7c-a1f3-2f6f9f1c1e11"`
	Name        string              `json:"name"        example:"Ada Lovelace"`
	Email       string              `json:"email"       example:"ada@example.com"`
	PushToken   *string             `json:"push_token"`
	Preferences PreferencesResponse `json:"preferences"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	LastLogin   *time.Time          `json:"last_login,omitempty"`
}

// AuthResponse is returned by registration and login.
type AuthResponse struct {
	User      UserResponse `json:"user"`
	Token     string       `json:"token"      example:"eyJhbGciOiJIUzI1NiIs..."`
	ExpiresAt time.Time    `json:"expires_at"`
}

func newPreferencesResponse(p domain.Preference) PreferencesResponse {
	return PreferencesResponse{Email: p.Email, Push: p.Push}
}

func newUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		PushToken:   u.PushToken,
		Preferences: newPreferencesResponse(u.Preference),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
		LastLogin:   u.LastLogin,
	}
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params,
// returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), utils.DefaultPageSize),
	)
}

// userIDParam returns the :id path parameter in canonical UUID form. Anything
// else cannot name a user, so the request fails with 404.
func userIDParam(c *gin.Context) (string, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeUserNotFound, "User not found")
		return "", false
	}
	return id.String(), true
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// issue signs a token for u and writes the AuthResponse envelope.
func (h *Handlers) issue(c *gin.Context, status int, msg string, u *domain.User) {
	token, exp, err := h.tokens.Issue(u)
	if err != nil {
		failService(c, fmt.Errorf("issue token: %w", err))
		return
	}
	ok(c, status, msg, AuthResponse{User: newUserResponse(u), Token: token, ExpiresAt: exp})
}

//
// Handlers
//

// CreateUser godoc
// @ID          createUser
// @Summary     Register a user
// @Description Creates a user with notification preferences and returns it with a bearer token.
// @Tags        Users
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateUserRequest  true  "Registration payload"
//
// @Success     201  {object}  handlers.Envelope{data=handlers.AuthResponse}
// @Failure     400  {object}  handlers.ErrorResponse  "validation_failed or duplicate_email"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users [post]
func (h *Handlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "Please check your input")
		return
	}

	u, err := h.users.Create(c.Request.Context(), services.CreateUserInput{
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		PushToken: req.PushToken,
		Preferences: services.PreferencesInput{
			Email: boolOr(req.Preferences.Email, true),
			Push:  boolOr(req.Preferences.Push, true),
		},
	})
	if err != nil {
		failService(c, err)
		return
	}
	h.issue(c, http.StatusCreated, "User created successfully", u)
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Description Verifies email and password, records the login and returns a bearer token.
// @Tags        Users
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.LoginRequest  true  "Credentials"
//
// @Success     200  {object}  handlers.Envelope{data=handlers.AuthResponse}
// @Failure     400  {object}  handlers.ErrorResponse  "validation_failed"
// @Failure     401  {object}  handlers.ErrorResponse  "authentication_failed"
// @Router      /users/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, `Must include "email" and "password"`)
		return
	}
	u, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failService(c, err)
		return
	}
	h.issue(c, http.StatusOK, "Login successful", u)
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List active users
// @Description Returns all active users, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"users:3:1700000000000000000\")
//
// @Success     200  {object} handlers.Envelope{data=[]handlers.UserResponse}
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid token"
// @Router      /users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	ctx := c.Request.Context()

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.users.(*services.UserService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.ActiveUsersStats(ctx, db)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"users:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, err := h.users.List(ctx)
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("store read failed, answering empty list")
		items = nil
	}
	out := make([]UserResponse, 0, len(items))
	for i := range items {
		out = append(out, newUserResponse(&items[i]))
	}
	ok(c, http.StatusOK, "Users retrieved successfully", out)
}

// GetUser godoc
// @ID          getUser
// @Summary     Get a user
// @Description Returns an active user. Served from the cache when possible.
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "User ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.Envelope{data=handlers.UserResponse}
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid token"
// @Failure     404  {object} handlers.ErrorResponse "user_not_found"
// @Router      /users/{id} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	id, valid := userIDParam(c)
	if !valid {
		return
	}
	u, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		failRead(c, err)
		return
	}
	ok(c, http.StatusOK, "User retrieved successfully", newUserResponse(u))
}

// UpdateUser godoc
// @ID          updateUser
// @Summary     Update a user
// @Description Partially updates name, push token and/or preferences. Omitted fields are unchanged.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                      true  "User ID (UUID)"  format(uuid)
// @Param       body  body  handlers.UpdateUserRequest  true  "Fields to change"
//
// @Success     200  {object} handlers.Envelope{data=handlers.UserResponse}
// @Failure     400  {object} handlers.ErrorResponse "validation_failed"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid token"
// @Failure     404  {object} handlers.ErrorResponse "user_not_found"
// @Router      /users/{id} [patch]
func (h *Handlers) UpdateUser(c *gin.Context) {
	id, valid := userIDParam(c)
	if !valid {
		return
	}
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "Please check your input")
		return
	}

	in := services.UpdateUserInput{Name: req.Name, PushToken: req.PushToken}
	if req.Preferences != nil {
		in.Email = req.Preferences.Email
		in.Push = req.Preferences.Push
	}
	u, err := h.users.Update(c.Request.Context(), id, in)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, "User updated successfully", newUserResponse(u))
}

// GetPreferences godoc
// @ID          getPreferences
// @Summary     Get notification preferences
// @Description Returns an active user's preferences. Served from the cache when possible.
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "User ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.Envelope{data=handlers.PreferencesResponse}
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid token"
// @Failure     404  {object} handlers.ErrorResponse "user_not_found"
// @Router      /users/{id}/preferences [get]
func (h *Handlers) GetPreferences(c *gin.Context) {
	id, valid := userIDParam(c)
	if !valid {
		return
	}
	p, err := h.users.GetPreferences(c.Request.Context(), id)
	if err != nil {
		failRead(c, err)
		return
	}
	ok(c, http.StatusOK, "Preferences retrieved successfully", newPreferencesResponse(*p))
}

// SetPushToken godoc
// @ID          setPushToken
// @Summary     Replace the push token
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                     true  "User ID (UUID)"  format(uuid)
// @Param       body  body  handlers.PushTokenRequest  true  "New token"
//
// @Success     200  {object} handlers.Envelope{data=handlers.UserResponse}
// @Failure     400  {object} handlers.ErrorResponse "missing_push_token"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid token"
// @Failure     404  {object} handlers.ErrorResponse "user_not_found"
// @Router      /users/{id}/push_token [patch]
func (h *Handlers) SetPushToken(c *gin.Context) {
	id, valid := userIDParam(c)
	if !valid {
		return
	}
	var req PushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PushToken == nil {
		fail(c, http.StatusBadRequest, ErrCodeMissingPushToken, "push_token is required")
		return
	}
	u, err := h.users.SetPushToken(c.Request.Context(), id, *req.PushToken)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, "Push token updated successfully", newUserResponse(u))
}

// DeactivateUser godoc
// @ID          deactivateUser
// @Summary     Deactivate own account
// @Description Marks the caller's account inactive. Outstanding tokens stop working at once.
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "User ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.Envelope
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid token"
// @Failure     403  {object} handlers.ErrorResponse "forbidden"
// @Failure     404  {object} handlers.ErrorResponse "user_not_found"
// @Router      /users/{id} [delete]
func (h *Handlers) DeactivateUser(c *gin.Context) {
	id, valid := userIDParam(c)
	if !valid {
		return
	}
	if err := h.users.Deactivate(c.Request.Context(), middleware.UserID(c), id); err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, "User deactivated successfully", nil)
}
