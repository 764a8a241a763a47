// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication. Authenticate resolves an
// optional "Authorization: Bearer <token>" header to an active user and
// stores it in the Gin context; RequireAuth rejects requests that reached a
// protected route without one.
//
// A missing header is anonymous. A header that is present but unusable is
// always rejected, even on routes that do not require authentication, so a
// client never silently loses its identity.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-user-service/internal/auth"
	"github.com/tbourn/go-user-service/internal/domain"
	"github.com/tbourn/go-user-service/internal/services"
)

const (
	ctxKeyUserID = "userID"
	ctxKeyUser   = "user"
)

// TokenVerifier resolves a raw bearer token to the active user it names.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*domain.User, error)
}

// Authenticate verifies the bearer token when one is supplied.
//
// Failures respond 401 with one of the codes token_malformed, token_expired,
// token_invalid, user_not_found or user_inactive. A store failure while
// resolving the user responds 401 unauthorized.
func Authenticate(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			c.Next()
			return
		}
		raw, ok := bearerToken(header)
		if !ok {
			deny(c, "token_malformed", "authorization header must be: Bearer <token>")
			return
		}

		u, err := v.Verify(c.Request.Context(), raw)
		if err != nil {
			code, msg, known := tokenFailure(err)
			if !known {
				LoggerFrom(c).Warn().Err(err).Msg("token owner lookup failed")
				code, msg = "unauthorized", "user could not be verified"
			}
			deny(c, code, msg)
			return
		}

		c.Set(ctxKeyUserID, u.ID)
		c.Set(ctxKeyUser, u)
		setLogger(c, LoggerFrom(c).With().Str("user_id", u.ID).Logger())
		c.Next()
	}
}

// RequireAuth rejects anonymous requests. Place it after Authenticate.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			deny(c, "unauthorized", "authentication credentials were not provided")
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user's id, or "" for anonymous requests.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// CurrentUser returns the authenticated user as loaded during verification.
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(ctxKeyUser)
	if !ok {
		return nil, false
	}
	u, ok := v.(*domain.User)
	return u, ok && u != nil
}

// bearerToken extracts the credentials of a Bearer authorization header. The
// scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

// tokenFailure maps verification errors to envelope codes.
func tokenFailure(err error) (code, msg string, known bool) {
	switch {
	case errors.Is(err, auth.ErrMalformed):
		return "token_malformed", "token is malformed", true
	case errors.Is(err, auth.ErrExpired):
		return "token_expired", "token has expired", true
	case errors.Is(err, auth.ErrInvalidSignature):
		return "token_invalid", "token signature is invalid", true
	case errors.Is(err, services.ErrUserNotFound):
		return "user_not_found", "user not found", true
	case errors.Is(err, services.ErrUserInactive):
		return "user_inactive", "user is inactive", true
	}
	return "", "", false
}

func deny(c *gin.Context, code, msg string) {
	authFailures.WithLabelValues(code).Inc()
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	abortJSON(c, http.StatusUnauthorized, code, msg)
}
