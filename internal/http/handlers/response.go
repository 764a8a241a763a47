// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response envelope shared by every API endpoint and
// the helpers that write it. Success and failure use the same shape so that
// clients can branch on `success` and, for failures, on the stable `error`
// code.
//
// Conventions:
//   - All responses carry `success`, `message` and `data`.
//   - Failures add `error` (see errors.go constants); `data` is `{}`.
//   - Paginated listings add `meta`.
//   - `request_id` echoes X-Request-ID so server logs can be correlated.
//   - `fail()` logs 5xx with the request-scoped logger.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "success": false,
//	  "message": "User not found",
//	  "data": {},
//	  "error": "user_not_found",
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000"
//	}
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{ "success": true, "message": "User retrieved successfully", "data": { "id": "…" } }
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-user-service/internal/http/middleware"
	"github.com/tbourn/go-user-service/internal/utils"
)

// Envelope is the standard body returned by all API endpoints.
type Envelope struct {
	// Whether the request succeeded
	Success bool `json:"success" example:"true"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"User retrieved successfully"`
	// Payload; {} on failure
	Data any `json:"data" swaggertype:"object"`
	// Stable, machine-readable code on failure (see errors.go constants)
	Error string `json:"error,omitempty" example:"user_not_found"`
	// Pagination details for listings
	Meta *PaginationMeta `json:"meta,omitempty"`
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// ErrorResponse documents the failure form of Envelope for OpenAPI.
type ErrorResponse struct {
	Success   bool     `json:"success" example:"false"`
	Message   string   `json:"message" example:"User not found"`
	Data      struct{} `json:"data"`
	Error     string   `json:"error" example:"user_not_found"`
	RequestID string   `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// PaginationMeta carries pagination metadata for list responses.
type PaginationMeta struct {
	Total       int64 `json:"total"`
	Limit       int   `json:"limit"`
	Page        int   `json:"page"`
	TotalPages  int   `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

// newPaginationMeta computes page counts for total items at page/limit.
func newPaginationMeta(total int64, page, limit int) *PaginationMeta {
	totalPages := utils.TotalPages(total, limit)
	return &PaginationMeta{
		Total:       total,
		Limit:       limit,
		Page:        page,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}
}

// fail aborts the request with a failure envelope and logs server-side errors.
//
// Server errors (>=500) are logged using the request-scoped logger from middleware.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, Envelope{
		Success:   false,
		Message:   msg,
		Data:      gin.H{},
		Error:     code,
		RequestID: c.Writer.Header().Get("X-Request-ID"),
	})
}

// Fail is the exported variant of fail().
//
// External packages (e.g., router setup) should call Fail to return
// consistent error envelopes without directly depending on unexported helpers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success envelope.
func ok(c *gin.Context, status int, msg string, data any) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(status, Envelope{
		Success:   true,
		Message:   msg,
		Data:      data,
		RequestID: c.Writer.Header().Get("X-Request-ID"),
	})
}

// okPage writes a success envelope with pagination metadata.
func okPage(c *gin.Context, msg string, data any, meta *PaginationMeta) {
	c.JSON(http.StatusOK, Envelope{
		Success:   true,
		Message:   msg,
		Data:      data,
		Meta:      meta,
		RequestID: c.Writer.Header().Get("X-Request-ID"),
	})
}
