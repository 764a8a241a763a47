// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides request correlation, access logging and panic recovery:
//
//   - RequestID() gives every request a correlation ID (X-Request-ID). The ID
//     is echoed in failure envelopes, so client-supplied values are only
//     reused when they are short and printable.
//   - Logger() is the development access log: raw paths and query strings.
//     Production uses RedactingLogger (redact_logger.go). Both attach a
//     request-scoped zerolog.Logger that auth enriches with user_id.
//   - Recovery() converts panics into the standard JSON 500 envelope.
//   - LoggerFrom() returns the request-scoped logger. The same logger rides on
//     the request context, so services and the cache reach it with
//     zerolog.Ctx(ctx).
//
// Order: RequestID, then a logger, then Recovery.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	loggerKey       = "logger"
	requestIDHeader = "X-Request-ID"

	maxRequestIDLen   = 128
	maxQueryLogLength = 2048
)

// RequestID reuses a well-formed incoming X-Request-ID or generates a
// time-ordered UUIDv7, stores it in the Gin context and writes it back on
// the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.Must(uuid.NewV7()).String()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// validRequestID accepts 1..maxRequestIDLen visible ASCII characters.
func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] > '~' || s[i] == '"' {
			return false
		}
	}
	return true
}

// Logger writes one unredacted access line per request. Only for debug mode.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		setLogger(c, scopedLogger(c))
		c.Next()

		accessLine(c, start).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Int64("bytes_in", c.Request.ContentLength).
			Msg("request")
	}
}

// scopedLogger returns the global logger with the request ID attached.
func scopedLogger(c *gin.Context) zerolog.Logger {
	rid, _ := c.Get(requestIDKey)
	s, _ := rid.(string)
	if s == "" {
		s = c.Writer.Header().Get(requestIDHeader)
	}
	return log.With().Str("request_id", s).Logger()
}

// accessLine starts the access log event for a finished request. The level
// follows the outcome: error for 5xx or recorded gin errors, warn for 4xx.
// Fields added to the request logger after it was attached (user_id) are
// included.
func accessLine(c *gin.Context, start time.Time) *zerolog.Event {
	lg := LoggerFrom(c)
	status := c.Writer.Status()

	var ev *zerolog.Event
	switch {
	case len(c.Errors) > 0:
		ev = lg.Error().Str("errors", c.Errors.String())
	case status >= http.StatusInternalServerError:
		ev = lg.Error()
	case status >= http.StatusBadRequest:
		ev = lg.Warn()
	default:
		ev = lg.Info()
	}
	return ev.
		Int("status", status).
		Dur("latency", time.Since(start)).
		Int("bytes_out", c.Writer.Size()).
		Bool("idempotent_replay", IsReplay(c))
}

// Recovery logs a panic with its stack and answers with the 500 envelope
// unless a response is already on the wire.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			abortJSON(c, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// none was attached.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// setLogger stores l in the Gin context and on the request context.
func setLogger(c *gin.Context, l zerolog.Logger) {
	c.Set(loggerKey, &l)
	if c.Request != nil {
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
	}
}

// abortJSON writes the standard failure envelope. Middleware cannot use the
// handlers package helpers without an import cycle.
func abortJSON(c *gin.Context, status int, code, msg string) {
	body := gin.H{
		"success": false,
		"message": msg,
		"data":    gin.H{},
		"error":   code,
	}
	if rid := c.Writer.Header().Get(requestIDHeader); rid != "" {
		body["request_id"] = rid
	}
	c.AbortWithStatusJSON(status, body)
}

// truncate cuts s to max bytes plus an ellipsis. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
