// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the production access log. Bodies are
// never logged, so passwords and push tokens in JSON payloads never reach it.
// What is logged (path, query string, headers) is scrubbed:
//
//   - Authorization, Cookie and Set-Cookie (plus RedactOptions.MaskHeaders)
//     are replaced wholesale.
//   - The query parameters this API defines (page, page_size, type) are kept;
//     every other value is scrubbed of JWTs, bearer credentials, UUIDs (user
//     ids and v7 event ids), emails and phone numbers.
//   - Unmatched paths are logged scrubbed, matched ones as the route pattern.
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders adds header names (case-insensitive) whose values are
	// replaced with "[REDACTED]".
	MaskHeaders []string
}

// safeQueryParams are the query parameters of this API, logged as sent.
var safeQueryParams = map[string]struct{}{
	"page":      {},
	"page_size": {},
	"type":      {},
}

// scrubber replaces identifiers and credentials in free text. Order matters:
// credentials first, then ids, emails, and phone numbers last since that
// pattern is the loosest.
type scrubber struct {
	patterns []scrubPattern
	masked   map[string]struct{}
}

type scrubPattern struct {
	re   *regexp.Regexp
	with string
}

func newScrubber(maskHeaders []string) *scrubber {
	s := &scrubber{
		patterns: []scrubPattern{
			{regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=\-]+`), "Bearer [REDACTED:token]"},
			{regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`), "[REDACTED:token]"},
			{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-8][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`), "[REDACTED:id]"},
			{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
			{regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`), "[REDACTED:phone]"},
		},
		masked: map[string]struct{}{
			"authorization": {},
			"cookie":        {},
			"set-cookie":    {},
		},
	}
	for _, h := range maskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			s.masked[h] = struct{}{}
		}
	}
	return s
}

func (s *scrubber) text(v string) string {
	for _, p := range s.patterns {
		v = p.re.ReplaceAllString(v, p.with)
	}
	return v
}

// query keeps the API's own parameters and scrubs the rest. An unparsable
// query is scrubbed as plain text.
func (s *scrubber) query(raw string) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return s.text(truncate(raw, maxQueryLogLength))
	}
	for k, vv := range vals {
		if _, ok := safeQueryParams[k]; ok {
			continue
		}
		for i := range vv {
			vv[i] = s.text(vv[i])
		}
	}
	// Encode escapes the placeholders' brackets; unescape for readable logs.
	out := vals.Encode()
	if u, err := url.QueryUnescape(out); err == nil {
		out = u
	}
	return truncate(out, maxQueryLogLength)
}

func (s *scrubber) headers(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := s.masked[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = s.text(strings.Join(vv, ", "))
	}
	return out
}

// RedactingLogger returns a Gin middleware that writes one scrubbed access
// line per request and attaches the request-scoped logger.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	s := newScrubber(opts.MaskHeaders)

	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = s.text(c.Request.URL.Path)
		}
		query := s.query(c.Request.URL.RawQuery)
		headers := s.headers(c.Request.Header)

		setLogger(c, scopedLogger(c))
		c.Next()

		accessLine(c, start).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Interface("headers", headers).
			Msg("http_request")
	}
}
