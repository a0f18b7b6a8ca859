// Package audit provides structured audit logging for console mutations.
package audit

import (
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Mutation actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// secretPatterns are applied in order; the bearer pass runs first so the
// header name is still matched by the key/value pass.
var secretPatterns = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer [REDACTED]"},
	{
		regexp.MustCompile(`(?i)\b(client_secret|code_verifier|id_token|access_token|api_token|token|secret|password|authorization)(\s*:\s*|=)[^\s,;&]+`),
		"${1}${2}[REDACTED]",
	},
}

// MutationCompletion captures one finalized create, update or delete.
type MutationCompletion struct {
	RequestID   string
	SessionID   string
	UserID      string
	Resource    string
	Action      string
	RecordID    string
	Result      string
	ErrorDetail string
	Duration    time.Duration
	StatusCode  int
}

// Logger emits structured audit entries.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates an audit logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Complete writes a single completion log entry for one mutation.
func (l *Logger) Complete(event MutationCompletion) {
	if l == nil {
		return
	}

	result := strings.TrimSpace(event.Result)
	if result == "" {
		result = "error"
	}
	resource := strings.TrimSpace(event.Resource)
	if resource == "" {
		resource = "unknown"
	}
	action := strings.TrimSpace(event.Action)
	if action == "" {
		action = "unknown"
	}

	duration := event.Duration
	if duration < 0 {
		duration = 0
	}

	entry := l.logger.Info().
		Str("event", "ams.mutation.completed").
		Str("request_id", strings.TrimSpace(event.RequestID)).
		Str("session_id", strings.TrimSpace(event.SessionID)).
		Str("user_id", strings.TrimSpace(event.UserID)).
		Str("resource", resource).
		Str("action", action).
		Str("result", result).
		Int64("duration_ms", duration.Milliseconds())

	if id := strings.TrimSpace(event.RecordID); id != "" {
		entry = entry.Str("record_id", id)
	}
	if event.StatusCode > 0 {
		entry = entry.Int("status_code", event.StatusCode)
	}
	if redactedError := RedactSensitiveText(event.ErrorDetail); redactedError != "" {
		entry = entry.Str("error_detail", redactedError)
	}

	entry.Msg("mutation completed")
}

// RedactSensitiveText removes credentials from free-text error details, such
// as API error bodies or token endpoint responses.
func RedactSensitiveText(raw string) string {
	redacted := strings.TrimSpace(raw)
	for _, p := range secretPatterns {
		redacted = p.pattern.ReplaceAllString(redacted, p.replacement)
	}
	return redacted
}
