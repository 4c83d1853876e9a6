package tautan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind is the closed set of failure categories surfaced by the client.
type ErrorKind string

const (
	KindValidation     ErrorKind = "VALIDATION"
	KindAuthentication ErrorKind = "AUTHENTICATION"
	KindAuthorization  ErrorKind = "AUTHORIZATION"
	KindNotFound       ErrorKind = "NOT_FOUND"
	KindConflict       ErrorKind = "CONFLICT"
	KindRateLimit      ErrorKind = "RATE_LIMIT"
	KindServer         ErrorKind = "SERVER"
	KindNetwork        ErrorKind = "NETWORK"
	KindTimeout        ErrorKind = "TIMEOUT"
	KindUnknown        ErrorKind = "UNKNOWN"
)

// Application error codes produced by the client itself.
const (
	CodeNoAccessToken     = "NO_ACCESS_TOKEN"
	CodeSessionExpired    = "SESSION_EXPIRED"
	CodeClientRateLimited = "CLIENT_RATE_LIMITED"
	CodeCircuitOpen       = "CIRCUIT_OPEN"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeResponseTooLarge  = "RESPONSE_TOO_LARGE"
)

// Sentinels for errors.Is comparisons; an *APIError matches a sentinel of the same kind.
var (
	ErrValidation     = &APIError{Kind: KindValidation}
	ErrAuthentication = &APIError{Kind: KindAuthentication}
	ErrAuthorization  = &APIError{Kind: KindAuthorization}
	ErrNotFound       = &APIError{Kind: KindNotFound}
	ErrConflict       = &APIError{Kind: KindConflict}
	ErrRateLimited    = &APIError{Kind: KindRateLimit}
	ErrServer         = &APIError{Kind: KindServer}
	ErrNetwork        = &APIError{Kind: KindNetwork}
	ErrTimeout        = &APIError{Kind: KindTimeout}
	ErrUnknown        = &APIError{Kind: KindUnknown}
)

var defaultMessages = map[int]string{
	http.StatusBadRequest:          "Invalid request. Please check your input.",
	http.StatusUnauthorized:        "Authentication required. Please log in.",
	http.StatusForbidden:           "You do not have permission to perform this action.",
	http.StatusNotFound:            "The requested resource was not found.",
	http.StatusConflict:            "This action conflicts with existing data.",
	http.StatusUnprocessableEntity: "Validation failed. Please check your input.",
	http.StatusTooManyRequests:     "Too many requests. Please try again later.",
	http.StatusInternalServerError: "Server error. Please try again later.",
	http.StatusBadGateway:          "Server error. Please try again later.",
	http.StatusServiceUnavailable:  "Service temporarily unavailable. Please try again later.",
}

const (
	msgUnknown = "An unexpected error occurred."
	msgNetwork = "Network error. Please check your connection."
	msgTimeout = "Request timed out. Please try again."
)

// APIError is the single error type returned by the request pipeline.
type APIError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Code       string
	Details    map[string]any
	Cause      error

	RequestID  string
	Method     string
	URL        string
	Attempt    int
	MaxRetries int
	RetryAfter time.Duration
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements error interface.
func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [%d]", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error kinds for errors.Is.
func (e *APIError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*APIError); ok {
		return e.Kind == targetErr.Kind
	}
	return false
}

// Retryable reports whether the kind is one the default policy retries.
func (e *APIError) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Kind.Retryable()
}

// Retryable reports whether failures of this kind may succeed on a later attempt.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindServer, KindRateLimit:
		return true
	default:
		return false
	}
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *APIError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Kind: %s\n", e.Kind)
	fmt.Fprintf(&b, "Message: %s\n", e.Message)
	if e.Code != "" {
		fmt.Fprintf(&b, "Code: %s\n", e.Code)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, "Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		fmt.Fprintf(&b, "Method: %s\n", e.Method)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", e.URL)
	}
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, "Status Code: %d\n", e.StatusCode)
	}
	if e.Attempt > 0 {
		fmt.Fprintf(&b, "Attempt: %d/%d\n", e.Attempt, e.MaxRetries)
	}
	if e.RetryAfter > 0 {
		fmt.Fprintf(&b, "Retry After: %v\n", e.RetryAfter)
	}
	if !e.Timestamp.IsZero() {
		fmt.Fprintf(&b, "Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		fmt.Fprintf(&b, "Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, "Cause: %v\n", e.Cause)
	}
	return b.String()
}

// KindForStatus maps an HTTP status to its error kind.
func KindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusUnauthorized:
		return KindAuthentication
	case http.StatusForbidden:
		return KindAuthorization
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusTooManyRequests:
		return KindRateLimit
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return KindServer
	default:
		return KindUnknown
	}
}

// Classify maps a non-success HTTP response to an APIError. The body may be
// empty or non-JSON, in which case the per-status default message is used.
func Classify(status int, body []byte) *APIError {
	apiErr := &APIError{
		Kind:       KindForStatus(status),
		StatusCode: status,
		Timestamp:  time.Now(),
	}

	var parsed map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			parsed = nil
		}
	}

	apiErr.Message = extractMessage(parsed)
	if apiErr.Message == "" {
		apiErr.Message = defaultMessage(status)
	}
	apiErr.Code = extractCode(parsed)
	if parsed != nil {
		apiErr.Details = parsed
	}
	return apiErr
}

// ClassifyTransport maps a failure with no HTTP response to TIMEOUT or NETWORK.
func ClassifyTransport(err error) *APIError {
	apiErr := &APIError{
		Kind:      KindNetwork,
		Message:   msgNetwork,
		Cause:     err,
		Timestamp: time.Now(),
	}

	if isTimeout(err) {
		apiErr.Kind = KindTimeout
		apiErr.Message = msgTimeout
	}
	return apiErr
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func defaultMessage(status int) string {
	if msg, ok := defaultMessages[status]; ok {
		return msg
	}
	return msgUnknown
}

// extractMessage applies the message priority: detail string, detail.message
// (with detail.errors appended), message string.
func extractMessage(body map[string]any) string {
	if body == nil {
		return ""
	}

	switch detail := body["detail"].(type) {
	case string:
		if detail != "" {
			return detail
		}
	case map[string]any:
		if msg, ok := detail["message"].(string); ok && msg != "" {
			if list := joinErrors(detail["errors"]); list != "" {
				return msg + ": " + list
			}
			return msg
		}
	}

	if msg, ok := body["message"].(string); ok && msg != "" {
		return msg
	}
	return ""
}

func joinErrors(v any) string {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch e := item.(type) {
		case string:
			parts = append(parts, e)
		case map[string]any:
			if msg, ok := e["message"].(string); ok {
				parts = append(parts, msg)
				continue
			}
			if b, err := json.Marshal(e); err == nil {
				parts = append(parts, string(b))
			}
		default:
			parts = append(parts, fmt.Sprint(e))
		}
	}
	return strings.Join(parts, ", ")
}

func extractCode(body map[string]any) string {
	if body == nil {
		return ""
	}
	for _, key := range []string{"code", "error_code"} {
		if code := codeString(body[key]); code != "" {
			return code
		}
	}
	if detail, ok := body["detail"].(map[string]any); ok {
		return codeString(detail["code"])
	}
	return ""
}

func codeString(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	default:
		return ""
	}
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds format and HTTP-date format.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}
