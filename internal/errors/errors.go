// Package errors provides error handling for Critic.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ============================================================
// Error Categories
// ============================================================

// Category defines the type of error for handling decisions.
type Category int

const (
	// CategoryTemporary errors are retryable (network timeouts, provider hiccups)
	CategoryTemporary Category = iota

	// CategoryPermanent errors are not retryable (unparseable model output)
	CategoryPermanent

	// CategoryUser errors are due to user input (schema validation, bad image)
	CategoryUser

	// CategorySystem errors are system-level (missing API key, bad config)
	CategorySystem

	// CategoryRateLimit errors are due to API rate limiting
	CategoryRateLimit
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTemporary:
		return "temporary"
	case CategoryPermanent:
		return "permanent"
	case CategoryUser:
		return "user"
	case CategorySystem:
		return "system"
	case CategoryRateLimit:
		return "rate_limit"
	default:
		return "unknown"
	}
}

// ============================================================
// AppError - Main Error Type
// ============================================================

// AppError is the main error type for all Critic errors.
type AppError struct {
	// Code is a unique error code for programmatic handling
	Code string

	// Message is a user-friendly error message
	Message string

	// Category determines how the error should be handled
	Category Category

	// Inner is the underlying error
	Inner error

	// Retryable indicates if the operation can be retried
	Retryable bool

	// Details are itemised problems (validation failures) shown to the user
	Details []string

	// Suggestions are recovery suggestions for the user
	Suggestions []string

	// Context is additional debugging information
	Context map[string]interface{}

	// RetryAfter is the suggested delay before retry
	RetryAfter time.Duration
}

// Error returns the error message.
func (e *AppError) Error() string {
	var sb strings.Builder

	if e.Code != "" {
		sb.WriteString("[")
		sb.WriteString(e.Code)
		sb.WriteString("] ")
	}

	sb.WriteString(e.Message)

	if e.Inner != nil {
		innerMsg := e.Inner.Error()
		if innerMsg != "" && innerMsg != e.Message {
			sb.WriteString(": ")
			sb.WriteString(innerMsg)
		}
	}

	return sb.String()
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Inner
}

// ============================================================
// Error Constructors
// ============================================================

// New creates a new AppError.
func New(code, message string, category Category) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Category: category,
	}
}

// Wrap wraps an existing error with context.
func Wrap(err error, code, message string, category Category) *AppError {
	if err == nil {
		return nil
	}

	// Keep details and suggestions from an inner AppError
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:        code,
			Message:     message,
			Category:    category,
			Inner:       err,
			Retryable:   appErr.Retryable,
			Details:     appErr.Details,
			Suggestions: appErr.Suggestions,
			Context:     appErr.Context,
		}
	}

	return &AppError{
		Code:     code,
		Message:  message,
		Category: category,
		Inner:    err,
	}
}

// Temporary creates a retryable temporary error.
func Temporary(code, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Category:  CategoryTemporary,
		Retryable: true,
	}
}

// Permanent creates a non-retryable permanent error.
func Permanent(code, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Category: CategoryPermanent,
	}
}

// User creates a user input error.
func User(code, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Category: CategoryUser,
	}
}

// RateLimit creates a rate limit error with retry after duration.
func RateLimit(code, message string, retryAfter time.Duration) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Category:   CategoryRateLimit,
		Retryable:  true,
		RetryAfter: retryAfter,
		Suggestions: []string{
			fmt.Sprintf("Wait %s before retrying", retryAfter),
			"Check your cloud provider quota",
		},
	}
}

// ============================================================
// Builder Pattern for Fluent Error Construction
// ============================================================

// Builder provides fluent error construction.
type Builder struct {
	err *AppError
}

// NewBuilder starts building a new error.
func NewBuilder(code, message string) *Builder {
	return &Builder{
		err: &AppError{
			Code:     code,
			Message:  message,
			Category: CategoryTemporary,
			Context:  make(map[string]interface{}),
		},
	}
}

// Temporary marks the error as temporary/retryable.
func (b *Builder) Temporary() *Builder {
	b.err.Category = CategoryTemporary
	b.err.Retryable = true
	return b
}

// Permanent marks the error as permanent/non-retryable.
func (b *Builder) Permanent() *Builder {
	b.err.Category = CategoryPermanent
	b.err.Retryable = false
	return b
}

// User marks the error as a user input error.
func (b *Builder) User() *Builder {
	b.err.Category = CategoryUser
	b.err.Retryable = false
	return b
}

// System marks the error as a system error.
func (b *Builder) System() *Builder {
	b.err.Category = CategorySystem
	b.err.Retryable = false
	return b
}

// Wrap sets the underlying error.
func (b *Builder) Wrap(err error) *Builder {
	b.err.Inner = err
	return b
}

// WithDetails appends itemised problems.
func (b *Builder) WithDetails(details ...string) *Builder {
	b.err.Details = append(b.err.Details, details...)
	return b
}

// WithSuggestion adds a recovery suggestion.
func (b *Builder) WithSuggestion(suggestion string) *Builder {
	b.err.Suggestions = append(b.err.Suggestions, suggestion)
	return b
}

// WithContext adds context information.
func (b *Builder) WithContext(key string, value interface{}) *Builder {
	b.err.Context[key] = value
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *AppError {
	return b.err
}

// ============================================================
// Error Codes
// ============================================================

const (
	// Model errors
	CodeModelUnavailable     = "MODEL_UNAVAILABLE"
	CodeModelTimeout         = "MODEL_TIMEOUT"
	CodeModelParseError      = "MODEL_PARSE_ERROR"
	CodeModelRateLimit       = "MODEL_RATE_LIMIT"
	CodeModelInvalidResponse = "MODEL_INVALID_RESPONSE"

	// On-device errors
	CodeLocalUnavailable   = "LOCAL_UNAVAILABLE"
	CodeLocalSessionFailed = "LOCAL_SESSION_FAILED"
	CodeLocalParseFailed   = "LOCAL_PARSE_FAILED"

	// Cloud fallback errors
	CodeCloudRequestFailed = "CLOUD_REQUEST_FAILED"

	// Image errors
	CodeImageInvalid  = "IMAGE_INVALID"
	CodeImageTooLarge = "IMAGE_TOO_LARGE"

	// Network errors
	CodeNetworkUnavailable = "NETWORK_UNAVAILABLE"
	CodeNetworkTimeout     = "NETWORK_TIMEOUT"

	// Config errors
	CodeConfigInvalid  = "CONFIG_INVALID"
	CodeConfigNotFound = "CONFIG_NOT_FOUND"

	// Validation errors
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeInvalidInput     = "INVALID_INPUT"
)

// ============================================================
// Helpers
// ============================================================

// GetCategory extracts the category from an error.
// Returns CategoryTemporary for non-AppError errors.
func GetCategory(err error) Category {
	if err == nil {
		return CategoryTemporary
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category
	}

	return CategoryTemporary
}

// GetCode returns the outermost error code, or "" for plain errors.
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsRetryable reports whether err is worth another attempt: temporary and
// rate-limit failures are, as are plain errors without a category.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable || appErr.Category == CategoryTemporary || appErr.Category == CategoryRateLimit
	}

	return true
}

// GetRetryAfter returns the suggested retry duration.
func GetRetryAfter(err error) time.Duration {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.RetryAfter
	}
	return 0
}

// GetDetails returns itemised problems attached to an error.
func GetDetails(err error) []string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Details
	}
	return nil
}

// FormatUserMessage formats a user-friendly error message with details and suggestions.
func FormatUserMessage(err error) string {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		return err.Error()
	}

	var sb strings.Builder
	sb.WriteString(appErr.Message)

	if len(appErr.Details) > 0 {
		sb.WriteString("\n\nDetails:")
		for _, d := range appErr.Details {
			sb.WriteString("\n  - ")
			sb.WriteString(d)
		}
	}

	if len(appErr.Suggestions) > 0 {
		sb.WriteString("\n\nSuggestions:")
		for _, s := range appErr.Suggestions {
			sb.WriteString("\n  - ")
			sb.WriteString(s)
		}
	}

	return sb.String()
}
