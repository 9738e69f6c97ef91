package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// Authentication errors
	ErrTypeAuth ErrorType = "authentication"
	// Network errors talking to the hosted backend
	ErrTypeNetwork ErrorType = "network"
	// Row query errors returned by the hosted backend
	ErrTypeQuery ErrorType = "query"
	// Configuration errors
	ErrTypeConfig ErrorType = "configuration"
	// Validation errors
	ErrTypeValidation ErrorType = "validation"
	// Sealing/opening of persisted records
	ErrTypeCrypto ErrorType = "crypto"
	// Session persistence errors
	ErrTypeStorage ErrorType = "storage"
	// Generic application errors
	ErrTypeApp ErrorType = "application"
)

// AppError represents a structured application error
type AppError struct {
	Type        ErrorType              `json:"type"`
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	UserMessage string                 `json:"userMessage"`
	InternalErr error                  `json:"-"`
	Retryable   bool                   `json:"retryable"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.InternalErr != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Type, e.Code, e.Message, e.InternalErr)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap exposes the wrapped error to errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.InternalErr
}

// Is matches another AppError by type and code, so predefined errors work as sentinels.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// GetUserMessage returns a user-friendly error message
func (e *AppError) GetUserMessage() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

// WithContext adds context information to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Log logs the error with its type, code and context as attributes.
func (e *AppError) Log(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{
		slog.String("type", string(e.Type)),
		slog.String("code", e.Code),
	}
	if e.InternalErr != nil {
		attrs = append(attrs, slog.String("cause", e.InternalErr.Error()))
	}

	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, e.Context[k]))
	}

	logger.Error(e.Message, attrs...)
}

// clone copies the error so predefined errors are never mutated by callers.
func (e *AppError) clone() *AppError {
	c := *e
	if e.Context != nil {
		c.Context = make(map[string]interface{}, len(e.Context))
		for k, v := range e.Context {
			c.Context[k] = v
		}
	}
	return &c
}

// New creates a new AppError
func New(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:        errType,
		Code:        code,
		Message:     message,
		InternalErr: err,
	}
}

// From returns a copy of a predefined error carrying err as its cause.
func From(base *AppError, err error) *AppError {
	c := base.clone()
	c.InternalErr = err
	return c
}

// As is errors.As for AppError.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is forwards to the standard library.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// Predefined errors for common scenarios
var (
	// Authentication errors
	ErrNotAuthenticated = New(ErrTypeAuth, "NOT_AUTHENTICATED", "user not authenticated").
				WithUserMessage("Please sign in to continue")

	ErrInvalidCredentials = New(ErrTypeAuth, "INVALID_CREDENTIALS", "invalid login credentials").
				WithUserMessage("Invalid email or password")

	ErrConfirmationRequired = New(ErrTypeAuth, "CONFIRMATION_REQUIRED", "email confirmation required").
				WithUserMessage("Check your inbox to confirm your email, then sign in")

	ErrSessionExpired = New(ErrTypeAuth, "SESSION_EXPIRED", "session expired").
				WithUserMessage("Your session has expired. Please sign in again")

	ErrProviderNotAllowed = New(ErrTypeAuth, "PROVIDER_NOT_ALLOWED", "oauth provider not enabled").
				WithUserMessage("That sign-in provider is not available")

	// Validation errors
	ErrInvalidEmail = New(ErrTypeValidation, "EMAIL_INVALID", "invalid email address").
			WithUserMessage("Please enter a valid email address")

	ErrPasswordTooShort = New(ErrTypeValidation, "PASSWORD_TOO_SHORT", "password too short").
				WithUserMessage("Password must be at least 6 characters long")

	ErrDeckTitleEmpty = New(ErrTypeValidation, "DECK_TITLE_EMPTY", "deck title cannot be empty").
				WithUserMessage("Give your deck a title")

	// Configuration errors
	ErrConfigMissing = New(ErrTypeConfig, "CONFIG_MISSING", "required configuration missing").
				WithUserMessage("The server is missing required configuration")

	ErrConfigLoadFailed = New(ErrTypeConfig, "CONFIG_LOAD_FAILED", "failed to load configuration").
				WithUserMessage("Configuration file could not be loaded")

	ErrConfigSaveFailed = New(ErrTypeConfig, "CONFIG_SAVE_FAILED", "failed to save configuration").
				WithUserMessage("Unable to save settings. Check permissions")

	// Crypto errors
	ErrSealFailed = New(ErrTypeCrypto, "SEAL_FAILED", "failed to seal session record")

	ErrOpenFailed = New(ErrTypeCrypto, "OPEN_FAILED", "failed to open session record")
)

// WithUserMessage sets a user-friendly message
func (e *AppError) WithUserMessage(msg string) *AppError {
	e.UserMessage = msg
	return e
}

// WithRetryable marks the error as retryable
func (e *AppError) WithRetryable(retryable bool) *AppError {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if the error can be retried
func (e *AppError) IsRetryable() bool {
	return e.Retryable
}

// RetryHandler provides retry functionality for operations
type RetryHandler struct {
	MaxAttempts int
	OnRetry     func(attempt int, err error)
}

// NewRetryHandler creates a new retry handler
func NewRetryHandler(maxAttempts int, logger *slog.Logger) *RetryHandler {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryHandler{
		MaxAttempts: maxAttempts,
		OnRetry: func(attempt int, err error) {
			logger.Warn("retrying operation",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", maxAttempts),
				slog.String("error", err.Error()))
		},
	}
}

// Execute runs fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done. With a single attempt the error is returned as is.
func (r *RetryHandler) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		// Don't retry non-retryable errors
		if appErr, ok := As(err); !ok || !appErr.IsRetryable() {
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		if attempt < r.MaxAttempts && r.OnRetry != nil {
			r.OnRetry(attempt, err)
		}
	}

	if r.MaxAttempts == 1 {
		return lastErr
	}

	return Wrap(lastErr, ErrTypeApp, "MAX_RETRIES_EXCEEDED",
		fmt.Sprintf("operation failed after %d attempts", r.MaxAttempts)).
		WithUserMessage("Operation failed after multiple attempts. Please try again later")
}
