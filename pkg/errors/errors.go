package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Connection and authentication errors (1xxx)
	ErrCodeAuthenticationFailed ErrorCode = "DSE1001"
	ErrCodeNetworkUnavailable   ErrorCode = "DSE1002"
	ErrCodeTokenMissing         ErrorCode = "DSE1003"
	ErrCodeOAuthStateInvalid    ErrorCode = "DSE1004"
	ErrCodeOAuthExchangeFailed  ErrorCode = "DSE1005"

	// Configuration errors (2xxx)
	ErrCodeConfigNotFound   ErrorCode = "DSE2001"
	ErrCodeConfigInvalid    ErrorCode = "DSE2002"
	ErrCodeConfigPermission ErrorCode = "DSE2003"
	ErrCodeCredentialStore  ErrorCode = "DSE2004"

	// Repository errors (3xxx)
	ErrCodeRepoNotInitialized ErrorCode = "DSE3001"
	ErrCodeRepoInitFailed     ErrorCode = "DSE3002"
	ErrCodeRemoteConfigFailed ErrorCode = "DSE3003"
	ErrCodeGitUnavailable     ErrorCode = "DSE3004"
	ErrCodeGitCommand         ErrorCode = "DSE3005"

	// Sync errors (4xxx)
	ErrCodeSyncFailed          ErrorCode = "DSE4001"
	ErrCodeOperationInProgress ErrorCode = "DSE4002"

	// Validation errors (6xxx)
	ErrCodeValidationFailed ErrorCode = "DSE6001"
	ErrCodeInvalidInput     ErrorCode = "DSE6002"

	// Security errors (7xxx)
	ErrCodeEncryptionFailed ErrorCode = "DSE7001"

	// Rollback errors (8xxx)
	ErrCodeSnapshotUnavailable ErrorCode = "DSE8001"
	ErrCodeSnapshotFailed      ErrorCode = "DSE8002"
	ErrCodeRestoreFailed       ErrorCode = "DSE8003"

	// System errors (9xxx)
	ErrCodeInternal           ErrorCode = "DSE9001"
	ErrCodeTimeout            ErrorCode = "DSE9002"
	ErrCodeResourceExhausted  ErrorCode = "DSE9003"
	ErrCodeServiceUnavailable ErrorCode = "DSE9004"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL" // System failure, requires immediate attention
	SeverityError    ErrorSeverity = "ERROR"    // Operation failed, but system continues
	SeverityWarning  ErrorSeverity = "WARNING"  // Operation succeeded with issues
	SeverityInfo     ErrorSeverity = "INFO"     // Informational, not an error
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Kind        Kind
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Recoverable bool
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		Severity:    SeverityError,
		Context:     make(map[string]interface{}),
		Stack:       captureStack(),
		Timestamp:   time.Now(),
		Recoverable: false,
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	// Inherit context and kind from a wrapped AppError
	var ae *AppError
	if errors.As(err, &ae) {
		for k, v := range ae.Context {
			appErr.Context[k] = v
		}
		appErr.Kind = ae.Kind
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithKind tags the error with a sync taxonomy kind
func (e *AppError) WithKind(kind Kind) *AppError {
	e.Kind = kind
	return e
}

// WithOutput attaches captured command output, truncated
func (e *AppError) WithOutput(output string) *AppError {
	return e.WithContext("output", truncateString(strings.TrimSpace(output), 500))
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsRecoverable marks the error as recoverable
func (e *AppError) AsRecoverable() *AppError {
	e.Recoverable = true
	return e
}

func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common error constructors

// ConfigError creates a configuration-related error
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"POST a corrected value to /config",
		)
}

// AuthError creates an authentication error for the remote provider
func AuthError(message string, cause error) *AppError {
	var err *AppError
	if cause != nil {
		err = Wrap(cause, ErrCodeAuthenticationFailed, message)
	} else {
		err = New(ErrCodeAuthenticationFailed, message)
	}
	return err.WithKind(KindAuthFailure).
		WithSuggestions(
			"Check that the token has the repo scope",
			"Verify the repository URL",
			"Set a new token with 'datasync auth token'",
		)
}

// NetworkError creates a recoverable network error
func NetworkError(message string, cause error) *AppError {
	err := New(ErrCodeNetworkUnavailable, message)
	err.Cause = cause
	return err.AsRecoverable().
		WithSuggestions(
			"Check your network connection",
			"Retry the operation",
		)
}

// ValidationError creates a validation error
func ValidationError(field string, value interface{}, reason string) *AppError {
	return New(ErrCodeValidationFailed, fmt.Sprintf("Validation failed for %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value).
		WithSeverity(SeverityWarning)
}

// OperationInProgress reports that the single sync slot is taken
func OperationInProgress(current string) *AppError {
	return New(ErrCodeOperationInProgress, "another sync operation is already running").
		WithKind(KindOperationInProgress).
		WithContext("running", current).
		WithSeverity(SeverityWarning).
		AsRecoverable().
		WithSuggestions("Wait for the running operation to finish and retry")
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// KindOf returns the taxonomy kind carried by err, or KindGeneral.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != KindNone {
		return appErr.Kind
	}
	return KindGeneral
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
