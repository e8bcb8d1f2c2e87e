package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// PipelineError is a structured error type with context.
type PipelineError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	FilePath    string
	Line        int
	Column      int
	Recoverable bool
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison on type and code.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *PipelineError) WithLocation(filePath string, line, column int) *PipelineError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewBuildError creates a build error. Build errors are recoverable: a dev
// session logs them and keeps watching.
func NewBuildError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeBuild,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewNetworkError creates a network error.
func NewNetworkError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeNetwork,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Recoverable
	}

	return false
}

// IsBuildError checks if an error is build-related.
func IsBuildError(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type == ErrorTypeBuild
	}

	return false
}

// IsIOError checks if an error came from the filesystem.
func IsIOError(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type == ErrorTypeIO
	}

	return false
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// ErrorHandler routes errors to the logger by type.
type ErrorHandler struct {
	logger Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err at a level matching its type. Recoverable errors are
// warnings; everything else is an error.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var pe *PipelineError
	if !errors.As(err, &pe) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	msg := "Error occurred"
	fields := []interface{}{"type", pe.Type, "code", pe.Code}
	switch {
	case IsBuildError(err):
		msg = "Build error occurred"
		fields = append(fields, "file", pe.FilePath)
	case IsIOError(err):
		msg = "Filesystem error occurred"
		if path, ok := pe.Context["path"]; ok {
			fields = append(fields, "path", path)
		}
	case pe.Type == ErrorTypeValidation:
		msg = "Validation error occurred"
	}

	if IsRecoverable(err) {
		h.logger.Warn(ctx, err, msg, fields...)
		return
	}
	h.logger.Error(ctx, err, msg, fields...)
}

// Common error codes.
const (
	ErrCodeInvalidPath      = "ERR_INVALID_PATH"
	ErrCodeCompileFailed    = "ERR_COMPILE_FAILED"
	ErrCodeTransformFailed  = "ERR_TRANSFORM_FAILED"
	ErrCodeTemplateFailed   = "ERR_TEMPLATE_FAILED"
	ErrCodeCleanFailed      = "ERR_CLEAN_FAILED"
	ErrCodeWriteFailed      = "ERR_WRITE_FAILED"
	ErrCodeReadFailed       = "ERR_READ_FAILED"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeServerStart      = "ERR_SERVER_START"
	ErrCodeWatchFailed      = "ERR_WATCH_FAILED"
	ErrCodeValidationFailed = "ERR_VALIDATION_FAILED"
)

// ErrCompileFailed wraps a stylesheet compiler failure for file.
func ErrCompileFailed(file string, cause error) *PipelineError {
	return NewBuildError(ErrCodeCompileFailed, "stylesheet compilation failed", cause).
		WithLocation(file, 0, 0)
}

// ErrCleanFailed wraps a failure to remove the build output.
func ErrCleanFailed(path string, cause error) *PipelineError {
	return NewIOError(ErrCodeCleanFailed, "failed to clean build output", cause).
		WithContext("path", path)
}

// ErrWriteFailed wraps a failure to write an output file.
func ErrWriteFailed(path string, cause error) *PipelineError {
	return NewIOError(ErrCodeWriteFailed, "failed to write output", cause).
		WithLocation(path, 0, 0)
}
