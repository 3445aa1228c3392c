package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeCompile    ErrorType = "compile"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// ParseErrorType maps a configuration string to an ErrorType.
func ParseErrorType(s string) (ErrorType, error) {
	switch t := ErrorType(strings.ToLower(strings.TrimSpace(s))); t {
	case ErrorTypeValidation, ErrorTypeIO, ErrorTypeCompile, ErrorTypeConfig, ErrorTypeInternal:
		return t, nil
	default:
		return "", fmt.Errorf("unknown error type %q", s)
	}
}

// SiteError is a structured error type carrying the task and source location
// that produced it.
type SiteError struct {
	Type     ErrorType
	Code     string
	Task     string
	Message  string
	Cause    error
	FilePath string
	Line     int
	Column   int
}

// Error implements the error interface.
func (e *SiteError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Task != "" {
		parts = append(parts, "task:"+e.Task)
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
func (e *SiteError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *SiteError) Is(target error) bool {
	var t *SiteError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithLocation adds file location information.
func (e *SiteError) WithLocation(filePath string, line, column int) *SiteError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithTask records the task that produced the error.
func (e *SiteError) WithTask(task string) *SiteError {
	e.Task = task

	return e
}

// NewValidationError creates an error for input that failed validation.
func NewValidationError(code, message string, cause error) *SiteError {
	return &SiteError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewCompileError creates an error for a source file a compiler rejected.
func NewCompileError(code, message string, cause error) *SiteError {
	return &SiteError{
		Type:    ErrorTypeCompile,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *SiteError {
	return &SiteError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *SiteError {
	return &SiteError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *SiteError {
	return &SiteError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// TypeOf returns the ErrorType of the first SiteError in err's chain.
// Errors that carry no SiteError are internal.
func TypeOf(err error) ErrorType {
	var se *SiteError
	if errors.As(err, &se) {
		return se.Type
	}

	return ErrorTypeInternal
}

// IsCompileError checks if an error came from a compiler.
func IsCompileError(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeCompile
}
