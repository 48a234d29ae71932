package common

import (
	"errors"
	"fmt"
)

// Common error types used across the client
var (
	// ErrNotFound indicates a cached resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid caller input
	ErrInvalidInput = errors.New("invalid input")
	// ErrStreamClosed indicates the event stream ended before a terminal frame
	ErrStreamClosed = errors.New("stream closed before completion")
)

// WrapError wraps an error with additional context information
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapErrorf wraps an error with formatted context information
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// NewError creates a new error with a formatted message
func NewError(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// ValidationError represents bad caller input with field-specific information
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap lets errors.Is match ErrInvalidInput
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// RemoteRequestError is returned when the scanning backend answers with a non-2xx status
type RemoteRequestError struct {
	StatusCode int
	StatusText string
	URL        string
	Body       string
}

func (e *RemoteRequestError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("remote request to '%s' failed: %d %s", e.URL, e.StatusCode, e.StatusText)
	}
	return fmt.Sprintf("remote request failed: %d %s", e.StatusCode, e.StatusText)
}

// NewRemoteRequestError creates a new remote request error
func NewRemoteRequestError(statusCode int, statusText, url string) *RemoteRequestError {
	return &RemoteRequestError{
		StatusCode: statusCode,
		StatusText: statusText,
		URL:        url,
	}
}

// ProtocolError represents a success response whose body does not honor the contract
type ProtocolError struct {
	Operation string
	Reason    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error in %s: %s", e.Operation, e.Reason)
}

// NewProtocolError creates a new protocol error
func NewProtocolError(operation, reason string) *ProtocolError {
	return &ProtocolError{
		Operation: operation,
		Reason:    reason,
	}
}

// ConnectionError represents a stream handshake or transport failure
type ConnectionError struct {
	URL     string
	Reason  string
	Wrapped error
}

func (e *ConnectionError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("connection error for '%s': %s: %v", e.URL, e.Reason, e.Wrapped)
	}
	return fmt.Sprintf("connection error for '%s': %s", e.URL, e.Reason)
}

func (e *ConnectionError) Unwrap() error {
	return e.Wrapped
}

// NewConnectionError creates a new connection error
func NewConnectionError(url, reason string, wrapped error) *ConnectionError {
	return &ConnectionError{
		URL:     url,
		Reason:  reason,
		Wrapped: wrapped,
	}
}

// ParseError represents a stream frame that could not be decoded
type ParseError struct {
	Frame   string
	Wrapped error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse stream frame %q: %v", truncate(e.Frame, 128), e.Wrapped)
}

func (e *ParseError) Unwrap() error {
	return e.Wrapped
}

// NewParseError creates a new parse error
func NewParseError(frame string, wrapped error) *ParseError {
	return &ParseError{
		Frame:   frame,
		Wrapped: wrapped,
	}
}

// IOError represents an unrecoverable filesystem fault
type IOError struct {
	Path    string
	Op      string
	Wrapped error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("filesystem %s failed for '%s': %v", e.Op, e.Path, e.Wrapped)
}

func (e *IOError) Unwrap() error {
	return e.Wrapped
}

// NewIOError creates a new filesystem error
func NewIOError(op, path string, wrapped error) *IOError {
	return &IOError{
		Path:    path,
		Op:      op,
		Wrapped: wrapped,
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
