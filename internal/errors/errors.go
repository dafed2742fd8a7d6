// Package errors defines stable error codes for all failure modes of the
// analytics core. Compile-time errors are client errors: the request must
// change before a retry can succeed.
package errors

import (
	"errors"
	"fmt"
)

// Code represents a stable error code
type Code string

const (
	// UnknownEntity indicates the requested entity key is not in the registry
	UnknownEntity Code = "UNKNOWN_ENTITY"
	// UnknownSegment indicates the requested segment key is not in the registry
	UnknownSegment Code = "UNKNOWN_SEGMENT"
	// UnknownDimension indicates the requested dimension key is not in the registry
	UnknownDimension Code = "UNKNOWN_DIMENSION"
	// UnknownMetric indicates the requested metric key is not in the registry
	UnknownMetric Code = "UNKNOWN_METRIC"
	// SegmentEntityMismatch indicates the segment is bound to a different entity
	SegmentEntityMismatch Code = "SEGMENT_ENTITY_MISMATCH"
	// DimensionTargetMismatch indicates a junction-required dimension was used
	// against the wrong query target
	DimensionTargetMismatch Code = "DIMENSION_TARGET_MISMATCH"
	// PermissionDenied indicates the caller cannot read the entity
	PermissionDenied Code = "PERMISSION_DENIED"
	// InvalidDateRange indicates an unparseable preset or custom range
	InvalidDateRange Code = "INVALID_DATE_RANGE"
	// InvalidRequest indicates a malformed request shape
	InvalidRequest Code = "INVALID_REQUEST"
	// RateLimited indicates too many concurrent requests; carries retry-after
	RateLimited Code = "RATE_LIMITED"
	// InternalError indicates an unexpected error
	InternalError Code = "INTERNAL_ERROR"
)

// QueryError represents a failure with a stable code and descriptive message
type QueryError struct {
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`

	// RetryAfterSeconds is set only for RateLimited errors.
	RetryAfterSeconds int `json:"retryAfterSeconds,omitempty"`

	cause error
}

// New creates a QueryError with the given code and message
func New(code Code, format string, args ...interface{}) *QueryError {
	return &QueryError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a QueryError wrapping an underlying cause
func Wrap(code Code, cause error, format string, args ...interface{}) *QueryError {
	return &QueryError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		cause:   cause,
	}
}

// Error implements the error interface
func (e *QueryError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *QueryError) Unwrap() error {
	return e.cause
}

// WithDetails attaches structured details to the error
func (e *QueryError) WithDetails(details interface{}) *QueryError {
	e.Details = details
	return e
}

// CodeOf extracts the stable code from an error chain.
// Returns InternalError for non-QueryError values.
func CodeOf(err error) Code {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return InternalError
}

// IsClientError reports whether the code identifies a deterministic,
// non-retryable client-input failure.
func IsClientError(code Code) bool {
	switch code {
	case UnknownEntity, UnknownSegment, UnknownDimension, UnknownMetric,
		SegmentEntityMismatch, DimensionTargetMismatch, PermissionDenied,
		InvalidDateRange, InvalidRequest:
		return true
	}
	return false
}
