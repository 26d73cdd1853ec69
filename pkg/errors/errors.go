// Package errors defines the error taxonomy shared by the agent's memory and cognition layers.
// Collaborator adapters map their transport-specific failures to these kinds so callers can
// decide between retrying, dropping a record, or aborting a single cycle.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error.
type Kind string

// Error kinds.
const (
	KindProvider Kind = "provider_error"
	KindStorage  Kind = "storage_error"
	KindData     Kind = "data_error"
	KindParse    Kind = "parse_error"
	KindPublish  Kind = "publish_error"
)

// PublishKind distinguishes the ways a publish attempt can fail.
type PublishKind string

// Publish failure kinds.
const (
	PublishRateLimited PublishKind = "rate_limited"
	PublishRejected    PublishKind = "rejected"
	PublishNetwork     PublishKind = "network"
)

// Error is the standardized error carried across component boundaries.
type Error struct {
	Kind        Kind        `json:"kind"`
	Op          string      `json:"op"`
	Message     string      `json:"message"`
	StatusCode  int         `json:"status_code,omitempty"`
	PublishKind PublishKind `json:"publish_kind,omitempty"`
	Retryable   bool        `json:"-"`
	Err         error       `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Kind, e.Op, e.Message)
	if e.PublishKind != "" {
		msg += fmt.Sprintf(" (publish=%s)", e.PublishKind)
	}
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (code=%d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewProviderError creates an LLM or embedding provider failure. Provider failures are
// retryable unless the remote side rejected the request itself.
func NewProviderError(op, message string, statusCode int, err error) *Error {
	return &Error{
		Kind:       KindProvider,
		Op:         op,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  IsRetryableStatus(statusCode),
		Err:        err,
	}
}

// NewStorageError creates a persistence failure. Storage failures are always retryable.
func NewStorageError(op, message string, err error) *Error {
	return &Error{
		Kind:      KindStorage,
		Op:        op,
		Message:   message,
		Retryable: true,
		Err:       err,
	}
}

// NewDataError creates an error for malformed content or embeddings. Never retryable.
func NewDataError(op, message string) *Error {
	return &Error{
		Kind:    KindData,
		Op:      op,
		Message: message,
	}
}

// NewParseError creates an error for provider output that could not be interpreted.
func NewParseError(op, message string, err error) *Error {
	return &Error{
		Kind:    KindParse,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// NewPublishError creates a publishing failure. Rate limits and network failures are retryable.
func NewPublishError(op string, kind PublishKind, statusCode int, message string, err error) *Error {
	return &Error{
		Kind:        KindPublish,
		Op:          op,
		Message:     message,
		StatusCode:  statusCode,
		PublishKind: kind,
		Retryable:   kind == PublishRateLimited || kind == PublishNetwork,
		Err:         err,
	}
}

// IsRetryableStatus reports whether an HTTP status from a provider warrants a retry.
// Status 0 means no response was received.
func IsRetryableStatus(statusCode int) bool {
	switch {
	case statusCode == 0:
		return true
	case statusCode == http.StatusTooManyRequests, statusCode == http.StatusRequestTimeout:
		return true
	case statusCode >= 500:
		return true
	default:
		return false
	}
}

// PublishKindFromStatus maps a social API response status to a publish failure kind.
func PublishKindFromStatus(statusCode int) PublishKind {
	switch {
	case statusCode == 0:
		return PublishNetwork
	case statusCode == http.StatusTooManyRequests:
		return PublishRateLimited
	case statusCode >= 500:
		return PublishNetwork
	default:
		return PublishRejected
	}
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// IsRetryable reports whether err should be retried with backoff.
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable
}
