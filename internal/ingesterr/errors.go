// Package ingesterr provides the error taxonomy of the ingestion job.
//
// Every failure that aborts a run is surfaced as an *Error carrying a Kind.
// None of the kinds are retried inside the job: the scheduler observes the
// failed invocation and decides whether to try again at the next tick.
//
//	cfg, err := store.Load(ctx)
//	if err != nil {
//	    return ingesterr.Wrap(err, ingesterr.KindStorageTransaction, "failed to read configuration").
//	        WithDetail("object", key)
//	}
package ingesterr

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure by the collaborator that produced it.
type Kind string

const (
	// KindMissingConfiguration covers absent environment settings and
	// incomplete or unparseable configuration files.
	KindMissingConfiguration Kind = "missing_configuration"
	// KindStorageTransaction covers object store reads and writes.
	KindStorageTransaction Kind = "storage_transaction"
	// KindIdentityExchange covers the refresh-token exchange.
	KindIdentityExchange Kind = "identity_exchange"
	// KindSourceAPI covers the paginated activity API.
	KindSourceAPI Kind = "source_api"
	// KindWarehouseLoad covers load job submission and completion.
	KindWarehouseLoad Kind = "warehouse_load"
	// KindInvalidTrigger covers undecodable or unknown trigger payloads.
	KindInvalidTrigger Kind = "invalid_trigger"
)

// Error is a categorized error with optional key-value context.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Details map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error so errors.Is and errors.As see through it.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key-value pair and returns the receiver for chaining.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a kind and message. It returns nil when err is nil, so
// callers must only assign the result to an error variable inside an
// err != nil branch.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// KindOf returns the kind of the outermost *Error in err's chain, or the
// empty kind when err was not produced by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// DetailsOf returns the details of the outermost *Error in err's chain.
func DetailsOf(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
