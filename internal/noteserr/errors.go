// Package noteserr defines the typed error taxonomy shared by every core
// component, so callers can discriminate failures with errors.As instead of
// string matching.
package noteserr

import "fmt"

// StoreUnavailableError means the source SQLite store could not be opened.
type StoreUnavailableError struct {
	Reason string
	Err    error
}

func (e *StoreUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store unavailable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("store unavailable: %s", e.Reason)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// StoreUnavailable builds a StoreUnavailableError.
func StoreUnavailable(reason string, err error) error {
	return &StoreUnavailableError{Reason: reason, Err: err}
}

// QueryFailedError means a SQL prepare/step/finalise call failed.
type QueryFailedError struct {
	Detail string
	Err    error
}

func (e *QueryFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("query failed: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("query failed: %s", e.Detail)
}

func (e *QueryFailedError) Unwrap() error { return e.Err }

// QueryFailed builds a QueryFailedError.
func QueryFailed(detail string, err error) error {
	return &QueryFailedError{Detail: detail, Err: err}
}

// NotFoundError means a note, folder, attachment, or table lookup found nothing.
type NotFoundError struct {
	Kind string // "note", "folder", "attachment", "table"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// DecodeFailedError means the blob decoder could not parse its input.
type DecodeFailedError struct {
	Stage string // "decompression", "wire type", "varint", "length overrun"
	Err   error
}

func (e *DecodeFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode failed: %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("decode failed: %s", e.Stage)
}

func (e *DecodeFailedError) Unwrap() error { return e.Err }

// DecodeFailed builds a DecodeFailedError.
func DecodeFailed(stage string, err error) error {
	return &DecodeFailedError{Stage: stage, Err: err}
}

// MissingParameterError means a caller (the external dispatcher) supplied
// incomplete arguments.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing parameter: %s", e.Name)
}

// MissingParameter builds a MissingParameterError.
func MissingParameter(name string) error {
	return &MissingParameterError{Name: name}
}

// ModelUnavailableError means the semantic index could not load its model
// assets.
type ModelUnavailableError struct {
	Reason string
	Err    error
}

func (e *ModelUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model unavailable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("model unavailable: %s", e.Reason)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// ModelUnavailable builds a ModelUnavailableError.
func ModelUnavailable(reason string, err error) error {
	return &ModelUnavailableError{Reason: reason, Err: err}
}

// CancelledError means cooperative cancellation was observed mid-operation.
type CancelledError struct{}

func (e *CancelledError) Error() string { return "cancelled" }

// Cancelled is the sentinel cancellation error.
var Cancelled error = &CancelledError{}
