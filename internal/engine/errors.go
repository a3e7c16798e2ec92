package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/mementer/internal/ir"
)

// Error is the outcome of an engine operation that did not produce a result.
//
// Error carries structured fields for diagnostics; match it with the Is*
// predicates, which see through wrapping.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Hash identifies the affected aggregate or entry, if any.
	Hash ir.Hash

	// Step names the failed step of a multi-step write (PARTIAL_CREATION).
	Step string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates an aggregate has no resolvable revision.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeMalformedData indicates every candidate was present but none
	// decoded as the expected shape.
	ErrCodeMalformedData ErrorCode = "MALFORMED_DATA"

	// ErrCodeStoreUnavailable indicates a collaborator call failed.
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"

	// ErrCodePartialCreation indicates aggregate creation stopped after the
	// identity entry was written.
	ErrCodePartialCreation ErrorCode = "PARTIAL_CREATION"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Hash != "" {
		msg += fmt.Sprintf(" (hash=%s)", e.Hash.Short())
	}
	if e.Step != "" {
		msg += fmt.Sprintf(" (step=%s)", e.Step)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

func hasCode(err error, code ErrorCode) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsMalformed reports whether err is a MALFORMED_DATA error.
func IsMalformed(err error) bool { return hasCode(err, ErrCodeMalformedData) }

// IsStoreUnavailable reports whether err is, or was caused by, a
// STORE_UNAVAILABLE error. A PartialCreation wraps one.
func IsStoreUnavailable(err error) bool {
	for err != nil {
		var ee *Error
		if !errors.As(err, &ee) {
			return false
		}
		if ee.Code == ErrCodeStoreUnavailable {
			return true
		}
		err = ee.Err
	}
	return false
}

// IsPartialCreation reports whether err is a PARTIAL_CREATION error.
func IsPartialCreation(err error) bool { return hasCode(err, ErrCodePartialCreation) }

func notFound(h ir.Hash, msg string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: msg, Hash: h}
}

func malformed(h ir.Hash, msg string) *Error {
	return &Error{Code: ErrCodeMalformedData, Message: msg, Hash: h}
}

func storeUnavailable(op string, err error) *Error {
	return &Error{Code: ErrCodeStoreUnavailable, Message: op, Err: err}
}

func partialCreation(aggregate ir.Hash, step string, err error) *Error {
	return &Error{
		Code:    ErrCodePartialCreation,
		Message: "aggregate creation stopped before completion",
		Hash:    aggregate,
		Step:    step,
		Err:     err,
	}
}
