package store

import (
	"errors"
	"fmt"
)

// Error reports a failed store operation.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op is the operation that failed (e.g. "wrap", "observe").
	Op string

	// ModelID is the id the operation referenced.
	ModelID string

	// Message is a human-readable description.
	Message string
}

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeDuplicateID indicates Wrap on an id that is already registered.
	ErrCodeDuplicateID ErrorCode = "DUPLICATE_ID"

	// ErrCodeUnknownID indicates an operation on an id that is not registered.
	ErrCodeUnknownID ErrorCode = "UNKNOWN_ID"

	// ErrCodeInvalidCallback indicates a nil or non-comparable callback.
	ErrCodeInvalidCallback ErrorCode = "INVALID_CALLBACK"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ModelID != "" {
		return fmt.Sprintf("%s: %s: %s (model=%s)", e.Code, e.Op, e.Message, e.ModelID)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Message)
}

// IsDuplicateID returns true if err is a duplicate id error.
// Uses errors.As to handle wrapped errors.
func IsDuplicateID(err error) bool {
	return hasCode(err, ErrCodeDuplicateID)
}

// IsUnknownID returns true if err is an unknown id error.
// Uses errors.As to handle wrapped errors.
func IsUnknownID(err error) bool {
	return hasCode(err, ErrCodeUnknownID)
}

func hasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

func duplicateID(op, id string) *Error {
	return &Error{Code: ErrCodeDuplicateID, Op: op, ModelID: id, Message: "model id already registered"}
}

func unknownID(op, id string) *Error {
	return &Error{Code: ErrCodeUnknownID, Op: op, ModelID: id, Message: "model id not registered"}
}
