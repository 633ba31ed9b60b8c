package errors

import (
	stdErrors "errors"
	"fmt"
)

// Code classifies a failure for callers and operator tooling.
type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeForbidden           Code = "FORBIDDEN"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeStateConflict       Code = "STATE_CONFLICT"
	CodeNoAvailablePosition Code = "NO_AVAILABLE_POSITION"
	CodeInternal            Code = "INTERNAL_ERROR"
	CodeDependency          Code = "DEPENDENCY_ERROR"
)

type Metadata struct {
	// ExitCode is what mmnctl returns when a command fails with this code.
	ExitCode       int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeInternal:            {1, true, "internal error", false},
	CodeValidation:          {2, false, "validation failed", true},
	CodeForbidden:           {3, false, "access denied", false},
	CodeNotFound:            {4, false, "resource not found", false},
	CodeConflict:            {5, false, "conflict detected", false},
	CodeStateConflict:       {6, false, "state transition disallowed", true},
	CodeNoAvailablePosition: {7, false, "no available position in tree", true},
	CodeDependency:          {8, true, "dependency unavailable", true},
}

// MetadataFor falls back to the internal error entry for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error with an optional cause and caller-facing details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err yields a plain coded error.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets structured context shown to operators when the code allows it.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause == nil:
		return string(e.code) + ": " + e.message
	default:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error by code, so errors.Is(err, New(CodeNotFound, ""))
// holds for any not-found error in the chain.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && e != nil && other != nil && e.code == other.code
}

// As returns the outermost coded error in err's chain.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code of the first coded error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	return As(err).Code()
}

// IsCode reports whether err carries the provided code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// IsRetryable reports whether rerunning the failed operation may succeed.
// Uncoded errors count as internal and therefore retryable.
func IsRetryable(err error) bool {
	return err != nil && MetadataFor(CodeOf(err)).Retryable
}
