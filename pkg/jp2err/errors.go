// Package jp2err holds the error taxonomy shared by the box and codestream
// parsers. Every typed error unwraps to a sentinel so callers can use either
// errors.Is or errors.As.
package jp2err

import (
	"errors"
	"fmt"
)

// Sentinels
var (
	ErrTruncated        = errors.New("truncated input")
	ErrMalformedBox     = errors.New("malformed box")
	ErrUnrecognizedEnum = errors.New("unrecognized enum value")
	ErrValidation       = errors.New("validation failed")
)

// TruncatedInputError reports fewer bytes available than a declared length demands.
type TruncatedInputError struct {
	Offset int64 // absolute position of the short read
	Want   int64
	Have   int64
}

func (e *TruncatedInputError) Error() string {
	return fmt.Sprintf("%s: wanted %d bytes at offset %d, only %d available", ErrTruncated, e.Want, e.Offset, e.Have)
}

func (e *TruncatedInputError) Unwrap() error { return ErrTruncated }

// MalformedBoxError reports a structural rule violation inside a box.
type MalformedBoxError struct {
	Type   string
	Offset int64
	Reason string
}

func (e *MalformedBoxError) Error() string {
	return fmt.Sprintf("%s: %q @ %d: %s", ErrMalformedBox, e.Type, e.Offset, e.Reason)
}

func (e *MalformedBoxError) Unwrap() error { return ErrMalformedBox }

// UnrecognizedEnumWarning is non-fatal; the raw value is kept and rendered.
type UnrecognizedEnumWarning struct {
	Field string
	Value int64
}

func (e *UnrecognizedEnumWarning) Error() string {
	return fmt.Sprintf("%s: %s unrecognized (raw value %d)", ErrUnrecognizedEnum, e.Field, e.Value)
}

func (e *UnrecognizedEnumWarning) Unwrap() error { return ErrUnrecognizedEnum }

// ValidationError reports a violated ordering or cross-reference rule.
// Fatal errors abort Open; the rest are carried as warnings.
type ValidationError struct {
	Message string
	Fatal   bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Truncated builds a TruncatedInputError.
func Truncated(offset, want, have int64) error {
	return &TruncatedInputError{Offset: offset, Want: want, Have: have}
}

// Malformed builds a MalformedBoxError with a formatted reason.
func Malformed(typ string, offset int64, format string, args ...any) error {
	return &MalformedBoxError{Type: typ, Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// Unrecognized builds an UnrecognizedEnumWarning.
func Unrecognized(field string, value int64) error {
	return &UnrecognizedEnumWarning{Field: field, Value: value}
}

// Invalid builds a non-fatal ValidationError.
func Invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Fatal builds a fatal ValidationError.
func Fatal(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...), Fatal: true}
}

// IsFatal reports whether err contains a fatal ValidationError.
func IsFatal(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Fatal
}
