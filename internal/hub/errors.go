package hub

import "fmt"

// Code is the fixed set of error kinds surfaced to callers over the admin
// command surface and from core APIs.
type Code string

const (
	CodeBadRequest        Code = "BAD_REQUEST"
	CodeNotReady          Code = "NOT_READY"
	CodeNotFound          Code = "NOT_FOUND"
	CodeForbidden         Code = "FORBIDDEN"
	CodeUnknownCommand    Code = "UNKNOWN_COMMAND"
	CodePluginDisabled    Code = "PLUGIN_DISABLED"
	CodeNativeProbeFailed Code = "NATIVE_PROBE_FAILED"
	CodeInternal          Code = "INTERNAL"
)

// Error is the typed error value used throughout the hub: a small error
// type carrying structured fields rather than an ad-hoc fmt.Errorf string,
// for anything the caller needs to branch on.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an *Error with the given code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an *Error with the given code and message, wrapping cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}
