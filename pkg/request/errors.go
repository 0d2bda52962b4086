package request

import (
	"context"
	"errors"
	"fmt"
)

// Class represents a classification of request failures.
type Class string

const (
	// ClassValidation covers malformed descriptors rejected before dispatch.
	ClassValidation Class = "validation"

	// ClassPoolExhausted covers acquires that timed out waiting for a
	// connection slot.
	ClassPoolExhausted Class = "pool_exhausted"

	// ClassTimeout covers requests that exceeded their deadline in flight.
	ClassTimeout Class = "timeout"

	// ClassTransport covers dial, TLS, and connection-level failures.
	ClassTransport Class = "transport"

	// ClassProtocol covers malformed or unparseable HTTP responses.
	ClassProtocol Class = "protocol"

	// ClassCancelled covers requests abandoned through context cancellation.
	ClassCancelled Class = "cancelled"
)

// Error represents a classified request failure. URL and RequestID are set
// for failures raised during dispatch; validation errors may omit them.
type Error struct {
	Class     Class
	Message   string
	URL       string
	RequestID string
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("volley %s error", e.Class)
	if e.URL != "" {
		msg += fmt.Sprintf(" (%s)", e.URL)
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsClass reports whether err carries the given classification.
func IsClass(err error, class Class) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// ClassOf returns the classification of err. Context errors that escaped
// wrapping map to their natural class; anything else unclassified counts
// as a transport failure.
func ClassOf(err error) Class {
	if err == nil {
		return ""
	}
	var e *Error
	switch {
	case errors.As(err, &e):
		return e.Class
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case errors.Is(err, context.Canceled):
		return ClassCancelled
	default:
		return ClassTransport
	}
}
