package batch

import (
	"fmt"

	"github.com/Sternrassler/volley/pkg/request"
)

// AbortError reports the first failure of a fail-fast batch.
type AbortError struct {
	// Index is the 0-based submission index of the failing request.
	Index int

	// Class is the failure classification of the aborting error.
	Class request.Class

	// Err is the underlying request failure.
	Err error
}

// Error implements the error interface.
func (e *AbortError) Error() string {
	return fmt.Sprintf("batch aborted: request %d failed (%s): %v", e.Index, e.Class, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *AbortError) Unwrap() error {
	return e.Err
}
