package request

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Response holds a fully read HTTP response. The body is buffered; Text and
// JSON decode it on access.
type Response struct {
	// StatusCode is the numeric HTTP status.
	StatusCode int

	// Status is the full status line, e.g. "200 OK".
	Status string

	// Header holds the response headers.
	Header http.Header

	// Body is the raw response payload after any transfer decoding.
	Body []byte

	// URL is the request URL this response answered.
	URL string
}

// Text returns the body decoded as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// JSON unmarshals the body into v.
func (r *Response) JSON(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(r.Body, v)
}

// Result is the outcome of one dispatched request: a response or a
// classified error, never both.
type Result struct {
	// RequestID echoes the ID of the request that produced this result.
	RequestID string

	// Elapsed is the wall time from dispatch to completion.
	Elapsed time.Duration

	// Response is set when the exchange produced an HTTP response.
	Response *Response

	// Err is set when the request failed before a response was read.
	Err error
}

// OK reports whether the request completed with a non-error status (< 400).
func (r *Result) OK() bool {
	return r.Err == nil && r.Response != nil && r.Response.StatusCode < 400
}

// StatusCode returns the HTTP status code, or 0 when the request failed.
func (r *Result) StatusCode() int {
	if r.Response == nil {
		return 0
	}
	return r.Response.StatusCode
}

// ErrorClass returns the failure classification, or the empty class when
// the request succeeded.
func (r *Result) ErrorClass() Class {
	return ClassOf(r.Err)
}
