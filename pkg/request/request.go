// Package request defines the request descriptors and results that flow
// through volley. A Request is validated when it is built, carries a tagged
// body payload, and is safe to submit any number of times.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BodyKind selects which payload encoding a request carries.
type BodyKind int

const (
	// BodyNone marks a request without a payload.
	BodyNone BodyKind = iota

	// BodyRaw sends the payload bytes unmodified.
	BodyRaw

	// BodyForm URL-encodes form fields as application/x-www-form-urlencoded.
	BodyForm

	// BodyJSON marshals a Go value as application/json.
	BodyJSON
)

// String returns the kind name for logs and error messages.
func (k BodyKind) String() string {
	switch k {
	case BodyNone:
		return "none"
	case BodyRaw:
		return "raw"
	case BodyForm:
		return "form"
	case BodyJSON:
		return "json"
	default:
		return fmt.Sprintf("BodyKind(%d)", int(k))
	}
}

// Body is the tagged request payload. Kind selects which field applies;
// the others are ignored.
type Body struct {
	Kind BodyKind
	Raw  []byte
	Form url.Values
	JSON any
}

// Request describes one HTTP request to perform. Build it with NewRequest;
// a zero Request is not valid.
type Request struct {
	// ID uniquely identifies the request. It is generated at construction
	// and echoed on the Result.
	ID string

	// Method is the uppercase HTTP method.
	Method string

	// URL is the absolute target, with query options already merged in.
	URL *url.URL

	// Header holds extra request headers.
	Header http.Header

	// Body is the tagged payload.
	Body Body

	// Timeout bounds the whole exchange for this request when positive.
	// Zero means the client default applies.
	Timeout time.Duration

	query    url.Values
	bodyOpts int

	wireBody    []byte
	contentType string
}

// Option mutates a Request during construction.
type Option func(*Request)

// WithHeader sets a single header, replacing any prior value for the key.
func WithHeader(key, value string) Option {
	return func(r *Request) {
		r.Header.Set(key, value)
	}
}

// WithHeaders adds all headers from h to the request.
func WithHeaders(h http.Header) Option {
	return func(r *Request) {
		for k, vs := range h {
			for _, v := range vs {
				r.Header.Add(k, v)
			}
		}
	}
}

// WithQuery adds a query parameter. Parameters merge with any query string
// already present in the URL.
func WithQuery(key, value string) Option {
	return func(r *Request) {
		if r.query == nil {
			r.query = url.Values{}
		}
		r.query.Add(key, value)
	}
}

// WithQueryParams adds all parameters from params to the query string.
func WithQueryParams(params url.Values) Option {
	return func(r *Request) {
		if r.query == nil {
			r.query = url.Values{}
		}
		for k, vs := range params {
			for _, v := range vs {
				r.query.Add(k, v)
			}
		}
	}
}

// WithBody sets a raw byte payload.
func WithBody(raw []byte) Option {
	return func(r *Request) {
		r.Body = Body{Kind: BodyRaw, Raw: raw}
		r.bodyOpts++
	}
}

// WithForm sets a form payload encoded as application/x-www-form-urlencoded.
func WithForm(form url.Values) Option {
	return func(r *Request) {
		r.Body = Body{Kind: BodyForm, Form: form}
		r.bodyOpts++
	}
}

// WithJSON sets a payload marshalled as application/json.
func WithJSON(v any) Option {
	return func(r *Request) {
		r.Body = Body{Kind: BodyJSON, JSON: v}
		r.bodyOpts++
	}
}

// WithTimeout bounds the whole exchange for this request.
func WithTimeout(d time.Duration) Option {
	return func(r *Request) {
		r.Timeout = d
	}
}

// WithRequestID overrides the generated request ID.
func WithRequestID(id string) Option {
	return func(r *Request) {
		r.ID = id
	}
}

var validMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// NewRequest builds and validates a request descriptor. The method is
// normalized to uppercase, the URL must be absolute with an http or https
// scheme, and at most one body option may be given. All validation failures
// return an Error with ClassValidation.
func NewRequest(method, rawURL string, opts ...Option) (*Request, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if !validMethods[method] {
		return nil, &Error{
			Class:   ClassValidation,
			Message: fmt.Sprintf("method %q is not a supported HTTP method", method),
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &Error{
			Class:   ClassValidation,
			Message: fmt.Sprintf("invalid url %q", rawURL),
			Err:     err,
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &Error{
			Class:   ClassValidation,
			Message: fmt.Sprintf("url scheme must be http or https, got %q", u.Scheme),
		}
	}
	if u.Host == "" {
		return nil, &Error{
			Class:   ClassValidation,
			Message: "url host must not be empty",
		}
	}

	r := &Request{
		Method: method,
		URL:    u,
		Header: make(http.Header),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	if r.bodyOpts > 1 {
		return nil, &Error{
			Class:   ClassValidation,
			Message: "at most one of raw, form, or json body may be set",
		}
	}
	if r.Timeout < 0 {
		return nil, &Error{
			Class:   ClassValidation,
			Message: "timeout must not be negative",
		}
	}

	r.mergeQuery()
	if err := r.encodeBody(); err != nil {
		return nil, err
	}
	return r, nil
}

// mergeQuery folds pending query options into the URL query string.
func (r *Request) mergeQuery() {
	if len(r.query) == 0 {
		return
	}
	q := r.URL.Query()
	for k, vs := range r.query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	r.URL.RawQuery = q.Encode()
	r.query = nil
}

// encodeBody materializes the tagged payload into wire bytes. JSON values
// that cannot be marshalled fail validation here rather than at dispatch.
func (r *Request) encodeBody() error {
	switch r.Body.Kind {
	case BodyNone:
	case BodyRaw:
		r.wireBody = r.Body.Raw
	case BodyForm:
		r.wireBody = []byte(r.Body.Form.Encode())
		r.contentType = "application/x-www-form-urlencoded"
	case BodyJSON:
		encoded, err := json.Marshal(r.Body.JSON)
		if err != nil {
			return &Error{
				Class:   ClassValidation,
				Message: "json body could not be encoded",
				Err:     err,
			}
		}
		r.wireBody = encoded
		r.contentType = "application/json"
	default:
		return &Error{
			Class:   ClassValidation,
			Message: fmt.Sprintf("unknown body kind %s", r.Body.Kind),
		}
	}
	return nil
}

// HTTPRequest materializes the descriptor into an *http.Request bound to ctx.
// The body reader is rebuilt on every call, so the same Request can be
// dispatched repeatedly.
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(r.wireBody) > 0 {
		body = bytes.NewReader(r.wireBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, r.Method, r.URL.String(), body)
	if err != nil {
		return nil, &Error{
			Class:   ClassValidation,
			Message: "building http request",
			Err:     err,
		}
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if r.contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", r.contentType)
	}
	return httpReq, nil
}
