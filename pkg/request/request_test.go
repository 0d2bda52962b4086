package request

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestNewRequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		url     string
		opts    []Option
		wantErr bool
		errPart string
	}{
		{
			name:   "simple GET",
			method: "GET",
			url:    "https://example.com/items",
		},
		{
			name:   "lowercase method is normalized",
			method: "post",
			url:    "https://example.com/items",
		},
		{
			name:    "unknown method",
			method:  "FETCH",
			url:     "https://example.com/items",
			wantErr: true,
			errPart: "not a supported HTTP method",
		},
		{
			name:    "empty method",
			method:  "",
			url:     "https://example.com/items",
			wantErr: true,
			errPart: "not a supported HTTP method",
		},
		{
			name:    "relative url",
			method:  "GET",
			url:     "/items",
			wantErr: true,
			errPart: "scheme must be http or https",
		},
		{
			name:    "ftp scheme",
			method:  "GET",
			url:     "ftp://example.com/items",
			wantErr: true,
			errPart: "scheme must be http or https",
		},
		{
			name:    "missing host",
			method:  "GET",
			url:     "http://",
			wantErr: true,
			errPart: "host must not be empty",
		},
		{
			name:    "two body forms",
			method:  "POST",
			url:     "https://example.com/items",
			opts:    []Option{WithBody([]byte("x")), WithJSON(map[string]int{"a": 1})},
			wantErr: true,
			errPart: "at most one of raw, form, or json body",
		},
		{
			name:    "negative timeout",
			method:  "GET",
			url:     "https://example.com/items",
			opts:    []Option{WithTimeout(-time.Second)},
			wantErr: true,
			errPart: "timeout must not be negative",
		},
		{
			name:    "unencodable json body",
			method:  "POST",
			url:     "https://example.com/items",
			opts:    []Option{WithJSON(func() {})},
			wantErr: true,
			errPart: "json body could not be encoded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewRequest(tt.method, tt.url, tt.opts...)

			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected validation error, got nil")
				}
				if !IsClass(err, ClassValidation) {
					t.Errorf("Expected validation class, got %q", ClassOf(err))
				}
				if !strings.Contains(err.Error(), tt.errPart) {
					t.Errorf("Expected error to contain %q, got %q", tt.errPart, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("NewRequest failed: %v", err)
			}
			if req.ID == "" {
				t.Error("Expected a generated request ID")
			}
		})
	}
}

func TestNewRequestNormalizesMethod(t *testing.T) {
	req, err := NewRequest(" delete ", "https://example.com/items/7")
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if req.Method != "DELETE" {
		t.Errorf("Expected method DELETE, got %q", req.Method)
	}
}

func TestNewRequestUniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		req, err := NewRequest("GET", "https://example.com/")
		if err != nil {
			t.Fatalf("NewRequest failed: %v", err)
		}
		if seen[req.ID] {
			t.Fatalf("Duplicate request ID %q", req.ID)
		}
		seen[req.ID] = true
	}
}

func TestWithRequestID(t *testing.T) {
	req, err := NewRequest("GET", "https://example.com/", WithRequestID("caller-chosen"))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if req.ID != "caller-chosen" {
		t.Errorf("Expected caller-supplied ID to be kept, got %q", req.ID)
	}
}

func TestWithHeaderLastWriteWins(t *testing.T) {
	req, err := NewRequest("GET", "https://example.com/",
		WithHeader("Accept", "text/plain"),
		WithHeader("Accept", "application/json"),
	)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if got := req.Header.Values("Accept"); len(got) != 1 || got[0] != "application/json" {
		t.Errorf("Accept = %v, want just application/json", got)
	}
}

func TestQueryMerging(t *testing.T) {
	req, err := NewRequest("GET", "https://example.com/search?q=ships",
		WithQuery("page", "2"),
		WithQueryParams(url.Values{"lang": {"en"}}),
	)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	q := req.URL.Query()
	if q.Get("q") != "ships" {
		t.Errorf("Expected existing query param to survive, got %q", q.Get("q"))
	}
	if q.Get("page") != "2" {
		t.Errorf("Expected page=2, got %q", q.Get("page"))
	}
	if q.Get("lang") != "en" {
		t.Errorf("Expected lang=en, got %q", q.Get("lang"))
	}
}

func TestBodyEncoding(t *testing.T) {
	tests := []struct {
		name            string
		opt             Option
		wantKind        BodyKind
		wantBody        string
		wantContentType string
	}{
		{
			name:            "raw body keeps bytes and has no content type",
			opt:             WithBody([]byte("hello")),
			wantKind:        BodyRaw,
			wantBody:        "hello",
			wantContentType: "",
		},
		{
			name:            "form body is url encoded",
			opt:             WithForm(url.Values{"name": {"jita"}, "region": {"forge"}}),
			wantKind:        BodyForm,
			wantBody:        "name=jita&region=forge",
			wantContentType: "application/x-www-form-urlencoded",
		},
		{
			name:            "json body is marshalled",
			opt:             WithJSON(map[string]int{"count": 3}),
			wantKind:        BodyJSON,
			wantBody:        `{"count":3}`,
			wantContentType: "application/json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewRequest("POST", "https://example.com/items", tt.opt)
			if err != nil {
				t.Fatalf("NewRequest failed: %v", err)
			}
			if req.Body.Kind != tt.wantKind {
				t.Errorf("Body.Kind = %s, want %s", req.Body.Kind, tt.wantKind)
			}

			httpReq, err := req.HTTPRequest(context.Background())
			if err != nil {
				t.Fatalf("HTTPRequest failed: %v", err)
			}
			body, err := io.ReadAll(httpReq.Body)
			if err != nil {
				t.Fatalf("Reading body failed: %v", err)
			}
			if string(body) != tt.wantBody {
				t.Errorf("Body = %q, want %q", body, tt.wantBody)
			}
			if got := httpReq.Header.Get("Content-Type"); got != tt.wantContentType {
				t.Errorf("Content-Type = %q, want %q", got, tt.wantContentType)
			}
		})
	}
}

func TestHTTPRequestRepeatable(t *testing.T) {
	req, err := NewRequest("POST", "https://example.com/items", WithBody([]byte("payload")))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	// The body reader must be rebuilt per call so the descriptor can be
	// dispatched more than once.
	for i := 0; i < 2; i++ {
		httpReq, err := req.HTTPRequest(context.Background())
		if err != nil {
			t.Fatalf("HTTPRequest failed: %v", err)
		}
		body, err := io.ReadAll(httpReq.Body)
		if err != nil {
			t.Fatalf("Reading body failed: %v", err)
		}
		if string(body) != "payload" {
			t.Errorf("Dispatch %d: body = %q, want %q", i, body, "payload")
		}
	}
}

func TestHTTPRequestHeaders(t *testing.T) {
	req, err := NewRequest("GET", "https://example.com/items",
		WithHeader("X-Trace", "abc"),
		WithHeader("Accept", "application/json"),
	)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	httpReq, err := req.HTTPRequest(context.Background())
	if err != nil {
		t.Fatalf("HTTPRequest failed: %v", err)
	}
	if got := httpReq.Header.Get("X-Trace"); got != "abc" {
		t.Errorf("X-Trace = %q, want %q", got, "abc")
	}
	if got := httpReq.Header.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q, want %q", got, "application/json")
	}
}

func TestContentTypeNotOverridden(t *testing.T) {
	req, err := NewRequest("POST", "https://example.com/items",
		WithJSON(map[string]string{"k": "v"}),
		WithHeader("Content-Type", "application/vnd.volley+json"),
	)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	httpReq, err := req.HTTPRequest(context.Background())
	if err != nil {
		t.Fatalf("HTTPRequest failed: %v", err)
	}
	if got := httpReq.Header.Get("Content-Type"); got != "application/vnd.volley+json" {
		t.Errorf("Explicit Content-Type should win, got %q", got)
	}
}

func TestBodyKindString(t *testing.T) {
	tests := []struct {
		kind     BodyKind
		expected string
	}{
		{BodyNone, "none"},
		{BodyRaw, "raw"},
		{BodyForm, "form"},
		{BodyJSON, "json"},
		{BodyKind(42), "BodyKind(42)"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.expected {
			t.Errorf("BodyKind(%d).String() = %q, want %q", int(tt.kind), got, tt.expected)
		}
	}
}
