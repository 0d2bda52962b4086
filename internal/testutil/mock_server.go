// Package testutil provides testing utilities for the volley engine.
package testutil

import (
	"compress/gzip"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockServer is a configurable HTTP server for engine tests. Besides serving
// canned responses it tracks how many requests arrived, how many TCP
// connections were opened and closed, and the peak number of requests in
// flight at once.
type MockServer struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	OpenedConns       int
	ClosedConns       int
	MaxInFlight       int
	LastRequestHeader http.Header

	inFlight int
}

// NewMockServer creates and starts a plain HTTP mock server.
func NewMockServer() *MockServer {
	mock := newUnstarted()
	mock.server.Start()
	return mock
}

// NewMockTLSServer creates and starts a TLS mock server with a self-signed
// certificate. Use TLSClientConfig for a client config that trusts it.
func NewMockTLSServer() *MockServer {
	mock := newUnstarted()
	mock.server.StartTLS()
	return mock
}

func newUnstarted() *MockServer {
	mock := &MockServer{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.inFlight++
		if mock.inFlight > mock.MaxInFlight {
			mock.MaxInFlight = mock.inFlight
		}
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		defer func() {
			mock.mu.Lock()
			mock.inFlight--
			mock.mu.Unlock()
		}()

		// Check for custom handler
		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		// Default handler
		mock.defaultHandler(w, r)
	}))

	mock.server.Config.ConnState = func(c net.Conn, state http.ConnState) {
		switch state {
		case http.StateNew:
			mock.mu.Lock()
			mock.OpenedConns++
			mock.mu.Unlock()
		case http.StateClosed:
			mock.mu.Lock()
			mock.ClosedConns++
			mock.mu.Unlock()
		}
	}

	return mock
}

// URL returns the mock server URL.
func (m *MockServer) URL() string {
	return m.server.URL
}

// TLSClientConfig returns a TLS config trusting the server's certificate.
// Only meaningful for servers started with NewMockTLSServer.
func (m *MockServer) TLSClientConfig() *tls.Config {
	return m.server.Client().Transport.(*http.Transport).TLSClientConfig
}

// Close shuts down the mock server.
func (m *MockServer) Close() {
	m.server.Close()
}

// CloseClientConnections force-closes every connection currently accepted
// by the server, for stale-connection tests.
func (m *MockServer) CloseClientConnections() {
	m.server.CloseClientConnections()
}

// Reset clears all tracking counters.
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.OpenedConns = 0
	m.ClosedConns = 0
	m.MaxInFlight = 0
	m.inFlight = 0
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockServer) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockServer) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		// Add delay if specified
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		// Set headers
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		// Write status and body
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockServer) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetOpenedConns returns the number of TCP connections the server accepted.
func (m *MockServer) GetOpenedConns() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.OpenedConns
}

// GetClosedConns returns the number of TCP connections fully closed.
func (m *MockServer) GetClosedConns() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ClosedConns
}

// GetMaxInFlight returns the peak number of simultaneous in-flight requests.
func (m *MockServer) GetMaxInFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.MaxInFlight
}

// defaultHandler provides a generic JSON 200 response.
func (m *MockServer) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}

// NewJSONResponse creates a 200 response with a JSON body.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewDelayedResponse creates a 200 response served after the given delay.
func NewDelayedResponse(data string, delay time.Duration) MockResponse {
	resp := NewJSONResponse(data)
	resp.Delay = delay
	return resp
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewClosingResponse creates a 200 response that asks the server to close
// the connection afterwards, for connection-discard tests.
func NewClosingResponse(data string) MockResponse {
	resp := NewJSONResponse(data)
	resp.Headers["Connection"] = "close"
	return resp
}

// GzipHandler serves body gzip-compressed when the request advertises
// gzip support, and plain otherwise.
func GzipHandler(contentType, body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)

		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(body))
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(http.StatusOK)
		gz := gzip.NewWriter(w)
		gz.Write([]byte(body))
		gz.Close()
	}
}
