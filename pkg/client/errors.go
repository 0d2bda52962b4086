package client

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/Sternrassler/volley/pkg/pool"
	"github.com/Sternrassler/volley/pkg/request"
)

// ErrClientClosed is returned when work is submitted after Close.
var ErrClientClosed = errors.New("client is closed")

// exchange phases, used to classify wire errors.
const (
	phaseSend    = "writing request"
	phaseReceive = "reading response"
	phaseBody    = "reading response body"
)

// classifyAcquire maps connection acquisition failures onto the error
// taxonomy: slot starvation is pool_exhausted, everything the dial path
// produces (DNS, TCP, TLS) is transport unless the caller's context ended
// the wait.
func classifyAcquire(req *request.Request, err error) *request.Error {
	class := request.ClassTransport
	message := "establishing connection"

	switch {
	case errors.Is(err, pool.ErrExhausted):
		class = request.ClassPoolExhausted
		message = "connection pool exhausted"
	case errors.Is(err, pool.ErrClosed):
		class = request.ClassValidation
		message = "connection pool closed"
	case errors.Is(err, context.DeadlineExceeded):
		class = request.ClassTimeout
		message = "deadline reached while connecting"
	case errors.Is(err, context.Canceled):
		class = request.ClassCancelled
		message = "cancelled while connecting"
	}

	return &request.Error{
		Class:     class,
		Message:   message,
		URL:       req.URL.String(),
		RequestID: req.ID,
		Err:       err,
	}
}

// classifyIO maps errors from the wire exchange onto the taxonomy. The
// context is consulted first: a force-closed connection surfaces as a read
// or write error, but the cause is the cancellation or the deadline.
func classifyIO(ctx context.Context, req *request.Request, phase string, err error) *request.Error {
	var class request.Class

	switch {
	case ctx.Err() != nil:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			class = request.ClassTimeout
		} else {
			class = request.ClassCancelled
		}
	case errors.Is(err, os.ErrDeadlineExceeded):
		class = request.ClassTimeout
	case isNetError(err):
		class = request.ClassTransport
	case phase == phaseSend:
		// a request that cannot be written is a connection problem
		class = request.ClassTransport
	default:
		// the bytes arrived but did not parse as HTTP
		class = request.ClassProtocol
	}

	return &request.Error{
		Class:     class,
		Message:   phase,
		URL:       req.URL.String(),
		RequestID: req.ID,
		Err:       err,
	}
}

// isNetError reports whether err is a socket-level failure rather than a
// malformed payload.
func isNetError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
