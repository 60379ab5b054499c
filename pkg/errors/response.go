package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// ResponseError is the error the request transport returns for a non-2xx
// response. The executor classifies it by status code: 302 with the leader
// redirect header is a leader hint, 417 is a transient retry signal, and
// everything else propagates to the caller.
type ResponseError struct {
	StatusCode int
	Status     string
	Header     http.Header
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("server returned %s", e.Status)
	}
	return fmt.Sprintf("server returned status %d", e.StatusCode)
}

// Location returns the redirect target, or "" when absent.
func (e *ResponseError) Location() string {
	if e.Header == nil {
		return ""
	}
	return e.Header.Get("Location")
}

// HeaderValue returns a response header value, tolerating a nil header map.
func (e *ResponseError) HeaderValue(name string) string {
	if e.Header == nil {
		return ""
	}
	return e.Header.Get(name)
}

// NewResponseError builds a response error from a status code and headers.
func NewResponseError(statusCode int, header http.Header) *ResponseError {
	return &ResponseError{
		StatusCode: statusCode,
		Status:     fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		Header:     header,
	}
}

// IsServerDown reports whether err indicates the target node is unreachable:
// connection refused, DNS failure, socket or read timeout. These errors are
// always worth retrying on another node.
func IsServerDown(err error) (down bool, timeout bool) {
	if err == nil {
		return false, false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true, true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true, dnsErr.IsTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true, false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true, opErr.Timeout()
	}

	return false, false
}
