package errors

import (
	"context"
	stderr "errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"
)

func TestClusterError_Error(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeClusterUnreachable, "out of retries")
	if got := err.Error(); got != "CLUSTER_UNREACHABLE: out of retries" {
		t.Errorf("Error() = %q", got)
	}

	err = err.WithNode("http://a:8080")
	if got := err.Error(); got != "[http://a:8080] CLUSTER_UNREACHABLE: out of retries" {
		t.Errorf("Error() with node = %q", got)
	}
}

func TestClusterError_IsByCode(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeBadRedirect, "missing leader redirect header")
	wrapped := fmt.Errorf("dispatch failed: %w", err)

	if !stderr.Is(wrapped, NewError(ErrCodeBadRedirect, "")) {
		t.Error("errors.Is should match by code through wrapping")
	}
	if stderr.Is(wrapped, NewError(ErrCodeNoStableLeader, "")) {
		t.Error("errors.Is should not match a different code")
	}
	if !IsCode(wrapped, ErrCodeBadRedirect) {
		t.Error("IsCode should match through wrapping")
	}
}

func TestClusterError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := stderr.New("socket closed")
	err := NewError(ErrCodeConnectionFailed, "node down").WithCause(cause)

	if !stderr.Is(err, cause) {
		t.Error("cause should be reachable via Unwrap")
	}
}

func TestGetCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code ErrorCode
		want ErrorCategory
	}{
		{ErrCodeNoStableLeader, CategoryCluster},
		{ErrCodeClusterUnreachable, CategoryCluster},
		{ErrCodeBadRedirect, CategoryCluster},
		{ErrCodeConnectionTimeout, CategoryConnection},
		{ErrCodeOperationCanceled, CategoryOperation},
		{ErrCodeExpectationFailed, CategoryOperation},
		{ErrCodeTopologyFetch, CategoryTopology},
		{ErrCodeInvalidConfig, CategoryConfiguration},
		{ErrCodeInternalError, CategoryInternal},
		{ErrorCode("SOMETHING_ELSE"), CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := GetCategory(tt.code); got != tt.want {
				t.Errorf("GetCategory(%s) = %s, want %s", tt.code, got, tt.want)
			}
		})
	}
}

func TestIsRetryableByDefault(t *testing.T) {
	t.Parallel()

	retryable := []ErrorCode{
		ErrCodeConnectionFailed, ErrCodeConnectionTimeout, ErrCodeNetworkError,
		ErrCodeOperationTimeout, ErrCodeExpectationFailed,
	}
	for _, code := range retryable {
		if !IsRetryableByDefault(code) {
			t.Errorf("%s should be retryable", code)
		}
	}

	fatal := []ErrorCode{
		ErrCodeNoStableLeader, ErrCodeClusterUnreachable, ErrCodeBadRedirect,
		ErrCodeOperationCanceled, ErrCodeOperationFailed,
	}
	for _, code := range fatal {
		if IsRetryableByDefault(code) {
			t.Errorf("%s should not be retryable", code)
		}
	}
}

func TestResponseError(t *testing.T) {
	t.Parallel()

	header := http.Header{}
	header.Set("Location", "http://b:8080")
	header.Set("Raven-Leader-Redirect", "true")

	err := NewResponseError(http.StatusFound, header)
	if err.StatusCode != 302 {
		t.Errorf("StatusCode = %d", err.StatusCode)
	}
	if err.Location() != "http://b:8080" {
		t.Errorf("Location() = %q", err.Location())
	}
	if err.HeaderValue("Raven-Leader-Redirect") != "true" {
		t.Errorf("HeaderValue() = %q", err.HeaderValue("Raven-Leader-Redirect"))
	}

	bare := &ResponseError{StatusCode: 417}
	if bare.Location() != "" || bare.HeaderValue("X") != "" {
		t.Error("nil header map should yield empty values")
	}
}

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string   { return "i/o timeout" }
func (fakeTimeoutErr) Timeout() bool   { return true }
func (fakeTimeoutErr) Temporary() bool { return true }

func TestIsServerDown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantDown    bool
		wantTimeout bool
	}{
		{"nil", nil, false, false},
		{"deadline exceeded", context.DeadlineExceeded, true, true},
		{"net timeout", fakeTimeoutErr{}, true, true},
		{"wrapped net timeout", fmt.Errorf("call: %w", fakeTimeoutErr{}), true, true},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "db.local"}, true, false},
		{"connection refused", syscall.ECONNREFUSED, true, false},
		{"connection reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, true, false},
		{"plain error", stderr.New("boom"), false, false},
		{"canceled context", context.Canceled, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			down, timeout := IsServerDown(tt.err)
			if down != tt.wantDown || timeout != tt.wantTimeout {
				t.Errorf("IsServerDown() = (%v, %v), want (%v, %v)",
					down, timeout, tt.wantDown, tt.wantTimeout)
			}
		})
	}
}
