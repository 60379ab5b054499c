// Package errors provides the structured error system for the cluster-aware
// request executor: error codes, categories, retry hints, and the response
// error type the executor classifies on.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode identifies a failure mode surfaced by the executor.
type ErrorCode string

const (
	// Cluster state errors
	ErrCodeNoStableLeader     ErrorCode = "NO_STABLE_LEADER"
	ErrCodeClusterUnreachable ErrorCode = "CLUSTER_UNREACHABLE"
	ErrCodeBadRedirect        ErrorCode = "BAD_REDIRECT"

	// Connection errors
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeNetworkError      ErrorCode = "NETWORK_ERROR"

	// Operation errors
	ErrCodeOperationCanceled  ErrorCode = "OPERATION_CANCELED"
	ErrCodeOperationTimeout   ErrorCode = "OPERATION_TIMEOUT"
	ErrCodeOperationFailed    ErrorCode = "OPERATION_FAILED"
	ErrCodeExpectationFailed  ErrorCode = "EXPECTATION_FAILED"
	ErrCodeRetryExhausted     ErrorCode = "RETRY_EXHAUSTED"

	// Topology errors
	ErrCodeTopologyFetch ErrorCode = "TOPOLOGY_FETCH"
	ErrCodeSnapshotLoad  ErrorCode = "SNAPSHOT_LOAD"
	ErrCodeSnapshotSave  ErrorCode = "SNAPSHOT_SAVE"

	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory is the general category of an error.
type ErrorCategory string

const (
	CategoryCluster       ErrorCategory = "cluster"
	CategoryConnection    ErrorCategory = "connection"
	CategoryOperation     ErrorCategory = "operation"
	CategoryTopology      ErrorCategory = "topology"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryInternal      ErrorCategory = "internal"
)

// ClusterError is a structured error with a code, retry hints, and the node
// the failure was observed against.
type ClusterError struct {
	Code     ErrorCode     `json:"code"`
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`

	// NodeURL is the node the failing request was dispatched to, when known.
	NodeURL string `json:"node_url,omitempty"`

	// Retryable marks errors the executor may recover from on another node.
	Retryable bool `json:"retryable"`

	// WasTimeout marks server-down classifications caused by a timeout
	// rather than an outright refusal.
	WasTimeout bool `json:"was_timeout,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *ClusterError) Error() string {
	if e.NodeURL != "" {
		return fmt.Sprintf("[%s] %s: %s", e.NodeURL, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *ClusterError) Unwrap() error {
	return e.Cause
}

// Is matches two cluster errors by code.
func (e *ClusterError) Is(target error) bool {
	if other, ok := target.(*ClusterError); ok {
		return e.Code == other.Code
	}
	return false
}

// String returns a detailed representation for logging.
func (e *ClusterError) String() string {
	parts := []string{
		fmt.Sprintf("Code=%s", e.Code),
		fmt.Sprintf("Category=%s", e.Category),
		fmt.Sprintf("Message=%q", e.Message),
	}
	if e.NodeURL != "" {
		parts = append(parts, fmt.Sprintf("Node=%s", e.NodeURL))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if e.WasTimeout {
		parts = append(parts, "WasTimeout=true")
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}
	return fmt.Sprintf("ClusterError{%s}", strings.Join(parts, ", "))
}

// NewError creates a cluster error with category and retry defaults derived
// from the code.
func NewError(code ErrorCode, message string) *ClusterError {
	return &ClusterError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Retryable: IsRetryableByDefault(code),
		Timestamp: time.Now(),
	}
}

// WithCause sets the underlying cause.
func (e *ClusterError) WithCause(cause error) *ClusterError {
	e.Cause = cause
	return e
}

// WithNode records the node the failure was observed against.
func (e *ClusterError) WithNode(url string) *ClusterError {
	e.NodeURL = url
	return e
}

// WithTimeout marks the error as caused by a timeout.
func (e *ClusterError) WithTimeout() *ClusterError {
	e.WasTimeout = true
	return e
}

// GetCategory determines the category for an error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeNoStableLeader, ErrCodeClusterUnreachable, ErrCodeBadRedirect:
		return CategoryCluster
	case ErrCodeConnectionFailed, ErrCodeConnectionTimeout, ErrCodeNetworkError:
		return CategoryConnection
	case ErrCodeOperationCanceled, ErrCodeOperationTimeout, ErrCodeOperationFailed,
		ErrCodeExpectationFailed, ErrCodeRetryExhausted:
		return CategoryOperation
	case ErrCodeTopologyFetch, ErrCodeSnapshotLoad, ErrCodeSnapshotSave:
		return CategoryTopology
	case ErrCodeInvalidConfig, ErrCodeConfigLoad:
		return CategoryConfiguration
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault reports whether an error code is recoverable by
// retrying against another node.
func IsRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeConnectionFailed, ErrCodeConnectionTimeout, ErrCodeNetworkError,
		ErrCodeOperationTimeout, ErrCodeExpectationFailed, ErrCodeTopologyFetch:
		return true
	default:
		return false
	}
}

// IsCode reports whether err is (or wraps) a cluster error with the given
// code.
func IsCode(err error, code ErrorCode) bool {
	var clusterErr *ClusterError
	if errors.As(err, &clusterErr) {
		return clusterErr.Code == code
	}
	return false
}
