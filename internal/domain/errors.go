package domain

import (
	"errors"
	"fmt"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// Connection-level errors. Any of these aborts the whole diagnostic run.
var (
	// ErrGatewayUnreachable is returned when the reachability probe fails.
	// The gateway process is simply not running; never retried within a run.
	ErrGatewayUnreachable = errors.New("gateway unreachable")

	// ErrHandshakeTimeout is returned when the protocol handshake does not
	// complete in time. Retried once with a fresh attempt, then fatal.
	ErrHandshakeTimeout = errors.New("handshake timed out")

	// ErrHandshakeRejected is returned when the gateway refuses the handshake.
	// Never retried.
	ErrHandshakeRejected = errors.New("handshake rejected")

	// ErrSessionInUse is returned when the requested session id is already
	// held by another live connection. The gateway enforces session id
	// uniqueness, not this client; a collision is a connection error.
	ErrSessionInUse = errors.New("session id already in use")
)

// Per-instrument errors. Captured in the instrument's result record;
// processing continues with the next instrument.
var (
	// ErrNotResolved is returned when every resolution strategy was
	// exhausted with zero or ambiguous candidates.
	ErrNotResolved = errors.New("instrument not resolved")

	// ErrSubscriptionRejected is returned when the gateway refuses a market
	// data subscription synchronously.
	ErrSubscriptionRejected = errors.New("subscription rejected")

	// ErrNoData is returned when a snapshot poll expires without a single
	// valid quote field. Expected and benign (market closed, no entitlement).
	ErrNoData = errors.New("no market data")

	// ErrHistoryUnavailable is returned when every historical sub-window
	// request failed.
	ErrHistoryUnavailable = errors.New("history unavailable")

	// ErrRunDeadlineExceeded is returned when the run-level deadline expires
	// mid-operation. Remaining work is abandoned; teardown still happens.
	ErrRunDeadlineExceeded = errors.New("run deadline exceeded")
)

// GatewayError wraps a gateway operation failure with the operation name
type GatewayError struct {
	Op        string // Operation that failed (e.g., "probe", "handshake", "resolve")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *GatewayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *GatewayError) IsRetriable() bool {
	return e.Retriable
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError creates a new retriable gateway error
func NewGatewayError(op string, err error) *GatewayError {
	return &GatewayError{Op: op, Err: err, Retriable: true}
}

// NewFatalGatewayError creates a non-retriable gateway error
func NewFatalGatewayError(op string, err error) *GatewayError {
	return &GatewayError{Op: op, Err: err, Retriable: false}
}

// HistoryError carries partial-success counts when a history fetch fails
// across all sub-windows.
type HistoryError struct {
	Failed    int
	Succeeded int
}

func (e *HistoryError) Error() string {
	return fmt.Sprintf("%v: %d sub-windows failed, %d succeeded",
		ErrHistoryUnavailable, e.Failed, e.Succeeded)
}

func (e *HistoryError) Unwrap() error {
	return ErrHistoryUnavailable
}

func (e *HistoryError) IsRetriable() bool {
	return false
}
