package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the connection lifecycle and contract resolution.
// Callers select HTTP status codes with errors.Is/As against these.
var (
	// ErrNotConnected is returned by session methods invoked while the
	// upstream session is down. Nothing reconnects implicitly; the
	// supervisor owns that.
	ErrNotConnected = errors.New("upstream session not connected")

	// ErrConnectionFailed means both the primary and the blocking fallback
	// connect attempts were exhausted.
	ErrConnectionFailed = errors.New("upstream connection failed")

	// ErrContractNotFound means a symbol could not be qualified at the venue.
	ErrContractNotFound = errors.New("contract not found")
)

// UpstreamError wraps a failed or timed-out brokerage call.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ValidationError reports malformed request parameters, such as a missing
// limit price on a limit order.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }
