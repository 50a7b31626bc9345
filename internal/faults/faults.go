// Package faults defines the tagged error type shared by the pipeline and the
// resilience layer. Retry eligibility is decided by inspecting the tag, never
// by matching error strings.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindTransport is a network or provider-call failure; retryable.
	KindTransport Kind = "transport"
	// KindContent is a structurally invalid collaborator result; not retryable.
	KindContent Kind = "content"
	// KindCircuitOpen means the breaker rejected the call without attempting it.
	KindCircuitOpen Kind = "circuit_open"
	// KindRetriesExhausted wraps the last transport error after all attempts failed.
	KindRetriesExhausted Kind = "retries_exhausted"
	// KindClaimConflict means the item disappeared before it could be claimed.
	KindClaimConflict Kind = "claim_conflict"
)

// Fault is a tagged error carrying the failing operation and its cause.
type Fault struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (f *Fault) Error() string {
	msg := f.Message
	if msg == "" {
		msg = string(f.Kind)
	}
	if f.Op != "" {
		msg = f.Op + ": " + msg
	}
	if f.Err != nil {
		return msg + ": " + f.Err.Error()
	}
	return msg
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Transport tags err as a retryable network/provider failure.
func Transport(op string, err error) *Fault {
	return &Fault{Kind: KindTransport, Op: op, Err: err}
}

// Transportf builds a retryable transport fault from a format string.
func Transportf(op, format string, args ...any) *Fault {
	return &Fault{Kind: KindTransport, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Content tags err as a non-retryable invalid-result failure.
func Content(op string, err error) *Fault {
	return &Fault{Kind: KindContent, Op: op, Err: err}
}

// Contentf builds a non-retryable content fault from a format string.
func Contentf(op, format string, args ...any) *Fault {
	return &Fault{Kind: KindContent, Op: op, Message: fmt.Sprintf(format, args...)}
}

// CircuitOpen reports a call rejected by an open breaker.
func CircuitOpen(op string) *Fault {
	return &Fault{Kind: KindCircuitOpen, Op: op, Message: "circuit breaker is open, call blocked"}
}

// RetriesExhausted wraps the last error after all retry attempts failed.
func RetriesExhausted(op string, attempts int, err error) *Fault {
	return &Fault{
		Kind:    KindRetriesExhausted,
		Op:      op,
		Message: fmt.Sprintf("gave up after %d attempts", attempts),
		Err:     err,
	}
}

// ClaimConflict reports an item that vanished before it could be claimed.
func ClaimConflict(op string, err error) *Fault {
	return &Fault{Kind: KindClaimConflict, Op: op, Message: "item already claimed or gone", Err: err}
}

// KindOf returns the fault kind of err, or "" for untagged errors.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether err is worth another attempt. Transport faults
// are; tagged non-transport faults are not. Untagged errors default to
// retryable so that plain collaborator errors behave like transport failures.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind == KindTransport
	}
	return true
}
