// Package syncerr defines the error taxonomy shared by the sync engine's
// components: transport, auth, and protocol failures all classify into one
// of a small set of kinds so that callers can decide reconnect vs. fatal
// without inspecting driver-specific error types.
package syncerr

import (
	"errors"
	"fmt"
)

// Kind identifies which policy in the error taxonomy applies.
type Kind int

const (
	// KindTransientNetwork covers dropped connections and timeouts talking
	// to the ledger. Policy: backoff and reconnect.
	KindTransientNetwork Kind = iota
	// KindTransientDatabase covers commit conflicts and temporary Neo4j
	// unavailability. Policy: bounded retry inside the Batch Writer.
	KindTransientDatabase
	// KindAuthExpired is an Unauthenticated response from the ledger or a
	// 401 from the identity provider. Policy: one reactive refresh.
	KindAuthExpired
	// KindAuthDenied is a refresh attempt itself being rejected (401/403
	// from the IdP on refresh). Policy: fatal.
	KindAuthDenied
	// KindDataPruned is the ledger rejecting begin_exclusive because the
	// offset predates pruning. Policy: fatal, operator must raise
	// begin_offset.
	KindDataPruned
	// KindProtocolMalformed is an unparseable message or a broken
	// structural invariant. Policy: fatal, treated as data corruption.
	KindProtocolMalformed
	// KindFatal is any of the above once retries are exhausted, or a
	// condition with no recovery path.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransientNetwork:
		return "Transient.Network"
	case KindTransientDatabase:
		return "Transient.Database"
	case KindAuthExpired:
		return "Auth.Expired"
	case KindAuthDenied:
		return "Auth.Denied"
	case KindDataPruned:
		return "DataPruned"
	case KindProtocolMalformed:
		return "Protocol.Malformed"
	case KindFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a taxonomy Kind and, when known, the
// ledger offset at which it occurred.
type Error struct {
	Kind   Kind
	Offset int64
	// HasOffset distinguishes "offset 0" from "no offset known".
	HasOffset bool
	Err       error
}

func (e *Error) Error() string {
	if e.HasOffset {
		return fmt.Sprintf("%s at offset %d: %v", e.Kind, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no associated offset.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// AtOffset builds an Error associated with a specific ledger offset.
func AtOffset(kind Kind, offset int64, err error) *Error {
	return &Error{Kind: kind, Offset: offset, HasOffset: true, Err: err}
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// AsFatal wraps err as a terminal Fatal error, preserving the original for
// unwrapping.
func AsFatal(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return &Error{Kind: KindFatal, Offset: se.Offset, HasOffset: se.HasOffset, Err: err}
	}
	return New(KindFatal, err)
}
