package sms

import (
	"fmt"

	"github.com/nyotafm/smsgate/internal/gateway"
)

// TransportError is a gateway round-trip failure. It is recorded onto the
// SMS error field and surfaced to the caller; the SMS stays resendable.
type TransportError = gateway.Error

// ValidationError is a malformed SMS or recipient address, caught before the
// offending records are persisted.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PersistenceError is a storage read or write failure. It aborts the current
// send attempt immediately.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ReconciliationError reports message updates that failed after a gateway
// round trip. The SMS-level outcome already persisted stands; the failed
// records self-heal on the next delivery report or resend.
type ReconciliationError struct {
	Updated int
	Failed  int
	Err     error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation: %d of %d updates failed: %v", e.Failed, e.Updated+e.Failed, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }
