package gmempool

import (
	"errors"
	"fmt"

	"github.com/gordian-engine/gmempool/gbatch"
)

// StoreFailureError is the watchdog termination cause
// when a batch cannot be persisted.
type StoreFailureError struct {
	Digest gbatch.Digest
	Err    error
}

func (e StoreFailureError) Error() string {
	return fmt.Sprintf("failed to store batch %s: %v", e.Digest, e.Err)
}

func (e StoreFailureError) Unwrap() error {
	return e.Err
}

// ErrEmptyTransaction is returned when submitting a zero-length transaction.
var ErrEmptyTransaction = errors.New("empty transaction")

// TransactionTooLargeError is returned when submitting a transaction
// larger than the configured maximum.
type TransactionTooLargeError struct {
	Size, Max int
}

func (e TransactionTooLargeError) Error() string {
	return fmt.Sprintf("transaction size %d exceeds maximum %d", e.Size, e.Max)
}
