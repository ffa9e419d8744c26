package gstore

import (
	"errors"
	"fmt"

	"github.com/gordian-engine/gmempool/gbatch"
)

var ErrBatchNotFound = errors.New("batch not found")

// ConflictingBatchError is returned from [BatchStore.SaveBatch]
// when different data is already stored under the same digest.
type ConflictingBatchError struct {
	Digest gbatch.Digest
}

func (e ConflictingBatchError) Error() string {
	return fmt.Sprintf("different batch data already stored for digest %s", e.Digest)
}
