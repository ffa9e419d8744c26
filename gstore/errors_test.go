package gstore_test

import (
	"fmt"
	"testing"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/gstore"
	"github.com/stretchr/testify/require"
)

func TestConflictingBatchError(t *testing.T) {
	t.Parallel()

	d := gbatch.Digest{1, 2, 3}
	err := fmt.Errorf("wrapped: %w", gstore.ConflictingBatchError{Digest: d})

	require.ErrorIs(t, err, gstore.ConflictingBatchError{Digest: d})
	require.NotErrorIs(t, err, gstore.ConflictingBatchError{Digest: gbatch.Digest{9}})
	require.Contains(t, err.Error(), d.String())
}
