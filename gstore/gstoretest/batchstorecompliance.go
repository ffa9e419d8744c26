// Package gstoretest contains the compliance suite
// that every [gstore.BatchStore] implementation should pass.
package gstoretest

import (
	"context"
	"sync"
	"testing"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/gstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// BatchStoreFactory returns a new, empty store.
// The factory may register cleanup functions, such as closing the store,
// through the cleanup argument.
type BatchStoreFactory func(cleanup func(func())) (gstore.BatchStore, error)

func TestBatchStoreCompliance(t *testing.T, f BatchStoreFactory) {
	var hs gbatch.Blake2bHashScheme

	t.Run("successful loading", func(t *testing.T) {
		// Assuming all these subtests are safe to run in parallel.
		// If a store comes along that violates this assumption,
		// we can adjust the outer signature to conditionally indicate parallelism.
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		data := []byte("hello")
		d := hs.Digest(data)

		require.NoError(t, s.SaveBatch(ctx, d, data))

		t.Run("load", func(t *testing.T) {
			got, err := s.LoadBatch(ctx, d, nil)
			require.NoError(t, err)
			require.Equal(t, data, got)
		})

		t.Run("has", func(t *testing.T) {
			has, err := s.HasBatch(ctx, d)
			require.NoError(t, err)
			require.True(t, has)
		})

		t.Run("loads append to dst argument", func(t *testing.T) {
			dst := make([]byte, len(data)+1)
			for i := range dst {
				dst[i] = '!'
			}

			got, err := s.LoadBatch(ctx, d, dst[:0])
			require.NoError(t, err)
			require.Equal(t, data, got)
			require.Equal(t, "hello!", string(dst))

			prefixed, err := s.LoadBatch(ctx, d, []byte("> "))
			require.NoError(t, err)
			require.Equal(t, "> hello", string(prefixed))
		})

		t.Run("saved data is independent of original", func(t *testing.T) {
			data[0] = 'j'

			got, err := s.LoadBatch(ctx, d, nil)
			require.NoError(t, err)
			require.Equal(t, []byte("hello"), got)

			// Restore for any later subtests.
			data[0] = 'h'
		})

		t.Run("loaded data is independent of store", func(t *testing.T) {
			got, err := s.LoadBatch(ctx, d, nil)
			require.NoError(t, err)
			got[0] = 'y'

			again, err := s.LoadBatch(ctx, d, nil)
			require.NoError(t, err)
			require.Equal(t, []byte("hello"), again)
		})
	})

	t.Run("missing batch", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		d := hs.Digest([]byte("never saved"))

		_, err = s.LoadBatch(ctx, d, nil)
		require.ErrorIs(t, err, gstore.ErrBatchNotFound)

		has, err := s.HasBatch(ctx, d)
		require.NoError(t, err)
		require.False(t, has)
	})

	t.Run("idempotent save", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		data := []byte("repeat")
		d := hs.Digest(data)

		require.NoError(t, s.SaveBatch(ctx, d, data))
		require.NoError(t, s.SaveBatch(ctx, d, data))

		got, err := s.LoadBatch(ctx, d, nil)
		require.NoError(t, err)
		require.Equal(t, data, got)
	})

	t.Run("conflicting save", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		data := []byte("original")
		d := hs.Digest(data)

		require.NoError(t, s.SaveBatch(ctx, d, data))

		err = s.SaveBatch(ctx, d, []byte("imposter"))
		require.ErrorIs(t, err, gstore.ConflictingBatchError{Digest: d})

		// The original is unchanged.
		got, err := s.LoadBatch(ctx, d, nil)
		require.NoError(t, err)
		require.Equal(t, data, got)
	})

	t.Run("many batches", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		batches := make([][]byte, 20)
		for i := range batches {
			batches[i] = gbatch.EncodeBatch([]gbatch.Transaction{[]byte{byte(i), 'x'}})
		}

		// Concurrent writers, as with the processor and the peer batch receiver.
		var wg sync.WaitGroup
		for _, b := range batches {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.SaveBatch(ctx, hs.Digest(b), b))
			}()
		}
		wg.Wait()

		for _, b := range batches {
			got, err := s.LoadBatch(ctx, hs.Digest(b), nil)
			require.NoError(t, err)
			require.Equal(t, b, got)
		}
	})
}
