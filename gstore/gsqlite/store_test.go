package gsqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/gstore"
	"github.com/gordian-engine/gmempool/gstore/gsqlite"
	"github.com/gordian-engine/gmempool/gstore/gstoretest"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	// Just create the database and close it successfully.
	s, err := gsqlite.NewInMemStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)

	// Helpful output in the simplest test, if there is uncertainty which type was built.
	t.Logf("Tests are for build type %s", s.BuildType)

	require.NoError(t, s.Close())
}

func TestBatchStoreCompliance_inMem(t *testing.T) {
	t.Parallel()

	gstoretest.TestBatchStoreCompliance(t, func(cleanup func(func())) (gstore.BatchStore, error) {
		s, err := gsqlite.NewInMemStore(context.Background())
		if err != nil {
			return nil, err
		}
		cleanup(func() {
			require.NoError(t, s.Close())
		})
		return s, nil
	})
}

func TestBatchStoreCompliance_onDisk(t *testing.T) {
	t.Parallel()

	gstoretest.TestBatchStoreCompliance(t, func(cleanup func(func())) (gstore.BatchStore, error) {
		s, err := gsqlite.NewOnDiskStore(context.Background(), filepath.Join(t.TempDir(), "batches.sqlite"))
		if err != nil {
			return nil, err
		}
		cleanup(func() {
			require.NoError(t, s.Close())
		})
		return s, nil
	})
}

func TestOnDiskStore_reopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "batches.sqlite")

	data := gbatch.EncodeBatch([]gbatch.Transaction{[]byte("persist me")})
	d := gbatch.Blake2bHashScheme{}.Digest(data)

	s, err := gsqlite.NewOnDiskStore(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, s.SaveBatch(ctx, d, data))
	require.NoError(t, s.Close())

	// Reopening runs migrations again, which must be a no-op.
	s, err = gsqlite.NewOnDiskStore(ctx, dbPath)
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()

	got, err := s.LoadBatch(ctx, d, nil)
	require.NoError(t, err)
	require.Equal(t, data, got)
}
