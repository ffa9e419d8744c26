package gmempool_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/gcommittee"
	"github.com/gordian-engine/gmempool/gcrypto"
	"github.com/gordian-engine/gmempool/gcrypto/gcryptotest"
	"github.com/gordian-engine/gmempool/gmempool"
	"github.com/gordian-engine/gmempool/gstore"
	"github.com/gordian-engine/gmempool/gtransport"
	"github.com/stretchr/testify/require"
)

// testCommittee is a committee whose i'th signer has the i'th stake
// and the address "val-i".
type testCommittee struct {
	Committee *gcommittee.Committee
	Signers   []gcrypto.Ed25519Signer
}

func newTestCommittee(t *testing.T, stakes ...uint64) testCommittee {
	t.Helper()

	signers := gcryptotest.DeterministicEd25519Signers(len(stakes))
	auths := make([]gcommittee.Authority, len(stakes))
	for i, s := range stakes {
		auths[i] = gcommittee.Authority{
			PubKey: signers[i].PubKey(),
			Stake:  s,
			Addr:   testAddr(i),
		}
	}

	c, err := gcommittee.New(1, auths)
	require.NoError(t, err)

	return testCommittee{Committee: c, Signers: signers}
}

func testAddr(i int) string {
	return fmt.Sprintf("val-%d", i)
}

func (c testCommittee) Key(i int) gcrypto.PubKey {
	return c.Signers[i].PubKey()
}

// sealedBatch returns a SealedBatch holding one unresolved handle
// for every signer except self, indexed by signer.
func (c testCommittee) sealedBatch(self int, txs ...string) (gmempool.SealedBatch, map[int]*gtransport.Handle) {
	b := gmempool.SealedBatch{Serialized: encodeTxs(txs...)}
	handles := map[int]*gtransport.Handle{}
	for i := range c.Signers {
		if i == self {
			continue
		}
		h := gtransport.NewHandle(nil)
		handles[i] = h
		b.Handles = append(b.Handles, gmempool.PeerHandle{PubKey: c.Key(i), Handle: h})
	}
	return b, handles
}

func encodeTxs(txs ...string) []byte {
	out := make([]gbatch.Transaction, len(txs))
	for i, tx := range txs {
		out[i] = gbatch.Transaction(tx)
	}
	return gbatch.EncodeBatch(out)
}

func decodeTxs(t *testing.T, serialized []byte) []string {
	t.Helper()

	txs, err := gbatch.DecodeBatch(serialized, 0)
	require.NoError(t, err)

	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = string(tx)
	}
	return out
}

// hookStore wraps a BatchStore and lets a test observe or fail writes.
type hookStore struct {
	gstore.BatchStore

	// Called before each write; a non-nil error fails the write.
	beforeSave func(ctx context.Context, d gbatch.Digest, data []byte) error
}

func (s hookStore) SaveBatch(ctx context.Context, d gbatch.Digest, data []byte) error {
	if s.beforeSave != nil {
		if err := s.beforeSave(ctx, d, data); err != nil {
			return err
		}
	}
	return s.BatchStore.SaveBatch(ctx, d, data)
}
