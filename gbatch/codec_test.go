package gbatch_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/stretchr/testify/require"
)

func TestEncodeBatch_uncompressed(t *testing.T) {
	t.Parallel()

	txs := []gbatch.Transaction{[]byte("a1b2c3d4e5f6")}
	b := gbatch.EncodeBatch(txs)

	require.Equal(t, byte(gbatch.KindBatch), b[0])
	require.Zero(t, b[1])

	// The size header correctly indicates the remaining data.
	rest, szLen := binary.Uvarint(b[2:])
	require.Equal(t, 2+szLen+int(rest), len(b))

	got, err := gbatch.DecodeBatch(b, 0)
	require.NoError(t, err)
	require.Equal(t, txs, got)
}

func TestEncodeBatch_compressed(t *testing.T) {
	t.Parallel()

	// Mostly zero bytes, should be obviously compressed.
	txs := make([]gbatch.Transaction, 10)
	for i := range txs {
		txs[i] = make([]byte, 64)
		txs[i][0] = byte(i)
	}

	b := gbatch.EncodeBatch(txs)
	require.Equal(t, byte(1), b[1])

	rest, szLen := binary.Uvarint(b[2:])
	require.Equal(t, 2+szLen+int(rest), len(b))

	got, err := gbatch.DecodeBatch(b, 0)
	require.NoError(t, err)
	require.Equal(t, txs, got)
}

func TestEncodeBatch_panicsOnEmptyTxs(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() {
		_ = gbatch.EncodeBatch(nil)
	})
}

func TestEncodeBatch_preservesOrder(t *testing.T) {
	t.Parallel()

	var txs []gbatch.Transaction
	for i := range 50 {
		txs = append(txs, bytes.Repeat([]byte{byte(i)}, i+1))
	}

	got, err := gbatch.DecodeBatch(gbatch.EncodeBatch(txs), 0)
	require.NoError(t, err)
	require.Equal(t, txs, got)
}

func TestDecodeBatch_maxDecodedSize(t *testing.T) {
	t.Parallel()

	compressible := []gbatch.Transaction{make([]byte, 4096)}
	b := gbatch.EncodeBatch(compressible)
	require.Equal(t, byte(1), b[1])

	_, err := gbatch.DecodeBatch(b, 1024)
	require.Error(t, err)

	_, err = gbatch.DecodeBatch(b, 8192)
	require.NoError(t, err)

	incompressible := []gbatch.Transaction{[]byte("xyz")}
	_, err = gbatch.DecodeBatch(gbatch.EncodeBatch(incompressible), 2)
	require.Error(t, err)
}

func TestDecodeBatch_malformed(t *testing.T) {
	t.Parallel()

	good := gbatch.EncodeBatch([]gbatch.Transaction{[]byte("hello"), []byte("world")})

	for name, b := range map[string][]byte{
		"empty":              nil,
		"unknown kind":       {9, 0, 0},
		"transaction kind":   gbatch.EncodeTransactionMessage([]byte("tx")),
		"missing header":     {byte(gbatch.KindBatch)},
		"bad compression":    {byte(gbatch.KindBatch), 7, 1, 0},
		"truncated":          good[:len(good)-1],
		"extra trailing":     append(bytes.Clone(good), 0),
		"zero transactions":  {byte(gbatch.KindBatch), 0, 1, 0},
		"tx length overflow": {byte(gbatch.KindBatch), 0, 3, 1, 5, 'a'},
		"count overflow":     {byte(gbatch.KindBatch), 0, 3, 100, 1, 'a'},
	} {
		_, err := gbatch.DecodeBatch(b, 0)
		require.Error(t, err, name)
	}
}

func TestTransactionMessage(t *testing.T) {
	t.Parallel()

	msg := gbatch.EncodeTransactionMessage([]byte("payload"))
	k, err := gbatch.MessageKindOf(msg)
	require.NoError(t, err)
	require.Equal(t, gbatch.KindTransaction, k)

	tx, err := gbatch.DecodeTransactionMessage(msg)
	require.NoError(t, err)
	require.Equal(t, gbatch.Transaction("payload"), tx)

	_, err = gbatch.DecodeTransactionMessage(gbatch.EncodeBatch([]gbatch.Transaction{tx}))
	require.Error(t, err)
}

func TestFramedTxSize(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, gbatch.FramedTxSize(0))
	require.Equal(t, 128, gbatch.FramedTxSize(127))
	require.Equal(t, 130, gbatch.FramedTxSize(128))

	// The uncompressed payload is the count plus every framed transaction.
	txs := []gbatch.Transaction{
		gbatch.Transaction("a"),
		bytes.Repeat([]byte("b"), 300),
	}
	want := 1
	for _, tx := range txs {
		want += gbatch.FramedTxSize(len(tx))
	}

	_, err := gbatch.DecodeBatch(gbatch.EncodeBatch(txs), want)
	require.NoError(t, err)
	_, err = gbatch.DecodeBatch(gbatch.EncodeBatch(txs), want-1)
	require.Error(t, err)
}
