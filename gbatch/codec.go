package gbatch

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/golang/snappy"
)

// Transaction is an opaque client transaction.
// The mempool never interprets its contents.
type Transaction []byte

// MessageKind is the first byte of every message exchanged between validators,
// so that a single listener can route inbound messages.
type MessageKind byte

const (
	// KindTransaction messages carry a single raw transaction
	// as the remainder of the message.
	KindTransaction MessageKind = 1

	// KindBatch messages carry a framed, possibly compressed, batch.
	KindBatch MessageKind = 2
)

func (k MessageKind) String() string {
	switch k {
	case KindTransaction:
		return "transaction"
	case KindBatch:
		return "batch"
	default:
		return fmt.Sprintf("MessageKind(%d)", byte(k))
	}
}

// Compression headers for the batch frame.
const (
	uncompressedHeader byte = 0
	snappyHeader       byte = 1
)

// EncodeTransactionMessage returns a KindTransaction message wrapping tx.
func EncodeTransactionMessage(tx Transaction) []byte {
	out := make([]byte, 1+len(tx))
	out[0] = byte(KindTransaction)
	copy(out[1:], tx)
	return out
}

// EncodeBatch returns the serialized KindBatch message for txs.
// The result is the exact byte sequence that is broadcast, hashed and persisted.
//
// The format after the kind byte is:
//
//  1. A compression header byte (0 for uncompressed, 1 for snappy).
//  2. A uvarint length of the maybe-compressed payload.
//  3. The maybe-compressed payload.
//
// The uncompressed payload is a uvarint transaction count,
// followed by each transaction as a uvarint length and its bytes.
// Snappy is only used when it produces a smaller payload.
//
// EncodeBatch panics when len(txs) == 0;
// an empty batch must never be produced.
func EncodeBatch(txs []Transaction) []byte {
	if len(txs) == 0 {
		panic(errors.New("BUG: EncodeBatch called with no transactions"))
	}

	sz := binary.MaxVarintLen64
	for _, tx := range txs {
		sz += binary.MaxVarintLen64 + len(tx)
	}

	raw := make([]byte, 0, sz)
	raw = binary.AppendUvarint(raw, uint64(len(txs)))
	for _, tx := range txs {
		raw = binary.AppendUvarint(raw, uint64(len(tx)))
		raw = append(raw, tx...)
	}

	header, payload := uncompressedHeader, raw
	if c := snappy.Encode(nil, raw); len(c) < len(raw) {
		header, payload = snappyHeader, c
	}

	out := make([]byte, 0, 2+binary.MaxVarintLen64+len(payload))
	out = append(out, byte(KindBatch), header)
	out = binary.AppendUvarint(out, uint64(len(payload)))
	return append(out, payload...)
}

// FramedTxSize is the number of uncompressed payload bytes
// that a transaction of n bytes occupies within a batch.
func FramedTxSize(n int) int {
	var buf [binary.MaxVarintLen64]byte
	return len(binary.AppendUvarint(buf[:0], uint64(n))) + n
}

// MaxBatchOverhead bounds the uncompressed payload bytes of a batch
// that are not part of a framed transaction.
const MaxBatchOverhead = binary.MaxVarintLen64

// MessageKindOf returns the kind of the encoded message b.
func MessageKindOf(b []byte) (MessageKind, error) {
	if len(b) == 0 {
		return 0, errors.New("empty message")
	}
	k := MessageKind(b[0])
	switch k {
	case KindTransaction, KindBatch:
		return k, nil
	default:
		return 0, fmt.Errorf("unknown message kind %d", b[0])
	}
}

// DecodeTransactionMessage returns the transaction carried in a KindTransaction message.
// The returned Transaction aliases b.
func DecodeTransactionMessage(b []byte) (Transaction, error) {
	k, err := MessageKindOf(b)
	if err != nil {
		return nil, err
	}
	if k != KindTransaction {
		return nil, fmt.Errorf("expected %s message, got %s", KindTransaction, k)
	}
	return Transaction(b[1:]), nil
}

// DecodeBatch parses a KindBatch message produced by [EncodeBatch].
//
// maxDecodedSize bounds the size of the uncompressed payload,
// so that a hostile peer cannot force a large allocation.
// A non-positive maxDecodedSize disables the bound.
//
// The returned transactions do not alias b.
func DecodeBatch(b []byte, maxDecodedSize int) ([]Transaction, error) {
	k, err := MessageKindOf(b)
	if err != nil {
		return nil, err
	}
	if k != KindBatch {
		return nil, fmt.Errorf("expected %s message, got %s", KindBatch, k)
	}

	if len(b) < 2 {
		return nil, errors.New("batch message missing compression header")
	}
	header := b[1]

	pLen, n := binary.Uvarint(b[2:])
	if n <= 0 {
		return nil, errors.New("failed to read batch payload length")
	}
	rest := b[2+n:]
	if pLen != uint64(len(rest)) {
		return nil, fmt.Errorf(
			"batch payload length %d differed from remaining message size %d",
			pLen, len(rest),
		)
	}

	var raw []byte
	switch header {
	case uncompressedHeader:
		if maxDecodedSize > 0 && len(rest) > maxDecodedSize {
			return nil, fmt.Errorf(
				"batch payload size %d exceeds maximum %d", len(rest), maxDecodedSize,
			)
		}
		raw = rest
	case snappyHeader:
		uLen, err := snappy.DecodedLen(rest)
		if err != nil {
			return nil, fmt.Errorf("failed to read decoded length from compressed data: %w", err)
		}
		if maxDecodedSize > 0 && uLen > maxDecodedSize {
			return nil, fmt.Errorf(
				"decoded batch size %d exceeds maximum %d", uLen, maxDecodedSize,
			)
		}
		raw, err = snappy.Decode(nil, rest)
		if err != nil {
			return nil, fmt.Errorf("failed to decode snappy data: %w", err)
		}
	default:
		return nil, fmt.Errorf("unrecognized compression header %x", header)
	}

	return decodeRawBatch(raw)
}

func decodeRawBatch(raw []byte) ([]Transaction, error) {
	nTxs, n := binary.Uvarint(raw)
	if n <= 0 {
		return nil, errors.New("failed to read transaction count")
	}
	raw = raw[n:]

	if nTxs == 0 {
		return nil, errors.New("batch contains no transactions")
	}
	// Every transaction needs at least one length byte.
	if nTxs > uint64(len(raw)) {
		return nil, fmt.Errorf(
			"transaction count %d impossible with %d remaining bytes", nTxs, len(raw),
		)
	}

	txs := make([]Transaction, nTxs)
	for i := range txs {
		txLen, n := binary.Uvarint(raw)
		if n <= 0 {
			return nil, fmt.Errorf("failed to read length of transaction at index %d", i)
		}
		raw = raw[n:]
		if txLen > uint64(len(raw)) {
			return nil, fmt.Errorf(
				"transaction at index %d has length %d exceeding remaining %d bytes",
				i, txLen, len(raw),
			)
		}

		txs[i] = Transaction(append([]byte(nil), raw[:txLen]...))
		raw = raw[txLen:]
	}

	if len(raw) != 0 {
		return nil, fmt.Errorf("%d trailing bytes after final transaction", len(raw))
	}

	return txs, nil
}
