package gtlibp2p

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Response status bytes written by the receiver.
const (
	statusAck  byte = 1
	statusNack byte = 2
)

func writeFrame(w io.Writer, msg []byte) error {
	szBuf := binary.AppendUvarint(nil, uint64(len(msg)))
	if _, err := w.Write(szBuf); err != nil {
		return fmt.Errorf("failed to write frame size: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write frame data: %w", err)
	}
	return nil
}

// readFrame reads a single length-prefixed message from r.
// It returns an error without allocating
// if the declared size exceeds maxSize.
func readFrame(r io.Reader, maxSize int) ([]byte, error) {
	// To read the varint, we need an io.ByteReader.
	// We only buffer the maximum size of a 64 bit varint,
	// and then continue reading from the buffered reader
	// so that no bytes already buffered are lost.
	br := bufio.NewReaderSize(r, binary.MaxVarintLen64)
	sz, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame size: %w", err)
	}
	if sz == 0 {
		return nil, errors.New("empty frame")
	}
	if sz > uint64(maxSize) {
		return nil, fmt.Errorf("frame size %d exceeds maximum %d", sz, maxSize)
	}

	buf := make([]byte, sz)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, fmt.Errorf("failed to read full frame: %w", err)
	}
	return buf, nil
}
