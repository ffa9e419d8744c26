package gtlibp2p

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrame(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte("hello")))

	got, err := readFrame(bytes.NewReader(buf.Bytes()), 5)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	_, err = readFrame(bytes.NewReader(buf.Bytes()), 4)
	require.Error(t, err)

	_, err = readFrame(bytes.NewReader(buf.Bytes()[:3]), 5)
	require.Error(t, err)

	_, err = readFrame(bytes.NewReader([]byte{0}), 5)
	require.Error(t, err)
}
