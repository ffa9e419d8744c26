package gsecp256k1_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/gordian-engine/gmempool/gcrypto"
	"github.com/gordian-engine/gmempool/gcrypto/gsecp256k1"
	"github.com/stretchr/testify/require"
)

func TestSecp256k1(t *testing.T) {
	t.Parallel()

	var reg gcrypto.Registry
	gcrypto.RegisterEd25519(&reg)
	gsecp256k1.Register(&reg)

	s1 := gsecp256k1.NewSigner(bytes.Repeat([]byte{1}, 32))
	s2 := gsecp256k1.NewSigner(bytes.Repeat([]byte{2}, 32))

	b := reg.Marshal(s1.PubKey())
	dec, err := reg.Unmarshal(b)
	require.NoError(t, err)
	require.True(t, s1.PubKey().Equal(dec))
	require.False(t, s2.PubKey().Equal(dec))

	msg := []byte("batch digest")
	sig, err := s1.Sign(context.Background(), msg)
	require.NoError(t, err)

	require.True(t, s1.PubKey().Verify(msg, sig))
	require.False(t, s2.PubKey().Verify(msg, sig))
	require.False(t, s1.PubKey().Verify([]byte("other"), sig))
	require.False(t, s1.PubKey().Verify(msg, []byte("not DER")))
}

func TestNewPubKey_invalid(t *testing.T) {
	t.Parallel()

	_, err := gsecp256k1.NewPubKey([]byte{0x02, 0x03})
	require.Error(t, err)
}
