package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gordian-engine/gmempool/cmd/internal/gcmd"
	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/gcommittee"
	"github.com/gordian-engine/gmempool/internal/gtest"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := NewRootCmd(gtest.NewLogger(t))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidatorPublicKeyCmd(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "validator-pubkey", "pass")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "ed25519:"), out)

	again, err := execute(t, "validator-pubkey", "pass")
	require.NoError(t, err)
	require.Equal(t, out, again)

	secp, err := execute(t, "validator-pubkey", "--key-type", gcmd.KeyTypeSecp256k1, "pass")
	require.NoError(t, err)
	require.NotEqual(t, out, secp)

	_, err = execute(t, "validator-pubkey", "--key-type", "rsa", "pass")
	require.Error(t, err)
}

func TestLibp2pIDCmd(t *testing.T) {
	t.Parallel()

	a, err := execute(t, "libp2p-id", "pass")
	require.NoError(t, err)
	b, err := execute(t, "libp2p-id", "other")
	require.NoError(t, err)

	require.NotEmpty(t, strings.TrimSpace(a))
	require.NotEqual(t, a, b)
}

func TestSubmitTxCmd(t *testing.T) {
	t.Parallel()

	got := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tx" {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		got <- b
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	out, err := execute(t, "submit-tx", srv.URL, "hello")
	require.NoError(t, err)
	require.Equal(t, "accepted\n", out)
	require.Equal(t, []byte("hello"), gtest.ReceiveSoon(t, got))

	// The scheme is optional and the body may be hex.
	_, err = execute(t, "submit-tx", "--hex", strings.TrimPrefix(srv.URL, "http://"), "00ff")
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0xff}, gtest.ReceiveSoon(t, got))

	_, err = execute(t, "submit-tx", "--hex", srv.URL, "zz")
	require.Error(t, err)
}

func TestSubmitTxCmd_rejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := execute(t, "submit-tx", srv.URL, "hello")
	require.ErrorContains(t, err, "503")
	require.ErrorContains(t, err, "queue full")
}

func TestRunCmd_notInCommittee(t *testing.T) {
	t.Parallel()

	other, err := gcmd.SignerFromInsecurePassphrase(gcmd.KeyTypeEd25519, signerPrefix, "someone-else")
	require.NoError(t, err)

	cfg := runConfig{
		Committee: gcommittee.Config{
			Epoch: 1,
			Authorities: []gcommittee.AuthorityConfig{
				{PubKey: gcommittee.FormatPubKey(other.PubKey()), Stake: 1, Addr: "/ip4/127.0.0.1/tcp/1"},
			},
		},
	}
	b, err := json.Marshal(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, b, 0o600))

	_, err = execute(t, "run", "--http-addr", "", "pass", path)
	require.ErrorContains(t, err, "not in the committee")
}

func TestRunCmd_invalidInputs(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "run", "pass", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err = execute(t, "run", "pass", path)
	require.ErrorContains(t, err, "failed to parse config file")

	_, err = execute(t, "run", "--batch-size", "0", "pass", path)
	require.ErrorContains(t, err, "invalid parameters")
}

func TestOpenStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	data := gbatch.EncodeBatch([]gbatch.Transaction{gbatch.Transaction("tx")})
	d := gbatch.Blake2bHashScheme{}.Digest(data)

	for _, tc := range []struct {
		kind, path string
	}{
		{kind: storeMemory},
		{kind: storeSQLite},
		{kind: storeSQLite, path: filepath.Join(t.TempDir(), "batches.sqlite")},
		{kind: storeBadger},
		{kind: storeBadger, path: t.TempDir()},
	} {
		name := tc.kind
		if tc.path != "" {
			name += "_disk"
		}
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s, closeStore, err := openStore(ctx, gtest.NewLogger(t), tc.kind, tc.path)
			require.NoError(t, err)
			defer func() { require.NoError(t, closeStore()) }()

			require.NoError(t, s.SaveBatch(ctx, d, data))
			got, err := s.LoadBatch(ctx, d, nil)
			require.NoError(t, err)
			require.Equal(t, data, got)
		})
	}

	_, closeStore, err := openStore(ctx, gtest.NewLogger(t), "bolt", "")
	require.Error(t, err)
	require.NoError(t, closeStore())
}

func TestRunCmd_invalidDriverFlags(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "run", "--fetch-workers", "0", "pass", "unused.json")
	require.ErrorContains(t, err, "must be positive")
}
