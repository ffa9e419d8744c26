package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/gordian-engine/gmempool/cmd/internal/gcmd"
	"github.com/gordian-engine/gmempool/gcommittee"
	libp2pevent "github.com/libp2p/go-libp2p/core/event"
	libp2phost "github.com/libp2p/go-libp2p/core/host"
	libp2ppeer "github.com/libp2p/go-libp2p/core/peer"
	"github.com/spf13/cobra"
)

const (
	signerPrefix  = "gmempool|"
	networkPrefix = "gmempool:network|"
)

func main() {
	if err := mainE(); err != nil {
		os.Exit(1)
	}
}

func mainE() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	root := NewRootCmd(logger)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Info("Failure", "err", err)
		os.Stderr.Sync()
		return err
	}

	return nil
}

func NewRootCmd(log *slog.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use: "gmempool SUBCOMMAND",

		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},

		Long: `gmempool runs a single authority of a batching mempool.

Initial setup involves:

1. Pick your insecure passphrase. Keys are derived from it directly,
   so only use this for local or test networks.
2. Discover your resulting validator public key with:
     $ gmempool validator-pubkey 'my-passphrase'
     ed25519:b1a138599af82401286ddfbe06ac4c8d20c34d20ad27a6df2bc7f498c48c60d0
3. Discover your libp2p ID with:
     $ gmempool libp2p-id 'my-passphrase'
4. Once every authority's key and ID are known, create a config file like:
     {"Committee": {"Epoch": 1, "Authorities": [
       {"PubKey": "ed25519:b1a1...", "Stake": 1, "Addr": "/ip4/127.0.0.1/tcp/9999/p2p/$LIBP2P_ID"}
     ]}}
5. Run the authority:
     $ gmempool run 'my-passphrase' path/to/config.json
6. Submit transactions over HTTP:
     $ gmempool submit-tx http://127.0.0.1:8080 'hello'
`,
	}

	rootCmd.AddCommand(
		NewValidatorPublicKeyCmd(log),
		NewLibp2pIDCmd(log),

		NewRunCmd(log),

		NewSubmitTxCmd(log),
	)

	return rootCmd
}

func NewValidatorPublicKeyCmd(log *slog.Logger) *cobra.Command {
	keyType := gcmd.KeyTypeEd25519

	cmd := &cobra.Command{
		Use: "validator-pubkey INSECURE_PASSPHRASE",

		Aliases: []string{"validator-pub-key"},

		Short: "Print the validator public key derived from the given insecure passphrase",

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := gcmd.SignerFromInsecurePassphrase(keyType, signerPrefix, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), gcommittee.FormatPubKey(signer.PubKey()))

			return nil
		},
	}

	cmd.Flags().StringVar(&keyType, "key-type", keyType, "validator key type (ed25519 or secp256k1)")

	return cmd
}

func NewLibp2pIDCmd(log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use: "libp2p-id INSECURE_PASSPHRASE",

		Short: "Print the libp2p ID derived from the given insecure passphrase",

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			privKey, err := gcmd.Libp2pKeyFromInsecurePassphrase(networkPrefix, args[0])
			if err != nil {
				return fmt.Errorf("failed to generate libp2p network key: %w", err)
			}

			id, err := libp2ppeer.IDFromPrivateKey(privKey)
			if err != nil {
				return fmt.Errorf("failed to generate ID from libp2p private key: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), id)

			return nil
		},
	}
}

func NewSubmitTxCmd(log *slog.Logger) *cobra.Command {
	var isHex bool

	cmd := &cobra.Command{
		Use: "submit-tx HTTP_ADDR TX",

		Short: "Submit a single transaction to a running authority",

		Args: cobra.ExactArgs(2),

		RunE: func(cmd *cobra.Command, args []string) error {
			tx := []byte(args[1])
			if isHex {
				var err error
				tx, err = hex.DecodeString(args[1])
				if err != nil {
					return fmt.Errorf("failed to decode transaction hex: %w", err)
				}
			}

			base := args[0]
			if !strings.Contains(base, "://") {
				base = "http://" + base
			}

			req, err := http.NewRequestWithContext(
				cmd.Context(), http.MethodPost, strings.TrimSuffix(base, "/")+"/tx", bytes.NewReader(tx),
			)
			if err != nil {
				return err
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("failed to submit transaction: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusAccepted {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
				return fmt.Errorf("transaction rejected with status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
			}

			fmt.Fprintln(cmd.OutOrStdout(), "accepted")
			return nil
		},
	}

	cmd.Flags().BoolVar(&isHex, "hex", false, "decode TX as hex instead of using its raw bytes")

	return cmd
}

func logPeerChanges(
	ctx context.Context,
	log *slog.Logger,
	_ libp2phost.Host,
	sub libp2pevent.Subscription,
	done chan<- struct{},
) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return

		case e := <-sub.Out():
			switch e := e.(type) {
			case libp2pevent.EvtPeerConnectednessChanged:
				log.Info(
					"Peer connectedness changed",
					"id", e.Peer,
					"connectedness", e.Connectedness,
				)
			default:
				log.Warn("Unknown event type", "type", fmt.Sprintf("%T", e))
			}
		}
	}
}
