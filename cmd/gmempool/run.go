package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/gordian-engine/gmempool/cmd/internal/gcmd"
	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/gcommittee"
	"github.com/gordian-engine/gmempool/gcrypto"
	"github.com/gordian-engine/gmempool/gcrypto/gsecp256k1"
	"github.com/gordian-engine/gmempool/gdriver/gbatchpool"
	"github.com/gordian-engine/gmempool/gdriver/gdigestbuf"
	"github.com/gordian-engine/gmempool/gdriver/gsmr"
	"github.com/gordian-engine/gmempool/gmempool"
	"github.com/gordian-engine/gmempool/gserver"
	"github.com/gordian-engine/gmempool/gtransport/gtlibp2p"
	"github.com/gordian-engine/gmempool/gwatchdog"
	"github.com/libp2p/go-libp2p"
	libp2pevent "github.com/libp2p/go-libp2p/core/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// runConfig is the JSON file read by the run command.
type runConfig struct {
	Committee gcommittee.Config
}

type runFlags struct {
	listenAddrs []string
	httpAddr    string

	keyType string

	store     string
	storePath string

	maxBufferedDigests int
	fetchWorkers       int
	proposeInterval    time.Duration

	params gmempool.Parameters
}

func NewRunCmd(log *slog.Logger) *cobra.Command {
	f := runFlags{
		listenAddrs: []string{"/ip4/0.0.0.0/tcp/9999"},
		httpAddr:    "127.0.0.1:8080",

		keyType: gcmd.KeyTypeEd25519,

		store: storeMemory,

		maxBufferedDigests: 10_000,
		fetchWorkers:       4,
		proposeInterval:    time.Second,

		params: gmempool.DefaultParameters(),
	}

	cmd := &cobra.Command{
		Use: "run INSECURE_PASSPHRASE PATH_TO_CONFIG_FILE",

		Short: "Run a mempool authority",

		Args: cobra.ExactArgs(2),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthority(cmd, log, f, args[0], args[1])
		},
	}

	fs := cmd.Flags()
	fs.StringArrayVarP(&f.listenAddrs, "listen-multiaddr", "l", f.listenAddrs, "multiaddr to listen on for other authorities")
	fs.StringVar(&f.httpAddr, "http-addr", f.httpAddr, "TCP address for the HTTP API; empty to disable")
	fs.StringVar(&f.keyType, "key-type", f.keyType, "validator key type (ed25519 or secp256k1)")
	fs.StringVar(&f.store, "store", f.store, "batch store (memory, sqlite, or badger)")
	fs.StringVar(&f.storePath, "store-path", f.storePath, "path of the sqlite database file or badger directory; empty to keep it in memory")
	fs.IntVar(&f.maxBufferedDigests, "max-buffered-digests", f.maxBufferedDigests, "committed digests held for proposal before the pipeline is backpressured")
	fs.IntVar(&f.fetchWorkers, "fetch-workers", f.fetchWorkers, "number of concurrent batch retrievals for proposed digests")
	fs.DurationVar(&f.proposeInterval, "propose-interval", f.proposeInterval, "how often the local driver proposes the next committed digest")
	f.params.BindFlags(fs)

	return cmd
}

func runAuthority(cmd *cobra.Command, log *slog.Logger, f runFlags, passphrase, configPath string) error {
	// Cancelable so that a failure partway through setup
	// stops every component started so far.
	// Deferred cancel calls run before the deferred Wait calls that depend on them.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := f.params.Validate(); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	if f.maxBufferedDigests <= 0 || f.fetchWorkers <= 0 || f.proposeInterval <= 0 {
		return errors.New("--max-buffered-digests, --fetch-workers, and --propose-interval must be positive")
	}

	jConfig, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	var cfg runConfig
	if err := json.Unmarshal(jConfig, &cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	reg := new(gcrypto.Registry)
	gcrypto.RegisterEd25519(reg)
	gsecp256k1.Register(reg)

	committee, err := cfg.Committee.Build(reg)
	if err != nil {
		return fmt.Errorf("failed to build committee: %w", err)
	}

	signer, err := gcmd.SignerFromInsecurePassphrase(f.keyType, signerPrefix, passphrase)
	if err != nil {
		return err
	}
	if _, ok := committee.Index(signer.PubKey()); !ok {
		return fmt.Errorf(
			"validator key %s is not in the committee; check the passphrase and --key-type",
			gcommittee.FormatPubKey(signer.PubKey()),
		)
	}

	netPrivKey, err := gcmd.Libp2pKeyFromInsecurePassphrase(networkPrefix, passphrase)
	if err != nil {
		return fmt.Errorf("failed to generate libp2p network key: %w", err)
	}

	wd, wCtx := gwatchdog.NewWatchdog(ctx, log.With("sys", "watchdog"))
	defer wd.Wait()
	defer cancel()
	ctx = wCtx

	store, closeStore, err := openStore(ctx, log.With("sys", "store"), f.store, f.storePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("Error closing batch store", "err", err)
		}
	}()

	h, err := gtlibp2p.NewHost(gtlibp2p.HostOptions{
		Options: []libp2p.Option{
			libp2p.Identity(netPrivKey),
			libp2p.ListenAddrStrings(f.listenAddrs...),

			// Authorities dial each other directly by committee address.
			libp2p.ForceReachabilityPublic(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create libp2p host: %w", err)
	}
	defer func() {
		if err := h.Close(); err != nil {
			log.Warn("Error closing libp2p host", "err", err)
		}
	}()

	host := h.Libp2pHost()

	sub, err := host.EventBus().Subscribe(new(libp2pevent.EvtPeerConnectednessChanged))
	if err != nil {
		return err
	}
	defer sub.Close()

	loggingDone := make(chan struct{})
	go logPeerChanges(ctx, log, host, sub, loggingDone)
	defer func() {
		cancel()
		<-loggingDone
	}()

	log.Info("Listening for authority connections", "id", host.ID(), "addrs", h.Addrs())

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := gmempool.NewMetrics(promReg)

	sender := gtlibp2p.NewSender(log.With("sys", "sender"), host, gtlibp2p.SenderOptions{})
	defer sender.Wait()
	defer cancel()

	hs := gbatch.Blake2bHashScheme{}

	// The mempool writes committed digests here,
	// and the digest buffer holds them until the driver proposes them.
	committed := make(chan gbatch.Digest, gmempool.ChannelCapacity)

	mp, err := gmempool.New(ctx, log.With("sys", "mempool"), gmempool.Config{
		Self:       signer.PubKey(),
		Committee:  committee,
		Parameters: f.params,
		Store:      store,
		Sender:     sender,
		HashScheme: hs,
		Consensus:  committed,
		Watchdog:   wd,
		Metrics:    metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to start mempool: %w", err)
	}
	defer mp.Wait()
	defer cancel()

	ln := gtlibp2p.NewListener(ctx, log.With("sys", "listener"), host, mp.Handler(), gtlibp2p.ListenerOptions{
		// Room for framing around the largest accepted peer batch.
		MaxMessageSize: f.params.PeerBatchLimit() + 1024,
	})
	defer ln.Wait()
	defer cancel()

	digests := gdigestbuf.New(ctx, log.With("sys", "digestbuf"), committed, f.maxBufferedDigests)
	defer digests.Wait()
	defer cancel()

	batches := gbatchpool.New(ctx, log.With("sys", "batchpool"), f.fetchWorkers, gbatchpool.StoreRetriever{
		Store:        store,
		HashScheme:   hs,
		MaxBatchSize: f.params.PeerBatchLimit(),
		PollInterval: 50 * time.Millisecond,
	})
	defer batches.Wait()
	defer cancel()

	smr, err := gsmr.NewContext(log.With("sys", "smr"), gsmr.Config{
		Signer:     signer,
		Committee:  committee,
		Store:      store,
		HashScheme: hs,
		Digests:    digests,
		Batches:    batches,
	})
	if err != nil {
		return fmt.Errorf("failed to build replication context: %w", err)
	}

	if f.httpAddr != "" {
		httpLn, err := net.Listen("tcp", f.httpAddr)
		if err != nil {
			return fmt.Errorf("failed to listen for HTTP: %w", err)
		}

		srv := gserver.NewHTTPServer(ctx, log.With("sys", "http"), gserver.HTTPServerConfig{
			Listener: httpLn,

			Mempool:   mp,
			Store:     store,
			Committee: committee,

			MaxBatchSize: f.params.PeerBatchLimit(),
			MaxTxSize:    int64(f.params.MaxTxSize),

			Gatherer: promReg,
			P2PAddrs: h.Addrs,
		})
		defer srv.Wait()
		defer cancel()

		log.Info("Serving HTTP API", "addr", httpLn.Addr())
	}

	driverDone := make(chan struct{})
	go runLocalDriver(ctx, log.With("sys", "driver"), smr, f.proposeInterval, driverDone)
	defer func() {
		cancel()
		<-driverDone
	}()

	log.Info("Press ^c to stop")

	<-ctx.Done()

	cause := context.Cause(ctx)
	if gwatchdog.IsTermination(ctx) {
		log.Error("Watchdog terminated the authority", "cause", cause)
		return cause
	}

	log.Info("Shutting down...", "cause", cause)
	return nil
}

// runLocalDriver stands in for a replication engine on a single authority.
// On each tick it enters a new height, proposes the next committed digest,
// and waits until the batch behind that digest is available.
func runLocalDriver(
	ctx context.Context, log *slog.Logger,
	smr *gsmr.Context, interval time.Duration,
	done chan<- struct{},
) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var height uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		height++
		smr.EnterRound(ctx, height, 0)

		d := smr.Fetch(ctx)
		if d.IsZero() {
			log.Debug("No committed batch to propose", "height", height)
			continue
		}

		smr.NeedPayload(height, 0, d)

		txs, err := awaitPayload(ctx, smr, d)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("Failed to retrieve proposed batch", "height", height, "digest", d, "err", err)
			}
			continue
		}

		log.Info(
			"Proposed batch",
			"height", height,
			"digest", d,
			"n_txs", len(txs),
		)
	}
}

func awaitPayload(ctx context.Context, smr *gsmr.Context, d gbatch.Digest) ([]gbatch.Transaction, error) {
	for {
		txs, err, have := smr.Payload(d)
		if have {
			return txs, err
		}

		select {
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		case <-smr.PayloadReady(d):
		}
	}
}
