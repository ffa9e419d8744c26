// Package gserver is the HTTP surface of a running mempool:
// transaction submission, batch lookup, committee inspection, and metrics.
package gserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/gcommittee"
	"github.com/gordian-engine/gmempool/gstore"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TxSubmitter accepts client transactions.
// [*gmempool.Mempool] satisfies this interface.
type TxSubmitter interface {
	SubmitTransaction(ctx context.Context, tx gbatch.Transaction) error
}

type HTTPServer struct {
	done chan struct{}
}

type HTTPServerConfig struct {
	Listener net.Listener

	Mempool   TxSubmitter
	Store     gstore.BatchStore
	Committee *gcommittee.Committee

	// Used to decode stored batches in responses.
	MaxBatchSize int

	// Largest accepted transaction body.
	MaxTxSize int64

	// Optional; if set, served at /metrics.
	Gatherer prometheus.Gatherer

	// Optional; if set, served at /p2p/addrs.
	P2PAddrs func() []string
}

// NewHTTPServer serves cfg.Listener until ctx is canceled.
func NewHTTPServer(ctx context.Context, log *slog.Logger, cfg HTTPServerConfig) *HTTPServer {
	srv := &http.Server{
		Handler: newMux(log, cfg),

		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	h := &HTTPServer{
		done: make(chan struct{}),
	}
	go h.serve(log, cfg.Listener, srv)
	go h.waitForShutdown(ctx, srv)

	return h
}

func (h *HTTPServer) Wait() {
	<-h.done
}

func (h *HTTPServer) waitForShutdown(ctx context.Context, srv *http.Server) {
	select {
	case <-h.done:
		// h.serve returned on its own, nothing left to do here.
		return
	case <-ctx.Done():
		_ = srv.Close()
	}
}

func (h *HTTPServer) serve(log *slog.Logger, ln net.Listener, srv *http.Server) {
	defer close(h.done)

	if err := srv.Serve(ln); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
			log.Info("HTTP server shutting down")
		} else {
			log.Info("HTTP server shutting down due to error", "err", err)
		}
	}
}

func newMux(log *slog.Logger, cfg HTTPServerConfig) http.Handler {
	r := mux.NewRouter()

	setMempoolRoutes(log, cfg, r)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{
			ErrorLog: slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		})).Methods("GET")
	}

	return r
}
