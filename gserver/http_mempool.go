package gserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/gcommittee"
	"github.com/gordian-engine/gmempool/gstore"
	"github.com/gorilla/mux"
)

type mempoolHandler struct {
	log *slog.Logger

	m         TxSubmitter
	store     gstore.BatchStore
	committee *gcommittee.Committee

	maxBatchSize int
	maxTxSize    int64

	p2pAddrs func() []string
}

func setMempoolRoutes(log *slog.Logger, cfg HTTPServerConfig, r *mux.Router) {
	h := mempoolHandler{
		log: log,

		m:         cfg.Mempool,
		store:     cfg.Store,
		committee: cfg.Committee,

		maxBatchSize: cfg.MaxBatchSize,
		maxTxSize:    cfg.MaxTxSize,

		p2pAddrs: cfg.P2PAddrs,
	}

	r.HandleFunc("/tx", h.HandleSubmitTx).Methods("POST")
	r.HandleFunc("/batches/{digest}", h.HandleBatch).Methods("GET")
	r.HandleFunc("/batches/{digest}/raw", h.HandleRawBatch).Methods("GET")
	r.HandleFunc("/committee", h.HandleCommittee).Methods("GET")

	if h.p2pAddrs != nil {
		r.HandleFunc("/p2p/addrs", h.HandleP2PAddrs).Methods("GET")
	}
}

// HandleSubmitTx queues the raw request body as a transaction.
// The response is not sent until the transaction is queued,
// so a full pipeline delays the client.
func (h mempoolHandler) HandleSubmitTx(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()

	body := io.Reader(req.Body)
	if h.maxTxSize > 0 {
		body = http.MaxBytesReader(w, req.Body, h.maxTxSize)
	}

	b, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "transaction too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.log.Warn("Failed to read request body", "route", "tx", "err", err)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if len(b) == 0 {
		http.Error(w, "empty transaction", http.StatusBadRequest)
		return
	}

	if err := h.m.SubmitTransaction(req.Context(), gbatch.Transaction(b)); err != nil {
		h.log.Info("Failed to submit transaction", "route", "tx", "err", err)
		http.Error(w, "failed to submit transaction", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// loadBatch writes an error response and returns nil
// if the digest in the route is invalid or its batch is not stored.
func (h mempoolHandler) loadBatch(w http.ResponseWriter, req *http.Request) (gbatch.Digest, []byte) {
	d, err := gbatch.ParseDigest(mux.Vars(req)["digest"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return d, nil
	}

	data, err := h.store.LoadBatch(req.Context(), d, nil)
	if err != nil {
		if errors.Is(err, gstore.ErrBatchNotFound) {
			http.Error(w, "batch not found", http.StatusNotFound)
			return d, nil
		}

		h.log.Warn("Failed to load batch", "digest", d, "err", err)
		http.Error(w, "failed to load batch", http.StatusInternalServerError)
		return d, nil
	}

	return d, data
}

// BatchResponse is the JSON body for a batch lookup.
type BatchResponse struct {
	Digest       string
	Transactions [][]byte
}

func (h mempoolHandler) HandleBatch(w http.ResponseWriter, req *http.Request) {
	d, data := h.loadBatch(w, req)
	if data == nil {
		return
	}

	txs, err := gbatch.DecodeBatch(data, h.maxBatchSize)
	if err != nil {
		h.log.Warn("Failed to decode stored batch", "digest", d, "err", err)
		http.Error(w, "failed to decode stored batch", http.StatusInternalServerError)
		return
	}

	resp := BatchResponse{
		Digest:       d.String(),
		Transactions: make([][]byte, len(txs)),
	}
	for i, tx := range txs {
		resp.Transactions[i] = tx
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Warn("Failed to encode batch response", "err", err)
	}
}

func (h mempoolHandler) HandleRawBatch(w http.ResponseWriter, req *http.Request) {
	_, data := h.loadBatch(w, req)
	if data == nil {
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := w.Write(data); err != nil {
		h.log.Warn("Failed to write raw batch", "err", err)
	}
}

// CommitteeResponse is the JSON body for the committee route.
type CommitteeResponse struct {
	gcommittee.Config

	TotalStake      uint64
	QuorumThreshold uint64
}

func (h mempoolHandler) HandleCommittee(w http.ResponseWriter, _ *http.Request) {
	resp := CommitteeResponse{
		Config:          h.committee.Config(),
		TotalStake:      h.committee.TotalStake(),
		QuorumThreshold: h.committee.QuorumThreshold(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Warn("Failed to encode committee response", "err", err)
	}
}

func (h mempoolHandler) HandleP2PAddrs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.p2pAddrs()); err != nil {
		h.log.Warn("Failed to encode p2p addresses", "err", err)
	}
}
