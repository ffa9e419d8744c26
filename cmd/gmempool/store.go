package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gordian-engine/gmempool/gstore"
	"github.com/gordian-engine/gmempool/gstore/gbadger"
	"github.com/gordian-engine/gmempool/gstore/gmemstore"
	"github.com/gordian-engine/gmempool/gstore/gsqlite"
)

// Values accepted by the --store flag.
const (
	storeMemory = "memory"
	storeSQLite = "sqlite"
	storeBadger = "badger"
)

// openStore returns the batch store selected by kind.
// An empty path opens the in-memory variant of a disk-backed store.
// The returned close function is never nil.
func openStore(ctx context.Context, log *slog.Logger, kind, path string) (gstore.BatchStore, func() error, error) {
	nopClose := func() error { return nil }

	switch kind {
	case storeMemory:
		if path != "" {
			log.Warn("Ignoring store path for in-memory store", "path", path)
		}
		return gmemstore.NewBatchStore(), nopClose, nil

	case storeSQLite:
		var s *gsqlite.Store
		var err error
		if path == "" {
			s, err = gsqlite.NewInMemStore(ctx)
		} else {
			s, err = gsqlite.NewOnDiskStore(ctx, path)
		}
		if err != nil {
			return nil, nopClose, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, s.Close, nil

	case storeBadger:
		var s *gbadger.Store
		var err error
		if path == "" {
			s, err = gbadger.NewInMemStore(log)
		} else {
			s, err = gbadger.NewOnDiskStore(log, path)
		}
		if err != nil {
			return nil, nopClose, fmt.Errorf("failed to open badger store: %w", err)
		}
		return s, s.Close, nil

	default:
		return nil, nopClose, fmt.Errorf(
			"unknown store %q (want %q, %q, or %q)",
			kind, storeMemory, storeSQLite, storeBadger,
		)
	}
}
