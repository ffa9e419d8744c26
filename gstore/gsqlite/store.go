// Package gsqlite contains a SQLite-backed [gstore.BatchStore].
//
// By default the cgo driver (github.com/mattn/go-sqlite3) is used.
// Build with the purego tag, or with cgo disabled,
// to use the pure Go driver (modernc.org/sqlite) instead.
package gsqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/trace"
	"strings"
	"sync/atomic"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/gstore"
)

// Store is a [gstore.BatchStore] backed by SQLite.
type Store struct {
	// The string "purego" or "cgo" depending on build tags.
	BuildType string

	// Due to transaction locking behaviors of sqlite
	// (see: https://www.sqlite.org/lang_transaction.html),
	// and the way they interact with the Go SQL drivers,
	// it is better to maintain two separate connection pools.
	ro, rw *sql.DB
}

// NewOnDiskStore opens or creates the database at dbPath.
func NewOnDiskStore(ctx context.Context, dbPath string) (*Store, error) {
	dbPath = filepath.Clean(dbPath)
	if _, err := os.Stat(dbPath); err != nil {
		// Create a file for the database;
		// if no file exists, then our startup pragma commands fail.
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat path %q: %w", dbPath, err)
		}

		// We don't use os.Create since that will truncate an existing file.
		f, err := os.OpenFile(dbPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to create empty database file: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("failed to close new empty database file: %w", err)
		}
	}

	// In combination with the SetMaxOpenConns(1) call,
	// this allows only a single writer at a time;
	// instead of other writers getting an ephemeral "database is locked" error,
	// they will simply block while contending for the single available connection.
	uri := "file:" + dbPath + "?mode=rw"

	// The driver type comes from the sqlitedriver_*.go file
	// chosen based on build tags.
	rw, err := sql.Open(sqliteDriverType, uri)
	if err != nil {
		return nil, fmt.Errorf("error opening read-write database: %w", err)
	}

	rw.SetMaxOpenConns(1)

	// Unlike other pragmas, this is persistent,
	// and it is only relevant to on-disk databases.
	if _, err := rw.ExecContext(ctx, `PRAGMA journal_mode = WAL`); err != nil {
		_ = rw.Close()
		return nil, fmt.Errorf("failed to set journal_mode=WAL: %w", err)
	}

	// Batches must be durable before their digest reaches consensus.
	if _, err := rw.ExecContext(ctx, `PRAGMA synchronous = FULL`); err != nil {
		_ = rw.Close()
		return nil, fmt.Errorf("failed to set synchronous=FULL: %w", err)
	}

	if err := migrate(ctx, rw); err != nil {
		_ = rw.Close()
		return nil, err
	}

	// Change mode=rw to mode=ro (since we know that was the final query parameter).
	uri = uri[:len(uri)-1] + "o"
	ro, err := sql.Open(sqliteDriverType, uri)
	if err != nil {
		_ = rw.Close()
		return nil, fmt.Errorf("error opening read-only database: %w", err)
	}

	return &Store{
		BuildType: sqliteBuildType,

		rw: rw,
		ro: ro,
	}, nil
}

var inMemNameCounter uint32

// NewInMemStore returns a Store backed by a private in-memory database.
func NewInMemStore(ctx context.Context) (*Store, error) {
	dbName := fmt.Sprintf("gmempooldb%d", atomic.AddUint32(&inMemNameCounter, 1))
	uri := "file:" + dbName +
		// Give the "file" a unique name so that multiple connections within one process
		// can use the same in-memory database.
		"?mode=memory" +
		// A private cache means every connection would see a unique database,
		// so this must be shared.
		"&cache=shared" +
		// Immediate effectively takes a write lock on the database
		// at the beginning of every transaction.
		"&_txlock=immediate"

	rw, err := sql.Open(sqliteDriverType, uri)
	if err != nil {
		return nil, fmt.Errorf("error opening read-write database: %w", err)
	}

	// Without limiting it to one open connection,
	// we would get frequent "table is locked" errors.
	rw.SetMaxOpenConns(1)

	if err := migrate(ctx, rw); err != nil {
		_ = rw.Close()
		return nil, err
	}

	// We use an identical connection URI except for removing the txlock directive.
	var ok bool
	uri, ok = strings.CutSuffix(uri, "&_txlock=immediate")
	if !ok {
		panic(fmt.Errorf("BUG: failed to cut _txlock suffix from uri %q", uri))
	}
	ro, err := sql.Open(sqliteDriverType, uri)
	if err != nil {
		_ = rw.Close()
		return nil, fmt.Errorf("error opening read-only database: %w", err)
	}

	return &Store{
		BuildType: sqliteBuildType,

		rw: rw,
		ro: ro,
	}, nil
}

func (s *Store) Close() error {
	errRO := s.ro.Close()
	if errRO != nil {
		errRO = fmt.Errorf("error closing read-only database: %w", errRO)
	}
	errRW := s.rw.Close()
	if errRW != nil {
		errRW = fmt.Errorf("error closing read-write database: %w", errRW)
	}

	return errors.Join(errRO, errRW)
}

func (s *Store) SaveBatch(ctx context.Context, digest gbatch.Digest, data []byte) error {
	defer trace.StartRegion(ctx, "SaveBatch").End()

	tx, err := s.rw.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var have []byte
	err = tx.QueryRowContext(
		ctx,
		`SELECT data FROM batches WHERE digest = ?`,
		digest[:],
	).Scan(&have)
	switch {
	case err == nil:
		if bytes.Equal(have, data) {
			return nil
		}
		return gstore.ConflictingBatchError{Digest: digest}
	case errors.Is(err, sql.ErrNoRows):
		// Continue to insert.
	default:
		return fmt.Errorf("failed to check for existing batch: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO batches(digest, data) VALUES (?, ?)`,
		digest[:], data,
	); err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	return nil
}

func (s *Store) LoadBatch(ctx context.Context, digest gbatch.Digest, dst []byte) ([]byte, error) {
	defer trace.StartRegion(ctx, "LoadBatch").End()

	// Scanning into a RawBytes would avoid one copy,
	// but that requires managing the Rows lifecycle manually.
	var data []byte
	err := s.ro.QueryRowContext(
		ctx,
		`SELECT data FROM batches WHERE digest = ?`,
		digest[:],
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gstore.ErrBatchNotFound
		}
		return nil, fmt.Errorf("failed to load batch: %w", err)
	}

	return append(dst, data...), nil
}

func (s *Store) HasBatch(ctx context.Context, digest gbatch.Digest) (bool, error) {
	defer trace.StartRegion(ctx, "HasBatch").End()

	var n int
	if err := s.ro.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM batches WHERE digest = ?`,
		digest[:],
	).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check for batch: %w", err)
	}

	return n > 0, nil
}
