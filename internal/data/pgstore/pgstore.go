// Package pgstore persists the mirror snapshot as a single jsonb row in
// Postgres. The contract is identical to the file store: whole-document
// atomic replace, single-writer semantics. The row lock plus a process-level
// mutex serialize every read-modify-write cycle.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdikta/verdikta-applications-sub002/internal/core"
	"github.com/verdikta/verdikta-applications-sub002/internal/domain/model"
	apperrors "github.com/verdikta/verdikta-applications-sub002/internal/errors"
)

const (
	createTableSQL = `
CREATE TABLE IF NOT EXISTS mirror_state (
    id         smallint PRIMARY KEY CHECK (id = 1),
    doc        jsonb NOT NULL,
    updated_at timestamptz NOT NULL DEFAULT now()
)`

	selectDocSQL    = `SELECT doc FROM mirror_state WHERE id = 1`
	selectForUpdate = `SELECT doc FROM mirror_state WHERE id = 1 FOR UPDATE`
	upsertDocSQL    = `
INSERT INTO mirror_state (id, doc, updated_at) VALUES (1, $1, now())
ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`
)

// Store is a Postgres-backed snapshot store.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu sync.Mutex
}

var _ core.Store = (*Store)(nil)

// Options groups dependencies for Store.
type Options struct {
	Pool   *pgxpool.Pool // Required: connection pool
	Logger *slog.Logger  // Optional: structured logger
}

// New prepares the mirror_state table and returns the store.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Pool == nil {
		return nil, apperrors.Validation("connection pool is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "pgstore")
	}

	if _, err := opts.Pool.Exec(ctx, createTableSQL); err != nil {
		return nil, classify(err, "create mirror_state table")
	}

	return &Store{pool: opts.Pool, logger: logger}, nil
}

// ReadSnapshot returns the current state, normalizing legacy statuses and
// re-persisting when normalization changed anything.
func (s *Store) ReadSnapshot(ctx context.Context) (*core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, err := s.read(ctx)
	if err != nil {
		return nil, err
	}

	if snapshot.Normalize() {
		if err := s.write(ctx, snapshot); err != nil {
			return nil, err
		}
		if s.logger != nil {
			s.logger.InfoContext(ctx, "normalized legacy statuses in snapshot")
		}
	}

	return snapshot, nil
}

// Write commits a full snapshot atomically.
func (s *Store) Write(ctx context.Context, snapshot *core.Snapshot) error {
	if snapshot == nil {
		return apperrors.Validation("snapshot is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, snapshot)
}

// Update runs a read-modify-write cycle inside one transaction holding the
// document row lock.
func (s *Store) Update(ctx context.Context, mutate func(*core.Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify(err, "begin update")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	snapshot, err := scanDoc(tx.QueryRow(ctx, selectForUpdate))
	if err != nil {
		return err
	}
	snapshot.Normalize()

	if err := mutate(snapshot); err != nil {
		return err
	}

	doc, err := json.Marshal(snapshot)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodePermanent, "marshal snapshot")
	}
	if _, err := tx.Exec(ctx, upsertDocSQL, doc); err != nil {
		return classify(err, "write snapshot")
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err, "commit update")
	}
	return nil
}

func (s *Store) read(ctx context.Context) (*core.Snapshot, error) {
	return scanDoc(s.pool.QueryRow(ctx, selectDocSQL))
}

func (s *Store) write(ctx context.Context, snapshot *core.Snapshot) error {
	doc, err := json.Marshal(snapshot)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodePermanent, "marshal snapshot")
	}
	if _, err := s.pool.Exec(ctx, upsertDocSQL, doc); err != nil {
		return classify(err, "write snapshot")
	}
	return nil
}

func scanDoc(row pgx.Row) (*core.Snapshot, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &core.Snapshot{Jobs: []*model.Job{}}, nil
		}
		return nil, classify(err, "read snapshot")
	}

	var snapshot core.Snapshot
	if err := json.Unmarshal(doc, &snapshot); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodePermanent, "parse snapshot document")
	}
	return &snapshot, nil
}

// classify maps pg errors onto the application taxonomy: connection-level
// failures are transient, everything else is a persistence (permanent) error.
func classify(err error, msg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgerrcode.IsConnectionException(pgErr.Code) || pgerrcode.IsOperatorIntervention(pgErr.Code) {
			return apperrors.Wrap(err, apperrors.ErrCodeTransient, msg)
		}
		return apperrors.Wrap(err, apperrors.ErrCodePermanent, msg)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.ErrCodeCanceled, msg)
	}
	return apperrors.Wrap(err, apperrors.ErrCodeTransient, msg)
}
