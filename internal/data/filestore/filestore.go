// Package filestore persists the mirror snapshot as a single JSON document on
// disk. Commits are whole-document: the new state is written to a temp file
// and renamed over the old one, so readers never observe a partial write.
package filestore

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/verdikta/verdikta-applications-sub002/internal/core"
	"github.com/verdikta/verdikta-applications-sub002/internal/domain/model"
	apperrors "github.com/verdikta/verdikta-applications-sub002/internal/errors"
)

// Store is a file-backed snapshot store with single-writer semantics. The
// current snapshot is held in memory; every commit rewrites the document.
type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	current *core.Snapshot
}

var _ core.Store = (*Store)(nil)

// Options groups dependencies for Store.
type Options struct {
	Path   string       // Required: snapshot document location
	Logger *slog.Logger // Optional: structured logger
}

// New opens (or initializes) the snapshot document at the configured path.
func New(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, apperrors.Validation("store path is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "filestore")
	}

	s := &Store{
		path:   opts.Path,
		logger: logger,
	}

	snapshot, err := s.load()
	if err != nil {
		return nil, err
	}
	s.current = snapshot

	return s, nil
}

// ReadSnapshot returns a deep copy of the current state. Legacy status
// spellings are normalized in place; if normalization changed anything the
// document is re-persisted (idempotent).
func (s *Store) ReadSnapshot(ctx context.Context) (*core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Normalize() {
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
		if s.logger != nil {
			s.logger.InfoContext(ctx, "normalized legacy statuses in snapshot")
		}
	}

	return s.current.Clone(), nil
}

// Write commits a full snapshot atomically.
func (s *Store) Write(_ context.Context, snapshot *core.Snapshot) error {
	if snapshot == nil {
		return apperrors.Validation("snapshot is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := snapshot.Clone()
	prev := s.current
	s.current = next
	if err := s.persistLocked(); err != nil {
		s.current = prev
		return err
	}
	return nil
}

// Update runs a read-modify-write cycle under the write lock.
func (s *Store) Update(_ context.Context, mutate func(*core.Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.current.Clone()
	if err := mutate(working); err != nil {
		return err
	}

	prev := s.current
	s.current = working
	if err := s.persistLocked(); err != nil {
		s.current = prev
		return err
	}
	return nil
}

func (s *Store) load() (*core.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &core.Snapshot{Jobs: []*model.Job{}}, nil
		}
		return nil, apperrors.Wrapf(err, apperrors.ErrCodePermanent, "read snapshot %s", s.path)
	}

	var snapshot core.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodePermanent, "parse snapshot %s", s.path)
	}
	return &snapshot, nil
}

// persistLocked writes the document via temp file + rename. Callers hold mu.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodePermanent, "marshal snapshot")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodePermanent, "create store directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodePermanent, "create temp snapshot")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.Wrap(err, apperrors.ErrCodePermanent, "write temp snapshot")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.Wrap(err, apperrors.ErrCodePermanent, "sync temp snapshot")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.Wrap(err, apperrors.ErrCodePermanent, "close temp snapshot")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return apperrors.Wrap(err, apperrors.ErrCodePermanent, "replace snapshot")
	}
	return nil
}
