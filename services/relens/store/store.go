// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists envelopes, snapshots, and branches in BadgerDB.
//
// Envelopes and snapshots are write-once: a second put under the same key
// is rejected rather than overwritten, matching their append-only and
// immutable contracts. Branches are mutable records.
//
// Keys: `env:<project>:<id>`, `snap:<project>:<id>`, `branch:<project>:<id>`.
// Values are JSON.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/relens-ai/relens/services/relens/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when writing over a write-once record.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrInvalidInput is returned when a record fails validation.
	ErrInvalidInput = errors.New("invalid store input")
)

// Config holds configuration for the record store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory.
	Path string

	// InMemory enables in-memory mode. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger for BadgerDB internals. Nil disables BadgerDB logging.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC.
	GCInterval time.Duration
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
		GCInterval: 5 * time.Minute,
	}
}

// InMemoryConfig returns configuration for tests: no disk, no GC.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is the BadgerDB-backed record store.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions provide isolation.
type Store struct {
	db     *badger.DB
	gcStop chan struct{}
}

// Open opens the store at the configured path, or in memory.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("%w: path is required for persistent store", ErrInvalidInput)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{db: db}
	if cfg.GCInterval > 0 {
		s.gcStop = make(chan struct{})
		go s.gcLoop(cfg.GCInterval)
	}
	return s, nil
}

// Close stops GC and closes the database.
func (s *Store) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		s.gcStop = nil
	}
	return s.db.Close()
}

func (s *Store) gcLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			// ErrNoRewrite just means nothing worth collecting.
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				slog.Warn("Badger value log GC failed", "error", err)
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Keys
// -----------------------------------------------------------------------------

func envelopeKey(project, id string) []byte {
	return []byte("env:" + project + ":" + id)
}

func snapshotKey(project, id string) []byte {
	return []byte("snap:" + project + ":" + id)
}

func branchKey(project, id string) []byte {
	return []byte("branch:" + project + ":" + id)
}

// -----------------------------------------------------------------------------
// Envelopes (append-only)
// -----------------------------------------------------------------------------

// PutEnvelope stores an envelope. Envelopes are append-only: re-putting an
// existing id fails with ErrAlreadyExists.
func (s *Store) PutEnvelope(ctx context.Context, env *model.Envelope) error {
	if env == nil || env.ID == "" || env.Project == "" {
		return fmt.Errorf("%w: envelope needs id and project", ErrInvalidInput)
	}
	return s.putOnce(ctx, envelopeKey(env.Project, env.ID), env)
}

// GetEnvelope fetches an envelope by id.
func (s *Store) GetEnvelope(ctx context.Context, project, id string) (*model.Envelope, error) {
	var env model.Envelope
	if err := s.get(ctx, envelopeKey(project, id), &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// GetEnvelopes fetches a batch of envelopes; any missing id fails the call.
func (s *Store) GetEnvelopes(ctx context.Context, project string, ids []string) ([]model.Envelope, error) {
	out := make([]model.Envelope, 0, len(ids))
	for _, id := range ids {
		env, err := s.GetEnvelope(ctx, project, id)
		if err != nil {
			return nil, fmt.Errorf("envelope %s: %w", id, err)
		}
		out = append(out, *env)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Snapshots (immutable)
// -----------------------------------------------------------------------------

// PutSnapshot stores a snapshot. Snapshots are immutable: re-putting an
// existing id fails with ErrAlreadyExists.
func (s *Store) PutSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil || snap.ID == "" || snap.Project == "" {
		return fmt.Errorf("%w: snapshot needs id and project", ErrInvalidInput)
	}
	return s.putOnce(ctx, snapshotKey(snap.Project, snap.ID), snap)
}

// GetSnapshot fetches a snapshot by id.
func (s *Store) GetSnapshot(ctx context.Context, project, id string) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := s.get(ctx, snapshotKey(project, id), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// -----------------------------------------------------------------------------
// Branches (mutable)
// -----------------------------------------------------------------------------

// PutBranch stores or updates a branch record.
func (s *Store) PutBranch(ctx context.Context, branch *model.AnalysisBranch) error {
	if branch == nil || branch.ID == "" || branch.Project == "" {
		return fmt.Errorf("%w: branch needs id and project", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(branch)
	if err != nil {
		return fmt.Errorf("encoding branch: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(branchKey(branch.Project, branch.ID), value)
	})
}

// GetBranch fetches a branch by id.
func (s *Store) GetBranch(ctx context.Context, project, id string) (*model.AnalysisBranch, error) {
	var branch model.AnalysisBranch
	if err := s.get(ctx, branchKey(project, id), &branch); err != nil {
		return nil, err
	}
	return &branch, nil
}

// ListBranches returns every branch record for a project, including
// deleted ones, ordered by id.
func (s *Store) ListBranches(ctx context.Context, project string) ([]model.AnalysisBranch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte("branch:" + project + ":")
	var branches []model.AnalysisBranch
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var branch model.AnalysisBranch
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &branch)
			})
			if err != nil {
				return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
			}
			branches = append(branches, branch)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return branches, nil
}

// FindBranchByGitBranch returns the active (non-deleted) branch tracking
// the given git branch name, if one exists.
func (s *Store) FindBranchByGitBranch(ctx context.Context, project, gitBranch string) (*model.AnalysisBranch, error) {
	branches, err := s.ListBranches(ctx, project)
	if err != nil {
		return nil, err
	}
	for i := range branches {
		if !branches[i].Deleted && strings.EqualFold(branches[i].GitBranch, gitBranch) {
			return &branches[i], nil
		}
	}
	return nil, ErrNotFound
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

// putOnce writes a key only if it does not already exist.
func (s *Store) putOnce(ctx context.Context, key []byte, record any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, value)
	})
}

func (s *Store) get(ctx context.Context, key []byte, record any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, record)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}
