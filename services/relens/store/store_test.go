// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relens-ai/relens/services/relens/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestEnvelope_AppendOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	env := &model.Envelope{
		ID:      "env-1",
		Project: "p1",
		ChunkID: "chunk-a",
		Commit:  "c1",
		Agent:   "analyzer",
		Findings: []model.Finding{
			{ID: "f1", Location: model.Location{File: "a.go", StartLine: 1, EndLine: 2}, SnippetHash: "abc"},
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.PutEnvelope(ctx, env))

	got, err := s.GetEnvelope(ctx, "p1", "env-1")
	require.NoError(t, err)
	assert.Equal(t, env.ID, got.ID)
	require.Len(t, got.Findings, 1)
	assert.Equal(t, "f1", got.Findings[0].ID)

	// Envelopes are append-only once stored.
	err = s.PutEnvelope(ctx, env)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = s.GetEnvelope(ctx, "p1", "env-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetEnvelopes_MissingIDFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutEnvelope(ctx, &model.Envelope{ID: "env-1", Project: "p1"}))

	got, err := s.GetEnvelopes(ctx, "p1", []string{"env-1"})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = s.GetEnvelopes(ctx, "p1", []string{"env-1", "env-2"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshot_Immutable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	snap := &model.Snapshot{
		ID:         "snap-1",
		Project:    "p1",
		Commit:     "c1",
		Branch:     "main",
		Mode:       model.ModeFull,
		Provenance: []string{"snap-1"},
	}
	require.NoError(t, s.PutSnapshot(ctx, snap))

	got, err := s.GetSnapshot(ctx, "p1", "snap-1")
	require.NoError(t, err)
	assert.Equal(t, snap.Provenance, got.Provenance)

	err = s.PutSnapshot(ctx, snap)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Same id under a different project is a distinct key.
	other := *snap
	other.Project = "p2"
	assert.NoError(t, s.PutSnapshot(ctx, &other))
}

func TestBranch_UpdateAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	b := &model.AnalysisBranch{
		ID:        "branch-1",
		Project:   "p1",
		GitBranch: "feature/login",
		ForkPoint: "c1",
	}
	require.NoError(t, s.PutBranch(ctx, b))

	b.SnapshotIDs = append(b.SnapshotIDs, "snap-1")
	require.NoError(t, s.PutBranch(ctx, b), "branches are mutable")

	got, err := s.GetBranch(ctx, "p1", "branch-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"snap-1"}, got.SnapshotIDs)

	require.NoError(t, s.PutBranch(ctx, &model.AnalysisBranch{
		ID: "branch-2", Project: "p1", GitBranch: "feature/token",
	}))
	require.NoError(t, s.PutBranch(ctx, &model.AnalysisBranch{
		ID: "branch-3", Project: "p2", GitBranch: "feature/login",
	}))

	branches, err := s.ListBranches(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, branches, 2, "listing is project-scoped")
}

func TestFindBranchByGitBranch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutBranch(ctx, &model.AnalysisBranch{
		ID: "branch-1", Project: "p1", GitBranch: "feature/login",
	}))
	require.NoError(t, s.PutBranch(ctx, &model.AnalysisBranch{
		ID: "branch-2", Project: "p1", GitBranch: "feature/old", Deleted: true,
	}))

	got, err := s.FindBranchByGitBranch(ctx, "p1", "feature/login")
	require.NoError(t, err)
	assert.Equal(t, "branch-1", got.ID)

	// Deleted branches are not active.
	_, err = s.FindBranchByGitBranch(ctx, "p1", "feature/old")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FindBranchByGitBranch(ctx, "p1", "feature/none")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Validation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.PutEnvelope(ctx, nil), ErrInvalidInput)
	assert.ErrorIs(t, s.PutEnvelope(ctx, &model.Envelope{ID: "x"}), ErrInvalidInput)
	assert.ErrorIs(t, s.PutSnapshot(ctx, &model.Snapshot{Project: "p1"}), ErrInvalidInput)
	assert.ErrorIs(t, s.PutBranch(ctx, &model.AnalysisBranch{ID: "x"}), ErrInvalidInput)

	_, err := Open(Config{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
