// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package branch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relens-ai/relens/services/relens/gitio"
	"github.com/relens-ai/relens/services/relens/merge"
	"github.com/relens-ai/relens/services/relens/model"
	"github.com/relens-ai/relens/services/relens/relocate"
	"github.com/relens-ai/relens/services/relens/simindex"
	"github.com/relens-ai/relens/services/relens/store"
)

const project = "acme/api"

type env struct {
	store   *store.Store
	git     *gitio.MemoryClient
	manager *Manager
}

func newEnv(t *testing.T) *env {
	t.Helper()

	recordStore, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = recordStore.Close() })

	git := gitio.NewMemoryClient()
	pipeline, err := relocate.NewPipeline(git, simindex.NewMemoryIndex(nil))
	require.NoError(t, err)

	manager, err := NewManager(recordStore, pipeline, merge.NewEngine())
	require.NoError(t, err)

	return &env{store: recordStore, git: git, manager: manager}
}

// seedSnapshot persists one envelope and a snapshot referencing it.
func (e *env) seedSnapshot(t *testing.T, id, commit, branchName string, findings []model.Finding) *model.Snapshot {
	t.Helper()
	ctx := context.Background()

	envelope := &model.Envelope{
		ID:        "env-" + id,
		Project:   project,
		ChunkID:   "chunk-core",
		Commit:    commit,
		Agent:     "security-agent",
		Findings:  findings,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, e.store.PutEnvelope(ctx, envelope))

	snap := &model.Snapshot{
		ID:          id,
		Project:     project,
		Commit:      commit,
		Branch:      branchName,
		Mode:        model.ModeFull,
		EnvelopeIDs: []string{envelope.ID},
		Provenance:  []string{id},
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, e.store.PutSnapshot(ctx, snap))
	return snap
}

func finding(id, file string, start, end int, lines []string) model.Finding {
	return model.Finding{
		ID:          id,
		Title:       "hardcoded credential",
		Location:    model.Location{File: file, StartLine: start, EndLine: end},
		SnippetHash: model.HashSnippet(lines),
		Confidence:  0.9,
		Validation:  model.ValidationVerified,
	}
}

func TestCreate_DuplicateGitBranchConflicts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.manager.Create(ctx, CreateRequest{
		Project:    project,
		GitBranch:  "feature/auth",
		BaseBranch: "main",
		ForkPoint:  "c1",
	})
	require.NoError(t, err)
	assert.Equal(t, "feature/auth", first.GitBranch)
	assert.Equal(t, "c1", first.ForkPoint)

	_, err = e.manager.Create(ctx, CreateRequest{Project: project, GitBranch: "feature/auth"})
	assert.ErrorIs(t, err, ErrConflict)

	// A deleted branch releases the git branch name.
	require.NoError(t, e.manager.Delete(ctx, project, first.ID))
	second, err := e.manager.Create(ctx, CreateRequest{Project: project, GitBranch: "feature/auth", ForkPoint: "c2"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAppendSnapshot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	snap := e.seedSnapshot(t, "snap-1", "c1", "feature/auth", nil)
	b, err := e.manager.Create(ctx, CreateRequest{Project: project, GitBranch: "feature/auth", ForkPoint: "c0"})
	require.NoError(t, err)

	require.NoError(t, e.manager.AppendSnapshot(ctx, project, b.ID, snap.ID))

	got, err := e.manager.Get(ctx, project, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"snap-1"}, got.SnapshotIDs)
	assert.Equal(t, "snap-1", got.LatestSnapshotID())

	err = e.manager.AppendSnapshot(ctx, project, b.ID, "snap-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRebase_ReanchorsFindings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	lines := []string{`token := "sk-live-1234"`, "client.Use(token)"}
	e.git.AddCommit("c1", map[string]string{
		"auth.go": "package auth\n" + lines[0] + "\n" + lines[1] + "\n",
	})
	// The new base carries the same content, so the finding re-anchors
	// exactly.
	e.git.AddCommit("c2", map[string]string{
		"auth.go": "package auth\n" + lines[0] + "\n" + lines[1] + "\n",
	})

	head := e.seedSnapshot(t, "snap-head", "c1", "feature/auth",
		[]model.Finding{finding("f1", "auth.go", 2, 3, lines)})
	newBase := e.seedSnapshot(t, "snap-base", "c2", "main", nil)

	b, err := e.manager.Create(ctx, CreateRequest{Project: project, GitBranch: "feature/auth", ForkPoint: "c0"})
	require.NoError(t, err)
	require.NoError(t, e.manager.AppendSnapshot(ctx, project, b.ID, head.ID))

	rebased, err := e.manager.Rebase(ctx, RebaseRequest{Project: project, Branch: b.ID, NewBaseID: newBase.ID})
	require.NoError(t, err)
	require.NotNil(t, rebased)

	assert.Equal(t, model.ModeRebase, rebased.Mode)
	assert.Equal(t, "c2", rebased.Commit)
	assert.Equal(t, newBase.ID, rebased.BaselineID)
	assert.Equal(t, []string{newBase.ID, rebased.ID}, rebased.Provenance)

	got, err := e.manager.Get(ctx, project, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "c2", got.ForkPoint)
	assert.Equal(t, rebased.ID, got.LatestSnapshotID())

	// The rebased snapshot is persisted and addressable.
	stored, err := e.store.GetSnapshot(ctx, project, rebased.ID)
	require.NoError(t, err)
	assert.Equal(t, rebased.ID, stored.ID)
}

func TestRebase_EmptyBranchMovesForkPoint(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	newBase := e.seedSnapshot(t, "snap-base", "c5", "main", nil)
	b, err := e.manager.Create(ctx, CreateRequest{Project: project, GitBranch: "feature/auth", ForkPoint: "c1"})
	require.NoError(t, err)

	snap, err := e.manager.Rebase(ctx, RebaseRequest{Project: project, Branch: b.ID, NewBaseID: newBase.ID})
	require.NoError(t, err)
	assert.Nil(t, snap)

	got, err := e.manager.Get(ctx, project, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "c5", got.ForkPoint)
	assert.Empty(t, got.SnapshotIDs)
}

func TestMergeToMain_CombinesFindings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	mainLines := []string{"db.Exec(query)"}
	e.git.AddCommit("c1", map[string]string{"db.go": "package db\n" + mainLines[0] + "\n"})

	mainSnap := e.seedSnapshot(t, "snap-main", "c1", "main",
		[]model.Finding{finding("f-main", "db.go", 2, 2, mainLines)})
	head := e.seedSnapshot(t, "snap-feat", "c1", "feature/auth",
		[]model.Finding{finding("f-feat", "auth.go", 10, 12, []string{"x", "y", "z"})})

	b, err := e.manager.Create(ctx, CreateRequest{Project: project, GitBranch: "feature/auth", ForkPoint: "c1"})
	require.NoError(t, err)
	require.NoError(t, e.manager.AppendSnapshot(ctx, project, b.ID, head.ID))

	merged, err := e.manager.MergeToMain(ctx, MergeToMainRequest{
		Project:        project,
		Branch:         b.ID,
		MainSnapshotID: mainSnap.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, "main", merged.Branch)
	assert.Equal(t, "c1", merged.Commit)
	assert.Equal(t, mainSnap.ID, merged.BaselineID)
	assert.ElementsMatch(t, []string{"env-snap-main", "env-snap-feat"}, merged.EnvelopeIDs)

	// The branch lineage itself is untouched by the merge.
	got, err := e.manager.Get(ctx, project, b.ID)
	require.NoError(t, err)
	assert.Equal(t, head.ID, got.LatestSnapshotID())
	assert.False(t, got.Deleted)
}

func TestDelete_LeavesSnapshotsAddressable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	snap := e.seedSnapshot(t, "snap-1", "c1", "feature/auth", nil)
	b, err := e.manager.Create(ctx, CreateRequest{Project: project, GitBranch: "feature/auth"})
	require.NoError(t, err)
	require.NoError(t, e.manager.AppendSnapshot(ctx, project, b.ID, snap.ID))

	require.NoError(t, e.manager.Delete(ctx, project, b.ID))

	// Deleting again is a no-op.
	require.NoError(t, e.manager.Delete(ctx, project, b.ID))

	got, err := e.manager.Get(ctx, project, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)

	// Snapshots survive branch deletion.
	stored, err := e.store.GetSnapshot(ctx, project, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, stored.ID)

	// Mutations on a deleted branch are rejected.
	err = e.manager.AppendSnapshot(ctx, project, b.ID, snap.ID)
	assert.ErrorIs(t, err, ErrBranchDeleted)
	_, err = e.manager.Rebase(ctx, RebaseRequest{Project: project, Branch: b.ID, NewBaseID: snap.ID})
	assert.ErrorIs(t, err, ErrBranchDeleted)
}

func TestManager_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := NewManager(nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.manager.Create(ctx, CreateRequest{Project: project})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.manager.Rebase(ctx, RebaseRequest{Project: project})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.manager.MergeToMain(ctx, MergeToMainRequest{Project: project, Branch: "b1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.manager.Get(ctx, project, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
