// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package delta

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relens-ai/relens/services/relens/cascade"
	"github.com/relens-ai/relens/services/relens/gitio"
	"github.com/relens-ai/relens/services/relens/graph"
	"github.com/relens-ai/relens/services/relens/model"
)

const project = "p1"

// snapshotMap is an in-memory SnapshotSource.
type snapshotMap map[string]*model.Snapshot

func (m snapshotMap) GetSnapshot(ctx context.Context, project, id string) (*model.Snapshot, error) {
	if snap, ok := m[id]; ok {
		return snap, nil
	}
	return nil, fmt.Errorf("no snapshot %s", id)
}

// chunkEnv builds a five-chunk baseline where chunk-a imports into chunk-b
// and files map one-to-one onto chunks.
func chunkEnv(t *testing.T) (*gitio.MemoryClient, *graph.Store, snapshotMap) {
	t.Helper()

	git := gitio.NewMemoryClient()
	git.AddCommit("c1", map[string]string{
		"a.go": "package a\nvar A = 1\n",
		"b.go": "package a\nvar B = 2\n",
		"c.go": "package a\nvar C = 3\n",
		"d.go": "package a\nvar D = 4\n",
		"e.go": "package a\nvar E = 5\n",
	})

	store := graph.NewStore()
	for _, id := range []string{"chunk-a", "chunk-b", "chunk-c", "chunk-d", "chunk-e"} {
		require.NoError(t, store.UpsertNode(project, "c1", model.Node{ID: id, Type: model.NodeChunk}))
	}
	require.NoError(t, store.UpsertEdge(project, model.Edge{
		Source: "chunk-a", Target: "chunk-b", Type: model.EdgeImports, Weight: 3,
	}))

	manifest := []model.Chunk{
		{ID: "chunk-a", Files: []string{"a.go"}},
		{ID: "chunk-b", Files: []string{"b.go"}},
		{ID: "chunk-c", Files: []string{"c.go"}},
		{ID: "chunk-d", Files: []string{"d.go"}},
		{ID: "chunk-e", Files: []string{"e.go"}},
	}
	snaps := snapshotMap{
		"snap-1": {
			ID:            "snap-1",
			Project:       project,
			Commit:        "c1",
			ChunkManifest: manifest,
		},
	}
	return git, store, snaps
}

func newComputer(t *testing.T, git gitio.Client, store *graph.Store, snaps SnapshotSource) *Computer {
	t.Helper()
	c, err := NewComputer(git, cascade.NewPropagator(store), snaps)
	require.NoError(t, err)
	return c
}

func TestCompute_NoChanges(t *testing.T) {
	git, store, snaps := chunkEnv(t)
	c := newComputer(t, git, store, snaps)

	manifest, err := c.Compute(context.Background(), Request{
		Project: project, BaselineID: "snap-1", TargetCommit: "c1",
	})
	require.NoError(t, err)

	assert.Equal(t, model.RecommendNoChanges, manifest.Recommendation)
	assert.Equal(t, 1.0, manifest.EstimatedSavings)
	assert.Empty(t, manifest.ChangedFiles)
	assert.Empty(t, manifest.AllAffected)
}

func TestCompute_IncrementalWithCascade(t *testing.T) {
	git, store, snaps := chunkEnv(t)
	git.AddCommit("c2", map[string]string{
		"a.go": "package a\nvar A = 10\n",
		"b.go": "package a\nvar B = 2\n",
		"c.go": "package a\nvar C = 3\n",
		"d.go": "package a\nvar D = 4\n",
		"e.go": "package a\nvar E = 5\n",
	})

	c := newComputer(t, git, store, snaps)
	manifest, err := c.Compute(context.Background(), Request{
		Project: project, BaselineID: "snap-1", TargetCommit: "c2",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"chunk-a"}, manifest.DirectChunks)
	assert.Equal(t, []string{"chunk-b"}, manifest.CascadeChunks, "chunk-a imports into chunk-b")
	assert.ElementsMatch(t, []string{"chunk-a", "chunk-b"}, manifest.AllAffected)

	// 2 of 5 chunks affected: below the full-pass threshold.
	assert.Equal(t, model.RecommendIncremental, manifest.Recommendation)
	assert.InDelta(t, 0.6, manifest.EstimatedSavings, 1e-9)
	assert.Equal(t, "c2", manifest.TargetCommit)
	require.Len(t, manifest.ChangedFiles, 1)
	assert.Equal(t, model.ChangeModified, manifest.ChangedFiles[0].Type)
}

func TestCompute_FullWhenMostChunksAffected(t *testing.T) {
	git, store, snaps := chunkEnv(t)
	git.AddCommit("c2", map[string]string{
		"a.go": "package a\nvar A = 10\n",
		"b.go": "package a\nvar B = 20\n",
		"c.go": "package a\nvar C = 30\n",
		"d.go": "package a\nvar D = 40\n",
		"e.go": "package a\nvar E = 5\n",
	})

	c := newComputer(t, git, store, snaps)
	manifest, err := c.Compute(context.Background(), Request{
		Project: project, BaselineID: "snap-1", TargetCommit: "c2",
	})
	require.NoError(t, err)

	// 4 of 5 directly affected: 0.8 > 0.6 threshold.
	assert.Equal(t, model.RecommendFull, manifest.Recommendation)
	assert.InDelta(t, 0.2, manifest.EstimatedSavings, 1e-9)
}

func TestCompute_MissingBaseline(t *testing.T) {
	git, store, snaps := chunkEnv(t)
	c := newComputer(t, git, store, snaps)

	manifest, err := c.Compute(context.Background(), Request{
		Project: project, BaselineID: "snap-missing", TargetCommit: "c1",
	})
	assert.ErrorIs(t, err, ErrBaselineNotFound)
	assert.Nil(t, manifest, "no partial manifest on a missing baseline")
}

func TestCompute_UnresolvableTargetCommit(t *testing.T) {
	git, store, snaps := chunkEnv(t)
	c := newComputer(t, git, store, snaps)

	_, err := c.Compute(context.Background(), Request{
		Project: project, BaselineID: "snap-1", TargetCommit: "does-not-exist",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, gitio.ErrCommitNotFound)
}

func TestCompute_InvalidCascadeOptionsDegradeToFull(t *testing.T) {
	git, store, snaps := chunkEnv(t)
	git.AddCommit("c2", map[string]string{
		"a.go": "package a\nvar A = 10\n",
		"b.go": "package a\nvar B = 2\n",
		"c.go": "package a\nvar C = 3\n",
		"d.go": "package a\nvar D = 4\n",
		"e.go": "package a\nvar E = 5\n",
	})

	bad := cascade.DefaultOptions()
	bad.MaxDepth = 99

	c := newComputer(t, git, store, snaps)
	manifest, err := c.Compute(context.Background(), Request{
		Project: project, BaselineID: "snap-1", TargetCommit: "c2", Cascade: &bad,
	})
	require.NoError(t, err, "propagation failure is not fatal")

	assert.Equal(t, model.RecommendFull, manifest.Recommendation)
	assert.Zero(t, manifest.EstimatedSavings)
	assert.Equal(t, manifest.DirectChunks, manifest.AllAffected)
}

func TestCompute_Validation(t *testing.T) {
	git, store, snaps := chunkEnv(t)
	c := newComputer(t, git, store, snaps)

	_, err := c.Compute(context.Background(), Request{BaselineID: "snap-1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.Compute(context.Background(), Request{Project: project})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
