// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relens-ai/relens/services/relens/branch"
	"github.com/relens-ai/relens/services/relens/gitio"
	"github.com/relens-ai/relens/services/relens/model"
	"github.com/relens-ai/relens/services/relens/simindex"
	"github.com/relens-ai/relens/services/relens/store"
)

const project = "acme/api"

func newEngine(t *testing.T) (*Engine, *gitio.MemoryClient) {
	t.Helper()

	recordStore, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = recordStore.Close() })

	git := gitio.NewMemoryClient()
	e, err := New(Config{
		Store: recordStore,
		Git:   git,
		Index: simindex.NewMemoryIndex(nil),
	})
	require.NoError(t, err)
	return e, git
}

func chunkNode(id string) model.Node {
	return model.Node{ID: id, Type: model.NodeChunk, Label: id}
}

func envelope(id, chunkID, commit string, findings ...model.Finding) model.Envelope {
	return model.Envelope{
		ID:        id,
		Project:   project,
		ChunkID:   chunkID,
		Commit:    commit,
		Agent:     "security-agent",
		Findings:  findings,
		CreatedAt: time.Now().UTC(),
	}
}

func TestApplyGraph_PartialFailureReportedPerItem(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	resp := e.ApplyGraph(ctx, GraphUpdateRequest{
		Project: project,
		Commit:  "c1",
		Nodes:   []model.Node{chunkNode("chunk-a"), {ID: "", Type: model.NodeChunk}},
		Edges: []model.Edge{
			{Source: "chunk-a", Target: "", Type: model.EdgeImports, Weight: 3},
		},
	})

	assert.True(t, resp.OK)
	assert.Equal(t, 1, resp.Applied)
	require.Len(t, resp.Failed, 2)
	assert.Equal(t, "node", resp.Failed[0].Kind)
	assert.Equal(t, "edge", resp.Failed[1].Kind)
	assert.Contains(t, resp.Message, "2 of 3")
}

func TestPropagate_InvalidOptions(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	resp := e.Propagate(ctx, PropagateRequest{Project: ""})
	assert.False(t, resp.OK)
	assert.Equal(t, KindInvalidArgument, resp.ErrorKind)
}

func TestComputeDelta_MissingBaseline(t *testing.T) {
	e, git := newEngine(t)
	ctx := context.Background()
	git.AddCommit("c2", map[string]string{"a.go": "package a\n"})

	resp := e.ComputeDelta(ctx, DeltaRequest{
		Project:      project,
		BaselineID:   "snap-nope",
		TargetCommit: "c2",
	})
	assert.False(t, resp.OK)
	assert.Equal(t, KindNotFound, resp.ErrorKind)
	assert.Nil(t, resp.Manifest)
}

// TestIncrementalFlow drives the full lifecycle: full snapshot, graph
// build, delta, merge, and branch queries.
func TestIncrementalFlow(t *testing.T) {
	e, git := newEngine(t)
	ctx := context.Background()

	secretLine := `var secret = "x"`
	git.AddCommit("c1", map[string]string{
		"a.go": "package a\n" + secretLine + "\nfunc A() {}\n",
		"b.go": "package b\nfunc B() {}\n",
	})
	// c2 inserts one line above the secret; the finding must drift by 1.
	git.AddCommit("c2", map[string]string{
		"a.go": "package a\nimport \"os\"\n" + secretLine + "\nfunc A() {}\n",
		"b.go": "package b\nfunc B() {}\n",
	})

	created := e.CreateBranch(ctx, branch.CreateRequest{
		Project:   project,
		GitBranch: "main",
		ForkPoint: "c1",
	})
	require.True(t, created.OK)
	branchID := created.Branch.ID

	manifest := []model.Chunk{
		{ID: "chunk-a", Files: []string{"a.go"}},
		{ID: "chunk-b", Files: []string{"b.go"}},
		{ID: "chunk-c", Files: []string{"c.go"}},
		{ID: "chunk-d", Files: []string{"d.go"}},
		{ID: "chunk-e", Files: []string{"e.go"}},
	}

	f1 := model.Finding{
		ID:          "f1",
		Title:       "hardcoded secret",
		Location:    model.Location{File: "a.go", StartLine: 2, EndLine: 2},
		SnippetHash: model.HashSnippet([]string{secretLine}),
		Confidence:  0.9,
		Validation:  model.ValidationVerified,
	}

	base := e.CreateSnapshot(ctx, CreateSnapshotRequest{
		Project:       project,
		Branch:        branchID,
		Commit:        "c1",
		ChunkManifest: manifest,
		Envelopes:     []model.Envelope{envelope("env-1", "chunk-a", "c1", f1)},
	})
	require.True(t, base.OK)
	require.True(t, base.Persisted)
	assert.Equal(t, model.ModeFull, base.Snapshot.Mode)
	assert.InDelta(t, 9.7, base.Snapshot.Trust.Overall, 1e-9)

	graphResp := e.ApplyGraph(ctx, GraphUpdateRequest{
		Project: project,
		Commit:  "c1",
		Nodes: []model.Node{
			chunkNode("chunk-a"), chunkNode("chunk-b"), chunkNode("chunk-c"),
			chunkNode("chunk-d"), chunkNode("chunk-e"),
		},
		Edges: []model.Edge{
			{Source: "chunk-a", Target: "chunk-b", Type: model.EdgeImports, Weight: 3},
		},
	})
	require.True(t, graphResp.OK)
	assert.Empty(t, graphResp.Failed)

	deltaResp := e.ComputeDelta(ctx, DeltaRequest{
		Project:      project,
		BaselineID:   base.Snapshot.ID,
		TargetCommit: "c2",
	})
	require.True(t, deltaResp.OK)
	dm := deltaResp.Manifest
	assert.Equal(t, []string{"chunk-a"}, dm.DirectChunks)
	assert.Contains(t, dm.AllAffected, "chunk-b")
	assert.Equal(t, model.RecommendIncremental, dm.Recommendation)

	f2 := model.Finding{
		ID:          "f2",
		Title:       "missing error check",
		Location:    model.Location{File: "b.go", StartLine: 2, EndLine: 2},
		SnippetHash: model.HashSnippet([]string{"func B() {}"}),
		Confidence:  0.8,
		Validation:  model.ValidationVerified,
	}

	merged := e.MergeSnapshot(ctx, MergeRequest{
		Project:        project,
		Branch:         branchID,
		BaselineID:     base.Snapshot.ID,
		TargetCommit:   "c2",
		DeltaEnvelopes: []model.Envelope{envelope("env-2", "chunk-a", "c2", f2)},
		Manifest:       dm,
		ChunkManifest:  manifest,
		Workflow:       "incremental-pass",
	})
	require.True(t, merged.OK, merged.Message)
	require.True(t, merged.Persisted)

	assert.Equal(t, model.ModeIncremental, merged.Snapshot.Mode)
	assert.Equal(t, base.Snapshot.ID, merged.Snapshot.BaselineID)
	assert.Equal(t, []string{base.Snapshot.ID, merged.Snapshot.ID}, merged.Snapshot.Provenance)
	assert.ElementsMatch(t, []string{"env-1", "env-2"}, merged.Snapshot.EnvelopeIDs)

	latest := e.LatestSnapshot(ctx, project, branchID)
	require.True(t, latest.OK)
	assert.Equal(t, merged.Snapshot.ID, latest.Snapshot.ID)

	byID := e.GetSnapshot(ctx, project, merged.Snapshot.ID)
	require.True(t, byID.OK)
	assert.True(t, byID.Persisted)
}

func TestMergeSnapshot_DeletedBranchConflicts(t *testing.T) {
	e, git := newEngine(t)
	ctx := context.Background()
	git.AddCommit("c1", map[string]string{"a.go": "package a\n"})

	created := e.CreateBranch(ctx, branch.CreateRequest{Project: project, GitBranch: "main"})
	require.True(t, created.OK)
	require.True(t, e.DeleteBranch(ctx, project, created.Branch.ID).OK)

	resp := e.MergeSnapshot(ctx, MergeRequest{
		Project:      project,
		Branch:       created.Branch.ID,
		BaselineID:   "snap-1",
		TargetCommit: "c1",
	})
	assert.False(t, resp.OK)
	assert.Equal(t, KindConflict, resp.ErrorKind)
}

func TestCreateBranch_DuplicateConflicts(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	first := e.CreateBranch(ctx, branch.CreateRequest{Project: project, GitBranch: "main"})
	require.True(t, first.OK)

	second := e.CreateBranch(ctx, branch.CreateRequest{Project: project, GitBranch: "main"})
	assert.False(t, second.OK)
	assert.Equal(t, KindConflict, second.ErrorKind)

	list := e.ListBranches(ctx, project)
	require.True(t, list.OK)
	assert.Len(t, list.Branches, 1)
}

func TestLatestSnapshot_EmptyBranch(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	created := e.CreateBranch(ctx, branch.CreateRequest{Project: project, GitBranch: "main"})
	require.True(t, created.OK)

	resp := e.LatestSnapshot(ctx, project, created.Branch.ID)
	assert.False(t, resp.OK)
	assert.Equal(t, KindNotFound, resp.ErrorKind)
}

func TestCreateSnapshot_Validation(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	resp := e.CreateSnapshot(ctx, CreateSnapshotRequest{Project: project})
	assert.False(t, resp.OK)
	assert.Equal(t, KindInvalidArgument, resp.ErrorKind)
}

func TestCreateSnapshot_ResolvesRef(t *testing.T) {
	e, git := newEngine(t)
	ctx := context.Background()

	git.AddCommit("c1", map[string]string{"a.go": "package a\n"})
	git.SetRef("HEAD", "c1")

	created := e.CreateBranch(ctx, branch.CreateRequest{Project: project, GitBranch: "main"})
	require.True(t, created.OK)

	resp := e.CreateSnapshot(ctx, CreateSnapshotRequest{
		Project:   project,
		Branch:    created.Branch.ID,
		Commit:    "HEAD",
		Envelopes: []model.Envelope{envelope("env-1", "chunk-a", "c1")},
	})
	require.True(t, resp.OK)
	assert.Equal(t, "c1", resp.Snapshot.Commit)

	bad := e.CreateSnapshot(ctx, CreateSnapshotRequest{
		Project:   project,
		Branch:    created.Branch.ID,
		Commit:    "no-such-ref",
		Envelopes: []model.Envelope{envelope("env-2", "chunk-a", "c1")},
	})
	assert.False(t, bad.OK)
	assert.Equal(t, KindNotFound, bad.ErrorKind)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"not found", store.ErrNotFound, KindNotFound},
		{"commit not found", gitio.ErrCommitNotFound, KindNotFound},
		{"conflict", branch.ErrConflict, KindConflict},
		{"already exists", store.ErrAlreadyExists, KindConflict},
		{"circuit open", simindex.ErrCircuitOpen, KindDependencyUnavailable},
		{"invalid", ErrInvalidInput, KindInvalidArgument},
		{"unknown", errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classify(tc.err))
		})
	}
}
