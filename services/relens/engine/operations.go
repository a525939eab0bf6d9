// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/relens-ai/relens/services/relens/branch"
	"github.com/relens-ai/relens/services/relens/cascade"
	"github.com/relens-ai/relens/services/relens/delta"
	"github.com/relens-ai/relens/services/relens/graph"
	"github.com/relens-ai/relens/services/relens/merge"
	"github.com/relens-ai/relens/services/relens/model"
)

// -----------------------------------------------------------------------------
// Graph operations
// -----------------------------------------------------------------------------

// GraphUpdateRequest applies nodes and edges to the impact graph.
type GraphUpdateRequest struct {
	Project string `validate:"required"`
	Commit  string
	Nodes   []model.Node
	Edges   []model.Edge
}

// GraphUpdateResponse reports a best-effort bulk apply.
type GraphUpdateResponse struct {
	OperationResult
	Applied int
	Failed  []graph.BulkItemResult
}

// ApplyGraph applies a batch of graph mutations with per-item outcomes.
// Partial application is success: failed items are reported, applied
// items stay applied.
func (e *Engine) ApplyGraph(ctx context.Context, req GraphUpdateRequest) GraphUpdateResponse {
	if err := checkCtx(ctx); err != nil {
		return GraphUpdateResponse{OperationResult: resultErr(err)}
	}
	if err := validateRequest(req); err != nil {
		return GraphUpdateResponse{OperationResult: resultErr(err)}
	}

	bulk := e.graph.BulkApply(req.Project, req.Commit, req.Nodes, req.Edges)
	result := resultOK()
	if len(bulk.Failed) > 0 {
		result.Message = fmt.Sprintf("%d of %d items failed", len(bulk.Failed), bulk.Applied+len(bulk.Failed))
	}
	return GraphUpdateResponse{OperationResult: result, Applied: bulk.Applied, Failed: bulk.Failed}
}

// RemoveNode removes a node and every edge touching it.
func (e *Engine) RemoveNode(ctx context.Context, project, nodeID string) OperationResult {
	if err := checkCtx(ctx); err != nil {
		return resultErr(err)
	}
	if project == "" || nodeID == "" {
		return resultErr(fmt.Errorf("%w: project and node id are required", ErrInvalidInput))
	}
	if err := e.graph.RemoveNode(project, nodeID); err != nil {
		return resultErr(err)
	}
	return resultOK()
}

// RemoveEdge removes one typed edge.
func (e *Engine) RemoveEdge(ctx context.Context, project, source, target string, edgeType model.EdgeType) OperationResult {
	if err := checkCtx(ctx); err != nil {
		return resultErr(err)
	}
	if err := e.graph.RemoveEdge(project, source, target, edgeType); err != nil {
		return resultErr(err)
	}
	return resultOK()
}

// -----------------------------------------------------------------------------
// Cascade and delta
// -----------------------------------------------------------------------------

// PropagateRequest runs impact propagation from a dirty chunk set.
type PropagateRequest struct {
	Project     string `validate:"required"`
	DirtyChunks []string
	Options     *cascade.Options
}

// PropagateResponse carries the cascade result.
type PropagateResponse struct {
	OperationResult
	Result *cascade.Result
}

// Propagate computes the affected chunk set for a dirty set. Read-only
// against the graph; safe to run fully in parallel.
func (e *Engine) Propagate(ctx context.Context, req PropagateRequest) PropagateResponse {
	if err := validateRequest(req); err != nil {
		return PropagateResponse{OperationResult: resultErr(err)}
	}

	opts := cascade.DefaultOptions()
	if req.Options != nil {
		opts = *req.Options
	}
	result, err := e.propagator.Propagate(ctx, req.Project, req.DirtyChunks, opts)
	if err != nil {
		return PropagateResponse{OperationResult: resultErr(err)}
	}
	return PropagateResponse{OperationResult: resultOK(), Result: result}
}

// DeltaRequest computes what changed between a baseline and a commit.
type DeltaRequest struct {
	Project      string `validate:"required"`
	BaselineID   string `validate:"required"`
	TargetCommit string `validate:"required"`
	Cascade      *cascade.Options
}

// DeltaResponse carries the delta manifest.
type DeltaResponse struct {
	OperationResult
	Manifest *model.DeltaManifest
}

// ComputeDelta diffs the baseline commit against the target and cascades
// the direct chunk set into the full affected set.
func (e *Engine) ComputeDelta(ctx context.Context, req DeltaRequest) DeltaResponse {
	if err := validateRequest(req); err != nil {
		return DeltaResponse{OperationResult: resultErr(err)}
	}

	manifest, err := e.delta.Compute(ctx, delta.Request{
		Project:      req.Project,
		BaselineID:   req.BaselineID,
		TargetCommit: req.TargetCommit,
		Cascade:      req.Cascade,
	})
	if err != nil {
		return DeltaResponse{OperationResult: resultErr(err)}
	}
	return DeltaResponse{OperationResult: resultOK(), Manifest: manifest}
}

// -----------------------------------------------------------------------------
// Relocation
// -----------------------------------------------------------------------------

// RelocateRequest re-anchors findings from one commit onto another.
type RelocateRequest struct {
	Project   string `validate:"required"`
	OldCommit string `validate:"required"`
	NewCommit string `validate:"required"`
	Findings  []model.Finding `validate:"min=1"`
	Manifest  *model.DeltaManifest
}

// RelocateResponse maps finding id to its relocation result.
type RelocateResponse struct {
	OperationResult
	Results map[string]model.RelocationResult
}

// RelocateFindings runs the relocation pipeline over a batch of findings.
// Individual strategy failures are recorded in each result's trace and
// never abort the batch.
func (e *Engine) RelocateFindings(ctx context.Context, req RelocateRequest) RelocateResponse {
	if err := validateRequest(req); err != nil {
		return RelocateResponse{OperationResult: resultErr(err)}
	}

	results, err := e.pipeline.RelocateAll(ctx, req.Project, req.OldCommit, req.NewCommit, req.Findings, req.Manifest)
	if err != nil {
		return RelocateResponse{OperationResult: resultErr(err)}
	}
	return RelocateResponse{OperationResult: resultOK(), Results: results}
}

// -----------------------------------------------------------------------------
// Snapshots
// -----------------------------------------------------------------------------

// CreateSnapshotRequest records a full analysis run as the first (or a
// fresh) snapshot on a branch.
type CreateSnapshotRequest struct {
	Project string `validate:"required"`
	Branch  string `validate:"required"`

	// Commit is a hash or any ref git can resolve ("HEAD", a branch name).
	Commit string `validate:"required"`
	ChunkManifest []model.Chunk
	Envelopes     []model.Envelope `validate:"min=1"`
}

// SnapshotResponse carries a snapshot plus whether it was persisted.
// Persisted is false when the record store was unavailable and the
// snapshot exists only in this response.
type SnapshotResponse struct {
	OperationResult
	Snapshot  *model.Snapshot
	Persisted bool
}

// CreateSnapshot persists the envelopes and a FULL-mode snapshot, then
// appends it to the branch lineage. Holds the (project, branch) scope.
//
// When the record store is unavailable the synthesized snapshot is still
// returned with Persisted=false; stored state is never fabricated.
func (e *Engine) CreateSnapshot(ctx context.Context, req CreateSnapshotRequest) SnapshotResponse {
	if err := validateRequest(req); err != nil {
		return SnapshotResponse{OperationResult: resultErr(err)}
	}

	unlock := e.lockScope(req.Project, req.Branch)
	defer unlock()

	branchRecord, err := e.branches.Get(ctx, req.Project, req.Branch)
	if err != nil {
		return SnapshotResponse{OperationResult: resultErr(err)}
	}
	if branchRecord.Deleted {
		return SnapshotResponse{OperationResult: resultErr(
			fmt.Errorf("%w: %s", branch.ErrBranchDeleted, req.Branch))}
	}

	commit, err := e.git.ResolveCommit(ctx, req.Commit)
	if err != nil {
		return SnapshotResponse{OperationResult: resultErr(err)}
	}

	added := 0
	envelopeIDs := make([]string, 0, len(req.Envelopes))
	for i := range req.Envelopes {
		added += len(req.Envelopes[i].Findings)
		envelopeIDs = append(envelopeIDs, req.Envelopes[i].ID)
	}

	snap := &model.Snapshot{
		ID:            model.NewID("snap"),
		Project:       req.Project,
		Commit:        commit,
		Branch:        branchRecord.GitBranch,
		Mode:          model.ModeFull,
		ChunkManifest: req.ChunkManifest,
		EnvelopeIDs:   envelopeIDs,
		Trust:         model.ComputeTrustScore(0, 0, 0, 0, added),
		CreatedAt:     time.Now().UTC(),
	}
	snap.Provenance = []string{snap.ID}

	if res, done := e.persistSnapshot(ctx, req.Project, req.Branch, snap, req.Envelopes); done {
		return res
	}
	return SnapshotResponse{OperationResult: resultOK(), Snapshot: snap, Persisted: true}
}

// MergeRequest folds delta envelopes into a baseline snapshot.
type MergeRequest struct {
	Project    string `validate:"required"`
	Branch     string `validate:"required"`
	BaselineID string `validate:"required"`

	// TargetCommit is a hash or any ref git can resolve.
	TargetCommit string `validate:"required"`

	// DeltaEnvelopes hold the re-analysis findings for affected chunks.
	DeltaEnvelopes []model.Envelope

	// Manifest guides drift relocation and deleted-file orphaning.
	Manifest *model.DeltaManifest

	// ChunkManifest is the chunk set at the target commit. Defaults to
	// the baseline's.
	ChunkManifest []model.Chunk

	Strategy merge.ConflictStrategy
	Workflow string
}

// MergeSnapshot relocates the baseline's findings onto the target commit,
// merges in the delta envelopes, and appends the resulting INCREMENTAL
// snapshot to the branch. Holds the (project, branch) scope; the
// relocation pipeline's index searches run outside any store access.
func (e *Engine) MergeSnapshot(ctx context.Context, req MergeRequest) SnapshotResponse {
	if err := validateRequest(req); err != nil {
		return SnapshotResponse{OperationResult: resultErr(err)}
	}

	unlock := e.lockScope(req.Project, req.Branch)
	defer unlock()

	branchRecord, err := e.branches.Get(ctx, req.Project, req.Branch)
	if err != nil {
		return SnapshotResponse{OperationResult: resultErr(err)}
	}
	if branchRecord.Deleted {
		return SnapshotResponse{OperationResult: resultErr(
			fmt.Errorf("%w: %s", branch.ErrBranchDeleted, req.Branch))}
	}

	target, err := e.git.ResolveCommit(ctx, req.TargetCommit)
	if err != nil {
		return SnapshotResponse{OperationResult: resultErr(err)}
	}

	baseline, err := e.store.GetSnapshot(ctx, req.Project, req.BaselineID)
	if err != nil {
		return SnapshotResponse{OperationResult: resultErr(err)}
	}
	baselineFindings, err := e.findingsOf(ctx, baseline)
	if err != nil {
		return SnapshotResponse{OperationResult: resultErr(err)}
	}

	relocations, err := e.pipeline.RelocateAll(ctx, req.Project, baseline.Commit, target, baselineFindings, req.Manifest)
	if err != nil {
		return SnapshotResponse{OperationResult: resultErr(err)}
	}

	merged, err := e.merger.Merge(ctx, merge.Request{
		Baseline:         baseline,
		BaselineFindings: baselineFindings,
		DeltaEnvelopes:   req.DeltaEnvelopes,
		Relocations:      relocations,
		TargetCommit:     target,
		Strategy:         req.Strategy,
		Branch:           branchRecord.GitBranch,
		Mode:             model.ModeIncremental,
		ChunkManifest:    req.ChunkManifest,
		Workflow:         req.Workflow,
	})
	if err != nil {
		return SnapshotResponse{OperationResult: resultErr(err)}
	}

	snap := merged.Snapshot
	if res, done := e.persistSnapshot(ctx, req.Project, req.Branch, &snap, req.DeltaEnvelopes); done {
		return res
	}

	slog.Info("Merged snapshot",
		"project", req.Project,
		"branch", req.Branch,
		"snapshot", snap.ID,
		"preserved", merged.Counts.Preserved,
		"relocated", merged.Counts.Relocated,
		"stale", merged.Counts.Stale,
		"orphaned", merged.Counts.Orphaned,
		"new", merged.Counts.New,
		"conflicts", merged.Counts.Conflicts)
	return SnapshotResponse{OperationResult: resultOK(), Snapshot: &snap, Persisted: true}
}

// persistSnapshot writes envelopes, the snapshot, and the branch head.
// Returns (response, true) when the caller should return early: either a
// hard failure or a degraded success with Persisted=false.
func (e *Engine) persistSnapshot(ctx context.Context, project, branchID string, snap *model.Snapshot, envelopes []model.Envelope) (SnapshotResponse, bool) {
	for i := range envelopes {
		if err := e.store.PutEnvelope(ctx, &envelopes[i]); err != nil {
			if storeUnavailable(err) {
				slog.Warn("Record store unavailable, returning unpersisted snapshot",
					"project", project, "snapshot", snap.ID, "error", err)
				return SnapshotResponse{OperationResult: resultDegraded(err), Snapshot: snap}, true
			}
			return SnapshotResponse{OperationResult: resultErr(err)}, true
		}
	}
	if err := e.store.PutSnapshot(ctx, snap); err != nil {
		if storeUnavailable(err) {
			slog.Warn("Record store unavailable, returning unpersisted snapshot",
				"project", project, "snapshot", snap.ID, "error", err)
			return SnapshotResponse{OperationResult: resultDegraded(err), Snapshot: snap}, true
		}
		return SnapshotResponse{OperationResult: resultErr(err)}, true
	}
	if err := e.branches.AppendSnapshot(ctx, project, branchID, snap.ID); err != nil {
		return SnapshotResponse{OperationResult: resultErr(err)}, true
	}
	return SnapshotResponse{}, false
}

// GetSnapshot fetches a snapshot by id. Pure read, no scope lock.
func (e *Engine) GetSnapshot(ctx context.Context, project, id string) SnapshotResponse {
	snap, err := e.store.GetSnapshot(ctx, project, id)
	if err != nil {
		return SnapshotResponse{OperationResult: resultErr(err)}
	}
	return SnapshotResponse{OperationResult: resultOK(), Snapshot: snap, Persisted: true}
}

// LatestSnapshot returns the head snapshot of a branch lineage.
func (e *Engine) LatestSnapshot(ctx context.Context, project, branchID string) SnapshotResponse {
	branchRecord, err := e.branches.Get(ctx, project, branchID)
	if err != nil {
		return SnapshotResponse{OperationResult: resultErr(err)}
	}
	latest := branchRecord.LatestSnapshotID()
	if latest == "" {
		return SnapshotResponse{OperationResult: resultErr(
			fmt.Errorf("%w: branch %s has no snapshots", ErrNoSnapshots, branchID))}
	}
	return e.GetSnapshot(ctx, project, latest)
}

// -----------------------------------------------------------------------------
// Branch lifecycle
// -----------------------------------------------------------------------------

// BranchResponse carries one branch record.
type BranchResponse struct {
	OperationResult
	Branch *model.AnalysisBranch
}

// BranchListResponse carries every branch of a project.
type BranchListResponse struct {
	OperationResult
	Branches []model.AnalysisBranch
}

// CreateBranch registers a new analysis branch.
func (e *Engine) CreateBranch(ctx context.Context, req branch.CreateRequest) BranchResponse {
	unlock := e.lockScope(req.Project, req.GitBranch)
	defer unlock()

	created, err := e.branches.Create(ctx, req)
	if err != nil {
		return BranchResponse{OperationResult: resultErr(err)}
	}
	return BranchResponse{OperationResult: resultOK(), Branch: created}
}

// GetBranch fetches a branch by id.
func (e *Engine) GetBranch(ctx context.Context, project, id string) BranchResponse {
	got, err := e.branches.Get(ctx, project, id)
	if err != nil {
		return BranchResponse{OperationResult: resultErr(err)}
	}
	return BranchResponse{OperationResult: resultOK(), Branch: got}
}

// ListBranches lists a project's branches, deleted included.
func (e *Engine) ListBranches(ctx context.Context, project string) BranchListResponse {
	listed, err := e.branches.List(ctx, project)
	if err != nil {
		return BranchListResponse{OperationResult: resultErr(err)}
	}
	return BranchListResponse{OperationResult: resultOK(), Branches: listed}
}

// RebaseBranch re-anchors a branch onto a new base snapshot. Holds the
// (project, branch) scope.
func (e *Engine) RebaseBranch(ctx context.Context, req branch.RebaseRequest) SnapshotResponse {
	unlock := e.lockScope(req.Project, req.Branch)
	defer unlock()

	snap, err := e.branches.Rebase(ctx, req)
	if err != nil {
		return SnapshotResponse{OperationResult: resultErr(err)}
	}
	return SnapshotResponse{OperationResult: resultOK(), Snapshot: snap, Persisted: snap != nil}
}

// MergeBranchToMain folds a branch's findings into the main lineage.
// Holds the (project, branch) scope.
func (e *Engine) MergeBranchToMain(ctx context.Context, req branch.MergeToMainRequest) SnapshotResponse {
	unlock := e.lockScope(req.Project, req.Branch)
	defer unlock()

	snap, err := e.branches.MergeToMain(ctx, req)
	if err != nil {
		return SnapshotResponse{OperationResult: resultErr(err)}
	}
	return SnapshotResponse{OperationResult: resultOK(), Snapshot: snap, Persisted: true}
}

// DeleteBranch irreversibly marks a branch deleted. Snapshots stay
// addressable.
func (e *Engine) DeleteBranch(ctx context.Context, project, id string) OperationResult {
	unlock := e.lockScope(project, id)
	defer unlock()

	if err := e.branches.Delete(ctx, project, id); err != nil {
		return resultErr(err)
	}
	return resultOK()
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// findingsOf flattens a snapshot's envelope findings.
func (e *Engine) findingsOf(ctx context.Context, snap *model.Snapshot) ([]model.Finding, error) {
	envelopes, err := e.store.GetEnvelopes(ctx, snap.Project, snap.EnvelopeIDs)
	if err != nil {
		return nil, err
	}
	var findings []model.Finding
	for _, env := range envelopes {
		findings = append(findings, env.Findings...)
	}
	return findings, nil
}
