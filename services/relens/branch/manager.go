// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package branch manages analysis branch lifecycles: create, append
// snapshots, rebase onto a new base, merge back to main, delete.
//
// A branch is a git-branch-scoped lineage of snapshots forked from a base
// commit. Rebase re-anchors the branch's findings onto a new base snapshot
// by running the relocation pipeline and merging with the new base as
// baseline. Deleting a branch is irreversible but never cascade-deletes
// snapshots; they stay addressable by id for audit.
package branch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relens-ai/relens/services/relens/merge"
	"github.com/relens-ai/relens/services/relens/model"
	"github.com/relens-ai/relens/services/relens/relocate"
	"github.com/relens-ai/relens/services/relens/store"
)

var (
	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("invalid branch input")

	// ErrConflict is returned when an active branch already tracks the
	// requested git branch.
	ErrConflict = errors.New("branch already exists")

	// ErrBranchDeleted is returned for mutations on a deleted branch.
	ErrBranchDeleted = errors.New("branch is deleted")
)

// Manager drives branch lifecycle operations.
//
// # Thread Safety
//
// Manager itself is stateless. Callers must serialize mutations per
// (project, branch); the engine layer holds that mutual-exclusion scope.
type Manager struct {
	store    *store.Store
	pipeline *relocate.Pipeline
	merger   *merge.Engine
}

// NewManager wires a branch manager.
func NewManager(recordStore *store.Store, pipeline *relocate.Pipeline, merger *merge.Engine) (*Manager, error) {
	if recordStore == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidInput)
	}
	if pipeline == nil {
		return nil, fmt.Errorf("%w: nil relocation pipeline", ErrInvalidInput)
	}
	if merger == nil {
		return nil, fmt.Errorf("%w: nil merge engine", ErrInvalidInput)
	}
	return &Manager{store: recordStore, pipeline: pipeline, merger: merger}, nil
}

// CreateRequest describes a new branch.
type CreateRequest struct {
	Project    string
	GitBranch  string
	BaseBranch string
	ForkPoint  string
}

// Create registers a new analysis branch. Fails with ErrConflict when an
// active branch already tracks the same git branch for the project.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*model.AnalysisBranch, error) {
	if req.Project == "" || req.GitBranch == "" {
		return nil, fmt.Errorf("%w: project and git branch are required", ErrInvalidInput)
	}

	existing, err := m.store.FindBranchByGitBranch(ctx, req.Project, req.GitBranch)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s tracks %s", ErrConflict, existing.ID, req.GitBranch)
	}

	branch := &model.AnalysisBranch{
		ID:         model.NewID("branch"),
		Project:    req.Project,
		GitBranch:  req.GitBranch,
		BaseBranch: req.BaseBranch,
		ForkPoint:  req.ForkPoint,
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.store.PutBranch(ctx, branch); err != nil {
		return nil, err
	}

	slog.Info("Created analysis branch",
		"project", req.Project,
		"branch", branch.ID,
		"git_branch", req.GitBranch,
		"fork_point", req.ForkPoint)
	return branch, nil
}

// Get returns a branch by id. Pure read; deleted branches are returned
// with their Deleted flag set.
func (m *Manager) Get(ctx context.Context, project, id string) (*model.AnalysisBranch, error) {
	return m.store.GetBranch(ctx, project, id)
}

// List returns every branch for a project, including deleted ones.
func (m *Manager) List(ctx context.Context, project string) ([]model.AnalysisBranch, error) {
	return m.store.ListBranches(ctx, project)
}

// AppendSnapshot records a new snapshot at the head of the branch lineage.
func (m *Manager) AppendSnapshot(ctx context.Context, project, branchID, snapshotID string) error {
	branch, err := m.mutableBranch(ctx, project, branchID)
	if err != nil {
		return err
	}
	if _, err := m.store.GetSnapshot(ctx, project, snapshotID); err != nil {
		return fmt.Errorf("snapshot %s: %w", snapshotID, err)
	}
	branch.SnapshotIDs = append(branch.SnapshotIDs, snapshotID)
	return m.store.PutBranch(ctx, branch)
}

// RebaseRequest re-anchors a branch onto a new base snapshot.
type RebaseRequest struct {
	Project string
	Branch  string

	// NewBaseID is the snapshot the branch rebases onto.
	NewBaseID string
}

// Rebase replaces the branch's fork point with the new base's commit and
// re-anchors all branch findings onto it. The relocation pipeline runs
// against the new base commit, and the merge engine produces the rebased
// snapshot with the new base as baseline.
func (m *Manager) Rebase(ctx context.Context, req RebaseRequest) (*model.Snapshot, error) {
	if req.Project == "" || req.Branch == "" || req.NewBaseID == "" {
		return nil, fmt.Errorf("%w: project, branch, and new base are required", ErrInvalidInput)
	}
	branch, err := m.mutableBranch(ctx, req.Project, req.Branch)
	if err != nil {
		return nil, err
	}
	newBase, err := m.store.GetSnapshot(ctx, req.Project, req.NewBaseID)
	if err != nil {
		return nil, fmt.Errorf("new base %s: %w", req.NewBaseID, err)
	}

	latestID := branch.LatestSnapshotID()
	if latestID == "" {
		// Nothing to re-anchor; just move the fork point.
		branch.ForkPoint = newBase.Commit
		if err := m.store.PutBranch(ctx, branch); err != nil {
			return nil, err
		}
		return nil, nil
	}

	latest, err := m.store.GetSnapshot(ctx, req.Project, latestID)
	if err != nil {
		return nil, fmt.Errorf("branch head %s: %w", latestID, err)
	}
	findings, err := m.findingsOf(ctx, latest)
	if err != nil {
		return nil, err
	}

	relocations, err := m.pipeline.RelocateAll(ctx, req.Project, latest.Commit, newBase.Commit, findings, nil)
	if err != nil {
		return nil, fmt.Errorf("re-anchoring branch findings: %w", err)
	}

	result, err := m.merger.Merge(ctx, merge.Request{
		Baseline:         newBase,
		BaselineFindings: findings,
		Relocations:      relocations,
		TargetCommit:     newBase.Commit,
		Branch:           branch.GitBranch,
		Mode:             model.ModeRebase,
		Workflow:         "rebase",
	})
	if err != nil {
		return nil, err
	}
	if err := m.store.PutSnapshot(ctx, &result.Snapshot); err != nil {
		return nil, err
	}

	branch.ForkPoint = newBase.Commit
	branch.SnapshotIDs = append(branch.SnapshotIDs, result.Snapshot.ID)
	if err := m.store.PutBranch(ctx, branch); err != nil {
		return nil, err
	}

	slog.Info("Rebased branch",
		"project", req.Project,
		"branch", branch.ID,
		"new_base", newBase.ID,
		"snapshot", result.Snapshot.ID,
		"preserved", result.Counts.Preserved,
		"relocated", result.Counts.Relocated)
	return &result.Snapshot, nil
}

// MergeToMainRequest folds a branch's findings into the main lineage.
type MergeToMainRequest struct {
	Project string
	Branch  string

	// MainSnapshotID is the main lineage's baseline snapshot.
	MainSnapshotID string

	// TargetCommit defaults to the main baseline's commit.
	TargetCommit string

	// Strategy settles location collisions. Defaults to PREFER_NEW.
	Strategy merge.ConflictStrategy
}

// MergeToMain produces a snapshot on the main branch combining the main
// baseline's findings with the branch's envelopes. The branch itself is
// left intact; deleting it afterwards is the caller's decision.
func (m *Manager) MergeToMain(ctx context.Context, req MergeToMainRequest) (*model.Snapshot, error) {
	if req.Project == "" || req.Branch == "" || req.MainSnapshotID == "" {
		return nil, fmt.Errorf("%w: project, branch, and main snapshot are required", ErrInvalidInput)
	}
	branch, err := m.mutableBranch(ctx, req.Project, req.Branch)
	if err != nil {
		return nil, err
	}
	latestID := branch.LatestSnapshotID()
	if latestID == "" {
		return nil, fmt.Errorf("%w: branch %s has no snapshots to merge", ErrInvalidInput, branch.ID)
	}
	latest, err := m.store.GetSnapshot(ctx, req.Project, latestID)
	if err != nil {
		return nil, fmt.Errorf("branch head %s: %w", latestID, err)
	}
	mainSnap, err := m.store.GetSnapshot(ctx, req.Project, req.MainSnapshotID)
	if err != nil {
		return nil, fmt.Errorf("main baseline %s: %w", req.MainSnapshotID, err)
	}

	target := req.TargetCommit
	if target == "" {
		target = mainSnap.Commit
	}

	mainFindings, err := m.findingsOf(ctx, mainSnap)
	if err != nil {
		return nil, err
	}
	relocations, err := m.pipeline.RelocateAll(ctx, req.Project, mainSnap.Commit, target, mainFindings, nil)
	if err != nil {
		return nil, fmt.Errorf("re-anchoring main findings: %w", err)
	}

	branchEnvelopes, err := m.store.GetEnvelopes(ctx, req.Project, latest.EnvelopeIDs)
	if err != nil {
		return nil, err
	}

	result, err := m.merger.Merge(ctx, merge.Request{
		Baseline:         mainSnap,
		BaselineFindings: mainFindings,
		DeltaEnvelopes:   branchEnvelopes,
		Relocations:      relocations,
		TargetCommit:     target,
		Strategy:         req.Strategy,
		Branch:           mainSnap.Branch,
		Workflow:         "merge-to-main",
	})
	if err != nil {
		return nil, err
	}
	if err := m.store.PutSnapshot(ctx, &result.Snapshot); err != nil {
		return nil, err
	}

	slog.Info("Merged branch to main",
		"project", req.Project,
		"branch", branch.ID,
		"snapshot", result.Snapshot.ID,
		"new", result.Counts.New,
		"conflicts", result.Counts.Conflicts)
	return &result.Snapshot, nil
}

// Delete marks a branch deleted. Irreversible; snapshots remain
// addressable by id. Deleting a deleted branch is a no-op.
func (m *Manager) Delete(ctx context.Context, project, id string) error {
	branch, err := m.store.GetBranch(ctx, project, id)
	if err != nil {
		return err
	}
	if branch.Deleted {
		return nil
	}
	branch.Deleted = true
	if err := m.store.PutBranch(ctx, branch); err != nil {
		return err
	}
	slog.Info("Deleted analysis branch", "project", project, "branch", id)
	return nil
}

// mutableBranch fetches a branch and rejects mutations on deleted ones.
func (m *Manager) mutableBranch(ctx context.Context, project, id string) (*model.AnalysisBranch, error) {
	branch, err := m.store.GetBranch(ctx, project, id)
	if err != nil {
		return nil, err
	}
	if branch.Deleted {
		return nil, fmt.Errorf("%w: %s", ErrBranchDeleted, id)
	}
	return branch, nil
}

// findingsOf flattens a snapshot's envelope findings.
func (m *Manager) findingsOf(ctx context.Context, snap *model.Snapshot) ([]model.Finding, error) {
	envelopes, err := m.store.GetEnvelopes(ctx, snap.Project, snap.EnvelopeIDs)
	if err != nil {
		return nil, err
	}
	var findings []model.Finding
	for _, env := range envelopes {
		findings = append(findings, env.Findings...)
	}
	return findings, nil
}
