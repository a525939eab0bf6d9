// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package delta computes what a commit-to-commit change means for a
// baseline snapshot: which files changed, which chunks are directly
// affected, the cascade closure over the impact graph, and whether
// re-analysis should run incrementally or from scratch.
//
// Diff or propagation failures degrade to the FULL recommendation rather
// than silently under-reporting impact.
package delta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/relens-ai/relens/services/relens/cascade"
	"github.com/relens-ai/relens/services/relens/gitio"
	"github.com/relens-ai/relens/services/relens/model"
)

var tracer = otel.Tracer("relens.delta")

// fullThreshold is the affected-chunk fraction above which incremental
// re-analysis would cost more than a full pass.
const fullThreshold = 0.6

var (
	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("invalid delta input")

	// ErrBaselineNotFound is returned when the baseline snapshot is
	// absent. No partial manifest is returned.
	ErrBaselineNotFound = errors.New("baseline snapshot not found")
)

// SnapshotSource resolves snapshot ids. Implemented by the persistence
// layer; faked in tests.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, project, id string) (*model.Snapshot, error)
}

// Request is one delta computation.
type Request struct {
	// Project is the project path scope.
	Project string

	// BaselineID is the baseline snapshot id.
	BaselineID string

	// TargetCommit is a ref or hash; empty means current HEAD.
	TargetCommit string

	// Cascade overrides propagation options. Nil uses the defaults.
	Cascade *cascade.Options
}

// Computer derives delta manifests.
//
// # Thread Safety
//
// Safe for concurrent use; all collaborators are read-only here.
type Computer struct {
	git        gitio.Client
	propagator *cascade.Propagator
	snapshots  SnapshotSource
}

// NewComputer wires a delta computer.
func NewComputer(git gitio.Client, propagator *cascade.Propagator, snapshots SnapshotSource) (*Computer, error) {
	if git == nil {
		return nil, fmt.Errorf("%w: nil git client", ErrInvalidInput)
	}
	if propagator == nil {
		return nil, fmt.Errorf("%w: nil propagator", ErrInvalidInput)
	}
	if snapshots == nil {
		return nil, fmt.Errorf("%w: nil snapshot source", ErrInvalidInput)
	}
	return &Computer{git: git, propagator: propagator, snapshots: snapshots}, nil
}

// Compute resolves the baseline, diffs it against the target commit, maps
// changed files to chunks, runs cascade propagation, and derives the
// re-analysis recommendation.
//
// # Outputs
//
//	*model.DeltaManifest - The manifest; nil on error.
//	error - ErrBaselineNotFound, ErrInvalidInput, or git failures.
func (c *Computer) Compute(ctx context.Context, req Request) (*model.DeltaManifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Project == "" || req.BaselineID == "" {
		return nil, fmt.Errorf("%w: project and baseline id are required", ErrInvalidInput)
	}
	start := time.Now()

	ctx, span := tracer.Start(ctx, "delta.compute")
	defer span.End()
	span.SetAttributes(
		attribute.String("project", req.Project),
		attribute.String("baseline.id", req.BaselineID),
	)

	baseline, err := c.snapshots.GetSnapshot(ctx, req.Project, req.BaselineID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBaselineNotFound, req.BaselineID, err)
	}
	if baseline == nil {
		return nil, fmt.Errorf("%w: %s", ErrBaselineNotFound, req.BaselineID)
	}

	target, err := c.git.ResolveCommit(ctx, req.TargetCommit)
	if err != nil {
		return nil, fmt.Errorf("resolving target commit: %w", err)
	}

	manifest := &model.DeltaManifest{
		BaselineID:   baseline.ID,
		TargetCommit: target,
	}

	changes, err := c.git.Diff(ctx, baseline.Commit, target)
	if err != nil {
		return nil, fmt.Errorf("diffing %s..%s: %w", baseline.Commit, target, err)
	}
	if len(changes) == 0 {
		manifest.Recommendation = model.RecommendNoChanges
		manifest.EstimatedSavings = 1.0
		return manifest, nil
	}
	manifest.ChangedFiles = changes

	manifest.DirectChunks = directChunks(baseline, changes)

	opts := cascade.DefaultOptions()
	if req.Cascade != nil {
		opts = *req.Cascade
	}
	result, err := c.propagator.Propagate(ctx, req.Project, manifest.DirectChunks, opts)
	if err != nil {
		// Impact could not be bounded; recommend a full pass instead of
		// under-reporting.
		slog.Warn("Cascade propagation failed, degrading to FULL",
			"project", req.Project,
			"baseline", baseline.ID,
			"error", err)
		manifest.AllAffected = manifest.DirectChunks
		manifest.Recommendation = model.RecommendFull
		manifest.EstimatedSavings = 0
		return manifest, nil
	}

	manifest.CascadeChunks = result.CascadeAffected
	manifest.SemanticChunks = result.SemanticAffected
	manifest.AllAffected = result.AllAffected

	total := len(baseline.ChunkManifest)
	switch {
	case result.Stats.Truncated:
		manifest.Recommendation = model.RecommendFull
	case total == 0:
		// Changes exist but the baseline has no chunk manifest to map
		// them onto; impact is unbounded.
		manifest.Recommendation = model.RecommendFull
	case float64(len(manifest.AllAffected))/float64(total) > fullThreshold:
		manifest.Recommendation = model.RecommendFull
	default:
		manifest.Recommendation = model.RecommendIncremental
	}

	if total > 0 {
		savings := 1 - float64(len(manifest.AllAffected))/float64(total)
		if savings < 0 {
			savings = 0
		}
		manifest.EstimatedSavings = savings
	}

	slog.Info("Computed delta",
		"project", req.Project,
		"baseline", baseline.ID,
		"target", target,
		"changed_files", len(changes),
		"affected_chunks", len(manifest.AllAffected),
		"recommendation", manifest.Recommendation,
		"elapsed", time.Since(start))

	return manifest, nil
}

// directChunks maps changed files onto baseline chunks, deduplicated in
// first-seen order. Renames map both their old and new paths.
func directChunks(baseline *model.Snapshot, changes []model.FileChange) []string {
	seen := make(map[string]bool)
	var direct []string
	add := func(path string) {
		for _, id := range baseline.ChunksForFile(path) {
			if !seen[id] {
				seen[id] = true
				direct = append(direct, id)
			}
		}
	}
	for _, fc := range changes {
		add(fc.Path)
		if fc.OldPath != "" {
			add(fc.OldPath)
		}
	}
	return direct
}
