// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package merge folds relocated baseline findings and freshly produced
// envelopes into a new immutable snapshot with a derived trust score.
//
// The merge rule: PRESERVED and RELOCATED findings survive into the new
// active set, STALE and ORPHANED findings are dropped and counted, and all
// delta envelopes are added. Location collisions between a relocated
// finding and a new finding are settled by the conflict strategy. The
// resulting snapshot appends to the baseline's provenance chain; prior
// entries are never rewritten.
package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/relens-ai/relens/services/relens/model"
)

var tracer = otel.Tracer("relens.merge")

var (
	// ErrInvalidInput is returned when a merge request fails validation.
	ErrInvalidInput = errors.New("invalid merge input")

	// ErrIncompleteRelocations is returned when the relocation map does
	// not cover every baseline finding.
	ErrIncompleteRelocations = errors.New("relocation results missing for baseline findings")
)

// ConflictStrategy decides collisions between a relocated finding and a
// newly produced finding at an overlapping location.
type ConflictStrategy string

const (
	// PreferNew discards the relocated finding.
	PreferNew ConflictStrategy = "PREFER_NEW"

	// PreferBaseline discards the new finding.
	PreferBaseline ConflictStrategy = "PREFER_BASELINE"

	// KeepBoth retains both findings and counts the conflict.
	KeepBoth ConflictStrategy = "KEEP_BOTH"
)

// Valid reports whether the strategy is a known value.
func (s ConflictStrategy) Valid() bool {
	switch s {
	case PreferNew, PreferBaseline, KeepBoth:
		return true
	}
	return false
}

// Request is one merge operation. The caller resolves ids to material
// beforehand; the engine stays storage-agnostic.
type Request struct {
	// Baseline is the snapshot being merged onto.
	Baseline *model.Snapshot

	// BaselineFindings is every finding in the baseline's envelopes.
	BaselineFindings []model.Finding

	// DeltaEnvelopes are the envelopes produced by this pass.
	DeltaEnvelopes []model.Envelope

	// Relocations maps finding id to its relocation result and must
	// cover every baseline finding.
	Relocations map[string]model.RelocationResult

	// TargetCommit is the commit the new snapshot describes.
	TargetCommit string

	// Strategy settles location collisions. Defaults to PREFER_NEW.
	Strategy ConflictStrategy

	// Branch is the git branch the snapshot lands on.
	Branch string

	// Mode defaults to INCREMENTAL.
	Mode model.AnalysisMode

	// ChunkManifest for the new snapshot. Defaults to the baseline's.
	ChunkManifest []model.Chunk

	// Workflow identifies the run for audit.
	Workflow string
}

// Counts summarizes a merge outcome.
type Counts struct {
	Preserved int `json:"preserved"`
	Relocated int `json:"relocated"`
	Stale     int `json:"stale"`
	Orphaned  int `json:"orphaned"`
	New       int `json:"new"`
	Conflicts int `json:"conflicts"`
}

// Result is the merged snapshot plus the active finding set and counts.
type Result struct {
	// Snapshot is the new immutable snapshot. Persistence is the
	// caller's concern.
	Snapshot model.Snapshot

	// ActiveFindings is the surviving finding set: preserved findings
	// unchanged, relocated findings re-located, plus new findings that
	// were not discarded by the conflict strategy.
	ActiveFindings []model.Finding

	// Counts is the merge summary. Preserved+Relocated+Stale+Orphaned
	// always equals the baseline finding count.
	Counts Counts
}

// Engine performs merges.
//
// # Thread Safety
//
// Stateless; safe for concurrent use.
type Engine struct{}

// NewEngine returns a merge engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Merge folds relocation results and delta envelopes into a new snapshot.
//
// # Outputs
//
//	Result - The snapshot, active finding set, and counts.
//	error - Non-nil for invalid input or incomplete relocation coverage.
func (e *Engine) Merge(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := validate(&req); err != nil {
		return Result{}, err
	}

	ctx, span := tracer.Start(ctx, "merge.snapshot")
	defer span.End()
	span.SetAttributes(
		attribute.String("baseline.id", req.Baseline.ID),
		attribute.String("commit.target", req.TargetCommit),
	)

	var counts Counts
	var preserved, relocated []model.Finding
	for _, f := range req.BaselineFindings {
		res := req.Relocations[f.ID]
		switch res.Status {
		case model.RelocationPreserved:
			counts.Preserved++
			preserved = append(preserved, f)
		case model.RelocationRelocated:
			counts.Relocated++
			moved := f
			if res.NewLocation != nil {
				moved.Location = *res.NewLocation
			}
			relocated = append(relocated, moved)
		case model.RelocationStale:
			counts.Stale++
		case model.RelocationOrphaned:
			counts.Orphaned++
		}
	}

	newFindings := make([]model.Finding, 0)
	for _, env := range req.DeltaEnvelopes {
		newFindings = append(newFindings, env.Findings...)
	}
	counts.New = len(newFindings)

	active := make([]model.Finding, 0, len(preserved)+len(relocated)+len(newFindings))
	active = append(active, preserved...)

	droppedNew := make(map[string]bool)
	for _, moved := range relocated {
		collision := ""
		for _, nf := range newFindings {
			if moved.Location.Overlaps(nf.Location) {
				collision = nf.ID
				break
			}
		}
		if collision == "" {
			active = append(active, moved)
			continue
		}
		counts.Conflicts++
		switch req.Strategy {
		case PreferNew:
			// Relocated finding discarded; the new one stays.
		case PreferBaseline:
			droppedNew[collision] = true
			active = append(active, moved)
		case KeepBoth:
			active = append(active, moved)
		}
	}
	for _, nf := range newFindings {
		if !droppedNew[nf.ID] {
			active = append(active, nf)
		}
	}

	trust := model.ComputeTrustScore(counts.Preserved, counts.Relocated, counts.Stale, counts.Orphaned, counts.New)

	envelopeIDs := make([]string, 0, len(req.Baseline.EnvelopeIDs)+len(req.DeltaEnvelopes))
	envelopeIDs = append(envelopeIDs, req.Baseline.EnvelopeIDs...)
	for _, env := range req.DeltaEnvelopes {
		envelopeIDs = append(envelopeIDs, env.ID)
	}

	manifest := req.ChunkManifest
	if manifest == nil {
		manifest = req.Baseline.ChunkManifest
	}
	branch := req.Branch
	if branch == "" {
		branch = req.Baseline.Branch
	}

	snapID := model.NewID("snap")
	provenance := make([]string, 0, len(req.Baseline.Provenance)+1)
	provenance = append(provenance, req.Baseline.Provenance...)
	provenance = append(provenance, snapID)

	snapshot := model.Snapshot{
		ID:            snapID,
		Project:       req.Baseline.Project,
		Commit:        req.TargetCommit,
		Branch:        branch,
		Mode:          req.Mode,
		BaselineID:    req.Baseline.ID,
		ChunkManifest: manifest,
		EnvelopeIDs:   envelopeIDs,
		Trust:         trust,
		Provenance:    provenance,
		CreatedAt:     time.Now().UTC(),
	}

	return Result{
		Snapshot:       snapshot,
		ActiveFindings: active,
		Counts:         counts,
	}, nil
}

func validate(req *Request) error {
	if req.Baseline == nil {
		return fmt.Errorf("%w: nil baseline snapshot", ErrInvalidInput)
	}
	if req.TargetCommit == "" {
		return fmt.Errorf("%w: empty target commit", ErrInvalidInput)
	}
	if req.Strategy == "" {
		req.Strategy = PreferNew
	}
	if !req.Strategy.Valid() {
		return fmt.Errorf("%w: unknown conflict strategy %q", ErrInvalidInput, req.Strategy)
	}
	if req.Mode == "" {
		req.Mode = model.ModeIncremental
	}
	var missing []string
	for _, f := range req.BaselineFindings {
		if _, ok := req.Relocations[f.ID]; !ok {
			missing = append(missing, f.ID)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrIncompleteRelocations, missing)
	}
	return nil
}
