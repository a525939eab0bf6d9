// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package model

import (
	"math"
	"time"
)

// =============================================================================
// Analysis Mode
// =============================================================================

// AnalysisMode describes how a snapshot was produced.
type AnalysisMode string

const (
	// ModeFull is a from-scratch analysis of every chunk.
	ModeFull AnalysisMode = "FULL"

	// ModeIncremental reuses a baseline and re-analyzes only affected chunks.
	ModeIncremental AnalysisMode = "INCREMENTAL"

	// ModeRebase re-anchors a branch's findings onto a new base.
	ModeRebase AnalysisMode = "REBASE"
)

// String returns the string representation of the mode.
func (m AnalysisMode) String() string {
	return string(m)
}

// =============================================================================
// Trust Score
// =============================================================================

// TrustLevel buckets an overall trust score.
type TrustLevel string

const (
	// TrustHigh is overall >= 8.
	TrustHigh TrustLevel = "HIGH"

	// TrustMedium is overall >= 5.
	TrustMedium TrustLevel = "MEDIUM"

	// TrustLow is everything below.
	TrustLow TrustLevel = "LOW"
)

// TrustScore quantifies the reliability of a snapshot's findings.
//
// TrustScore is derived, never independently settable. Components are each
// in [0,1]; Overall is in [0,10] with one decimal of precision.
type TrustScore struct {
	// Overall is the composite score in [0,10].
	Overall float64 `json:"overall"`

	// Level is the thresholded bucket of Overall.
	Level TrustLevel `json:"level"`

	// Coverage is the fraction of baseline+new findings that survived.
	Coverage float64 `json:"coverage"`

	// Freshness reflects whether new findings arrived this pass.
	Freshness float64 `json:"freshness"`

	// Confidence is 1 minus the fraction lost to stale/orphaned findings.
	Confidence float64 `json:"confidence"`
}

// LevelFor returns the trust level bucket for an overall score.
func LevelFor(overall float64) TrustLevel {
	switch {
	case overall >= 8:
		return TrustHigh
	case overall >= 5:
		return TrustMedium
	default:
		return TrustLow
	}
}

// ComputeTrustScore derives a trust score from merge counts.
//
// # Description
//
// coverage = (preserved+relocated+new)/total, freshness = 0.9 when new
// findings exist and 0.7 otherwise, confidence = 1-(stale+orphaned)/total,
// overall = round((0.4*coverage + 0.3*freshness + 0.3*confidence)*10, 1).
// total counts baseline findings plus new ones. A merge with nothing to
// merge (total == 0) is trivially trustworthy and scores 10/HIGH.
func ComputeTrustScore(preserved, relocated, stale, orphaned, added int) TrustScore {
	total := preserved + relocated + stale + orphaned + added
	if total == 0 {
		return TrustScore{
			Overall:    10,
			Level:      TrustHigh,
			Coverage:   1,
			Freshness:  1,
			Confidence: 1,
		}
	}

	coverage := float64(preserved+relocated+added) / float64(total)
	freshness := 0.7
	if added > 0 {
		freshness = 0.9
	}
	confidence := 1 - float64(stale+orphaned)/float64(total)

	overall := math.Round((0.4*coverage+0.3*freshness+0.3*confidence)*10*10) / 10

	return TrustScore{
		Overall:    overall,
		Level:      LevelFor(overall),
		Coverage:   coverage,
		Freshness:  freshness,
		Confidence: confidence,
	}
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is an immutable, versioned record of one analysis run.
//
// Once created, a snapshot's fields never change; corrections are expressed
// as new snapshots. The provenance chain is the ordered list of ancestor
// snapshot ids ending in the snapshot's own id, and is append-only.
type Snapshot struct {
	// ID is the snapshot identity.
	ID string `json:"id"`

	// Project is the project path scope.
	Project string `json:"project"`

	// Commit is the commit hash this snapshot describes.
	Commit string `json:"commit"`

	// Branch is the git branch the snapshot was produced on.
	Branch string `json:"branch"`

	// Mode is how the snapshot was produced.
	Mode AnalysisMode `json:"mode"`

	// BaselineID is the baseline snapshot id for incremental runs.
	// Empty for full analyses.
	BaselineID string `json:"baseline_id,omitempty"`

	// ChunkManifest is the chunk set at this commit. Owned by value.
	ChunkManifest []Chunk `json:"chunk_manifest"`

	// EnvelopeIDs reference the finding envelopes in this snapshot.
	// Envelope content lives independently and outlives any snapshot.
	EnvelopeIDs []string `json:"envelope_ids"`

	// Trust is the computed trust score.
	Trust TrustScore `json:"trust"`

	// Provenance is the append-only ancestry chain, oldest first,
	// ending in this snapshot's own id.
	Provenance []string `json:"provenance"`

	// CreatedAt is when the snapshot was created.
	CreatedAt time.Time `json:"created_at"`
}

// ChunkByID returns the manifest chunk with the given id.
func (s *Snapshot) ChunkByID(id string) (Chunk, bool) {
	for _, c := range s.ChunkManifest {
		if c.ID == id {
			return c, true
		}
	}
	return Chunk{}, false
}

// ChunksForFile returns ids of manifest chunks containing the given file.
func (s *Snapshot) ChunksForFile(path string) []string {
	var ids []string
	for _, c := range s.ChunkManifest {
		if c.ContainsFile(path) {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// =============================================================================
// Analysis Branch
// =============================================================================

// AnalysisBranch is a git-branch-scoped analysis lineage.
type AnalysisBranch struct {
	// ID is the branch identity.
	ID string `json:"id"`

	// Project is the project path scope.
	Project string `json:"project"`

	// GitBranch is the git branch name this lineage follows.
	GitBranch string `json:"git_branch"`

	// BaseBranch is the git branch this one forked from.
	BaseBranch string `json:"base_branch"`

	// ForkPoint is the commit hash where the branch diverged.
	ForkPoint string `json:"fork_point"`

	// SnapshotIDs is the ordered snapshot history, oldest first.
	SnapshotIDs []string `json:"snapshot_ids"`

	// CreatedAt is when the branch was created.
	CreatedAt time.Time `json:"created_at"`

	// Deleted marks the branch as deleted. Snapshots remain addressable.
	Deleted bool `json:"deleted,omitempty"`
}

// LatestSnapshotID returns the most recent snapshot id, or "" if none.
func (b *AnalysisBranch) LatestSnapshotID() string {
	if len(b.SnapshotIDs) == 0 {
		return ""
	}
	return b.SnapshotIDs[len(b.SnapshotIDs)-1]
}
