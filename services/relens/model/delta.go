// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package model

// =============================================================================
// File Changes
// =============================================================================

// ChangeType categorizes a changed file in a commit-to-commit diff.
type ChangeType string

const (
	// ChangeAdded is a file that did not exist in the baseline.
	ChangeAdded ChangeType = "ADDED"

	// ChangeModified is a file with content changes.
	ChangeModified ChangeType = "MODIFIED"

	// ChangeDeleted is a file removed since the baseline.
	ChangeDeleted ChangeType = "DELETED"

	// ChangeRenamed is a file that moved; OldPath carries the origin.
	ChangeRenamed ChangeType = "RENAMED"
)

// String returns the string representation of the change type.
func (t ChangeType) String() string {
	return string(t)
}

// Hunk is one contiguous change region in a file diff.
type Hunk struct {
	// OldStart is the starting line in the baseline file (1-based).
	OldStart int `json:"old_start"`

	// OldCount is the number of baseline lines covered.
	OldCount int `json:"old_count"`

	// NewStart is the starting line in the target file (1-based).
	NewStart int `json:"new_start"`

	// NewCount is the number of target lines covered.
	NewCount int `json:"new_count"`
}

// LineShift is the net lines this hunk adds (negative when it removes).
func (h Hunk) LineShift() int {
	return h.NewCount - h.OldCount
}

// FileChange is one changed file with its hunks.
type FileChange struct {
	// Path is the file path in the target commit. For deletions it is
	// the baseline path.
	Path string `json:"path"`

	// OldPath is the baseline path for renames.
	OldPath string `json:"old_path,omitempty"`

	// Type is the change type.
	Type ChangeType `json:"type"`

	// Hunks are the change regions. Empty for pure renames.
	Hunks []Hunk `json:"hunks,omitempty"`
}

// =============================================================================
// Delta Manifest
// =============================================================================

// Recommendation is the delta computer's advice on how to re-analyze.
type Recommendation string

const (
	// RecommendIncremental advises re-analyzing only affected chunks.
	RecommendIncremental Recommendation = "INCREMENTAL"

	// RecommendFull advises a full re-analysis; incremental would cost
	// more than a full pass, or impact could not be bounded reliably.
	RecommendFull Recommendation = "FULL"

	// RecommendNoChanges means nothing changed between the commits.
	RecommendNoChanges Recommendation = "NO_CHANGES"
)

// String returns the string representation of the recommendation.
func (r Recommendation) String() string {
	return string(r)
}

// DeltaManifest is the computed impact of moving from a baseline snapshot
// to a target commit. It is ephemeral: never persisted as a versioned
// entity, only handed between the delta computer, relocation pipeline,
// and merge engine.
type DeltaManifest struct {
	// BaselineID is the baseline snapshot id.
	BaselineID string `json:"baseline_id"`

	// TargetCommit is the commit the delta was computed against.
	TargetCommit string `json:"target_commit"`

	// ChangedFiles are the file-level changes with hunks.
	ChangedFiles []FileChange `json:"changed_files"`

	// DirectChunks are chunks with a member file in ChangedFiles.
	DirectChunks []string `json:"direct_chunks"`

	// CascadeChunks are chunks reached through cascade propagation.
	CascadeChunks []string `json:"cascade_chunks"`

	// SemanticChunks are chunks reached through semantic ripple.
	SemanticChunks []string `json:"semantic_chunks"`

	// AllAffected is the union of direct, cascade, and semantic chunks.
	AllAffected []string `json:"all_affected"`

	// Recommendation advises the analysis mode.
	Recommendation Recommendation `json:"recommendation"`

	// EstimatedSavings is the fraction of chunks NOT affected, in [0,1].
	EstimatedSavings float64 `json:"estimated_savings"`
}

// ChangeForFile returns the change entry for a path, if any. Renames are
// matched on both old and new paths.
func (m *DeltaManifest) ChangeForFile(path string) (FileChange, bool) {
	for _, fc := range m.ChangedFiles {
		if fc.Path == path || (fc.Type == ChangeRenamed && fc.OldPath == path) {
			return fc, true
		}
	}
	return FileChange{}, false
}

// FileDeleted reports whether path was deleted since the baseline.
func (m *DeltaManifest) FileDeleted(path string) bool {
	fc, ok := m.ChangeForFile(path)
	return ok && fc.Type == ChangeDeleted
}
