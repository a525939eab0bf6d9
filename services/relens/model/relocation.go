// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package model

// =============================================================================
// Relocation Outcome
// =============================================================================

// RelocationStatus is the fate of a finding after relocation.
type RelocationStatus string

const (
	// RelocationPreserved means the finding is unchanged at its location.
	RelocationPreserved RelocationStatus = "PRESERVED"

	// RelocationRelocated means the finding moved to a new location.
	RelocationRelocated RelocationStatus = "RELOCATED"

	// RelocationStale means no strategy qualified; recoverable, the
	// finding may re-qualify on a later attempt with other parameters.
	RelocationStale RelocationStatus = "STALE"

	// RelocationOrphaned means the finding is terminally gone: its file
	// was deleted or the content is irrecoverable.
	RelocationOrphaned RelocationStatus = "ORPHANED"
)

// String returns the string representation of the status.
func (s RelocationStatus) String() string {
	return string(s)
}

// Terminal reports whether the status is unrecoverable.
func (s RelocationStatus) Terminal() bool {
	return s == RelocationOrphaned
}

// RelocationMethod names the mechanism that produced a relocation outcome.
type RelocationMethod string

const (
	// MethodExactMatch is an unchanged snippet hash at the original location.
	MethodExactMatch RelocationMethod = "EXACT_MATCH"

	// MethodLineDrift is a hunk-derived line shift with matching content.
	MethodLineDrift RelocationMethod = "LINE_DRIFT"

	// MethodSemanticSameFile is a similarity match within the same file.
	MethodSemanticSameFile RelocationMethod = "SEMANTIC_SAME_FILE"

	// MethodSemanticOtherFile is a similarity match in another file.
	MethodSemanticOtherFile RelocationMethod = "SEMANTIC_OTHER_FILE"

	// MethodHashGlobalSearch is an exact snippet hash found codebase-wide.
	MethodHashGlobalSearch RelocationMethod = "HASH_GLOBAL_SEARCH"

	// MethodFuzzyContext is a context-window line hash match.
	MethodFuzzyContext RelocationMethod = "FUZZY_CONTEXT"

	// MethodContentChanged marks the stale fallthrough.
	MethodContentChanged RelocationMethod = "CONTENT_CHANGED"

	// MethodFileDeleted marks orphaning due to a deleted file.
	MethodFileDeleted RelocationMethod = "FILE_DELETED"
)

// String returns the string representation of the method.
func (m RelocationMethod) String() string {
	return string(m)
}

// StrategyAttempt records one strategy's outcome in the audit trail.
type StrategyAttempt struct {
	// Strategy is the name of the strategy attempted.
	Strategy string `json:"strategy"`

	// Method is the relocation method the strategy reported, if any.
	Method RelocationMethod `json:"method,omitempty"`

	// Confidence is the confidence the strategy produced.
	Confidence float64 `json:"confidence"`

	// Accepted is true for the attempt that satisfied the confidence bar.
	Accepted bool `json:"accepted"`

	// Ambiguous is set when the strategy found multiple equally strong
	// candidates. Ambiguity is low confidence, not an error, but it must
	// be distinguishable in the trace.
	Ambiguous bool `json:"ambiguous,omitempty"`

	// Error records a strategy failure. Failures never abort the pipeline.
	Error string `json:"error,omitempty"`
}

// RelocationResult is the per-finding outcome of the relocation pipeline.
//
// The pipeline never mutates the original finding; persistence of the
// outcome is the caller's concern.
type RelocationResult struct {
	// FindingID is the finding the result describes.
	FindingID string `json:"finding_id"`

	// Status is the finding's fate.
	Status RelocationStatus `json:"status"`

	// Method is the mechanism that produced the outcome.
	Method RelocationMethod `json:"method"`

	// Confidence is in [0,1].
	Confidence float64 `json:"confidence"`

	// Drift is the net line delta for LINE_DRIFT outcomes.
	Drift int `json:"drift,omitempty"`

	// NewLocation is set for RELOCATED outcomes.
	NewLocation *Location `json:"new_location,omitempty"`

	// StrategiesTried is the ordered audit trail of every attempt.
	StrategiesTried []StrategyAttempt `json:"strategies_tried"`
}
