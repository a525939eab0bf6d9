// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package model defines the shared data model for incremental re-analysis:
// graph nodes and edges, chunks, findings, envelopes, snapshots, branches,
// and trust scores.
//
// # Description
//
// Entities reference each other by id only. Chunks and findings are never
// embedded by value across entities; snapshots own their chunk manifest but
// refer to findings through envelope ids. Snapshots and envelopes are
// immutable once stored - corrections are expressed as new records.
//
// # Thread Safety
//
// Types in this package are plain values. They are safe for concurrent reads
// after construction; callers must not mutate shared instances.
package model

import (
	"fmt"
	"time"
)

// =============================================================================
// Node Types
// =============================================================================

// NodeType categorizes impact graph nodes.
type NodeType string

const (
	// NodeCode is a code unit (file, function, class).
	NodeCode NodeType = "CODE"

	// NodeFinding is an analysis finding anchored to a location.
	NodeFinding NodeType = "FINDING"

	// NodeSemantic is a semantic anchor produced by embedding.
	NodeSemantic NodeType = "SEMANTIC"

	// NodeChunk is an analysis unit grouping files analyzed together.
	NodeChunk NodeType = "CHUNK"
)

// String returns the string representation of the node type.
func (t NodeType) String() string {
	return string(t)
}

// Valid reports whether the node type is a known value.
func (t NodeType) Valid() bool {
	switch t {
	case NodeCode, NodeFinding, NodeSemantic, NodeChunk:
		return true
	}
	return false
}

// =============================================================================
// Edge Types
// =============================================================================

// EdgeType defines the relationship carried by an impact graph edge.
type EdgeType string

const (
	// EdgeImports indicates a code unit imports another.
	EdgeImports EdgeType = "IMPORTS"

	// EdgeCalls indicates a code unit calls another.
	EdgeCalls EdgeType = "CALLS"

	// EdgeExtends indicates a type extends another.
	EdgeExtends EdgeType = "EXTENDS"

	// EdgeImplements indicates a type implements an interface.
	EdgeImplements EdgeType = "IMPLEMENTS"

	// EdgeContains indicates structural containment (chunk contains file).
	EdgeContains EdgeType = "CONTAINS"

	// EdgeBelongsTo indicates membership (finding belongs to a chunk).
	EdgeBelongsTo EdgeType = "BELONGS_TO"

	// EdgeEvidences indicates a code unit evidences a finding.
	EdgeEvidences EdgeType = "EVIDENCES"

	// EdgeSimilarTo indicates semantic similarity; carries a confidence.
	EdgeSimilarTo EdgeType = "SIMILAR_TO"
)

// String returns the string representation of the edge type.
func (t EdgeType) String() string {
	return string(t)
}

// Valid reports whether the edge type is a known value.
func (t EdgeType) Valid() bool {
	switch t {
	case EdgeImports, EdgeCalls, EdgeExtends, EdgeImplements,
		EdgeContains, EdgeBelongsTo, EdgeEvidences, EdgeSimilarTo:
		return true
	}
	return false
}

// DefaultCascadeEdgeTypes are the edge types followed by cascade
// propagation when the caller does not specify a set.
func DefaultCascadeEdgeTypes() []EdgeType {
	return []EdgeType{EdgeImports, EdgeCalls, EdgeExtends, EdgeImplements}
}

// =============================================================================
// Node and Edge
// =============================================================================

// Node is a vertex in the impact graph.
//
// Identity is unique within a project+commit scope. Props is a bounded side
// channel for extension data; well-known facts get their own fields.
type Node struct {
	// ID is the unique node identity within the project scope.
	ID string `json:"id"`

	// Type categorizes the node.
	Type NodeType `json:"type"`

	// Label is a short human-readable name (file path, finding title).
	Label string `json:"label,omitempty"`

	// Props carries extension data. Keep it small; graph algorithms
	// never branch on Props.
	Props map[string]string `json:"props,omitempty"`
}

// Edge is a typed, weighted, directed relationship between two nodes.
//
// Edge identity is the tuple (Source, Target, Type). Re-adding an identical
// tuple overwrites the previous edge.
type Edge struct {
	// Source is the source node id.
	Source string `json:"source"`

	// Target is the target node id.
	Target string `json:"target"`

	// Type is the relationship type.
	Type EdgeType `json:"type"`

	// Weight is the significance of the edge. Zero means unweighted,
	// which cascade traversal treats as "always traverse".
	Weight float64 `json:"weight,omitempty"`

	// Confidence is set only for SIMILAR_TO edges, in [0,1].
	Confidence float64 `json:"confidence,omitempty"`

	// Primary marks the canonical edge among duplicates.
	Primary bool `json:"primary,omitempty"`
}

// Key returns the identity tuple for the edge.
func (e Edge) Key() string {
	return fmt.Sprintf("%s|%s|%s", e.Source, e.Target, e.Type)
}

// =============================================================================
// Chunks
// =============================================================================

// ChunkStatus is the analysis state of a chunk.
type ChunkStatus string

const (
	// ChunkAnalyzed indicates the chunk has been analyzed.
	ChunkAnalyzed ChunkStatus = "ANALYZED"

	// ChunkSkipped indicates the chunk was deliberately skipped.
	ChunkSkipped ChunkStatus = "SKIPPED"

	// ChunkPending indicates the chunk awaits analysis.
	ChunkPending ChunkStatus = "PENDING"
)

// String returns the string representation of the status.
func (s ChunkStatus) String() string {
	return string(s)
}

// Chunk is an analysis unit: a set of files analyzed together.
//
// A chunk is dirty when its fingerprint changes or one of its files changes.
type Chunk struct {
	// ID is the chunk identity.
	ID string `json:"id"`

	// Files are the project-relative paths grouped into this chunk.
	Files []string `json:"files"`

	// Fingerprint is the content hash over the chunk's files.
	Fingerprint string `json:"fingerprint"`

	// Status is the analysis state.
	Status ChunkStatus `json:"status"`
}

// ContainsFile reports whether path is a member of the chunk.
func (c *Chunk) ContainsFile(path string) bool {
	for _, f := range c.Files {
		if f == path {
			return true
		}
	}
	return false
}

// =============================================================================
// Findings
// =============================================================================

// ValidationStatus is the review state of a finding.
type ValidationStatus string

const (
	// ValidationPending indicates the finding has not been reviewed.
	ValidationPending ValidationStatus = "PENDING"

	// ValidationVerified indicates the finding was confirmed.
	ValidationVerified ValidationStatus = "VERIFIED"

	// ValidationPartial indicates the finding was partially confirmed.
	ValidationPartial ValidationStatus = "PARTIAL"

	// ValidationRejected indicates the finding was rejected.
	ValidationRejected ValidationStatus = "REJECTED"
)

// String returns the string representation of the status.
func (s ValidationStatus) String() string {
	return string(s)
}

// Location is a file-and-line-range source position.
type Location struct {
	// File is the project-relative path.
	File string `json:"file"`

	// StartLine is the first line of the range (1-based, inclusive).
	StartLine int `json:"start_line"`

	// EndLine is the last line of the range (inclusive).
	EndLine int `json:"end_line"`
}

// Overlaps reports whether two locations reference overlapping line
// ranges in the same file.
func (l Location) Overlaps(other Location) bool {
	if l.File != other.File {
		return false
	}
	return l.StartLine <= other.EndLine && other.StartLine <= l.EndLine
}

// String returns "file:start-end".
func (l Location) String() string {
	return fmt.Sprintf("%s:%d-%d", l.File, l.StartLine, l.EndLine)
}

// Finding is a single unit of analysis output.
type Finding struct {
	// ID is the finding identity.
	ID string `json:"id"`

	// Title is a short summary of the finding.
	Title string `json:"title,omitempty"`

	// Location is where the finding anchors in the analyzed commit.
	Location Location `json:"location"`

	// SnippetHash is the content hash of the referenced snippet.
	SnippetHash string `json:"snippet_hash"`

	// Confidence is the analyzer's confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Validation is the review state.
	Validation ValidationStatus `json:"validation"`
}

// Envelope is an immutable batch of findings produced by one agent for one
// chunk at one commit. Envelopes are append-only once stored.
type Envelope struct {
	// ID is the envelope identity.
	ID string `json:"id"`

	// Project is the project path scope.
	Project string `json:"project"`

	// ChunkID is the chunk the findings belong to.
	ChunkID string `json:"chunk_id"`

	// Commit is the commit hash the findings were produced at.
	Commit string `json:"commit"`

	// Agent identifies the producer.
	Agent string `json:"agent"`

	// Findings is the batch payload.
	Findings []Finding `json:"findings"`

	// CreatedAt is when the envelope was produced.
	CreatedAt time.Time `json:"created_at"`
}
