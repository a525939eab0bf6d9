// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cascade expands a set of dirty chunks into the full impacted set
// via bounded breadth-first traversal over the impact graph, optionally
// extended by semantic-similarity ripple.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relens-ai/relens/services/relens/graph"
	"github.com/relens-ai/relens/services/relens/model"
)

// Traversal bounds.
const (
	// DefaultMaxDepth is the default BFS depth bound.
	DefaultMaxDepth = 3

	// MaxAllowedDepth caps the depth bound.
	MaxAllowedDepth = 10

	// DefaultMinEdgeWeight is the weight below which an edge is too weak
	// to cascade.
	DefaultMinEdgeWeight = 2

	// DefaultSimilarityThreshold is the minimum SIMILAR_TO confidence for
	// semantic ripple.
	DefaultSimilarityThreshold = 0.8

	// DefaultNodeBudget bounds a single propagation run.
	DefaultNodeBudget = 100_000

	// contextCheckInterval is how often to check context during traversal.
	contextCheckInterval = 100
)

// Sentinel errors for propagation.
var (
	// ErrInvalidInput indicates malformed propagation parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrContextCanceled indicates the context was canceled before
	// traversal could begin.
	ErrContextCanceled = errors.New("context canceled")
)

// Options configures one propagation run.
type Options struct {
	// MaxDepth is the BFS depth bound, 0-10. Zero means no cascade
	// traversal at all (only dirty chunks in the result).
	MaxDepth int

	// EdgeTypes are the types followed by cascade traversal.
	EdgeTypes []model.EdgeType

	// MinEdgeWeight filters out weak edges. Unweighted edges always pass.
	MinEdgeWeight float64

	// EnableSemanticRipple turns on the SIMILAR_TO second pass.
	EnableSemanticRipple bool

	// SimilarityThreshold is the minimum SIMILAR_TO edge confidence.
	SimilarityThreshold float64

	// NodeBudget aborts traversal with partial results when exceeded.
	NodeBudget int
}

// DefaultOptions returns the default traversal options.
func DefaultOptions() Options {
	return Options{
		MaxDepth:             DefaultMaxDepth,
		EdgeTypes:            model.DefaultCascadeEdgeTypes(),
		MinEdgeWeight:        DefaultMinEdgeWeight,
		EnableSemanticRipple: true,
		SimilarityThreshold:  DefaultSimilarityThreshold,
		NodeBudget:           DefaultNodeBudget,
	}
}

// Validate checks option bounds.
func (o *Options) Validate() error {
	if o.MaxDepth < 0 || o.MaxDepth > MaxAllowedDepth {
		return fmt.Errorf("%w: max_depth %d out of [0,%d]", ErrInvalidInput, o.MaxDepth, MaxAllowedDepth)
	}
	if o.SimilarityThreshold < 0 || o.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity_threshold %v out of [0,1]", ErrInvalidInput, o.SimilarityThreshold)
	}
	if o.NodeBudget < 0 {
		return fmt.Errorf("%w: node_budget must be non-negative", ErrInvalidInput)
	}
	return nil
}

// Chain records how one affected chunk was reached.
type Chain struct {
	// SourceChunk is the frontier-0 origin.
	SourceChunk string `json:"source_chunk"`

	// AffectedChunk is the node this chain reaches.
	AffectedChunk string `json:"affected_chunk"`

	// Path is the full node sequence from SourceChunk to AffectedChunk.
	Path []string `json:"path"`

	// EdgeTypes is the multiset of edge types along Path.
	EdgeTypes []model.EdgeType `json:"edge_types"`

	// Depth is the BFS depth at which the chunk was discovered.
	Depth int `json:"depth"`
}

// Stats summarizes one propagation run.
type Stats struct {
	// NodesVisited counts distinct nodes marked visited.
	NodesVisited int `json:"nodes_visited"`

	// EdgesTraversed counts edges enumerated during traversal.
	EdgesTraversed int `json:"edges_traversed"`

	// MaxDepthReached is the deepest frontier actually expanded into.
	MaxDepthReached int `json:"max_depth_reached"`

	// Truncated is true when the node budget or cancellation cut the
	// run short; results are partial but well formed.
	Truncated bool `json:"truncated"`
}

// Result is the output of one propagation run.
type Result struct {
	// CascadeAffected are nodes reached via structural edges, in
	// discovery order. Dirty chunks are not included.
	CascadeAffected []string `json:"cascade_affected"`

	// SemanticAffected are nodes reached via semantic ripple. Disjoint
	// from CascadeAffected and the dirty set.
	SemanticAffected []string `json:"semantic_affected"`

	// AllAffected is dirty ∪ cascade ∪ semantic.
	AllAffected []string `json:"all_affected"`

	// Chains are the per-chunk discovery records for cascade traversal.
	Chains []Chain `json:"cascade_chains"`

	// Stats summarizes the run.
	Stats Stats `json:"stats"`
}

// Propagator runs cascade propagation over the impact graph store.
//
// # Thread Safety
//
// Propagator is stateless and safe for concurrent use; traversal is
// read-only against the graph.
type Propagator struct {
	store *graph.Store
}

// NewPropagator creates a propagator over the given store.
func NewPropagator(store *graph.Store) *Propagator {
	return &Propagator{store: store}
}

// Propagate runs multi-source BFS from the dirty chunks.
//
// # Description
//
// Dirty chunks form frontier 0 and are treated as already visited. At each
// depth below MaxDepth, every frontier node's neighbors reachable through
// an allowed edge type with weight >= MinEdgeWeight are enumerated; each
// unvisited neighbor is marked visited, appended to the cascade set, and a
// chain records the full path from its frontier-0 origin. A node reachable
// via multiple equal-depth paths keeps the first path discovered; neighbor
// order is the graph's insertion order, so results are deterministic for
// an unchanged graph.
//
// Semantic ripple, when enabled, runs one additional pass following
// SIMILAR_TO edges whose confidence meets the threshold, from everything
// reached so far, into a separate semantic set.
//
// # Outputs
//
//   - *Result: affected sets, chains, stats. Partial (Stats.Truncated)
//     when the node budget is exceeded or the context is canceled
//     mid-traversal; traversal never loops since visited strictly grows.
func (p *Propagator) Propagate(ctx context.Context, project string, dirtyChunks []string, opts Options) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, ErrContextCanceled
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ctx, span := startPropagateSpan(ctx, project, len(dirtyChunks), opts.MaxDepth)
	defer span.End()
	start := time.Now()

	budget := opts.NodeBudget
	if budget == 0 {
		budget = DefaultNodeBudget
	}

	result := &Result{
		CascadeAffected:  []string{},
		SemanticAffected: []string{},
		Chains:           []Chain{},
	}

	visited := make(map[string]bool, len(dirtyChunks))
	chainByNode := make(map[string]Chain, len(dirtyChunks))
	frontier := make([]string, 0, len(dirtyChunks))
	for _, id := range dirtyChunks {
		if visited[id] {
			continue
		}
		visited[id] = true
		chainByNode[id] = Chain{SourceChunk: id, AffectedChunk: id, Path: []string{id}}
		frontier = append(frontier, id)
	}
	result.Stats.NodesVisited = len(frontier)

	checkCounter := 0
	truncate := func() {
		result.Stats.Truncated = true
	}

bfs:
	for depth := 0; depth < opts.MaxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, nodeID := range frontier {
			checkCounter++
			if checkCounter%contextCheckInterval == 0 && ctx.Err() != nil {
				truncate()
				break bfs
			}

			for _, nbr := range p.store.Neighbors(project, nodeID, opts.EdgeTypes, opts.MinEdgeWeight) {
				result.Stats.EdgesTraversed++
				if visited[nbr.ID] {
					continue
				}
				if result.Stats.NodesVisited >= budget {
					truncate()
					break bfs
				}
				visited[nbr.ID] = true
				result.Stats.NodesVisited++

				parent := chainByNode[nodeID]
				chain := Chain{
					SourceChunk:   parent.SourceChunk,
					AffectedChunk: nbr.ID,
					Path:          appendPath(parent.Path, nbr.ID),
					EdgeTypes:     append(append([]model.EdgeType{}, parent.EdgeTypes...), nbr.Edge.Type),
					Depth:         depth + 1,
				}
				chainByNode[nbr.ID] = chain

				result.CascadeAffected = append(result.CascadeAffected, nbr.ID)
				result.Chains = append(result.Chains, chain)
				result.Stats.MaxDepthReached = depth + 1
				next = append(next, nbr.ID)
			}
		}
		frontier = next
	}

	if opts.EnableSemanticRipple && !result.Stats.Truncated {
		p.semanticRipple(ctx, project, dirtyChunks, opts, visited, result)
	}

	// all_affected = dirty ∪ cascade ∪ semantic, deduplicated, in that order.
	seen := make(map[string]bool)
	for _, set := range [][]string{dirtyChunks, result.CascadeAffected, result.SemanticAffected} {
		for _, id := range set {
			if !seen[id] {
				seen[id] = true
				result.AllAffected = append(result.AllAffected, id)
			}
		}
	}

	recordPropagation(ctx, time.Since(start).Seconds(), result.Stats)
	return result, nil
}

// semanticRipple follows SIMILAR_TO edges from everything reached so far
// into a separate semantic set. Single hop: similarity is not treated as
// transitive.
func (p *Propagator) semanticRipple(ctx context.Context, project string, dirty []string, opts Options, visited map[string]bool, result *Result) {
	origins := append(append([]string{}, dirty...), result.CascadeAffected...)
	semanticSeen := make(map[string]bool)

	for _, nodeID := range origins {
		if ctx.Err() != nil {
			result.Stats.Truncated = true
			return
		}
		for _, nbr := range p.store.Neighbors(project, nodeID, []model.EdgeType{model.EdgeSimilarTo}, 0) {
			result.Stats.EdgesTraversed++
			if nbr.Edge.Confidence < opts.SimilarityThreshold {
				continue
			}
			if visited[nbr.ID] || semanticSeen[nbr.ID] {
				continue
			}
			semanticSeen[nbr.ID] = true
			result.Stats.NodesVisited++
			result.SemanticAffected = append(result.SemanticAffected, nbr.ID)
		}
	}
}

// appendPath copies the parent path before extending it so sibling chains
// do not alias the same backing array.
func appendPath(parent []string, node string) []string {
	path := make([]string, 0, len(parent)+1)
	path = append(path, parent...)
	return append(path, node)
}
