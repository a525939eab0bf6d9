// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cascade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relens-ai/relens/services/relens/graph"
	"github.com/relens-ai/relens/services/relens/model"
)

const testProject = "/test/project"

// buildGraph wires chunk nodes and weighted IMPORTS edges.
func buildGraph(t *testing.T, edges [][3]interface{}) *graph.Store {
	t.Helper()
	s := graph.NewStore()
	for _, e := range edges {
		err := s.UpsertEdge(testProject, model.Edge{
			Source: e[0].(string),
			Target: e[1].(string),
			Type:   model.EdgeImports,
			Weight: float64(e[2].(int)),
		})
		require.NoError(t, err)
	}
	return s
}

func TestPropagate_DepthZeroIsEmpty(t *testing.T) {
	s := buildGraph(t, [][3]interface{}{{"A", "B", 3}})
	p := NewPropagator(s)

	opts := DefaultOptions()
	opts.MaxDepth = 0
	opts.EnableSemanticRipple = false

	result, err := p.Propagate(context.Background(), testProject, []string{"A"}, opts)
	require.NoError(t, err)

	assert.Empty(t, result.CascadeAffected)
	assert.Equal(t, []string{"A"}, result.AllAffected)
	assert.Equal(t, 0, result.Stats.MaxDepthReached)
}

func TestPropagate_WeightThreshold(t *testing.T) {
	// A->B weight 3, B->C weight 1, min weight 2: C is too weak to reach.
	s := buildGraph(t, [][3]interface{}{
		{"A", "B", 3},
		{"B", "C", 1},
	})
	p := NewPropagator(s)

	opts := DefaultOptions()
	opts.EnableSemanticRipple = false

	result, err := p.Propagate(context.Background(), testProject, []string{"A"}, opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"B"}, result.CascadeAffected)
	assert.Equal(t, []string{"A", "B"}, result.AllAffected)
}

func TestPropagate_MonotonicSaturation(t *testing.T) {
	// Chain A->B->C->D; past the graph diameter the closure stops growing.
	s := buildGraph(t, [][3]interface{}{
		{"A", "B", 3},
		{"B", "C", 3},
		{"C", "D", 3},
	})
	p := NewPropagator(s)

	var saturated []string
	for _, depth := range []int{3, 5, 10} {
		opts := DefaultOptions()
		opts.MaxDepth = depth
		opts.EnableSemanticRipple = false

		result, err := p.Propagate(context.Background(), testProject, []string{"A"}, opts)
		require.NoError(t, err)
		if saturated == nil {
			saturated = result.AllAffected
		}
		assert.Equal(t, saturated, result.AllAffected, "depth %d changed the closure", depth)
	}
	assert.ElementsMatch(t, []string{"A", "B", "C", "D"}, saturated)
}

func TestPropagate_Deterministic(t *testing.T) {
	s := buildGraph(t, [][3]interface{}{
		{"A", "B", 3},
		{"A", "C", 3},
		{"B", "D", 3},
		{"C", "D", 3}, // D reachable via two equal-depth paths
	})
	p := NewPropagator(s)

	opts := DefaultOptions()
	opts.EnableSemanticRipple = false

	first, err := p.Propagate(context.Background(), testProject, []string{"A"}, opts)
	require.NoError(t, err)
	second, err := p.Propagate(context.Background(), testProject, []string{"A"}, opts)
	require.NoError(t, err)

	assert.Equal(t, first.AllAffected, second.AllAffected)
	assert.Equal(t, first.Chains, second.Chains)

	// Ties keep the first path discovered: A->B->D, not A->C->D.
	for _, chain := range first.Chains {
		if chain.AffectedChunk == "D" {
			assert.Equal(t, []string{"A", "B", "D"}, chain.Path)
		}
	}
}

func TestPropagate_ChainRecordsPathAndEdgeTypes(t *testing.T) {
	s := buildGraph(t, [][3]interface{}{
		{"A", "B", 3},
		{"B", "C", 3},
	})
	p := NewPropagator(s)

	opts := DefaultOptions()
	opts.EnableSemanticRipple = false

	result, err := p.Propagate(context.Background(), testProject, []string{"A"}, opts)
	require.NoError(t, err)
	require.Len(t, result.Chains, 2)

	c := result.Chains[1]
	assert.Equal(t, "A", c.SourceChunk)
	assert.Equal(t, "C", c.AffectedChunk)
	assert.Equal(t, []string{"A", "B", "C"}, c.Path)
	assert.Equal(t, []model.EdgeType{model.EdgeImports, model.EdgeImports}, c.EdgeTypes)
	assert.Equal(t, 2, c.Depth)
}

func TestPropagate_SemanticRipple(t *testing.T) {
	s := buildGraph(t, [][3]interface{}{{"A", "B", 3}})
	require.NoError(t, s.UpsertEdge(testProject, model.Edge{
		Source: "B", Target: "S1", Type: model.EdgeSimilarTo, Confidence: 0.9,
	}))
	require.NoError(t, s.UpsertEdge(testProject, model.Edge{
		Source: "B", Target: "S2", Type: model.EdgeSimilarTo, Confidence: 0.5,
	}))
	p := NewPropagator(s)

	result, err := p.Propagate(context.Background(), testProject, []string{"A"}, DefaultOptions())
	require.NoError(t, err)

	// S1 passes the 0.8 threshold, S2 does not; the semantic set stays
	// disjoint from the cascade set.
	assert.Equal(t, []string{"S1"}, result.SemanticAffected)
	assert.Equal(t, []string{"B"}, result.CascadeAffected)
	assert.Equal(t, []string{"A", "B", "S1"}, result.AllAffected)
}

func TestPropagate_NodeBudgetTruncates(t *testing.T) {
	s := buildGraph(t, [][3]interface{}{
		{"A", "B", 3},
		{"A", "C", 3},
		{"A", "D", 3},
	})
	p := NewPropagator(s)

	opts := DefaultOptions()
	opts.EnableSemanticRipple = false
	opts.NodeBudget = 2 // dirty chunk plus one discovery

	result, err := p.Propagate(context.Background(), testProject, []string{"A"}, opts)
	require.NoError(t, err)

	assert.True(t, result.Stats.Truncated)
	assert.Len(t, result.CascadeAffected, 1)
}

func TestPropagate_Validation(t *testing.T) {
	p := NewPropagator(graph.NewStore())

	opts := DefaultOptions()
	opts.MaxDepth = 11
	_, err := p.Propagate(context.Background(), testProject, []string{"A"}, opts)
	assert.ErrorIs(t, err, ErrInvalidInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Propagate(ctx, testProject, []string{"A"}, DefaultOptions())
	assert.ErrorIs(t, err, ErrContextCanceled)
}

func TestPropagate_DuplicateDirtyChunks(t *testing.T) {
	s := buildGraph(t, [][3]interface{}{{"A", "B", 3}})
	p := NewPropagator(s)

	opts := DefaultOptions()
	opts.EnableSemanticRipple = false

	result, err := p.Propagate(context.Background(), testProject, []string{"A", "A"}, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, result.AllAffected)
}
