// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph implements the impact graph store: typed, weighted edges
// between code units, findings, semantic anchors, and chunks.
//
// # Description
//
// The store is a pure data structure with a mutation API. All operations
// are scoped by project path; node property updates may additionally be
// scoped by the commit they correspond to, allowing one logical node to
// carry commit-scoped property snapshots.
//
// Edge identity is the tuple (source, target, type). Re-adding an identical
// tuple overwrites the stored edge without duplicating it, so upserts are
// idempotent and at-least-once delivery from retried writers is safe.
//
// # Thread Safety
//
// Store is safe for concurrent use. Mutations take a write lock; queries
// take a read lock.
package graph

import (
	"fmt"
	"sync"

	"github.com/relens-ai/relens/services/relens/model"
)

// Neighbor pairs a neighboring node id with the edge reaching it.
type Neighbor struct {
	ID   string
	Edge model.Edge
}

// projectGraph holds one project's nodes and edges.
//
// Adjacency lists store edge keys in insertion order so that traversal
// order is deterministic within one run. Overwriting an edge keeps its
// original position.
type projectGraph struct {
	nodes map[string]model.Node
	edges map[string]model.Edge

	outgoing map[string][]string // source id -> ordered edge keys
	incoming map[string][]string // target id -> ordered edge keys

	// props holds commit-scoped property snapshots: commit -> node -> props.
	props map[string]map[string]map[string]string
}

func newProjectGraph() *projectGraph {
	return &projectGraph{
		nodes:    make(map[string]model.Node),
		edges:    make(map[string]model.Edge),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
		props:    make(map[string]map[string]map[string]string),
	}
}

// Store is the impact graph store for all projects.
type Store struct {
	mu       sync.RWMutex
	projects map[string]*projectGraph
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{projects: make(map[string]*projectGraph)}
}

func (s *Store) project(path string) *projectGraph {
	pg, ok := s.projects[path]
	if !ok {
		pg = newProjectGraph()
		s.projects[path] = pg
	}
	return pg
}

// UpsertNode adds or replaces a node in the project scope.
//
// # Description
//
// If commit is non-empty, the node's Props are additionally recorded as a
// commit-scoped snapshot. Re-applying the same upsert is observationally
// a no-op.
//
// # Outputs
//
//   - error: ErrInvalidNode if the id is empty or the type unknown.
func (s *Store) UpsertNode(project, commit string, node model.Node) error {
	if node.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidNode)
	}
	if !node.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidNode, node.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pg := s.project(project)
	pg.nodes[node.ID] = node

	if commit != "" && len(node.Props) > 0 {
		byNode, ok := pg.props[commit]
		if !ok {
			byNode = make(map[string]map[string]string)
			pg.props[commit] = byNode
		}
		snap := make(map[string]string, len(node.Props))
		for k, v := range node.Props {
			snap[k] = v
		}
		byNode[node.ID] = snap
	}
	return nil
}

// RemoveNode removes a node and cascades removal of every edge touching it.
func (s *Store) RemoveNode(project, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pg, ok := s.projects[project]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if _, ok := pg.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	for _, key := range append(append([]string{}, pg.outgoing[id]...), pg.incoming[id]...) {
		pg.dropEdge(key)
	}
	delete(pg.outgoing, id)
	delete(pg.incoming, id)
	delete(pg.nodes, id)
	for _, byNode := range pg.props {
		delete(byNode, id)
	}
	return nil
}

// UpsertEdge adds or replaces an edge keyed by (source, target, type).
// Last write wins; the edge keeps its original traversal position.
func (s *Store) UpsertEdge(project string, edge model.Edge) error {
	if edge.Source == "" || edge.Target == "" {
		return fmt.Errorf("%w: missing endpoint", ErrInvalidEdge)
	}
	if !edge.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEdge, edge.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pg := s.project(project)
	key := edge.Key()
	if _, exists := pg.edges[key]; !exists {
		pg.outgoing[edge.Source] = append(pg.outgoing[edge.Source], key)
		pg.incoming[edge.Target] = append(pg.incoming[edge.Target], key)
	}
	pg.edges[key] = edge
	return nil
}

// RemoveEdge removes the edge identified by (source, target, edgeType).
func (s *Store) RemoveEdge(project, source, target string, edgeType model.EdgeType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pg, ok := s.projects[project]
	if !ok {
		return ErrEdgeNotFound
	}
	key := model.Edge{Source: source, Target: target, Type: edgeType}.Key()
	if _, ok := pg.edges[key]; !ok {
		return ErrEdgeNotFound
	}
	pg.dropEdge(key)
	return nil
}

// dropEdge removes an edge and its adjacency entries. Caller holds the lock.
func (pg *projectGraph) dropEdge(key string) {
	edge, ok := pg.edges[key]
	if !ok {
		return
	}
	delete(pg.edges, key)
	pg.outgoing[edge.Source] = removeKey(pg.outgoing[edge.Source], key)
	pg.incoming[edge.Target] = removeKey(pg.incoming[edge.Target], key)
}

func removeKey(keys []string, key string) []string {
	for i, k := range keys {
		if k == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}

// BulkItemResult reports the outcome of one item in a bulk apply.
type BulkItemResult struct {
	// Kind is "node" or "edge".
	Kind string

	// Key identifies the item (node id or edge key).
	Key string

	// Err is non-nil when the item failed to apply.
	Err error
}

// BulkResult summarizes a best-effort bulk apply.
type BulkResult struct {
	// Applied is the number of items applied successfully.
	Applied int

	// Failed holds per-item outcomes for items that did not apply.
	Failed []BulkItemResult
}

// BulkApply applies nodes then edges, best effort.
//
// # Description
//
// This is an index update, not a transaction: partial failures are
// reported per item and already-applied items are not rolled back.
func (s *Store) BulkApply(project, commit string, nodes []model.Node, edges []model.Edge) BulkResult {
	var result BulkResult
	for _, n := range nodes {
		if err := s.UpsertNode(project, commit, n); err != nil {
			result.Failed = append(result.Failed, BulkItemResult{Kind: "node", Key: n.ID, Err: err})
			continue
		}
		result.Applied++
	}
	for _, e := range edges {
		if err := s.UpsertEdge(project, e); err != nil {
			result.Failed = append(result.Failed, BulkItemResult{Kind: "edge", Key: e.Key(), Err: err})
			continue
		}
		result.Applied++
	}
	return result
}

// GetNode returns the node with the given id.
func (s *Store) GetNode(project, id string) (model.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pg, ok := s.projects[project]
	if !ok {
		return model.Node{}, false
	}
	node, ok := pg.nodes[id]
	return node, ok
}

// NodeProps returns the commit-scoped property snapshot for a node, falling
// back to the node's live properties when no snapshot exists for the commit.
func (s *Store) NodeProps(project, commit, id string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pg, ok := s.projects[project]
	if !ok {
		return nil
	}
	if byNode, ok := pg.props[commit]; ok {
		if snap, ok := byNode[id]; ok {
			return snap
		}
	}
	if node, ok := pg.nodes[id]; ok {
		return node.Props
	}
	return nil
}

// Neighbors returns the ordered outgoing neighbors of a node.
//
// # Description
//
// Edges are returned in insertion order, filtered by edge type and minimum
// weight. An unweighted edge (weight 0) always passes the weight filter.
// Passing nil edgeTypes admits every type.
//
// # Outputs
//
//   - []Neighbor: ordered (neighbor id, edge) pairs. Empty when the node
//     is unknown; reads never error on missing nodes.
func (s *Store) Neighbors(project, nodeID string, edgeTypes []model.EdgeType, minWeight float64) []Neighbor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pg, ok := s.projects[project]
	if !ok {
		return nil
	}

	var typeSet map[model.EdgeType]struct{}
	if len(edgeTypes) > 0 {
		typeSet = make(map[model.EdgeType]struct{}, len(edgeTypes))
		for _, t := range edgeTypes {
			typeSet[t] = struct{}{}
		}
	}

	var out []Neighbor
	for _, key := range pg.outgoing[nodeID] {
		edge, ok := pg.edges[key]
		if !ok {
			continue
		}
		if typeSet != nil {
			if _, ok := typeSet[edge.Type]; !ok {
				continue
			}
		}
		if edge.Weight != 0 && edge.Weight < minWeight {
			continue
		}
		out = append(out, Neighbor{ID: edge.Target, Edge: edge})
	}
	return out
}

// NodeCount returns the number of nodes in a project's graph.
func (s *Store) NodeCount(project string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pg, ok := s.projects[project]
	if !ok {
		return 0
	}
	return len(pg.nodes)
}

// EdgeCount returns the number of edges in a project's graph.
func (s *Store) EdgeCount(project string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pg, ok := s.projects[project]
	if !ok {
		return 0
	}
	return len(pg.edges)
}
