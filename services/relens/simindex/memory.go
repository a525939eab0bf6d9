// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// MemoryIndex is an in-memory similarity index backed by brute-force
// cosine similarity. It serves tests and single-binary deployments where
// no vector database is available.
//
// # Thread Safety
//
// Safe for concurrent use from multiple goroutines.
type MemoryIndex struct {
	embedder Embedder

	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryIndex creates an empty in-memory index. A nil embedder falls
// back to the deterministic HashEmbedder.
func NewMemoryIndex(embedder Embedder) *MemoryIndex {
	if embedder == nil {
		embedder = &HashEmbedder{}
	}
	return &MemoryIndex{
		embedder: embedder,
		records:  make(map[string]Record),
	}
}

// Embed delegates to the configured embedder.
func (m *MemoryIndex) Embed(ctx context.Context, text string) ([]float32, error) {
	recordEmbed(ctx, "memory")
	return m.embedder.Embed(ctx, text)
}

// Insert stores records, replacing any record with the same payload ID.
func (m *MemoryIndex) Insert(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, r := range records {
		if r.Payload.ID == "" {
			return fmt.Errorf("%w: record without id", ErrInvalidInput)
		}
		if len(r.Vector) == 0 {
			return fmt.Errorf("%w: record %s without vector", ErrInvalidInput, r.Payload.ID)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		m.records[r.Payload.ID] = Record{Payload: r.Payload, Vector: vec}
	}
	return nil
}

// Search scans all records, scores them by cosine similarity, filters by
// payload fields, and returns the top k in descending score order. Ties
// break on payload ID for determinism.
func (m *MemoryIndex) Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrInvalidInput)
	}
	if k <= 0 {
		k = 10
	}
	start := time.Now()

	m.mu.RLock()
	hits := make([]Hit, 0, len(m.records))
	for _, r := range m.records {
		if !filter.Matches(r.Payload) {
			continue
		}
		score := cosineSimilarity(vector, r.Vector)
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{Payload: r.Payload, Score: score})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Payload.ID < hits[j].Payload.ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	recordSearch(ctx, "memory", time.Since(start), len(hits))
	return hits, nil
}

// Delete removes the record with the given payload ID.
func (m *MemoryIndex) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidInput)
	}
	m.mu.Lock()
	delete(m.records, id)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored records.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// cosineSimilarity returns the cosine of the angle between a and b,
// clamped to [0,1]. Mismatched dimensions score zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
