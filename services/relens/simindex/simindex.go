// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package simindex provides the similarity index used by finding relocation:
// vector embedding of code snippets, nearest-neighbor search over anchored
// snippets, and payload post-filtering by project, kind, and commit.
//
// Two implementations exist: a Weaviate-backed index wrapped in a resilient
// client (circuit breaker, retry with backoff, degraded mode), and an
// in-memory index for tests and single-binary deployments.
package simindex

import (
	"context"
	"errors"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("invalid simindex input")

	// ErrIndexUnavailable is returned when the backing store cannot be
	// reached and the operation cannot be served.
	ErrIndexUnavailable = errors.New("similarity index unavailable")

	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("record not found in similarity index")
)

// -----------------------------------------------------------------------------
// Records and hits
// -----------------------------------------------------------------------------

// Payload is the metadata stored alongside each snippet vector. Relocation
// filters hits on these fields client-side after the vector search returns.
type Payload struct {
	ID          string `json:"id"`
	Project     string `json:"project"`
	Kind        string `json:"kind"`
	Commit      string `json:"commit"`
	FilePath    string `json:"filePath"`
	StartLine   int    `json:"startLine"`
	EndLine     int    `json:"endLine"`
	SnippetHash string `json:"snippetHash"`
	Snippet     string `json:"snippet"`
}

// Record is a payload plus its embedding vector, ready for insertion.
type Record struct {
	Payload Payload
	Vector  []float32
}

// Hit is a single search result. Score is a similarity in [0,1] where 1.0
// is identical.
type Hit struct {
	Payload Payload
	Score   float64
}

// Filter constrains search results by payload fields. Zero-value fields
// match everything. SameFile and ExcludeFile are mutually exclusive; when
// both are set, SameFile wins.
type Filter struct {
	Project     string
	Kind        string
	Commit      string
	SameFile    string
	ExcludeFile string
}

// Matches reports whether a payload passes the filter.
func (f Filter) Matches(p Payload) bool {
	if f.Project != "" && p.Project != f.Project {
		return false
	}
	if f.Kind != "" && p.Kind != f.Kind {
		return false
	}
	if f.Commit != "" && p.Commit != f.Commit {
		return false
	}
	if f.SameFile != "" {
		return p.FilePath == f.SameFile
	}
	if f.ExcludeFile != "" && p.FilePath == f.ExcludeFile {
		return false
	}
	return true
}

// -----------------------------------------------------------------------------
// Interfaces
// -----------------------------------------------------------------------------

// Embedder converts snippet text into a vector.
type Embedder interface {
	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the similarity index contract consumed by the relocation
// pipeline. Implementations must be safe for concurrent use.
type Index interface {
	Embedder

	// Insert stores records, overwriting any existing record with the
	// same payload ID.
	Insert(ctx context.Context, records []Record) error

	// Search returns up to k hits nearest to the given vector, filtered
	// by payload fields and ordered by descending score.
	Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error)

	// Delete removes the record with the given payload ID. Deleting an
	// unknown ID is not an error.
	Delete(ctx context.Context, id string) error
}
