// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gitio

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/relens-ai/relens/services/relens/model"
)

// MemoryClient is an in-memory Client for deterministic tests.
//
// Commits are registered as path->content maps. Diffs between registered
// commits are computed per file: a modified file produces one hunk covering
// the minimal differing region.
type MemoryClient struct {
	mu      sync.RWMutex
	commits map[string]map[string]string // commit -> path -> content
	refs    map[string]string            // ref -> commit
}

// NewMemoryClient creates an empty in-memory git fake.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		commits: make(map[string]map[string]string),
		refs:    make(map[string]string),
	}
}

// AddCommit registers a commit with its full file set.
func (m *MemoryClient) AddCommit(hash string, files map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[string]string, len(files))
	for p, c := range files {
		snapshot[p] = c
	}
	m.commits[hash] = snapshot
}

// SetRef points a ref (branch name, "HEAD") at a commit hash.
func (m *MemoryClient) SetRef(ref, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[ref] = hash
}

// ResolveCommit resolves refs registered via SetRef, or echoes a known hash.
func (m *MemoryClient) ResolveCommit(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if hash, ok := m.refs[ref]; ok {
		return hash, nil
	}
	if _, ok := m.commits[ref]; ok {
		return ref, nil
	}
	return "", fmt.Errorf("%w: %s", ErrCommitNotFound, ref)
}

// Diff computes file changes between two registered commits.
func (m *MemoryClient) Diff(ctx context.Context, from, to string) ([]model.FileChange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	fromFiles, ok := m.commits[from]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCommitNotFound, from)
	}
	toFiles, ok := m.commits[to]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCommitNotFound, to)
	}

	paths := make(map[string]bool)
	for p := range fromFiles {
		paths[p] = true
	}
	for p := range toFiles {
		paths[p] = true
	}
	ordered := make([]string, 0, len(paths))
	for p := range paths {
		ordered = append(ordered, p)
	}
	sort.Strings(ordered)

	var changes []model.FileChange
	for _, p := range ordered {
		oldContent, inOld := fromFiles[p]
		newContent, inNew := toFiles[p]
		switch {
		case !inOld:
			lines := SplitLines(newContent)
			changes = append(changes, model.FileChange{
				Path: p,
				Type: model.ChangeAdded,
				Hunks: []model.Hunk{
					{OldStart: 0, OldCount: 0, NewStart: 1, NewCount: len(lines)},
				},
			})
		case !inNew:
			lines := SplitLines(oldContent)
			changes = append(changes, model.FileChange{
				Path: p,
				Type: model.ChangeDeleted,
				Hunks: []model.Hunk{
					{OldStart: 1, OldCount: len(lines), NewStart: 0, NewCount: 0},
				},
			})
		case oldContent != newContent:
			changes = append(changes, model.FileChange{
				Path:  p,
				Type:  model.ChangeModified,
				Hunks: []model.Hunk{diffHunk(SplitLines(oldContent), SplitLines(newContent))},
			})
		}
	}
	return changes, nil
}

// FileLines returns the lines of path at a registered commit.
func (m *MemoryClient) FileLines(ctx context.Context, commit, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	files, ok := m.commits[commit]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCommitNotFound, commit)
	}
	content, ok := files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s@%s", ErrFileNotFound, path, commit)
	}
	return SplitLines(content), nil
}

// diffHunk finds the minimal differing region between two line slices and
// reports it as a single hunk.
func diffHunk(oldLines, newLines []string) model.Hunk {
	prefix := 0
	for prefix < len(oldLines) && prefix < len(newLines) && oldLines[prefix] == newLines[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(oldLines)-prefix && suffix < len(newLines)-prefix &&
		oldLines[len(oldLines)-1-suffix] == newLines[len(newLines)-1-suffix] {
		suffix++
	}
	return model.Hunk{
		OldStart: prefix + 1,
		OldCount: len(oldLines) - prefix - suffix,
		NewStart: prefix + 1,
		NewCount: len(newLines) - prefix - suffix,
	}
}
