// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gitio provides git repository access for delta computation and
// finding relocation: commit resolution, commit-to-commit diffs with hunks,
// and file reads at a commit.
//
// The core treats git as an opaque collaborator. Client is the boundary
// interface; Repository is the go-git implementation and MemoryClient is a
// deterministic fake for tests.
package gitio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/relens-ai/relens/services/relens/model"
)

// Sentinel errors for git access.
var (
	// ErrCommitNotFound indicates the ref or hash could not be resolved.
	ErrCommitNotFound = errors.New("commit not found")

	// ErrFileNotFound indicates the path does not exist at the commit.
	ErrFileNotFound = errors.New("file not found at commit")

	// ErrRepoUnavailable indicates the repository could not be opened.
	ErrRepoUnavailable = errors.New("repository unavailable")
)

// Client is the git access boundary consumed by the core.
type Client interface {
	// ResolveCommit resolves a ref (branch name, tag, "HEAD", or hash)
	// to a commit hash.
	ResolveCommit(ctx context.Context, ref string) (string, error)

	// Diff returns the file-level changes between two commits, with
	// line hunks for modified files.
	Diff(ctx context.Context, from, to string) ([]model.FileChange, error)

	// FileLines returns the content of path at commit, split into lines.
	FileLines(ctx context.Context, commit, path string) ([]string, error)
}

// Repository is a go-git backed Client.
type Repository struct {
	repo *git.Repository
	path string
}

// Open opens an existing git repository at repoPath.
func Open(repoPath string) (*Repository, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRepoUnavailable, repoPath, err)
	}
	return &Repository{repo: repo, path: repoPath}, nil
}

// ResolveCommit resolves a branch name, tag, "HEAD", or hash to a commit hash.
func (r *Repository) ResolveCommit(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if ref == "" || ref == "HEAD" {
		head, err := r.repo.Head()
		if err != nil {
			return "", fmt.Errorf("%w: HEAD: %v", ErrCommitNotFound, err)
		}
		return head.Hash().String(), nil
	}

	// Branch, then tag, then raw hash.
	if branchRef, err := r.repo.Reference(plumbing.NewBranchReferenceName(ref), true); err == nil {
		return branchRef.Hash().String(), nil
	}
	if tagRef, err := r.repo.Reference(plumbing.NewTagReferenceName(ref), true); err == nil {
		return tagRef.Hash().String(), nil
	}
	hash := plumbing.NewHash(ref)
	if _, err := r.repo.CommitObject(hash); err != nil {
		return "", fmt.Errorf("%w: %q is not a branch, tag, or commit hash", ErrCommitNotFound, ref)
	}
	return hash.String(), nil
}

// Diff returns changed files with hunks between two commits.
//
// # Description
//
// Tree-level changes come from go-git with rename detection enabled; hunk
// line ranges are recovered by rendering each change as a unified diff and
// parsing it back, which keeps one hunk representation throughout.
func (r *Repository) Diff(ctx context.Context, from, to string) ([]model.FileChange, error) {
	fromTree, err := r.treeAt(from)
	if err != nil {
		return nil, err
	}
	toTree, err := r.treeAt(to)
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, fmt.Errorf("diffing %s..%s: %w", from, to, err)
	}

	out := make([]model.FileChange, 0, len(changes))
	for _, change := range changes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fc, err := r.fileChange(change)
		if err != nil {
			return nil, err
		}
		out = append(out, fc)
	}
	return out, nil
}

func (r *Repository) treeAt(ref string) (*object.Tree, error) {
	commit, err := r.repo.CommitObject(plumbing.NewHash(ref))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCommitNotFound, ref)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("tree of %s: %w", ref, err)
	}
	return tree, nil
}

func (r *Repository) fileChange(change *object.Change) (model.FileChange, error) {
	fc := model.FileChange{}
	switch {
	case change.From.Name == "":
		fc.Path = change.To.Name
		fc.Type = model.ChangeAdded
	case change.To.Name == "":
		fc.Path = change.From.Name
		fc.Type = model.ChangeDeleted
	case change.From.Name != change.To.Name:
		fc.Path = change.To.Name
		fc.OldPath = change.From.Name
		fc.Type = model.ChangeRenamed
	default:
		fc.Path = change.To.Name
		fc.Type = model.ChangeModified
	}

	patch, err := change.Patch()
	if err != nil {
		return model.FileChange{}, fmt.Errorf("patch for %s: %w", fc.Path, err)
	}
	parsed, err := ParseUnifiedDiff(patch.String())
	if err != nil {
		return model.FileChange{}, fmt.Errorf("parsing patch for %s: %w", fc.Path, err)
	}
	if len(parsed) > 0 {
		fc.Hunks = parsed[0].Hunks
	}
	return fc, nil
}

// FileLines returns the lines of path at commit.
func (r *Repository) FileLines(ctx context.Context, commit, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tree, err := r.treeAt(commit)
	if err != nil {
		return nil, err
	}
	f, err := tree.File(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s@%s", ErrFileNotFound, path, commit)
	}
	content, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("reading %s@%s: %w", path, commit, err)
	}
	return SplitLines(content), nil
}

// SplitLines splits file content into lines without trailing newline
// artifacts. Empty content yields no lines.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
