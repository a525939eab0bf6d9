// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/relens-ai/relens/services/relens/branch"
	"github.com/relens-ai/relens/services/relens/cascade"
	"github.com/relens-ai/relens/services/relens/delta"
	"github.com/relens-ai/relens/services/relens/gitio"
	"github.com/relens-ai/relens/services/relens/graph"
	"github.com/relens-ai/relens/services/relens/merge"
	"github.com/relens-ai/relens/services/relens/relocate"
	"github.com/relens-ai/relens/services/relens/simindex"
	"github.com/relens-ai/relens/services/relens/store"
)

// ErrorKind is a machine-readable failure category.
type ErrorKind string

const (
	// KindNone means the operation succeeded.
	KindNone ErrorKind = ""

	// KindNotFound means a referenced snapshot, branch, commit, or
	// finding does not exist.
	KindNotFound ErrorKind = "NOT_FOUND"

	// KindInvalidArgument means the request failed validation.
	KindInvalidArgument ErrorKind = "INVALID_ARGUMENT"

	// KindDependencyUnavailable means the similarity index, git access,
	// or record store is unreachable. Operations that can still produce
	// a synthesized in-memory result return it with Persisted=false.
	KindDependencyUnavailable ErrorKind = "DEPENDENCY_UNAVAILABLE"

	// KindConflict means the operation collided with existing state,
	// such as a duplicate branch or an already-stored record.
	KindConflict ErrorKind = "CONFLICT"

	// KindInternal is the fallback for unclassified failures.
	KindInternal ErrorKind = "INTERNAL"
)

// OperationResult is the structured outcome every engine operation returns.
//
// OK with a non-empty ErrorKind signals a degraded success: the caller got
// a usable result, but some part of the operation (typically persistence)
// did not complete.
type OperationResult struct {
	OK        bool      `json:"ok"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// resultOK is the zero-friction success result.
func resultOK() OperationResult {
	return OperationResult{OK: true}
}

// resultErr classifies an error into an OperationResult.
func resultErr(err error) OperationResult {
	return OperationResult{OK: false, ErrorKind: classify(err), Message: err.Error()}
}

// resultDegraded reports a usable result produced without persistence.
func resultDegraded(err error) OperationResult {
	return OperationResult{OK: true, ErrorKind: KindDependencyUnavailable, Message: err.Error()}
}

// classify maps package sentinel errors onto error kinds.
func classify(err error) ErrorKind {
	var validationErrs validator.ValidationErrors
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, delta.ErrBaselineNotFound),
		errors.Is(err, gitio.ErrCommitNotFound),
		errors.Is(err, gitio.ErrFileNotFound),
		errors.Is(err, graph.ErrNodeNotFound),
		errors.Is(err, graph.ErrEdgeNotFound),
		errors.Is(err, simindex.ErrNotFound),
		errors.Is(err, ErrNoSnapshots):
		return KindNotFound
	case errors.Is(err, branch.ErrConflict),
		errors.Is(err, branch.ErrBranchDeleted),
		errors.Is(err, store.ErrAlreadyExists):
		return KindConflict
	case errors.Is(err, simindex.ErrIndexUnavailable),
		errors.Is(err, simindex.ErrCircuitOpen),
		errors.Is(err, simindex.ErrClientClosed):
		return KindDependencyUnavailable
	case errors.As(err, &validationErrs),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, branch.ErrInvalidInput),
		errors.Is(err, cascade.ErrInvalidInput),
		errors.Is(err, delta.ErrInvalidInput),
		errors.Is(err, merge.ErrInvalidInput),
		errors.Is(err, merge.ErrIncompleteRelocations),
		errors.Is(err, relocate.ErrInvalidInput),
		errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, simindex.ErrInvalidInput),
		errors.Is(err, graph.ErrInvalidNode),
		errors.Is(err, graph.ErrInvalidEdge):
		return KindInvalidArgument
	default:
		return KindInternal
	}
}

// storeUnavailable reports whether a store error means the dependency is
// down, as opposed to a validation or state error worth surfacing as-is.
func storeUnavailable(err error) bool {
	return err != nil &&
		!errors.Is(err, store.ErrNotFound) &&
		!errors.Is(err, store.ErrAlreadyExists) &&
		!errors.Is(err, store.ErrInvalidInput)
}
