// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine is the operation facade over the incremental analysis
// core: graph updates, cascade propagation, delta computation, finding
// relocation, snapshot lifecycle, and branch management.
//
// Every operation returns a structured OperationResult with a
// machine-readable error kind. Snapshot creation and branch mutation are
// serialized per (project, branch); read paths take no engine-level locks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

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

var (
	// ErrInvalidInput is returned when an engine request fails validation.
	ErrInvalidInput = errors.New("invalid engine input")

	// ErrNoSnapshots is returned when a branch lineage is empty.
	ErrNoSnapshots = errors.New("no snapshots on branch")
)

// engineValidate is the shared validator instance for engine requests.
var engineValidate *validator.Validate

func init() {
	engineValidate = validator.New()
}

// Engine coordinates the analysis subsystems behind one API surface.
//
// # Thread Safety
//
// Safe for concurrent use. Mutating snapshot/branch operations hold a
// per-(project, branch) mutex for their duration; graph, cascade, delta,
// and relocation operations run lock-free against their own components.
type Engine struct {
	graph      *graph.Store
	propagator *cascade.Propagator
	delta      *delta.Computer
	pipeline   *relocate.Pipeline
	merger     *merge.Engine
	branches   *branch.Manager
	store      *store.Store
	git        gitio.Client

	scopeMu sync.Mutex
	scopes  map[string]*sync.Mutex
}

// Config wires the engine's collaborators.
type Config struct {
	Store *store.Store
	Git   gitio.Client
	Index simindex.Index

	// Graph is optional; a fresh in-memory graph store is used when nil.
	Graph *graph.Store

	// RelocateOptions tune the relocation pipeline.
	RelocateOptions []relocate.Option
}

// New builds an engine from its collaborators.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidInput)
	}
	if cfg.Git == nil {
		return nil, fmt.Errorf("%w: nil git client", ErrInvalidInput)
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("%w: nil similarity index", ErrInvalidInput)
	}

	graphStore := cfg.Graph
	if graphStore == nil {
		graphStore = graph.NewStore()
	}
	propagator := cascade.NewPropagator(graphStore)

	computer, err := delta.NewComputer(cfg.Git, propagator, cfg.Store)
	if err != nil {
		return nil, err
	}
	pipeline, err := relocate.NewPipeline(cfg.Git, cfg.Index, cfg.RelocateOptions...)
	if err != nil {
		return nil, err
	}
	merger := merge.NewEngine()
	branches, err := branch.NewManager(cfg.Store, pipeline, merger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		graph:      graphStore,
		propagator: propagator,
		delta:      computer,
		pipeline:   pipeline,
		merger:     merger,
		branches:   branches,
		store:      cfg.Store,
		git:        cfg.Git,
		scopes:     make(map[string]*sync.Mutex),
	}, nil
}

// lockScope serializes mutations for one (project, branch) pair. The
// returned func releases the scope.
func (e *Engine) lockScope(project, branchID string) func() {
	key := project + "\x00" + branchID

	e.scopeMu.Lock()
	mu, ok := e.scopes[key]
	if !ok {
		mu = &sync.Mutex{}
		e.scopes[key] = mu
	}
	e.scopeMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// validateRequest runs struct-tag validation and wraps failures.
func validateRequest(req any) error {
	if err := engineValidate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// checkCtx surfaces cancellation before an operation starts.
func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
