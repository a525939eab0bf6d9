// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package relocate re-anchors findings onto a new commit.
//
// The pipeline is a state machine over a single finding: an ordered list of
// strategies, each producing a candidate (method, confidence, location). The
// pipeline halts at the first strategy whose confidence clears the bar and
// returns that outcome; when none qualifies, the finding is marked STALE
// (recoverable), or ORPHANED when the delta manifest proves the file was
// deleted and no global or semantic recovery succeeded.
//
// Strategy failures are recorded in the audit trail and never abort the
// pipeline. The pipeline never mutates the finding it relocates.
package relocate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/relens-ai/relens/services/relens/gitio"
	"github.com/relens-ai/relens/services/relens/model"
	"github.com/relens-ai/relens/services/relens/simindex"
)

// DefaultMinConfidence is the acceptance bar for a strategy candidate.
const DefaultMinConfidence = 0.7

// defaultParallelism bounds concurrent finding relocations in RelocateAll.
const defaultParallelism = 8

var (
	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("invalid relocation input")
)

// Candidate is one strategy's proposed outcome. A zero Candidate is an
// abstention.
type Candidate struct {
	Method     model.RelocationMethod
	Confidence float64
	Location   *model.Location
	Drift      int
	Ambiguous  bool
}

// Strategy is one stage of the pipeline. Implementations must be read-only
// against the repository and the similarity index.
type Strategy interface {
	// Name identifies the strategy in the audit trail.
	Name() string

	// Attempt produces a candidate for the target. Returning a zero
	// Candidate with a nil error is an abstention, not a failure.
	Attempt(ctx context.Context, tgt *Target) (Candidate, error)
}

// Target carries one finding through the pipeline along with the commit
// pair, the delta manifest, and cached file reads.
type Target struct {
	Project   string
	Finding   model.Finding
	OldCommit string
	NewCommit string

	// Manifest is the delta manifest for the commit pair. Optional; the
	// drift strategy abstains without it.
	Manifest *model.DeltaManifest

	git   gitio.Client
	index simindex.Index

	mu      sync.Mutex
	files   map[string][]string
	missing map[string]bool
	snippet []string
	noSnip  bool
}

// lines returns path's content at the target commit, cached per target.
// The second return is false when the file does not exist at the commit.
func (t *Target) lines(ctx context.Context, path string) ([]string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.files == nil {
		t.files = make(map[string][]string)
		t.missing = make(map[string]bool)
	}
	if t.missing[path] {
		return nil, false, nil
	}
	if cached, ok := t.files[path]; ok {
		return cached, true, nil
	}

	content, err := t.git.FileLines(ctx, t.NewCommit, path)
	if err != nil {
		if errors.Is(err, gitio.ErrFileNotFound) {
			t.missing[path] = true
			return nil, false, nil
		}
		return nil, false, err
	}
	t.files[path] = content
	return content, true, nil
}

// originalSnippet returns the finding's snippet text at the old commit,
// cached per target. The second return is false when unavailable.
func (t *Target) originalSnippet(ctx context.Context) ([]string, bool, error) {
	t.mu.Lock()
	if t.snippet != nil {
		defer t.mu.Unlock()
		return t.snippet, true, nil
	}
	if t.noSnip || t.OldCommit == "" {
		defer t.mu.Unlock()
		return nil, false, nil
	}
	t.mu.Unlock()

	loc := t.Finding.Location
	content, err := t.git.FileLines(ctx, t.OldCommit, loc.File)
	if err != nil {
		if errors.Is(err, gitio.ErrFileNotFound) || errors.Is(err, gitio.ErrCommitNotFound) {
			t.mu.Lock()
			t.noSnip = true
			t.mu.Unlock()
			return nil, false, nil
		}
		return nil, false, err
	}
	snippet, ok := sliceRange(content, loc.StartLine, loc.EndLine)
	t.mu.Lock()
	defer t.mu.Unlock()
	if !ok {
		t.noSnip = true
		return nil, false, nil
	}
	t.snippet = snippet
	return snippet, true, nil
}

// newFilePath returns the finding file's path at the target commit,
// following a rename recorded in the manifest.
func (t *Target) newFilePath() string {
	path := t.Finding.Location.File
	if t.Manifest == nil {
		return path
	}
	if fc, ok := t.Manifest.ChangeForFile(path); ok && fc.Type == model.ChangeRenamed {
		return fc.Path
	}
	return path
}

// sliceRange extracts 1-based inclusive [start, end] from lines.
func sliceRange(lines []string, start, end int) ([]string, bool) {
	if start < 1 || end < start || end > len(lines) {
		return nil, false
	}
	return lines[start-1 : end], true
}

// Request is one finding relocation.
type Request struct {
	Project   string
	Finding   model.Finding
	OldCommit string
	NewCommit string
	Manifest  *model.DeltaManifest
}

// Validate checks request shape.
func (r *Request) Validate() error {
	if r.Project == "" {
		return fmt.Errorf("%w: empty project", ErrInvalidInput)
	}
	if r.Finding.ID == "" {
		return fmt.Errorf("%w: finding without id", ErrInvalidInput)
	}
	if r.Finding.Location.File == "" {
		return fmt.Errorf("%w: finding %s without location", ErrInvalidInput, r.Finding.ID)
	}
	if r.NewCommit == "" {
		return fmt.Errorf("%w: empty target commit", ErrInvalidInput)
	}
	return nil
}

// Pipeline relocates findings through an ordered strategy chain.
//
// # Thread Safety
//
// Safe for concurrent use; all state is read-only after construction.
type Pipeline struct {
	git           gitio.Client
	index         simindex.Index
	strategies    []Strategy
	strategiesSet bool
	minConfidence float64
	parallelism   int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStrategies replaces the default strategy order.
func WithStrategies(strategies ...Strategy) Option {
	return func(p *Pipeline) {
		p.strategies = strategies
		p.strategiesSet = true
	}
}

// WithMinConfidence sets the acceptance bar.
func WithMinConfidence(min float64) Option {
	return func(p *Pipeline) { p.minConfidence = min }
}

// WithParallelism bounds concurrent relocations in RelocateAll.
func WithParallelism(n int) Option {
	return func(p *Pipeline) { p.parallelism = n }
}

// NewPipeline builds a pipeline with the default strategy order:
// exact, drift, semantic, hash-global, fuzzy.
func NewPipeline(git gitio.Client, index simindex.Index, opts ...Option) (*Pipeline, error) {
	if git == nil {
		return nil, fmt.Errorf("%w: nil git client", ErrInvalidInput)
	}
	p := &Pipeline{
		git:           git,
		index:         index,
		minConfidence: DefaultMinConfidence,
		parallelism:   defaultParallelism,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.minConfidence <= 0 || p.minConfidence > 1 {
		return nil, fmt.Errorf("%w: min confidence %v out of (0,1]", ErrInvalidInput, p.minConfidence)
	}
	if !p.strategiesSet {
		p.strategies = []Strategy{
			&exactStrategy{},
			&driftStrategy{},
			&semanticStrategy{threshold: p.minConfidence},
			&hashGlobalStrategy{},
			&fuzzyStrategy{},
		}
	}
	if len(p.strategies) == 0 {
		return nil, fmt.Errorf("%w: empty strategy list", ErrInvalidInput)
	}
	return p, nil
}

// Relocate runs the strategy chain over one finding.
//
// # Description
//
//	Strategies run strictly in order; the first candidate whose confidence
//	clears the bar is accepted and later strategies are not attempted.
//	Every attempt, including abstentions and failures, is recorded in the
//	result's StrategiesTried trace.
//
// # Outputs
//
//	model.RelocationResult - The outcome; never partial on success.
//	error - Non-nil only for invalid input or cancellation.
func (p *Pipeline) Relocate(ctx context.Context, req Request) (model.RelocationResult, error) {
	if err := req.Validate(); err != nil {
		return model.RelocationResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.RelocationResult{}, err
	}
	start := time.Now()

	ctx, span := tracer.Start(ctx, "relocate.finding")
	defer span.End()
	span.SetAttributes(
		attribute.String("finding.id", req.Finding.ID),
		attribute.String("commit.target", req.NewCommit),
	)

	tgt := &Target{
		Project:   req.Project,
		Finding:   req.Finding,
		OldCommit: req.OldCommit,
		NewCommit: req.NewCommit,
		Manifest:  req.Manifest,
		git:       p.git,
		index:     p.index,
	}

	res := model.RelocationResult{FindingID: req.Finding.ID}
	for _, s := range p.strategies {
		if err := ctx.Err(); err != nil {
			// Cancellation surfaces as a recoverable error; partial
			// traces are not reported as outcomes.
			return model.RelocationResult{}, err
		}

		cand, err := s.Attempt(ctx, tgt)
		attempt := model.StrategyAttempt{
			Strategy:   s.Name(),
			Method:     cand.Method,
			Confidence: cand.Confidence,
			Ambiguous:  cand.Ambiguous,
		}
		if err != nil {
			if ctx.Err() != nil {
				return model.RelocationResult{}, ctx.Err()
			}
			attempt.Error = err.Error()
			res.StrategiesTried = append(res.StrategiesTried, attempt)
			continue
		}

		if cand.Confidence >= p.minConfidence {
			attempt.Accepted = true
			res.StrategiesTried = append(res.StrategiesTried, attempt)
			res.Method = cand.Method
			res.Confidence = cand.Confidence
			res.Drift = cand.Drift
			res.NewLocation = cand.Location
			if cand.Method == model.MethodExactMatch {
				res.Status = model.RelocationPreserved
			} else {
				res.Status = model.RelocationRelocated
			}
			recordOutcome(ctx, res, time.Since(start))
			return res, nil
		}
		res.StrategiesTried = append(res.StrategiesTried, attempt)
	}

	// Fallthrough: no strategy qualified.
	if req.Manifest != nil && req.Manifest.FileDeleted(req.Finding.Location.File) {
		res.Status = model.RelocationOrphaned
		res.Method = model.MethodFileDeleted
	} else {
		res.Status = model.RelocationStale
		res.Method = model.MethodContentChanged
	}
	res.Confidence = 0
	recordOutcome(ctx, res, time.Since(start))
	return res, nil
}

// RelocateAll relocates a batch of findings concurrently and returns a
// result per finding id. Individual invalid findings produce a STALE
// result with the validation error in the trace rather than failing the
// batch; only cancellation aborts.
func (p *Pipeline) RelocateAll(ctx context.Context, project, oldCommit, newCommit string, findings []model.Finding, manifest *model.DeltaManifest) (map[string]model.RelocationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]model.RelocationResult, len(findings))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)

	for i, f := range findings {
		g.Go(func() error {
			res, err := p.Relocate(gctx, Request{
				Project:   project,
				Finding:   f,
				OldCommit: oldCommit,
				NewCommit: newCommit,
				Manifest:  manifest,
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				res = model.RelocationResult{
					FindingID: f.ID,
					Status:    model.RelocationStale,
					Method:    model.MethodContentChanged,
					StrategiesTried: []model.StrategyAttempt{
						{Strategy: "validate", Error: err.Error()},
					},
				}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]model.RelocationResult, len(results))
	for _, res := range results {
		if res.FindingID != "" {
			out[res.FindingID] = res
		}
	}
	return out, nil
}
