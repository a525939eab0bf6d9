// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package relocate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/relens-ai/relens/services/relens/model"
	"github.com/relens-ai/relens/services/relens/simindex"
)

// driftConfidence is reported when shifted content still matches exactly.
const driftConfidence = 0.9

// contextWindow is the number of lines hashed on each side of a snippet
// by the fuzzy strategy.
const contextWindow = 3

// globalSearchLimit bounds candidate retrieval for the hash-global scan.
const globalSearchLimit = 50

// -----------------------------------------------------------------------------
// EXACT
// -----------------------------------------------------------------------------

// exactStrategy checks whether the snippet hash at the original location
// in the target commit equals the stored hash.
type exactStrategy struct{}

func (s *exactStrategy) Name() string { return "exact" }

func (s *exactStrategy) Attempt(ctx context.Context, tgt *Target) (Candidate, error) {
	loc := tgt.Finding.Location
	content, exists, err := tgt.lines(ctx, loc.File)
	if err != nil {
		return Candidate{}, err
	}
	if !exists {
		return Candidate{}, nil
	}
	snippet, ok := sliceRange(content, loc.StartLine, loc.EndLine)
	if !ok {
		return Candidate{}, nil
	}
	if model.HashSnippet(snippet) != tgt.Finding.SnippetHash {
		return Candidate{}, nil
	}
	unchanged := loc
	return Candidate{
		Method:     model.MethodExactMatch,
		Confidence: 1.0,
		Location:   &unchanged,
	}, nil
}

// -----------------------------------------------------------------------------
// DRIFT
// -----------------------------------------------------------------------------

// driftStrategy shifts the original line range by the net line delta of
// manifest hunks above it, then verifies content at the shifted range.
// Abstains without a manifest.
type driftStrategy struct{}

func (s *driftStrategy) Name() string { return "drift" }

func (s *driftStrategy) Attempt(ctx context.Context, tgt *Target) (Candidate, error) {
	if tgt.Manifest == nil {
		return Candidate{}, nil
	}
	loc := tgt.Finding.Location
	fc, ok := tgt.Manifest.ChangeForFile(loc.File)
	if !ok || fc.Type == model.ChangeDeleted {
		return Candidate{}, nil
	}

	shift := 0
	for _, h := range fc.Hunks {
		if h.OldStart+h.OldCount <= loc.StartLine {
			shift += h.LineShift()
		}
	}
	if shift == 0 {
		// Nothing moved above the finding; exact already had its turn.
		return Candidate{}, nil
	}

	path := tgt.newFilePath()
	content, exists, err := tgt.lines(ctx, path)
	if err != nil {
		return Candidate{}, err
	}
	if !exists {
		return Candidate{}, nil
	}
	snippet, ok := sliceRange(content, loc.StartLine+shift, loc.EndLine+shift)
	if !ok {
		return Candidate{}, nil
	}
	if model.HashSnippet(snippet) != tgt.Finding.SnippetHash {
		return Candidate{}, nil
	}
	return Candidate{
		Method:     model.MethodLineDrift,
		Confidence: driftConfidence,
		Drift:      shift,
		Location: &model.Location{
			File:      path,
			StartLine: loc.StartLine + shift,
			EndLine:   loc.EndLine + shift,
		},
	}, nil
}

// -----------------------------------------------------------------------------
// SEMANTIC
// -----------------------------------------------------------------------------

// semanticStrategy searches the similarity index for the nearest neighbor
// of the original snippet: same file first, then other files. Confidence
// is the similarity score.
type semanticStrategy struct {
	threshold float64
}

func (s *semanticStrategy) Name() string { return "semantic" }

func (s *semanticStrategy) Attempt(ctx context.Context, tgt *Target) (Candidate, error) {
	if tgt.index == nil {
		return Candidate{}, nil
	}
	snippet, ok, err := tgt.originalSnippet(ctx)
	if err != nil {
		return Candidate{}, err
	}
	if !ok {
		return Candidate{}, nil
	}

	vec, err := tgt.index.Embed(ctx, strings.Join(snippet, "\n"))
	if err != nil {
		return Candidate{}, fmt.Errorf("embedding snippet: %w", err)
	}

	sameFile := tgt.newFilePath()
	base := simindex.Filter{
		Project: tgt.Project,
		Commit:  tgt.NewCommit,
	}

	sameFilter := base
	sameFilter.SameFile = sameFile
	sameHits, err := tgt.index.Search(ctx, vec, 3, sameFilter)
	if err != nil {
		return Candidate{}, fmt.Errorf("same-file search: %w", err)
	}
	if len(sameHits) > 0 && sameHits[0].Score >= s.threshold {
		return candidateFromHit(sameHits[0], model.MethodSemanticSameFile), nil
	}

	otherFilter := base
	otherFilter.ExcludeFile = sameFile
	otherHits, err := tgt.index.Search(ctx, vec, 3, otherFilter)
	if err != nil {
		return Candidate{}, fmt.Errorf("cross-file search: %w", err)
	}

	best := Candidate{}
	if len(sameHits) > 0 {
		best = candidateFromHit(sameHits[0], model.MethodSemanticSameFile)
	}
	if len(otherHits) > 0 && otherHits[0].Score > best.Confidence {
		best = candidateFromHit(otherHits[0], model.MethodSemanticOtherFile)
	}
	return best, nil
}

func candidateFromHit(hit simindex.Hit, method model.RelocationMethod) Candidate {
	return Candidate{
		Method:     method,
		Confidence: hit.Score,
		Location: &model.Location{
			File:      hit.Payload.FilePath,
			StartLine: hit.Payload.StartLine,
			EndLine:   hit.Payload.EndLine,
		},
	}
}

// -----------------------------------------------------------------------------
// HASH_GLOBAL
// -----------------------------------------------------------------------------

// hashGlobalStrategy looks for the exact snippet hash anywhere in the
// target commit. A unique match is certainty; n matches degrade to 1/n
// and are flagged ambiguous so ties are never silently resolved.
type hashGlobalStrategy struct{}

func (s *hashGlobalStrategy) Name() string { return "hash_global" }

func (s *hashGlobalStrategy) Attempt(ctx context.Context, tgt *Target) (Candidate, error) {
	if tgt.index == nil {
		return Candidate{}, nil
	}
	snippet, ok, err := tgt.originalSnippet(ctx)
	if err != nil {
		return Candidate{}, err
	}
	if !ok {
		return Candidate{}, nil
	}

	vec, err := tgt.index.Embed(ctx, strings.Join(snippet, "\n"))
	if err != nil {
		return Candidate{}, fmt.Errorf("embedding snippet: %w", err)
	}
	hits, err := tgt.index.Search(ctx, vec, globalSearchLimit, simindex.Filter{
		Project: tgt.Project,
		Commit:  tgt.NewCommit,
	})
	if err != nil {
		return Candidate{}, fmt.Errorf("global search: %w", err)
	}

	var matches []simindex.Hit
	for _, hit := range hits {
		if hit.Payload.SnippetHash == tgt.Finding.SnippetHash {
			matches = append(matches, hit)
		}
	}
	if len(matches) == 0 {
		return Candidate{}, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Payload.FilePath != matches[j].Payload.FilePath {
			return matches[i].Payload.FilePath < matches[j].Payload.FilePath
		}
		return matches[i].Payload.StartLine < matches[j].Payload.StartLine
	})

	cand := candidateFromHit(matches[0], model.MethodHashGlobalSearch)
	cand.Confidence = 1.0 / float64(len(matches))
	cand.Ambiguous = len(matches) > 1
	return cand, nil
}

// -----------------------------------------------------------------------------
// FUZZY
// -----------------------------------------------------------------------------

// fuzzyStrategy aligns the snippet inside its file using hashes of the
// lines immediately before and after it. Confidence is the fraction of
// the context window that still matches at the best alignment.
type fuzzyStrategy struct{}

func (s *fuzzyStrategy) Name() string { return "fuzzy" }

func (s *fuzzyStrategy) Attempt(ctx context.Context, tgt *Target) (Candidate, error) {
	loc := tgt.Finding.Location
	if tgt.OldCommit == "" {
		return Candidate{}, nil
	}

	oldContent, err := tgt.git.FileLines(ctx, tgt.OldCommit, loc.File)
	if err != nil {
		// Unreadable baseline file is an abstention, not a failure.
		return Candidate{}, nil
	}

	before, after := contextHashes(oldContent, loc.StartLine, loc.EndLine)
	total := len(before) + len(after)
	if total == 0 {
		return Candidate{}, nil
	}

	path := tgt.newFilePath()
	newContent, exists, err := tgt.lines(ctx, path)
	if err != nil {
		return Candidate{}, err
	}
	if !exists {
		return Candidate{}, nil
	}

	span := loc.EndLine - loc.StartLine + 1
	bestStart, bestMatched := 0, 0
	for start := 1; start+span-1 <= len(newContent); start++ {
		matched := 0
		for i, h := range before {
			idx := start - len(before) + i // 1-based line of this context entry
			if idx >= 1 && model.HashLine(newContent[idx-1]) == h {
				matched++
			}
		}
		for i, h := range after {
			idx := start + span + i
			if idx <= len(newContent) && model.HashLine(newContent[idx-1]) == h {
				matched++
			}
		}
		if matched > bestMatched {
			bestMatched = matched
			bestStart = start
		}
	}
	if bestMatched == 0 {
		return Candidate{}, nil
	}

	return Candidate{
		Method:     model.MethodFuzzyContext,
		Confidence: float64(bestMatched) / float64(total),
		Location: &model.Location{
			File:      path,
			StartLine: bestStart,
			EndLine:   bestStart + span - 1,
		},
	}, nil
}

// contextHashes returns line hashes for up to contextWindow lines before
// and after the 1-based inclusive [start, end] range.
func contextHashes(lines []string, start, end int) (before, after []string) {
	for i := start - contextWindow; i < start; i++ {
		if i >= 1 && i <= len(lines) {
			before = append(before, model.HashLine(lines[i-1]))
		}
	}
	for i := end + 1; i <= end+contextWindow; i++ {
		if i >= 1 && i <= len(lines) {
			after = append(after, model.HashLine(lines[i-1]))
		}
	}
	return before, after
}
