// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeTrustScore(t *testing.T) {
	tests := []struct {
		name        string
		preserved   int
		relocated   int
		stale       int
		orphaned    int
		added       int
		wantOverall float64
		wantLevel   TrustLevel
	}{
		{name: "empty merge", wantOverall: 10, wantLevel: TrustHigh},
		{name: "all preserved", preserved: 10, wantOverall: 9.1, wantLevel: TrustHigh},
		{name: "preserved plus added", preserved: 5, added: 5, wantOverall: 9.7, wantLevel: TrustHigh},
		{name: "half orphaned", preserved: 5, orphaned: 5, wantOverall: 5.6, wantLevel: TrustMedium},
		{name: "mostly stale", preserved: 2, stale: 8, wantOverall: 3.5, wantLevel: TrustLow},
		{name: "relocated counts as covered", relocated: 10, wantOverall: 9.1, wantLevel: TrustHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := ComputeTrustScore(tt.preserved, tt.relocated, tt.stale, tt.orphaned, tt.added)
			assert.InDelta(t, tt.wantOverall, score.Overall, 0.001)
			assert.Equal(t, tt.wantLevel, score.Level)
		})
	}
}

func TestLevelFor_Boundaries(t *testing.T) {
	assert.Equal(t, TrustHigh, LevelFor(8))
	assert.Equal(t, TrustMedium, LevelFor(7.9))
	assert.Equal(t, TrustMedium, LevelFor(5))
	assert.Equal(t, TrustLow, LevelFor(4.9))
}

func TestHashSnippet_IgnoresTrailingWhitespace(t *testing.T) {
	a := HashSnippet([]string{"func A() {", "\treturn", "}"})
	b := HashSnippet([]string{"func A() {  ", "\treturn\t", "}\r"})
	c := HashSnippet([]string{"func B() {", "\treturn", "}"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestHashSnippet_LineBoundariesMatter(t *testing.T) {
	// Joining two lines must not collide with the split form.
	joined := HashSnippet([]string{"ab"})
	split := HashSnippet([]string{"a", "b"})
	assert.NotEqual(t, joined, split)
}

func TestNewID(t *testing.T) {
	id := NewID("snap")
	assert.True(t, strings.HasPrefix(id, "snap-"))
	assert.NotEqual(t, id, NewID("snap"))
}
