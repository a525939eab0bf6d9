// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gitio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relens-ai/relens/services/relens/model"
)

const sampleDiff = `diff --git a/pkg/handler.go b/pkg/handler.go
index 83db48f..bf269f4 100644
--- a/pkg/handler.go
+++ b/pkg/handler.go
@@ -10,4 +10,6 @@ func Handle() {
 	a
-	b
+	b2
+	b3
 	c
+	d
@@ -40,3 +42,2 @@ func Other() {
 	x
-	y
 	z
diff --git a/pkg/gone.go b/pkg/gone.go
deleted file mode 100644
index 83db48f..0000000
--- a/pkg/gone.go
+++ /dev/null
@@ -1,3 +0,0 @@
-one
-two
-three
`

func TestParseUnifiedDiff(t *testing.T) {
	changes, err := ParseUnifiedDiff(sampleDiff)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	mod := changes[0]
	assert.Equal(t, "pkg/handler.go", mod.Path)
	assert.Equal(t, model.ChangeModified, mod.Type)
	require.Len(t, mod.Hunks, 2)
	assert.Equal(t, model.Hunk{OldStart: 10, OldCount: 4, NewStart: 10, NewCount: 6}, mod.Hunks[0])
	assert.Equal(t, 2, mod.Hunks[0].LineShift())
	assert.Equal(t, -1, mod.Hunks[1].LineShift())

	del := changes[1]
	assert.Equal(t, "pkg/gone.go", del.Path)
	assert.Equal(t, model.ChangeDeleted, del.Type)
}

func TestParseUnifiedDiff_Empty(t *testing.T) {
	changes, err := ParseUnifiedDiff("  \n")
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestMemoryClient_Diff(t *testing.T) {
	m := NewMemoryClient()
	m.AddCommit("c1", map[string]string{
		"keep.go":   "same\n",
		"mod.go":    "a\nb\nc\n",
		"gone.go":   "x\n",
		"stable.go": "s\n",
	})
	m.AddCommit("c2", map[string]string{
		"keep.go":   "same\n",
		"mod.go":    "a\nB\nB2\nc\n",
		"new.go":    "n\n",
		"stable.go": "s\n",
	})

	changes, err := m.Diff(context.Background(), "c1", "c2")
	require.NoError(t, err)
	require.Len(t, changes, 3)

	byPath := map[string]model.FileChange{}
	for _, c := range changes {
		byPath[c.Path] = c
	}

	assert.Equal(t, model.ChangeDeleted, byPath["gone.go"].Type)
	assert.Equal(t, model.ChangeAdded, byPath["new.go"].Type)

	mod := byPath["mod.go"]
	assert.Equal(t, model.ChangeModified, mod.Type)
	require.Len(t, mod.Hunks, 1)
	// Lines 2..2 became 2..3: one old line, two new lines.
	assert.Equal(t, model.Hunk{OldStart: 2, OldCount: 1, NewStart: 2, NewCount: 2}, mod.Hunks[0])
}

func TestMemoryClient_ResolveCommit(t *testing.T) {
	m := NewMemoryClient()
	m.AddCommit("abc123", map[string]string{})
	m.SetRef("main", "abc123")
	m.SetRef("HEAD", "abc123")

	for _, ref := range []string{"main", "HEAD", "abc123"} {
		hash, err := m.ResolveCommit(context.Background(), ref)
		require.NoError(t, err)
		assert.Equal(t, "abc123", hash)
	}

	_, err := m.ResolveCommit(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCommitNotFound)
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, SplitLines(""))
	assert.Equal(t, []string{"a", "b"}, SplitLines("a\nb\n"))
	assert.Equal(t, []string{"a", "b"}, SplitLines("a\nb"))
	assert.Equal(t, []string{"a", "", "b"}, SplitLines("a\n\nb\n"))
}
