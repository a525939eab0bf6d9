// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gitio

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/relens-ai/relens/services/relens/model"
)

// ParseUnifiedDiff parses unified diff text into file changes with hunks.
//
// # Description
//
// Accepts multi-file unified diffs (the `git diff` wire format). Change
// type is inferred from the /dev/null markers and path pair; hunk ranges
// come straight from the @@ headers.
func ParseUnifiedDiff(text string) ([]model.FileChange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(text)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("parsing unified diff: %w", err)
	}

	out := make([]model.FileChange, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		out = append(out, fromFileDiff(fd))
	}
	return out, nil
}

func fromFileDiff(fd *diff.FileDiff) model.FileChange {
	oldName := stripDiffPrefix(fd.OrigName)
	newName := stripDiffPrefix(fd.NewName)

	fc := model.FileChange{}
	switch {
	case oldName == "" || fd.OrigName == "/dev/null":
		fc.Path = newName
		fc.Type = model.ChangeAdded
	case newName == "" || fd.NewName == "/dev/null":
		fc.Path = oldName
		fc.Type = model.ChangeDeleted
	case oldName != newName:
		fc.Path = newName
		fc.OldPath = oldName
		fc.Type = model.ChangeRenamed
	default:
		fc.Path = newName
		fc.Type = model.ChangeModified
	}

	for _, h := range fd.Hunks {
		fc.Hunks = append(fc.Hunks, model.Hunk{
			OldStart: int(h.OrigStartLine),
			OldCount: int(h.OrigLines),
			NewStart: int(h.NewStartLine),
			NewCount: int(h.NewLines),
		})
	}
	return fc
}

// stripDiffPrefix removes the a/ and b/ prefixes git puts on diff paths.
func stripDiffPrefix(name string) string {
	if name == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}
