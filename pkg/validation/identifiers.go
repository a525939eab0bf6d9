// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for identifiers that reach
// storage keys or subprocess calls.
//
// Project slugs, commit hashes, and branch names are embedded in record-store
// keys and passed to git. Validating them at the CLI boundary keeps malformed
// or hostile input out of key construction and path handling.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// projectPattern matches project slugs of the form "owner/name".
// Each segment: letters, digits, dots, hyphens, underscores, max 100 chars.
var projectPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,99}(/[A-Za-z0-9][A-Za-z0-9._\-]{0,99})?$`)

// commitPattern matches abbreviated or full hex object hashes (SHA-1 or SHA-256).
var commitPattern = regexp.MustCompile(`^[0-9a-f]{4,64}$`)

// ValidateProject validates a project slug before it is used in store keys.
//
// Valid slugs are one or two path segments ("api", "acme/api") of
// alphanumerics, dots, hyphens, and underscores, each starting with an
// alphanumeric.
func ValidateProject(project string) error {
	if project == "" {
		return fmt.Errorf("project cannot be empty")
	}
	if !projectPattern.MatchString(project) {
		return fmt.Errorf("invalid project slug: %q (expected owner/name of alphanumerics, dots, hyphens, underscores)", project)
	}
	return nil
}

// ValidateCommit validates a git commit hash (abbreviated or full, lowercase hex).
func ValidateCommit(commit string) error {
	if commit == "" {
		return fmt.Errorf("commit cannot be empty")
	}
	if !commitPattern.MatchString(commit) {
		return fmt.Errorf("invalid commit hash: %q (expected 4-64 lowercase hex chars)", commit)
	}
	return nil
}

// ValidateBranchName validates a git branch name against the subset of
// git-check-ref-format rules that matter for key construction.
//
// Rejected: empty names, leading/trailing slashes or dots, "..", "@{",
// control characters, and the characters space, ~, ^, :, ?, *, [, and \.
func ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if len(name) > 250 {
		return fmt.Errorf("branch name too long: %d chars (max 250)", len(name))
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") ||
		strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return fmt.Errorf("invalid branch name: %q (leading/trailing slash or dot)", name)
	}
	if strings.Contains(name, "..") || strings.Contains(name, "@{") || strings.Contains(name, "//") {
		return fmt.Errorf("invalid branch name: %q", name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(" ~^:?*[\\", r) {
			return fmt.Errorf("invalid character %q in branch name %q", r, name)
		}
	}
	return nil
}
