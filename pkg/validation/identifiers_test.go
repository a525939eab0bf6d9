// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"testing"
)

func TestValidateProject(t *testing.T) {
	tests := []struct {
		name    string
		project string
		wantErr bool
	}{
		{"owner and name", "acme/api", false},
		{"single segment", "api", false},
		{"dots and hyphens", "acme-corp/api.v2", false},
		{"underscore", "acme/internal_api", false},
		{"empty", "", true},
		{"three segments", "a/b/c", true},
		{"leading slash", "/api", true},
		{"leading dot", ".hidden/api", true},
		{"space", "acme/my api", true},
		{"traversal", "../etc", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProject(tt.project)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProject(%q) error = %v, wantErr %v", tt.project, err, tt.wantErr)
			}
		})
	}
}

func TestValidateCommit(t *testing.T) {
	tests := []struct {
		name    string
		commit  string
		wantErr bool
	}{
		{"abbreviated", "a1b2c3d", false},
		{"full sha1", "0123456789abcdef0123456789abcdef01234567", false},
		{"full sha256", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", false},
		{"empty", "", true},
		{"too short", "ab", true},
		{"uppercase", "A1B2C3D", true},
		{"not hex", "main", true},
		{"too long", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCommit(tt.commit)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCommit(%q) error = %v, wantErr %v", tt.commit, err, tt.wantErr)
			}
		})
	}
}

func TestValidateBranchName(t *testing.T) {
	tests := []struct {
		name    string
		branch  string
		wantErr bool
	}{
		{"simple", "main", false},
		{"hierarchical", "feature/login", false},
		{"with dots", "release/v1.2", false},
		{"empty", "", true},
		{"double dot", "a..b", true},
		{"ref expr", "main@{1}", true},
		{"trailing slash", "feature/", true},
		{"leading dot", ".lock", true},
		{"space", "my branch", true},
		{"tilde", "main~1", true},
		{"colon", "a:b", true},
		{"backslash", `a\b`, true},
		{"control char", "a\tb", true},
		{"double slash", "a//b", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBranchName(tt.branch)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBranchName(%q) error = %v, wantErr %v", tt.branch, err, tt.wantErr)
			}
		})
	}
}
