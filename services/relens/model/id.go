// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a logical id with the given prefix ("snap", "env", "branch").
// Logical ids carry meaning for the core; storage-layer numeric ids do not.
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// NewStorageID synthesizes a numeric identifier for storage layers that
// require one. Time-based with a random suffix; never semantically
// meaningful.
func NewStorageID() int64 {
	return time.Now().UnixMicro()*1000 + rand.Int63n(1000)
}

// HashSnippet returns the content hash of a snippet.
//
// Lines are normalized (trailing whitespace stripped) before hashing so
// that whitespace-only churn does not invalidate anchors.
func HashSnippet(lines []string) string {
	h := sha256.New()
	for _, line := range lines {
		h.Write([]byte(strings.TrimRight(line, " \t\r")))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashLine returns the hash of a single normalized line. Used by the fuzzy
// context-window relocation strategy.
func HashLine(line string) string {
	sum := sha256.Sum256([]byte(strings.TrimRight(line, " \t\r")))
	return hex.EncodeToString(sum[:8])
}

// Fingerprint combines per-file hashes into a chunk fingerprint.
func Fingerprint(fileHashes map[string]string) string {
	// Deterministic ordering: sort by path.
	paths := make([]string, 0, len(fileHashes))
	for p := range fileHashes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		fmt.Fprintf(h, "%s=%s\n", p, fileHashes[p])
	}
	return hex.EncodeToString(h.Sum(nil))
}
