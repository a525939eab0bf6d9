// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import "errors"

// Sentinel errors for graph store operations.
var (
	// ErrInvalidNode indicates a node with an empty id or unknown type.
	ErrInvalidNode = errors.New("invalid node")

	// ErrInvalidEdge indicates an edge with missing endpoints or unknown type.
	ErrInvalidEdge = errors.New("invalid edge")

	// ErrNodeNotFound indicates the referenced node does not exist.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEdgeNotFound indicates the referenced edge does not exist.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrInvalidInput indicates malformed operation parameters.
	ErrInvalidInput = errors.New("invalid input")
)
